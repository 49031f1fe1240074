package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecgard/taskhub/internal/notify"
	"github.com/alecgard/taskhub/internal/testutil"
)

func TestPGStore(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	store := NewPGStore(tdb.Pool)
	ctx := context.Background()

	t.Run("unique constraints map to conflict errors", func(t *testing.T) {
		tdb.Truncate(t)
		phone := "79001234567"
		require.NoError(t, store.Create(ctx, &User{Phone: &phone, Username: "alice"}))

		err := store.Create(ctx, &User{Phone: &phone, Username: "alice2"})
		assert.ErrorIs(t, err, ErrContactConflict)

		other := "79007654321"
		err = store.Create(ctx, &User{Phone: &other, Username: "ALICE"})
		assert.ErrorIs(t, err, ErrUsernameConflict, "usernames are unique case-insensitively")
	})

	t.Run("directory round trip", func(t *testing.T) {
		tdb.Truncate(t)
		d := NewDirectory(store)

		u, created, err := d.GetOrCreate(ctx, notify.ChannelEmail, "bob@example.com")
		require.NoError(t, err)
		assert.True(t, created)

		again, created, err := d.GetOrCreate(ctx, notify.ChannelEmail, "bob@example.com")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, u.ID, again.ID)

		renamed, err := d.UpdateUsername(ctx, u.ID, "Боб")
		require.NoError(t, err)
		assert.Equal(t, "Боб", renamed.Username)

		taken, err := store.UsernameTaken(ctx, "боб", "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.True(t, taken)

		n, err := d.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})
}
