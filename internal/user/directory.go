package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alecgard/taskhub/internal/notify"
)

// maxUsernameAttempts bounds random suffix retries before the fallback.
const maxUsernameAttempts = 5

// Directory finds and creates users by verified contact.
type Directory struct {
	store    Store
	username func() (string, error)
	fallback func() string
}

// NewDirectory creates a Directory over store.
func NewDirectory(store Store) *Directory {
	return &Directory{
		store:    store,
		username: randomUsername,
		fallback: fallbackUsername,
	}
}

// GetOrCreate returns the user registered with the given phone or email,
// creating one with a generated username when none exists. created reports
// whether a new row was inserted.
func (d *Directory) GetOrCreate(ctx context.Context, ch notify.Channel, target string) (u *User, created bool, err error) {
	u, err = d.lookup(ctx, ch, target)
	if err != nil || u != nil {
		return u, false, err
	}

	nu := &User{}
	switch ch {
	case notify.ChannelPhone:
		nu.Phone = &target
	case notify.ChannelEmail:
		nu.Email = &target
	default:
		return nil, false, fmt.Errorf("unknown channel %q", ch)
	}

	for attempt := 0; ; attempt++ {
		if attempt < maxUsernameAttempts {
			nu.Username, err = d.username()
			if err != nil {
				return nil, false, err
			}
		} else {
			nu.Username = d.fallback()
		}

		err = d.store.Create(ctx, nu)
		switch {
		case err == nil:
			slog.Info("user created", "user_id", nu.ID, "channel", ch)
			return nu, true, nil
		case errors.Is(err, ErrContactConflict):
			// Another request registered the same contact first.
			u, err = d.lookup(ctx, ch, target)
			if err != nil {
				return nil, false, err
			}
			if u == nil {
				return nil, false, fmt.Errorf("user for %s vanished after conflict", ch)
			}
			return u, false, nil
		case errors.Is(err, ErrUsernameConflict) && attempt < maxUsernameAttempts:
			continue
		default:
			return nil, false, err
		}
	}
}

func (d *Directory) lookup(ctx context.Context, ch notify.Channel, target string) (*User, error) {
	switch ch {
	case notify.ChannelPhone:
		return d.store.GetByPhone(ctx, target)
	case notify.ChannelEmail:
		return d.store.GetByEmail(ctx, target)
	default:
		return nil, fmt.Errorf("unknown channel %q", ch)
	}
}

// Get returns the user with the given id or ErrUserNotFound.
func (d *Directory) Get(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	u, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// Exists reports whether a user with the given id exists.
func (d *Directory) Exists(ctx context.Context, id string) (bool, error) {
	_, err := d.Get(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

// UpdateUsername validates and stores a new username for the user.
func (d *Directory) UpdateUsername(ctx context.Context, id, name string) (*User, error) {
	name, err := ValidateUsername(name)
	if err != nil {
		return nil, err
	}
	if _, err := d.Get(ctx, id); err != nil {
		return nil, err
	}

	taken, err := d.store.UsernameTaken(ctx, name, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	u, err := d.store.UpdateUsername(ctx, id, name)
	if errors.Is(err, ErrUsernameConflict) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// Count returns the number of registered users.
func (d *Directory) Count(ctx context.Context) (int64, error) {
	return d.store.Count(ctx)
}
