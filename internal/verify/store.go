package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/taskhub/internal/database"
)

// ErrDuplicateCode is returned by CodeStore.Insert when a code already exists
// for the channel and target.
var ErrDuplicateCode = errors.New("verification code already exists for target")

// CodeStore persists verification codes. At most one row exists per
// (channel, target); the store enforces this with a unique constraint.
type CodeStore interface {
	// InTx runs fn against a store bound to a single transaction.
	InTx(ctx context.Context, fn func(tx CodeStore) error) error
	// Get returns the code for the target, live or expired, or nil if none.
	// Inside a transaction the row is locked until commit.
	Get(ctx context.Context, ch Channel, target string) (*Code, error)
	Insert(ctx context.Context, c *Code) error
	// IncrementAttempts bumps the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountLive(ctx context.Context, now time.Time) (int64, error)
}

// PGStore is the Postgres CodeStore.
type PGStore struct {
	db   database.DBTX
	pool database.Beginner
	inTx bool
}

// NewPGStore creates a code store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool, pool: pool}
}

const uniqueTargetConstraint = "verification_codes_channel_target_key"

func (s *PGStore) InTx(ctx context.Context, fn func(tx CodeStore) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PGStore{db: tx, pool: s.pool, inTx: true})
	})
}

func (s *PGStore) Get(ctx context.Context, ch Channel, target string) (*Code, error) {
	query := `SELECT id, channel, target, code_hash, attempts, created_at, expires_at
		 FROM verification_codes WHERE channel = $1 AND target = $2`
	if s.inTx {
		query += ` FOR UPDATE`
	}

	c := &Code{}
	var channel string
	err := s.db.QueryRow(ctx, query, string(ch), target).Scan(
		&c.ID, &channel, &c.Target, &c.CodeHash, &c.Attempts, &c.CreatedAt, &c.ExpiresAt,
	)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting verification code: %w", err)
	}
	c.Channel = Channel(channel)
	return c, nil
}

func (s *PGStore) Insert(ctx context.Context, c *Code) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO verification_codes (id, channel, target, code_hash, attempts, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, string(c.Channel), c.Target, c.CodeHash, c.Attempts, c.CreatedAt, c.ExpiresAt,
	)
	if database.IsUniqueViolation(err, uniqueTargetConstraint) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("inserting verification code: %w", err)
	}
	return nil
}

func (s *PGStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.QueryRow(ctx,
		`UPDATE verification_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("incrementing attempts: %w", err)
	}
	return attempts, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM verification_codes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting verification code: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM verification_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) CountLive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM verification_codes WHERE expires_at > $1`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting live codes: %w", err)
	}
	return n, nil
}
