package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/taskhub/internal/database"
)

// Store persists opaque session mappings keyed by token hash.
type Store interface {
	Create(ctx context.Context, tokenHash, userID string) error
	// UserID returns the owner of the session, or "" if there is none. A
	// successful lookup refreshes last_used_at.
	UserID(ctx context.Context, tokenHash string) (string, error)
	Delete(ctx context.Context, tokenHash string) (bool, error)
	DeleteForUser(ctx context.Context, userID string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// PGStore is the Postgres session Store.
type PGStore struct {
	db database.DBTX
}

// NewPGStore creates a session store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

func (s *PGStore) Create(ctx context.Context, tokenHash, userID string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id) VALUES ($1, $2)`,
		tokenHash, userID,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (s *PGStore) UserID(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRow(ctx,
		`UPDATE sessions SET last_used_at = now()
		 WHERE token_hash = $1
		 RETURNING user_id`,
		tokenHash,
	).Scan(&userID)
	if database.IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving session: %w", err)
	}
	return userID, nil
}

func (s *PGStore) Delete(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}
