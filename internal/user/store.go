package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/taskhub/internal/database"
)

// Errors returned by Store implementations when a unique constraint rejects a write.
var (
	ErrUsernameConflict = errors.New("username already exists")
	ErrContactConflict  = errors.New("phone or email already registered")
)

// Store persists users. Get methods return nil, nil when nothing matches.
type Store interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateUsername(ctx context.Context, id, username string) (*User, error)
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// PGStore provides database operations for users.
type PGStore struct {
	db database.DBTX
}

// NewPGStore creates a new user store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

const (
	usernameConstraint = "users_username_key"
	phoneConstraint    = "users_phone_key"
	emailConstraint    = "users_email_key"
)

const userColumns = `id, phone, email, username, created_at`

func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	if err := scan(&u.ID, &u.Phone, &u.Email, &u.Username, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PGStore) getBy(ctx context.Context, column, value string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.db.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value,
		).Scan(dest...)
	})
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by %s: %w", column, err)
	}
	return u, nil
}

func (s *PGStore) GetByID(ctx context.Context, id string) (*User, error) {
	return s.getBy(ctx, "id", id)
}

func (s *PGStore) GetByPhone(ctx context.Context, phone string) (*User, error) {
	return s.getBy(ctx, "phone", phone)
}

func (s *PGStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getBy(ctx, "email", email)
}

// Create inserts u. ID and CreatedAt are filled from the database.
func (s *PGStore) Create(ctx context.Context, u *User) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (phone, email, username)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		u.Phone, u.Email, u.Username,
	).Scan(&u.ID, &u.CreatedAt)
	switch {
	case database.IsUniqueViolation(err, usernameConstraint):
		return ErrUsernameConflict
	case database.IsUniqueViolation(err, phoneConstraint), database.IsUniqueViolation(err, emailConstraint):
		return ErrContactConflict
	case err != nil:
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateUsername(ctx context.Context, id, username string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.db.QueryRow(ctx,
			`UPDATE users SET username = $1 WHERE id = $2 RETURNING `+userColumns,
			username, id,
		).Scan(dest...)
	})
	switch {
	case database.IsUniqueViolation(err, usernameConstraint):
		return nil, ErrUsernameConflict
	case database.IsNoRows(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("updating username: %w", err)
	}
	return u, nil
}

func (s *PGStore) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(username) = lower($1) AND id::text <> $2)`,
		username, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return taken, nil
}

func (s *PGStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}
