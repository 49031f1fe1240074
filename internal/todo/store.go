package todo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/taskhub/internal/database"
)

// Store persists todos. Every method is scoped to the owning user; Get and
// Update return nil, nil when the user has no such todo.
type Store interface {
	Create(ctx context.Context, t *Todo) error
	Get(ctx context.Context, userID, id string) (*Todo, error)
	List(ctx context.Context, userID string, params ListParams) ([]*Todo, error)
	Update(ctx context.Context, userID, id string, in UpdateInput) (*Todo, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// PGStore is the Postgres todo Store.
type PGStore struct {
	db database.DBTX
}

// NewPGStore creates a todo store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

const todoColumns = `id, user_id, title, description, completed, created_at, updated_at`

func scanTodo(row pgx.Row) (*Todo, error) {
	t := &Todo{}
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PGStore) Create(ctx context.Context, t *Todo) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO todos (user_id, title, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, completed, created_at, updated_at`,
		t.UserID, t.Title, t.Description,
	).Scan(&t.ID, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating todo: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, userID, id string) (*Todo, error) {
	t, err := scanTodo(s.db.QueryRow(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE user_id = $1 AND id = $2`, userID, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting todo: %w", err)
	}
	return t, nil
}

func (s *PGStore) List(ctx context.Context, userID string, params ListParams) ([]*Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE user_id = $1`
	args := []any{userID}
	if params.Completed != nil {
		query += ` AND completed = $2`
		args = append(args, *params.Completed)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	defer rows.Close()

	var todos []*Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating todos: %w", err)
	}
	return todos, nil
}

func (s *PGStore) Update(ctx context.Context, userID, id string, in UpdateInput) (*Todo, error) {
	setClauses := []string{"updated_at = now()"}
	args := []any{}
	argIdx := 1

	if in.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argIdx))
		args = append(args, *in.Title)
		argIdx++
	}
	if in.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *in.Description)
		argIdx++
	}
	if in.Completed != nil {
		setClauses = append(setClauses, fmt.Sprintf("completed = $%d", argIdx))
		args = append(args, *in.Completed)
		argIdx++
	}
	args = append(args, userID, id)

	query := fmt.Sprintf(`UPDATE todos SET %s WHERE user_id = $%d AND id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, argIdx+1, todoColumns)

	t, err := scanTodo(s.db.QueryRow(ctx, query, args...))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("updating todo: %w", err)
	}
	return t, nil
}

func (s *PGStore) Delete(ctx context.Context, userID, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM todos WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return false, fmt.Errorf("deleting todo: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
