package teamtask

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/taskhub/internal/database"
	"github.com/alecgard/taskhub/internal/team"
)

// Store persists team tasks and their completion marks. Get and Update
// return nil, nil when the task does not exist in the team.
//
// Completions and Counts only consider completion rows whose user is still
// a member of the task's team.
type Store interface {
	// InTx runs fn against a store bound to a single transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, teamID, taskID string) (*Task, error)
	List(ctx context.Context, teamID string) ([]*Task, error)
	Update(ctx context.Context, teamID, taskID string, in UpdateInput) (*Task, error)
	Delete(ctx context.Context, teamID, taskID string) (bool, error)

	// SetCompletion inserts or deletes the user's completion row. Both
	// directions are idempotent.
	SetCompletion(ctx context.Context, taskID, userID string, completed bool) error
	Completions(ctx context.Context, taskID string) ([]Completion, error)
	// TeamCompletions returns the completions of every task in the team,
	// keyed by task id.
	TeamCompletions(ctx context.Context, teamID string) (map[string][]Completion, error)
	// Counts returns the member-filtered completion count and the current
	// member count of the task's team.
	Counts(ctx context.Context, taskID string) (completions, members int, err error)
	// MemberRole returns the user's role in the team, or "" if not a member.
	// Inside a transaction the membership row is held until commit.
	MemberRole(ctx context.Context, teamID, userID string) (team.Role, error)
}

// PGStore is the Postgres team task Store.
type PGStore struct {
	db   database.DBTX
	pool database.Beginner
	inTx bool
}

// NewPGStore creates a team task store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool, pool: pool}
}

func (s *PGStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PGStore{db: tx, pool: s.pool, inTx: true})
	})
}

const taskColumns = `id, team_id, title, description, created_by, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	t := &Task{}
	err := row.Scan(&t.ID, &t.TeamID, &t.Title, &t.Description, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PGStore) Create(ctx context.Context, t *Task) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO team_tasks (team_id, title, description, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		t.TeamID, t.Title, t.Description, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating team task: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, teamID, taskID string) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM team_tasks WHERE team_id = $1 AND id = $2`
	if s.inTx {
		query += ` FOR UPDATE`
	}
	t, err := scanTask(s.db.QueryRow(ctx, query, teamID, taskID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting team task: %w", err)
	}
	return t, nil
}

func (s *PGStore) List(ctx context.Context, teamID string) ([]*Task, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+taskColumns+` FROM team_tasks WHERE team_id = $1 ORDER BY created_at DESC, id`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing team tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning team task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating team tasks: %w", err)
	}
	return tasks, nil
}

func (s *PGStore) Update(ctx context.Context, teamID, taskID string, in UpdateInput) (*Task, error) {
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
	args = append(args, teamID, taskID)

	query := fmt.Sprintf(`UPDATE team_tasks SET %s WHERE team_id = $%d AND id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, argIdx+1, taskColumns)

	t, err := scanTask(s.db.QueryRow(ctx, query, args...))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("updating team task: %w", err)
	}
	return t, nil
}

func (s *PGStore) Delete(ctx context.Context, teamID, taskID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM team_tasks WHERE team_id = $1 AND id = $2`, teamID, taskID)
	if err != nil {
		return false, fmt.Errorf("deleting team task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) SetCompletion(ctx context.Context, taskID, userID string, completed bool) error {
	var err error
	if completed {
		_, err = s.db.Exec(ctx,
			`INSERT INTO team_task_completions (task_id, user_id) VALUES ($1, $2)
			 ON CONFLICT (task_id, user_id) DO NOTHING`,
			taskID, userID)
	} else {
		_, err = s.db.Exec(ctx,
			`DELETE FROM team_task_completions WHERE task_id = $1 AND user_id = $2`,
			taskID, userID)
	}
	if err != nil {
		return fmt.Errorf("setting completion: %w", err)
	}
	return nil
}

// memberCompletions selects completion rows whose user is a current member
// of the task's team.
const memberCompletions = `
	FROM team_task_completions c
	JOIN team_tasks t ON t.id = c.task_id
	JOIN team_members m ON m.team_id = t.team_id AND m.user_id = c.user_id
	JOIN users u ON u.id = c.user_id`

func (s *PGStore) Completions(ctx context.Context, taskID string) ([]Completion, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.user_id, u.username, c.completed_at`+memberCompletions+`
		 WHERE c.task_id = $1
		 ORDER BY c.completed_at, c.user_id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}
	defer rows.Close()

	out := []Completion{}
	for rows.Next() {
		var c Completion
		if err := rows.Scan(&c.UserID, &c.Username, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating completions: %w", err)
	}
	return out, nil
}

func (s *PGStore) TeamCompletions(ctx context.Context, teamID string) (map[string][]Completion, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.task_id, c.user_id, u.username, c.completed_at`+memberCompletions+`
		 WHERE t.team_id = $1
		 ORDER BY c.completed_at, c.user_id`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing team completions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Completion)
	for rows.Next() {
		var taskID string
		var c Completion
		if err := rows.Scan(&taskID, &c.UserID, &c.Username, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		out[taskID] = append(out[taskID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating team completions: %w", err)
	}
	return out, nil
}

func (s *PGStore) Counts(ctx context.Context, taskID string) (int, int, error) {
	var completions, members int
	err := s.db.QueryRow(ctx,
		`SELECT
		   (SELECT count(*)`+memberCompletions+` WHERE c.task_id = $1),
		   (SELECT count(*) FROM team_members m
		      JOIN team_tasks t ON t.team_id = m.team_id
		     WHERE t.id = $1)`,
		taskID,
	).Scan(&completions, &members)
	if err != nil {
		return 0, 0, fmt.Errorf("counting completions: %w", err)
	}
	return completions, members, nil
}

func (s *PGStore) MemberRole(ctx context.Context, teamID, userID string) (team.Role, error) {
	query := `SELECT role FROM team_members WHERE team_id = $1 AND user_id = $2`
	if s.inTx {
		query += ` FOR SHARE`
	}
	var role string
	err := s.db.QueryRow(ctx, query, teamID, userID).Scan(&role)
	if database.IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting membership: %w", err)
	}
	return team.Role(role), nil
}
