package team

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/taskhub/internal/database"
)

// Errors returned by Store implementations when a constraint rejects a write.
var (
	ErrNameConflict   = errors.New("team name already exists")
	ErrMemberConflict = errors.New("membership already exists")
)

// Store persists teams and memberships. Get and Membership return a zero
// value and nil error when nothing matches.
type Store interface {
	// InTx runs fn against a store bound to a single transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	Create(ctx context.Context, t *Team) error
	Get(ctx context.Context, id string) (*Team, error)
	NameTaken(ctx context.Context, name, excludeID string) (bool, error)
	Update(ctx context.Context, id string, in UpdateInput) (*Team, error)
	SetOwner(ctx context.Context, teamID, userID string) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]*View, error)

	// Membership returns the user's role, or "" if not a member. Inside a
	// transaction the row is locked until commit.
	Membership(ctx context.Context, teamID, userID string) (Role, error)
	AddMember(ctx context.Context, teamID, userID string, role Role) error
	SetRole(ctx context.Context, teamID, userID string, role Role) error
	// RemoveMember also drops the user's completion marks on team tasks.
	RemoveMember(ctx context.Context, teamID, userID string) error
	ListMembers(ctx context.Context, teamID string) ([]*Member, error)
	MemberCount(ctx context.Context, teamID string) (int, error)
}

// PGStore is the Postgres team Store.
type PGStore struct {
	db   database.DBTX
	pool database.Beginner
	inTx bool
}

// NewPGStore creates a team store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool, pool: pool}
}

const (
	nameConstraint   = "teams_name_key"
	memberConstraint = "team_members_pkey"
)

func (s *PGStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PGStore{db: tx, pool: s.pool, inTx: true})
	})
}

const teamColumns = `id, name, description, owner_id, created_at, updated_at`

func scanTeam(row pgx.Row) (*Team, error) {
	t := &Team{}
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts t. ID and timestamps are filled from the database.
func (s *PGStore) Create(ctx context.Context, t *Team) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO teams (name, description, owner_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		t.Name, t.Description, t.OwnerID,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if database.IsUniqueViolation(err, nameConstraint) {
		return ErrNameConflict
	}
	if err != nil {
		return fmt.Errorf("creating team: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Team, error) {
	t, err := scanTeam(s.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return t, nil
}

func (s *PGStore) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM teams WHERE name = $1 AND id::text <> $2)`,
		name, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("checking team name: %w", err)
	}
	return taken, nil
}

// Update applies the non-nil fields of in and bumps updated_at.
func (s *PGStore) Update(ctx context.Context, id string, in UpdateInput) (*Team, error) {
	setClauses := []string{"updated_at = now()"}
	args := []any{}
	argIdx := 1

	if in.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *in.Name)
		argIdx++
	}
	if in.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *in.Description)
		argIdx++
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE teams SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, teamColumns)

	t, err := scanTeam(s.db.QueryRow(ctx, query, args...))
	switch {
	case database.IsUniqueViolation(err, nameConstraint):
		return nil, ErrNameConflict
	case database.IsNoRows(err):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("updating team: %w", err)
	}
	return t, nil
}

func (s *PGStore) SetOwner(ctx context.Context, teamID, userID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE teams SET owner_id = $1, updated_at = now() WHERE id = $2`, userID, teamID)
	if err != nil {
		return fmt.Errorf("setting team owner: %w", err)
	}
	return nil
}

// Delete removes the team. Members, tasks and completions cascade.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting team: %w", err)
	}
	return nil
}

func (s *PGStore) ListForUser(ctx context.Context, userID string) ([]*View, error) {
	rows, err := s.db.Query(ctx,
		`SELECT t.id, t.name, t.description, t.owner_id, t.created_at, t.updated_at,
		        m.role,
		        (SELECT count(*) FROM team_members c WHERE c.team_id = t.id)
		 FROM teams t
		 JOIN team_members m ON m.team_id = t.id
		 WHERE m.user_id = $1
		 ORDER BY t.created_at, t.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	var views []*View
	for rows.Next() {
		v := &View{}
		var role string
		if err := rows.Scan(&v.ID, &v.Name, &v.Description, &v.OwnerID, &v.CreatedAt, &v.UpdatedAt,
			&role, &v.MemberCount); err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		v.Role = Role(role)
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating teams: %w", err)
	}
	return views, nil
}

func (s *PGStore) Membership(ctx context.Context, teamID, userID string) (Role, error) {
	query := `SELECT role FROM team_members WHERE team_id = $1 AND user_id = $2`
	if s.inTx {
		query += ` FOR UPDATE`
	}
	var role string
	err := s.db.QueryRow(ctx, query, teamID, userID).Scan(&role)
	if database.IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting membership: %w", err)
	}
	return Role(role), nil
}

func (s *PGStore) AddMember(ctx context.Context, teamID, userID string, role Role) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3)`,
		teamID, userID, string(role),
	)
	if database.IsUniqueViolation(err, memberConstraint) {
		return ErrMemberConflict
	}
	if err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

func (s *PGStore) SetRole(ctx context.Context, teamID, userID string, role Role) error {
	_, err := s.db.Exec(ctx,
		`UPDATE team_members SET role = $1 WHERE team_id = $2 AND user_id = $3`,
		string(role), teamID, userID,
	)
	if err != nil {
		return fmt.Errorf("setting member role: %w", err)
	}
	return nil
}

// RemoveMember deletes the membership together with the user's completion
// marks on the team's tasks, so a later re-invite starts with none.
func (s *PGStore) RemoveMember(ctx context.Context, teamID, userID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM team_task_completions c
		 USING team_tasks t
		 WHERE t.id = c.task_id AND t.team_id = $1 AND c.user_id = $2`,
		teamID, userID)
	if err != nil {
		return fmt.Errorf("removing member completions: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}
	return nil
}

func (s *PGStore) ListMembers(ctx context.Context, teamID string) ([]*Member, error) {
	rows, err := s.db.Query(ctx,
		`SELECT m.user_id, u.username, m.role, m.joined_at
		 FROM team_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.team_id = $1
		 ORDER BY m.joined_at, m.user_id`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		var role string
		if err := rows.Scan(&m.UserID, &m.Username, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		m.Role = Role(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}
	return members, nil
}

func (s *PGStore) MemberCount(ctx context.Context, teamID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM team_members WHERE team_id = $1`, teamID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return n, nil
}
