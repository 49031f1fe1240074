// Package teamtask implements the task list shared by a team, including the
// per-member completion marks and the derived "fully completed" state.
package teamtask

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alecgard/taskhub/internal/team"
)

// Teams resolves the caller's view of a team, failing with
// team.ErrTeamNotFound or team.ErrForbidden for non-members.
type Teams interface {
	Get(ctx context.Context, teamID, requesterID string) (*team.View, error)
}

// Service provides team task operations. Every operation requires team
// membership; no role beyond that is needed.
type Service struct {
	store Store
	teams Teams
}

// NewService creates a new team task service.
func NewService(store Store, teams Teams) *Service {
	return &Service{store: store, teams: teams}
}

func (s *Service) authorize(ctx context.Context, teamID, userID string, action team.Action) (*team.View, error) {
	v, err := s.teams.Get(ctx, teamID, userID)
	if err != nil {
		return nil, err
	}
	if !team.Allowed(v.Role, action) {
		return nil, team.ErrForbidden
	}
	return v, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return "", ErrInvalidTitle
	}
	return title, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Create adds a task to the team.
func (s *Service) Create(ctx context.Context, teamID, userID string, in CreateInput) (*Task, error) {
	v, err := s.authorize(ctx, teamID, userID, team.ActionManageTasks)
	if err != nil {
		return nil, err
	}
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return nil, err
	}

	t := &Task{TeamID: teamID, Title: title, Description: in.Description, CreatedBy: userID}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	t.Completions = []Completion{}
	t.TeamMembersCount = v.MemberCount

	slog.Info("team task created", "team_id", teamID, "task_id", t.ID, "by", userID)
	return t, nil
}

// List returns the team's tasks with their live completion state.
func (s *Service) List(ctx context.Context, teamID, userID string) ([]*Task, error) {
	v, err := s.authorize(ctx, teamID, userID, team.ActionView)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.List(ctx, teamID)
	if err != nil {
		return nil, err
	}
	completions, err := s.store.TeamCompletions(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if tasks == nil {
		tasks = []*Task{}
	}
	for _, t := range tasks {
		fill(t, completions[t.ID], v.MemberCount)
	}
	return tasks, nil
}

func fill(t *Task, completions []Completion, members int) {
	if completions == nil {
		completions = []Completion{}
	}
	t.Completions = completions
	t.CompletionsCount = len(completions)
	t.TeamMembersCount = members
	t.IsCompleted = fullyCompleted(len(completions), members)
}

func (s *Service) load(ctx context.Context, teamID, taskID string) (*Task, error) {
	if !validID(taskID) {
		return nil, ErrTaskNotFound
	}
	t, err := s.store.Get(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// Get returns a single task with its live completion state.
func (s *Service) Get(ctx context.Context, teamID, taskID, userID string) (*Task, error) {
	v, err := s.authorize(ctx, teamID, userID, team.ActionView)
	if err != nil {
		return nil, err
	}
	t, err := s.load(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	completions, err := s.store.Completions(ctx, taskID)
	if err != nil {
		return nil, err
	}
	fill(t, completions, v.MemberCount)
	return t, nil
}

// Update changes a task's title or description.
func (s *Service) Update(ctx context.Context, teamID, taskID, userID string, in UpdateInput) (*Task, error) {
	if _, err := s.authorize(ctx, teamID, userID, team.ActionManageTasks); err != nil {
		return nil, err
	}
	if in.Title != nil {
		title, err := normalizeTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		in.Title = &title
	}
	if !validID(taskID) {
		return nil, ErrTaskNotFound
	}

	t, err := s.store.Update(ctx, teamID, taskID, in)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	return s.Get(ctx, teamID, t.ID, userID)
}

// Delete removes a task and its completion marks.
func (s *Service) Delete(ctx context.Context, teamID, taskID, userID string) error {
	if _, err := s.authorize(ctx, teamID, userID, team.ActionManageTasks); err != nil {
		return err
	}
	if !validID(taskID) {
		return ErrTaskNotFound
	}
	ok, err := s.store.Delete(ctx, teamID, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTaskNotFound
	}
	slog.Info("team task deleted", "team_id", teamID, "task_id", taskID, "by", userID)
	return nil
}

// SetCompletion marks or unmarks the task as completed by the caller and
// returns the resulting aggregate. Repeating the same value is a no-op that
// still reports the current state.
func (s *Service) SetCompletion(ctx context.Context, teamID, taskID, userID string, completed bool) (*Aggregate, error) {
	if _, err := s.authorize(ctx, teamID, userID, team.ActionCompleteTasks); err != nil {
		return nil, err
	}
	if !validID(taskID) {
		return nil, ErrTaskNotFound
	}

	agg := &Aggregate{TaskID: taskID, UserID: userID, Completed: completed}
	err := s.store.InTx(ctx, func(tx Store) error {
		// Membership is re-read under lock so a concurrent removal cannot
		// slip in between the check and the write.
		role, err := tx.MemberRole(ctx, teamID, userID)
		if err != nil {
			return err
		}
		if !team.Allowed(role, team.ActionCompleteTasks) {
			return team.ErrForbidden
		}
		t, err := tx.Get(ctx, teamID, taskID)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTaskNotFound
		}
		if err := tx.SetCompletion(ctx, taskID, userID, completed); err != nil {
			return err
		}
		agg.CompletionsCount, agg.TeamMembersCount, err = tx.Counts(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	agg.IsFullyCompleted = fullyCompleted(agg.CompletionsCount, agg.TeamMembersCount)
	return agg, nil
}

// Completions lists who has completed the task.
func (s *Service) Completions(ctx context.Context, teamID, taskID, userID string) ([]Completion, error) {
	if _, err := s.authorize(ctx, teamID, userID, team.ActionView); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, teamID, taskID); err != nil {
		return nil, err
	}
	completions, err := s.store.Completions(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if completions == nil {
		completions = []Completion{}
	}
	return completions, nil
}
