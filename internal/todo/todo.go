// Package todo implements each user's personal task list.
package todo

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alecgard/taskhub/internal/apperr"
)

// Todo is a personal task owned by a single user.
type Todo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput holds the fields for a new todo.
type CreateInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// UpdateInput holds the todo fields that can be changed. Nil fields are left
// unchanged.
type UpdateInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// ListParams filters a user's todos.
type ListParams struct {
	// Completed, when set, restricts the list to todos in that state.
	Completed *bool
}

const maxTitleLength = 200

var (
	ErrNotFound     = apperr.NotFound("todo_not_found", "todo not found")
	ErrInvalidTitle = apperr.Validation("invalid_title", "title", "title must be 1-200 characters")
)

// Service provides todo operations scoped to the calling user. Todos of
// other users are reported as not found.
type Service struct {
	store Store
}

// NewService creates a new todo service.
func NewService(store Store) *Service {
	return &Service{store: store}
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

// Create adds a todo for the user.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*Todo, error) {
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return nil, err
	}
	t := &Todo{UserID: userID, Title: title, Description: in.Description}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns the user's todos, newest first.
func (s *Service) List(ctx context.Context, userID string, params ListParams) ([]*Todo, error) {
	todos, err := s.store.List(ctx, userID, params)
	if err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []*Todo{}
	}
	return todos, nil
}

// Get returns one of the user's todos.
func (s *Service) Get(ctx context.Context, userID, id string) (*Todo, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	t, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

// Update applies in to one of the user's todos.
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*Todo, error) {
	if in.Title != nil {
		title, err := normalizeTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		in.Title = &title
	}
	if !validID(id) {
		return nil, ErrNotFound
	}
	t, err := s.store.Update(ctx, userID, id, in)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

// Complete marks one of the user's todos as completed.
func (s *Service) Complete(ctx context.Context, userID, id string) (*Todo, error) {
	done := true
	return s.Update(ctx, userID, id, UpdateInput{Completed: &done})
}

// Delete removes one of the user's todos.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	ok, err := s.store.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
