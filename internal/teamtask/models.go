package teamtask

import (
	"time"

	"github.com/alecgard/taskhub/internal/apperr"
)

// Task is a task shared by every member of a team. Completion state is
// per member; IsCompleted is derived on every read and never stored.
type Task struct {
	ID               string       `json:"id"`
	TeamID           string       `json:"team_id"`
	Title            string       `json:"title"`
	Description      *string      `json:"description,omitempty"`
	CreatedBy        string       `json:"created_by"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	Completions      []Completion `json:"completions"`
	CompletionsCount int          `json:"completions_count"`
	TeamMembersCount int          `json:"team_members_count"`
	IsCompleted      bool         `json:"is_completed"`
}

// Completion records that a member finished a task.
type Completion struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	CompletedAt time.Time `json:"completed_at"`
}

// Aggregate is the completion state of a task after a member toggled it.
type Aggregate struct {
	TaskID           string `json:"task_id"`
	UserID           string `json:"user_id"`
	Completed        bool   `json:"completed"`
	CompletionsCount int    `json:"completions_count"`
	TeamMembersCount int    `json:"team_members_count"`
	IsFullyCompleted bool   `json:"is_fully_completed"`
}

// CreateInput holds the fields for a new task.
type CreateInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// UpdateInput holds the task fields that can be changed. Nil fields are left
// unchanged.
type UpdateInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

const maxTitleLength = 200

var (
	ErrTaskNotFound = apperr.NotFound("task_not_found", "task not found")
	ErrInvalidTitle = apperr.Validation("invalid_title", "title", "title must be 1-200 characters")
)

// fullyCompleted reports whether every current member has completed the task.
func fullyCompleted(completions, members int) bool {
	return members > 0 && completions == members
}
