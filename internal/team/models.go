package team

import (
	"time"

	"github.com/alecgard/taskhub/internal/apperr"
)

// Role is a member's role within a team.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleCoOwner Role = "co_owner"
	RoleMember  Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleCoOwner, RoleMember:
		return true
	}
	return false
}

// Team is a named group of users sharing a task list.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// View is a team as seen by one of its members.
type View struct {
	Team
	Role        Role `json:"role"`
	MemberCount int  `json:"member_count"`
}

// Member is one row of a team's member list.
type Member struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// UpdateInput holds the team fields that can be changed. Nil fields are left
// unchanged.
type UpdateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

const maxNameLength = 100

var (
	ErrTeamNotFound   = apperr.NotFound("team_not_found", "team not found")
	ErrInvalidName    = apperr.Validation("invalid_team_name", "name", "team name must be 1-100 characters")
	ErrDuplicateName  = apperr.Conflict("duplicate_team_name", "name", "a team with this name already exists")
	ErrUserNotFound   = apperr.NotFound("user_not_found", "user not found")
	ErrAlreadyMember  = apperr.Conflict("already_member", "user_id", "user is already a member of this team")
	ErrMemberNotFound = apperr.NotFound("member_not_found", "user is not a member of this team")
	ErrInvalidRole    = apperr.Validation("invalid_role", "role", "role must be co_owner or member")

	ErrCannotRemoveSelf    = apperr.Validation("cannot_remove_self", "user_id", "you cannot remove yourself; transfer ownership or delete the team")
	ErrCannotChangeOwnRole = apperr.Validation("cannot_change_own_role", "user_id", "the owner cannot change their own role; transfer ownership instead")
	ErrCannotTransferSelf  = apperr.Validation("cannot_transfer_to_self", "user_id", "you already own this team")

	ErrForbidden = apperr.ErrForbidden
)
