// Package team implements teams, their memberships and the role-based
// permission rules that gate every team operation.
package team

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// UserLookup reports whether a user exists.
type UserLookup interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Service provides team operations with permission checks.
type Service struct {
	store Store
	users UserLookup
}

// NewService creates a new team service.
func NewService(store Store, users UserLookup) *Service {
	return &Service{store: store, users: users}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// authorize loads the team and the caller's role, failing with
// ErrTeamNotFound before ErrForbidden so non-members learn nothing more than
// whether the team exists.
func authorize(ctx context.Context, st Store, teamID, userID string, action Action) (*Team, Role, error) {
	if !validID(teamID) {
		return nil, "", ErrTeamNotFound
	}
	t, err := st.Get(ctx, teamID)
	if err != nil {
		return nil, "", err
	}
	if t == nil {
		return nil, "", ErrTeamNotFound
	}
	role, err := st.Membership(ctx, teamID, userID)
	if err != nil {
		return nil, "", err
	}
	if !Allowed(role, action) {
		return nil, "", ErrForbidden
	}
	return t, role, nil
}

// Create creates a team owned by ownerID together with the owner membership.
func (s *Service) Create(ctx context.Context, ownerID, name string, description *string) (*View, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	t := &Team{Name: name, Description: description, OwnerID: ownerID}
	err = s.store.InTx(ctx, func(tx Store) error {
		taken, err := tx.NameTaken(ctx, name, "")
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateName
		}
		if err := tx.Create(ctx, t); err != nil {
			return err
		}
		return tx.AddMember(ctx, t.ID, ownerID, RoleOwner)
	})
	if errors.Is(err, ErrNameConflict) {
		return nil, ErrDuplicateName
	}
	if err != nil {
		return nil, err
	}

	slog.Info("team created", "team_id", t.ID, "owner_id", ownerID)
	return &View{Team: *t, Role: RoleOwner, MemberCount: 1}, nil
}

// Get returns the team as seen by the requester.
func (s *Service) Get(ctx context.Context, teamID, requesterID string) (*View, error) {
	t, role, err := authorize(ctx, s.store, teamID, requesterID, ActionView)
	if err != nil {
		return nil, err
	}
	n, err := s.store.MemberCount(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return &View{Team: *t, Role: role, MemberCount: n}, nil
}

// ListForUser returns every team the user belongs to.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*View, error) {
	views, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []*View{}
	}
	return views, nil
}

// Update changes the team's name or description. Owners and co-owners only.
func (s *Service) Update(ctx context.Context, teamID, callerID string, in UpdateInput) (*View, error) {
	if in.Name != nil {
		name, err := normalizeName(*in.Name)
		if err != nil {
			return nil, err
		}
		in.Name = &name
	}

	var view *View
	err := s.store.InTx(ctx, func(tx Store) error {
		_, role, err := authorize(ctx, tx, teamID, callerID, ActionUpdate)
		if err != nil {
			return err
		}
		if in.Name != nil {
			taken, err := tx.NameTaken(ctx, *in.Name, teamID)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateName
			}
		}
		t, err := tx.Update(ctx, teamID, in)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTeamNotFound
		}
		n, err := tx.MemberCount(ctx, teamID)
		if err != nil {
			return err
		}
		view = &View{Team: *t, Role: role, MemberCount: n}
		return nil
	})
	if errors.Is(err, ErrNameConflict) {
		return nil, ErrDuplicateName
	}
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Delete removes the team and everything in it. Owner only.
func (s *Service) Delete(ctx context.Context, teamID, callerID string) error {
	err := s.store.InTx(ctx, func(tx Store) error {
		if _, _, err := authorize(ctx, tx, teamID, callerID, ActionDelete); err != nil {
			return err
		}
		return tx.Delete(ctx, teamID)
	})
	if err != nil {
		return err
	}
	slog.Info("team deleted", "team_id", teamID, "by", callerID)
	return nil
}

// Invite adds targetID to the team as a member. Owners and co-owners only.
func (s *Service) Invite(ctx context.Context, teamID, inviterID, targetID string) (*Member, error) {
	err := s.store.InTx(ctx, func(tx Store) error {
		if _, _, err := authorize(ctx, tx, teamID, inviterID, ActionInvite); err != nil {
			return err
		}
		if !validID(targetID) {
			return ErrUserNotFound
		}
		ok, err := s.users.Exists(ctx, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUserNotFound
		}
		role, err := tx.Membership(ctx, teamID, targetID)
		if err != nil {
			return err
		}
		if role != "" {
			return ErrAlreadyMember
		}
		return tx.AddMember(ctx, teamID, targetID, RoleMember)
	})
	if errors.Is(err, ErrMemberConflict) {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, err
	}

	slog.Info("member invited", "team_id", teamID, "user_id", targetID, "by", inviterID)
	return s.member(ctx, teamID, targetID)
}

func (s *Service) member(ctx context.Context, teamID, userID string) (*Member, error) {
	members, err := s.store.ListMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.UserID == userID {
			return m, nil
		}
	}
	return nil, ErrMemberNotFound
}

// UpdateMemberRole sets another member's role to co_owner or member. Owner
// only. Ownership moves through TransferOwnership instead.
func (s *Service) UpdateMemberRole(ctx context.Context, teamID, ownerID, targetID string, newRole Role) (*Member, error) {
	err := s.store.InTx(ctx, func(tx Store) error {
		if _, _, err := authorize(ctx, tx, teamID, ownerID, ActionChangeRole); err != nil {
			return err
		}
		if newRole != RoleCoOwner && newRole != RoleMember {
			return ErrInvalidRole
		}
		if targetID == ownerID {
			return ErrCannotChangeOwnRole
		}
		if !validID(targetID) {
			return ErrMemberNotFound
		}
		current, err := tx.Membership(ctx, teamID, targetID)
		if err != nil {
			return err
		}
		if current == "" {
			return ErrMemberNotFound
		}
		if current == newRole {
			return nil
		}
		return tx.SetRole(ctx, teamID, targetID, newRole)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("member role changed", "team_id", teamID, "user_id", targetID, "role", newRole)
	return s.member(ctx, teamID, targetID)
}

// TransferOwnership makes targetID the owner and demotes the caller to
// co_owner. Owner only.
func (s *Service) TransferOwnership(ctx context.Context, teamID, ownerID, targetID string) (*View, error) {
	err := s.store.InTx(ctx, func(tx Store) error {
		if _, _, err := authorize(ctx, tx, teamID, ownerID, ActionTransfer); err != nil {
			return err
		}
		if targetID == ownerID {
			return ErrCannotTransferSelf
		}
		if !validID(targetID) {
			return ErrMemberNotFound
		}
		role, err := tx.Membership(ctx, teamID, targetID)
		if err != nil {
			return err
		}
		if role == "" {
			return ErrMemberNotFound
		}
		// Demote first: a team never has two owner rows.
		if err := tx.SetRole(ctx, teamID, ownerID, RoleCoOwner); err != nil {
			return err
		}
		if err := tx.SetRole(ctx, teamID, targetID, RoleOwner); err != nil {
			return err
		}
		return tx.SetOwner(ctx, teamID, targetID)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("ownership transferred", "team_id", teamID, "from", ownerID, "to", targetID)
	return s.Get(ctx, teamID, ownerID)
}

// RemoveMember removes targetID from the team. Owners may remove anyone but
// themselves; co-owners may remove plain members; members may remove no one.
func (s *Service) RemoveMember(ctx context.Context, teamID, removerID, targetID string) error {
	err := s.store.InTx(ctx, func(tx Store) error {
		_, removerRole, err := authorize(ctx, tx, teamID, removerID, ActionView)
		if err != nil {
			return err
		}
		if targetID == removerID {
			return ErrCannotRemoveSelf
		}
		if !validID(targetID) {
			return ErrMemberNotFound
		}
		targetRole, err := tx.Membership(ctx, teamID, targetID)
		if err != nil {
			return err
		}
		if targetRole == "" {
			return ErrMemberNotFound
		}
		if !CanRemove(removerRole, targetRole) {
			return ErrForbidden
		}
		return tx.RemoveMember(ctx, teamID, targetID)
	})
	if err != nil {
		return err
	}
	slog.Info("member removed", "team_id", teamID, "user_id", targetID, "by", removerID)
	return nil
}

// ListMembers returns the team's members. Any member may list.
func (s *Service) ListMembers(ctx context.Context, teamID, requesterID string) ([]*Member, error) {
	if _, _, err := authorize(ctx, s.store, teamID, requesterID, ActionView); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []*Member{}
	}
	return members, nil
}

// Membership returns the user's role in the team, failing with
// ErrTeamNotFound or ErrForbidden like Get.
func (s *Service) Membership(ctx context.Context, teamID, userID string) (Role, error) {
	_, role, err := authorize(ctx, s.store, teamID, userID, ActionView)
	return role, err
}
