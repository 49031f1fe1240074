package team

// Action is an operation gated by team role.
type Action string

const (
	ActionView          Action = "view"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionInvite        Action = "invite"
	ActionChangeRole    Action = "change_role"
	ActionTransfer      Action = "transfer_ownership"
	ActionManageTasks   Action = "manage_tasks"
	ActionCompleteTasks Action = "complete_tasks"
)

var permissions = map[Role]map[Action]bool{
	RoleOwner: {
		ActionView:          true,
		ActionUpdate:        true,
		ActionDelete:        true,
		ActionInvite:        true,
		ActionChangeRole:    true,
		ActionTransfer:      true,
		ActionManageTasks:   true,
		ActionCompleteTasks: true,
	},
	RoleCoOwner: {
		ActionView:          true,
		ActionUpdate:        true,
		ActionInvite:        true,
		ActionManageTasks:   true,
		ActionCompleteTasks: true,
	},
	RoleMember: {
		ActionView:          true,
		ActionManageTasks:   true,
		ActionCompleteTasks: true,
	},
}

// Allowed reports whether a member with role may perform action. Unknown
// roles, including the empty role of a non-member, are denied everything.
func Allowed(role Role, action Action) bool {
	return permissions[role][action]
}

var removable = map[Role]map[Role]bool{
	RoleOwner:   {RoleCoOwner: true, RoleMember: true},
	RoleCoOwner: {RoleMember: true},
}

// CanRemove reports whether a member with role remover may remove a different
// member with role target. Self-removal is handled separately and is never
// allowed.
func CanRemove(remover, target Role) bool {
	return removable[remover][target]
}
