package rbac

type Role string
type Action string

const (
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

const (
	ActionModerate Action = "moderate"
	ActionAdmin    Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleModerator:
		return action == ActionModerate
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleModerator, RoleAdmin:
		return Role(role)
	default:
		return RoleModerator
	}
}
