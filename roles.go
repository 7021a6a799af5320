package auth

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is the default role assigned at registration.
	RoleUser UserRole = "user"
	// RoleAdmin gates account administration (list, change-role, delete).
	RoleAdmin UserRole = "admin"
)

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// RoleIn is a pure set-membership check. There is no hierarchy between
// roles: an admin-only endpoint must declare RoleAdmin explicitly, it is
// never implied by membership elsewhere.
func RoleIn(role UserRole, required ...UserRole) bool {
	for _, r := range required {
		if role == r {
			return true
		}
	}
	return false
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// AllRoles returns the predefined roles.
func AllRoles() []UserRole {
	return []UserRole{RoleUser, RoleAdmin}
}
