package domain

// Role is the access level attached to a login session.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleSuperAdmin Role = "super-admin"
)

// ParseRole returns the role and whether it is one of the known roles.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleViewer, RoleSuperAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Satisfies reports whether r grants at least the access of required.
func (r Role) Satisfies(required Role) bool {
	switch required {
	case RoleViewer:
		return r == RoleViewer || r == RoleSuperAdmin
	case RoleSuperAdmin:
		return r == RoleSuperAdmin
	default:
		return false
	}
}
