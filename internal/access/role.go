// Package access is the single authorization choke point. Every backend
// entry point that touches a project composes through the middleware
// builders here; direct role checks against the database belong nowhere
// else.
package access

// Role is the ordinal permission level within one project.
// Comparison is numeric: "requires editor" is satisfied by editor and admin.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleNone:   "",
	RoleViewer: "viewer",
	RoleEditor: "editor",
	RoleAdmin:  "admin",
}

func (r Role) String() string { return roleNames[r] }

// AtLeast reports whether r satisfies the required minimum role.
func (r Role) AtLeast(min Role) bool { return r >= min }

// ParseRole maps a stored role string to its ordinal. Unknown strings map
// to RoleNone so a corrupt row can never grant access.
func ParseRole(s string) Role {
	switch s {
	case "viewer":
		return RoleViewer
	case "editor":
		return RoleEditor
	case "admin":
		return RoleAdmin
	default:
		return RoleNone
	}
}
