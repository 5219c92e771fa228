package auth

import (
	"fmt"
	"strings"
)

// Role is one of the three fixed office roles.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleLawyer Role = "LAWYER"
	RoleIntern Role = "INTERN"
)

// Roles lists every valid role, most privileged first.
var Roles = []Role{RoleAdmin, RoleLawyer, RoleIntern}

// ParseRole normalises raw into a Role. Empty input is rejected; callers that
// want a default must apply it themselves.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLawyer, RoleIntern:
		return true
	default:
		return false
	}
}

// Title is the label shown next to the signed-in user.
func (r Role) Title() string {
	switch r {
	case RoleAdmin:
		return "Sócio Administrador"
	case RoleLawyer:
		return "Advogado"
	case RoleIntern:
		return "Estagiário"
	default:
		return string(r)
	}
}
