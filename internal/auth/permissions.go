package auth

// Permissions is the single authorization surface. Every create, edit, delete
// and list-scoping decision goes through one of these predicates so a change
// to role semantics lands in one place.
type Permissions struct {
	role Role
}

// For derives the permission set of the session user. A nil user (no session)
// is granted nothing.
func For(u *User) Permissions {
	if u == nil {
		return Permissions{}
	}
	return Permissions{role: u.Role}
}

// ForRole is For without a user record.
func ForRole(r Role) Permissions {
	return Permissions{role: r}
}

// Role returns the role the predicates were derived from.
func (p Permissions) Role() Role { return p.role }

// CanCreate gates creation of contacts, cases and events.
func (p Permissions) CanCreate() bool { return p.role == RoleAdmin }

// CanEdit gates general edits, including the event status toggle. Ownership is
// not considered.
func (p Permissions) CanEdit() bool { return p.role == RoleAdmin }

// CanDelete gates deletions.
func (p Permissions) CanDelete() bool { return p.role == RoleAdmin }

// CanViewAll reports whether the session sees every event and the case list.
func (p Permissions) CanViewAll() bool {
	return p.role == RoleAdmin || p.role == RoleLawyer
}

// CanReschedule gates date mutation (drag-to-reschedule). It is checked
// independently of CanEdit, both when a reschedule starts and again when the
// date is written.
func (p Permissions) CanReschedule() bool { return p.role == RoleAdmin }
