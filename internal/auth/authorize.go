package auth

// Principal represents a user with roles and permissions resolved once per
// request. Core operations receive it explicitly; nothing reads ambient
// session state.
type Principal struct {
	User        *User
	Assignments []Assignment
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal with preloaded permissions.
func NewPrincipal(user *User, assignments []Assignment, perms []Permission) Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p.Key] = struct{}{}
	}
	return Principal{User: user, Assignments: assignments, Permissions: set}
}

// HasPermission reports whether the principal holds the capability key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// UserID returns the principal's user id, or "" for an empty principal.
func (p Principal) UserID() string {
	if p.User == nil {
		return ""
	}
	return p.User.ID
}

// IsActive reports whether the principal's account status permits operations.
func (p Principal) IsActive() bool {
	return p.User != nil && p.User.Status == UserStatusActive
}
