package auth

// Permission keys understood by the booking service. Keys not present in the
// catalog are never implicitly granted.
const (
	PermView   = "view"
	PermBook   = "book"
	PermManage = "manage"
)

var BuiltinPermissions = []Permission{
	{Key: PermView, Description: "View the booking calendar"},
	{Key: PermBook, Description: "Reserve calendar dates"},
	{Key: PermManage, Description: "Provision users and manage any booking"},
}

// Builtin role names seeded by migrations.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// BuiltinRoles maps each builtin role to its default permission keys.
var BuiltinRoles = map[string][]string{
	RoleMember: {PermView, PermBook},
	RoleAdmin:  {PermView, PermBook, PermManage},
}
