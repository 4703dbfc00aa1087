package shared

// Admin dashboard permissions. Names follow the `action:resource` convention
// and are matched exactly.
const (
	PermUsersRead        = "read:users"
	PermUsersCreate      = "create:users"
	PermUsersUpdate      = "update:users"
	PermUsersDisable     = "disable:users"
	PermUsersSoftDelete  = "soft-delete:users"
	PermUsersHardDelete  = "hard-delete:users"
	PermUsersUpdateRole  = "update:users-role"
	PermUsersReadDetails = "read:users-details"

	PermRolesRead              = "read:roles"
	PermRolesAdd               = "add:roles"
	PermRolesReadDetails       = "read:roles-details"
	PermRolesUpdate            = "update:roles"
	PermRolesDelete            = "delete:roles"
	PermRolesUpdatePermissions = "update:roles-permissions"
	PermRolesUpdatePages       = "update:roles-pages"

	PermPermissionsRead   = "read:permissions"
	PermPermissionsAdd    = "add:permissions"
	PermPermissionsUpdate = "update:permissions"
	PermPermissionsDelete = "delete:permissions"

	PermPagesRead        = "read:pages"
	PermPagesReadDetails = "read:pages-details"
	PermPagesAdd         = "add:pages"
	PermPagesUpdate      = "update:pages"
	PermPagesDelete      = "delete:pages"
)

// CoreScopes lists every permission the admin API checks.
func CoreScopes() []string {
	return []string{
		PermUsersRead,
		PermUsersCreate,
		PermUsersUpdate,
		PermUsersDisable,
		PermUsersSoftDelete,
		PermUsersHardDelete,
		PermUsersUpdateRole,
		PermUsersReadDetails,
		PermRolesRead,
		PermRolesAdd,
		PermRolesReadDetails,
		PermRolesUpdate,
		PermRolesDelete,
		PermRolesUpdatePermissions,
		PermRolesUpdatePages,
		PermPermissionsRead,
		PermPermissionsAdd,
		PermPermissionsUpdate,
		PermPermissionsDelete,
		PermPagesRead,
		PermPagesReadDetails,
		PermPagesAdd,
		PermPagesUpdate,
		PermPagesDelete,
	}
}
