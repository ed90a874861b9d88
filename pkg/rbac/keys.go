package rbac

// System role keys
const (
	RolePlatformAdmin = "platform_admin"
	RoleOwner         = "owner"
	RoleStaff         = "staff"
	RoleViewer        = "viewer"
)
