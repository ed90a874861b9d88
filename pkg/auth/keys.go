package auth

// Permission keys checked by the HTTP routes. Every key here is part of the
// seeded catalog.
const (
	PermPermission       = "permission"
	PermPermissionRead   = "permission.read"
	PermPermissionManage = "permission.manage"

	PermRole       = "role"
	PermRoleCreate = "role.create"
	PermRoleRead   = "role.read"
	PermRoleUpdate = "role.update"
	PermRoleDelete = "role.delete"

	PermAccount       = "account"
	PermAccountCreate = "account.create"
	PermAccountRead   = "account.read"
	PermAccountDelete = "account.delete"

	PermProduct       = "product"
	PermProductCreate = "product.create"
	PermProductRead   = "product.read"
	PermProductUpdate = "product.update"
	PermProductDelete = "product.delete"

	PermMedicineCategory       = "medicine_category"
	PermMedicineCategoryManage = "medicine_category.manage"

	PermArticle        = "article"
	PermArticleCreate  = "article.create"
	PermArticleRead    = "article.read"
	PermArticleUpdate  = "article.update"
	PermArticleDelete  = "article.delete"
	PermArticleComment = "article.comment"
	PermArticleLike    = "article.like"

	PermAudit     = "audit"
	PermAuditRead = "audit.read"
)

// RouteKeys lists every permission key checked by a route
func RouteKeys() []string {
	return []string{
		PermPermissionRead, PermPermissionManage,
		PermRoleCreate, PermRoleRead, PermRoleUpdate, PermRoleDelete,
		PermAccountCreate, PermAccountRead, PermAccountDelete,
		PermProductCreate, PermProductRead, PermProductUpdate, PermProductDelete,
		PermMedicineCategoryManage,
		PermArticleCreate, PermArticleRead, PermArticleUpdate, PermArticleDelete,
		PermArticleComment, PermArticleLike,
		PermAuditRead,
	}
}

// platformKeys change data shared by every provider. Provider roles can
// never hold them.
var platformKeys = map[string]bool{
	PermPermissionManage:       true,
	PermMedicineCategoryManage: true,
}

// IsPlatformPermission reports whether key is reserved for platform roles
func IsPlatformPermission(key string) bool {
	return platformKeys[key]
}

// PlatformKeys lists the keys reserved for platform roles
func PlatformKeys() []string {
	return []string{PermPermissionManage, PermMedicineCategoryManage}
}
