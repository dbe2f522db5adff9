package auth

// GetPermissionModel 获取 OpenFGA 权限模型定义
// 分类上下文通过 parent 关系继承系统上下文的能力
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type context
  relations
    define parent: [context]
    define manager: [user] or manager from parent
    define issuer: [user] or issuer from parent
    define can_manage: manager
    define can_issue: issuer or manager
    define can_viewallcertificates: manager
    define can_verify: [user:*] or issuer or manager
    define can_manageforalltenants: [user] or can_manageforalltenants from parent`
}
