package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

type principalKey struct{}

// Principal 当前调用者
type Principal struct {
	UserID   string
	Username string
	Email    string
	FullName string
	Roles    []string
	TenantID int64 // 0 表示不属于任何租户
}

// HasRole 是否拥有角色
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DisplayName 用于展示的名称
func (p *Principal) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	if p.Username != "" {
		return p.Username
	}
	return p.UserID
}

// WithPrincipal 将调用者写入 context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom 从 context 读取调用者
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// SetPrincipal 将调用者写入 gin 请求上下文
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set("user_id", p.UserID)
	c.Set("username", p.Username)
	c.Set("roles", p.Roles)
	c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
}
