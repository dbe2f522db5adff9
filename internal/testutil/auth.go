package testutil

import (
	"errors"

	"github.com/mautops/certificate-gin/internal/auth"
)

// TokenValidator 以固定 token 映射到调用者的验证器
type TokenValidator map[string]*auth.Principal

// ValidateToken 查找 token 对应的调用者
func (v TokenValidator) ValidateToken(token string) (*auth.KeycloakClaims, error) {
	p, ok := v[token]
	if !ok {
		return nil, errors.New("invalid token")
	}

	claims := &auth.KeycloakClaims{
		Sub:               p.UserID,
		Email:             p.Email,
		PreferredUsername: p.Username,
		Name:              p.FullName,
		TenantID:          p.TenantID,
	}
	claims.RealmAccess.Roles = p.Roles
	return claims, nil
}
