package auth

import (
	"context"
	"fmt"
	"strconv"
)

// Authorizer 能力检查接口
type Authorizer interface {
	HasCapability(ctx context.Context, p *Principal, capability Capability, contextID int64) (bool, error)
}

// Require 检查能力,不满足时返回 RequiredCapabilityError
func Require(ctx context.Context, a Authorizer, p *Principal, capability Capability, contextID int64) error {
	if p == nil {
		return ErrUnauthenticated
	}
	ok, err := a.HasCapability(ctx, p, capability, contextID)
	if err != nil {
		return fmt.Errorf("failed to check capability: %w", err)
	}
	if !ok {
		return &RequiredCapabilityError{Capability: capability, ContextID: contextID}
	}
	return nil
}

// RoleAuthorizer 基于角色的能力检查,角色能力在所有上下文生效
type RoleAuthorizer struct {
	roles map[string]map[Capability]bool
}

// NewRoleAuthorizer 根据角色能力映射创建
func NewRoleAuthorizer(roleCapabilities map[string][]string) *RoleAuthorizer {
	roles := make(map[string]map[Capability]bool, len(roleCapabilities))
	for role, caps := range roleCapabilities {
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			set[Capability(c)] = true
		}
		roles[role] = set
	}
	return &RoleAuthorizer{roles: roles}
}

// HasCapability 任一角色拥有能力即可
func (a *RoleAuthorizer) HasCapability(_ context.Context, p *Principal, capability Capability, _ int64) (bool, error) {
	if p == nil {
		return false, nil
	}
	for _, role := range p.Roles {
		if a.roles[role][capability] {
			return true, nil
		}
	}
	return false, nil
}

// PermissionChecker OpenFGA 权限查询
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error)
}

// FGAAuthorizer 基于 OpenFGA 的能力检查,上下文继承由模型中的 parent 关系表达
type FGAAuthorizer struct {
	checker PermissionChecker
}

// NewFGAAuthorizer 创建 OpenFGA 能力检查
func NewFGAAuthorizer(checker PermissionChecker) *FGAAuthorizer {
	return &FGAAuthorizer{checker: checker}
}

// HasCapability 查询 user 对 context:<id> 的 can_* 关系
func (a *FGAAuthorizer) HasCapability(ctx context.Context, p *Principal, capability Capability, contextID int64) (bool, error) {
	if p == nil {
		return false, nil
	}
	return a.checker.CheckPermission(ctx, p.UserID, capability.Relation(), fgaTypeContext, strconv.FormatInt(contextID, 10))
}
