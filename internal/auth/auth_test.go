package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCapability_Relation 测试能力对应的 OpenFGA 关系
func TestCapability_Relation(t *testing.T) {
	assert.Equal(t, "can_manage", auth.CapManage.Relation())
	assert.Equal(t, "can_viewallcertificates", auth.CapViewAllCertificates.Relation())
	assert.Equal(t, "can_manageforalltenants", auth.CapManageForAllTenants.Relation())
}

// TestRoleAuthorizer 测试基于角色的能力检查
func TestRoleAuthorizer(t *testing.T) {
	ctx := context.Background()
	a := auth.NewRoleAuthorizer(config.DefaultRoleCapabilities())

	tests := []struct {
		name  string
		roles []string
		cap   auth.Capability
		want  bool
	}{
		{"admin manages", []string{"admin"}, auth.CapManage, true},
		{"manager cannot manage all tenants", []string{"manager"}, auth.CapManageForAllTenants, false},
		{"issuer issues", []string{"issuer"}, auth.CapIssue, true},
		{"issuer cannot manage", []string{"issuer"}, auth.CapManage, false},
		{"user verifies", []string{"user"}, auth.CapVerify, true},
		{"any role grants", []string{"user", "manager"}, auth.CapManage, true},
		{"no roles", nil, auth.CapVerify, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := a.HasCapability(ctx, &auth.Principal{UserID: "u", Roles: tt.roles}, tt.cap, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

// TestRequire 测试能力要求
func TestRequire(t *testing.T) {
	ctx := context.Background()
	a := auth.NewRoleAuthorizer(config.DefaultRoleCapabilities())

	assert.ErrorIs(t, auth.Require(ctx, a, nil, auth.CapManage, 1), auth.ErrUnauthenticated)
	assert.NoError(t, auth.Require(ctx, a, &auth.Principal{UserID: "a", Roles: []string{"admin"}}, auth.CapManage, 1))

	err := auth.Require(ctx, a, &auth.Principal{UserID: "u", Roles: []string{"user"}}, auth.CapManage, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrPermissionDenied)

	var capErr *auth.RequiredCapabilityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, auth.CapManage, capErr.Capability)
	assert.Equal(t, int64(5), capErr.ContextID)
}

// fakeFGA 记录查询次数的 OpenFGA 客户端
type fakeFGA struct {
	tuples map[string]bool
	links  [][2]int64
	checks int
}

func (f *fakeFGA) CheckPermission(_ context.Context, userID, relation, objectType, objectID string) (bool, error) {
	f.checks++
	return f.tuples[userID+"|"+relation+"|"+objectType+":"+objectID], nil
}

func (f *fakeFGA) SetRelation(_ context.Context, userID, relation, objectType, objectID string) error {
	f.tuples[userID+"|"+relation+"|"+objectType+":"+objectID] = true
	return nil
}

func (f *fakeFGA) DeleteRelation(_ context.Context, userID, relation, objectType, objectID string) error {
	delete(f.tuples, userID+"|"+relation+"|"+objectType+":"+objectID)
	return nil
}

func (f *fakeFGA) LinkContext(_ context.Context, childID, parentID int64) error {
	f.links = append(f.links, [2]int64{childID, parentID})
	return nil
}

// TestFGAAuthorizer 测试基于 OpenFGA 的能力检查和缓存
func TestFGAAuthorizer(t *testing.T) {
	ctx := context.Background()
	fga := &fakeFGA{tuples: map[string]bool{"u1|can_manage|context:1": true}}
	cached := auth.NewCachedOpenFGAClient(fga, auth.NewPermissionCache(time.Minute))
	a := auth.NewFGAAuthorizer(cached)
	p := &auth.Principal{UserID: "u1"}

	ok, err := a.HasCapability(ctx, p, auth.CapManage, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.HasCapability(ctx, p, auth.CapManage, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, fga.checks)

	ok, err = a.HasCapability(ctx, p, auth.CapIssue, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// 写入关系后缓存失效
	require.NoError(t, cached.SetRelation(ctx, "u1", "can_issue", "context", "1"))
	ok, err = a.HasCapability(ctx, p, auth.CapIssue, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cached.DeleteRelation(ctx, "u1", "can_manage", "context", "1"))
	ok, err = a.HasCapability(ctx, p, auth.CapManage, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// 上下文层级变化同样使缓存失效
	checks := fga.checks
	require.NoError(t, cached.LinkContext(ctx, 7, 1))
	assert.Equal(t, [][2]int64{{7, 1}}, fga.links)
	_, err = a.HasCapability(ctx, p, auth.CapManage, 1)
	require.NoError(t, err)
	assert.Equal(t, checks+1, fga.checks)
}

// TestPermissionCache_Invalidate 测试整代失效
func TestPermissionCache_Invalidate(t *testing.T) {
	cache := auth.NewPermissionCache(time.Minute)
	cache.Set("a", true)
	cache.Set("b", false)
	cache.Invalidate()

	_, found := cache.Get("a")
	assert.False(t, found)
	_, found = cache.Get("b")
	assert.False(t, found)

	cache.Set("a", true)
	v, found := cache.Get("a")
	assert.True(t, found)
	assert.True(t, v)
}

// TestPermissionCache_Expiry 测试缓存过期
func TestPermissionCache_Expiry(t *testing.T) {
	cache := auth.NewPermissionCache(10 * time.Millisecond)
	cache.Set("k", true)

	v, found := cache.Get("k")
	assert.True(t, found)
	assert.True(t, v)

	time.Sleep(20 * time.Millisecond)
	_, found = cache.Get("k")
	assert.False(t, found)
}

// TestPrincipalContext 测试调用者在 context 中传递
func TestPrincipalContext(t *testing.T) {
	_, ok := auth.PrincipalFrom(context.Background())
	assert.False(t, ok)

	p := &auth.Principal{UserID: "u1", FullName: "User One", Roles: []string{"issuer"}}
	got, ok := auth.PrincipalFrom(auth.WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "User One", got.DisplayName())
	assert.True(t, got.HasRole("issuer"))
	assert.False(t, got.HasRole("admin"))
}

// TestGetPermissionModel 测试权限模型包含上下文继承
func TestGetPermissionModel(t *testing.T) {
	m := auth.GetPermissionModel()
	assert.Contains(t, m, "type context")
	assert.Contains(t, m, "define parent: [context]")
	for _, c := range []auth.Capability{auth.CapManage, auth.CapIssue, auth.CapViewAllCertificates, auth.CapVerify, auth.CapManageForAllTenants} {
		assert.Contains(t, m, "define "+c.Relation()+":")
	}
}
