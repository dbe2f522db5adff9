package auth

import (
	"context"
	"sync"
	"time"
)

// PermissionCache 能力检查结果的短期缓存
// 关系写入后整代失效,避免继承关系变化时残留旧结果
type PermissionCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	generation uint64
	entries    map[string]cachedDecision
}

type cachedDecision struct {
	allowed    bool
	generation uint64
	expiresAt  time.Time
}

// NewPermissionCache 创建权限缓存
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		ttl:     ttl,
		entries: make(map[string]cachedDecision),
	}
}

// Get 返回未过期且属于当前代的结果
func (c *PermissionCache) Get(key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if d.generation != c.generation || time.Now().After(d.expiresAt) {
		delete(c.entries, key)
		return false, false
	}
	return d.allowed, true
}

// Set 写入结果
func (c *PermissionCache) Set(key string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedDecision{
		allowed:    allowed,
		generation: c.generation,
		expiresAt:  time.Now().Add(c.ttl),
	}
}

// Invalidate 使所有已缓存的结果失效
func (c *PermissionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries = make(map[string]cachedDecision)
}

// RelationWriter 写入权限关系
type RelationWriter interface {
	SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error
	DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error
}

// FGAClient OpenFGA 查询与写入
type FGAClient interface {
	PermissionChecker
	RelationWriter
}

// contextLinker 写入上下文层级
type contextLinker interface {
	LinkContext(ctx context.Context, childID, parentID int64) error
}

// CachedOpenFGAClient 带缓存的 OpenFGA 客户端,任何写入都会使缓存失效
type CachedOpenFGAClient struct {
	client FGAClient
	cache  *PermissionCache
}

// NewCachedOpenFGAClient 创建带缓存的 OpenFGA 客户端
func NewCachedOpenFGAClient(client FGAClient, cache *PermissionCache) *CachedOpenFGAClient {
	return &CachedOpenFGAClient{client: client, cache: cache}
}

// CheckPermission 先查缓存,未命中时查询 OpenFGA
func (c *CachedOpenFGAClient) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	key := userID + "|" + relation + "|" + fgaObject(objectType, objectID)
	if allowed, ok := c.cache.Get(key); ok {
		return allowed, nil
	}

	allowed, err := c.client.CheckPermission(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}
	c.cache.Set(key, allowed)
	return allowed, nil
}

// SetRelation 授予关系
func (c *CachedOpenFGAClient) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	defer c.cache.Invalidate()
	return c.client.SetRelation(ctx, userID, relation, objectType, objectID)
}

// DeleteRelation 撤销关系
func (c *CachedOpenFGAClient) DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	defer c.cache.Invalidate()
	return c.client.DeleteRelation(ctx, userID, relation, objectType, objectID)
}

// LinkContext 新的上下文层级会改变继承结果,底层客户端不支持时忽略
func (c *CachedOpenFGAClient) LinkContext(ctx context.Context, childID, parentID int64) error {
	linker, ok := c.client.(contextLinker)
	if !ok {
		return nil
	}
	defer c.cache.Invalidate()
	return linker.LinkContext(ctx, childID, parentID)
}
