package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTemplate(name string, tenantID int64) *model.TemplateModel {
	now := time.Now()
	return &model.TemplateModel{
		Name:      name,
		ContextID: model.SystemContextID,
		TenantID:  tenantID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestTemplateRepository_Find 测试模板搜索、租户过滤和分页
func TestTemplateRepository_Find(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewTemplateRepository(db)
	ctx := context.Background()

	for _, tpl := range []*model.TemplateModel{
		newTemplate("Course completion", 0),
		newTemplate("Advanced course", 1),
		newTemplate("Workshop", 2),
		newTemplate("course basics", 0),
	} {
		require.NoError(t, repo.Create(ctx, tpl))
	}

	tests := []struct {
		name   string
		filter repository.TemplateFilter
		want   []string
	}{
		{"all by name", repository.TemplateFilter{}, []string{"Advanced course", "Course completion", "Workshop", "course basics"}},
		{"search ignores case", repository.TemplateFilter{Search: "COURSE"}, []string{"Advanced course", "Course completion", "course basics"}},
		{"tenant filter", repository.TemplateFilter{TenantIDs: []int64{0, 1}}, []string{"Advanced course", "Course completion", "course basics"}},
		{"desc with limit", repository.TemplateFilter{SortBy: "id", Order: "desc", Limit: 2}, []string{"course basics", "Workshop"}},
		{"offset", repository.TemplateFilter{SortBy: "id", Offset: 3, Limit: 10}, []string{"course basics"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			templates, err := repo.Find(ctx, tt.filter)
			require.NoError(t, err)
			names := make([]string, 0, len(templates))
			for _, tpl := range templates {
				names = append(names, tpl.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	total, err := repo.Count(ctx, repository.TemplateFilter{Search: "course", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	_, err = repo.Find(ctx, repository.TemplateFilter{SortBy: "name; DROP TABLE certificate_templates"})
	assert.Error(t, err)
}

// TestTemplateRepository_FindFirstByName 测试重名时返回最早的模板
func TestTemplateRepository_FindFirstByName(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewTemplateRepository(db)
	ctx := context.Background()

	first := newTemplate("Same", 0)
	second := newTemplate("Same", 0)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	found, err := repo.FindFirstByName(ctx, "Same")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	require.NoError(t, repo.Delete(ctx, first.ID))
	_, err = repo.FindByID(ctx, first.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

// TestIssueRepository 测试颁发记录查询
func TestIssueRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewIssueRepository(db)
	ctx := context.Background()

	for i, code := range []string{"AAAA000001", "AAAA000002", "AAAA000003"} {
		userID := "s1"
		if i == 2 {
			userID = "s2"
		}
		require.NoError(t, repo.Create(ctx, &model.IssueModel{
			UserID:      userID,
			TemplateID:  1,
			Code:        code,
			Component:   "tool_certificate",
			TimeCreated: time.Now(),
		}))
	}

	exists, err := repo.CodeExists(ctx, "AAAA000002")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.CodeExists(ctx, "ZZZZ000000")
	require.NoError(t, err)
	assert.False(t, exists)

	issue, err := repo.FindByCode(ctx, "AAAA000003")
	require.NoError(t, err)
	assert.Equal(t, "s2", issue.UserID)

	count, err := repo.Count(ctx, repository.IssueFilter{TemplateID: 1, UserID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	issues, err := repo.Find(ctx, repository.IssueFilter{TemplateID: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, issues, 1)

	require.NoError(t, repo.Delete(ctx, issue.ID))
	_, err = repo.FindByID(ctx, issue.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

// TestContextRepository_FindOrCreateCategory 测试分类上下文创建
func TestContextRepository_FindOrCreateCategory(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewContextRepository(db)
	ctx := context.Background()

	c, created, err := repo.FindOrCreateCategory(ctx, 7)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.ContextLevelCategory, c.ContextLevel)
	assert.Equal(t, int64(7), c.InstanceID)

	again, created, err := repo.FindOrCreateCategory(ctx, 7)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, c.Path, again.Path)

	found, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("/%d/%d", model.SystemContextID, c.ID), found.Path)
}

// TestAuditLogRepository 测试审计日志查询
func TestAuditLogRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewAuditLogRepository(db)
	ctx := context.Background()

	for i, id := range []string{"a1", "a2", "a3"} {
		resourceID := int64(1)
		if i == 2 {
			resourceID = 2
		}
		require.NoError(t, repo.Save(ctx, &model.AuditLogModel{
			ID:           id,
			UserID:       "admin",
			Action:       "create",
			ResourceType: "template",
			ResourceID:   resourceID,
			CreatedAt:    time.Now(),
		}))
	}

	logs, err := repo.FindByUserID(ctx, "admin")
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	logs, err = repo.FindByResource(ctx, "template", 1)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
