package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/event"
	"github.com/mautops/certificate-gin/internal/metrics"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const copySuffix = " (copy)"

// DuplicateOptions 复制选项
type DuplicateOptions struct {
	TenantID *int64 // nil 表示沿用原模板租户
}

// Template 证书模板
type Template struct {
	m      *Manager
	record model.TemplateModel
	pages  []*model.PageModel
}

// ID 模板 ID
func (t *Template) ID() int64 { return t.record.ID }

// Name 模板名称
func (t *Template) Name() string { return t.record.Name }

// ContextID 模板所属上下文
func (t *Template) ContextID() int64 { return t.record.ContextID }

// TenantID 模板所属租户,0 表示共享
func (t *Template) TenantID() int64 { return t.record.TenantID }

// CreatedBy 创建人
func (t *Template) CreatedBy() string { return t.record.CreatedBy }

// CreatedAt 创建时间
func (t *Template) CreatedAt() time.Time { return t.record.CreatedAt }

// UpdatedAt 更新时间
func (t *Template) UpdatedAt() time.Time { return t.record.UpdatedAt }

// EditURL 模板编辑地址
func (t *Template) EditURL() string { return t.m.urls.EditURL(t.record.ID) }

// Pages 模板页面,按顺序排列
func (t *Template) Pages() []model.PageModel {
	pages := make([]model.PageModel, 0, len(t.pages))
	for _, p := range t.pages {
		pages = append(pages, *p)
	}
	return pages
}

// Save 更新模板名称和上下文,触发 template_updated 事件
func (t *Template) Save(ctx context.Context, data TemplateData) error {
	// 1. 验证名称
	name := strings.TrimSpace(data.Name)
	if err := utils.ValidateTemplateName(name); err != nil {
		return err
	}

	// 2. 只有显式指定时才修改上下文
	record := t.record
	record.Name = name
	record.UpdatedAt = t.m.now()
	err := t.m.inTx(ctx, func(tx *gorm.DB, scope *txScope) error {
		if data.CategoryID > 0 || data.ContextID > 0 {
			contextID, err := t.m.resolveContext(ctx, tx, scope, data)
			if err != nil {
				return err
			}
			record.ContextID = contextID
		}

		// 3. 保存并写入事件
		if err := repository.NewTemplateRepository(tx).Save(ctx, &record); err != nil {
			return fmt.Errorf("failed to save template: %w", err)
		}
		updated := &Template{m: t.m, record: record, pages: t.pages}
		return scope.trigger(ctx, updated.templateEvent(ctx, event.TemplateUpdated, updated.EditURL()))
	})
	if err != nil {
		return err
	}
	t.record = record
	return nil
}

// Duplicate 复制模板及其页面,名称追加 " (copy)"
func (t *Template) Duplicate(ctx context.Context, opts DuplicateOptions) (*Template, error) {
	tenantID := t.record.TenantID
	if opts.TenantID != nil {
		tenantID = *opts.TenantID
	}

	name := t.record.Name
	if limit := 255 - len([]rune(copySuffix)); len([]rune(name)) > limit {
		name = string([]rune(name)[:limit])
	}

	now := t.m.now()
	copied := &model.TemplateModel{
		Name:      name + copySuffix,
		ContextID: t.record.ContextID,
		TenantID:  tenantID,
		CreatedBy: actorID(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}

	var dup *Template
	err := t.m.inTx(ctx, func(tx *gorm.DB, scope *txScope) error {
		if err := repository.NewTemplateRepository(tx).Create(ctx, copied); err != nil {
			return fmt.Errorf("failed to create template copy: %w", err)
		}

		pages := repository.NewPageRepository(tx)
		for _, p := range t.pages {
			page := &model.PageModel{
				TemplateID:  copied.ID,
				Width:       p.Width,
				Height:      p.Height,
				LeftMargin:  p.LeftMargin,
				RightMargin: p.RightMargin,
				Sequence:    p.Sequence,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := pages.Create(ctx, page); err != nil {
				return fmt.Errorf("failed to copy page: %w", err)
			}
		}

		var err error
		dup, err = t.m.load(ctx, tx, copied)
		if err != nil {
			return err
		}
		return scope.trigger(ctx, dup.templateEvent(ctx, event.TemplateCreated, dup.EditURL()))
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTemplateOperation("duplicated")

	t.m.logger.WithFields(logrus.Fields{
		"template_id": t.ID(),
		"copy_id":     dup.ID(),
		"tenant_id":   tenantID,
	}).Info("template duplicated")

	return dup, nil
}

// Delete 删除模板及其页面、颁发记录和证书文件,触发 template_deleted 事件
func (t *Template) Delete(ctx context.Context) error {
	err := t.m.inTx(ctx, func(tx *gorm.DB, scope *txScope) error {
		issues := repository.NewIssueRepository(tx)

		// 1. 删除颁发记录及其文件
		list, err := issues.Find(ctx, repository.IssueFilter{TemplateID: t.record.ID})
		if err != nil {
			return fmt.Errorf("failed to list issues: %w", err)
		}
		for _, issue := range list {
			itemID := issue.ID
			if err := scope.files.DeleteAreaFiles(ctx, model.SystemContextID, Component, IssuesArea, &itemID); err != nil {
				return err
			}
			if err := issues.Delete(ctx, issue.ID); err != nil {
				return fmt.Errorf("failed to delete issue: %w", err)
			}
		}

		// 2. 删除页面
		if err := repository.NewPageRepository(tx).DeleteByTemplate(ctx, t.record.ID); err != nil {
			return fmt.Errorf("failed to delete pages: %w", err)
		}

		// 3. 删除模板并写入事件
		if err := repository.NewTemplateRepository(tx).Delete(ctx, t.record.ID); err != nil {
			return fmt.Errorf("failed to delete template: %w", err)
		}
		return scope.trigger(ctx, t.templateEvent(ctx, event.TemplateDeleted, t.m.ManageURL()))
	})
	if err != nil {
		return err
	}
	t.pages = nil
	metrics.RecordTemplateOperation("deleted")

	t.m.logger.WithField("template_id", t.ID()).Info("template deleted")
	return nil
}

// CanManage 调用者是否可以管理模板
func (t *Template) CanManage(ctx context.Context, p *auth.Principal) (bool, error) {
	if p == nil {
		return false, nil
	}
	return t.m.authorizer.HasCapability(ctx, p, auth.CapManage, t.record.ContextID)
}

// RequireManage 要求管理能力
func (t *Template) RequireManage(ctx context.Context, p *auth.Principal) error {
	return auth.Require(ctx, t.m.authorizer, p, auth.CapManage, t.record.ContextID)
}

// CanIssue 调用者是否可以颁发证书
func (t *Template) CanIssue(ctx context.Context, p *auth.Principal) (bool, error) {
	if p == nil {
		return false, nil
	}
	return t.m.authorizer.HasCapability(ctx, p, auth.CapIssue, t.record.ContextID)
}

// CanDuplicate 调用者是否可以复制模板
// 绑定租户的调用者只能复制共享模板或本租户模板
func (t *Template) CanDuplicate(ctx context.Context, p *auth.Principal) (bool, error) {
	ok, err := t.CanManage(ctx, p)
	if err != nil || !ok {
		return false, err
	}
	if p.TenantID == 0 || t.record.TenantID == 0 || t.record.TenantID == p.TenantID {
		return true, nil
	}
	return t.m.authorizer.HasCapability(ctx, p, auth.CapManageForAllTenants, t.record.ContextID)
}

// templateEvent 构建模板事件
func (t *Template) templateEvent(ctx context.Context, name event.Name, url string) *event.Event {
	return &event.Event{
		Name:        name,
		Component:   Component,
		ContextID:   t.record.ContextID,
		ObjectTable: t.record.TableName(),
		ObjectID:    t.record.ID,
		UserID:      actorID(ctx),
		URL:         url,
		Other:       map[string]interface{}{"name": t.record.Name, "tenantid": t.record.TenantID},
	}
}

// findOwnedPage 查找属于模板的页面
func (t *Template) findOwnedPage(pageID int64) (*model.PageModel, error) {
	for _, p := range t.pages {
		if p.ID == pageID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrPageNotFound, pageID)
}

// reloadPages 重新加载页面
func (t *Template) reloadPages(ctx context.Context) error {
	pages, err := repository.NewPageRepository(t.m.db).FindByTemplate(ctx, t.record.ID)
	if err != nil {
		return fmt.Errorf("failed to load template pages: %w", err)
	}
	t.pages = pages
	return nil
}
