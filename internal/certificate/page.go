package certificate

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/utils"
	"gorm.io/gorm"
)

// 页面表单字段前缀,字段名为 <前缀><页面 ID>
const (
	FieldPageWidth       = "pagewidth_"
	FieldPageHeight      = "pageheight_"
	FieldPageLeftMargin  = "pageleftmargin_"
	FieldPageRightMargin = "pagerightmargin_"
)

// AddPage 添加页面,尺寸沿用最后一页
func (t *Template) AddPage(ctx context.Context) (*model.PageModel, error) {
	page := &model.PageModel{
		TemplateID: t.record.ID,
		Width:      t.m.defaultPage.Width,
		Height:     t.m.defaultPage.Height,
		Sequence:   1,
	}
	if n := len(t.pages); n > 0 {
		last := t.pages[n-1]
		page.Width = last.Width
		page.Height = last.Height
		page.LeftMargin = last.LeftMargin
		page.RightMargin = last.RightMargin
		page.Sequence = last.Sequence + 1
	}
	now := t.m.now()
	page.CreatedAt = now
	page.UpdatedAt = now

	if err := page.Validate(); err != nil {
		return nil, utils.NewValidationError("INVALID_PAGE", err.Error())
	}
	if err := repository.NewPageRepository(t.m.db).Create(ctx, page); err != nil {
		return nil, fmt.Errorf("failed to add page: %w", err)
	}

	t.pages = append(t.pages, page)
	copied := *page
	return &copied, nil
}

// SavePage 按表单更新页面尺寸,只处理属于本模板的页面
func (t *Template) SavePage(ctx context.Context, form url.Values) error {
	// 1. 解析所有页面,任何字段无效时不做修改
	updated := make([]*model.PageModel, 0, len(t.pages))
	for _, p := range t.pages {
		page := *p
		changed := false
		fields := []struct {
			prefix string
			target *float64
		}{
			{FieldPageWidth, &page.Width},
			{FieldPageHeight, &page.Height},
			{FieldPageLeftMargin, &page.LeftMargin},
			{FieldPageRightMargin, &page.RightMargin},
		}
		for _, f := range fields {
			key := f.prefix + strconv.FormatInt(p.ID, 10)
			if !form.Has(key) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(form.Get(key)), 64)
			if err != nil {
				return utils.NewValidationError("INVALID_PAGE", fmt.Sprintf("invalid value for %s", key))
			}
			*f.target = v
			changed = true
		}
		if !changed {
			continue
		}
		if err := page.Validate(); err != nil {
			return utils.NewValidationError("INVALID_PAGE", fmt.Sprintf("page %d: %s", p.ID, err.Error()))
		}
		page.UpdatedAt = t.m.now()
		updated = append(updated, &page)
	}

	if len(updated) == 0 {
		return nil
	}

	// 2. 保存
	err := t.m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pages := repository.NewPageRepository(tx)
		for _, page := range updated {
			if err := pages.Save(ctx, page); err != nil {
				return fmt.Errorf("failed to save page: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return t.reloadPages(ctx)
}

// DeletePage 删除页面并重新排列其余页面
func (t *Template) DeletePage(ctx context.Context, pageID int64) error {
	if _, err := t.findOwnedPage(pageID); err != nil {
		return err
	}

	err := t.m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pages := repository.NewPageRepository(tx)
		if err := pages.Delete(ctx, pageID); err != nil {
			return fmt.Errorf("failed to delete page: %w", err)
		}

		sequence := 1
		for _, p := range t.pages {
			if p.ID == pageID {
				continue
			}
			if p.Sequence != sequence {
				page := *p
				page.Sequence = sequence
				page.UpdatedAt = t.m.now()
				if err := pages.Save(ctx, &page); err != nil {
					return fmt.Errorf("failed to resequence page: %w", err)
				}
			}
			sequence++
		}
		return nil
	})
	if err != nil {
		return err
	}
	return t.reloadPages(ctx)
}
