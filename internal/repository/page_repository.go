package repository

import (
	"context"

	"github.com/mautops/certificate-gin/internal/model"
	"gorm.io/gorm"
)

// PageRepository 模板页面仓储接口
type PageRepository interface {
	Create(ctx context.Context, page *model.PageModel) error
	Save(ctx context.Context, page *model.PageModel) error
	FindByID(ctx context.Context, id int64) (*model.PageModel, error)
	FindByTemplate(ctx context.Context, templateID int64) ([]*model.PageModel, error)
	Delete(ctx context.Context, id int64) error
	DeleteByTemplate(ctx context.Context, templateID int64) error
}

// pageRepository 模板页面仓储实现
type pageRepository struct {
	db *gorm.DB
}

// NewPageRepository 创建模板页面仓储
func NewPageRepository(db *gorm.DB) PageRepository {
	return &pageRepository{db: db}
}

// Create 插入页面
func (r *pageRepository) Create(ctx context.Context, page *model.PageModel) error {
	return r.db.WithContext(ctx).Create(page).Error
}

// Save 保存页面
func (r *pageRepository) Save(ctx context.Context, page *model.PageModel) error {
	return r.db.WithContext(ctx).Save(page).Error
}

// FindByID 根据 ID 查找页面
func (r *pageRepository) FindByID(ctx context.Context, id int64) (*model.PageModel, error) {
	var page model.PageModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&page).Error; err != nil {
		return nil, err
	}
	return &page, nil
}

// FindByTemplate 按顺序返回模板的所有页面
func (r *pageRepository) FindByTemplate(ctx context.Context, templateID int64) ([]*model.PageModel, error) {
	var pages []*model.PageModel
	err := r.db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("sequence ASC").
		Order("id ASC").
		Find(&pages).Error
	return pages, err
}

// Delete 删除页面
func (r *pageRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PageModel{}).Error
}

// DeleteByTemplate 删除模板的所有页面
func (r *pageRepository) DeleteByTemplate(ctx context.Context, templateID int64) error {
	return r.db.WithContext(ctx).Where("template_id = ?", templateID).Delete(&model.PageModel{}).Error
}
