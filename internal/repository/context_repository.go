package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/certificate-gin/internal/model"
	"gorm.io/gorm"
)

// ContextRepository 权限上下文仓储接口
type ContextRepository interface {
	FindByID(ctx context.Context, id int64) (*model.ContextModel, error)
	FindOrCreateCategory(ctx context.Context, categoryID int64) (*model.ContextModel, bool, error)
}

// contextRepository 权限上下文仓储实现
type contextRepository struct {
	db *gorm.DB
}

// NewContextRepository 创建权限上下文仓储
func NewContextRepository(db *gorm.DB) ContextRepository {
	return &contextRepository{db: db}
}

// FindByID 根据 ID 查找上下文
func (r *contextRepository) FindByID(ctx context.Context, id int64) (*model.ContextModel, error) {
	var c model.ContextModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOrCreateCategory 获取分类上下文,不存在时创建在系统上下文之下,第二个返回值表示是否新建
func (r *contextRepository) FindOrCreateCategory(ctx context.Context, categoryID int64) (*model.ContextModel, bool, error) {
	var c model.ContextModel
	err := r.db.WithContext(ctx).
		Where("context_level = ? AND instance_id = ?", model.ContextLevelCategory, categoryID).
		First(&c).Error
	if err == nil {
		return &c, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	c = model.ContextModel{
		ContextLevel: model.ContextLevelCategory,
		InstanceID:   categoryID,
		Path:         "",
		CreatedAt:    time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create category context: %w", err)
	}

	c.Path = fmt.Sprintf("/%d/%d", model.SystemContextID, c.ID)
	if err := r.db.WithContext(ctx).Model(&c).Update("path", c.Path).Error; err != nil {
		return nil, false, fmt.Errorf("failed to update context path: %w", err)
	}
	return &c, true, nil
}
