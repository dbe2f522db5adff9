package repository

import (
	"context"
	"strings"

	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/utils"
	"gorm.io/gorm"
)

// TemplateFilter 模板查询条件
type TemplateFilter struct {
	Search    string  // 名称模糊匹配,不区分大小写
	TenantIDs []int64 // 为空表示不过滤租户
	Offset    int
	Limit     int
	SortBy    string
	Order     string // asc/desc
}

var templateSortColumns = utils.NewSortColumns("id", "name", "created_at", "updated_at")

// TemplateRepository 模板仓储接口
type TemplateRepository interface {
	Create(ctx context.Context, template *model.TemplateModel) error
	Save(ctx context.Context, template *model.TemplateModel) error
	FindByID(ctx context.Context, id int64) (*model.TemplateModel, error)
	FindFirstByName(ctx context.Context, name string) (*model.TemplateModel, error)
	Find(ctx context.Context, filter TemplateFilter) ([]*model.TemplateModel, error)
	Count(ctx context.Context, filter TemplateFilter) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// templateRepository 模板仓储实现
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建模板仓储
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// Create 插入模板
func (r *templateRepository) Create(ctx context.Context, template *model.TemplateModel) error {
	return r.db.WithContext(ctx).Create(template).Error
}

// Save 保存模板
func (r *templateRepository) Save(ctx context.Context, template *model.TemplateModel) error {
	return r.db.WithContext(ctx).Save(template).Error
}

// FindByID 根据 ID 查找模板
func (r *templateRepository) FindByID(ctx context.Context, id int64) (*model.TemplateModel, error) {
	var template model.TemplateModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&template).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

// FindFirstByName 按名称查找,名称重复时返回 ID 最小的一条
func (r *templateRepository) FindFirstByName(ctx context.Context, name string) (*model.TemplateModel, error) {
	var template model.TemplateModel
	err := r.db.WithContext(ctx).Where("name = ?", name).Order("id ASC").First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// Find 按条件查询模板
func (r *templateRepository) Find(ctx context.Context, filter TemplateFilter) ([]*model.TemplateModel, error) {
	query := r.filtered(ctx, filter)

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	order := filter.Order
	if order == "" {
		order = "asc"
	}
	clause, err := templateSortColumns.Clause(sortBy, order)
	if err != nil {
		return nil, err
	}
	query = query.Order(clause).Order("id ASC")

	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var templates []*model.TemplateModel
	err = query.Find(&templates).Error
	return templates, err
}

// Count 统计满足条件的模板数量
func (r *templateRepository) Count(ctx context.Context, filter TemplateFilter) (int64, error) {
	var total int64
	err := r.filtered(ctx, filter).Count(&total).Error
	return total, err
}

// Delete 删除模板
func (r *templateRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TemplateModel{}).Error
}

// filtered 构建带过滤条件的查询
func (r *templateRepository) filtered(ctx context.Context, filter TemplateFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.TemplateModel{})
	if filter.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(filter.TenantIDs) > 0 {
		query = query.Where("tenant_id IN ?", filter.TenantIDs)
	}
	return query
}
