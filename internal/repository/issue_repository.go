package repository

import (
	"context"

	"github.com/mautops/certificate-gin/internal/model"
	"gorm.io/gorm"
)

// IssueFilter 颁发记录查询条件
type IssueFilter struct {
	TemplateID int64
	UserID     string
	Offset     int
	Limit      int
}

// IssueRepository 颁发记录仓储接口
type IssueRepository interface {
	Create(ctx context.Context, issue *model.IssueModel) error
	Save(ctx context.Context, issue *model.IssueModel) error
	FindByID(ctx context.Context, id int64) (*model.IssueModel, error)
	FindByCode(ctx context.Context, code string) (*model.IssueModel, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Find(ctx context.Context, filter IssueFilter) ([]*model.IssueModel, error)
	Count(ctx context.Context, filter IssueFilter) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// issueRepository 颁发记录仓储实现
type issueRepository struct {
	db *gorm.DB
}

// NewIssueRepository 创建颁发记录仓储
func NewIssueRepository(db *gorm.DB) IssueRepository {
	return &issueRepository{db: db}
}

// Create 插入颁发记录
func (r *issueRepository) Create(ctx context.Context, issue *model.IssueModel) error {
	return r.db.WithContext(ctx).Create(issue).Error
}

// Save 保存颁发记录
func (r *issueRepository) Save(ctx context.Context, issue *model.IssueModel) error {
	return r.db.WithContext(ctx).Save(issue).Error
}

// FindByID 根据 ID 查找颁发记录
func (r *issueRepository) FindByID(ctx context.Context, id int64) (*model.IssueModel, error) {
	var issue model.IssueModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&issue).Error; err != nil {
		return nil, err
	}
	return &issue, nil
}

// FindByCode 根据证书编码查找颁发记录
func (r *issueRepository) FindByCode(ctx context.Context, code string) (*model.IssueModel, error) {
	var issue model.IssueModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&issue).Error; err != nil {
		return nil, err
	}
	return &issue, nil
}

// CodeExists 检查证书编码是否已被使用
func (r *issueRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.IssueModel{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// Find 按条件查询颁发记录
func (r *issueRepository) Find(ctx context.Context, filter IssueFilter) ([]*model.IssueModel, error) {
	query := r.filtered(ctx, filter).Order("time_created DESC").Order("id DESC")
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var issues []*model.IssueModel
	err := query.Find(&issues).Error
	return issues, err
}

// Count 统计满足条件的颁发记录数量
func (r *issueRepository) Count(ctx context.Context, filter IssueFilter) (int64, error) {
	var total int64
	err := r.filtered(ctx, filter).Count(&total).Error
	return total, err
}

// Delete 删除颁发记录
func (r *issueRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.IssueModel{}).Error
}

// filtered 构建带过滤条件的查询
func (r *issueRepository) filtered(ctx context.Context, filter IssueFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.IssueModel{})
	if filter.TemplateID > 0 {
		query = query.Where("template_id = ?", filter.TemplateID)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	return query
}
