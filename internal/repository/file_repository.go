package repository

import (
	"context"

	"github.com/mautops/certificate-gin/internal/model"
	"gorm.io/gorm"
)

// FileRepository 文件记录仓储接口
type FileRepository interface {
	Create(ctx context.Context, file *model.FileModel) error
	Save(ctx context.Context, file *model.FileModel) error
	FindByID(ctx context.Context, id int64) (*model.FileModel, error)
	FindByPathNameHash(ctx context.Context, hash string) (*model.FileModel, error)
	FindByArea(ctx context.Context, contextID int64, component, area string, itemID *int64) ([]*model.FileModel, error)
	CountByContentHash(ctx context.Context, contentHash string) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// fileRepository 文件记录仓储实现
type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建文件记录仓储
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

// Create 插入文件记录
func (r *fileRepository) Create(ctx context.Context, file *model.FileModel) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// Save 保存文件记录
func (r *fileRepository) Save(ctx context.Context, file *model.FileModel) error {
	return r.db.WithContext(ctx).Save(file).Error
}

// FindByID 根据 ID 查找文件记录
func (r *fileRepository) FindByID(ctx context.Context, id int64) (*model.FileModel, error) {
	var file model.FileModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// FindByPathNameHash 根据定位哈希查找文件记录
func (r *fileRepository) FindByPathNameHash(ctx context.Context, hash string) (*model.FileModel, error) {
	var file model.FileModel
	if err := r.db.WithContext(ctx).Where("path_name_hash = ?", hash).First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// FindByArea 查找文件区域内的记录,itemID 为 nil 时返回所有条目
func (r *fileRepository) FindByArea(ctx context.Context, contextID int64, component, area string, itemID *int64) ([]*model.FileModel, error) {
	query := r.db.WithContext(ctx).
		Where("context_id = ? AND component = ? AND file_area = ?", contextID, component, area)
	if itemID != nil {
		query = query.Where("item_id = ?", *itemID)
	}

	var files []*model.FileModel
	err := query.Order("id ASC").Find(&files).Error
	return files, err
}

// CountByContentHash 统计引用同一内容的记录数
func (r *fileRepository) CountByContentHash(ctx context.Context, contentHash string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.FileModel{}).Where("content_hash = ?", contentHash).Count(&count).Error
	return count, err
}

// Delete 删除文件记录
func (r *fileRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.FileModel{}).Error
}
