package repository

import (
	"context"

	"github.com/mautops/certificate-gin/internal/model"
	"gorm.io/gorm"
)

// NotificationRepository 通知仓储接口
type NotificationRepository interface {
	Save(ctx context.Context, n *model.NotificationModel) error
	FindByRecipient(ctx context.Context, userID string) ([]*model.NotificationModel, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// notificationRepository 通知仓储实现
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Save 保存通知
func (r *notificationRepository) Save(ctx context.Context, n *model.NotificationModel) error {
	return r.db.WithContext(ctx).Save(n).Error
}

// FindByRecipient 查找用户收到的通知
func (r *notificationRepository) FindByRecipient(ctx context.Context, userID string) ([]*model.NotificationModel, error) {
	var list []*model.NotificationModel
	err := r.db.WithContext(ctx).Where("user_id_to = ?", userID).Order("id ASC").Find(&list).Error
	return list, err
}

// UpdateStatus 更新通知状态
func (r *notificationRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).Model(&model.NotificationModel{}).Where("id = ?", id).Update("status", status).Error
}
