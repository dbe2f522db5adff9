package repository

import (
	"context"

	"github.com/mautops/certificate-gin/internal/model"
	"gorm.io/gorm"
)

// EventRepository 事件仓储接口
type EventRepository interface {
	Save(ctx context.Context, event *model.EventModel) error
	FindByID(ctx context.Context, id int64) (*model.EventModel, error)
	FindByName(ctx context.Context, name string) ([]*model.EventModel, error)
	FindByObject(ctx context.Context, objectTable string, objectID int64) ([]*model.EventModel, error)
	FindPending(ctx context.Context) ([]*model.EventModel, error)
	UpdateStatus(ctx context.Context, id int64, status string, retryCount int) error
}

// eventRepository 事件仓储实现
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Save 保存事件
func (r *eventRepository) Save(ctx context.Context, event *model.EventModel) error {
	return r.db.WithContext(ctx).Save(event).Error
}

// FindByID 根据 ID 查找事件
func (r *eventRepository) FindByID(ctx context.Context, id int64) (*model.EventModel, error) {
	var event model.EventModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// FindByName 根据事件名称查找事件
func (r *eventRepository) FindByName(ctx context.Context, name string) ([]*model.EventModel, error) {
	var events []*model.EventModel
	err := r.db.WithContext(ctx).Where("event_name = ?", name).Order("id ASC").Find(&events).Error
	return events, err
}

// FindByObject 根据关联对象查找事件
func (r *eventRepository) FindByObject(ctx context.Context, objectTable string, objectID int64) ([]*model.EventModel, error) {
	var events []*model.EventModel
	err := r.db.WithContext(ctx).
		Where("object_table = ? AND object_id = ?", objectTable, objectID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// FindPending 查找待推送的事件
func (r *eventRepository) FindPending(ctx context.Context) ([]*model.EventModel, error) {
	var events []*model.EventModel
	err := r.db.WithContext(ctx).Where("status = ?", model.EventStatusPending).Order("created_at ASC").Find(&events).Error
	return events, err
}

// UpdateStatus 更新事件推送状态
func (r *eventRepository) UpdateStatus(ctx context.Context, id int64, status string, retryCount int) error {
	return r.db.WithContext(ctx).Model(&model.EventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "retry_count": retryCount}).Error
}
