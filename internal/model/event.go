package model

import (
	"errors"
	"time"
)

// 事件推送状态
const (
	EventStatusPending = "pending"
	EventStatusSuccess = "success"
	EventStatusFailed  = "failed"
)

// EventModel 事件日志数据模型
type EventModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	EventName     string    `gorm:"type:varchar(64);not null;index"`
	Component     string    `gorm:"type:varchar(100);not null"`
	ContextID     int64     `gorm:"not null;index"`
	ObjectTable   string    `gorm:"type:varchar(64)"`
	ObjectID      int64     `gorm:"index"`
	UserID        string    `gorm:"type:varchar(64);index"`
	RelatedUserID string    `gorm:"type:varchar(64)"`
	URL           string    `gorm:"type:text"`
	Other         string    `gorm:"type:text"` // 附加数据 (JSON)
	Status        string    `gorm:"type:varchar(32);not null;default:'pending'"`
	RetryCount    int       `gorm:"default:0"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.EventName == "" {
		return errors.New("event name is required")
	}
	if em.ContextID <= 0 {
		return errors.New("event context is required")
	}
	if em.Status == "" {
		em.Status = EventStatusPending
	}
	return nil
}
