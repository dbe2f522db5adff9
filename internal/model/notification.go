package model

import (
	"errors"
	"time"
)

// 通知状态
const (
	NotificationStatusStored = "stored"
	NotificationStatusSent   = "sent"
	NotificationStatusFailed = "failed"
)

// NotificationModel 用户通知数据模型
type NotificationModel struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	UserIDFrom      string    `gorm:"type:varchar(64)"`
	UserIDTo        string    `gorm:"type:varchar(64);not null;index"`
	Component       string    `gorm:"type:varchar(100);not null"`
	EventType       string    `gorm:"type:varchar(100);not null;index"`
	Subject         string    `gorm:"type:varchar(255);not null"`
	FullMessage     string    `gorm:"type:text"`
	FullMessageHTML string    `gorm:"type:text"`
	ContextURL      string    `gorm:"type:text"`
	ContextURLName  string    `gorm:"type:varchar(255)"`
	Status          string    `gorm:"type:varchar(32);not null;default:'stored'"`
	CreatedAt       time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (NotificationModel) TableName() string {
	return "notifications"
}

// Validate 验证通知模型
func (nm *NotificationModel) Validate() error {
	if nm.UserIDTo == "" {
		return errors.New("recipient is required")
	}
	if nm.Component == "" || nm.EventType == "" {
		return errors.New("component and event type are required")
	}
	if nm.Subject == "" {
		return errors.New("subject is required")
	}
	return nil
}
