package model

import (
	"errors"
	"time"
)

// TemplateModel 证书模板数据模型
type TemplateModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"type:varchar(255);not null;index"`
	ContextID int64     `gorm:"not null;index"`
	TenantID  int64     `gorm:"not null;default:0;index"` // 0 表示所有租户共享
	CreatedBy string    `gorm:"type:varchar(64)"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (TemplateModel) TableName() string {
	return "certificate_templates"
}

// Validate 验证模板模型
func (tm *TemplateModel) Validate() error {
	if tm.Name == "" {
		return errors.New("template name is required")
	}
	if tm.ContextID <= 0 {
		return errors.New("template context is required")
	}
	return nil
}
