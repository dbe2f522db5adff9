package model

import (
	"errors"
	"time"
)

// PageModel 模板页面数据模型,尺寸单位为毫米
type PageModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	TemplateID  int64     `gorm:"not null;index"`
	Width       float64   `gorm:"not null"`
	Height      float64   `gorm:"not null"`
	LeftMargin  float64   `gorm:"not null;default:0"`
	RightMargin float64   `gorm:"not null;default:0"`
	Sequence    int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName 指定表名
func (PageModel) TableName() string {
	return "certificate_pages"
}

// Validate 验证页面模型
func (pm *PageModel) Validate() error {
	if pm.TemplateID <= 0 {
		return errors.New("template ID is required")
	}
	if pm.Width <= 0 || pm.Height <= 0 {
		return errors.New("page width and height must be positive")
	}
	if pm.LeftMargin < 0 || pm.RightMargin < 0 {
		return errors.New("page margins cannot be negative")
	}
	return nil
}
