package model

import (
	"errors"
	"time"
)

var (
	ErrAuditActorRequired    = errors.New("audit log actor is required")
	ErrAuditActionRequired   = errors.New("audit log action is required")
	ErrAuditResourceRequired = errors.New("audit log resource is required")
)

// AuditLogModel 证书操作审计记录
type AuditLogModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)"`
	UserID       string    `gorm:"type:varchar(64);not null;index"`
	TenantID     int64     `gorm:"not null;default:0;index"`
	Action       string    `gorm:"type:varchar(32);not null;index"`
	ResourceType string    `gorm:"type:varchar(32);not null"` // template/page/issue
	ResourceID   int64     `gorm:"not null"`
	RequestID    string    `gorm:"type:varchar(64);index"`
	IP           string    `gorm:"type:varchar(45)"`
	UserAgent    string    `gorm:"type:text"`
	Details      string    `gorm:"type:text"` // JSON
	CreatedAt    time.Time `gorm:"not null;index"`
}

func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 审计记录必须能定位到操作者和资源
func (a *AuditLogModel) Validate() error {
	switch {
	case a.UserID == "":
		return ErrAuditActorRequired
	case a.Action == "":
		return ErrAuditActionRequired
	case a.ResourceType == "" || a.ResourceID <= 0:
		return ErrAuditResourceRequired
	}
	return nil
}
