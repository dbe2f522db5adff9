package model

import (
	"errors"
	"time"
)

// 上下文级别
const (
	ContextLevelSystem   = 10
	ContextLevelCategory = 40
)

// SystemContextID 系统上下文 ID,迁移时写入
const SystemContextID int64 = 1

// ContextModel 权限上下文数据模型
// Path 记录从系统上下文到当前上下文的 ID 路径,例如 /1/5
type ContextModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	ContextLevel int       `gorm:"not null;uniqueIndex:idx_contexts_level_instance"`
	InstanceID   int64     `gorm:"not null;uniqueIndex:idx_contexts_level_instance"`
	Path         string    `gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName 指定表名
func (ContextModel) TableName() string {
	return "contexts"
}

// IsSystem 是否为系统上下文
func (cm *ContextModel) IsSystem() bool {
	return cm.ContextLevel == ContextLevelSystem
}

// Validate 验证上下文模型
func (cm *ContextModel) Validate() error {
	if cm.ContextLevel != ContextLevelSystem && cm.ContextLevel != ContextLevelCategory {
		return errors.New("unsupported context level")
	}
	return nil
}
