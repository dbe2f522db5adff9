package model

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// FileModel 文件记录数据模型
// 文件内容按 ContentHash 存放在存储后端,同一内容可被多条记录引用
type FileModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	ContextID    int64     `gorm:"not null;index:idx_files_area"`
	Component    string    `gorm:"type:varchar(100);not null;index:idx_files_area"`
	FileArea     string    `gorm:"type:varchar(50);not null;index:idx_files_area"`
	ItemID       int64     `gorm:"not null;index:idx_files_area"`
	FilePath     string    `gorm:"type:varchar(255);not null"`
	FileName     string    `gorm:"type:varchar(255);not null"`
	PathNameHash string    `gorm:"type:varchar(40);not null;uniqueIndex"`
	ContentHash  string    `gorm:"type:varchar(40);not null;index"`
	FileSize     int64     `gorm:"not null"`
	MimeType     string    `gorm:"type:varchar(100)"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName 指定表名
func (FileModel) TableName() string {
	return "files"
}

// PathNameHashFor 计算文件定位哈希
func PathNameHashFor(contextID int64, component, area string, itemID int64, path, name string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("/%d/%s/%s/%d%s%s", contextID, component, area, itemID, path, name)))
	return hex.EncodeToString(sum[:])
}

// Validate 验证文件记录
func (fm *FileModel) Validate() error {
	if fm.Component == "" || fm.FileArea == "" {
		return errors.New("file component and area are required")
	}
	if fm.FileName == "" {
		return errors.New("file name is required")
	}
	if len(fm.FilePath) == 0 || fm.FilePath[0] != '/' || fm.FilePath[len(fm.FilePath)-1] != '/' {
		return errors.New("file path must start and end with /")
	}
	return nil
}
