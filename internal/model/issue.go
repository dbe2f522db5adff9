package model

import (
	"encoding/json"
	"errors"
	"time"
)

// IssueModel 证书颁发记录数据模型
// 同一用户可以对同一模板拥有多条颁发记录
type IssueModel struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	UserID      string     `gorm:"type:varchar(64);not null;index"`
	TemplateID  int64      `gorm:"not null;index"`
	Code        string     `gorm:"type:varchar(40);not null;uniqueIndex"`
	Data        string     `gorm:"type:text"` // 颁发时的快照数据 (JSON)
	Emailed     bool       `gorm:"not null;default:false"`
	Component   string     `gorm:"type:varchar(100);not null;default:'tool_certificate'"`
	Expires     *time.Time `gorm:"index"`
	TimeCreated time.Time  `gorm:"not null;index"`
}

// TableName 指定表名
func (IssueModel) TableName() string {
	return "certificate_issues"
}

// IssueData 颁发快照数据
type IssueData struct {
	UserFullName string `json:"userfullname"`
	Email        string `json:"email,omitempty"`
	TemplateName string `json:"templatename"`
	Code         string `json:"code"`
}

// DecodeData 解析快照数据
func (im *IssueModel) DecodeData() (IssueData, error) {
	var data IssueData
	if im.Data == "" {
		return data, nil
	}
	err := json.Unmarshal([]byte(im.Data), &data)
	return data, err
}

// Validate 验证颁发记录模型
func (im *IssueModel) Validate() error {
	if im.UserID == "" {
		return errors.New("user ID is required")
	}
	if im.TemplateID <= 0 {
		return errors.New("template ID is required")
	}
	if im.Code == "" {
		return errors.New("issue code is required")
	}
	return nil
}
