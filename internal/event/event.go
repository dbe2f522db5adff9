package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mautops/certificate-gin/internal/model"
)

// Name 事件名称
type Name string

// 证书相关事件
const (
	TemplateCreated    Name = "template_created"
	TemplateUpdated    Name = "template_updated"
	TemplateDeleted    Name = "template_deleted"
	CertificateIssued  Name = "certificate_issued"
	CertificateRevoked Name = "certificate_revoked"
	NotificationSent   Name = "notification_sent"

	// All 订阅所有事件
	All Name = "*"
)

// Event 领域事件
type Event struct {
	ID            int64                  `json:"id"`
	Name          Name                   `json:"eventname"`
	Component     string                 `json:"component"`
	ContextID     int64                  `json:"contextid"`
	ObjectTable   string                 `json:"objecttable,omitempty"`
	ObjectID      int64                  `json:"objectid,omitempty"`
	UserID        string                 `json:"userid,omitempty"`
	RelatedUserID string                 `json:"relateduserid,omitempty"`
	URL           string                 `json:"url,omitempty"`
	Other         map[string]interface{} `json:"other,omitempty"`
	TimeCreated   time.Time              `json:"timecreated"`
}

// Description 事件描述
func (e *Event) Description() string {
	switch e.Name {
	case TemplateCreated:
		return fmt.Sprintf("The user with id '%s' created the certificate template with id '%d'.", e.UserID, e.ObjectID)
	case TemplateUpdated:
		return fmt.Sprintf("The user with id '%s' updated the certificate template with id '%d'.", e.UserID, e.ObjectID)
	case TemplateDeleted:
		return fmt.Sprintf("The user with id '%s' deleted the certificate template with id '%d'.", e.UserID, e.ObjectID)
	case CertificateIssued:
		return fmt.Sprintf("The user with id '%s' issued the certificate with id '%d' to the user with id '%s'.", e.UserID, e.ObjectID, e.RelatedUserID)
	case CertificateRevoked:
		return fmt.Sprintf("The user with id '%s' revoked the certificate with id '%d' of the user with id '%s'.", e.UserID, e.ObjectID, e.RelatedUserID)
	case NotificationSent:
		return fmt.Sprintf("The user with id '%s' sent a notification to the user with id '%s'.", e.UserID, e.RelatedUserID)
	default:
		return string(e.Name)
	}
}

// toModel 转换为持久化模型
func (e *Event) toModel() (*model.EventModel, error) {
	other := ""
	if len(e.Other) > 0 {
		data, err := json.Marshal(e.Other)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
		other = string(data)
	}

	return &model.EventModel{
		EventName:     string(e.Name),
		Component:     e.Component,
		ContextID:     e.ContextID,
		ObjectTable:   e.ObjectTable,
		ObjectID:      e.ObjectID,
		UserID:        e.UserID,
		RelatedUserID: e.RelatedUserID,
		URL:           e.URL,
		Other:         other,
		Status:        model.EventStatusPending,
		CreatedAt:     e.TimeCreated,
		UpdatedAt:     e.TimeCreated,
	}, nil
}

// FromModel 从持久化模型还原事件
func FromModel(m *model.EventModel) (*Event, error) {
	e := &Event{
		ID:            m.ID,
		Name:          Name(m.EventName),
		Component:     m.Component,
		ContextID:     m.ContextID,
		ObjectTable:   m.ObjectTable,
		ObjectID:      m.ObjectID,
		UserID:        m.UserID,
		RelatedUserID: m.RelatedUserID,
		URL:           m.URL,
		TimeCreated:   m.CreatedAt,
	}
	if m.Other != "" {
		if err := json.Unmarshal([]byte(m.Other), &e.Other); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
	}
	return e, nil
}
