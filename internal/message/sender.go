package message

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mautops/certificate-gin/internal/event"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Message 发给用户的通知
type Message struct {
	Component       string
	EventType       string
	UserFrom        string
	UserTo          string
	ToEmail         string
	Subject         string
	FullMessage     string
	FullMessageHTML string
	ContextURL      string
	ContextURLName  string
	Attachments     []Attachment
}

// Pusher 实时推送
type Pusher interface {
	SendToUser(userID string, message []byte) int
}

// Sender 通知发送接口
type Sender interface {
	Send(ctx context.Context, msg *Message) (int64, error)
	// WithDB 返回绑定到事务的发送器,通知和事件随事务写入,推送和邮件推迟到 Deliver
	WithDB(tx *gorm.DB, dispatcher event.Dispatcher) Sender
	// Deliver 推送并邮件发送事务期间保存的通知,事务提交后调用
	Deliver(ctx context.Context)
}

// frame 推送到 WebSocket 的通知帧
type frame struct {
	ID         int64     `json:"id"`
	Component  string    `json:"component"`
	EventType  string    `json:"eventtype"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	ContextURL string    `json:"contexturl,omitempty"`
	CreatedAt  time.Time `json:"timecreated"`
}

type queued struct {
	notification *model.NotificationModel
	msg          *Message
}

// sender 通知发送实现
type sender struct {
	repo       repository.NotificationRepository
	root       repository.NotificationRepository
	dispatcher event.Dispatcher
	pusher     Pusher
	mailer     Mailer
	logger     logrus.FieldLogger
	now        func() time.Time

	deferred bool
	mu       sync.Mutex
	pending  []queued
}

// NewSender 创建通知发送器,dispatcher、pusher 和 mailer 可以为 nil
func NewSender(db *gorm.DB, dispatcher event.Dispatcher, pusher Pusher, mailer Mailer, logger logrus.FieldLogger) Sender {
	repo := repository.NewNotificationRepository(db)
	return &sender{
		repo:       repo,
		root:       repo,
		dispatcher: dispatcher,
		pusher:     pusher,
		mailer:     mailer,
		logger:     logger,
		now:        time.Now,
	}
}

// WithDB 绑定事务,dispatcher 应绑定同一事务
func (s *sender) WithDB(tx *gorm.DB, dispatcher event.Dispatcher) Sender {
	return &sender{
		repo:       repository.NewNotificationRepository(tx),
		root:       s.root,
		dispatcher: dispatcher,
		pusher:     s.pusher,
		mailer:     s.mailer,
		logger:     s.logger,
		now:        s.now,
		deferred:   true,
	}
}

// Send 保存通知、触发事件、实时推送并发送邮件
// 推送和邮件失败只记录日志
func (s *sender) Send(ctx context.Context, msg *Message) (int64, error) {
	// 1. 保存通知
	n := &model.NotificationModel{
		UserIDFrom:      msg.UserFrom,
		UserIDTo:        msg.UserTo,
		Component:       msg.Component,
		EventType:       msg.EventType,
		Subject:         msg.Subject,
		FullMessage:     msg.FullMessage,
		FullMessageHTML: msg.FullMessageHTML,
		ContextURL:      msg.ContextURL,
		ContextURLName:  msg.ContextURLName,
		Status:          model.NotificationStatusStored,
		CreatedAt:       s.now(),
	}
	if err := n.Validate(); err != nil {
		return 0, fmt.Errorf("invalid message: %w", err)
	}
	if err := s.repo.Save(ctx, n); err != nil {
		return 0, fmt.Errorf("failed to save notification: %w", err)
	}

	// 2. 触发通知事件
	if s.dispatcher != nil {
		if err := s.dispatcher.Trigger(ctx, &event.Event{
			Name:          event.NotificationSent,
			Component:     msg.Component,
			ContextID:     model.SystemContextID,
			ObjectTable:   "notifications",
			ObjectID:      n.ID,
			UserID:        msg.UserFrom,
			RelatedUserID: msg.UserTo,
			Other:         map[string]interface{}{"eventtype": msg.EventType},
		}); err != nil {
			return n.ID, err
		}
	}

	// 3. 推送和邮件
	if s.deferred {
		s.mu.Lock()
		s.pending = append(s.pending, queued{notification: n, msg: msg})
		s.mu.Unlock()
		return n.ID, nil
	}
	s.deliver(ctx, n, msg)
	return n.ID, nil
}

// Deliver 按保存顺序投递积累的通知
func (s *sender) Deliver(ctx context.Context) {
	s.mu.Lock()
	items := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, q := range items {
		s.deliver(ctx, q.notification, q.msg)
	}
}

func (s *sender) deliver(ctx context.Context, n *model.NotificationModel, msg *Message) {
	// 1. 实时推送
	if s.pusher != nil {
		payload, err := json.Marshal(frame{
			ID:         n.ID,
			Component:  n.Component,
			EventType:  n.EventType,
			Subject:    n.Subject,
			Message:    n.FullMessage,
			ContextURL: n.ContextURL,
			CreatedAt:  n.CreatedAt,
		})
		if err == nil {
			s.pusher.SendToUser(n.UserIDTo, payload)
		}
	}

	// 2. 发送邮件
	if s.mailer != nil && msg.ToEmail != "" {
		status := model.NotificationStatusSent
		err := s.mailer.SendMail(ctx, Mail{
			To:          msg.ToEmail,
			Subject:     msg.Subject,
			TextBody:    msg.FullMessage,
			HTMLBody:    msg.FullMessageHTML,
			Tag:         msg.EventType,
			Attachments: msg.Attachments,
		})
		if err != nil {
			status = model.NotificationStatusFailed
			s.logger.WithError(err).WithFields(logrus.Fields{
				"notification_id": n.ID,
				"user_id":         n.UserIDTo,
			}).Warn("failed to email notification")
		}
		if err := s.root.UpdateStatus(ctx, n.ID, status); err != nil {
			s.logger.WithError(err).WithField("notification_id", n.ID).Error("failed to update notification status")
		}
	}
}
