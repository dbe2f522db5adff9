package message

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"

	"github.com/mautops/certificate-gin/internal/config"
	"github.com/mrz1836/postmark"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidMailerConfig 邮件配置无效
	ErrInvalidMailerConfig = errors.New("invalid mailer configuration")
	// ErrFailedToSendEmail 邮件发送失败
	ErrFailedToSendEmail = errors.New("failed to send email")
)

// Attachment 邮件附件
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Mail 待发送的邮件
type Mail struct {
	To          string
	Subject     string
	TextBody    string
	HTMLBody    string
	Tag         string
	Attachments []Attachment
}

// Mailer 邮件发送接口
type Mailer interface {
	SendMail(ctx context.Context, mail Mail) error
}

// postmarkAPI postmark 客户端使用的方法
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkMailer 通过 Postmark 发送邮件
type PostmarkMailer struct {
	client       postmarkAPI
	senderEmail  string
	supportEmail string
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NewPostmarkMailer 创建 Postmark 邮件发送器
func NewPostmarkMailer(cfg config.NotificationConfig) (*PostmarkMailer, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidMailerConfig)
	}
	if !emailRegex.MatchString(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: sender email must be a valid email address", ErrInvalidMailerConfig)
	}
	if cfg.SupportEmail != "" && !emailRegex.MatchString(cfg.SupportEmail) {
		return nil, fmt.Errorf("%w: support email must be a valid email address", ErrInvalidMailerConfig)
	}

	return &PostmarkMailer{
		client:       postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		senderEmail:  cfg.SenderEmail,
		supportEmail: cfg.SupportEmail,
	}, nil
}

// SendMail 发送邮件
func (m *PostmarkMailer) SendMail(ctx context.Context, mail Mail) error {
	attachments := make([]postmark.Attachment, 0, len(mail.Attachments))
	for _, a := range mail.Attachments {
		attachments = append(attachments, postmark.Attachment{
			Name:        a.Name,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		})
	}

	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:        m.senderEmail,
		ReplyTo:     m.supportEmail,
		To:          mail.To,
		Subject:     mail.Subject,
		Tag:         mail.Tag,
		HTMLBody:    mail.HTMLBody,
		TextBody:    mail.TextBody,
		Attachments: attachments,
		TrackOpens:  true,
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSendEmail, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// LogMailer 只记录日志的邮件发送器
type LogMailer struct {
	logger logrus.FieldLogger
}

// NewLogMailer 创建日志邮件发送器
func NewLogMailer(logger logrus.FieldLogger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendMail 记录邮件内容
func (m *LogMailer) SendMail(_ context.Context, mail Mail) error {
	m.logger.WithFields(logrus.Fields{
		"to":          mail.To,
		"subject":     mail.Subject,
		"tag":         mail.Tag,
		"attachments": len(mail.Attachments),
	}).Info("email not sent, no mail transport configured")
	return nil
}
