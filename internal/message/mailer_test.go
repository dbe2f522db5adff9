package message

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/mautops/certificate-gin/internal/config"
	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePostmark struct {
	sent []postmark.Email
	resp postmark.EmailResponse
	err  error
}

func (f *fakePostmark) SendEmail(_ context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	f.sent = append(f.sent, email)
	return f.resp, f.err
}

// TestNewPostmarkMailer_Config 测试配置校验
func TestNewPostmarkMailer_Config(t *testing.T) {
	_, err := NewPostmarkMailer(config.NotificationConfig{SenderEmail: "a@example.com"})
	assert.ErrorIs(t, err, ErrInvalidMailerConfig)

	_, err = NewPostmarkMailer(config.NotificationConfig{PostmarkServerToken: "t", SenderEmail: "bad"})
	assert.ErrorIs(t, err, ErrInvalidMailerConfig)

	m, err := NewPostmarkMailer(config.NotificationConfig{PostmarkServerToken: "t", SenderEmail: "noreply@example.com"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}

// TestPostmarkMailer_SendMail 测试邮件内容和附件编码
func TestPostmarkMailer_SendMail(t *testing.T) {
	fake := &fakePostmark{}
	m := &PostmarkMailer{client: fake, senderEmail: "noreply@example.com", supportEmail: "help@example.com"}

	err := m.SendMail(context.Background(), Mail{
		To:          "u1@example.com",
		Subject:     "Your certificate is available!",
		TextBody:    "text",
		Tag:         "certificateissued",
		Attachments: []Attachment{{Name: "ABC.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}},
	})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)

	sent := fake.sent[0]
	assert.Equal(t, "noreply@example.com", sent.From)
	assert.Equal(t, "help@example.com", sent.ReplyTo)
	assert.Equal(t, "u1@example.com", sent.To)
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF")), sent.Attachments[0].Content)
}

// TestPostmarkMailer_Errors 测试发送失败
func TestPostmarkMailer_Errors(t *testing.T) {
	m := &PostmarkMailer{client: &fakePostmark{err: errors.New("network")}, senderEmail: "noreply@example.com"}
	assert.ErrorIs(t, m.SendMail(context.Background(), Mail{To: "x@example.com"}), ErrFailedToSendEmail)

	m = &PostmarkMailer{client: &fakePostmark{resp: postmark.EmailResponse{ErrorCode: 300, Message: "Invalid email"}}, senderEmail: "noreply@example.com"}
	assert.ErrorIs(t, m.SendMail(context.Background(), Mail{To: "x@example.com"}), ErrFailedToSendEmail)
}
