package message_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mautops/certificate-gin/internal/event"
	"github.com/mautops/certificate-gin/internal/message"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPusher struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func (p *recordingPusher) SendToUser(userID string, msg []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == nil {
		p.frames = map[string][][]byte{}
	}
	p.frames[userID] = append(p.frames[userID], msg)
	return 1
}

type recordingMailer struct {
	mails []message.Mail
	err   error
}

func (m *recordingMailer) SendMail(_ context.Context, mail message.Mail) error {
	m.mails = append(m.mails, mail)
	return m.err
}

func issuedMessage() *message.Message {
	return &message.Message{
		Component:   "tool_certificate",
		EventType:   "certificateissued",
		UserFrom:    "admin",
		UserTo:      "u1",
		ToEmail:     "u1@example.com",
		Subject:     "Your certificate is available!",
		FullMessage: "Your certificate is available!",
		ContextURL:  "http://localhost/certificate/view?code=ABC",
	}
}

// TestSender_Send 测试通知保存、事件、推送和邮件
func TestSender_Send(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	dispatcher := event.NewDispatcher(db, testutil.NewLogger())
	sink := event.NewSink()
	dispatcher.Subscribe(event.All, sink)

	pusher := &recordingPusher{}
	mailer := &recordingMailer{}
	s := message.NewSender(db, dispatcher, pusher, mailer, testutil.NewLogger())

	id, err := s.Send(ctx, issuedMessage())
	require.NoError(t, err)
	assert.NotZero(t, id)

	// 通知已保存
	list, err := repository.NewNotificationRepository(db).FindByRecipient(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tool_certificate", list[0].Component)
	assert.Equal(t, "certificateissued", list[0].EventType)
	assert.Equal(t, model.NotificationStatusSent, list[0].Status)

	// 事件已触发
	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.NotificationSent, events[0].Name)
	assert.Equal(t, "u1", events[0].RelatedUserID)
	assert.Equal(t, id, events[0].ObjectID)

	// 已推送
	require.Len(t, pusher.frames["u1"], 1)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(pusher.frames["u1"][0], &frame))
	assert.Equal(t, "Your certificate is available!", frame["subject"])

	// 已发送邮件
	require.Len(t, mailer.mails, 1)
	assert.Equal(t, "u1@example.com", mailer.mails[0].To)
	assert.Equal(t, "certificateissued", mailer.mails[0].Tag)
}

// TestSender_MailFailureIsNotFatal 测试邮件失败不影响发送
func TestSender_MailFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	s := message.NewSender(db, event.NewDispatcher(db, testutil.NewLogger()), nil,
		&recordingMailer{err: errors.New("smtp down")}, testutil.NewLogger())

	_, err := s.Send(ctx, issuedMessage())
	require.NoError(t, err)

	list, err := repository.NewNotificationRepository(db).FindByRecipient(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationStatusFailed, list[0].Status)
}

// TestSender_NoEmailAddress 测试没有邮箱时只保存通知
func TestSender_NoEmailAddress(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	mailer := &recordingMailer{}
	s := message.NewSender(db, event.NewDispatcher(db, testutil.NewLogger()), nil, mailer, testutil.NewLogger())

	msg := issuedMessage()
	msg.ToEmail = ""
	_, err := s.Send(ctx, msg)
	require.NoError(t, err)
	assert.Empty(t, mailer.mails)

	list, err := repository.NewNotificationRepository(db).FindByRecipient(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusStored, list[0].Status)
}

// TestSender_InvalidMessage 测试缺少收件人
func TestSender_InvalidMessage(t *testing.T) {
	db := testutil.NewDB(t)
	s := message.NewSender(db, event.NewDispatcher(db, testutil.NewLogger()), nil, nil, testutil.NewLogger())

	msg := issuedMessage()
	msg.UserTo = ""
	_, err := s.Send(context.Background(), msg)
	assert.Error(t, err)
}

// TestSender_WithDB 测试事务内发送的通知在提交后才推送和发送邮件
func TestSender_WithDB(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	dispatcher := event.NewDispatcher(db, testutil.NewLogger())
	sink := event.NewSink()
	dispatcher.Subscribe(event.All, sink)

	pusher := &recordingPusher{}
	mailer := &recordingMailer{}
	s := message.NewSender(db, dispatcher, pusher, mailer, testutil.NewLogger())
	notifications := repository.NewNotificationRepository(db)

	// 1. 回滚: 通知不落库,也不推送
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := s.WithDB(tx, dispatcher.WithDB(tx)).Send(ctx, issuedMessage())
		require.NoError(t, err)
		return errors.New("rollback")
	})
	require.Error(t, err)
	list, err := notifications.FindByRecipient(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, pusher.frames)
	assert.Empty(t, mailer.mails)

	// 2. 提交后投递
	var txEvents event.Dispatcher
	var txSender message.Sender
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		txEvents = dispatcher.WithDB(tx)
		txSender = s.WithDB(tx, txEvents)
		_, err := txSender.Send(ctx, issuedMessage())
		return err
	}))
	assert.Empty(t, mailer.mails)

	txEvents.Flush(ctx)
	txSender.Deliver(ctx)

	list, err = notifications.FindByRecipient(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationStatusSent, list[0].Status)
	assert.Len(t, pusher.frames["u1"], 1)
	assert.Len(t, mailer.mails, 1)
	assert.Len(t, sink.ByName(event.NotificationSent), 1)
}
