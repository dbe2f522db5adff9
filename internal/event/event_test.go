package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mautops/certificate-gin/internal/event"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func templateCreated(id int64) *event.Event {
	return &event.Event{
		Name:        event.TemplateCreated,
		Component:   "tool_certificate",
		ContextID:   model.SystemContextID,
		ObjectTable: "certificate_templates",
		ObjectID:    id,
		UserID:      "admin",
		URL:         "http://localhost/api/v1/templates/1",
		Other:       map[string]interface{}{"name": "Test"},
	}
}

// TestDispatcher_TriggerPersistsAndNotifies 测试事件持久化并通知观察者
func TestDispatcher_TriggerPersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	d := event.NewDispatcher(db, testutil.NewLogger())

	sink := event.NewSink()
	unsubscribe := d.Subscribe(event.All, sink)
	defer unsubscribe()

	evt := templateCreated(1)
	require.NoError(t, d.Trigger(ctx, evt))
	assert.NotZero(t, evt.ID)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.TemplateCreated, events[0].Name)
	assert.Equal(t, "http://localhost/api/v1/templates/1", events[0].URL)

	stored, err := repository.NewEventRepository(db).FindByID(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, "template_created", stored.EventName)
	assert.Equal(t, model.EventStatusPending, stored.Status)

	restored, err := event.FromModel(stored)
	require.NoError(t, err)
	assert.Equal(t, "Test", restored.Other["name"])
}

// TestDispatcher_SubscribeByName 测试按名称订阅和取消订阅
func TestDispatcher_SubscribeByName(t *testing.T) {
	ctx := context.Background()
	d := event.NewDispatcher(testutil.NewDB(t), testutil.NewLogger())

	sink := event.NewSink()
	unsubscribe := d.Subscribe(event.TemplateDeleted, sink)

	require.NoError(t, d.Trigger(ctx, templateCreated(1)))
	assert.Empty(t, sink.Events())

	deleted := templateCreated(1)
	deleted.Name = event.TemplateDeleted
	require.NoError(t, d.Trigger(ctx, deleted))
	assert.Len(t, sink.ByName(event.TemplateDeleted), 1)

	unsubscribe()
	require.NoError(t, d.Trigger(ctx, deleted))
	assert.Len(t, sink.Events(), 1)
}

// TestDispatcher_ObserverErrorIgnored 测试观察者错误不影响触发
func TestDispatcher_ObserverErrorIgnored(t *testing.T) {
	d := event.NewDispatcher(testutil.NewDB(t), testutil.NewLogger())
	d.Subscribe(event.All, event.ObserverFunc(func(context.Context, *event.Event) error {
		return errors.New("boom")
	}))
	sink := event.NewSink()
	d.Subscribe(event.All, sink)

	assert.NoError(t, d.Trigger(context.Background(), templateCreated(1)))
	assert.Len(t, sink.Events(), 1)
}

// TestDispatcher_WithDB 测试事务内触发的事件在提交后才通知观察者
func TestDispatcher_WithDB(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	d := event.NewDispatcher(db, testutil.NewLogger())
	sink := event.NewSink()
	d.Subscribe(event.All, sink)

	countEvents := func() int64 {
		var n int64
		require.NoError(t, db.Model(&model.EventModel{}).Count(&n).Error)
		return n
	}

	// 1. 回滚: 事件不落库,观察者不被通知
	var rolledBack event.Dispatcher
	err := db.Transaction(func(tx *gorm.DB) error {
		rolledBack = d.WithDB(tx)
		require.NoError(t, rolledBack.Trigger(ctx, templateCreated(1)))
		return errors.New("rollback")
	})
	require.Error(t, err)
	assert.Equal(t, int64(0), countEvents())
	assert.Empty(t, sink.Events())

	// 2. 提交: Flush 前不通知
	var committed event.Dispatcher
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		committed = d.WithDB(tx)
		require.NoError(t, committed.Trigger(ctx, templateCreated(2)))
		return committed.Trigger(ctx, templateCreated(3))
	}))
	assert.Equal(t, int64(2), countEvents())
	assert.Empty(t, sink.Events())

	committed.Flush(ctx)
	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].ObjectID)
	assert.Equal(t, int64(3), events[1].ObjectID)

	// 3. 重复 Flush 不重复通知
	committed.Flush(ctx)
	assert.Len(t, sink.Events(), 2)
}

// TestDispatcher_RejectsInvalidEvent 测试缺少上下文的事件
func TestDispatcher_RejectsInvalidEvent(t *testing.T) {
	d := event.NewDispatcher(testutil.NewDB(t), testutil.NewLogger())
	evt := templateCreated(1)
	evt.ContextID = 0
	assert.Error(t, d.Trigger(context.Background(), evt))
}

// TestEvent_Description 测试事件描述
func TestEvent_Description(t *testing.T) {
	evt := &event.Event{Name: event.CertificateIssued, UserID: "admin", ObjectID: 7, RelatedUserID: "u1"}
	assert.Equal(t, "The user with id 'admin' issued the certificate with id '7' to the user with id 'u1'.", evt.Description())
}

// TestWebhookObserver_Delivers 测试 Webhook 推送成功
func TestWebhookObserver_Delivers(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)

	var received atomic.Int32
	var name atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		name.Store(body["eventname"])
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	observer := event.NewWebhookObserver(db, []string{server.URL}, 1, testutil.NewLogger())
	defer observer.Stop()

	d := event.NewDispatcher(db, testutil.NewLogger())
	d.Subscribe(event.All, observer)

	evt := templateCreated(1)
	require.NoError(t, d.Trigger(ctx, evt))

	repo := repository.NewEventRepository(db)
	assert.Eventually(t, func() bool {
		stored, err := repo.FindByID(ctx, evt.ID)
		return err == nil && stored.Status == model.EventStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, "template_created", name.Load())
}

// TestWebhookObserver_RetriesThenFails 测试 Webhook 推送失败重试
func TestWebhookObserver_RetriesThenFails(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	observer := event.NewWebhookObserver(db, []string{server.URL}, 1, testutil.NewLogger(),
		event.WithBackoff(5*time.Millisecond), event.WithMaxRetries(3))
	defer observer.Stop()

	d := event.NewDispatcher(db, testutil.NewLogger())
	d.Subscribe(event.All, observer)

	evt := templateCreated(1)
	require.NoError(t, d.Trigger(ctx, evt))

	repo := repository.NewEventRepository(db)
	assert.Eventually(t, func() bool {
		stored, err := repo.FindByID(ctx, evt.ID)
		return err == nil && stored.Status == model.EventStatusFailed && stored.RetryCount == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())
}

// TestWebhookObserver_NoURLs 测试没有 Webhook 配置时直接标记成功
func TestWebhookObserver_NoURLs(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)

	observer := event.NewWebhookObserver(db, nil, 1, testutil.NewLogger())
	defer observer.Stop()

	d := event.NewDispatcher(db, testutil.NewLogger())
	d.Subscribe(event.All, observer)

	evt := templateCreated(1)
	require.NoError(t, d.Trigger(ctx, evt))

	repo := repository.NewEventRepository(db)
	assert.Eventually(t, func() bool {
		stored, err := repo.FindByID(ctx, evt.ID)
		return err == nil && stored.Status == model.EventStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
}
