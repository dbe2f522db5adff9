package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WebhookObserver 将事件异步推送到 Webhook
type WebhookObserver struct {
	eventRepo  repository.EventRepository
	urls       []string
	httpClient *http.Client
	logger     logrus.FieldLogger
	queue      chan *Event
	stop       chan struct{}
	wg         sync.WaitGroup
	stopOnce   sync.Once
	maxRetries int
	backoff    time.Duration
}

// WebhookOption Webhook 推送选项
type WebhookOption func(*WebhookObserver)

// WithBackoff 设置首次重试等待时间
func WithBackoff(d time.Duration) WebhookOption {
	return func(w *WebhookObserver) {
		w.backoff = d
	}
}

// WithMaxRetries 设置最大尝试次数
func WithMaxRetries(n int) WebhookOption {
	return func(w *WebhookObserver) {
		if n > 0 {
			w.maxRetries = n
		}
	}
}

// WithHTTPClient 设置 HTTP 客户端
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookObserver) {
		w.httpClient = c
	}
}

// NewWebhookObserver 创建 Webhook 推送器并启动 worker
func NewWebhookObserver(db *gorm.DB, urls []string, workers int, logger logrus.FieldLogger, opts ...WebhookOption) *WebhookObserver {
	if workers <= 0 {
		workers = 1
	}

	w := &WebhookObserver{
		eventRepo:  repository.NewEventRepository(db),
		urls:       urls,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		queue:      make(chan *Event, 1000),
		stop:       make(chan struct{}),
		maxRetries: 3,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}

	// 启动 worker goroutines
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	return w
}

// Notify 事件入队,队列满时丢弃
func (w *WebhookObserver) Notify(_ context.Context, evt *Event) error {
	cp := *evt
	select {
	case w.queue <- &cp:
	default:
		w.logger.WithFields(logrus.Fields{
			"event":    evt.Name,
			"event_id": evt.ID,
		}).Warn("event queue full, dropping event")
	}
	return nil
}

// worker 事件处理 worker
func (w *WebhookObserver) worker() {
	defer w.wg.Done()
	for {
		select {
		case evt := <-w.queue:
			w.push(evt)
		case <-w.stop:
			return
		}
	}
}

// push 推送到所有 Webhook,失败时指数退避重试
func (w *WebhookObserver) push(evt *Event) {
	ctx := context.Background()

	// 没有 Webhook 配置,无需推送
	if len(w.urls) == 0 {
		w.updateStatus(ctx, evt.ID, model.EventStatusSuccess, 0)
		return
	}

	backoff := w.backoff
	retries := 0
	for i := 0; i < w.maxRetries; i++ {
		success := true
		for _, url := range w.urls {
			if err := w.send(ctx, url, evt); err != nil {
				success = false
				w.logger.WithError(err).WithFields(logrus.Fields{
					"event_id": evt.ID,
					"url":      url,
				}).Warn("failed to send webhook request")
			}
		}

		if success {
			w.updateStatus(ctx, evt.ID, model.EventStatusSuccess, retries)
			return
		}

		retries++
		w.updateStatus(ctx, evt.ID, model.EventStatusPending, retries)

		if i < w.maxRetries-1 {
			select {
			case <-time.After(backoff):
			case <-w.stop:
				return
			}
			backoff *= 2 // 指数退避
		}
	}

	// 所有重试都失败
	w.updateStatus(ctx, evt.ID, model.EventStatusFailed, retries)
}

// send 发送单个 Webhook 请求
func (w *WebhookObserver) send(ctx context.Context, url string, evt *Event) error {
	payload, err := json.Marshal(struct {
		*Event
		Description string `json:"description"`
	}{evt, evt.Description()})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Name", string(evt.Name))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookObserver) updateStatus(ctx context.Context, id int64, status string, retries int) {
	if id == 0 {
		return
	}
	if err := w.eventRepo.UpdateStatus(ctx, id, status, retries); err != nil {
		w.logger.WithError(err).WithField("event_id", id).Error("failed to update event status")
	}
}

// Stop 停止推送并等待 worker 退出
func (w *WebhookObserver) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()
}
