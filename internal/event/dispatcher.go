package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Observer 事件观察者
type Observer interface {
	Notify(ctx context.Context, evt *Event) error
}

// ObserverFunc 函数形式的观察者
type ObserverFunc func(ctx context.Context, evt *Event) error

// Notify 调用函数
func (f ObserverFunc) Notify(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// Dispatcher 事件分发器接口
type Dispatcher interface {
	Trigger(ctx context.Context, evt *Event) error
	Subscribe(name Name, observer Observer) (unsubscribe func())
	// WithDB 返回绑定到事务的分发器,事件随事务写入,观察者推迟到 Flush 通知
	WithDB(tx *gorm.DB) Dispatcher
	// Flush 通知事务期间写入的事件,事务提交后调用
	Flush(ctx context.Context)
}

type subscription struct {
	id       int
	name     Name
	observer Observer
}

// observers 订阅列表,事务分发器与根分发器共享
type observers struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

// dispatcher 事件分发器实现
type dispatcher struct {
	eventRepo repository.EventRepository
	logger    logrus.FieldLogger
	now       func() time.Time
	observers *observers

	deferred bool
	mu       sync.Mutex
	pending  []*Event
}

// NewDispatcher 创建事件分发器
func NewDispatcher(db *gorm.DB, logger logrus.FieldLogger) Dispatcher {
	return &dispatcher{
		eventRepo: repository.NewEventRepository(db),
		logger:    logger,
		now:       time.Now,
		observers: &observers{},
	}
}

// WithDB 绑定事务
func (d *dispatcher) WithDB(tx *gorm.DB) Dispatcher {
	return &dispatcher{
		eventRepo: repository.NewEventRepository(tx),
		logger:    d.logger,
		now:       d.now,
		observers: d.observers,
		deferred:  true,
	}
}

// Trigger 持久化事件并同步通知观察者,观察者错误只记录日志
func (d *dispatcher) Trigger(ctx context.Context, evt *Event) error {
	if evt.TimeCreated.IsZero() {
		evt.TimeCreated = d.now()
	}

	// 1. 持久化事件
	m, err := evt.toModel()
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if err := d.eventRepo.Save(ctx, m); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	evt.ID = m.ID

	d.logger.WithFields(logrus.Fields{
		"event":     evt.Name,
		"event_id":  evt.ID,
		"object_id": evt.ObjectID,
	}).Debug(evt.Description())

	// 2. 通知观察者
	if d.deferred {
		d.mu.Lock()
		d.pending = append(d.pending, evt)
		d.mu.Unlock()
		return nil
	}
	d.notify(ctx, evt)
	return nil
}

// Flush 按触发顺序通知积累的事件
func (d *dispatcher) Flush(ctx context.Context) {
	d.mu.Lock()
	events := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, evt := range events {
		d.notify(ctx, evt)
	}
}

func (d *dispatcher) notify(ctx context.Context, evt *Event) {
	d.observers.mu.RLock()
	subs := make([]subscription, 0, len(d.observers.subs))
	for _, s := range d.observers.subs {
		if s.name == All || s.name == evt.Name {
			subs = append(subs, s)
		}
	}
	d.observers.mu.RUnlock()

	for _, s := range subs {
		if err := s.observer.Notify(ctx, evt); err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"event":    evt.Name,
				"event_id": evt.ID,
			}).Warn("event observer failed")
		}
	}
}

// Subscribe 订阅事件,name 为 All 时接收所有事件
func (d *dispatcher) Subscribe(name Name, observer Observer) func() {
	o := d.observers
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscription{id: id, name: name, observer: observer})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i], o.subs[i+1:]...)
				return
			}
		}
	}
}
