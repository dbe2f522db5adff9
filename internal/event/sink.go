package event

import (
	"context"
	"sync"
)

// Sink 记录收到的事件
type Sink struct {
	mu     sync.Mutex
	events []*Event
}

// NewSink 创建事件记录器
func NewSink() *Sink {
	return &Sink{}
}

// Notify 记录事件
func (s *Sink) Notify(_ context.Context, evt *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *evt
	s.events = append(s.events, &cp)
	return nil
}

// Events 按触发顺序返回所有事件
func (s *Sink) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByName 返回指定名称的事件
func (s *Sink) ByName(name Name) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset 清空记录
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
