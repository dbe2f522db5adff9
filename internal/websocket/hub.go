package websocket

import (
	"sync"

	"github.com/mautops/certificate-gin/internal/metrics"
)

// Hub 按用户管理 WebSocket 连接
type Hub struct {
	// 用户 ID -> 客户端集合
	clients map[string]map[*Client]bool

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	stop chan struct{}
	once sync.Once

	// 互斥锁，保护 clients map
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run 运行 Hub,直到 Stop 被调用
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case <-h.stop:
			h.closeAll()
			return
		}
	}
}

// Stop 停止 Hub 并关闭所有客户端
func (h *Hub) Stop() {
	h.once.Do(func() {
		close(h.stop)
	})
}

// Attach 注册客户端,Hub 已停止时返回 false
func (h *Hub) Attach(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.stop:
		return false
	}
}

// Detach 注销客户端
func (h *Hub) Detach(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.stop:
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok {
		set = make(map[*Client]bool)
		h.clients[client.UserID] = set
	}
	set[client] = true
	h.reportLocked()
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	set, ok := h.clients[client.UserID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	close(client.Send)
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
	h.reportLocked()
}

func (h *Hub) reportLocked() {
	count := 0
	for _, set := range h.clients {
		count += len(set)
	}
	metrics.SetNotificationConnections(count)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for client := range set {
			h.removeLocked(client)
		}
	}
}

// SendToUser 向用户的所有连接发送消息,返回送达的连接数
// 发送缓冲已满的连接会被断开
func (h *Hub) SendToUser(userID string, message []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for client := range h.clients[userID] {
		select {
		case client.Send <- message:
			delivered++
		default:
			h.removeLocked(client)
		}
	}
	return delivered
}

// HasClient 检查客户端是否存在
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, set := range h.clients {
		for client := range set {
			if client.ID == clientID {
				return true
			}
		}
	}
	return false
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, set := range h.clients {
		count += len(set)
	}
	return count
}

// GetUserClientCount 获取用户的连接数量
func (h *Hub) GetUserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
