package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// 通知通道是单向的,客户端只会发送控制帧
	maxInboundSize = 4 * 1024

	sendBuffer = 256
)

// Client 一个用户的通知连接
type Client struct {
	ID     string
	UserID string

	// Send 待推送的通知,Hub 注销客户端时关闭
	Send chan []byte

	hub    *Hub
	conn   *websocket.Conn
	logger logrus.FieldLogger
}

// NewClient 创建客户端,conn 为 nil 时只能用于 Hub 内部投递
func NewClient(id string, userID string, hub *Hub, conn *websocket.Conn, logger logrus.FieldLogger) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
		hub:    hub,
		conn:   conn,
		logger: logger.WithFields(logrus.Fields{"client_id": id, "user_id": userID}),
	}
}

// Serve 启动读写循环,读循环结束时从 Hub 注销
func (c *Client) Serve() {
	go c.watch()
	go c.deliver()
}

// watch 只处理 pong 和关闭帧,用来发现断开的连接
func (c *Client) watch() {
	defer func() {
		c.hub.Detach(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("notification connection dropped")
			}
			return
		}
	}
}

// deliver 把通知逐条写出,并定时 ping
func (c *Client) deliver() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.logger.WithError(err).Debug("failed to push notification")
				return
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, payload)
}
