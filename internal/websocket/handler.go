package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/sirupsen/logrus"
)

// NewUpgrader 创建升级器,allowedOrigins 包含 * 时不检查来源
func NewUpgrader(allowedOrigins []string) gorillaWS.Upgrader {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// NotificationHandler 通知推送 WebSocket 处理器
// token 通过 query 参数传递
func NotificationHandler(hub *Hub, validator auth.TokenValidator, upgrader gorillaWS.Upgrader, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从 query 参数获取 token
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "missing token"})
			return
		}

		// 2. 验证 token
		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "invalid token"})
			return
		}

		// 3. 升级连接,失败时 upgrader 已写入响应
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.WithError(err).Warn("failed to upgrade websocket connection")
			return
		}

		// 4. 创建并注册客户端
		client := NewClient(uuid.New().String(), claims.Sub, hub, conn, logger)
		if !hub.Attach(client) {
			_ = conn.Close()
			return
		}

		// 5. 开始推送
		client.Serve()
	}
}
