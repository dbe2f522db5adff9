package websocket_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/testutil"
	"github.com/mautops/certificate-gin/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticValidator 固定 token 的验证器
type staticValidator map[string]string

func (v staticValidator) ValidateToken(token string) (*auth.KeycloakClaims, error) {
	userID, ok := v[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &auth.KeycloakClaims{Sub: userID}, nil
}

// TestHub_SendToUser 测试按用户推送
func TestHub_SendToUser(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	a1 := websocket.NewClient("c1", "alice", hub, nil, testutil.NewLogger())
	a2 := websocket.NewClient("c2", "alice", hub, nil, testutil.NewLogger())
	b := websocket.NewClient("c3", "bob", hub, nil, testutil.NewLogger())
	for _, c := range []*websocket.Client{a1, a2, b} {
		require.True(t, hub.Attach(c))
	}

	assert.Eventually(t, func() bool { return hub.GetClientCount() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, hub.GetUserClientCount("alice"))
	assert.True(t, hub.HasClient("c3"))

	assert.Equal(t, 2, hub.SendToUser("alice", []byte("hello")))
	assert.Equal(t, "hello", string(<-a1.Send))
	assert.Equal(t, "hello", string(<-a2.Send))
	assert.Empty(t, b.Send)
	assert.Equal(t, 0, hub.SendToUser("nobody", []byte("x")))

	hub.Detach(a1)
	assert.Eventually(t, func() bool { return hub.GetUserClientCount("alice") == 1 }, time.Second, 5*time.Millisecond)
	_, open := <-a1.Send
	assert.False(t, open)
}

// TestNotificationHandler 测试 WebSocket 认证和推送
func TestNotificationHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	router := gin.New()
	router.GET("/ws/notifications", websocket.NotificationHandler(hub,
		staticValidator{"good": "alice"}, websocket.NewUpgrader([]string{"*"}), testutil.NewLogger()))
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/notifications"

	_, resp, err := gorillaWS.DefaultDialer.Dial(wsURL+"?token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := gorillaWS.DefaultDialer.Dial(wsURL+"?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetUserClientCount("alice") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.SendToUser("alice", []byte(`{"subject":"hi"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"subject":"hi"}`, string(msg))
}
