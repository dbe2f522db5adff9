package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/certificate"
	"github.com/mautops/certificate-gin/internal/config"
	"github.com/mautops/certificate-gin/internal/event"
	"github.com/mautops/certificate-gin/internal/message"
	"github.com/mautops/certificate-gin/internal/pdf"
	"github.com/mautops/certificate-gin/internal/storage"
	"gorm.io/gorm"
)

// Pusher 记录推送的消息
type Pusher struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

// SendToUser 记录推送
func (p *Pusher) SendToUser(userID string, msg []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == nil {
		p.frames = make(map[string][][]byte)
	}
	p.frames[userID] = append(p.frames[userID], msg)
	return 1
}

// Frames 返回推送给用户的消息
func (p *Pusher) Frames(userID string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[userID]
}

// Env 证书领域测试环境
type Env struct {
	DB       *gorm.DB
	Backend  *storage.MemoryBackend
	Files    storage.FileStorage
	Events   *event.Sink
	Pusher   *Pusher
	Config   *config.Config
	Manager  *certificate.Manager
	Messages message.Sender
}

// NewEnv 创建测试环境: 内存数据库、内存文件存储、事件记录和角色授权
func NewEnv(t testing.TB) *Env {
	t.Helper()

	db := NewDB(t)
	logger := NewLogger()
	cfg := config.Default()

	backend := storage.NewMemoryBackend()
	files := storage.NewFileStorage(db, backend, logger)

	dispatcher := event.NewDispatcher(db, logger)
	sink := event.NewSink()
	dispatcher.Subscribe(event.All, sink)

	pusher := &Pusher{}
	sender := message.NewSender(db, dispatcher, pusher, message.NewLogMailer(logger), logger)

	manager := certificate.NewManager(
		db,
		files,
		dispatcher,
		sender,
		pdf.NewFPDFRenderer(cfg.Certificate.PageWidth, cfg.Certificate.PageHeight),
		auth.NewRoleAuthorizer(config.DefaultRoleCapabilities()),
		cfg.Certificate,
		logger,
	)

	return &Env{
		DB:       db,
		Backend:  backend,
		Files:    files,
		Events:   sink,
		Pusher:   pusher,
		Config:   cfg,
		Manager:  manager,
		Messages: sender,
	}
}

// Count 统计表记录数
func (e *Env) Count(t testing.TB, table string, query ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.DB.Table(table)
	if len(query) > 0 {
		q = q.Where(query[0], query[1:]...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

// Admin 管理员
func Admin() *auth.Principal {
	return &auth.Principal{UserID: "admin", Username: "admin", FullName: "Admin User", Roles: []string{"admin"}}
}

// Manager 模板管理员,可选绑定租户
func Manager(tenantID int64) *auth.Principal {
	return &auth.Principal{UserID: "manager", Username: "manager", Roles: []string{"manager"}, TenantID: tenantID}
}

// Issuer 只能颁发证书的用户
func Issuer() *auth.Principal {
	return &auth.Principal{UserID: "issuer", Username: "issuer", Roles: []string{"issuer"}}
}

// Student 普通用户
func Student(id string) *auth.Principal {
	return &auth.Principal{UserID: id, Username: id, Roles: []string{"user"}}
}

// AdminContext 携带管理员身份的 context
func AdminContext() context.Context {
	return auth.WithPrincipal(context.Background(), Admin())
}
