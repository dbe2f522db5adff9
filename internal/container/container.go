package container

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/certificate"
	"github.com/mautops/certificate-gin/internal/config"
	"github.com/mautops/certificate-gin/internal/database"
	"github.com/mautops/certificate-gin/internal/event"
	"github.com/mautops/certificate-gin/internal/external"
	"github.com/mautops/certificate-gin/internal/message"
	"github.com/mautops/certificate-gin/internal/metrics"
	"github.com/mautops/certificate-gin/internal/pdf"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/service"
	"github.com/mautops/certificate-gin/internal/storage"
	"github.com/mautops/certificate-gin/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、存储、授权、通知和服务
type Container struct {
	db                *gorm.DB
	logger            *logrus.Logger
	fgaClient         *auth.OpenFGAClient
	authorizer        auth.Authorizer
	keycloakValidator *auth.KeycloakTokenValidator
	hub               *websocket.Hub
	webhook           *event.WebhookObserver
	collector         *metrics.Collector
	manager           *certificate.Manager
	registry          *external.Registry

	templateService   service.TemplateService
	issueService      service.IssueService
	statisticsService service.StatisticsService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	c := &Container{logger: logger}

	// 1. 初始化数据库（带重试机制）
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db

	if err := database.Migrate(db); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. 初始化文件存储
	backend, err := newBackend(cfg.Storage)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	files := storage.NewFileStorage(db, backend, logger)

	// 3. 初始化授权
	var opts []certificate.Option
	if cfg.OpenFGA.Enabled {
		fgaClient, err := auth.NewOpenFGAClientWithRetry(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		c.fgaClient = fgaClient
		cache := auth.NewPermissionCache(time.Duration(cfg.OpenFGA.CacheTTL) * time.Second)
		cached := auth.NewCachedOpenFGAClient(fgaClient, cache)
		c.authorizer = auth.NewFGAAuthorizer(cached)
		opts = append(opts, certificate.WithContextLinker(cached))
	} else {
		roles := cfg.Authorization.Roles
		if len(roles) == 0 {
			roles = config.DefaultRoleCapabilities()
		}
		c.authorizer = auth.NewRoleAuthorizer(roles)
	}

	c.keycloakValidator = auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer, cfg.Keycloak.JWKSURL, cfg.Keycloak.TenantClaim)

	// 4. 初始化事件和通知
	dispatcher := event.NewDispatcher(db, logger)
	if len(cfg.Webhook.URLs) > 0 {
		c.webhook = event.NewWebhookObserver(db, cfg.Webhook.URLs, cfg.Webhook.Workers, logger)
		dispatcher.Subscribe(event.All, c.webhook)
	}

	c.hub = websocket.NewHub()
	go c.hub.Run()

	var mailer message.Mailer
	if cfg.Notification.PostmarkServerToken != "" {
		pm, err := message.NewPostmarkMailer(cfg.Notification)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize mailer: %w", err)
		}
		mailer = pm
	} else {
		mailer = message.NewLogMailer(logger)
	}
	messages := message.NewSender(db, dispatcher, c.hub, mailer, logger)

	// 5. 初始化模板管理器和外部函数
	renderer := pdf.NewFPDFRenderer(cfg.Certificate.PageWidth, cfg.Certificate.PageHeight)
	c.manager = certificate.NewManager(db, files, dispatcher, messages, renderer, c.authorizer, cfg.Certificate, logger, opts...)

	c.registry = external.NewRegistry(logger)
	if err := external.RegisterTemplateFunctions(c.registry, c.manager); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to register external functions: %w", err)
	}

	// 6. 初始化服务
	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	c.templateService = service.NewTemplateService(c.manager, db, auditLogSvc)
	c.issueService = service.NewIssueService(c.manager, db, auditLogSvc)
	c.statisticsService = service.NewStatisticsService(db, c.authorizer)

	// 7. 启动指标采集
	c.collector = metrics.NewCollector(db, 15*time.Second, logger)
	c.collector.Start()

	return c, nil
}

// newBackend 根据配置选择存储后端
func newBackend(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return storage.NewS3Backend(ctx, cfg.S3)
	case "", "local":
		dir := cfg.LocalDir
		if dir == "" {
			dir = "./data/files"
		}
		return storage.NewLocalBackend(dir)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// OpenFGAClient 获取 OpenFGA 客户端,未启用时为 nil
func (c *Container) OpenFGAClient() *auth.OpenFGAClient {
	return c.fgaClient
}

// KeycloakValidator 获取 Keycloak Token 验证器
func (c *Container) KeycloakValidator() *auth.KeycloakTokenValidator {
	return c.keycloakValidator
}

// Hub 获取 WebSocket Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// Registry 获取外部函数注册表
func (c *Container) Registry() *external.Registry {
	return c.registry
}

// TemplateService 获取模板服务
func (c *Container) TemplateService() service.TemplateService {
	return c.templateService
}

// IssueService 获取颁发服务
func (c *Container) IssueService() service.IssueService {
	return c.issueService
}

// StatisticsService 获取统计服务
func (c *Container) StatisticsService() service.StatisticsService {
	return c.statisticsService
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.collector != nil {
		c.collector.Stop()
	}
	if c.webhook != nil {
		c.webhook.Stop()
	}
	if c.hub != nil {
		c.hub.Stop()
	}
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	return nil
}
