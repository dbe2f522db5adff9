package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	_ "github.com/mautops/certificate-gin/docs" // 导入生成的 docs 包
	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/config"
	"github.com/mautops/certificate-gin/internal/external"
	"github.com/mautops/certificate-gin/internal/metrics"
	"github.com/mautops/certificate-gin/internal/service"
	"github.com/mautops/certificate-gin/internal/websocket"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// RouterConfig 路由依赖
type RouterConfig struct {
	Logger    *logrus.Logger
	DB        *gorm.DB
	Validator auth.TokenValidator
	FGA       HealthChecker
	Hub       *websocket.Hub

	Server  config.ServerConfig
	CORS    config.CORSConfig
	Tracing bool

	Templates  service.TemplateService
	Issues     service.IssueService
	Statistics service.StatisticsService
	Registry   *external.Registry
}

// SetupRoutesWithConfig 配置路由
func SetupRoutesWithConfig(rc *RouterConfig) *gin.Engine {
	logger := rc.Logger
	if logger == nil {
		logger = GetLogger()
	}

	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	if rc.Tracing {
		router.Use(TracingMiddleware())
	}
	router.Use(RequestLogMiddleware(logger))
	router.Use(SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(rc.CORS))
	if rc.Server.RateLimit > 0 {
		router.Use(RateLimitMiddleware(rc.Server.RateLimit, rc.Server.RateBurst))
	}
	router.Use(ErrorHandlerMiddleware(logger))

	// 健康检查
	healthController := NewHealthController(rc.DB, rc.FGA)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// WebSocket 通知
	if rc.Hub != nil && rc.Validator != nil {
		upgrader := websocket.NewUpgrader(rc.CORS.AllowedOrigins)
		router.GET("/ws/notifications", websocket.NotificationHandler(rc.Hub, rc.Validator, upgrader, logger))
	}

	// Swagger UI 路由
	// 如果 host 是 0.0.0.0,使用 localhost 作为 Swagger URL
	swaggerHost := rc.Server.Host
	if swaggerHost == "" || swaggerHost == "0.0.0.0" {
		swaggerHost = "localhost"
	}
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL(fmt.Sprintf("http://%s:%d/swagger/doc.json", swaggerHost, rc.Server.Port)),
	))

	required := auth.KeycloakAuthMiddleware(rc.Validator)
	optional := auth.OptionalAuthMiddleware(rc.Validator)

	// 证书查看和验证
	certificateController := NewCertificateController(rc.Issues, logger)
	certificates := router.Group("/certificate", optional)
	{
		certificates.GET("/view", certificateController.View)
		certificates.GET("/verify", certificateController.Verify)
	}

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// 外部函数,未登录的调用由各函数返回 requireloginerror
		rpcController := NewRPCController(rc.Registry, logger)
		v1.POST("/rpc", optional, rpcController.Call)

		secured := v1.Group("", required)

		// 模板管理路由
		templateController := NewTemplateController(rc.Templates, logger)
		issueController := NewIssueController(rc.Issues, logger)
		templates := secured.Group("/templates")
		{
			templates.POST("", templateController.Create)
			templates.GET("", templateController.List)
			templates.GET("/potential", templateController.PotentialCertificates)
			templates.GET("/:id", templateController.Get)
			templates.PUT("/:id", templateController.Update)
			templates.DELETE("/:id", templateController.Delete)
			templates.POST("/:id/duplicate", templateController.Duplicate)

			// 页面
			templates.POST("/:id/pages", templateController.AddPage)
			templates.PUT("/:id/pages", templateController.SavePages)
			templates.DELETE("/:id/pages/:pageid", templateController.DeletePage)

			// 颁发
			templates.POST("/:id/issues", issueController.Issue)
			templates.GET("/:id/issues", issueController.List)
			templates.DELETE("/:id/issues/:issueid", issueController.Revoke)
			templates.POST("/:id/issues/:issueid/file", issueController.RegenerateFile)
		}

		secured.GET("/my/certificates", issueController.ListMine)

		// 统计
		if rc.Statistics != nil {
			statisticsController := NewStatisticsController(rc.Statistics, logger)
			statistics := secured.Group("/statistics")
			{
				statistics.GET("/summary", statisticsController.Summary)
				statistics.GET("/templates", statisticsController.ByTemplate)
				statistics.GET("/daily", statisticsController.ByTime)
			}
		}
	}

	// 自定义 NoRoute 处理器,返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
