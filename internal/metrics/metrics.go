package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 模板操作数
	templateOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_template_operations_total",
			Help: "Total number of certificate template operations",
		},
		[]string{"action"}, // created, duplicated, deleted
	)

	// 证书颁发与撤销数
	certificateOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_operations_total",
			Help: "Total number of certificates issued or revoked",
		},
		[]string{"action"}, // issued, revoked
	)

	// 证书文件生成数
	issueFilesGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_issue_files_generated_total",
			Help: "Total number of certificate PDF files generated",
		},
		[]string{"mode"}, // create, regenerate
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 在线的通知连接
	notificationConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "certificate_notification_connections",
			Help: "Number of open notification websocket connections",
		},
	)

	// 记录数量
	recordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "certificate_records",
			Help: "Number of stored records by table",
		},
		[]string{"table"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(templateOperationsTotal)
	prometheus.MustRegister(certificateOperationsTotal)
	prometheus.MustRegister(issueFilesGeneratedTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(recordsTotal)
	prometheus.MustRegister(notificationConnections)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		// 尝试注册 Go 运行时指标，如果已注册则忽略错误
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTemplateOperation 记录模板操作
func RecordTemplateOperation(action string) {
	templateOperationsTotal.WithLabelValues(action).Inc()
}

// RecordCertificateOperation 记录证书颁发或撤销
func RecordCertificateOperation(action string) {
	certificateOperationsTotal.WithLabelValues(action).Inc()
}

// RecordIssueFileGenerated 记录证书文件生成
func RecordIssueFileGenerated(regenerate bool) {
	mode := "create"
	if regenerate {
		mode = "regenerate"
	}
	issueFilesGeneratedTotal.WithLabelValues(mode).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateRecordCount 更新记录数量指标
func UpdateRecordCount(table string, count float64) {
	recordsTotal.WithLabelValues(table).Set(count)
}

// SetNotificationConnections 更新通知连接数
func SetNotificationConnections(n int) {
	notificationConnections.Set(float64(n))
}
