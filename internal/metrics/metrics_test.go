package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mautops/certificate-gin/internal/metrics"
	"github.com/mautops/certificate-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

// TestRecorders 测试业务指标导出
func TestRecorders(t *testing.T) {
	metrics.RecordAPIRequest(http.MethodGet, "/api/v1/templates", http.StatusOK, 0.01)
	metrics.RecordTemplateOperation("created")
	metrics.RecordCertificateOperation("issued")
	metrics.RecordIssueFileGenerated(false)
	metrics.RecordIssueFileGenerated(true)
	metrics.SetNotificationConnections(2)

	body := scrape(t)
	assert.Contains(t, body, `certificate_template_operations_total{action="created"}`)
	assert.Contains(t, body, `certificate_operations_total{action="issued"}`)
	assert.Contains(t, body, `certificate_issue_files_generated_total{mode="create"}`)
	assert.Contains(t, body, `certificate_issue_files_generated_total{mode="regenerate"}`)
	assert.Contains(t, body, "certificate_notification_connections 2")
	assert.Contains(t, body, "api_requests_total")
}

// TestCollector_CollectOnce 测试数据库指标收集
func TestCollector_CollectOnce(t *testing.T) {
	db := testutil.NewDB(t)
	c := metrics.NewCollector(db, time.Hour, testutil.NewLogger())
	c.CollectOnce(context.Background())

	body := scrape(t)
	assert.Contains(t, body, "database_connections_max 1")
	assert.True(t, strings.Contains(body, `certificate_records{table="certificate_templates"} 0`))
	assert.Contains(t, body, `certificate_records{table="certificate_issues_emailed"} 0`)
}

// TestCollector_StartStop 测试启动和停止
func TestCollector_StartStop(t *testing.T) {
	c := metrics.NewCollector(testutil.NewDB(t), 10*time.Millisecond, nil)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()
}
