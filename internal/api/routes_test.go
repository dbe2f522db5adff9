package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mautops/certificate-gin/internal/api"
	"github.com/mautops/certificate-gin/internal/certificate"
	"github.com/mautops/certificate-gin/internal/config"
	"github.com/mautops/certificate-gin/internal/external"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/service"
	"github.com/mautops/certificate-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminToken   = "admin-token"
	issuerToken  = "issuer-token"
	studentToken = "student-token"
	otherToken   = "other-token"
)

// newRouter 基于内存环境创建完整路由
func newRouter(t *testing.T) (*gin.Engine, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	logger := testutil.NewLogger()

	audit := service.NewAuditLogService(repository.NewAuditLogRepository(env.DB))
	registry := external.NewRegistry(logger)
	require.NoError(t, external.RegisterTemplateFunctions(registry, env.Manager))

	router := api.SetupRoutesWithConfig(&api.RouterConfig{
		Logger: logger,
		DB:     env.DB,
		Validator: testutil.TokenValidator{
			adminToken:   testutil.Admin(),
			issuerToken:  testutil.Issuer(),
			studentToken: testutil.Student("s1"),
			otherToken:   testutil.Student("s2"),
		},
		Server:     config.ServerConfig{Host: "0.0.0.0", Port: 8080},
		CORS:       config.CORSConfig{AllowedOrigins: []string{"*"}},
		Templates:  service.NewTemplateService(env.Manager, env.DB, audit),
		Issues:     service.NewIssueService(env.Manager, env.DB, audit),
		Statistics: service.NewStatisticsService(env.DB, env.Manager.Authorizer()),
		Registry:   registry,
	})
	return router, env
}

// call 发送 JSON 请求
func call(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return serve(router, req)
}

// decode 解析统一响应中的 data
func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func createTemplate(t *testing.T, router *gin.Engine, name string) service.TemplateResponse {
	t.Helper()
	w := call(t, router, http.MethodPost, "/api/v1/templates", adminToken, gin.H{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tpl service.TemplateResponse
	decode(t, w, &tpl)
	return tpl
}

// TestRoutes_System 测试系统路由
func TestRoutes_System(t *testing.T) {
	router, _ := newRouter(t)

	w := call(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"healthy"`)

	w = call(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(t, router, http.MethodGet, "/no/such/route", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "route not found")

	w = call(t, router, http.MethodGet, "/api/v1/templates", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(t, router, http.MethodGet, "/api/v1/templates", "bad-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestRoutes_Templates 测试模板接口
func TestRoutes_Templates(t *testing.T) {
	router, env := newRouter(t)
	tpl := createTemplate(t, router, "Course completion")
	assert.NotZero(t, tpl.ID)
	require.Len(t, tpl.Pages, 1)

	path := fmt.Sprintf("/api/v1/templates/%d", tpl.ID)

	t.Run("get", func(t *testing.T) {
		w := call(t, router, http.MethodGet, path, adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got service.TemplateResponse
		decode(t, w, &got)
		assert.Equal(t, "Course completion", got.Name)

		assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodGet, path, studentToken, nil).Code)
		assert.Equal(t, http.StatusNotFound, call(t, router, http.MethodGet, "/api/v1/templates/9999", adminToken, nil).Code)
		assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodGet, "/api/v1/templates/abc", adminToken, nil).Code)
	})

	t.Run("update", func(t *testing.T) {
		w := call(t, router, http.MethodPut, path, adminToken, gin.H{"name": "Renamed"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var got service.TemplateResponse
		decode(t, w, &got)
		assert.Equal(t, "Renamed", got.Name)

		assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodPut, path, adminToken, gin.H{}).Code)
	})

	t.Run("list", func(t *testing.T) {
		createTemplate(t, router, "Another")
		w := call(t, router, http.MethodGet, "/api/v1/templates?search=renam&page_size=10", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp api.PaginatedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.Pagination.Total)
		assert.Equal(t, 10, resp.Pagination.PageSize)

		assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodGet, "/api/v1/templates?sort_by=password", adminToken, nil).Code)
		assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodGet, "/api/v1/templates", issuerToken, nil).Code)
	})

	t.Run("potential", func(t *testing.T) {
		w := call(t, router, http.MethodGet, "/api/v1/templates/potential?search=renamed", issuerToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Renamed")
	})

	t.Run("duplicate", func(t *testing.T) {
		w := call(t, router, http.MethodPost, path+"/duplicate", adminToken, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var dup service.TemplateResponse
		decode(t, w, &dup)
		assert.NotEqual(t, tpl.ID, dup.ID)
		assert.Len(t, dup.Pages, 1)
	})

	t.Run("delete", func(t *testing.T) {
		before := env.Count(t, "certificate_templates")
		require.Equal(t, http.StatusOK, call(t, router, http.MethodDelete, path, adminToken, nil).Code)
		assert.Equal(t, before-1, env.Count(t, "certificate_templates"))
		assert.Equal(t, http.StatusNotFound, call(t, router, http.MethodDelete, path, adminToken, nil).Code)
	})
}

// TestRoutes_Pages 测试模板页面接口
func TestRoutes_Pages(t *testing.T) {
	router, env := newRouter(t)
	tpl := createTemplate(t, router, "Course completion")
	path := fmt.Sprintf("/api/v1/templates/%d/pages", tpl.ID)

	w := call(t, router, http.MethodPost, path, adminToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var page service.PageResponse
	decode(t, w, &page)
	assert.Equal(t, 2, page.Sequence)
	assert.Equal(t, tpl.Pages[0].Width, page.Width)

	form := url.Values{}
	form.Set(fmt.Sprintf("%s%d", certificate.FieldPageWidth, page.ID), "210")
	form.Set(fmt.Sprintf("%s%d", certificate.FieldPageHeight, page.ID), "297")
	form.Set(fmt.Sprintf("%s%d", certificate.FieldPageLeftMargin, page.ID), "10")
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = serve(router, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var saved service.TemplateResponse
	decode(t, w, &saved)
	require.Len(t, saved.Pages, 2)
	assert.Equal(t, float64(210), saved.Pages[1].Width)
	assert.Equal(t, float64(10), saved.Pages[1].LeftMargin)

	w = call(t, router, http.MethodDelete, fmt.Sprintf("%s/%d", path, tpl.Pages[0].ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &saved)
	require.Len(t, saved.Pages, 1)
	assert.Equal(t, 1, saved.Pages[0].Sequence)
	assert.Equal(t, int64(1), env.Count(t, "certificate_pages"))

	assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodPost, path, issuerToken, nil).Code)
}

// TestRoutes_Issues 测试颁发、查看和验证
func TestRoutes_Issues(t *testing.T) {
	router, env := newRouter(t)
	tpl := createTemplate(t, router, "Course completion")
	path := fmt.Sprintf("/api/v1/templates/%d/issues", tpl.ID)

	w := call(t, router, http.MethodPost, path, issuerToken, gin.H{"userid": "s1", "userfullname": "Jane Doe"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issue service.IssueResponse
	decode(t, w, &issue)
	assert.Equal(t, "s1", issue.UserID)
	assert.NotEmpty(t, issue.Code)

	assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodPost, path, issuerToken, gin.H{}).Code)
	assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodPost, path, studentToken, gin.H{"userid": "s1"}).Code)

	t.Run("list", func(t *testing.T) {
		w := call(t, router, http.MethodGet, path, adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp api.PaginatedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.Pagination.Total)

		w = call(t, router, http.MethodGet, "/api/v1/my/certificates", otherToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(0), resp.Pagination.Total)
	})

	t.Run("view", func(t *testing.T) {
		w := call(t, router, http.MethodGet, "/certificate/view?code="+issue.Code, studentToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")

		w = call(t, router, http.MethodGet, "/certificate/view?download=1&code="+issue.Code, adminToken, nil)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

		assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodGet, "/certificate/view?code="+issue.Code, otherToken, nil).Code)
		assert.Equal(t, http.StatusNotFound, call(t, router, http.MethodGet, "/certificate/view?code=NOSUCHCODE", adminToken, nil).Code)
	})

	t.Run("verify", func(t *testing.T) {
		w := call(t, router, http.MethodGet, "/certificate/verify?code="+issue.Code, otherToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var result service.VerificationResponse
		decode(t, w, &result)
		assert.True(t, result.Valid)
		assert.Equal(t, "Jane Doe", result.UserFullName)

		w = call(t, router, http.MethodGet, "/certificate/verify?code=NOSUCHCODE", otherToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &result)
		assert.False(t, result.Valid)

		assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodGet, "/certificate/verify?code=bad%20code", otherToken, nil).Code)
		assert.Equal(t, http.StatusUnauthorized, call(t, router, http.MethodGet, "/certificate/verify?code="+issue.Code, "", nil).Code)
	})

	t.Run("regenerate", func(t *testing.T) {
		w := call(t, router, http.MethodPost, fmt.Sprintf("%s/%d/file", path, issue.ID), adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var info service.IssueFileInfo
		decode(t, w, &info)
		assert.Equal(t, issue.Code+".pdf", info.Name)
	})

	t.Run("statistics", func(t *testing.T) {
		w := call(t, router, http.MethodGet, "/api/v1/statistics/summary", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var summary service.CertificateSummary
		decode(t, w, &summary)
		assert.Equal(t, int64(1), summary.Issues)

		assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodGet, "/api/v1/statistics/summary", issuerToken, nil).Code)
	})

	t.Run("revoke", func(t *testing.T) {
		revoke := fmt.Sprintf("%s/%d", path, issue.ID)
		require.Equal(t, http.StatusOK, call(t, router, http.MethodDelete, revoke, issuerToken, nil).Code)
		assert.Equal(t, int64(0), env.Count(t, "certificate_issues"))
		assert.Equal(t, http.StatusNotFound, call(t, router, http.MethodDelete, revoke, issuerToken, nil).Code)
	})
}

// TestRoutes_RPC 测试外部函数批量调用
func TestRoutes_RPC(t *testing.T) {
	router, env := newRouter(t)
	tpl := createTemplate(t, router, "Course completion")

	batch := []external.Request{
		{Index: 0, MethodName: external.FuncDuplicateTemplate, Args: map[string]interface{}{"id": tpl.ID}},
		{Index: 1, MethodName: external.FuncPotentialCertificateSelector, Args: map[string]interface{}{"search": "course"}},
	}
	w := call(t, router, http.MethodPost, "/api/v1/rpc", adminToken, batch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var responses []external.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &responses))
	require.Len(t, responses, 2)
	assert.False(t, responses[0].Error)
	assert.False(t, responses[1].Error)
	assert.Equal(t, int64(2), env.Count(t, "certificate_templates"))

	// 未登录
	w = call(t, router, http.MethodPost, "/api/v1/rpc", "", batch[:1])
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &responses))
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Error)
	assert.Equal(t, "requireloginerror", responses[0].Exception.ErrorCode)

	// 删除
	del := []external.Request{{MethodName: external.FuncDeleteTemplate, Args: map[string]interface{}{"id": tpl.ID}}}
	w = call(t, router, http.MethodPost, "/api/v1/rpc", adminToken, del)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), env.Count(t, "certificate_templates"))

	assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodPost, "/api/v1/rpc", adminToken, []external.Request{}).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodPost, "/api/v1/rpc", adminToken, gin.H{"not": "a batch"}).Code)
}

// fakeChecker 固定结果的健康检查
type fakeChecker bool

func (f fakeChecker) CheckHealth(context.Context) bool { return bool(f) }

// TestHealthController_Check 测试健康检查
func TestHealthController_Check(t *testing.T) {
	env := testutil.NewEnv(t)

	tests := []struct {
		name       string
		fga        api.HealthChecker
		wantStatus int
		wantFGA    string
	}{
		{"without openfga", nil, http.StatusOK, "not configured"},
		{"openfga healthy", fakeChecker(true), http.StatusOK, "healthy"},
		{"openfga down", fakeChecker(false), http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", api.NewHealthController(env.DB, tt.fga).Check)

			w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "healthy", resp.Checks["database"])
			assert.Equal(t, tt.wantFGA, resp.Checks["openfga"])
		})
	}
}
