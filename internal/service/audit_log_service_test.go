package service_test

import (
	"context"
	"testing"

	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/service"
	"github.com/mautops/certificate-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAuditLog_RecordAction 测试记录审计日志
func TestAuditLog_RecordAction(t *testing.T) {
	db := testutil.NewDB(t)
	auditService := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	ctx := service.WithRequestInfo(context.Background(), service.RequestInfo{
		RequestID: "req-42",
		IP:        "192.168.1.10",
		UserAgent: "curl/8.0",
	})
	assert.Equal(t, "192.168.1.10", service.GetClientIP(ctx))
	assert.Equal(t, "curl/8.0", service.GetUserAgent(ctx))

	err := auditService.RecordAction(ctx, service.AuditEntry{
		UserID:       "user-001",
		TenantID:     3,
		Action:       service.ActionIssue,
		ResourceType: service.ResourceIssue,
		ResourceID:   7,
		Details:      map[string]interface{}{"code": "ABC"},
	})
	require.NoError(t, err)

	logs, err := auditService.ListByUser(context.Background(), "user-001")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.NotEmpty(t, logs[0].ID)
	assert.Equal(t, service.ActionIssue, logs[0].Action)
	assert.Equal(t, int64(3), logs[0].TenantID)
	assert.Equal(t, "req-42", logs[0].RequestID)
	assert.Equal(t, "curl/8.0", logs[0].UserAgent)
	assert.JSONEq(t, `{"code":"ABC"}`, logs[0].Details)

	logs, err = auditService.ListByResource(context.Background(), service.ResourceIssue, 7)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

// TestAuditLog_RecordActionInvalid 测试无效审计日志
func TestAuditLog_RecordActionInvalid(t *testing.T) {
	db := testutil.NewDB(t)
	auditService := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	ctx := context.Background()
	entry := service.AuditEntry{
		UserID:       "user-001",
		Action:       service.ActionCreate,
		ResourceType: service.ResourceTemplate,
		ResourceID:   1,
	}

	missingActor := entry
	missingActor.UserID = ""
	assert.ErrorIs(t, auditService.RecordAction(ctx, missingActor), model.ErrAuditActorRequired)

	missingResource := entry
	missingResource.ResourceID = 0
	assert.ErrorIs(t, auditService.RecordAction(ctx, missingResource), model.ErrAuditResourceRequired)

	// 无法序列化的详情
	badDetails := entry
	badDetails.Details = make(chan int)
	assert.Error(t, auditService.RecordAction(ctx, badDetails))

	// 没有请求信息时字段为空
	require.NoError(t, auditService.RecordAction(ctx, entry))
	logs, err := auditService.ListByResource(ctx, service.ResourceTemplate, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].RequestID)
	assert.Equal(t, "null", logs[0].Details)
}
