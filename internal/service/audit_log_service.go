package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
)

// 审计资源类型
const (
	ResourceTemplate = "template"
	ResourcePage     = "page"
	ResourceIssue    = "issue"
)

// 审计操作
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionDuplicate  = "duplicate"
	ActionIssue      = "issue"
	ActionRevoke     = "revoke"
	ActionRegenerate = "regenerate"
)

// AuditEntry 一次需要审计的操作
type AuditEntry struct {
	UserID       string
	TenantID     int64
	Action       string
	ResourceType string
	ResourceID   int64
	Details      interface{}
}

// AuditLogService 审计日志服务
type AuditLogService interface {
	RecordAction(ctx context.Context, entry AuditEntry) error
	ListByResource(ctx context.Context, resourceType string, resourceID int64) ([]*model.AuditLogModel, error)
	ListByUser(ctx context.Context, userID string) ([]*model.AuditLogModel, error)
}

type auditLogService struct {
	auditRepo repository.AuditLogRepository
	now       func() time.Time
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
		now:       time.Now,
	}
}

// RecordAction 保存审计记录,请求信息从 context 读取
func (s *auditLogService) RecordAction(ctx context.Context, entry AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	info := RequestInfoFrom(ctx)
	record := &model.AuditLogModel{
		ID:           uuid.New().String(),
		UserID:       entry.UserID,
		TenantID:     entry.TenantID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		RequestID:    info.RequestID,
		IP:           info.IP,
		UserAgent:    info.UserAgent,
		Details:      string(details),
		CreatedAt:    s.now(),
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid audit log: %w", err)
	}

	if err := s.auditRepo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save audit log: %w", err)
	}
	return nil
}

// ListByResource 查询资源的审计日志
func (s *auditLogService) ListByResource(ctx context.Context, resourceType string, resourceID int64) ([]*model.AuditLogModel, error) {
	logs, err := s.auditRepo.FindByResource(ctx, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

// ListByUser 查询用户的审计日志
func (s *auditLogService) ListByUser(ctx context.Context, userID string) ([]*model.AuditLogModel, error) {
	logs, err := s.auditRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

type requestInfoKey struct{}

// RequestInfo 审计需要的请求信息
type RequestInfo struct {
	RequestID string
	IP        string
	UserAgent string
}

// WithRequestInfo 将请求信息写入 context
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom 从 context 读取请求信息
func RequestInfoFrom(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// GetClientIP 从 context 获取客户端 IP
func GetClientIP(ctx context.Context) string {
	return RequestInfoFrom(ctx).IP
}

// GetUserAgent 从 context 获取 User Agent
func GetUserAgent(ctx context.Context) string {
	return RequestInfoFrom(ctx).UserAgent
}
