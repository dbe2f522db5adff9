package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/certificate"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/storage"
	"gorm.io/gorm"
)

// IssueService 证书颁发服务接口
type IssueService interface {
	Issue(ctx context.Context, templateID int64, req *IssueRequest) (*IssueResponse, error)
	Revoke(ctx context.Context, templateID int64, issueID int64) error
	List(ctx context.Context, templateID int64, filter *IssueListFilter) (*IssueListResponse, error)
	ListMine(ctx context.Context, filter *IssueListFilter) (*IssueListResponse, error)
	RegenerateFile(ctx context.Context, templateID int64, issueID int64) (*IssueFileInfo, error)
	FileByCode(ctx context.Context, code string) (*IssueFile, error)
	Verify(ctx context.Context, code string) (*VerificationResponse, error)
}

// IssueRequest 颁发证书请求
// @Description 向用户颁发证书的请求参数
type IssueRequest struct {
	UserID       string     `json:"userid" example:"u-1001" binding:"required"` // 接收人
	UserFullName string     `json:"userfullname" example:"Jane Doe"`           // 证书上显示的姓名
	Email        string     `json:"email" example:"jane@example.com"`          // 非空时邮件发送证书
	Expires      *time.Time `json:"expires"`                                   // 过期时间
}

// IssueListFilter 颁发记录查询过滤器
type IssueListFilter struct {
	Page     int
	PageSize int
	UserID   string
}

// IssueResponse 颁发记录
// @Description 证书颁发记录
type IssueResponse struct {
	ID           int64      `json:"id" example:"1"`
	TemplateID   int64      `json:"templateid" example:"1"`
	UserID       string     `json:"userid" example:"u-1001"`
	UserFullName string     `json:"userfullname" example:"Jane Doe"`
	TemplateName string     `json:"templatename" example:"Course completion"`
	Code         string     `json:"code" example:"AB12CD34EF"`
	Emailed      bool       `json:"emailed"`
	Expires      *time.Time `json:"expires,omitempty"`
	TimeCreated  time.Time  `json:"timecreated"`
	ViewURL      string     `json:"viewurl" example:"http://localhost:8080/certificate/view?code=AB12CD34EF"`
}

// IssueListResponse 颁发记录列表响应
type IssueListResponse struct {
	Data       []*IssueResponse `json:"data"`
	Pagination PaginationInfo   `json:"pagination"`
}

// IssueFileInfo 证书文件信息
// @Description 证书 PDF 文件信息
type IssueFileInfo struct {
	ID        int64     `json:"id" example:"1"`
	Name      string    `json:"name" example:"AB12CD34EF.pdf"`
	MimeType  string    `json:"mimetype" example:"application/pdf"`
	Size      int64     `json:"size" example:"20480"`
	UpdatedAt time.Time `json:"updatedat"`
}

// IssueFile 证书文件及内容
type IssueFile struct {
	IssueFileInfo
	Content []byte
}

// VerificationResponse 证书验证结果
// @Description 根据证书编码验证证书
type VerificationResponse struct {
	Code         string     `json:"code" example:"AB12CD34EF"`
	Valid        bool       `json:"valid"`
	Expired      bool       `json:"expired"`
	UserFullName string     `json:"userfullname,omitempty" example:"Jane Doe"`
	TemplateName string     `json:"templatename,omitempty" example:"Course completion"`
	TimeCreated  *time.Time `json:"timecreated,omitempty"`
	Expires      *time.Time `json:"expires,omitempty"`
}

// issueService 证书颁发服务实现
type issueService struct {
	manager     *certificate.Manager
	db          *gorm.DB
	auditLogSvc AuditLogService
	now         func() time.Time
}

// NewIssueService 创建证书颁发服务
func NewIssueService(manager *certificate.Manager, db *gorm.DB, auditLogSvc AuditLogService) IssueService {
	return &issueService{
		manager:     manager,
		db:          db,
		auditLogSvc: auditLogSvc,
		now:         time.Now,
	}
}

// Issue 颁发证书
func (s *issueService) Issue(ctx context.Context, templateID int64, req *IssueRequest) (*IssueResponse, error) {
	p, tpl, err := s.issuable(ctx, templateID)
	if err != nil {
		return nil, err
	}

	// 1. 颁发
	issue, err := tpl.IssueCertificate(ctx, req.UserID, certificate.IssueOptions{
		UserFullName: req.UserFullName,
		Email:        req.Email,
		Expires:      req.Expires,
	})
	if err != nil {
		return nil, err
	}

	// 2. 记录审计日志
	s.audit(ctx, p, ActionIssue, issue.ID, map[string]interface{}{
		"template_id": tpl.ID(),
		"user_id":     issue.UserID,
		"code":        issue.Code,
	})

	return s.toIssueResponse(issue), nil
}

// Revoke 撤销证书
func (s *issueService) Revoke(ctx context.Context, templateID int64, issueID int64) error {
	p, tpl, err := s.issuable(ctx, templateID)
	if err != nil {
		return err
	}

	issue, err := tpl.FindIssue(ctx, issueID)
	if err != nil {
		return err
	}
	if err := tpl.RevokeIssue(ctx, issueID); err != nil {
		return err
	}

	s.audit(ctx, p, ActionRevoke, issueID, map[string]interface{}{
		"template_id": tpl.ID(),
		"user_id":     issue.UserID,
		"code":        issue.Code,
	})
	return nil
}

// List 模板的颁发记录
// 没有查看全部证书能力的调用者只能看到自己的记录
func (s *issueService) List(ctx context.Context, templateID int64, filter *IssueListFilter) (*IssueListResponse, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	tpl, err := s.manager.Instance(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if filter == nil {
		filter = &IssueListFilter{}
	}
	userID := filter.UserID
	viewAll, err := s.canViewAll(ctx, p, tpl)
	if err != nil {
		return nil, err
	}
	if !viewAll {
		userID = p.UserID
	}

	page, pageSize := pagination(filter.Page, filter.PageSize)
	issues, total, err := tpl.Issues(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	return s.toListResponse(issues, total, page, pageSize), nil
}

// ListMine 当前调用者在所有模板下的证书
func (s *issueService) ListMine(ctx context.Context, filter *IssueListFilter) (*IssueListResponse, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &IssueListFilter{}
	}

	page, pageSize := pagination(filter.Page, filter.PageSize)
	repo := repository.NewIssueRepository(s.db)
	query := repository.IssueFilter{UserID: p.UserID, Offset: (page - 1) * pageSize, Limit: pageSize}

	total, err := repo.Count(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count issues: %w", err)
	}
	issues, err := repo.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return s.toListResponse(issues, total, page, pageSize), nil
}

// RegenerateFile 重新生成证书文件,文件 ID 保持不变
func (s *issueService) RegenerateFile(ctx context.Context, templateID int64, issueID int64) (*IssueFileInfo, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	tpl, err := s.manager.Instance(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := tpl.RequireManage(ctx, p); err != nil {
		return nil, err
	}

	issue, err := tpl.FindIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	file, err := tpl.CreateIssueFile(ctx, issue, true)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, ActionRegenerate, issueID, map[string]interface{}{
		"template_id": tpl.ID(),
		"file_id":     file.ID(),
		"code":        issue.Code,
	})

	info := toFileInfo(file)
	return &info, nil
}

// FileByCode 按证书编码读取证书文件
// 证书接收人或拥有查看全部证书能力的调用者可以下载
func (s *issueService) FileByCode(ctx context.Context, code string) (*IssueFile, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	issue, tpl, err := s.manager.IssueByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if issue.UserID != p.UserID {
		viewAll, err := s.canViewAll(ctx, p, tpl)
		if err != nil {
			return nil, err
		}
		if !viewAll {
			return nil, &auth.RequiredCapabilityError{Capability: auth.CapViewAllCertificates, ContextID: tpl.ContextID()}
		}
	}

	// 文件被外部删除时重新生成
	file, err := tpl.GetIssueFile(ctx, issue)
	if err != nil {
		return nil, err
	}
	content, err := file.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read issue file: %w", err)
	}

	return &IssueFile{IssueFileInfo: toFileInfo(file), Content: content}, nil
}

// Verify 验证证书编码
// 编码不存在时返回 Valid=false
func (s *issueService) Verify(ctx context.Context, code string) (*VerificationResponse, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(ctx, s.manager.Authorizer(), p, auth.CapVerify, model.SystemContextID); err != nil {
		return nil, err
	}

	issue, tpl, err := s.manager.IssueByCode(ctx, code)
	if errors.Is(err, certificate.ErrIssueNotFound) || errors.Is(err, certificate.ErrTemplateNotFound) {
		return &VerificationResponse{Code: code}, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := issue.DecodeData()
	if err != nil {
		return nil, fmt.Errorf("failed to decode issue data: %w", err)
	}

	timeCreated := issue.TimeCreated
	resp := &VerificationResponse{
		Code:         issue.Code,
		UserFullName: data.UserFullName,
		TemplateName: tpl.Name(),
		TimeCreated:  &timeCreated,
		Expires:      issue.Expires,
	}
	resp.Expired = issue.Expires != nil && !issue.Expires.After(s.now())
	resp.Valid = !resp.Expired
	return resp, nil
}

// issuable 加载模板并要求颁发能力
func (s *issueService) issuable(ctx context.Context, templateID int64) (*auth.Principal, *certificate.Template, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	tpl, err := s.manager.Instance(ctx, templateID)
	if err != nil {
		return nil, nil, err
	}
	ok, err := tpl.CanIssue(ctx, p)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check capability: %w", err)
	}
	if !ok {
		return nil, nil, &auth.RequiredCapabilityError{Capability: auth.CapIssue, ContextID: tpl.ContextID()}
	}
	return p, tpl, nil
}

// canViewAll 是否可以查看模板的全部证书
func (s *issueService) canViewAll(ctx context.Context, p *auth.Principal, tpl *certificate.Template) (bool, error) {
	ok, err := s.manager.Authorizer().HasCapability(ctx, p, auth.CapViewAllCertificates, tpl.ContextID())
	if err != nil {
		return false, fmt.Errorf("failed to check capability: %w", err)
	}
	if ok {
		return true, nil
	}
	ok, err = tpl.CanIssue(ctx, p)
	if err != nil {
		return false, fmt.Errorf("failed to check capability: %w", err)
	}
	return ok, nil
}

// audit 记录审计日志,失败不影响业务
func (s *issueService) audit(ctx context.Context, p *auth.Principal, action string, issueID int64, details map[string]interface{}) {
	if s.auditLogSvc == nil || p.UserID == "" {
		return
	}
	_ = s.auditLogSvc.RecordAction(ctx, AuditEntry{
		UserID:       p.UserID,
		TenantID:     p.TenantID,
		Action:       action,
		ResourceType: ResourceIssue,
		ResourceID:   issueID,
		Details:      details,
	})
}

func (s *issueService) toIssueResponse(issue *model.IssueModel) *IssueResponse {
	data, _ := issue.DecodeData()
	return &IssueResponse{
		ID:           issue.ID,
		TemplateID:   issue.TemplateID,
		UserID:       issue.UserID,
		UserFullName: data.UserFullName,
		TemplateName: data.TemplateName,
		Code:         issue.Code,
		Emailed:      issue.Emailed,
		Expires:      issue.Expires,
		TimeCreated:  issue.TimeCreated,
		ViewURL:      s.manager.ViewURL(issue.Code),
	}
}

func (s *issueService) toListResponse(issues []*model.IssueModel, total int64, page, pageSize int) *IssueListResponse {
	data := make([]*IssueResponse, 0, len(issues))
	for _, issue := range issues {
		data = append(data, s.toIssueResponse(issue))
	}
	totalPage := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPage++
	}
	return &IssueListResponse{
		Data: data,
		Pagination: PaginationInfo{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: totalPage,
		},
	}
}

func toFileInfo(file *storage.StoredFile) IssueFileInfo {
	return IssueFileInfo{
		ID:        file.ID(),
		Name:      file.Name(),
		MimeType:  file.MimeType(),
		Size:      file.Size(),
		UpdatedAt: file.UpdatedAt(),
	}
}

// pagination 分页参数默认值
func pagination(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
