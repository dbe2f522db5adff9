package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/certificate"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/utils"
	"gorm.io/gorm"
)

// TemplateService 模板服务接口
type TemplateService interface {
	Create(ctx context.Context, req *CreateTemplateRequest) (*TemplateResponse, error)
	Get(ctx context.Context, id int64) (*TemplateResponse, error)
	Update(ctx context.Context, id int64, req *UpdateTemplateRequest) (*TemplateResponse, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter *TemplateListFilter) (*TemplateListResponse, error)
	Duplicate(ctx context.Context, id int64, req *DuplicateTemplateRequest) (*TemplateResponse, error)
	PotentialCertificates(ctx context.Context, search string) ([]certificate.Selection, error)
	AddPage(ctx context.Context, id int64) (*PageResponse, error)
	SavePages(ctx context.Context, id int64, form url.Values) (*TemplateResponse, error)
	DeletePage(ctx context.Context, id int64, pageID int64) (*TemplateResponse, error)
}

// CreateTemplateRequest 创建模板请求
// @Description 创建证书模板的请求参数
type CreateTemplateRequest struct {
	Name       string `json:"name" example:"Course completion" binding:"required"` // 模板名称
	ContextID  int64  `json:"contextid" example:"0"`                               // 所属上下文,0 表示系统上下文
	CategoryID int64  `json:"categoryid" example:"0"`                              // 所属分类,优先于 contextid
	TenantID   *int64 `json:"tenantid" example:"0"`                                // 所属租户,为空时使用调用者租户
}

// UpdateTemplateRequest 更新模板请求
// @Description 更新证书模板的请求参数
type UpdateTemplateRequest struct {
	Name       string `json:"name" example:"Course completion" binding:"required"` // 模板名称
	ContextID  int64  `json:"contextid" example:"0"`                               // 新上下文,0 表示不变
	CategoryID int64  `json:"categoryid" example:"0"`                              // 新分类,0 表示不变
}

// DuplicateTemplateRequest 复制模板请求
// @Description 复制证书模板的请求参数
type DuplicateTemplateRequest struct {
	TenantID *int64 `json:"tenantid" example:"0"` // 目标租户,为空时沿用原模板租户
}

// TemplateListFilter 模板列表查询过滤器
type TemplateListFilter struct {
	Page     int
	PageSize int
	Search   string
	SortBy   string
	Order    string // asc/desc
}

// PageResponse 模板页面
// @Description 证书模板页面,尺寸单位为毫米
type PageResponse struct {
	ID          int64   `json:"id" example:"1"`
	Sequence    int     `json:"sequence" example:"1"`
	Width       float64 `json:"width" example:"297"`
	Height      float64 `json:"height" example:"210"`
	LeftMargin  float64 `json:"leftmargin" example:"0"`
	RightMargin float64 `json:"rightmargin" example:"0"`
}

// TemplateResponse 模板详情
// @Description 证书模板详情
type TemplateResponse struct {
	ID        int64          `json:"id" example:"1"`
	Name      string         `json:"name" example:"Course completion"`
	ContextID int64          `json:"contextid" example:"1"`
	TenantID  int64          `json:"tenantid" example:"0"`
	CreatedBy string         `json:"createdby" example:"admin"`
	EditURL   string         `json:"editurl" example:"http://localhost:8080/api/v1/templates/1"`
	CreatedAt time.Time      `json:"createdat"`
	UpdatedAt time.Time      `json:"updatedat"`
	Pages     []PageResponse `json:"pages,omitempty"`
}

// TemplateListResponse 模板列表响应
type TemplateListResponse struct {
	Data       []*TemplateResponse `json:"data"`
	Pagination PaginationInfo      `json:"pagination"`
}

// PaginationInfo 分页信息
type PaginationInfo struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"total_page"`
}

// 模板列表允许的排序字段
var templateSortFields = map[string]bool{
	"id":         true,
	"name":       true,
	"created_at": true,
	"updated_at": true,
}

// templateService 模板服务实现
type templateService struct {
	manager     *certificate.Manager
	db          *gorm.DB
	auditLogSvc AuditLogService
}

// NewTemplateService 创建模板服务
func NewTemplateService(manager *certificate.Manager, db *gorm.DB, auditLogSvc AuditLogService) TemplateService {
	return &templateService{
		manager:     manager,
		db:          db,
		auditLogSvc: auditLogSvc,
	}
}

// Create 创建模板
func (s *templateService) Create(ctx context.Context, req *CreateTemplateRequest) (*TemplateResponse, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	// 1. 检查上下文中的管理能力
	contextID := req.ContextID
	if contextID <= 0 || req.CategoryID > 0 {
		contextID = model.SystemContextID
	}
	if err := auth.Require(ctx, s.manager.Authorizer(), p, auth.CapManage, contextID); err != nil {
		return nil, err
	}

	// 2. 确定租户
	tenantID := p.TenantID
	if req.TenantID != nil {
		tenantID = *req.TenantID
	}
	if err := s.manager.RequireTenant(ctx, p, tenantID, contextID); err != nil {
		return nil, err
	}

	// 3. 创建模板
	tpl, err := s.manager.Create(ctx, certificate.TemplateData{
		Name:       req.Name,
		ContextID:  req.ContextID,
		CategoryID: req.CategoryID,
		TenantID:   tenantID,
	})
	if err != nil {
		return nil, err
	}

	// 4. 记录审计日志
	s.audit(ctx, p, ActionCreate, ResourceTemplate, tpl.ID(), map[string]interface{}{
		"template_id": tpl.ID(),
		"name":        tpl.Name(),
		"tenant_id":   tpl.TenantID(),
	})

	return toTemplateResponse(tpl), nil
}

// Get 获取模板,需要管理或颁发能力
func (s *templateService) Get(ctx context.Context, id int64) (*TemplateResponse, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	tpl, err := s.manager.Instance(ctx, id)
	if err != nil {
		return nil, err
	}

	canManage, err := tpl.CanManage(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to check capability: %w", err)
	}
	if !canManage {
		canIssue, err := tpl.CanIssue(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to check capability: %w", err)
		}
		if !canIssue {
			return nil, &auth.RequiredCapabilityError{Capability: auth.CapManage, ContextID: tpl.ContextID()}
		}
	}

	return toTemplateResponse(tpl), nil
}

// Update 更新模板
func (s *templateService) Update(ctx context.Context, id int64, req *UpdateTemplateRequest) (*TemplateResponse, error) {
	p, tpl, err := s.managed(ctx, id)
	if err != nil {
		return nil, err
	}

	// 1. 移动上下文时需要目标上下文的管理能力
	if req.ContextID > 0 && req.CategoryID <= 0 {
		if err := auth.Require(ctx, s.manager.Authorizer(), p, auth.CapManage, req.ContextID); err != nil {
			return nil, err
		}
	}

	// 2. 保存
	oldName := tpl.Name()
	if err := tpl.Save(ctx, certificate.TemplateData{
		Name:       req.Name,
		ContextID:  req.ContextID,
		CategoryID: req.CategoryID,
	}); err != nil {
		return nil, err
	}

	// 3. 记录审计日志
	s.audit(ctx, p, ActionUpdate, ResourceTemplate, tpl.ID(), map[string]interface{}{
		"template_id": tpl.ID(),
		"old_name":    oldName,
		"name":        tpl.Name(),
		"context_id":  tpl.ContextID(),
	})

	return toTemplateResponse(tpl), nil
}

// Delete 删除模板及其页面、颁发记录和证书文件
func (s *templateService) Delete(ctx context.Context, id int64) error {
	p, tpl, err := s.managed(ctx, id)
	if err != nil {
		return err
	}

	name := tpl.Name()
	if err := tpl.Delete(ctx); err != nil {
		return err
	}

	s.audit(ctx, p, ActionDelete, ResourceTemplate, id, map[string]interface{}{
		"template_id": id,
		"name":        name,
	})
	return nil
}

// List 查询模板列表
// 绑定租户的调用者只能看到共享模板和本租户模板
func (s *templateService) List(ctx context.Context, filter *TemplateListFilter) (*TemplateListResponse, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(ctx, s.manager.Authorizer(), p, auth.CapManage, model.SystemContextID); err != nil {
		return nil, err
	}

	if filter == nil {
		filter = &TemplateListFilter{}
	}

	// 设置默认值
	page, pageSize := pagination(filter.Page, filter.PageSize)
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	if !templateSortFields[sortBy] {
		return nil, utils.NewValidationError("INVALID_SORT_FIELD", fmt.Sprintf("cannot sort templates by %q", sortBy))
	}
	order := filter.Order
	if order == "" {
		order = "asc"
	}
	if err := utils.ValidateSortOrder(order); err != nil {
		return nil, utils.NewValidationError("INVALID_SORT_ORDER", err.Error())
	}

	query := repository.TemplateFilter{
		Search: utils.StripTags(filter.Search),
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
		SortBy: sortBy,
		Order:  order,
	}
	if p.TenantID != 0 {
		all, err := s.manager.Authorizer().HasCapability(ctx, p, auth.CapManageForAllTenants, model.SystemContextID)
		if err != nil {
			return nil, fmt.Errorf("failed to check capability: %w", err)
		}
		if !all {
			query.TenantIDs = []int64{0, p.TenantID}
		}
	}

	// 获取总数
	repo := repository.NewTemplateRepository(s.db)
	total, err := repo.Count(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}

	records, err := repo.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find templates: %w", err)
	}

	data := make([]*TemplateResponse, 0, len(records))
	for _, r := range records {
		data = append(data, &TemplateResponse{
			ID:        r.ID,
			Name:      r.Name,
			ContextID: r.ContextID,
			TenantID:  r.TenantID,
			CreatedBy: r.CreatedBy,
			EditURL:   s.manager.EditURL(r.ID),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}

	// 计算总页数
	totalPage := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPage++
	}

	return &TemplateListResponse{
		Data: data,
		Pagination: PaginationInfo{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: totalPage,
		},
	}, nil
}

// Duplicate 复制模板
func (s *templateService) Duplicate(ctx context.Context, id int64, req *DuplicateTemplateRequest) (*TemplateResponse, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	tpl, err := s.manager.Instance(ctx, id)
	if err != nil {
		return nil, err
	}

	// 1. 检查复制能力
	ok, err := tpl.CanDuplicate(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to check capability: %w", err)
	}
	if !ok {
		return nil, &auth.RequiredCapabilityError{Capability: auth.CapManage, ContextID: tpl.ContextID()}
	}

	// 2. 检查目标租户
	opts := certificate.DuplicateOptions{}
	if req != nil && req.TenantID != nil {
		if err := s.manager.RequireTenant(ctx, p, *req.TenantID, tpl.ContextID()); err != nil {
			return nil, err
		}
		opts.TenantID = req.TenantID
	}

	// 3. 复制
	copied, err := tpl.Duplicate(ctx, opts)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, ActionDuplicate, ResourceTemplate, copied.ID(), map[string]interface{}{
		"source_id":   tpl.ID(),
		"template_id": copied.ID(),
		"name":        copied.Name(),
		"tenant_id":   copied.TenantID(),
	})

	return toTemplateResponse(copied), nil
}

// PotentialCertificates 调用者可以颁发的模板
func (s *templateService) PotentialCertificates(ctx context.Context, search string) ([]certificate.Selection, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.manager.PotentialCertificates(ctx, p, utils.StripTags(search))
}

// AddPage 添加页面
func (s *templateService) AddPage(ctx context.Context, id int64) (*PageResponse, error) {
	p, tpl, err := s.managed(ctx, id)
	if err != nil {
		return nil, err
	}

	page, err := tpl.AddPage(ctx)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, ActionCreate, ResourcePage, page.ID, map[string]interface{}{
		"template_id": tpl.ID(),
		"page_id":     page.ID,
		"sequence":    page.Sequence,
	})

	resp := toPageResponse(*page)
	return &resp, nil
}

// SavePages 保存页面尺寸表单
func (s *templateService) SavePages(ctx context.Context, id int64, form url.Values) (*TemplateResponse, error) {
	p, tpl, err := s.managed(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := tpl.SavePage(ctx, form); err != nil {
		return nil, err
	}

	s.audit(ctx, p, ActionUpdate, ResourcePage, tpl.ID(), map[string]interface{}{
		"template_id": tpl.ID(),
		"fields":      len(form),
	})

	return toTemplateResponse(tpl), nil
}

// DeletePage 删除页面
func (s *templateService) DeletePage(ctx context.Context, id int64, pageID int64) (*TemplateResponse, error) {
	p, tpl, err := s.managed(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := tpl.DeletePage(ctx, pageID); err != nil {
		return nil, err
	}

	s.audit(ctx, p, ActionDelete, ResourcePage, pageID, map[string]interface{}{
		"template_id": tpl.ID(),
		"page_id":     pageID,
	})

	return toTemplateResponse(tpl), nil
}

// managed 加载模板并要求管理能力
func (s *templateService) managed(ctx context.Context, id int64) (*auth.Principal, *certificate.Template, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	tpl, err := s.manager.Instance(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := tpl.RequireManage(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, tpl, nil
}

// audit 记录审计日志,失败不影响业务
func (s *templateService) audit(ctx context.Context, p *auth.Principal, action, resourceType string, resourceID int64, details map[string]interface{}) {
	if s.auditLogSvc == nil || p.UserID == "" {
		return
	}
	_ = s.auditLogSvc.RecordAction(ctx, AuditEntry{
		UserID:       p.UserID,
		TenantID:     p.TenantID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
}

// principalFrom 读取当前调用者
func principalFrom(ctx context.Context) (*auth.Principal, error) {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return p, nil
}

func toPageResponse(p model.PageModel) PageResponse {
	return PageResponse{
		ID:          p.ID,
		Sequence:    p.Sequence,
		Width:       p.Width,
		Height:      p.Height,
		LeftMargin:  p.LeftMargin,
		RightMargin: p.RightMargin,
	}
}

func toTemplateResponse(tpl *certificate.Template) *TemplateResponse {
	pages := tpl.Pages()
	resp := &TemplateResponse{
		ID:        tpl.ID(),
		Name:      tpl.Name(),
		ContextID: tpl.ContextID(),
		TenantID:  tpl.TenantID(),
		CreatedBy: tpl.CreatedBy(),
		EditURL:   tpl.EditURL(),
		CreatedAt: tpl.CreatedAt(),
		UpdatedAt: tpl.UpdatedAt(),
		Pages:     make([]PageResponse, 0, len(pages)),
	}
	for _, p := range pages {
		resp.Pages = append(resp.Pages, toPageResponse(p))
	}
	return resp
}
