// Package certificate 证书模板领域对象: 模板、页面、颁发和证书文件
package certificate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/config"
	"github.com/mautops/certificate-gin/internal/event"
	"github.com/mautops/certificate-gin/internal/message"
	"github.com/mautops/certificate-gin/internal/metrics"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/pdf"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/storage"
	"github.com/mautops/certificate-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Component 组件名称
const Component = "tool_certificate"

// 默认值
const (
	DefaultCodeLength    = 10
	DefaultSelectorLimit = 100
	maxCodeAttempts      = 10
)

var (
	// ErrTemplateNotFound 模板不存在
	ErrTemplateNotFound = errors.New("template not found")
	// ErrPageNotFound 页面不存在
	ErrPageNotFound = errors.New("page not found")
	// ErrIssueNotFound 颁发记录不存在
	ErrIssueNotFound = errors.New("issue not found")
	// ErrContextNotFound 上下文不存在
	ErrContextNotFound = errors.New("context not found")
)

// TemplateData 创建或更新模板的数据
type TemplateData struct {
	Name       string
	ContextID  int64 // 0 表示系统上下文
	CategoryID int64 // 大于 0 时使用分类上下文,优先于 ContextID
	TenantID   int64
}

// Selection 证书选择器条目
type Selection struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ContextLinker 新建分类上下文时登记父子关系
type ContextLinker interface {
	LinkContext(ctx context.Context, childID, parentID int64) error
}

// Option Manager 可选配置
type Option func(*Manager)

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithContextLinker 设置上下文关系登记
func WithContextLinker(linker ContextLinker) Option {
	return func(m *Manager) { m.linker = linker }
}

// Manager 模板管理入口,持有所有协作组件
type Manager struct {
	db            *gorm.DB
	files         storage.FileStorage
	events        event.Dispatcher
	messages      message.Sender
	renderer      pdf.Renderer
	authorizer    auth.Authorizer
	urls          URLBuilder
	logger        logrus.FieldLogger
	now           func() time.Time
	codeLength    int
	selectorLimit int
	defaultPage   pdf.Page
	linker        ContextLinker
}

// NewManager 创建模板管理器
func NewManager(
	db *gorm.DB,
	files storage.FileStorage,
	events event.Dispatcher,
	messages message.Sender,
	renderer pdf.Renderer,
	authorizer auth.Authorizer,
	cfg config.CertificateConfig,
	logger logrus.FieldLogger,
	opts ...Option,
) *Manager {
	m := &Manager{
		db:            db,
		files:         files,
		events:        events,
		messages:      messages,
		renderer:      renderer,
		authorizer:    authorizer,
		urls:          NewURLBuilder(cfg.BaseURL),
		logger:        logger,
		now:           time.Now,
		codeLength:    cfg.CodeLength,
		selectorLimit: cfg.SelectorLimit,
		defaultPage:   pdf.Page{Width: cfg.PageWidth, Height: cfg.PageHeight},
	}
	if m.codeLength <= 0 {
		m.codeLength = DefaultCodeLength
	}
	if m.selectorLimit <= 0 {
		m.selectorLimit = DefaultSelectorLimit
	}
	if m.defaultPage.Width <= 0 || m.defaultPage.Height <= 0 {
		m.defaultPage = pdf.Page{Width: pdf.DefaultPageWidth, Height: pdf.DefaultPageHeight}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authorizer 能力检查
func (m *Manager) Authorizer() auth.Authorizer {
	return m.authorizer
}

// RequireTenant 绑定租户的调用者只能把模板放到共享租户或本租户,除非拥有 manageforalltenants
func (m *Manager) RequireTenant(ctx context.Context, p *auth.Principal, tenantID, contextID int64) error {
	if tenantID < 0 {
		return utils.NewValidationError("INVALID_TENANT", "tenant id cannot be negative")
	}
	if p == nil || p.TenantID == 0 || tenantID == 0 || tenantID == p.TenantID {
		return nil
	}
	return auth.Require(ctx, m.authorizer, p, auth.CapManageForAllTenants, contextID)
}

// EditURL 模板编辑地址
func (m *Manager) EditURL(templateID int64) string {
	return m.urls.EditURL(templateID)
}

// ManageURL 模板管理地址
func (m *Manager) ManageURL() string {
	return m.urls.ManageURL()
}

// ViewURL 证书查看地址
func (m *Manager) ViewURL(code string) string {
	return m.urls.ViewURL(code)
}

// VerifyURL 证书验证地址
func (m *Manager) VerifyURL(code string) string {
	return m.urls.VerifyURL(code)
}

// Create 创建模板并触发 template_created 事件
func (m *Manager) Create(ctx context.Context, data TemplateData) (*Template, error) {
	// 1. 验证名称
	name := strings.TrimSpace(data.Name)
	if err := utils.ValidateTemplateName(name); err != nil {
		return nil, err
	}

	// 2. 解析上下文并保存模板,事件随事务写入
	var t *Template
	err := m.inTx(ctx, func(tx *gorm.DB, scope *txScope) error {
		contextID, err := m.resolveContext(ctx, tx, scope, data)
		if err != nil {
			return err
		}

		now := m.now()
		record := &model.TemplateModel{
			Name:      name,
			ContextID: contextID,
			TenantID:  data.TenantID,
			CreatedBy: actorID(ctx),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repository.NewTemplateRepository(tx).Create(ctx, record); err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}

		t = &Template{m: m, record: *record}
		return scope.trigger(ctx, t.templateEvent(ctx, event.TemplateCreated, t.EditURL()))
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTemplateOperation("created")

	m.logger.WithFields(logrus.Fields{
		"template_id": t.ID(),
		"context_id":  t.ContextID(),
		"tenant_id":   t.TenantID(),
	}).Info("template created")

	return t, nil
}

// Instance 加载模板
func (m *Manager) Instance(ctx context.Context, id int64) (*Template, error) {
	record, err := repository.NewTemplateRepository(m.db).FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return m.load(ctx, m.db, record)
}

// FindByName 按名称查找模板,不存在时返回 nil, nil
func (m *Manager) FindByName(ctx context.Context, name string) (*Template, error) {
	record, err := repository.NewTemplateRepository(m.db).FindFirstByName(ctx, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find template: %w", err)
	}
	return m.load(ctx, m.db, record)
}

// PotentialCertificates 调用者可以颁发或管理的模板,按名称排序
func (m *Manager) PotentialCertificates(ctx context.Context, p *auth.Principal, search string) ([]Selection, error) {
	if p == nil {
		return nil, auth.ErrUnauthenticated
	}

	tenants := []int64{0}
	if p.TenantID != 0 {
		tenants = append(tenants, p.TenantID)
	}

	repo := repository.NewTemplateRepository(m.db)
	const batch = 500
	result := make([]Selection, 0)
	allowed := make(map[int64]bool)

	for offset := 0; len(result) < m.selectorLimit; offset += batch {
		records, err := repo.Find(ctx, repository.TemplateFilter{
			Search:    strings.TrimSpace(search),
			TenantIDs: tenants,
			Offset:    offset,
			Limit:     batch,
			SortBy:    "name",
			Order:     "asc",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search templates: %w", err)
		}

		for _, r := range records {
			ok, seen := allowed[r.ContextID]
			if !seen {
				ok, err = m.canIssueOrManage(ctx, p, r.ContextID)
				if err != nil {
					return nil, err
				}
				allowed[r.ContextID] = ok
			}
			if !ok {
				continue
			}
			result = append(result, Selection{ID: r.ID, Name: r.Name})
			if len(result) >= m.selectorLimit {
				break
			}
		}

		if len(records) < batch {
			break
		}
	}

	return result, nil
}

// canIssueOrManage 是否拥有颁发或管理能力
func (m *Manager) canIssueOrManage(ctx context.Context, p *auth.Principal, contextID int64) (bool, error) {
	for _, c := range []auth.Capability{auth.CapIssue, auth.CapManage} {
		ok, err := m.authorizer.HasCapability(ctx, p, c, contextID)
		if err != nil {
			return false, fmt.Errorf("failed to check capability: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// load 加载模板及其页面
func (m *Manager) load(ctx context.Context, db *gorm.DB, record *model.TemplateModel) (*Template, error) {
	pages, err := repository.NewPageRepository(db).FindByTemplate(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template pages: %w", err)
	}
	return &Template{m: m, record: *record, pages: pages}, nil
}

// resolveContext 确定模板所属上下文
func (m *Manager) resolveContext(ctx context.Context, db *gorm.DB, scope *txScope, data TemplateData) (int64, error) {
	contexts := repository.NewContextRepository(db)

	if data.CategoryID > 0 {
		c, created, err := contexts.FindOrCreateCategory(ctx, data.CategoryID)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve category context: %w", err)
		}
		if created && m.linker != nil {
			scope.afterCommit(func(ctx context.Context) {
				if err := m.linker.LinkContext(ctx, c.ID, model.SystemContextID); err != nil {
					m.logger.WithError(err).WithField("context_id", c.ID).Warn("failed to link category context")
				}
			})
		}
		return c.ID, nil
	}

	if data.ContextID == 0 {
		return model.SystemContextID, nil
	}

	c, err := contexts.FindByID(ctx, data.ContextID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %d", ErrContextNotFound, data.ContextID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get context: %w", err)
	}
	return c.ID, nil
}

// txScope 绑定到同一事务的文件存储、事件和通知
type txScope struct {
	files    storage.FileStorage
	events   event.Dispatcher
	messages message.Sender
	hooks    []func(ctx context.Context)
}

// inTx 在事务中执行 fn
// 提交后通知事件观察者、投递通知并执行提交钩子,回滚时只清理写入的文件内容
func (m *Manager) inTx(ctx context.Context, fn func(tx *gorm.DB, scope *txScope) error) error {
	var scope *txScope
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope = &txScope{}
		if m.files != nil {
			scope.files = m.files.WithDB(tx)
		}
		if m.events != nil {
			scope.events = m.events.WithDB(tx)
		}
		if m.messages != nil {
			scope.messages = m.messages.WithDB(tx, scope.events)
		}
		return fn(tx, scope)
	})
	if scope != nil {
		m.releasePending(ctx, scope.files)
	}
	if err != nil {
		return err
	}

	if scope.events != nil {
		scope.events.Flush(ctx)
	}
	if scope.messages != nil {
		scope.messages.Deliver(ctx)
	}
	for _, hook := range scope.hooks {
		hook(ctx)
	}
	return nil
}

// trigger 在事务中写入事件
func (s *txScope) trigger(ctx context.Context, evt *event.Event) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.Trigger(ctx, evt); err != nil {
		return fmt.Errorf("failed to trigger %s: %w", evt.Name, err)
	}
	return nil
}

// afterCommit 注册提交后执行的钩子
func (s *txScope) afterCommit(hook func(ctx context.Context)) {
	s.hooks = append(s.hooks, hook)
}

// releasePending 事务结束后删除不再被引用的文件内容
func (m *Manager) releasePending(ctx context.Context, files storage.FileStorage) {
	if files == nil {
		return
	}
	if err := files.ReleasePending(ctx); err != nil {
		m.logger.WithError(err).Warn("failed to release file content")
	}
}

// actorID 当前调用者 ID
func actorID(ctx context.Context) string {
	if p, ok := auth.PrincipalFrom(ctx); ok {
		return p.UserID
	}
	return ""
}
