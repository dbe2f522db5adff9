package external

import (
	"context"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/certificate"
)

// 函数名
const (
	FuncDuplicateTemplate            = "tool_certificate_duplicate_template"
	FuncDeleteTemplate               = "tool_certificate_delete_template"
	FuncPotentialCertificateSelector = "tool_certificate_potential_certificate_selector"
)

// RegisterTemplateFunctions 注册模板相关函数
func RegisterTemplateFunctions(r *Registry, manager *certificate.Manager) error {
	for _, fn := range TemplateFunctions(manager) {
		if err := r.Register(fn); err != nil {
			return err
		}
	}
	return nil
}

// TemplateFunctions 模板相关函数
func TemplateFunctions(manager *certificate.Manager) []*Function {
	return []*Function{
		{
			Name:        FuncDuplicateTemplate,
			Description: "Duplicates a certificate template",
			Params: []Param{
				{Name: "id", Type: ParamInt, Description: "Template id", Required: true},
				{Name: "tenantid", Type: ParamInt, Description: "Tenant id", Default: int64(0)},
			},
			Returns: Returns{Kind: ReturnNone},
			Handler: func(ctx context.Context, p *auth.Principal, args Args) (interface{}, error) {
				t, err := manager.Instance(ctx, args.Int("id"))
				if err != nil {
					return nil, err
				}
				ok, err := t.CanDuplicate(ctx, p)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, &auth.RequiredCapabilityError{Capability: auth.CapManage, ContextID: t.ContextID()}
				}

				tenantID := args.Int("tenantid")
				if err := manager.RequireTenant(ctx, p, tenantID, t.ContextID()); err != nil {
					return nil, err
				}
				_, err = t.Duplicate(ctx, certificate.DuplicateOptions{TenantID: &tenantID})
				return nil, err
			},
		},
		{
			Name:        FuncDeleteTemplate,
			Description: "Deletes a certificate template",
			Params: []Param{
				{Name: "id", Type: ParamInt, Description: "Template id", Required: true},
			},
			Returns: Returns{Kind: ReturnNone},
			Handler: func(ctx context.Context, p *auth.Principal, args Args) (interface{}, error) {
				t, err := manager.Instance(ctx, args.Int("id"))
				if err != nil {
					return nil, err
				}
				if err := t.RequireManage(ctx, p); err != nil {
					return nil, err
				}
				return nil, t.Delete(ctx)
			},
		},
		{
			Name:        FuncPotentialCertificateSelector,
			Description: "Searches certificate templates the user can issue",
			Params: []Param{
				{Name: "search", Type: ParamNoTags, Description: "Search string", Required: true},
			},
			Returns: Returns{
				Kind: ReturnMultiple,
				Fields: []Field{
					{Name: "id", Type: ParamInt, Description: "ID of the certificate"},
					{Name: "name", Type: ParamNoTags, Description: "The name of the certificate"},
				},
			},
			Handler: func(ctx context.Context, p *auth.Principal, args Args) (interface{}, error) {
				return manager.PotentialCertificates(ctx, p, args.String("search"))
			},
		},
	}
}
