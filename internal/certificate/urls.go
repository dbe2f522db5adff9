package certificate

import (
	"fmt"
	"net/url"
	"strings"
)

// URLBuilder 生成模板和证书的访问地址
type URLBuilder struct {
	base string
}

// NewURLBuilder 创建地址生成器
func NewURLBuilder(base string) URLBuilder {
	return URLBuilder{base: strings.TrimRight(base, "/")}
}

// EditURL 模板编辑地址
func (b URLBuilder) EditURL(templateID int64) string {
	return fmt.Sprintf("%s/api/v1/templates/%d", b.base, templateID)
}

// ManageURL 模板管理地址
func (b URLBuilder) ManageURL() string {
	return b.base + "/api/v1/templates"
}

// ViewURL 证书查看地址
func (b URLBuilder) ViewURL(code string) string {
	return b.base + "/certificate/view?code=" + url.QueryEscape(code)
}

// VerifyURL 证书验证地址
func (b URLBuilder) VerifyURL(code string) string {
	return b.base + "/certificate/verify?code=" + url.QueryEscape(code)
}
