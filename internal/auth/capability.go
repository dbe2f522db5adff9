package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Capability 能力标识
type Capability string

// 证书能力
const (
	CapManage              Capability = "tool/certificate:manage"
	CapIssue               Capability = "tool/certificate:issue"
	CapViewAllCertificates Capability = "tool/certificate:viewallcertificates"
	CapVerify              Capability = "tool/certificate:verify"
	CapManageForAllTenants Capability = "tool/certificate:manageforalltenants"
)

// Relation OpenFGA 关系名,例如 can_manage
func (c Capability) Relation() string {
	name := string(c)
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	return "can_" + name
}

var (
	// ErrUnauthenticated 未认证
	ErrUnauthenticated = errors.New("authentication required")
	// ErrPermissionDenied 权限不足
	ErrPermissionDenied = errors.New("permission denied")
)

// RequiredCapabilityError 缺少能力
type RequiredCapabilityError struct {
	Capability Capability
	ContextID  int64
}

func (e *RequiredCapabilityError) Error() string {
	return fmt.Sprintf("sorry, but you do not currently have permissions to do that (%s)", e.Capability)
}

// Unwrap 归类为 ErrPermissionDenied
func (e *RequiredCapabilityError) Unwrap() error {
	return ErrPermissionDenied
}
