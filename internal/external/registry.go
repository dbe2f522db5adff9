// Package external 远程调用函数: 参数声明、返回值声明和批量调用
package external

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/certificate"
	"github.com/mautops/certificate-gin/internal/utils"
	"github.com/sirupsen/logrus"
)

// 错误码
const (
	CodeNoPermissions      = "nopermissions"
	CodeInvalidParameter   = "invalidparameter"
	CodeInvalidRecord      = "invalidrecord"
	CodeRequireLogin       = "requireloginerror"
	CodeServiceUnavailable = "servicenotavailable"
	CodeGeneral            = "generalexceptionmessage"
)

// ErrUnknownFunction 函数不存在
var ErrUnknownFunction = errors.New("function not available")

// Handler 函数实现
type Handler func(ctx context.Context, p *auth.Principal, args Args) (interface{}, error)

// Function 远程调用函数
type Function struct {
	Name        string
	Description string
	Params      []Param
	Returns     Returns
	Handler     Handler
}

// Request 批量调用中的单个请求
type Request struct {
	Index      int                    `json:"index"`
	MethodName string                 `json:"methodname"`
	Args       map[string]interface{} `json:"args"`
}

// Exception 调用失败信息
type Exception struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorcode"`
}

// Response 批量调用中的单个响应
type Response struct {
	Error     bool        `json:"error"`
	Data      interface{} `json:"data"`
	Exception *Exception  `json:"exception,omitempty"`
}

// Registry 函数注册表
type Registry struct {
	mu        sync.RWMutex
	functions map[string]*Function
	logger    logrus.FieldLogger
}

// NewRegistry 创建函数注册表
func NewRegistry(logger logrus.FieldLogger) *Registry {
	return &Registry{
		functions: make(map[string]*Function),
		logger:    logger,
	}
}

// Register 注册函数
func (r *Registry) Register(fn *Function) error {
	if fn == nil || fn.Name == "" || fn.Handler == nil {
		return errors.New("function name and handler are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.functions[fn.Name]; exists {
		return fmt.Errorf("function %s already registered", fn.Name)
	}
	r.functions[fn.Name] = fn
	return nil
}

// Get 获取函数
func (r *Registry) Get(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[name]
	return fn, ok
}

// Names 已注册的函数名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call 调用函数: 校验参数、校验上下文、执行、清理返回值
func (r *Registry) Call(ctx context.Context, p *auth.Principal, name string, raw map[string]interface{}) (interface{}, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	// 1. 校验参数
	args, err := validateParameters(fn.Params, raw)
	if err != nil {
		return nil, err
	}

	// 2. 校验系统上下文
	if p == nil {
		return nil, auth.ErrUnauthenticated
	}
	ctx = auth.WithPrincipal(ctx, p)

	// 3. 执行
	result, err := fn.Handler(ctx, p, args)
	if err != nil {
		return nil, err
	}

	// 4. 清理返回值
	return cleanReturn(fn.Returns, result)
}

// CallBatch 按顺序执行批量请求,遇到失败后停止处理后续请求
func (r *Registry) CallBatch(ctx context.Context, p *auth.Principal, requests []Request) []Response {
	responses := make([]Response, 0, len(requests))
	for _, req := range requests {
		data, err := r.Call(ctx, p, req.MethodName, req.Args)
		if err != nil {
			exc := ToException(err)
			r.logger.WithError(err).WithFields(logrus.Fields{
				"method":    req.MethodName,
				"index":     req.Index,
				"errorcode": exc.ErrorCode,
			}).Warn("external function failed")
			responses = append(responses, Response{Error: true, Exception: exc})
			break
		}
		responses = append(responses, Response{Data: data})
	}
	return responses
}

// ToException 将错误转换为调用失败信息
func ToException(err error) *Exception {
	var paramErr *InvalidParameterError
	var validationErr *utils.ValidationError

	switch {
	case errors.As(err, &paramErr), errors.As(err, &validationErr):
		return &Exception{Message: err.Error(), ErrorCode: CodeInvalidParameter}
	case errors.Is(err, auth.ErrUnauthenticated):
		return &Exception{Message: err.Error(), ErrorCode: CodeRequireLogin}
	case errors.Is(err, auth.ErrPermissionDenied):
		return &Exception{Message: err.Error(), ErrorCode: CodeNoPermissions}
	case errors.Is(err, certificate.ErrTemplateNotFound),
		errors.Is(err, certificate.ErrIssueNotFound),
		errors.Is(err, certificate.ErrPageNotFound):
		return &Exception{Message: "Can't find data record in database. " + err.Error(), ErrorCode: CodeInvalidRecord}
	case errors.Is(err, ErrUnknownFunction):
		return &Exception{Message: err.Error(), ErrorCode: CodeServiceUnavailable}
	default:
		return &Exception{Message: err.Error(), ErrorCode: CodeGeneral}
	}
}
