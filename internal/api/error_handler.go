package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/certificate"
	"github.com/mautops/certificate-gin/internal/external"
	"github.com/mautops/certificate-gin/internal/storage"
	"github.com/mautops/certificate-gin/internal/utils"
	"github.com/sirupsen/logrus"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
// 处理器通过 c.Error 登记的错误在这里统一转换为响应
func ErrorHandlerMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			return
		}
		HandleError(c, logger, err)
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// StatusFor 领域错误对应的 HTTP 状态码和消息
func StatusFor(err error) (int, string) {
	var verr *utils.ValidationError
	var perr *external.InvalidParameterError
	switch {
	case errors.As(err, &verr), errors.As(err, &perr):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "permission denied"
	case errors.Is(err, certificate.ErrTemplateNotFound):
		return http.StatusNotFound, "template not found"
	case errors.Is(err, certificate.ErrPageNotFound):
		return http.StatusNotFound, "page not found"
	case errors.Is(err, certificate.ErrIssueNotFound):
		return http.StatusNotFound, "certificate not found"
	case errors.Is(err, certificate.ErrContextNotFound):
		return http.StatusNotFound, "context not found"
	case errors.Is(err, storage.ErrFileNotFound):
		return http.StatusNotFound, "file not found"
	case errors.Is(err, storage.ErrFileExists):
		return http.StatusConflict, "file already exists"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// HandleError 将领域错误写为错误响应
func HandleError(c *gin.Context, logger logrus.FieldLogger, err error) {
	status, message := StatusFor(err)
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.WithError(err).WithField("request_id", c.GetString("request_id")).Error("request failed")
		}
		Error(c, status, message, "")
		return
	}
	Error(c, status, message, err.Error())
}
