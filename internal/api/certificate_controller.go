package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/certificate-gin/internal/service"
	"github.com/sirupsen/logrus"
)

// CertificateController 证书查看和验证
type CertificateController struct {
	issueService service.IssueService
	logger       logrus.FieldLogger
}

// NewCertificateController 创建证书控制器
func NewCertificateController(issueService service.IssueService, logger logrus.FieldLogger) *CertificateController {
	return &CertificateController{
		issueService: issueService,
		logger:       logger,
	}
}

// View 查看证书
// @Summary      查看证书 PDF
// @Description  按证书编码输出 PDF,文件缺失时重新生成;download=1 时作为附件下载
// @Tags         证书
// @Produce      application/pdf
// @Param        code query string true "证书编码"
// @Param        download query bool false "作为附件下载"
// @Success      200  {file}  file
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /certificate/view [get]
// @Security     BearerAuth
func (c *CertificateController) View(ctx *gin.Context) {
	code := strings.TrimSpace(ctx.Query("code"))

	file, err := c.issueService.FileByCode(ctx.Request.Context(), code)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	disposition := "inline"
	if ctx.Query("download") == "1" || ctx.Query("download") == "true" {
		disposition = "attachment"
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, file.Name))
	ctx.Header("Cache-Control", "private, max-age=0")
	ctx.Data(http.StatusOK, file.MimeType, file.Content)
}

// Verify 验证证书
// @Summary      验证证书
// @Description  按证书编码验证证书是否存在且未过期
// @Tags         证书
// @Produce      json
// @Param        code query string true "证书编码"
// @Success      200  {object}  Response{data=service.VerificationResponse}
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /certificate/verify [get]
// @Security     BearerAuth
func (c *CertificateController) Verify(ctx *gin.Context) {
	code := strings.TrimSpace(ctx.Query("code"))

	result, err := c.issueService.Verify(ctx.Request.Context(), code)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Success(ctx, result)
}
