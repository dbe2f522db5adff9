package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/certificate-gin/internal/service"
	"github.com/mautops/certificate-gin/internal/utils"
	"github.com/sirupsen/logrus"
)

// IssueController 证书颁发控制器
type IssueController struct {
	issueService service.IssueService
	logger       logrus.FieldLogger
}

// NewIssueController 创建证书颁发控制器
func NewIssueController(issueService service.IssueService, logger logrus.FieldLogger) *IssueController {
	return &IssueController{
		issueService: issueService,
		logger:       logger,
	}
}

// Issue 颁发证书
// @Summary      颁发证书
// @Description  使用模板向用户颁发证书,生成 PDF 并在提供邮箱时发送邮件
// @Tags         证书颁发
// @Accept       json
// @Produce      json
// @Param        id path int true "模板 ID"
// @Param        request body service.IssueRequest true "接收人信息"
// @Success      201  {object}  Response{data=service.IssueResponse}
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id}/issues [post]
// @Security     BearerAuth
func (c *IssueController) Issue(ctx *gin.Context) {
	templateID, ok := c.pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.IssueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	issue, err := c.issueService.Issue(ctx.Request.Context(), templateID, &req)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Created(ctx, issue)
}

// List 获取颁发记录
// @Summary      获取模板的颁发记录
// @Description  有查看全部能力的用户可以看到所有记录,其他用户只能看到自己的证书
// @Tags         证书颁发
// @Produce      json
// @Param        id path int true "模板 ID"
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Param        userid query string false "接收人"
// @Success      200  {object}  PaginatedResponse{data=[]service.IssueResponse}
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id}/issues [get]
// @Security     BearerAuth
func (c *IssueController) List(ctx *gin.Context) {
	templateID, ok := c.pathID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.issueService.List(ctx.Request.Context(), templateID, c.filter(ctx))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Paginated(ctx, result.Data, result.Pagination)
}

// ListMine 获取当前用户的证书
// @Summary      我的证书
// @Description  获取当前用户获得的所有证书
// @Tags         证书颁发
// @Produce      json
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Success      200  {object}  PaginatedResponse{data=[]service.IssueResponse}
// @Failure      401  {object}  ErrorResponse
// @Router       /my/certificates [get]
// @Security     BearerAuth
func (c *IssueController) ListMine(ctx *gin.Context) {
	result, err := c.issueService.ListMine(ctx.Request.Context(), c.filter(ctx))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Paginated(ctx, result.Data, result.Pagination)
}

// Revoke 撤销证书
// @Summary      撤销证书
// @Description  删除颁发记录及其 PDF 文件
// @Tags         证书颁发
// @Produce      json
// @Param        id path int true "模板 ID"
// @Param        issueid path int true "颁发记录 ID"
// @Success      200  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id}/issues/{issueid} [delete]
// @Security     BearerAuth
func (c *IssueController) Revoke(ctx *gin.Context) {
	templateID, ok := c.pathID(ctx, "id")
	if !ok {
		return
	}
	issueID, ok := c.pathID(ctx, "issueid")
	if !ok {
		return
	}

	if err := c.issueService.Revoke(ctx.Request.Context(), templateID, issueID); err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Success(ctx, nil)
}

// RegenerateFile 重新生成证书文件
// @Summary      重新生成证书 PDF
// @Description  使用模板当前的页面设置重新生成证书文件
// @Tags         证书颁发
// @Produce      json
// @Param        id path int true "模板 ID"
// @Param        issueid path int true "颁发记录 ID"
// @Success      200  {object}  Response{data=service.IssueFileInfo}
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id}/issues/{issueid}/file [post]
// @Security     BearerAuth
func (c *IssueController) RegenerateFile(ctx *gin.Context) {
	templateID, ok := c.pathID(ctx, "id")
	if !ok {
		return
	}
	issueID, ok := c.pathID(ctx, "issueid")
	if !ok {
		return
	}

	info, err := c.issueService.RegenerateFile(ctx.Request.Context(), templateID, issueID)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Success(ctx, info)
}

func (c *IssueController) filter(ctx *gin.Context) *service.IssueListFilter {
	return &service.IssueListFilter{
		Page:     queryInt(ctx, "page"),
		PageSize: queryInt(ctx, "page_size"),
		UserID:   ctx.Query("userid"),
	}
}

func (c *IssueController) pathID(ctx *gin.Context, name string) (int64, bool) {
	id, err := utils.ParseID(ctx.Param(name))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return 0, false
	}
	return id, true
}
