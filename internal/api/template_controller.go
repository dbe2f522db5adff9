package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/certificate-gin/internal/service"
	"github.com/mautops/certificate-gin/internal/utils"
	"github.com/sirupsen/logrus"
)

// TemplateController 模板控制器
type TemplateController struct {
	templateService service.TemplateService
	logger          logrus.FieldLogger
}

// NewTemplateController 创建模板控制器
func NewTemplateController(templateService service.TemplateService, logger logrus.FieldLogger) *TemplateController {
	return &TemplateController{
		templateService: templateService,
		logger:          logger,
	}
}

// Create 创建模板
// @Summary      创建证书模板
// @Description  在系统或分类上下文中创建证书模板,并生成默认页面
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        request body service.CreateTemplateRequest true "模板信息"
// @Success      201  {object}  Response{data=service.TemplateResponse}
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /templates [post]
// @Security     BearerAuth
func (c *TemplateController) Create(ctx *gin.Context) {
	var req service.CreateTemplateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	template, err := c.templateService.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Created(ctx, template)
}

// Get 获取模板
// @Summary      获取模板详情
// @Description  根据 ID 获取模板及其页面
// @Tags         模板管理
// @Produce      json
// @Param        id path int true "模板 ID"
// @Success      200  {object}  Response{data=service.TemplateResponse}
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id} [get]
// @Security     BearerAuth
func (c *TemplateController) Get(ctx *gin.Context) {
	id, ok := c.templateID(ctx)
	if !ok {
		return
	}

	template, err := c.templateService.Get(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Success(ctx, template)
}

// Update 更新模板
// @Summary      更新模板
// @Description  修改模板名称,或将模板移动到其他上下文
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        id path int true "模板 ID"
// @Param        request body service.UpdateTemplateRequest true "模板信息"
// @Success      200  {object}  Response{data=service.TemplateResponse}
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id} [put]
// @Security     BearerAuth
func (c *TemplateController) Update(ctx *gin.Context) {
	id, ok := c.templateID(ctx)
	if !ok {
		return
	}

	var req service.UpdateTemplateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	template, err := c.templateService.Update(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Success(ctx, template)
}

// Delete 删除模板
// @Summary      删除模板
// @Description  删除模板及其页面、颁发记录和文件
// @Tags         模板管理
// @Produce      json
// @Param        id path int true "模板 ID"
// @Success      200  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id} [delete]
// @Security     BearerAuth
func (c *TemplateController) Delete(ctx *gin.Context) {
	id, ok := c.templateID(ctx)
	if !ok {
		return
	}

	if err := c.templateService.Delete(ctx.Request.Context(), id); err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Success(ctx, nil)
}

// List 获取模板列表
// @Summary      获取模板列表
// @Description  分页查询模板,支持按名称搜索和排序
// @Tags         模板管理
// @Produce      json
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Param        search query string false "名称关键字"
// @Param        sort_by query string false "排序字段: id, name, created_at, updated_at" default(name)
// @Param        order query string false "排序方向: asc, desc" default(asc)
// @Success      200  {object}  PaginatedResponse{data=[]service.TemplateResponse}
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /templates [get]
// @Security     BearerAuth
func (c *TemplateController) List(ctx *gin.Context) {
	filter := &service.TemplateListFilter{
		Page:     queryInt(ctx, "page"),
		PageSize: queryInt(ctx, "page_size"),
		Search:   ctx.Query("search"),
		SortBy:   ctx.Query("sort_by"),
		Order:    ctx.Query("order"),
	}

	result, err := c.templateService.List(ctx.Request.Context(), filter)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Paginated(ctx, result.Data, result.Pagination)
}

// Duplicate 复制模板
// @Summary      复制模板
// @Description  复制模板及其页面,可指定目标租户
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        id path int true "模板 ID"
// @Param        request body service.DuplicateTemplateRequest false "目标租户"
// @Success      201  {object}  Response{data=service.TemplateResponse}
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id}/duplicate [post]
// @Security     BearerAuth
func (c *TemplateController) Duplicate(ctx *gin.Context) {
	id, ok := c.templateID(ctx)
	if !ok {
		return
	}

	var req service.DuplicateTemplateRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}

	template, err := c.templateService.Duplicate(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Created(ctx, template)
}

// PotentialCertificates 可作为证书的模板
// @Summary      搜索可选模板
// @Description  返回当前用户可以颁发的模板,按名称搜索
// @Tags         模板管理
// @Produce      json
// @Param        search query string false "名称关键字"
// @Success      200  {object}  Response
// @Failure      401  {object}  ErrorResponse
// @Router       /templates/potential [get]
// @Security     BearerAuth
func (c *TemplateController) PotentialCertificates(ctx *gin.Context) {
	selections, err := c.templateService.PotentialCertificates(ctx.Request.Context(), ctx.Query("search"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Success(ctx, selections)
}

// AddPage 添加页面
// @Summary      添加模板页面
// @Description  在模板末尾添加一页,尺寸沿用最后一页
// @Tags         模板页面
// @Produce      json
// @Param        id path int true "模板 ID"
// @Success      201  {object}  Response{data=service.PageResponse}
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id}/pages [post]
// @Security     BearerAuth
func (c *TemplateController) AddPage(ctx *gin.Context) {
	id, ok := c.templateID(ctx)
	if !ok {
		return
	}

	page, err := c.templateService.AddPage(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Created(ctx, page)
}

// SavePages 保存页面表单
// @Summary      保存模板页面
// @Description  提交表单字段 pagewidth_<id>、pageheight_<id>、pageleftmargin_<id>、pagerightmargin_<id>
// @Tags         模板页面
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        id path int true "模板 ID"
// @Success      200  {object}  Response{data=service.TemplateResponse}
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /templates/{id}/pages [put]
// @Security     BearerAuth
func (c *TemplateController) SavePages(ctx *gin.Context) {
	id, ok := c.templateID(ctx)
	if !ok {
		return
	}

	if err := ctx.Request.ParseForm(); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid form", err.Error())
		return
	}

	template, err := c.templateService.SavePages(ctx.Request.Context(), id, ctx.Request.PostForm)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Success(ctx, template)
}

// DeletePage 删除页面
// @Summary      删除模板页面
// @Description  删除页面并重新编号其余页面
// @Tags         模板页面
// @Produce      json
// @Param        id path int true "模板 ID"
// @Param        pageid path int true "页面 ID"
// @Success      200  {object}  Response{data=service.TemplateResponse}
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id}/pages/{pageid} [delete]
// @Security     BearerAuth
func (c *TemplateController) DeletePage(ctx *gin.Context) {
	id, ok := c.templateID(ctx)
	if !ok {
		return
	}
	pageID, err := utils.ParseID(ctx.Param("pageid"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	template, err := c.templateService.DeletePage(ctx.Request.Context(), id, pageID)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}

	Success(ctx, template)
}

// templateID 解析路径中的模板 ID,失败时已写入响应
func (c *TemplateController) templateID(ctx *gin.Context) (int64, bool) {
	id, err := utils.ParseID(ctx.Param("id"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return 0, false
	}
	return id, true
}

// queryInt 读取整数查询参数,无法解析时返回 0
func queryInt(ctx *gin.Context, key string) int {
	v, err := strconv.Atoi(ctx.Query(key))
	if err != nil {
		return 0
	}
	return v
}
