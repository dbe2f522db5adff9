package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/external"
	"github.com/sirupsen/logrus"
)

// maxBatchSize 单次批量调用的最大请求数
const maxBatchSize = 50

// RPCController 外部函数调用入口
type RPCController struct {
	registry *external.Registry
	logger   logrus.FieldLogger
}

// NewRPCController 创建外部函数控制器
func NewRPCController(registry *external.Registry, logger logrus.FieldLogger) *RPCController {
	return &RPCController{
		registry: registry,
		logger:   logger,
	}
}

// Call 批量调用外部函数
// @Summary      批量调用外部函数
// @Description  请求体为 [{index, methodname, args}],按顺序执行,遇到第一个失败后停止
// @Tags         外部函数
// @Accept       json
// @Produce      json
// @Param        request body []external.Request true "调用列表"
// @Success      200  {array}   external.Response
// @Failure      400  {object}  ErrorResponse
// @Router       /rpc [post]
// @Security     BearerAuth
func (c *RPCController) Call(ctx *gin.Context) {
	var requests []external.Request
	if err := ctx.ShouldBindJSON(&requests); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if len(requests) == 0 || len(requests) > maxBatchSize {
		Error(ctx, http.StatusBadRequest, "invalid request", "batch must contain between 1 and 50 calls")
		return
	}

	// 未登录时 principal 为 nil,由各函数返回 requireloginerror
	p, _ := auth.PrincipalFrom(ctx.Request.Context())

	ctx.JSON(http.StatusOK, c.registry.CallBatch(ctx.Request.Context(), p, requests))
}
