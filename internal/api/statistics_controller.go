package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/certificate-gin/internal/service"
	"github.com/sirupsen/logrus"
)

// StatisticsController 统计控制器
type StatisticsController struct {
	statisticsService service.StatisticsService
	logger            logrus.FieldLogger
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(statisticsService service.StatisticsService, logger logrus.FieldLogger) *StatisticsController {
	return &StatisticsController{
		statisticsService: statisticsService,
		logger:            logger,
	}
}

// Summary 证书总体统计
// @Summary      证书总体统计
// @Tags         统计
// @Produce      json
// @Success      200  {object}  Response{data=service.CertificateSummary}
// @Failure      403  {object}  ErrorResponse
// @Router       /statistics/summary [get]
// @Security     BearerAuth
func (c *StatisticsController) Summary(ctx *gin.Context) {
	summary, err := c.statisticsService.GetSummary(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, summary)
}

// ByTemplate 按模板统计
// @Summary      按模板统计颁发数量
// @Tags         统计
// @Produce      json
// @Success      200  {object}  Response{data=[]service.IssueStatisticsByTemplate}
// @Failure      403  {object}  ErrorResponse
// @Router       /statistics/templates [get]
// @Security     BearerAuth
func (c *StatisticsController) ByTemplate(ctx *gin.Context) {
	stats, err := c.statisticsService.GetIssueStatisticsByTemplate(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, stats)
}

// ByTime 按日期统计
// @Summary      按日期统计颁发数量
// @Tags         统计
// @Produce      json
// @Success      200  {object}  Response{data=[]service.IssueStatisticsByTime}
// @Failure      403  {object}  ErrorResponse
// @Router       /statistics/daily [get]
// @Security     BearerAuth
func (c *StatisticsController) ByTime(ctx *gin.Context) {
	stats, err := c.statisticsService.GetIssueStatisticsByTime(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, stats)
}
