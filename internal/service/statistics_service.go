package service

import (
	"context"
	"fmt"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/model"
	"gorm.io/gorm"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetSummary(ctx context.Context) (*CertificateSummary, error)
	GetIssueStatisticsByTemplate(ctx context.Context) ([]*IssueStatisticsByTemplate, error)
	GetIssueStatisticsByTime(ctx context.Context) ([]*IssueStatisticsByTime, error)
}

// CertificateSummary 证书总体统计
type CertificateSummary struct {
	Templates int64 `json:"templates"`
	Issues    int64 `json:"issues"`
	Emailed   int64 `json:"emailed"`
	Users     int64 `json:"users"`
}

// IssueStatisticsByTemplate 按模板统计
type IssueStatisticsByTemplate struct {
	TemplateID   int64  `json:"templateid"`
	TemplateName string `json:"templatename"`
	Count        int64  `json:"count"`
}

// IssueStatisticsByTime 按日期统计
type IssueStatisticsByTime struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	db         *gorm.DB
	authorizer auth.Authorizer
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB, authorizer auth.Authorizer) StatisticsService {
	return &statisticsService{db: db, authorizer: authorizer}
}

// GetSummary 模板数、证书数、已邮件发送数和获证用户数
func (s *statisticsService) GetSummary(ctx context.Context) (*CertificateSummary, error) {
	if err := s.require(ctx); err != nil {
		return nil, err
	}

	summary := &CertificateSummary{}
	db := s.db.WithContext(ctx)

	if err := db.Model(&model.TemplateModel{}).Count(&summary.Templates).Error; err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}
	if err := db.Model(&model.IssueModel{}).Count(&summary.Issues).Error; err != nil {
		return nil, fmt.Errorf("failed to count issues: %w", err)
	}
	if err := db.Model(&model.IssueModel{}).Where("emailed = ?", true).Count(&summary.Emailed).Error; err != nil {
		return nil, fmt.Errorf("failed to count emailed issues: %w", err)
	}
	if err := db.Model(&model.IssueModel{}).Distinct("user_id").Count(&summary.Users).Error; err != nil {
		return nil, fmt.Errorf("failed to count certified users: %w", err)
	}

	return summary, nil
}

// GetIssueStatisticsByTemplate 按模板统计证书数量
func (s *statisticsService) GetIssueStatisticsByTemplate(ctx context.Context) ([]*IssueStatisticsByTemplate, error) {
	if err := s.require(ctx); err != nil {
		return nil, err
	}

	var results []struct {
		TemplateID   int64
		TemplateName string
		Count        int64
	}

	err := s.db.WithContext(ctx).Model(&model.IssueModel{}).
		Select("certificate_issues.template_id AS template_id, certificate_templates.name AS template_name, COUNT(*) AS count").
		Joins("LEFT JOIN certificate_templates ON certificate_templates.id = certificate_issues.template_id").
		Group("certificate_issues.template_id, certificate_templates.name").
		Order("count DESC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get issue statistics by template: %w", err)
	}

	stats := make([]*IssueStatisticsByTemplate, 0, len(results))
	for _, r := range results {
		stats = append(stats, &IssueStatisticsByTemplate{
			TemplateID:   r.TemplateID,
			TemplateName: r.TemplateName,
			Count:        r.Count,
		})
	}

	return stats, nil
}

// GetIssueStatisticsByTime 按颁发日期统计证书数量
func (s *statisticsService) GetIssueStatisticsByTime(ctx context.Context) ([]*IssueStatisticsByTime, error) {
	if err := s.require(ctx); err != nil {
		return nil, err
	}

	var results []struct {
		Date  string
		Count int64
	}

	err := s.db.WithContext(ctx).Model(&model.IssueModel{}).
		Select("DATE(time_created) AS date, COUNT(*) AS count").
		Group("DATE(time_created)").
		Order("date DESC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get issue statistics by time: %w", err)
	}

	stats := make([]*IssueStatisticsByTime, 0, len(results))
	for _, r := range results {
		stats = append(stats, &IssueStatisticsByTime{
			Date:  r.Date,
			Count: r.Count,
		})
	}

	return stats, nil
}

// require 统计需要系统上下文的查看全部证书能力
func (s *statisticsService) require(ctx context.Context) error {
	p, err := principalFrom(ctx)
	if err != nil {
		return err
	}
	return auth.Require(ctx, s.authorizer, p, auth.CapViewAllCertificates, model.SystemContextID)
}
