package service_test

import (
	"context"
	"testing"

	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/mautops/certificate-gin/internal/service"
	"github.com/mautops/certificate-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStatisticsService 测试证书统计
func TestStatisticsService(t *testing.T) {
	env := testutil.NewEnv(t)
	templates, issues, _ := newServices(env)
	stats := service.NewStatisticsService(env.DB, env.Manager.Authorizer())
	admin := as(testutil.Admin())

	tpl := createTemplate(t, templates, "Course completion")
	other := createTemplate(t, templates, "Other")
	for _, req := range []struct {
		templateID int64
		userID     string
		email      string
	}{
		{tpl.ID, "s1", "s1@example.com"},
		{tpl.ID, "s2", ""},
		{other.ID, "s1", ""},
	} {
		_, err := issues.Issue(admin, req.templateID, &service.IssueRequest{UserID: req.userID, Email: req.email})
		require.NoError(t, err)
	}

	summary, err := stats.GetSummary(admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Templates)
	assert.Equal(t, int64(3), summary.Issues)
	assert.Equal(t, int64(1), summary.Emailed)
	assert.Equal(t, int64(2), summary.Users)

	byTemplate, err := stats.GetIssueStatisticsByTemplate(admin)
	require.NoError(t, err)
	require.Len(t, byTemplate, 2)
	assert.Equal(t, tpl.ID, byTemplate[0].TemplateID)
	assert.Equal(t, "Course completion", byTemplate[0].TemplateName)
	assert.Equal(t, int64(2), byTemplate[0].Count)

	byTime, err := stats.GetIssueStatisticsByTime(admin)
	require.NoError(t, err)
	require.Len(t, byTime, 1)
	assert.Equal(t, int64(3), byTime[0].Count)
	assert.NotEmpty(t, byTime[0].Date)

	// 需要查看全部证书能力
	_, err = stats.GetSummary(as(testutil.Issuer()))
	assert.ErrorIs(t, err, auth.ErrPermissionDenied)
	_, err = stats.GetSummary(context.Background())
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
