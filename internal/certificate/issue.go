package certificate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/mautops/certificate-gin/internal/event"
	"github.com/mautops/certificate-gin/internal/message"
	"github.com/mautops/certificate-gin/internal/metrics"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/mautops/certificate-gin/internal/pdf"
	"github.com/mautops/certificate-gin/internal/repository"
	"github.com/mautops/certificate-gin/internal/storage"
	"github.com/mautops/certificate-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IssuesArea 证书文件区域
const IssuesArea = "issues"

// 颁发通知
const (
	IssuedEventType = "certificateissued"
	IssuedSubject   = "Your certificate is available!"
)

// IssueOptions 颁发选项
type IssueOptions struct {
	UserFullName string
	Email        string // 非空时邮件发送证书
	Expires      *time.Time
}

// IssueFileRef 证书文件定位
func IssueFileRef(issue *model.IssueModel) storage.FileRef {
	return storage.FileRef{
		ContextID: model.SystemContextID,
		Component: Component,
		Area:      IssuesArea,
		ItemID:    issue.ID,
		Path:      "/",
		Name:      issue.Code + ".pdf",
	}
}

// IssueCertificate 向用户颁发证书
// 同一用户重复颁发会产生新的颁发记录
func (t *Template) IssueCertificate(ctx context.Context, userID string, opts IssueOptions) (*model.IssueModel, error) {
	if userID == "" {
		return nil, utils.NewValidationError("EMPTY_USER", "user id cannot be empty")
	}
	fullName := opts.UserFullName
	if fullName == "" {
		fullName = userID
	}

	// 颁发记录、证书文件、通知和事件在同一事务中写入
	var issue *model.IssueModel
	err := t.m.inTx(ctx, func(tx *gorm.DB, scope *txScope) error {
		// 1. 写入颁发记录
		issues := repository.NewIssueRepository(tx)
		code, err := t.m.uniqueCode(ctx, issues)
		if err != nil {
			return err
		}

		data, err := json.Marshal(model.IssueData{
			UserFullName: fullName,
			Email:        opts.Email,
			TemplateName: t.record.Name,
			Code:         code,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal issue data: %w", err)
		}

		issue = &model.IssueModel{
			UserID:      userID,
			TemplateID:  t.record.ID,
			Code:        code,
			Data:        string(data),
			Component:   Component,
			Expires:     opts.Expires,
			Emailed:     opts.Email != "" && scope.messages != nil,
			TimeCreated: t.m.now(),
		}
		if err := issue.Validate(); err != nil {
			return err
		}
		if err := issues.Create(ctx, issue); err != nil {
			return fmt.Errorf("failed to create issue: %w", err)
		}

		// 2. 生成证书文件
		file, err := t.createIssueFile(ctx, scope.files, issue, false)
		if err != nil {
			return err
		}

		// 3. 通知用户
		if err := t.notifyIssued(ctx, scope.messages, issue, file, opts.Email); err != nil {
			return err
		}

		// 4. 写入事件
		return scope.trigger(ctx, t.issueEvent(ctx, event.CertificateIssued, issue))
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCertificateOperation("issued")

	t.m.logger.WithFields(logrus.Fields{
		"template_id": t.ID(),
		"issue_id":    issue.ID,
		"user_id":     userID,
	}).Info("certificate issued")

	return issue, nil
}

// RevokeIssue 撤销颁发记录并删除证书文件
func (t *Template) RevokeIssue(ctx context.Context, issueID int64) error {
	issue, err := t.m.findIssue(ctx, issueID)
	if err != nil {
		return err
	}
	if issue.TemplateID != t.record.ID {
		return fmt.Errorf("%w: %d", ErrIssueNotFound, issueID)
	}

	err = t.m.inTx(ctx, func(tx *gorm.DB, scope *txScope) error {
		itemID := issue.ID
		if err := scope.files.DeleteAreaFiles(ctx, model.SystemContextID, Component, IssuesArea, &itemID); err != nil {
			return err
		}
		if err := repository.NewIssueRepository(tx).Delete(ctx, issue.ID); err != nil {
			return fmt.Errorf("failed to delete issue: %w", err)
		}
		return scope.trigger(ctx, t.issueEvent(ctx, event.CertificateRevoked, issue))
	})
	if err != nil {
		return err
	}
	metrics.RecordCertificateOperation("revoked")

	t.m.logger.WithFields(logrus.Fields{
		"template_id": t.ID(),
		"issue_id":    issue.ID,
		"user_id":     issue.UserID,
	}).Info("certificate revoked")
	return nil
}

// CreateIssueFile 生成证书文件
// 文件已存在且 regenerate 为 false 时返回 storage.ErrFileExists,regenerate 时保留文件 ID
func (t *Template) CreateIssueFile(ctx context.Context, issue *model.IssueModel, regenerate bool) (*storage.StoredFile, error) {
	return t.createIssueFile(ctx, t.m.files, issue, regenerate)
}

// GetIssueFile 获取证书文件,不存在时重新生成
func (t *Template) GetIssueFile(ctx context.Context, issue *model.IssueModel) (*storage.StoredFile, error) {
	file, err := t.m.files.GetFile(ctx, IssueFileRef(issue))
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, storage.ErrFileNotFound) {
		return nil, err
	}
	return t.CreateIssueFile(ctx, issue, false)
}

// Issues 模板的颁发记录
func (t *Template) Issues(ctx context.Context, userID string, offset, limit int) ([]*model.IssueModel, int64, error) {
	repo := repository.NewIssueRepository(t.m.db)
	filter := repository.IssueFilter{TemplateID: t.record.ID, UserID: userID, Offset: offset, Limit: limit}

	total, err := repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count issues: %w", err)
	}
	list, err := repo.Find(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list issues: %w", err)
	}
	return list, total, nil
}

// FindIssue 加载属于模板的颁发记录
func (t *Template) FindIssue(ctx context.Context, issueID int64) (*model.IssueModel, error) {
	issue, err := t.m.findIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.TemplateID != t.record.ID {
		return nil, fmt.Errorf("%w: %d", ErrIssueNotFound, issueID)
	}
	return issue, nil
}

// IssueByCode 根据编码加载颁发记录及其模板
func (m *Manager) IssueByCode(ctx context.Context, code string) (*model.IssueModel, *Template, error) {
	if err := utils.ValidateCode(code); err != nil {
		return nil, nil, err
	}
	issue, err := repository.NewIssueRepository(m.db).FindByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrIssueNotFound, code)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get issue: %w", err)
	}
	t, err := m.Instance(ctx, issue.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	return issue, t, nil
}

// createIssueFile 渲染并保存证书文件
func (t *Template) createIssueFile(ctx context.Context, files storage.FileStorage, issue *model.IssueModel, regenerate bool) (*storage.StoredFile, error) {
	ref := IssueFileRef(issue)
	existing, err := files.GetFile(ctx, ref)
	switch {
	case err == nil && !regenerate:
		return nil, fmt.Errorf("%w: %s", storage.ErrFileExists, ref.Name)
	case err != nil && !errors.Is(err, storage.ErrFileNotFound):
		return nil, err
	}

	content, err := t.render(ctx, issue)
	if err != nil {
		return nil, err
	}

	var file *storage.StoredFile
	if existing != nil {
		file, err = files.ReplaceContent(ctx, existing, content)
	} else {
		file, err = files.CreateFileFromBytes(ctx, ref, content)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store issue file: %w", err)
	}

	metrics.RecordIssueFileGenerated(existing != nil)
	return file, nil
}

// render 渲染证书 PDF
func (t *Template) render(ctx context.Context, issue *model.IssueModel) ([]byte, error) {
	data, err := issue.DecodeData()
	if err != nil {
		return nil, fmt.Errorf("failed to decode issue data: %w", err)
	}
	if data.UserFullName == "" {
		data.UserFullName = issue.UserID
	}

	pages := make([]pdf.Page, 0, len(t.pages))
	for _, p := range t.pages {
		pages = append(pages, pdf.Page{
			Width:       p.Width,
			Height:      p.Height,
			LeftMargin:  p.LeftMargin,
			RightMargin: p.RightMargin,
		})
	}

	content, err := t.m.renderer.Render(ctx, pdf.Document{
		TemplateName: t.record.Name,
		UserFullName: data.UserFullName,
		Code:         issue.Code,
		IssuedAt:     issue.TimeCreated,
		Expires:      issue.Expires,
		VerifyURL:    t.m.urls.VerifyURL(issue.Code),
		Pages:        pages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}
	return content, nil
}

// notifyIssued 保存颁发通知,有邮箱时附带证书文件
func (t *Template) notifyIssued(ctx context.Context, messages message.Sender, issue *model.IssueModel, file *storage.StoredFile, email string) error {
	if messages == nil {
		return nil
	}

	viewURL := t.m.urls.ViewURL(issue.Code)
	msg := &message.Message{
		Component:       Component,
		EventType:       IssuedEventType,
		UserFrom:        actorID(ctx),
		UserTo:          issue.UserID,
		ToEmail:         email,
		Subject:         IssuedSubject,
		FullMessage:     fmt.Sprintf("%s\n\nYou can view it here: %s", IssuedSubject, viewURL),
		FullMessageHTML: fmt.Sprintf("<p>%s</p><p><a href=\"%s\">%s</a></p>", IssuedSubject, html.EscapeString(viewURL), html.EscapeString(t.record.Name)),
		ContextURL:      viewURL,
		ContextURLName:  t.record.Name,
	}

	if email != "" && file != nil {
		content, err := file.Content(ctx)
		if err != nil {
			t.m.logger.WithError(err).WithField("issue_id", issue.ID).Warn("failed to attach certificate")
		} else {
			msg.Attachments = []message.Attachment{{Name: file.Name(), ContentType: file.MimeType(), Content: content}}
		}
	}

	if _, err := messages.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send issue notification: %w", err)
	}
	return nil
}

// issueEvent 构建颁发事件
func (t *Template) issueEvent(ctx context.Context, name event.Name, issue *model.IssueModel) *event.Event {
	return &event.Event{
		Name:          name,
		Component:     Component,
		ContextID:     t.record.ContextID,
		ObjectTable:   issue.TableName(),
		ObjectID:      issue.ID,
		UserID:        actorID(ctx),
		RelatedUserID: issue.UserID,
		URL:           t.m.urls.ViewURL(issue.Code),
		Other:         map[string]interface{}{"templateid": t.record.ID, "code": issue.Code},
	}
}

// findIssue 加载颁发记录
func (m *Manager) findIssue(ctx context.Context, issueID int64) (*model.IssueModel, error) {
	issue, err := repository.NewIssueRepository(m.db).FindByID(ctx, issueID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrIssueNotFound, issueID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// uniqueCode 生成未被使用的证书编码
func (m *Manager) uniqueCode(ctx context.Context, issues repository.IssueRepository) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := utils.GenerateCode(m.codeLength)
		if err != nil {
			return "", err
		}
		exists, err := issues.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check issue code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", maxCodeAttempts)
}
