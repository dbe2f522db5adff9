package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	tagPattern     = regexp.MustCompile(`(?s)<[^>]*>`)
	commentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// StripTags 移除 HTML 标签,用于纯文本参数
func StripTags(input string) string {
	out := commentPattern.ReplaceAllString(input, "")
	out = tagPattern.ReplaceAllString(out, "")
	return stripControl(out)
}

// ValidateTemplateName 验证模板名称
func ValidateTemplateName(name string) error {
	// 1. 检查是否为空或仅包含空白字符
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrEmptyName
	}

	// 2. 检查长度（最大 255 字符）
	if len([]rune(trimmed)) > 255 {
		return ErrNameTooLong
	}

	// 3. 检查是否包含危险字符（XSS、SQL 注入等）
	if containsDangerousChars(trimmed) {
		return ErrDangerousChars
	}

	return nil
}

// ParseID 解析正整数 ID
func ParseID(raw string) (int64, error) {
	if raw == "" {
		return 0, ErrEmptyID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidIDFormat
	}
	return id, nil
}

// ValidateCode 验证证书编码格式
func ValidateCode(code string) error {
	if code == "" {
		return ErrEmptyCode
	}
	if len(code) > 40 {
		return ErrInvalidCode
	}
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return ErrInvalidCode
		}
	}
	return nil
}

// containsDangerousChars 检查字符串是否包含危险字符
func containsDangerousChars(s string) bool {
	// 检查常见的 XSS 和 SQL 注入模式
	dangerousPatterns := []string{
		"<script",
		"</script>",
		"javascript:",
		"onerror=",
		"onload=",
		"';",
		"'; --",
		"drop table",
		"delete from",
		"insert into",
		"update set",
		"union select",
		"<iframe",
		"<img",
		"<svg",
	}

	lower := strings.ToLower(s)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}


func stripControl(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// 错误定义
var (
	ErrEmptyName       = &ValidationError{Code: "EMPTY_NAME", Message: "name cannot be empty"}
	ErrNameTooLong     = &ValidationError{Code: "NAME_TOO_LONG", Message: "name exceeds maximum length"}
	ErrDangerousChars  = &ValidationError{Code: "DANGEROUS_CHARS", Message: "name contains dangerous characters"}
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id must be a positive integer"}
	ErrEmptyCode       = &ValidationError{Code: "EMPTY_CODE", Message: "code cannot be empty"}
	ErrInvalidCode     = &ValidationError{Code: "INVALID_CODE", Message: "code contains invalid characters"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError 创建验证错误
func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}
