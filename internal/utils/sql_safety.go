package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("sort order must be ASC or DESC")
)

// 列名只允许小写字母、数字和下划线,可带表名前缀
var columnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)?$`)

// SortColumns 允许参与排序的列集合
type SortColumns map[string]bool

// NewSortColumns 创建排序列白名单
func NewSortColumns(columns ...string) SortColumns {
	set := make(SortColumns, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return set
}

// Clause 生成 ORDER BY 子句,字段必须在白名单内
func (s SortColumns) Clause(field, order string) (string, error) {
	if !columnPattern.MatchString(field) || !s[field] {
		return "", fmt.Errorf("%w: %q", ErrInvalidSortField, field)
	}
	if err := ValidateSortOrder(order); err != nil {
		return "", err
	}
	return field + " " + strings.ToUpper(strings.TrimSpace(order)), nil
}

// ValidateSortOrder 验证排序方向
func ValidateSortOrder(order string) error {
	switch strings.ToUpper(strings.TrimSpace(order)) {
	case "ASC", "DESC":
		return nil
	}
	return ErrInvalidSortOrder
}
