package utils_test

import (
	"testing"

	"github.com/mautops/certificate-gin/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStripTags 测试移除 HTML 标签
func TestStripTags(t *testing.T) {
	cases := map[string]string{
		"plain":                         "plain",
		"<b>bold</b> text":              "bold text",
		"a<!-- hidden -->b":             "ab",
		"<script>alert(1)</script>name": "alert(1)name",
		"":                              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, utils.StripTags(in), in)
	}
}

// TestValidateTemplateName 测试模板名称验证
func TestValidateTemplateName(t *testing.T) {
	assert.NoError(t, utils.ValidateTemplateName("Course completion"))
	assert.Equal(t, utils.ErrEmptyName, utils.ValidateTemplateName("   "))
	assert.Equal(t, utils.ErrDangerousChars, utils.ValidateTemplateName("<script>x</script>"))

	long := make([]rune, 256)
	for i := range long {
		long[i] = 'a'
	}
	assert.Equal(t, utils.ErrNameTooLong, utils.ValidateTemplateName(string(long)))
}

// TestParseID 测试 ID 解析
func TestParseID(t *testing.T) {
	id, err := utils.ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = utils.ParseID("")
	assert.Equal(t, utils.ErrEmptyID, err)

	for _, raw := range []string{"0", "-3", "abc", "1.5"} {
		_, err = utils.ParseID(raw)
		assert.Equal(t, utils.ErrInvalidIDFormat, err, raw)
	}
}

// TestGenerateCode 测试证书编码生成
func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := utils.GenerateCode(10)
		require.NoError(t, err)
		assert.Len(t, code, 10)
		assert.NoError(t, utils.ValidateCode(code))
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)

	_, err := utils.GenerateCode(0)
	assert.Error(t, err)
}

// TestValidateCode 测试证书编码验证
func TestValidateCode(t *testing.T) {
	assert.Equal(t, utils.ErrEmptyCode, utils.ValidateCode(""))
	assert.Equal(t, utils.ErrInvalidCode, utils.ValidateCode("abc"))
	assert.Equal(t, utils.ErrInvalidCode, utils.ValidateCode("AB C"))
	assert.NoError(t, utils.ValidateCode("AB12CD34EF"))
}

// TestSortColumns 测试排序子句生成
func TestSortColumns(t *testing.T) {
	cols := utils.NewSortColumns("name", "created_at")

	clause, err := cols.Clause("created_at", "desc")
	assert.NoError(t, err)
	assert.Equal(t, "created_at DESC", clause)

	_, err = cols.Clause("id", "asc")
	assert.ErrorIs(t, err, utils.ErrInvalidSortField)
	_, err = cols.Clause("name; DROP TABLE x", "asc")
	assert.ErrorIs(t, err, utils.ErrInvalidSortField)
	_, err = cols.Clause("name", "sideways")
	assert.ErrorIs(t, err, utils.ErrInvalidSortOrder)
}
