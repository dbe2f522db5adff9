package pdf_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mautops/certificate-gin/internal/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() pdf.Document {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return pdf.Document{
		TemplateName: "Certificate of Completion",
		UserFullName: "Zoë Example",
		Code:         "ABCDEF1234",
		IssuedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Expires:      &expires,
		VerifyURL:    "http://localhost:8080/certificate/verify?code=ABCDEF1234",
	}
}

// TestFPDFRenderer_DefaultPage 测试无页面时使用默认页面
func TestFPDFRenderer_DefaultPage(t *testing.T) {
	r := pdf.NewFPDFRenderer(0, 0)

	out, err := r.Render(context.Background(), sampleDocument())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

// TestFPDFRenderer_MultiplePages 测试多页渲染
func TestFPDFRenderer_MultiplePages(t *testing.T) {
	r := pdf.NewFPDFRenderer(297, 210)
	doc := sampleDocument()
	doc.Pages = []pdf.Page{
		{Width: 297, Height: 210},
		{Width: 210, Height: 297, LeftMargin: 10, RightMargin: 10},
	}

	out, err := r.Render(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	single, err := r.Render(context.Background(), sampleDocument())
	require.NoError(t, err)
	assert.Greater(t, len(out), len(single))
}

// TestFPDFRenderer_WithoutQRCode 测试无验证地址
func TestFPDFRenderer_WithoutQRCode(t *testing.T) {
	doc := sampleDocument()
	doc.VerifyURL = ""
	doc.Expires = nil

	out, err := pdf.NewFPDFRenderer(0, 0).Render(context.Background(), doc)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

// TestFPDFRenderer_InvalidPage 测试无效页面
func TestFPDFRenderer_InvalidPage(t *testing.T) {
	tests := []struct {
		name string
		page pdf.Page
	}{
		{"zero width", pdf.Page{Width: 0, Height: 210}},
		{"negative margin", pdf.Page{Width: 297, Height: 210, LeftMargin: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDocument()
			doc.Pages = []pdf.Page{tt.page}
			_, err := pdf.NewFPDFRenderer(0, 0).Render(context.Background(), doc)
			assert.ErrorIs(t, err, pdf.ErrInvalidPage)
		})
	}
}

// TestFPDFRenderer_WideMargins 测试边距超过页宽
func TestFPDFRenderer_WideMargins(t *testing.T) {
	doc := sampleDocument()
	doc.Pages = []pdf.Page{{Width: 333, Height: 444, LeftMargin: 333, RightMargin: 444}}

	out, err := pdf.NewFPDFRenderer(0, 0).Render(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, 333.0, doc.Pages[0].LeftMargin)
}

// TestFPDFRenderer_Cancelled 测试上下文取消
func TestFPDFRenderer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pdf.NewFPDFRenderer(0, 0).Render(ctx, sampleDocument())
	assert.ErrorIs(t, err, context.Canceled)
}
