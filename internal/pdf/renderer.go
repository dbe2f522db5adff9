package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
)

// 默认页面尺寸 (A4 横向, 毫米)
const (
	DefaultPageWidth  = 297.0
	DefaultPageHeight = 210.0
)

// ErrInvalidPage 页面尺寸无效
var ErrInvalidPage = errors.New("invalid page dimensions")

// Page 页面布局,单位毫米
type Page struct {
	Width       float64
	Height      float64
	LeftMargin  float64
	RightMargin float64
}

// Document 待渲染的证书
type Document struct {
	TemplateName string
	UserFullName string
	Code         string
	IssuedAt     time.Time
	Expires      *time.Time
	VerifyURL    string
	Pages        []Page
}

// Renderer 证书 PDF 渲染接口
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// FPDFRenderer 基于 fpdf 的渲染器
type FPDFRenderer struct {
	defaultPage Page
	qrSize      int
	dateFormat  string
}

// NewFPDFRenderer 创建渲染器,宽高为 0 时使用 A4 横向
func NewFPDFRenderer(pageWidth, pageHeight float64) *FPDFRenderer {
	if pageWidth <= 0 {
		pageWidth = DefaultPageWidth
	}
	if pageHeight <= 0 {
		pageHeight = DefaultPageHeight
	}
	return &FPDFRenderer{
		defaultPage: Page{Width: pageWidth, Height: pageHeight},
		qrSize:      256,
		dateFormat:  "2 January 2006",
	}
}

// Render 渲染证书,每个模板页面对应一页 PDF
func (r *FPDFRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	pages := append([]Page(nil), doc.Pages...)
	if len(pages) == 0 {
		pages = []Page{r.defaultPage}
	}
	for i, p := range pages {
		if p.Width <= 0 || p.Height <= 0 || p.LeftMargin < 0 || p.RightMargin < 0 {
			return nil, fmt.Errorf("%w: page %d", ErrInvalidPage, i+1)
		}
		// 边距占满页宽时忽略边距
		if p.LeftMargin+p.RightMargin >= p.Width {
			pages[i].LeftMargin, pages[i].RightMargin = 0, 0
		}
	}

	first := pages[0]
	f := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: first.Width, Ht: first.Height},
	})
	f.SetTitle(doc.TemplateName, true)
	f.SetCreator("certificate-gin", true)
	f.SetAutoPageBreak(false, 0)
	if !doc.IssuedAt.IsZero() {
		f.SetCreationDate(doc.IssuedAt)
	}
	tr := f.UnicodeTranslatorFromDescriptor("")

	var qrName string
	if doc.VerifyURL != "" {
		png, err := qrcode.Encode(doc.VerifyURL, qrcode.Medium, r.qrSize)
		if err != nil {
			return nil, fmt.Errorf("failed to encode qr code: %w", err)
		}
		qrName = "verify-qr"
		f.RegisterImageOptionsReader(qrName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	}

	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f.SetMargins(p.LeftMargin, 0, p.RightMargin)
		f.AddPageFormat("P", fpdf.SizeType{Wd: p.Width, Ht: p.Height})

		// 只有首页输出证书正文
		if i == 0 {
			r.writeBody(f, tr, p, doc, qrName)
		}
	}

	var buf bytes.Buffer
	if err := f.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBody 输出证书正文和验证二维码
func (r *FPDFRenderer) writeBody(f *fpdf.Fpdf, tr func(string) string, p Page, doc Document, qrName string) {
	contentWidth := p.Width - p.LeftMargin - p.RightMargin
	line := func(size float64, style, text string, height float64) {
		f.SetFont("Helvetica", style, size)
		f.SetX(p.LeftMargin)
		f.CellFormat(contentWidth, height, tr(text), "", 1, "C", false, 0, "")
	}

	f.SetY(p.Height * 0.2)
	line(28, "B", doc.TemplateName, 16)
	f.Ln(6)
	line(14, "", "This is to certify that", 10)
	line(24, "B", doc.UserFullName, 14)
	f.Ln(6)

	issued := doc.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	line(12, "", "Issued on "+issued.Format(r.dateFormat), 8)
	if doc.Expires != nil {
		line(12, "", "Expires on "+doc.Expires.Format(r.dateFormat), 8)
	}

	// 右下角: 二维码和证书编号
	qrWidth := 30.0
	if qrWidth > contentWidth/3 {
		qrWidth = contentWidth / 3
	}
	x := p.Width - p.RightMargin - qrWidth - 5
	y := p.Height - qrWidth - 15
	if qrName != "" {
		f.ImageOptions(qrName, x, y, qrWidth, qrWidth, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, doc.VerifyURL)
	}
	f.SetFont("Helvetica", "", 9)
	f.SetXY(p.LeftMargin, p.Height-12)
	f.CellFormat(contentWidth-5, 6, tr("Code: "+doc.Code), "", 0, "R", false, 0, "")
}
