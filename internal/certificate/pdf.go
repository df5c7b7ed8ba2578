package certificate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-pdf/fpdf"

	"eventcert/internal/layout"
)

// lineHeightFactor 是多行文字的行高与字号之比。
const lineHeightFactor = 1.15

// 标准 14 字体粗体的上升高度（千分之一字号），用于把布局的 y 对齐到行框顶部。
var faceAscent = map[Face]float64{
	FaceSansBold:  0.718,
	FaceSerifBold: 0.683,
	FaceMonoBold:  0.629,
}

var faceFamily = map[Face]string{
	FaceSansBold:  "Helvetica",
	FaceSerifBold: "Times",
	FaceMonoBold:  "Courier",
}

// PDFRenderer 使用 fpdf 直接生成矢量 PDF，文字保持可选中。
type PDFRenderer struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewPDFRenderer 创建默认的 PDF 渲染器。
func NewPDFRenderer(logger *slog.Logger) *PDFRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFRenderer{logger: logger, now: time.Now}
}

// Render 实现 Renderer。
func (r *PDFRenderer) Render(ctx context.Context, in Input) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scene, err := Compose(in, r.logger)
	if err != nil {
		return nil, err
	}
	return r.draw(scene)
}

func (r *PDFRenderer) draw(scene *Scene) ([]byte, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "L",
		UnitStr:        "pt",
		SizeStr:        "A4",
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCellMargin(0)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(r.now())
	pdf.SetCreator("eventcert", true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, op := range scene.Ops {
		switch op.Kind {
		case OpTemplate:
			if err := placeImage(pdf, i, op); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
			}
		case OpImage, OpQR:
			if err := placeImage(pdf, i, op); err != nil {
				r.logger.Warn("skip certificate element",
					slog.String("kind", op.Kind.String()),
					slog.String("ref", op.Ref),
					slog.Any("error", err),
				)
			}
		case OpText:
			drawText(pdf, tr, op)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func placeImage(pdf *fpdf.Fpdf, index int, op Op) error {
	data, imageType, err := op.Asset.pdfPayload()
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%d", op.Kind, index)
	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if pdf.Err() {
		err := pdf.Error()
		pdf.ClearError()
		return fmt.Errorf("embed image: %w", err)
	}
	pdf.ImageOptions(name, op.X, op.Y, op.Width, op.Height, false, opts, 0, "")
	if pdf.Err() {
		err := pdf.Error()
		pdf.ClearError()
		return fmt.Errorf("place image: %w", err)
	}
	return nil
}

func drawText(pdf *fpdf.Fpdf, tr func(string) string, op Op) {
	t := op.Text
	pdf.SetFont(faceFamily[t.Face], "B", t.FontSize)
	pdf.SetTextColor(int(t.Color.R), int(t.Color.G), int(t.Color.B))

	// fpdf 把基线放在行框中线下方 0.3 个字号处，这里换算为“y 是行框顶部”的语义。
	lineHeight := t.FontSize * lineHeightFactor
	baseline := lineHeight/2 + 0.3*t.FontSize
	top := op.Y + faceAscent[t.Face]*t.FontSize - baseline

	align := "C"
	if t.Align == layout.AlignLeft {
		align = "L"
	}
	pdf.SetXY(t.BoxX, top)
	pdf.MultiCell(t.BoxWidth, lineHeight, tr(t.Text), "", align, false)
}
