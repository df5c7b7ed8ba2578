package certificate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"eventcert/internal/layout"
)

// DefaultPreviewScale 是预览图的像素/point 比例。
const DefaultPreviewScale = 1.0

var (
	fontsOnce sync.Once
	fontsErr  error
	sansFont  *opentype.Font
	monoFont  *opentype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if sansFont, fontsErr = opentype.Parse(gobold.TTF); fontsErr != nil {
			return
		}
		monoFont, fontsErr = opentype.Parse(gomonobold.TTF)
	})
	return fontsErr
}

// PreviewRenderer 把证书栅格化为 PNG，用于编辑器预览。
// 位图中的文字使用 Go 字体近似，只保证位置与层叠顺序和 PDF 一致。
type PreviewRenderer struct {
	logger *slog.Logger
	scale  float64
}

// NewPreviewRenderer 创建预览渲染器，scale 不大于 0 时使用默认比例。
func NewPreviewRenderer(scale float64, logger *slog.Logger) *PreviewRenderer {
	if scale <= 0 {
		scale = DefaultPreviewScale
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PreviewRenderer{logger: logger, scale: scale}
}

// Render 返回 PNG 字节。
func (r *PreviewRenderer) Render(ctx context.Context, in Input) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scene, err := Compose(in, r.logger)
	if err != nil {
		return nil, err
	}
	img, err := Rasterize(scene, r.scale, r.logger)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Rasterize 按绘制顺序把场景合成为位图。
func Rasterize(scene *Scene, scale float64, logger *slog.Logger) (*image.NRGBA, error) {
	if logger == nil {
		logger = slog.Default()
	}
	px := func(v float64) int { return int(math.Round(v * scale)) }

	canvas := imaging.New(px(PageWidth), px(PageHeight), color.White)
	for _, op := range scene.Ops {
		switch op.Kind {
		case OpTemplate:
			img, err := op.Asset.Image()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
			}
			canvas = imaging.Paste(canvas, imaging.Resize(img, canvas.Bounds().Dx(), canvas.Bounds().Dy(), imaging.Lanczos), image.Pt(0, 0))
		case OpImage, OpQR:
			w, h := px(op.Width), px(op.Height)
			if w < 1 || h < 1 {
				continue
			}
			img, err := op.Asset.Image()
			if err != nil {
				logger.Warn("skip preview element", slog.String("ref", op.Ref), slog.Any("error", err))
				continue
			}
			filter := imaging.Lanczos
			if op.Kind == OpQR {
				filter = imaging.NearestNeighbor
			}
			canvas = imaging.Overlay(canvas, imaging.Resize(img, w, h, filter), image.Pt(px(op.X), px(op.Y)), 1.0)
		case OpText:
			if err := rasterText(canvas, op, scale); err != nil {
				logger.Warn("skip preview text", slog.String("ref", op.Ref), slog.Any("error", err))
			}
		}
	}
	return canvas, nil
}

func rasterText(canvas *image.NRGBA, op Op, scale float64) error {
	if err := loadFonts(); err != nil {
		return fmt.Errorf("load fonts: %w", err)
	}
	t := op.Text
	f := sansFont
	if t.Face == FaceMonoBold {
		f = monoFont
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    t.FontSize * scale,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return fmt.Errorf("new face: %w", err)
	}
	defer face.Close()

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.NRGBA{R: t.Color.R, G: t.Color.G, B: t.Color.B, A: 0xff}),
		Face: face,
	}
	x := t.BoxX * scale
	if t.Align != layout.AlignLeft {
		advance := float64(d.MeasureString(t.Text)) / 64
		x = (t.BoxX+t.BoxWidth/2)*scale - advance/2
	}
	d.Dot = fixed.Point26_6{
		X: fixed.Int26_6(x * 64),
		Y: fixed.Int26_6(op.Y*scale*64) + face.Metrics().Ascent,
	}
	d.DrawString(t.Text)
	return nil
}
