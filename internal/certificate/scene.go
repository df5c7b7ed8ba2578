package certificate

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"eventcert/internal/layout"
)

// OpKind 是绘制指令的类型。
type OpKind int

const (
	OpTemplate OpKind = iota
	OpImage
	OpQR
	OpText
)

func (k OpKind) String() string {
	switch k {
	case OpTemplate:
		return "template"
	case OpImage:
		return "image"
	case OpQR:
		return "qr"
	case OpText:
		return "text"
	}
	return "unknown"
}

// Face 是文字使用的粗体字体。
type Face int

const (
	FaceSansBold Face = iota
	FaceSerifBold
	FaceMonoBold
)

// RGB 是 0-255 的颜色分量。
type RGB struct{ R, G, B uint8 }

// TextOp 描述一段文字在文本框内的绘制方式。
// 居中文字的文本框恒为整页宽度，左对齐文字的文本框从 X 延伸到页面右边缘。
type TextOp struct {
	Text     string
	FontSize float64
	Face     Face
	Color    RGB
	Align    layout.Align
	BoxX     float64
	BoxWidth float64
}

// Op 是一条绘制指令，坐标与尺寸单位为 point。
type Op struct {
	Kind   OpKind
	Ref    string
	X      float64
	Y      float64
	Width  float64
	Height float64
	Asset  *Asset
	Text   *TextOp
}

// Scene 是按绘制顺序排列的指令序列。
type Scene struct {
	Ops []Op
}

// Compose 把渲染输入解析为绘制指令。模板无法加载时返回 ErrTemplateLoad；
// 单张图片或二维码失败只记录日志并跳过。
func Compose(in Input, logger *slog.Logger) (*Scene, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tpl, err := LoadAsset(in.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
	}
	scene := &Scene{Ops: []Op{{
		Kind:   OpTemplate,
		Ref:    "template",
		Width:  PageWidth,
		Height: PageHeight,
		Asset:  tpl,
	}}}

	if imgs, ok := in.Layout.Images.Get(); ok {
		for _, img := range imgs {
			op, err := composeImage(img)
			if err != nil {
				logger.Warn("skip certificate image", slog.String("image_id", img.ID), slog.Any("error", err))
				continue
			}
			scene.Ops = append(scene.Ops, op)
		}
	}

	if qr, ok := in.Layout.QR.Get(); ok && qr.Width > 0 {
		asset, err := encodeQR(qrPayload(in))
		if err != nil {
			logger.Warn("skip certificate qr code", slog.Any("error", err))
		} else {
			scene.Ops = append(scene.Ops, Op{
				Kind:   OpQR,
				Ref:    string(layout.ModuleQR),
				X:      qr.X,
				Y:      qr.Y,
				Width:  qr.Width,
				Height: qr.Width,
				Asset:  asset,
			})
		}
	}

	for _, name := range layout.TextModules {
		field, ok := in.Layout.Text(name).Get()
		if !ok {
			continue
		}
		value := in.Values.text(name)
		if value == "" {
			continue
		}
		scene.Ops = append(scene.Ops, composeText(name, field, value))
	}
	return scene, nil
}

func composeImage(img layout.ImageField) (Op, error) {
	if img.Src.Empty() {
		return Op{}, fmt.Errorf("image source is not an inline data URI")
	}
	if img.Width <= 0 {
		return Op{}, fmt.Errorf("image width %v is not positive", img.Width)
	}
	asset, err := LoadAsset(img.Src.Bytes)
	if err != nil {
		return Op{}, err
	}
	return Op{
		Kind:   OpImage,
		Ref:    img.ID,
		X:      img.X,
		Y:      img.Y,
		Width:  img.Width,
		Height: img.Width * asset.AspectRatio(),
		Asset:  asset,
	}, nil
}

func composeText(name layout.Module, field layout.TextField, value string) Op {
	fallback := layout.TextFallback(name)

	size := field.FontSize
	if size <= 0 {
		size = fallback.FontSize
	}
	color, ok := parseHexColor(field.Color)
	if !ok {
		color = RGB{}
	}

	t := &TextOp{
		Text:     value,
		FontSize: size,
		Face:     faceFor(field.FontFamily),
		Color:    color,
		Align:    layout.AlignCenter,
		BoxX:     0,
		BoxWidth: PageWidth,
	}
	if field.Align == layout.AlignLeft {
		t.Align = layout.AlignLeft
		t.BoxX = field.X
		t.BoxWidth = PageWidth - field.X
		if t.BoxWidth < size {
			// 文本框越过页面右缘时保留一个字宽，文字会落到页面之外。
			t.BoxWidth = size
		}
	}
	return Op{
		Kind: OpText,
		Ref:  string(name),
		X:    t.BoxX,
		Y:    field.Y,
		Text: t,
	}
}

func faceFor(family layout.FontFamily) Face {
	switch layout.NormalizeFontFamily(string(family)) {
	case layout.FontSerif:
		return FaceSerifBold
	case layout.FontMono:
		return FaceMonoBold
	default:
		return FaceSansBold
	}
}

func parseHexColor(s string) (RGB, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return RGB{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, false
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, true
}
