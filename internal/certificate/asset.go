package certificate

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"sync"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

var errEmptyImage = errors.New("empty image payload")

// Asset 是一张待绘制的位图，按需解码并缓存。
type Asset struct {
	Data   []byte
	Format string
	Width  int
	Height int

	// generated 标记由本包编码的 PNG（例如二维码），嵌入 PDF 时无需转码。
	generated bool

	once    sync.Once
	decoded image.Image
	err     error
}

// LoadAsset 嗅探图片格式并读取尺寸，不做完整解码。
func LoadAsset(data []byte) (*Asset, error) {
	if len(data) == 0 {
		return nil, errEmptyImage
	}
	var (
		cfg    image.Config
		format string
		err    error
	)
	switch http.DetectContentType(data) {
	case "image/png":
		format = "png"
		cfg, err = png.DecodeConfig(bytes.NewReader(data))
	case "image/jpeg":
		format = "jpeg"
		cfg, err = jpeg.DecodeConfig(bytes.NewReader(data))
	case "image/gif":
		format = "gif"
		cfg, err = gif.DecodeConfig(bytes.NewReader(data))
	case "image/webp":
		format = "webp"
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported image type %q", http.DetectContentType(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s header: %w", format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	return &Asset{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func newDecodedAsset(img image.Image, data []byte) *Asset {
	a := &Asset{Data: data, Format: "png", Width: img.Bounds().Dx(), Height: img.Bounds().Dy(), generated: true}
	a.once.Do(func() { a.decoded = img })
	return a
}

// Image 返回解码后的图片。
func (a *Asset) Image() (image.Image, error) {
	a.once.Do(func() {
		r := bytes.NewReader(a.Data)
		switch a.Format {
		case "png":
			a.decoded, a.err = png.Decode(r)
		case "jpeg":
			a.decoded, a.err = jpeg.Decode(r)
		case "gif":
			a.decoded, a.err = gif.Decode(r)
		case "webp":
			a.decoded, a.err = webp.Decode(r)
		default:
			a.err = fmt.Errorf("unsupported image format %q", a.Format)
		}
		if a.err != nil {
			a.err = fmt.Errorf("decode %s: %w", a.Format, a.err)
		}
	})
	return a.decoded, a.err
}

// AspectRatio 返回高宽比。
func (a *Asset) AspectRatio() float64 {
	return float64(a.Height) / float64(a.Width)
}

// pdfPayload 返回可直接嵌入 PDF 的字节与 fpdf 图片类型。
// JPEG 原样嵌入，其余格式统一重新编码为 PNG。
func (a *Asset) pdfPayload() ([]byte, string, error) {
	if a.Format == "jpeg" {
		return a.Data, "JPG", nil
	}
	if a.generated {
		return a.Data, "PNG", nil
	}
	img, err := a.Image()
	if err != nil {
		return nil, "", err
	}
	// fpdf 不支持 16 位深度的 PNG，统一转为 8 位 NRGBA 后再编码。
	var buf bytes.Buffer
	if err := png.Encode(&buf, imaging.Clone(img)); err != nil {
		return nil, "", fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), "PNG", nil
}

func (a *Asset) dataURI() string {
	mime := http.DetectContentType(a.Data)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
