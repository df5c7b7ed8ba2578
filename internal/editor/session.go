// Package editor 实现证书布局的交互编辑逻辑：拖拽、缩放、对齐切换、
// 模块启停与图片上传。它只操作内存中的布局，持久化交给 SaveFunc。
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/segmentio/ksuid"

	"eventcert/internal/layout"
)

const (
	// MinWidth 是二维码与图片缩放后的最小宽度。
	MinWidth = 30
	// MinFontSize 是文字缩放后的最小字号。
	MinFontSize = 8
	// fontSizeDivisor 把指针位移换算为字号变化。
	fontSizeDivisor = 10

	leftAlignedX = 300
	centeredX    = 0

	imageIDPrefix = "img_"
	newImageX     = 100
	newImageY     = 100
	newImageW     = 150
	newImageH     = 50

	maxImageBytes = 5 << 20
)

var (
	// ErrNotImage 表示上传内容不是可识别的图片。
	ErrNotImage = errors.New("uploaded file is not an image")
	// ErrImageTooLarge 表示上传图片超过大小限制。
	ErrImageTooLarge = errors.New("uploaded image is too large")
)

// SaveFunc 接收编辑完成的布局副本。
type SaveFunc func(ctx context.Context, l layout.Layout) error

// Viewport 描述画布在屏幕上的缩放与偏移，用于把屏幕坐标换算为页面坐标。
type Viewport struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// ToPage 把屏幕坐标转换为页面 point 坐标。
func (v Viewport) ToPage(screenX, screenY float64) (float64, float64) {
	s := v.scale()
	return (screenX - v.OffsetX) / s, (screenY - v.OffsetY) / s
}

func (v Viewport) scale() float64 {
	if v.Scale <= 0 {
		return 1
	}
	return v.Scale
}

type dragState struct {
	id           string
	grabX, grabY float64
}

type resizeState struct {
	id         string
	startValue float64
}

// Session 持有一次编辑会话的工作副本。Session 不是并发安全的，
// 调用方应保证同一时刻只有一个手势在操作它。
type Session struct {
	layout   layout.Layout
	viewport Viewport
	onSave   SaveFunc
	drag     *dragState
	resize   *resizeState
	newID    func() string
}

// NewSession 以存储的布局为基础开启编辑。缺省模块取默认值，显式移除的模块保持移除。
func NewSession(stored layout.Layout, viewport Viewport, onSave SaveFunc) *Session {
	return &Session{
		layout:   layout.Merge(layout.Default(), stored),
		viewport: viewport,
		onSave:   onSave,
		newID: func() string {
			return imageIDPrefix + ksuid.New().String()
		},
	}
}

// Layout 返回当前布局的副本。
func (s *Session) Layout() layout.Layout {
	return s.layout.Clone()
}

// SetViewport 更新画布缩放与偏移，例如窗口尺寸变化后。
func (s *Session) SetViewport(v Viewport) {
	s.viewport = v
}

// BeginDrag 记录按下位置与元素锚点之间的偏移，使拖拽时元素不跳动。
func (s *Session) BeginDrag(id string, screenX, screenY float64) {
	x, y, ok := s.anchor(id)
	if !ok {
		return
	}
	px, py := s.viewport.ToPage(screenX, screenY)
	s.drag = &dragState{id: id, grabX: px - x, grabY: py - y}
}

// Drag 把元素移动到指针位置。居中的文字只更新 y。
func (s *Session) Drag(id string, screenX, screenY float64) {
	px, py := s.viewport.ToPage(screenX, screenY)
	if s.drag != nil && s.drag.id == id {
		px -= s.drag.grabX
		py -= s.drag.grabY
	}

	name := layout.Module(id)
	switch {
	case layout.IsTextModule(name):
		t, ok := s.layout.Text(name).Get()
		if !ok {
			return
		}
		if !t.Centered() {
			t.X = px
		}
		t.Y = py
		s.layout.SetText(name, layout.Some(t))
	case name == layout.ModuleQR:
		qr, ok := s.layout.QR.Get()
		if !ok {
			return
		}
		qr.X, qr.Y = px, py
		s.layout.QR = layout.Some(qr)
	default:
		s.updateImage(id, func(img *layout.ImageField) {
			img.X, img.Y = px, py
		})
	}
}

// BeginResize 记录缩放起点的宽度或字号。
func (s *Session) BeginResize(id string) {
	v, ok := s.sizeOf(id)
	if !ok {
		return
	}
	s.resize = &resizeState{id: id, startValue: v}
}

// Resize 按自缩放开始以来的屏幕水平位移调整尺寸：
// 二维码与图片直接改宽度，文字按位移的十分之一改字号，二者均有下限。
func (s *Session) Resize(id string, screenDeltaX float64) {
	start, ok := s.sizeOf(id)
	if !ok {
		return
	}
	if s.resize != nil && s.resize.id == id {
		start = s.resize.startValue
	}
	delta := screenDeltaX / s.viewport.scale()

	name := layout.Module(id)
	switch {
	case layout.IsTextModule(name):
		t, _ := s.layout.Text(name).Get()
		t.FontSize = math.Max(MinFontSize, math.Round(start+delta/fontSizeDivisor))
		s.layout.SetText(name, layout.Some(t))
	case name == layout.ModuleQR:
		qr, _ := s.layout.QR.Get()
		qr.Width = math.Max(MinWidth, start+delta)
		s.layout.QR = layout.Some(qr)
	default:
		s.updateImage(id, func(img *layout.ImageField) {
			img.Width = math.Max(MinWidth, start+delta)
		})
	}
}

// EndGesture 结束当前拖拽或缩放。
func (s *Session) EndGesture() {
	s.drag = nil
	s.resize = nil
}

// ToggleAlign 在居中与左对齐之间切换；居中时 x 归零，左对齐时 x 置为 300。
func (s *Session) ToggleAlign(name layout.Module) {
	t, ok := s.layout.Text(name).Get()
	if !ok {
		return
	}
	if t.Centered() {
		t.Align = layout.AlignLeft
		t.X = leftAlignedX
	} else {
		t.Align = layout.AlignCenter
		t.X = centeredX
	}
	s.layout.SetText(name, layout.Some(t))
}

// EnableModule 从默认布局恢复一个模块，而不是恢复它被移除前的取值。
func (s *Session) EnableModule(name layout.Module) {
	def := layout.Default()
	switch {
	case layout.IsTextModule(name):
		s.layout.SetText(name, def.Text(name))
	case name == layout.ModuleQR:
		s.layout.QR = def.QR
	}
}

// DisableModule 把模块标记为显式移除。
func (s *Session) DisableModule(name layout.Module) {
	switch {
	case layout.IsTextModule(name):
		s.layout.SetText(name, layout.Null[layout.TextField]())
	case name == layout.ModuleQR:
		s.layout.QR = layout.Null[layout.QRField]()
	case name == layout.ModuleImages:
		s.layout.Images = layout.Null[[]layout.ImageField]()
	}
}

// UploadImage 读取图片并追加到布局末尾，返回新图片 id。
func (s *Session) UploadImage(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(b) > maxImageBytes {
		return "", ErrImageTooLarge
	}
	data := layout.NewImageData(b)
	if len(b) == 0 || !strings.HasPrefix(data.MIME, "image/") {
		return "", ErrNotImage
	}

	imgs, _ := s.layout.Images.Get()
	id := s.uniqueID(imgs)
	next := make([]layout.ImageField, 0, len(imgs)+1)
	next = append(next, imgs...)
	next = append(next, layout.ImageField{
		ID:     id,
		X:      newImageX,
		Y:      newImageY,
		Width:  newImageW,
		Height: newImageH,
		Src:    data,
	})
	s.layout.Images = layout.Some(next)
	return id, nil
}

// RemoveImage 按 id 删除图片，未知 id 不做任何事。
func (s *Session) RemoveImage(id string) {
	imgs, ok := s.layout.Images.Get()
	if !ok {
		return
	}
	next := make([]layout.ImageField, 0, len(imgs))
	for _, img := range imgs {
		if img.ID != id {
			next = append(next, img)
		}
	}
	s.layout.Images = layout.Some(next)
}

// Save 把当前布局副本交给保存回调。
func (s *Session) Save(ctx context.Context) error {
	if s.onSave == nil {
		return nil
	}
	return s.onSave(ctx, s.Layout())
}

func (s *Session) uniqueID(existing []layout.ImageField) string {
	for {
		id := s.newID()
		clash := false
		for _, img := range existing {
			if img.ID == id {
				clash = true
				break
			}
		}
		if !clash {
			return id
		}
	}
}

func (s *Session) anchor(id string) (float64, float64, bool) {
	name := layout.Module(id)
	switch {
	case layout.IsTextModule(name):
		t, ok := s.layout.Text(name).Get()
		if !ok {
			return 0, 0, false
		}
		if t.Centered() {
			return centeredX, t.Y, true
		}
		return t.X, t.Y, true
	case name == layout.ModuleQR:
		qr, ok := s.layout.QR.Get()
		return qr.X, qr.Y, ok
	}
	if img, ok := s.findImage(id); ok {
		return img.X, img.Y, true
	}
	return 0, 0, false
}

func (s *Session) sizeOf(id string) (float64, bool) {
	name := layout.Module(id)
	switch {
	case layout.IsTextModule(name):
		t, ok := s.layout.Text(name).Get()
		return t.FontSize, ok
	case name == layout.ModuleQR:
		qr, ok := s.layout.QR.Get()
		return qr.Width, ok
	}
	if img, ok := s.findImage(id); ok {
		return img.Width, true
	}
	return 0, false
}

func (s *Session) findImage(id string) (layout.ImageField, bool) {
	imgs, _ := s.layout.Images.Get()
	for _, img := range imgs {
		if img.ID == id {
			return img, true
		}
	}
	return layout.ImageField{}, false
}

func (s *Session) updateImage(id string, fn func(*layout.ImageField)) {
	imgs, ok := s.layout.Images.Get()
	if !ok {
		return
	}
	next := make([]layout.ImageField, len(imgs))
	copy(next, imgs)
	for i := range next {
		if next[i].ID == id {
			fn(&next[i])
			s.layout.Images = layout.Some(next)
			return
		}
	}
}
