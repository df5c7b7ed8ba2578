package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidLayout 表示布局 JSON 无法解析或未通过结构校验。
var ErrInvalidLayout = errors.New("invalid certificate layout")

// FontFamily 是渲染层的字体族名，渲染时统一使用粗体。
type FontFamily string

const (
	FontSans  FontFamily = "Sans"
	FontSerif FontFamily = "Serif"
	FontMono  FontFamily = "Mono"
)

type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
)

// Module 标识布局中的一个模块。
type Module string

const (
	ModuleName    Module = "name"
	ModuleEvent   Module = "event"
	ModuleCollege Module = "college"
	ModuleDate    Module = "date"
	ModuleQR      Module = "qr"
	ModuleImages  Module = "images"
)

// TextModules 按渲染顺序列出四个文字模块。
var TextModules = []Module{ModuleName, ModuleEvent, ModuleCollege, ModuleDate}

// TextField 描述一个文字模块的位置与样式，坐标单位为 PDF point。
type TextField struct {
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	FontSize   float64    `json:"fontSize" validate:"gt=0"`
	FontFamily FontFamily `json:"fontFamily" validate:"oneof=Sans Serif Mono"`
	Color      string     `json:"color" validate:"hexcolor"`
	Align      Align      `json:"align" validate:"oneof=left center"`
}

// Centered 报告该文字是否居中；居中文字忽略 X。
func (t TextField) Centered() bool {
	return t.Align != AlignLeft
}

type QRField struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Width float64 `json:"width" validate:"gte=0"`
}

// ImageField 是用户上传的装饰图片，高度由图片宽高比推导，不单独存储。
type ImageField struct {
	ID     string    `json:"id" validate:"required"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Width  float64   `json:"width" validate:"gte=0"`
	Height float64   `json:"height,omitempty"`
	Src    ImageData `json:"src"`
}

// Layout 是一张证书的完整布局。任意模块都可能缺省或为 null。
type Layout struct {
	Name    Field[TextField]    `json:"name,omitzero"`
	Event   Field[TextField]    `json:"event,omitzero"`
	College Field[TextField]    `json:"college,omitzero"`
	Date    Field[TextField]    `json:"date,omitzero"`
	QR      Field[QRField]      `json:"qr,omitzero"`
	Images  Field[[]ImageField] `json:"images,omitzero"`
}

// Text 返回指定文字模块；非文字模块返回 absent。
func (l Layout) Text(name Module) Field[TextField] {
	switch name {
	case ModuleName:
		return l.Name
	case ModuleEvent:
		return l.Event
	case ModuleCollege:
		return l.College
	case ModuleDate:
		return l.Date
	}
	return Field[TextField]{}
}

// SetText 替换指定文字模块，非文字模块名被忽略。
func (l *Layout) SetText(name Module, f Field[TextField]) {
	switch name {
	case ModuleName:
		l.Name = f
	case ModuleEvent:
		l.Event = f
	case ModuleCollege:
		l.College = f
	case ModuleDate:
		l.Date = f
	}
}

// IsTextModule 报告 name 是否为四个文字模块之一。
func IsTextModule(name Module) bool {
	for _, n := range TextModules {
		if n == name {
			return true
		}
	}
	return false
}

// IsFieldEnabled 当且仅当模块处于 set 状态时返回 true。
func IsFieldEnabled(l Layout, name Module) bool {
	switch name {
	case ModuleQR:
		return l.QR.IsSet()
	case ModuleImages:
		return l.Images.IsSet()
	default:
		if IsTextModule(name) {
			return l.Text(name).IsSet()
		}
	}
	return false
}

// Clone 返回深拷贝，图片切片不与原布局共享。
func (l Layout) Clone() Layout {
	out := l
	if imgs, ok := l.Images.Get(); ok {
		cp := make([]ImageField, len(imgs))
		copy(cp, imgs)
		out.Images = Some(cp)
	}
	return out
}

// Merge 逐模块合并多层布局：后面的层覆盖前面的层，absent 向前回退，null 保留。
func Merge(layers ...Layout) Layout {
	var out Layout
	for _, l := range layers {
		out.Name = l.Name.Or(out.Name)
		out.Event = l.Event.Or(out.Event)
		out.College = l.College.Or(out.College)
		out.Date = l.Date.Or(out.Date)
		out.QR = l.QR.Or(out.QR)
		out.Images = l.Images.Or(out.Images)
	}
	return out.Clone()
}

// Equal 按规范化 JSON 比较两个布局。
func Equal(a, b Layout) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Parse 解析布局 JSON，并对缺失的文字属性填充渲染默认值。
func Parse(data []byte) (Layout, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Layout{}, fmt.Errorf("%w: expected a JSON object", ErrInvalidLayout)
	}
	var l Layout
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return l, nil
}

type wireText struct {
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	FontSize   *float64 `json:"fontSize"`
	FontFamily *string  `json:"fontFamily"`
	Color      *string  `json:"color"`
	Align      *string  `json:"align"`
}

type wireLayout struct {
	Name    Field[wireText]     `json:"name"`
	Event   Field[wireText]     `json:"event"`
	College Field[wireText]     `json:"college"`
	Date    Field[wireText]     `json:"date"`
	QR      Field[QRField]      `json:"qr"`
	Images  Field[[]ImageField] `json:"images"`
}

func (l *Layout) UnmarshalJSON(data []byte) error {
	var w wireLayout
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*l = Layout{
		Name:    mapField(w.Name, textResolver(ModuleName)),
		Event:   mapField(w.Event, textResolver(ModuleEvent)),
		College: mapField(w.College, textResolver(ModuleCollege)),
		Date:    mapField(w.Date, textResolver(ModuleDate)),
		QR:      w.QR,
		Images:  w.Images,
	}
	return nil
}

func textResolver(name Module) func(wireText) TextField {
	return func(w wireText) TextField {
		t := TextFallback(name)
		if w.X != nil {
			t.X = *w.X
		}
		if w.Y != nil {
			t.Y = *w.Y
		}
		if w.FontSize != nil {
			t.FontSize = *w.FontSize
		}
		if w.FontFamily != nil {
			t.FontFamily = NormalizeFontFamily(*w.FontFamily)
		}
		if w.Color != nil && *w.Color != "" {
			t.Color = *w.Color
		}
		// 只认 left，其余取值（含 right 等未知值）一律按居中存储。
		if w.Align != nil {
			if Align(*w.Align) == AlignLeft {
				t.Align = AlignLeft
			} else {
				t.Align = AlignCenter
			}
		}
		return t
	}
}

// NormalizeFontFamily 把旧版 PDF 标准字体名映射到当前字体族，未知值原样保留。
func NormalizeFontFamily(s string) FontFamily {
	switch s {
	case "Sans", "Helvetica", "Helvetica-Bold", "Arial":
		return FontSans
	case "Serif", "Times-Roman", "Times", "Times-Bold":
		return FontSerif
	case "Mono", "Courier", "Courier-Bold":
		return FontMono
	}
	return FontFamily(s)
}
