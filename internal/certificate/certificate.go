// Package certificate 把证书布局与收件人信息渲染为单页横向 A4 文档。
//
// 渲染分两步：Compose 先把布局解析为有序的绘制指令（Scene），
// 再由具体后端（fpdf 矢量 PDF、Chromium 打印 PDF、位图预览）执行。
// 绘制顺序固定为：模板底图、装饰图片、二维码、文字。
package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eventcert/internal/layout"
)

// 页面尺寸，单位 point，横向 A4。
const (
	PageWidth  = 841.89
	PageHeight = 595.28
)

// ErrTemplateLoad 表示模板底图无法读取或解码，这是唯一会中止渲染的错误。
var ErrTemplateLoad = errors.New("certificate template could not be loaded")

// Values 是填入文字模块的内容。
type Values struct {
	Name      string
	EventName string
	College   string
	Date      string
}

// Input 是一次渲染所需的全部输入。
type Input struct {
	Template []byte
	Layout   layout.Layout
	Values   Values
	// VerificationURL 为空时二维码改为编码一段可读的验证文本。
	VerificationURL string
}

// Renderer 把一次渲染输入转换为文档字节。
type Renderer interface {
	Render(ctx context.Context, in Input) ([]byte, error)
}

// Engine 选择渲染后端。
type Engine string

const (
	EnginePDF      Engine = "pdf"
	EngineChromium Engine = "chromium"
)

// NewRenderer 根据配置的引擎名构造渲染器。
func NewRenderer(engine Engine, logger *slog.Logger) (Renderer, error) {
	switch engine {
	case "", EnginePDF:
		return NewPDFRenderer(logger), nil
	case EngineChromium:
		return NewChromiumRenderer(logger), nil
	default:
		return nil, fmt.Errorf("unknown certificate engine %q", engine)
	}
}

func (v Values) text(name layout.Module) string {
	switch name {
	case layout.ModuleName:
		return v.Name
	case layout.ModuleEvent:
		return v.EventName
	case layout.ModuleCollege:
		return v.College
	case layout.ModuleDate:
		return v.Date
	}
	return ""
}

func qrPayload(in Input) string {
	if in.VerificationURL != "" {
		return in.VerificationURL
	}
	return fmt.Sprintf("Verified: %s | %s | %s", in.Values.Name, in.Values.EventName, in.Values.College)
}
