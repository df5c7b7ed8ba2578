package layout

const (
	defaultColor = "#000000"
	// fallbackX 是旧数据缺少 x 时的水平坐标，约为页面中线。
	fallbackX = 420
)

// Default 返回新证书的初始布局，也是编辑器重新启用模块时的恢复来源。
func Default() Layout {
	text := func(y, size float64) Field[TextField] {
		return Some(TextField{
			X:          0,
			Y:          y,
			FontSize:   size,
			FontFamily: FontSans,
			Color:      defaultColor,
			Align:      AlignCenter,
		})
	}
	return Layout{
		Name:    text(300, 30),
		Event:   text(400, 20),
		Date:    text(500, 15),
		College: text(100, 18),
		QR:      Some(QRField{X: 700, Y: 450, Width: 80}),
		Images:  Some([]ImageField{}),
	}
}

// TextFallback 返回文字模块缺少属性时使用的渲染默认值。
func TextFallback(name Module) TextField {
	t := TextField{
		X:          fallbackX,
		FontFamily: FontSans,
		Color:      defaultColor,
		Align:      AlignCenter,
	}
	switch name {
	case ModuleName:
		t.Y, t.FontSize = 300, 30
	case ModuleEvent:
		t.Y, t.FontSize = 400, 20
	case ModuleCollege:
		t.Y, t.FontSize = 100, 15
	case ModuleDate:
		t.Y, t.FontSize = 500, 15
	}
	return t
}
