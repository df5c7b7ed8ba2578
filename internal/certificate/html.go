package certificate

import (
	"bytes"
	"fmt"
	"html/template"

	"eventcert/internal/layout"
)

var faceCSS = map[Face]string{
	FaceSansBold:  `Helvetica, Arial, "Liberation Sans", sans-serif`,
	FaceSerifBold: `"Times New Roman", Times, "Liberation Serif", serif`,
	FaceMonoBold:  `"Courier New", Courier, "Liberation Mono", monospace`,
}

var pageTemplate = template.Must(template.New("certificate").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
@page { size: {{.Width}}pt {{.Height}}pt; margin: 0; }
html, body { margin: 0; padding: 0; }
.page { position: relative; width: {{.Width}}pt; height: {{.Height}}pt; overflow: hidden; }
.layer { position: absolute; display: block; }
.text { position: absolute; margin: 0; font-weight: bold; line-height: 1.15; white-space: pre-wrap; overflow-wrap: break-word; }
</style>
</head>
<body>
<div class="page">
{{- range .Layers}}
{{- if .Src}}
<img class="layer" src="{{.Src}}" style="{{.Style}}" alt="">
{{- else}}
<div class="text" style="{{.Style}}">{{.Text}}</div>
{{- end}}
{{- end}}
</div>
</body>
</html>
`))

type htmlLayer struct {
	Src   template.URL
	Style template.CSS
	Text  string
}

type htmlPage struct {
	Width  template.CSS
	Height template.CSS
	Layers []htmlLayer
}

// BuildHTML 把绘制指令转换为一张绝对定位的 HTML 页面，单位为 point。
func BuildHTML(scene *Scene) (string, error) {
	page := htmlPage{
		Width:  template.CSS(pt(PageWidth)),
		Height: template.CSS(pt(PageHeight)),
	}
	for _, op := range scene.Ops {
		switch op.Kind {
		case OpTemplate, OpImage, OpQR:
			page.Layers = append(page.Layers, htmlLayer{
				Src: template.URL(op.Asset.dataURI()),
				Style: template.CSS(fmt.Sprintf("left:%spt;top:%spt;width:%spt;height:%spt;",
					pt(op.X), pt(op.Y), pt(op.Width), pt(op.Height))),
			})
		case OpText:
			t := op.Text
			align := "center"
			if t.Align == layout.AlignLeft {
				align = "left"
			}
			page.Layers = append(page.Layers, htmlLayer{
				Text: t.Text,
				Style: template.CSS(fmt.Sprintf(
					"left:%spt;top:%spt;width:%spt;font-size:%spt;font-family:%s;color:#%02x%02x%02x;text-align:%s;",
					pt(t.BoxX), pt(op.Y), pt(t.BoxWidth), pt(t.FontSize), faceCSS[t.Face],
					t.Color.R, t.Color.G, t.Color.B, align,
				)),
			})
		}
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("execute certificate template: %w", err)
	}
	return buf.String(), nil
}

func pt(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
