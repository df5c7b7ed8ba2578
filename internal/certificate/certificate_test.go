package certificate

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"reflect"
	"strings"
	"testing"

	"eventcert/internal/layout"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func text(x, y, size float64, align layout.Align) layout.Field[layout.TextField] {
	return layout.Some(layout.TextField{X: x, Y: y, FontSize: size, FontFamily: layout.FontSans, Color: "#102030", Align: align})
}

func sampleInput(t *testing.T) Input {
	t.Helper()
	return Input{
		Template: solidPNG(t, 40, 30, color.White),
		Layout: layout.Layout{
			Name:    text(0, 300, 30, layout.AlignCenter),
			Event:   text(0, 400, 20, layout.AlignCenter),
			College: text(120, 100, 15, layout.AlignLeft),
			Date:    text(0, 500, 15, layout.AlignCenter),
			QR:      layout.Some(layout.QRField{X: 700, Y: 450, Width: 80}),
			Images: layout.Some([]layout.ImageField{
				{ID: "img_a", X: 10, Y: 10, Width: 100, Src: layout.NewImageData(solidPNG(t, 20, 10, color.Black))},
				{ID: "img_b", X: 20, Y: 20, Width: 50, Src: layout.NewImageData(solidPNG(t, 10, 10, color.Black))},
			}),
		},
		Values: Values{Name: "Ada", EventName: "Hackathon", College: "MIT", Date: "1/2/2025"},
	}
}

func TestComposeOrder(t *testing.T) {
	scene, err := Compose(sampleInput(t), nil)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	var got []string
	for _, op := range scene.Ops {
		got = append(got, op.Kind.String()+":"+op.Ref)
	}
	want := []string{
		"template:template",
		"image:img_a",
		"image:img_b",
		"qr:qr",
		"text:name",
		"text:event",
		"text:college",
		"text:date",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("draw order = %v, want %v", got, want)
	}

	tpl := scene.Ops[0]
	if tpl.Width != PageWidth || tpl.Height != PageHeight {
		t.Fatalf("template must be stretched to the page, got %vx%v", tpl.Width, tpl.Height)
	}
	if img := scene.Ops[1]; img.Height != 50 {
		t.Fatalf("image height should follow aspect ratio, got %v", img.Height)
	}
}

func TestComposeCenteredTextIgnoresX(t *testing.T) {
	a := sampleInput(t)
	b := sampleInput(t)
	b.Layout.Name = text(777, 300, 30, layout.AlignCenter)

	sa, err := Compose(a, nil)
	if err != nil {
		t.Fatalf("compose a: %v", err)
	}
	sb, err := Compose(b, nil)
	if err != nil {
		t.Fatalf("compose b: %v", err)
	}
	ta, tb := textOp(t, sa, "name"), textOp(t, sb, "name")
	if !reflect.DeepEqual(ta, tb) {
		t.Fatalf("centered text differs by x: %+v vs %+v", ta.Text, tb.Text)
	}
	if ta.Text.BoxX != 0 || ta.Text.BoxWidth != PageWidth {
		t.Fatalf("centered text box must span the page, got %+v", ta.Text)
	}

	college := textOp(t, sa, "college")
	if college.Text.BoxX != 120 || college.Text.BoxWidth != PageWidth-120 {
		t.Fatalf("left text box must start at x, got %+v", college.Text)
	}
	if college.Text.Color != (RGB{R: 0x10, G: 0x20, B: 0x30}) {
		t.Fatalf("unexpected color %+v", college.Text.Color)
	}
}

func TestComposeKeepsOutOfRangeSizes(t *testing.T) {
	in := sampleInput(t)
	in.Layout.QR = layout.Some(layout.QRField{X: 1, Y: 1, Width: 5})
	in.Layout.Images = layout.Some([]layout.ImageField{
		{ID: "img_tiny", Width: 5, Src: layout.NewImageData(solidPNG(t, 10, 10, color.Black))},
	})
	in.Layout.Name = text(0, 0, 3, layout.AlignCenter)

	scene, err := Compose(in, nil)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if op := findOp(t, scene, OpQR, "qr"); op.Width != 5 {
		t.Fatalf("qr width clamped to %v", op.Width)
	}
	if op := findOp(t, scene, OpImage, "img_tiny"); op.Width != 5 {
		t.Fatalf("image width clamped to %v", op.Width)
	}
	if op := textOp(t, scene, "name"); op.Text.FontSize != 3 {
		t.Fatalf("font size clamped to %v", op.Text.FontSize)
	}
}

func TestComposeSkipsDisabledAndBrokenElements(t *testing.T) {
	in := sampleInput(t)
	in.Layout.Name = layout.Null[layout.TextField]()
	in.Layout.QR = layout.Null[layout.QRField]()
	in.Layout.Date = layout.Field[layout.TextField]{}
	in.Layout.Images = layout.Some([]layout.ImageField{
		{ID: "img_bad", Width: 50, Src: layout.NewImageData([]byte("definitely not an image"))},
		{ID: "img_ok", Width: 50, Src: layout.NewImageData(solidPNG(t, 5, 5, color.Black))},
	})
	in.Values.College = ""

	scene, err := Compose(in, nil)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	var refs []string
	for _, op := range scene.Ops {
		refs = append(refs, op.Ref)
	}
	want := []string{"template", "img_ok", "event"}
	if !reflect.DeepEqual(refs, want) {
		t.Fatalf("refs = %v, want %v", refs, want)
	}
}

func TestComposeZeroWidthQRIsSkipped(t *testing.T) {
	in := sampleInput(t)
	in.Layout.QR = layout.Some(layout.QRField{X: 1, Y: 1, Width: 0})
	scene, err := Compose(in, nil)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	for _, op := range scene.Ops {
		if op.Kind == OpQR {
			t.Fatalf("zero-width qr must not be drawn")
		}
	}
}

func TestQRPayload(t *testing.T) {
	in := Input{Values: Values{Name: "Ada", EventName: "Hack", College: "MIT"}}
	if got := qrPayload(in); got != "Verified: Ada | Hack | MIT" {
		t.Fatalf("fallback payload = %q", got)
	}
	in.VerificationURL = "https://cert.example/verify/abc"
	if got := qrPayload(in); got != in.VerificationURL {
		t.Fatalf("payload = %q", got)
	}
}

func TestTemplateFailureIsFatal(t *testing.T) {
	in := sampleInput(t)
	in.Template = []byte("<html>not an image</html>")

	renderers := map[string]Renderer{
		"pdf":     NewPDFRenderer(nil),
		"preview": NewPreviewRenderer(0.5, nil),
	}
	for name, r := range renderers {
		if _, err := r.Render(context.Background(), in); !errors.Is(err, ErrTemplateLoad) {
			t.Fatalf("%s: expected ErrTemplateLoad, got %v", name, err)
		}
	}

	in.Template = nil
	if _, err := Compose(in, nil); !errors.Is(err, ErrTemplateLoad) {
		t.Fatalf("empty template: expected ErrTemplateLoad, got %v", err)
	}
}

func TestPDFRender(t *testing.T) {
	for name, tpl := range map[string][]byte{
		"png":  solidPNG(t, 40, 30, color.White),
		"jpeg": solidJPEG(t, 40, 30),
	} {
		in := sampleInput(t)
		in.Template = tpl
		in.Values.Name = "Zoë Ångström"
		in.VerificationURL = "https://cert.example/verify/QUBCOjE="

		out, err := NewPDFRenderer(nil).Render(context.Background(), in)
		if err != nil {
			t.Fatalf("%s: render: %v", name, err)
		}
		if !bytes.HasPrefix(out, []byte("%PDF-")) {
			t.Fatalf("%s: output is not a pdf", name)
		}
	}
}

func TestPreviewLayering(t *testing.T) {
	in := Input{
		Template: solidPNG(t, 10, 10, color.White),
		Layout: layout.Layout{
			Images: layout.Some([]layout.ImageField{
				{ID: "img_red", X: 50, Y: 50, Width: 200, Src: layout.NewImageData(solidPNG(t, 10, 10, color.NRGBA{R: 255, A: 255}))},
			}),
			QR: layout.Some(layout.QRField{X: 100, Y: 100, Width: 100}),
		},
		Values: Values{Name: "Ada", EventName: "Hack", College: "MIT"},
	}
	scene, err := Compose(in, nil)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	img, err := Rasterize(scene, 1, nil)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}

	if c := img.NRGBAAt(60, 60); c.R != 255 || c.G != 0 || c.B != 0 {
		t.Fatalf("expected red image outside the qr, got %+v", c)
	}
	// 二维码的白边压在红色图片之上。
	if c := img.NRGBAAt(100, 150); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Fatalf("expected qr quiet zone above the image, got %+v", c)
	}
}

func TestBuildHTML(t *testing.T) {
	in := sampleInput(t)
	in.Values.Name = "<b>Ada</b>"
	scene, err := Compose(in, nil)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	html, err := BuildHTML(scene)
	if err != nil {
		t.Fatalf("build html: %v", err)
	}
	if strings.Contains(html, "<b>Ada</b>") {
		t.Fatalf("recipient text must be escaped")
	}
	if !strings.Contains(html, "text-align:left") || !strings.Contains(html, "left:120.00pt") {
		t.Fatalf("left aligned college missing from html")
	}
	if strings.Count(html, "<img ") != 4 {
		t.Fatalf("expected template, two images and qr as img layers")
	}
	if strings.Index(html, "Hackathon") < strings.LastIndex(html, "<img ") {
		t.Fatalf("text must be layered after images")
	}
}

func TestParseHexColor(t *testing.T) {
	cases := map[string]RGB{
		"#ffffff": {255, 255, 255},
		"#0a0":    {0, 0xaa, 0},
		"123456":  {0x12, 0x34, 0x56},
	}
	for in, want := range cases {
		got, ok := parseHexColor(in)
		if !ok || got != want {
			t.Fatalf("parseHexColor(%q) = %+v, %v", in, got, ok)
		}
	}
	if _, ok := parseHexColor("red"); ok {
		t.Fatalf("named colors are not supported")
	}
}

func TestFaceFallback(t *testing.T) {
	if faceFor("Comic Sans") != FaceSansBold {
		t.Fatalf("unknown families should fall back to sans")
	}
	if faceFor("Times-Roman") != FaceSerifBold || faceFor(layout.FontMono) != FaceMonoBold {
		t.Fatalf("unexpected face mapping")
	}
}

func textOp(t *testing.T, s *Scene, ref string) Op {
	t.Helper()
	return findOp(t, s, OpText, ref)
}

func findOp(t *testing.T, s *Scene, kind OpKind, ref string) Op {
	t.Helper()
	for _, op := range s.Ops {
		if op.Kind == kind && op.Ref == ref {
			return op
		}
	}
	t.Fatalf("no %s op for %q", kind, ref)
	return Op{}
}
