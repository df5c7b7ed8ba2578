package layout

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseDistinguishesNullFromAbsent(t *testing.T) {
	l, err := Parse([]byte(`{"name":{"x":0,"y":10,"fontSize":12,"fontFamily":"Sans","color":"#111111","align":"left"},"date":null}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !l.Name.IsSet() {
		t.Fatalf("expected name to be set")
	}
	if !l.Date.IsNull() {
		t.Fatalf("expected date to be null")
	}
	if !l.QR.IsAbsent() || !l.Event.IsAbsent() {
		t.Fatalf("expected qr and event to be absent")
	}
	if IsFieldEnabled(l, ModuleDate) || IsFieldEnabled(l, ModuleQR) {
		t.Fatalf("null and absent modules must not be enabled")
	}
}

func TestMarshalKeepsNullAndOmitsAbsent(t *testing.T) {
	l := Layout{Name: Some(TextFallback(ModuleName)), Date: Null[TextField]()}
	b, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"date":null`) {
		t.Fatalf("expected explicit null date, got %s", s)
	}
	if strings.Contains(s, `"qr"`) || strings.Contains(s, `"event"`) {
		t.Fatalf("absent modules must be omitted, got %s", s)
	}

	back, err := Parse(b)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !Equal(l, back) {
		t.Fatalf("round trip changed layout: %s", s)
	}
}

func TestMergePreservesExplicitNull(t *testing.T) {
	stored := Default()
	update, err := Parse([]byte(`{"date":null}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	merged := Merge(stored, update)
	if !merged.Date.IsNull() {
		t.Fatalf("expected date to stay removed after merge")
	}
	if !merged.Name.IsSet() || !merged.QR.IsSet() {
		t.Fatalf("untouched modules must survive merge")
	}

	// 之后的部分更新不应把已移除的模块恢复为默认值。
	next := Merge(Default(), merged, Layout{})
	if !next.Date.IsNull() {
		t.Fatalf("absent update resurrected a removed module")
	}
}

func TestParseFillsMissingTextAttributes(t *testing.T) {
	l, err := Parse([]byte(`{"college":{"y":42},"event":{"fontFamily":"Times-Roman"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	college, _ := l.College.Get()
	if college.Y != 42 || college.X != 420 || college.FontSize != 15 || college.Align != AlignCenter || college.Color != "#000000" {
		t.Fatalf("unexpected college fallback: %+v", college)
	}
	event, _ := l.Event.Get()
	if event.FontFamily != FontSerif || event.FontSize != 20 || event.Y != 400 {
		t.Fatalf("unexpected event fallback: %+v", event)
	}
}

func TestParseNormalizesUnknownAlign(t *testing.T) {
	l, err := Parse([]byte(`{"name":{"align":"right"},"event":{"align":"left"},"date":{"align":""}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	name, _ := l.Name.Get()
	if name.Align != AlignCenter || !name.Centered() {
		t.Fatalf("align right stored as %q, want center", name.Align)
	}
	date, _ := l.Date.Get()
	if date.Align != AlignCenter {
		t.Fatalf("empty align stored as %q, want center", date.Align)
	}
	event, _ := l.Event.Get()
	if event.Align != AlignLeft || event.Centered() {
		t.Fatalf("align left stored as %q", event.Align)
	}
	if err := Validate(l); err != nil {
		t.Fatalf("normalized layout should validate: %v", err)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "null", "[]", "{not json", `{"qr":"wide"}`} {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrInvalidLayout) {
			t.Fatalf("Parse(%q) error = %v, want ErrInvalidLayout", in, err)
		}
	}
}

func TestImageSourceRoundTrip(t *testing.T) {
	in := `{"images":[{"id":"img_1","x":1,"y":2,"width":30,"src":"data:image/png;base64,iVBORw0KGgo="},{"id":"img_2","x":0,"y":0,"width":10,"src":"https://example.com/a.png"}]}`
	l, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	imgs, ok := l.Images.Get()
	if !ok || len(imgs) != 2 {
		t.Fatalf("expected two images, got %v", imgs)
	}
	if imgs[0].Src.MIME != "image/png" || len(imgs[0].Src.Bytes) != 8 {
		t.Fatalf("unexpected decoded image: %+v", imgs[0].Src)
	}
	if !imgs[1].Src.Empty() {
		t.Fatalf("non data URI source must not decode")
	}
	b, _ := json.Marshal(l)
	if !strings.Contains(string(b), "https://example.com/a.png") {
		t.Fatalf("raw source must be preserved, got %s", b)
	}
}

func TestCloneDoesNotShareImages(t *testing.T) {
	l := Default()
	l.Images = Some([]ImageField{{ID: "img_a", Width: 10}})
	cp := l.Clone()
	imgs, _ := cp.Images.Get()
	imgs[0].Width = 99

	orig, _ := l.Images.Get()
	if orig[0].Width != 10 {
		t.Fatalf("clone mutated the original layout")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default layout must be valid: %v", err)
	}

	bad := Default()
	bad.Name = Some(TextField{FontSize: 12, FontFamily: "Comic", Color: "#000000", Align: AlignLeft})
	if err := Validate(bad); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected unknown font family to fail, got %v", err)
	}

	dup := Default()
	dup.Images = Some([]ImageField{{ID: "img_a"}, {ID: "img_a"}})
	if err := Validate(dup); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected duplicate ids to fail, got %v", err)
	}
}
