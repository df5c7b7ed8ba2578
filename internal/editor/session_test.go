package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"eventcert/internal/layout"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDragCenteredTextOnlyMovesY(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{Scale: 0.5, OffsetX: 10, OffsetY: 20}, nil)

	s.BeginDrag("name", 10, 20+150)
	s.Drag("name", 400, 20+200)
	s.EndGesture()

	name, _ := s.Layout().Name.Get()
	if name.X != 0 {
		t.Fatalf("centered text x changed to %v", name.X)
	}
	if name.Y != 400 {
		t.Fatalf("expected y 400, got %v", name.Y)
	}
}

func TestDragQRUsesGrabOffset(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{Scale: 1}, nil)

	s.BeginDrag("qr", 710, 460)
	s.Drag("qr", 510, 260)

	qr, _ := s.Layout().QR.Get()
	if qr.X != 500 || qr.Y != 250 {
		t.Fatalf("unexpected qr position %+v", qr)
	}
}

func TestResizeClampsToMinimum(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{Scale: 1}, nil)
	id, err := s.UploadImage(bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	s.BeginResize("qr")
	s.Resize("qr", -1000)
	s.EndGesture()
	qr, _ := s.Layout().QR.Get()
	if qr.Width != MinWidth {
		t.Fatalf("qr width = %v, want %v", qr.Width, MinWidth)
	}

	s.BeginResize(id)
	s.Resize(id, -1000)
	s.EndGesture()
	imgs, _ := s.Layout().Images.Get()
	if imgs[0].Width != MinWidth {
		t.Fatalf("image width = %v, want %v", imgs[0].Width, MinWidth)
	}

	s.BeginResize("event")
	s.Resize("event", -5000)
	s.EndGesture()
	event, _ := s.Layout().Event.Get()
	if event.FontSize != MinFontSize {
		t.Fatalf("font size = %v, want %v", event.FontSize, MinFontSize)
	}
}

func TestResizeTextUsesDivisor(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{Scale: 1}, nil)
	s.BeginResize("name")
	s.Resize("name", 10)
	s.Resize("name", 55)
	s.EndGesture()

	name, _ := s.Layout().Name.Get()
	if name.FontSize != 36 {
		t.Fatalf("font size = %v, want 36", name.FontSize)
	}
}

func TestToggleAlign(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{}, nil)

	s.ToggleAlign(layout.ModuleCollege)
	college, _ := s.Layout().College.Get()
	if college.Align != layout.AlignLeft || college.X != 300 {
		t.Fatalf("expected left aligned at 300, got %+v", college)
	}

	s.ToggleAlign(layout.ModuleCollege)
	college, _ = s.Layout().College.Get()
	if college.Align != layout.AlignCenter || college.X != 0 {
		t.Fatalf("expected centered at 0, got %+v", college)
	}
}

func TestEnableRestoresDefaultNotPrevious(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{Scale: 1}, nil)
	s.Drag("date", 0, 10)
	s.DisableModule(layout.ModuleDate)
	if layout.IsFieldEnabled(s.Layout(), layout.ModuleDate) {
		t.Fatalf("date still enabled after disable")
	}

	s.EnableModule(layout.ModuleDate)
	date, ok := s.Layout().Date.Get()
	want, _ := layout.Default().Date.Get()
	if !ok || date != want {
		t.Fatalf("expected default date %+v, got %+v", want, date)
	}
}

func TestSessionKeepsStoredNull(t *testing.T) {
	stored := layout.Layout{QR: layout.Null[layout.QRField]()}
	s := NewSession(stored, Viewport{}, nil)
	if layout.IsFieldEnabled(s.Layout(), layout.ModuleQR) {
		t.Fatalf("removed qr was resurrected")
	}
	if !layout.IsFieldEnabled(s.Layout(), layout.ModuleName) {
		t.Fatalf("absent name should come from defaults")
	}
}

func TestUploadAndRemoveImage(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{}, nil)
	ids := []string{"img_a", "img_a", "img_b"}
	s.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := s.UploadImage(bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	second, err := s.UploadImage(bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if first != "img_a" || second != "img_b" {
		t.Fatalf("expected unique ids, got %q %q", first, second)
	}

	imgs, _ := s.Layout().Images.Get()
	if imgs[0].X != 100 || imgs[0].Y != 100 || imgs[0].Width != 150 || imgs[0].Src.MIME != "image/png" {
		t.Fatalf("unexpected new image %+v", imgs[0])
	}

	before := s.Layout()
	s.RemoveImage("img_missing")
	if !layout.Equal(before, s.Layout()) {
		t.Fatalf("removing an unknown id changed the layout")
	}

	s.RemoveImage(first)
	imgs, _ = s.Layout().Images.Get()
	if len(imgs) != 1 || imgs[0].ID != second {
		t.Fatalf("unexpected images after remove: %+v", imgs)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{}, nil)
	if _, err := s.UploadImage(bytes.NewReader([]byte("hello, world"))); !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}
}

func TestUnknownTargetsAreNoOps(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{Scale: 1}, nil)
	before := s.Layout()

	s.BeginDrag("img_nope", 1, 1)
	s.Drag("img_nope", 50, 50)
	s.Resize("img_nope", 50)
	s.ToggleAlign(layout.ModuleQR)
	s.EndGesture()

	if !layout.Equal(before, s.Layout()) {
		t.Fatalf("gestures on unknown targets changed the layout")
	}
}

func TestSaveHandsOffCopy(t *testing.T) {
	var saved layout.Layout
	s := NewSession(layout.Default(), Viewport{}, func(_ context.Context, l layout.Layout) error {
		saved = l
		return nil
	})
	if _, err := s.UploadImage(bytes.NewReader(pngBytes(t))); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := s.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	imgs, _ := saved.Images.Get()
	imgs[0].Width = 1
	current, _ := s.Layout().Images.Get()
	if current[0].Width == 1 {
		t.Fatalf("saved layout shares state with the session")
	}
}

func TestApplyOps(t *testing.T) {
	s := NewSession(layout.Default(), Viewport{Scale: 1}, nil)
	uploaded, err := s.Apply([]Op{
		{Type: OpDisable, Target: "college"},
		{Type: OpToggleAlign, Target: "event"},
		{Type: OpDrag, Target: "event", X: 120, Y: 80},
		{Type: OpUploadImage, Image: pngBytes(t)},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(uploaded) != 1 {
		t.Fatalf("expected one uploaded id, got %v", uploaded)
	}

	l := s.Layout()
	if l.College.IsSet() {
		t.Fatalf("college should be disabled")
	}
	event, _ := l.Event.Get()
	if event.X != 120 || event.Y != 80 || event.Align != layout.AlignLeft {
		t.Fatalf("unexpected event after ops: %+v", event)
	}

	if _, err := s.Apply([]Op{{Type: "spin"}}); err == nil {
		t.Fatalf("expected unknown op type to fail")
	}
}
