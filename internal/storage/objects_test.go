package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

type memoryObjects struct {
	objects map[string][]byte
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}}
}

func (m *memoryObjects) PutObject(_ context.Context, name string, data []byte, _ string) error {
	m.objects[name] = append([]byte(nil), data...)
	return nil
}

func (m *memoryObjects) ReadObject(_ context.Context, key string) ([]byte, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey: The specified key does not exist.")
	}
	return b, nil
}

func (m *memoryObjects) DeletePrefix(_ context.Context, prefix string) error {
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestTemplateKeyIsContentAddressed(t *testing.T) {
	a := TemplateKey("42", pngHeader)
	b := TemplateKey("42", append([]byte(nil), pngHeader...))
	if a != b {
		t.Fatalf("same bytes produced different keys: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "templates/42/") || !strings.HasSuffix(a, ".png") {
		t.Fatalf("unexpected key %s", a)
	}
	if c := TemplateKey("42", []byte("\x89PNG\r\n\x1a\n1111")); c == a {
		t.Fatalf("different bytes produced the same key")
	}
}

func TestTemplateStoreSaveLoad(t *testing.T) {
	objects := newMemoryObjects()
	store := NewTemplateStore(objects)
	ctx := context.Background()

	key, err := store.Save(ctx, "42", pngHeader)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, key)
	if err != nil || string(got) != string(pngHeader) {
		t.Fatalf("load: %q %v", got, err)
	}
	if _, err := store.Load(ctx, "templates/42/missing"); !IsNoSuchKey(err) {
		t.Fatalf("expected missing object error, got %v", err)
	}
}

func TestBatchStoreCleanup(t *testing.T) {
	objects := newMemoryObjects()
	store := NewBatchStore(objects)
	ctx := context.Background()

	key, err := store.Put(ctx, "b1", "../../recipients.csv", []byte("Name,Email\n"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if key != "batches/b1/recipients.csv" {
		t.Fatalf("unexpected key %s", key)
	}
	if _, err := store.Put(ctx, "b2", "template.png", pngHeader); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := store.Cleanup(ctx, "b1"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, ok := objects.objects[key]; ok {
		t.Fatalf("batch file survived cleanup")
	}
	if _, ok := objects.objects["batches/b2/template.png"]; !ok {
		t.Fatalf("cleanup removed another batch")
	}
}

func TestIsNoSuchKey(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("read: %w", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}), true},
		{minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404}, false},
		{minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, false},
		{errors.New("proxy: The specified key does not exist."), true},
		{errors.New("connection refused"), false},
	}
	for _, c := range cases {
		if got := IsNoSuchKey(c.err); got != c.want {
			t.Fatalf("IsNoSuchKey(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
