package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// ObjectStore 是模板与批次文件所需的最小对象存储接口，由 Client 实现。
type ObjectStore interface {
	PutObject(ctx context.Context, objectName string, data []byte, contentType string) error
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// TemplateStore 按内容寻址保存证书模板：同一活动上传相同的图片总是得到相同的 key，
// 因此比较 key 即可判断模板是否变化，且旧 key 指向的对象不会被覆盖。
type TemplateStore struct {
	objects ObjectStore
}

func NewTemplateStore(objects ObjectStore) *TemplateStore {
	return &TemplateStore{objects: objects}
}

// TemplateKey 返回模板图片的对象 key：templates/{eventID}/{sha256}{ext}。
func TemplateKey(eventID string, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("templates/%s/%x%s", eventID, sum, extensionFor(http.DetectContentType(data)))
}

// Save 写入模板并返回其 key。
func (s *TemplateStore) Save(ctx context.Context, eventID string, data []byte) (string, error) {
	key := TemplateKey(eventID, data)
	if err := s.objects.PutObject(ctx, key, data, http.DetectContentType(data)); err != nil {
		return "", fmt.Errorf("save template: %w", err)
	}
	return key, nil
}

// Load 读取模板。
func (s *TemplateStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.objects.ReadObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	return data, nil
}

// BatchStore 暂存排队发送批次的上传文件，批次结束后整体删除。
type BatchStore struct {
	objects ObjectStore
}

func NewBatchStore(objects ObjectStore) *BatchStore {
	return &BatchStore{objects: objects}
}

func batchPrefix(batchID string) string {
	return "batches/" + batchID + "/"
}

// Put 保存批次中的一个文件并返回对象 key。
func (s *BatchStore) Put(ctx context.Context, batchID, name string, data []byte) (string, error) {
	key := batchPrefix(batchID) + path.Base(strings.TrimSpace(name))
	if err := s.objects.PutObject(ctx, key, data, http.DetectContentType(data)); err != nil {
		return "", fmt.Errorf("stage batch file: %w", err)
	}
	return key, nil
}

// Load 读取批次文件。
func (s *BatchStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.objects.ReadObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load batch file: %w", err)
	}
	return data, nil
}

// Cleanup 删除批次的全部文件。
func (s *BatchStore) Cleanup(ctx context.Context, batchID string) error {
	return s.objects.DeletePrefix(ctx, batchPrefix(batchID))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}
