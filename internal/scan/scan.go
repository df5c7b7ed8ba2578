// Package scan 在保存上传文件前调用 clamd 做病毒扫描。
package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dutchcoders/go-clamd"
)

// ErrInfected 表示 clamd 判定文件含有恶意内容。
var ErrInfected = errors.New("malicious file detected")

// Scanner 扫描一段上传内容。
type Scanner interface {
	Scan(ctx context.Context, data []byte) error
}

// New 返回 clamd 扫描器；地址为空时返回不做任何检查的扫描器。
func New(addr string) Scanner {
	if strings.TrimSpace(addr) == "" {
		return Nop{}
	}
	return &Clamd{client: clamd.NewClamd(addr)}
}

// Nop 接受一切内容。
type Nop struct{}

func (Nop) Scan(context.Context, []byte) error { return nil }

// Clamd 通过 INSTREAM 命令把内容交给 clamd 扫描。
type Clamd struct {
	client *clamd.Clamd
}

// Scan 实现 Scanner。
func (c *Clamd) Scan(ctx context.Context, data []byte) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := c.client.ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-results:
			if !ok {
				return nil
			}
			switch result.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				return fmt.Errorf("%w: %s", ErrInfected, result.Description)
			default:
				return fmt.Errorf("clamd returned %s: %s", result.Status, result.Description)
			}
		}
	}
}
