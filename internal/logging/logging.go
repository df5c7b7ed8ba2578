// Package logging 根据配置构建进程级的 slog.Logger。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"eventcert/internal/config"
)

// ParseLevel 把配置中的级别字符串转换为 slog.Level，未知值按 info 处理。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New 构建 logger。配置了 log.file 时同时写入按时间轮转的文件。
// 返回的 io.Closer 用于在进程退出时关闭日志文件。
func New(cfg config.LogConfig, service string) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if path := strings.TrimSpace(cfg.File); path != "" {
		rl, err := rotatelogs.New(
			path+".%Y%m%d",
			rotatelogs.WithLinkName(path),
			rotatelogs.WithRotationTime(cfg.RotationTime),
			rotatelogs.WithMaxAge(cfg.MaxAge),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("open rotating log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, rl)
		closer = rl
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler).With(slog.String("service", service)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
