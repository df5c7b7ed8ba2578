package certificate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const chromiumPageTimeout = 30 * time.Second

// A4 横向尺寸，单位英寸。
const (
	paperWidthInches  = 11.69
	paperHeightInches = 8.27
)

// ChromiumRenderer 把绘制指令转换为 HTML，再交给无头 Chromium 打印为 PDF。
// 浏览器在首次渲染时启动并在多次渲染间复用，调用 Close 释放。
type ChromiumRenderer struct {
	logger *slog.Logger

	mu      sync.Mutex
	launch  *launcher.Launcher
	browser *rod.Browser
}

// NewChromiumRenderer 创建 Chromium 渲染器，此时不会启动浏览器。
func NewChromiumRenderer(logger *slog.Logger) *ChromiumRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromiumRenderer{logger: logger}
}

// Render 实现 Renderer。
func (r *ChromiumRenderer) Render(ctx context.Context, in Input) ([]byte, error) {
	scene, err := Compose(in, r.logger)
	if err != nil {
		return nil, err
	}
	html, err := BuildHTML(scene)
	if err != nil {
		return nil, err
	}

	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Timeout(chromiumPageTimeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	width, height := paperWidthInches, paperHeightInches
	zero := 0.0
	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		PaperWidth:        &width,
		PaperHeight:       &height,
		MarginTop:         &zero,
		MarginBottom:      &zero,
		MarginLeft:        &zero,
		MarginRight:       &zero,
	})
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

func (r *ChromiumRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	launch := launcher.New().
		Headless(true).
		NoSandbox(true)
	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	r.logger.Info("chromium renderer started")
	r.launch = launch
	r.browser = browser
	return browser, nil
}

// Close 关闭共享的浏览器进程。
func (r *ChromiumRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launch.Cleanup()
	r.browser = nil
	r.launch = nil
	return err
}
