package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"eventcert/internal/api/middleware"
	"eventcert/internal/certificate"
	"eventcert/internal/editor"
	"eventcert/internal/event"
	"eventcert/internal/layout"
	"eventcert/internal/scan"
	"eventcert/internal/verification"
)

// LayoutHandler 负责证书布局的保存、可视化编辑回放与预览。
type LayoutHandler struct {
	events        EventStore
	templates     TemplateStore
	preview       certificate.Renderer
	document      certificate.Renderer
	scanner       scan.Scanner
	verifyBaseURL string
	dateFormat    string
	logger        *slog.Logger
}

// LayoutDeps 汇总 LayoutHandler 的依赖。
type LayoutDeps struct {
	Events        EventStore
	Templates     TemplateStore
	Preview       certificate.Renderer
	Document      certificate.Renderer
	Scanner       scan.Scanner
	VerifyBaseURL string
	DateFormat    string
	Logger        *slog.Logger
}

// NewLayoutHandler 构造布局处理器。
func NewLayoutHandler(d LayoutDeps) *LayoutHandler {
	if d.Scanner == nil {
		d.Scanner = scan.Nop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.DateFormat == "" {
		d.DateFormat = "1/2/2006"
	}
	return &LayoutHandler{
		events:        d.Events,
		templates:     d.Templates,
		preview:       d.Preview,
		document:      d.Document,
		scanner:       d.Scanner,
		verifyBaseURL: d.VerifyBaseURL,
		dateFormat:    d.DateFormat,
		logger:        d.Logger,
	}
}

// SaveLayout 用请求体整体替换活动的证书布局。
func (h *LayoutHandler) SaveLayout(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	l, err := layout.Parse(raw)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := layout.Validate(l); err != nil {
		BadRequest(c, err.Error())
		return
	}
	updated, err := h.events.Update(c.Request.Context(), ev.ID, event.Changes{CertificateLayout: &l})
	if err != nil {
		middleware.LoggerFromContext(c).Error("save layout failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, updated.EffectiveLayout())
}

type editRequest struct {
	Viewport editor.Viewport `json:"viewport"`
	Ops      []editor.Op     `json:"ops" binding:"required,dive"`
}

type editResponse struct {
	Layout   layout.Layout `json:"layout"`
	Uploaded []string      `json:"uploaded"`
}

// ApplyEdits 在已保存的布局上回放一组编辑手势并保存结果。
func (h *LayoutHandler) ApplyEdits(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	for _, op := range req.Ops {
		if op.Type != editor.OpUploadImage {
			continue
		}
		if !scanUpload(c, op.Image, h.scanner) {
			return
		}
	}

	logger := middleware.LoggerFromContext(c).With(slog.String("event_id", ev.ID))
	session := editor.NewSession(ev.EffectiveLayout(), req.Viewport, func(ctx context.Context, l layout.Layout) error {
		_, err := h.events.Update(ctx, ev.ID, event.Changes{CertificateLayout: &l})
		return err
	})
	uploaded, err := session.Apply(req.Ops)
	if err != nil {
		if errors.Is(err, editor.ErrImageTooLarge) {
			PayloadTooLarge(c, err.Error())
			return
		}
		BadRequest(c, err.Error())
		return
	}
	result := session.Layout()
	if err := layout.Validate(result); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := session.Save(c.Request.Context()); err != nil {
		logger.Error("save edited layout failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if uploaded == nil {
		uploaded = []string{}
	}
	c.JSON(http.StatusOK, editResponse{Layout: result, Uploaded: uploaded})
}

// Preview 以 PNG 返回当前布局的预览，使用示例姓名。未上传模板时以白底代替。
func (h *LayoutHandler) Preview(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	in, ok := h.sampleInput(c, ev)
	if !ok {
		return
	}
	out, err := h.preview.Render(c.Request.Context(), in)
	if err != nil {
		middleware.LoggerFromContext(c).Error("render preview failed", slog.String("event_id", ev.ID), slog.Any("error", err))
		Internal(c, "failed to render preview")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", out)
}

// SampleCertificate 以 PDF 返回一张示例证书，供组织者在群发前核对。
func (h *LayoutHandler) SampleCertificate(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	in, ok := h.sampleInput(c, ev)
	if !ok {
		return
	}
	out, err := h.document.Render(c.Request.Context(), in)
	if err != nil {
		middleware.LoggerFromContext(c).Error("render sample failed", slog.String("event_id", ev.ID), slog.Any("error", err))
		Internal(c, "failed to render certificate")
		return
	}
	c.Header("Content-Disposition", `inline; filename="Certificate.pdf"`)
	c.Data(http.StatusOK, "application/pdf", out)
}

func (h *LayoutHandler) sampleInput(c *gin.Context, ev *event.Event) (certificate.Input, bool) {
	tpl, err := h.templateOrBlank(c.Request.Context(), ev)
	if err != nil {
		middleware.LoggerFromContext(c).Error("load template failed", slog.String("event_id", ev.ID), slog.Any("error", err))
		Internal(c, "failed to load template")
		return certificate.Input{}, false
	}
	name := c.DefaultQuery("name", "Participant")
	return certificate.Input{
		Template: tpl,
		Layout:   ev.EffectiveLayout(),
		Values: certificate.Values{
			Name:      name,
			EventName: ev.Title,
			College:   ev.CollegeName,
			Date:      time.Now().Format(h.dateFormat),
		},
		VerificationURL: verification.URL(h.verifyBaseURL, verification.Encode("participant@example.com", ev.ID)),
	}, true
}

func (h *LayoutHandler) templateOrBlank(ctx context.Context, ev *event.Event) ([]byte, error) {
	if ev.CertificateTemplate != "" {
		return h.templates.Load(ctx, ev.CertificateTemplate)
	}
	return blankTemplate()
}

// blankTemplate 生成与页面同比例的白底 PNG。
func blankTemplate() ([]byte, error) {
	img := imaging.New(int(math.Round(certificate.PageWidth)), int(math.Round(certificate.PageHeight)), color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode blank template: %w", err)
	}
	return buf.Bytes(), nil
}
