package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"eventcert/internal/api/middleware"
	"eventcert/internal/certificate"
	"eventcert/internal/event"
	"eventcert/internal/scan"
)

// TemplateHandler 管理活动的证书底图。
type TemplateHandler struct {
	events     EventStore
	templates  TemplateStore
	signer     URLSigner
	scanner    scan.Scanner
	maxUpload  int64
	presignTTL time.Duration
}

// NewTemplateHandler 构造模板处理器。
func NewTemplateHandler(events EventStore, templates TemplateStore, signer URLSigner, scanner scan.Scanner, maxUpload int64, presignTTL time.Duration) *TemplateHandler {
	if scanner == nil {
		scanner = scan.Nop{}
	}
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &TemplateHandler{
		events:     events,
		templates:  templates,
		signer:     signer,
		scanner:    scanner,
		maxUpload:  maxUpload,
		presignTTL: presignTTL,
	}
}

// UploadTemplate 上传新的证书底图并设为活动的默认模板。
func (h *TemplateHandler) UploadTemplate(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	logger := middleware.LoggerFromContext(c).With(slog.String("event_id", ev.ID))

	data, ok := readFormFile(c, "file", true, h.maxUpload, h.scanner)
	if !ok {
		return
	}
	asset, err := certificate.LoadAsset(data)
	if err != nil {
		BadRequest(c, "unsupported template image")
		return
	}

	key, err := h.templates.Save(c.Request.Context(), ev.ID, data)
	if err != nil {
		logger.Error("save template failed", slog.Any("error", err))
		Internal(c, "failed to store template")
		return
	}
	if key != ev.CertificateTemplate {
		if _, err := h.events.Update(c.Request.Context(), ev.ID, event.Changes{CertificateTemplate: &key}); err != nil {
			logger.Error("update template key failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
	}
	logger.Info("certificate template uploaded", slog.String("key", key), slog.Int("width", asset.Width), slog.Int("height", asset.Height))
	c.JSON(http.StatusOK, gin.H{
		"key":    key,
		"format": asset.Format,
		"width":  asset.Width,
		"height": asset.Height,
	})
}

// GetTemplate 返回当前模板的预签名下载链接。
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	if ev.CertificateTemplate == "" {
		NotFound(c, "no certificate template uploaded")
		return
	}
	url, err := h.signer.GeneratePresignedURL(c.Request.Context(), ev.CertificateTemplate, h.presignTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Error("presign template failed", slog.String("event_id", ev.ID), slog.Any("error", err))
		Internal(c, "failed to generate link")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":       url,
		"expiresIn": int(h.presignTTL.Seconds()),
	})
}
