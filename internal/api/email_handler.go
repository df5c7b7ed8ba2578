package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"eventcert/internal/api/middleware"
	"eventcert/internal/issuance"
	"eventcert/internal/scan"
	"eventcert/internal/tasks"
)

// 发送模式。
const (
	DeliverySync   = "sync"
	DeliveryQueued = "queued"
)

// EmailHandler 处理批量发送请求。
type EmailHandler struct {
	events      EventStore
	sender      BatchSender
	stager      BatchStager
	enqueuer    TaskEnqueuer
	scanner     scan.Scanner
	maxUpload   int64
	sendTimeout time.Duration
	defaultMode string
}

// EmailDeps 汇总 EmailHandler 的依赖。Stager 与 Enqueuer 为空时不支持排队模式。
type EmailDeps struct {
	Events      EventStore
	Sender      BatchSender
	Stager      BatchStager
	Enqueuer    TaskEnqueuer
	Scanner     scan.Scanner
	MaxUpload   int64
	SendTimeout time.Duration
	DefaultMode string
}

// NewEmailHandler 构造批量发送处理器。
func NewEmailHandler(d EmailDeps) *EmailHandler {
	if d.Scanner == nil {
		d.Scanner = scan.Nop{}
	}
	if d.DefaultMode == "" {
		d.DefaultMode = DeliverySync
	}
	return &EmailHandler{
		events:      d.Events,
		sender:      d.Sender,
		stager:      d.Stager,
		enqueuer:    d.Enqueuer,
		scanner:     d.Scanner,
		maxUpload:   d.MaxUpload,
		sendTimeout: d.SendTimeout,
		defaultMode: d.DefaultMode,
	}
}

type emailForm struct {
	EmailType         string `form:"emailType" binding:"required,oneof=certificate update"`
	RecipientSource   string `form:"recipientSource" binding:"required,oneof=live upload"`
	Subject           string `form:"subject" binding:"max=998"`
	Message           string `form:"message"`
	CollegeName       string `form:"collegeName" binding:"max=255"`
	CertificateLayout string `form:"certificateLayout"`
	SelectedEmails    string `form:"selectedEmails"`
	DeliveryMode      string `form:"deliveryMode" binding:"omitempty,oneof=sync queued"`
}

// SendEmails 向活动的报名者或上传名单批量发送邮件。
// 同步模式下请求在整批完成后返回；排队模式立即返回 202，结果通过 WebSocket 推送。
func (h *EmailHandler) SendEmails(c *gin.Context) {
	ev, organizerID, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	var form emailForm
	if err := c.ShouldBind(&form); err != nil {
		BadRequest(c, err.Error())
		return
	}
	logger := middleware.LoggerFromContext(c).With(
		slog.String("event_id", ev.ID),
		slog.String("email_type", form.EmailType),
		slog.String("recipient_source", form.RecipientSource),
	)

	template, ok := readFormFile(c, "certTemplate", false, h.maxUpload, h.scanner)
	if !ok {
		return
	}
	if len(template) == 0 {
		if template, ok = readFormFile(c, "certificateTemplate", false, h.maxUpload, h.scanner); !ok {
			return
		}
	}
	recipientFile, ok := readFormFile(c, "recipientFile", false, h.maxUpload, h.scanner)
	if !ok {
		return
	}

	req := issuance.Request{
		EventID:         ev.ID,
		EmailType:       issuance.EmailType(form.EmailType),
		RecipientSource: issuance.RecipientSource(form.RecipientSource),
		Subject:         form.Subject,
		Message:         form.Message,
		CollegeName:     form.CollegeName,
		LayoutOverride:  form.CertificateLayout,
		SelectedEmails:  parseSelectedEmails(form.SelectedEmails, logger),
		Template:        template,
		RecipientFile:   recipientFile,
		AccessToken:     c.GetHeader(googleTokenHeader),
	}

	mode := form.DeliveryMode
	if mode == "" {
		mode = h.defaultMode
	}
	if mode == DeliveryQueued {
		h.enqueue(c, req, organizerID, logger)
		return
	}

	// 批次一旦开始就不随客户端断开而中止。
	ctx := context.WithoutCancel(c.Request.Context())
	if h.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sendTimeout)
		defer cancel()
	}
	result, err := h.sender.Send(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, issuance.ErrEventNotFound):
			NotFound(c, "event not found")
		case errors.Is(err, issuance.ErrUnreadableUpload):
			BadRequest(c, "unreadable recipient file")
		case errors.Is(err, issuance.ErrRegistrationFetch):
			logger.Warn("batch aborted", slog.Any("error", err))
			BadGateway(c, "failed to fetch registrations")
		default:
			logger.Error("batch failed", slog.Any("error", err))
			Internal(c, "failed to send emails")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": result.Message(), "sent": result.Sent})
}

func (h *EmailHandler) enqueue(c *gin.Context, req issuance.Request, organizerID uint, logger *slog.Logger) {
	if h.stager == nil || h.enqueuer == nil {
		BadRequest(c, "queued delivery is not available")
		return
	}
	ctx := c.Request.Context()
	batchID := uuid.NewString()
	payload := tasks.IssuanceBatchPayload{
		BatchID:         batchID,
		EventID:         req.EventID,
		OwnerID:         organizerID,
		CorrelationID:   middleware.GetCorrelationID(c),
		EmailType:       string(req.EmailType),
		RecipientSource: string(req.RecipientSource),
		Subject:         req.Subject,
		Message:         req.Message,
		CollegeName:     req.CollegeName,
		LayoutOverride:  req.LayoutOverride,
		SelectedEmails:  req.SelectedEmails,
		AccessToken:     req.AccessToken,
	}

	var err error
	if len(req.Template) > 0 {
		if payload.TemplateKey, err = h.stager.Put(ctx, batchID, "template", req.Template); err != nil {
			logger.Error("stage template failed", slog.Any("error", err))
			Internal(c, "failed to queue emails")
			return
		}
	}
	if len(req.RecipientFile) > 0 {
		if payload.RecipientFileKey, err = h.stager.Put(ctx, batchID, "recipients", req.RecipientFile); err != nil {
			logger.Error("stage recipient file failed", slog.Any("error", err))
			Internal(c, "failed to queue emails")
			return
		}
	}

	task, err := tasks.NewIssuanceBatchTask(payload)
	if err != nil {
		logger.Error("build batch task failed", slog.Any("error", err))
		Internal(c, "failed to queue emails")
		return
	}
	info, err := h.enqueuer.EnqueueContext(ctx, task)
	if err != nil {
		logger.Error("enqueue batch failed", slog.Any("error", err))
		Internal(c, "failed to queue emails")
		return
	}
	logger.Info("batch queued", slog.String("batch_id", batchID), slog.String("task_id", info.ID))
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Emails queued.",
		"taskId":  info.ID,
		"batchId": batchID,
	})
}

// parseSelectedEmails 解析 JSON 数组形式的收件人筛选。格式错误时忽略筛选，向全部收件人发送。
func parseSelectedEmails(raw string, logger *slog.Logger) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var emails []string
	if err := json.Unmarshal([]byte(raw), &emails); err != nil {
		logger.Warn("ignoring malformed selectedEmails", slog.Any("error", err))
		return nil
	}
	return emails
}
