package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"eventcert/internal/api/middleware"
	"eventcert/internal/event"
	"eventcert/internal/layout"
	"eventcert/internal/recipient"
	"eventcert/internal/scan"
)

// EventHandler 处理活动的创建、更新、报名名单与实时概况。
type EventHandler struct {
	events        EventStore
	registrations RegistrationFetcher
	scanner       scan.Scanner
	maxUpload     int64
	now           func() time.Time
}

// NewEventHandler 构造活动处理器。
func NewEventHandler(events EventStore, registrations RegistrationFetcher, scanner scan.Scanner, maxUpload int64) *EventHandler {
	if scanner == nil {
		scanner = scan.Nop{}
	}
	return &EventHandler{
		events:        events,
		registrations: registrations,
		scanner:       scanner,
		maxUpload:     maxUpload,
		now:           time.Now,
	}
}

type createEventRequest struct {
	Title               string `json:"title" binding:"required,max=255"`
	Description         string `json:"description"`
	RegistrationFormURL string `json:"registrationFormUrl" binding:"omitempty,url"`
	RegistrationType    string `json:"registrationType" binding:"omitempty,oneof=upload google tally"`
	GoogleSheetID       string `json:"googleSheetId" binding:"max=128"`
	TallyEndpoint       string `json:"tallyEndpoint" binding:"omitempty,url"`
	RegistrationEnabled *bool  `json:"registrationEnabled"`
	RegistrationLimit   int    `json:"registrationLimit" binding:"min=0"`
	CollegeName         string `json:"collegeName" binding:"max=255"`
}

// CreateEvent 创建活动，新活动使用默认证书布局。
func (h *EventHandler) CreateEvent(c *gin.Context) {
	organizerID, ok := middleware.OrganizerID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	l := layout.Default()
	ev := &event.Event{
		OwnerID:             organizerID,
		Title:               strings.TrimSpace(req.Title),
		Description:         req.Description,
		RegistrationFormURL: req.RegistrationFormURL,
		RegistrationType:    event.RegistrationType(req.RegistrationType),
		GoogleSheetID:       req.GoogleSheetID,
		TallyEndpoint:       req.TallyEndpoint,
		RegistrationEnabled: req.RegistrationEnabled == nil || *req.RegistrationEnabled,
		RegistrationLimit:   req.RegistrationLimit,
		CollegeName:         req.CollegeName,
		CertificateLayout:   &l,
	}
	if err := h.events.Create(c.Request.Context(), ev); err != nil {
		middleware.LoggerFromContext(c).Error("create event failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// ListEvents 列出当前组织者的活动。
func (h *EventHandler) ListEvents(c *gin.Context) {
	organizerID, ok := middleware.OrganizerID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	events, err := h.events.ListByOwner(c.Request.Context(), organizerID)
	if err != nil {
		middleware.LoggerFromContext(c).Error("list events failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type publicEventResponse struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	RegistrationFormURL string `json:"registrationFormUrl,omitempty"`
	RegistrationType    string `json:"registrationType"`
	RegistrationEnabled bool   `json:"registrationEnabled"`
	RegistrationLimit   int    `json:"registrationLimit"`
	CollegeName         string `json:"collegeName"`
	Registrations       int    `json:"registrations"`
}

// GetEvent 返回活动的公开信息，不包含报名名单与证书配置。
func (h *EventHandler) GetEvent(c *gin.Context) {
	ev, ok := loadEvent(c, h.events)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, publicEventResponse{
		ID:                  ev.ID,
		Title:               ev.Title,
		Description:         ev.Description,
		RegistrationFormURL: ev.RegistrationFormURL,
		RegistrationType:    string(ev.RegistrationType),
		RegistrationEnabled: ev.RegistrationEnabled,
		RegistrationLimit:   ev.RegistrationLimit,
		CollegeName:         ev.CollegeName,
		Registrations:       len(ev.Responses),
	})
}

type updateEventRequest struct {
	Title               *string         `json:"title" binding:"omitempty,min=1,max=255"`
	Description         *string         `json:"description"`
	RegistrationFormURL *string         `json:"registrationFormUrl" binding:"omitempty,url"`
	RegistrationType    *string         `json:"registrationType" binding:"omitempty,oneof=upload google tally"`
	GoogleSheetID       *string         `json:"googleSheetId" binding:"omitempty,max=128"`
	TallyEndpoint       *string         `json:"tallyEndpoint" binding:"omitempty,url"`
	RegistrationEnabled *bool           `json:"registrationEnabled"`
	RegistrationLimit   *int            `json:"registrationLimit" binding:"omitempty,min=0"`
	CollegeName         *string         `json:"collegeName" binding:"omitempty,max=255"`
	CertificateLayout   json.RawMessage `json:"certificateLayout"`
}

// UpdateEvent 部分更新活动。certificateLayout 与已保存的布局合并：
// 请求中未出现的模块保持不变，显式为 null 的模块被移除。
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	var req updateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	changes := event.Changes{
		Title:               req.Title,
		Description:         req.Description,
		RegistrationFormURL: req.RegistrationFormURL,
		GoogleSheetID:       req.GoogleSheetID,
		TallyEndpoint:       req.TallyEndpoint,
		RegistrationEnabled: req.RegistrationEnabled,
		RegistrationLimit:   req.RegistrationLimit,
		CollegeName:         req.CollegeName,
	}
	if req.RegistrationType != nil {
		t := event.RegistrationType(*req.RegistrationType)
		changes.RegistrationType = &t
	}
	if raw := bytes.TrimSpace(req.CertificateLayout); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		patch, err := layout.Parse(raw)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		merged := layout.Merge(ev.EffectiveLayout(), patch)
		if err := layout.Validate(merged); err != nil {
			BadRequest(c, err.Error())
			return
		}
		changes.CertificateLayout = &merged
	}
	if changes.Empty() {
		c.JSON(http.StatusOK, ev)
		return
	}

	updated, err := h.events.Update(c.Request.Context(), ev.ID, changes)
	if err != nil {
		middleware.LoggerFromContext(c).Error("update event failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, updated)
}

type registrationResponse struct {
	recipient.Recipient
	Status string `json:"status"`
}

// ListRegistrations 返回报名名单，并标注是否已成功发送过邮件。
// 在线报名来源实时拉取，上传来源返回已保存的名单。
func (h *EventHandler) ListRegistrations(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.String("event_id", ev.ID))

	rs, err := h.registrations.Fetch(ctx, ev, c.GetHeader(googleTokenHeader))
	if err != nil {
		logger.Warn("fetch registrations failed", slog.Any("error", err))
		BadGateway(c, "failed to fetch registrations")
		return
	}
	deliveries, err := h.events.ListDeliveries(ctx, ev.ID)
	if err != nil {
		logger.Error("list deliveries failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	sent := make(map[string]bool, len(deliveries))
	for _, d := range deliveries {
		if d.Status == event.DeliverySent {
			sent[d.Email] = true
		}
	}

	out := make([]registrationResponse, 0, len(rs))
	for _, r := range rs {
		status := "Registered"
		if sent[r.Email] {
			status = "Sent"
		}
		out = append(out, registrationResponse{Recipient: r, Status: status})
	}
	c.JSON(http.StatusOK, out)
}

// SyncRegistrations 立即拉取在线报名名单并保存到活动。
func (h *EventHandler) SyncRegistrations(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	logger := middleware.LoggerFromContext(c).With(slog.String("event_id", ev.ID))
	if ev.RegistrationType == event.RegistrationUpload {
		BadRequest(c, "event has no online registration source")
		return
	}

	rs, err := h.registrations.Fetch(c.Request.Context(), ev, c.GetHeader(googleTokenHeader))
	if err != nil {
		logger.Warn("fetch registrations failed", slog.Any("error", err))
		BadGateway(c, "failed to fetch registrations")
		return
	}
	if _, err := h.events.Update(c.Request.Context(), ev.ID, event.Changes{Responses: &rs}); err != nil {
		logger.Error("save registrations failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rs)})
}

// UploadRegistrations 用上传的 CSV 替换活动的报名名单。
func (h *EventHandler) UploadRegistrations(c *gin.Context) {
	ev, _, ok := loadOwnedEvent(c, h.events)
	if !ok {
		return
	}
	logger := middleware.LoggerFromContext(c).With(slog.String("event_id", ev.ID))

	data, ok := readFormFile(c, "file", true, h.maxUpload, h.scanner)
	if !ok {
		return
	}
	rs, err := recipient.ParseCSV(bytes.NewReader(data))
	if err != nil {
		BadRequest(c, "unreadable recipient file")
		return
	}
	if _, err := h.events.Update(c.Request.Context(), ev.ID, event.Changes{Responses: &rs}); err != nil {
		logger.Error("save registrations failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rs)})
}

type pulseEntry struct {
	Name      string `json:"name"`
	College   string `json:"college"`
	Timestamp string `json:"timestamp"`
}

type pulseResponse struct {
	Title              string       `json:"title"`
	College            string       `json:"college"`
	TotalRegistrations int          `json:"totalRegistrations"`
	Recent             []pulseEntry `json:"recent"`
}

// Pulse 返回报名总数与最近 10 条报名，最新在前。
func (h *EventHandler) Pulse(c *gin.Context) {
	ev, ok := loadEvent(c, h.events)
	if !ok {
		return
	}
	p := event.PulseOf(ev)
	now := h.now().UTC().Format(time.RFC3339)
	recent := make([]pulseEntry, 0, len(p.Recent))
	for _, r := range p.Recent {
		ts := r.Timestamp
		if ts == "" {
			ts = now
		}
		recent = append(recent, pulseEntry{Name: r.Name, College: r.College, Timestamp: ts})
	}
	c.JSON(http.StatusOK, pulseResponse{
		Title:              ev.Title,
		College:            ev.CollegeName,
		TotalRegistrations: p.Count,
		Recent:             recent,
	})
}

// readFormFile 读取 multipart 文件字段并做病毒扫描。
// 可选字段缺失时返回 nil, true；失败时已写出响应并返回 false。
func readFormFile(c *gin.Context, field string, required bool, maxBytes int64, scanner scan.Scanner) ([]byte, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) && !required {
			return nil, true
		}
		BadRequest(c, "missing file "+field)
		return nil, false
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		PayloadTooLarge(c, field+" is too large")
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		Internal(c, "failed to read file")
		return nil, false
	}
	if !scanUpload(c, data, scanner) {
		return nil, false
	}
	return data, true
}

// scanUpload 扫描上传内容，发现恶意文件时返回 400。
func scanUpload(c *gin.Context, data []byte, scanner scan.Scanner) bool {
	if err := scanner.Scan(c.Request.Context(), data); err != nil {
		if errors.Is(err, scan.ErrInfected) {
			BadRequest(c, "malicious file detected")
			return false
		}
		middleware.LoggerFromContext(c).Error("scan file failed", slog.Any("error", err))
		Internal(c, "failed to scan file")
		return false
	}
	return true
}
