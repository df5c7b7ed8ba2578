// Package issuance 执行一次批量发送：解析本次生效的模板、布局与学院名称，
// 枚举收件人，并逐个渲染证书、发送邮件。
package issuance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eventcert/internal/certificate"
	"eventcert/internal/event"
	"eventcert/internal/layout"
	"eventcert/internal/mailer"
	"eventcert/internal/metrics"
	"eventcert/internal/recipient"
	"eventcert/internal/verification"
)

var (
	// ErrEventNotFound 表示批次指向的活动不存在。
	ErrEventNotFound = errors.New("event not found")
	// ErrUnreadableUpload 表示上传的收件人文件无法解析。
	ErrUnreadableUpload = errors.New("recipient file could not be read")
	// ErrRegistrationFetch 表示拉取在线报名名单失败。
	ErrRegistrationFetch = errors.New("registration source unavailable")
)

const (
	defaultParticipant = "Participant"
	attachmentName     = "Certificate.pdf"
)

// EmailType 区分附带证书的邮件与普通通知。
type EmailType string

const (
	EmailCertificate EmailType = "certificate"
	EmailUpdate      EmailType = "update"
)

// RecipientSource 指定收件人来自在线报名名单还是本次上传的文件。
type RecipientSource string

const (
	SourceLive   RecipientSource = "live"
	SourceUpload RecipientSource = "upload"
)

// Request 是一次批量发送请求。
type Request struct {
	EventID         string
	EmailType       EmailType
	RecipientSource RecipientSource
	Subject         string
	// Message 支持 {{Name}}、{{Event}}、{{College}} 占位符。
	Message        string
	CollegeName    string
	LayoutOverride string
	SelectedEmails []string
	Template       []byte
	RecipientFile  []byte
	// AccessToken 是组织者的 Google 令牌，用于读取私有表格。
	AccessToken string
}

// Result 汇总批次结果。对外只承诺 Sent。
type Result struct {
	Sent      int `json:"sent"`
	Attempted int `json:"-"`
	Failed    int `json:"-"`
}

// Message 返回给操作者的提示文字。
func (r Result) Message() string {
	return fmt.Sprintf("Emails sent to %d recipients.", r.Sent)
}

// EventStore 读取并更新活动。
type EventStore interface {
	Get(ctx context.Context, id string) (*event.Event, error)
	Update(ctx context.Context, id string, c event.Changes) (*event.Event, error)
}

// TemplateStore 保存并读取证书模板图片。
type TemplateStore interface {
	Save(ctx context.Context, eventID string, data []byte) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
}

// RegistrationSource 拉取活动的在线报名名单。
type RegistrationSource interface {
	Fetch(ctx context.Context, ev *event.Event, accessToken string) ([]recipient.Recipient, error)
}

// DeliveryLog 记录逐个收件人的发送结果。
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, d event.Delivery) error
}

// Deps 汇集 Orchestrator 的协作方。Deliveries 可为空。
type Deps struct {
	Events        EventStore
	Templates     TemplateStore
	Registrations RegistrationSource
	Renderer      certificate.Renderer
	Mailer        mailer.Sender
	Deliveries    DeliveryLog
	VerifyBaseURL string
	DateFormat    string
	Logger        *slog.Logger
}

// Orchestrator 顺序处理一个批次内的收件人。
type Orchestrator struct {
	events        EventStore
	templates     TemplateStore
	registrations RegistrationSource
	renderer      certificate.Renderer
	mailer        mailer.Sender
	deliveries    DeliveryLog
	verifyBaseURL string
	dateFormat    string
	logger        *slog.Logger
	now           func() time.Time
}

// New 创建 Orchestrator。
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dateFormat := d.DateFormat
	if dateFormat == "" {
		dateFormat = "1/2/2006"
	}
	return &Orchestrator{
		events:        d.Events,
		templates:     d.Templates,
		registrations: d.Registrations,
		renderer:      d.Renderer,
		mailer:        d.Mailer,
		deliveries:    d.Deliveries,
		verifyBaseURL: d.VerifyBaseURL,
		dateFormat:    dateFormat,
		logger:        logger,
		now:           time.Now,
	}
}

// Resolved 是覆盖值与活动默认值合并后本批次实际使用的配置。
type Resolved struct {
	Event       *event.Event
	Layout      layout.Layout
	College     string
	TemplateKey string
	// Template 为本次上传的模板内容；为空时按 TemplateKey 从存储读取。
	Template []byte
}

// HasTemplate 报告本批次是否有可用的证书模板。
func (r *Resolved) HasTemplate() bool {
	return len(r.Template) > 0 || r.TemplateKey != ""
}

// ResolveAndCommitOverrides 逐项合并模板、布局与学院名称（请求值优先于活动默认值），
// 并把与已保存值不同的覆盖项一次性写回活动，作为下次发送的默认值。
// 无法解析的布局覆盖值被忽略，沿用已保存的布局。
func (o *Orchestrator) ResolveAndCommitOverrides(ctx context.Context, ev *event.Event, req Request) (*Resolved, error) {
	logger := o.logger.With(slog.String("event_id", ev.ID))
	res := &Resolved{
		Event:       ev,
		Layout:      ev.EffectiveLayout(),
		College:     ev.CollegeName,
		TemplateKey: ev.CertificateTemplate,
	}
	var changes event.Changes

	if len(req.Template) > 0 {
		key, err := o.templates.Save(ctx, ev.ID, req.Template)
		if err != nil {
			return nil, fmt.Errorf("store template override: %w", err)
		}
		res.Template = req.Template
		res.TemplateKey = key
		if key != ev.CertificateTemplate {
			changes.CertificateTemplate = &key
		}
	}

	if strings.TrimSpace(req.LayoutOverride) != "" {
		override, err := layout.Parse([]byte(req.LayoutOverride))
		if err != nil {
			logger.Warn("ignoring malformed layout override", slog.Any("error", err))
		} else {
			res.Layout = override
			if ev.CertificateLayout == nil || !layout.Equal(override, *ev.CertificateLayout) {
				changes.CertificateLayout = &override
			}
		}
	}

	if college := strings.TrimSpace(req.CollegeName); college != "" {
		res.College = college
		if college != ev.CollegeName {
			changes.CollegeName = &college
		}
	}

	if changes.Empty() {
		return res, nil
	}
	updated, err := o.events.Update(ctx, ev.ID, changes)
	if err != nil {
		return nil, fmt.Errorf("persist overrides: %w", err)
	}
	res.Event = updated
	logger.Info("batch overrides saved as event defaults",
		slog.Bool("template", changes.CertificateTemplate != nil),
		slog.Bool("layout", changes.CertificateLayout != nil),
		slog.Bool("college", changes.CollegeName != nil),
	)
	return res, nil
}

// ResolveRecipients 按请求的来源枚举收件人，并按 SelectedEmails 过滤。
func (o *Orchestrator) ResolveRecipients(ctx context.Context, ev *event.Event, req Request) ([]recipient.Recipient, error) {
	var rs []recipient.Recipient
	switch req.RecipientSource {
	case SourceLive:
		fetched, err := o.registrations.Fetch(ctx, ev, req.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRegistrationFetch, err)
		}
		rs = fetched
	case SourceUpload:
		if len(req.RecipientFile) == 0 {
			break
		}
		parsed, err := recipient.ParseCSV(bytes.NewReader(req.RecipientFile))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnreadableUpload, err)
		}
		rs = parsed
	}
	return recipient.FilterByEmails(rs, req.SelectedEmails), nil
}

// Send 执行一个批次。单个收件人的渲染或发送失败只会记录日志并计入 Failed，
// 不会中断批次；只有活动不存在、上传文件不可读、名单拉取失败等全局问题才返回错误。
func (o *Orchestrator) Send(ctx context.Context, req Request) (Result, error) {
	ev, err := o.events.Get(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			return Result{}, ErrEventNotFound
		}
		return Result{}, fmt.Errorf("load event: %w", err)
	}
	logger := o.logger.With(
		slog.String("event_id", ev.ID),
		slog.String("email_type", string(req.EmailType)),
		slog.String("recipient_source", string(req.RecipientSource)),
	)

	resolved, err := o.ResolveAndCommitOverrides(ctx, ev, req)
	if err != nil {
		return Result{}, err
	}
	recipients, err := o.ResolveRecipients(ctx, ev, req)
	if err != nil {
		return Result{}, err
	}
	metrics.ObserveBatch(len(recipients))
	logger.Info("batch started", slog.Int("recipients", len(recipients)))

	b := &batch{
		Orchestrator: o,
		req:          req,
		resolved:     resolved,
		date:         o.now().Format(o.dateFormat),
	}
	var result Result
	for _, r := range recipients {
		if strings.TrimSpace(r.Email) == "" {
			continue
		}
		result.Attempted++
		err := b.deliver(ctx, r)
		metrics.ObserveDelivery(string(req.EmailType), err)
		o.record(ctx, logger, ev.ID, req.EmailType, r.Email, err)
		if err != nil {
			result.Failed++
			logger.Warn("recipient delivery failed", slog.String("email", r.Email), slog.Any("error", err))
			continue
		}
		result.Sent++
	}

	logger.Info("batch finished",
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, eventID string, kind EmailType, email string, sendErr error) {
	if o.deliveries == nil {
		return
	}
	d := event.Delivery{EventID: eventID, Email: email, Kind: string(kind), Status: event.DeliverySent}
	if sendErr != nil {
		d.Status = event.DeliveryFailed
		d.Error = sendErr.Error()
	}
	if err := o.deliveries.RecordDelivery(ctx, d); err != nil {
		logger.Warn("record delivery failed", slog.String("email", email), slog.Any("error", err))
	}
}

// batch 持有单个批次内共享的状态。
type batch struct {
	*Orchestrator
	req      Request
	resolved *Resolved
	date     string
	template []byte
}

// loadTemplate 只在成功后缓存模板，失败的收件人之后会重试读取。
func (b *batch) loadTemplate(ctx context.Context) ([]byte, error) {
	if len(b.resolved.Template) > 0 {
		return b.resolved.Template, nil
	}
	if b.template != nil {
		return b.template, nil
	}
	data, err := b.templates.Load(ctx, b.resolved.TemplateKey)
	if err != nil {
		return nil, err
	}
	b.template = data
	return data, nil
}

func (b *batch) deliver(ctx context.Context, r recipient.Recipient) error {
	name := r.Name
	if name == "" {
		name = defaultParticipant
	}
	eventName := r.EventName
	if eventName == "" {
		eventName = b.resolved.Event.Title
	}
	college := b.resolved.College

	msg := mailer.Message{
		To:      r.Email,
		ToName:  r.Name,
		Subject: b.req.Subject,
		HTML:    substitute(b.req.Message, name, eventName, college),
	}

	if b.req.EmailType == EmailCertificate && b.resolved.HasTemplate() {
		tpl, err := b.loadTemplate(ctx)
		if err != nil {
			metrics.ObserveRender(time.Now(), err)
			return fmt.Errorf("%w: %w", certificate.ErrTemplateLoad, err)
		}
		started := time.Now()
		pdf, err := b.renderer.Render(ctx, certificate.Input{
			Template: tpl,
			Layout:   b.resolved.Layout,
			Values: certificate.Values{
				Name:      name,
				EventName: eventName,
				College:   college,
				Date:      b.date,
			},
			VerificationURL: verification.URL(b.verifyBaseURL, verification.Encode(r.Email, b.resolved.Event.ID)),
		})
		metrics.ObserveRender(started, err)
		if err != nil {
			return fmt.Errorf("render certificate: %w", err)
		}
		msg.Attachments = []mailer.Attachment{{Name: attachmentName, Content: pdf}}
	}

	if err := b.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// substitute 替换消息中的三个占位符，其余 {{...}} 原样保留。
func substitute(message, name, eventName, college string) string {
	return strings.NewReplacer(
		"{{Name}}", name,
		"{{Event}}", eventName,
		"{{College}}", college,
	).Replace(message)
}
