// Package mailer 负责投递事务邮件。
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eventcert/internal/config"
)

var (
	// ErrInvalidRecipient 表示收件地址不是合法邮箱。
	ErrInvalidRecipient = errors.New("invalid recipient email")
	// ErrDisabled 表示邮件发送已在配置中关闭。
	ErrDisabled = errors.New("mail delivery is disabled")
)

// Attachment 是随邮件发送的文件。
type Attachment struct {
	Name    string
	Content []byte
}

// Message 是一封 HTML 邮件。
type Message struct {
	To          string
	ToName      string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Sender 投递一封邮件。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New 根据配置选择邮件驱动。
func New(cfg config.MailConfig, logger *slog.Logger) (Sender, error) {
	switch cfg.Driver {
	case "brevo":
		return NewBrevoSender(cfg, logger), nil
	case "", "log":
		return NewLogSender(logger), nil
	case "disabled":
		return DisabledSender{}, nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

// BrevoSender 通过 Brevo 事务邮件 API 发送邮件。
type BrevoSender struct {
	endpoint    string
	apiKey      string
	senderEmail string
	senderName  string
	client      *http.Client
	logger      *slog.Logger
}

// NewBrevoSender 创建 Brevo 发送器。
func NewBrevoSender(cfg config.MailConfig, logger *slog.Logger) *BrevoSender {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrevoSender{
		endpoint:    cfg.BrevoEndpoint,
		apiKey:      cfg.BrevoAPIKey,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoAttachment struct {
	Content string `json:"content"`
	Name    string `json:"name"`
}

type brevoPayload struct {
	Sender      brevoContact      `json:"sender"`
	To          []brevoContact    `json:"to"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"htmlContent"`
	Attachment  []brevoAttachment `json:"attachment,omitempty"`
}

// Send 实现 Sender。Brevo 以 201 表示接受投递。
func (s *BrevoSender) Send(ctx context.Context, msg Message) error {
	at := strings.Index(msg.To, "@")
	if at <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, msg.To)
	}
	name := msg.ToName
	if name == "" {
		name = msg.To[:at]
	}

	payload := brevoPayload{
		Sender:      brevoContact{Email: s.senderEmail, Name: s.senderName},
		To:          []brevoContact{{Email: msg.To, Name: name}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	}
	for _, a := range msg.Attachments {
		payload.Attachment = append(payload.Attachment, brevoAttachment{
			Content: base64.StdEncoding.EncodeToString(a.Content),
			Name:    a.Name,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal brevo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build brevo request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send brevo request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("brevo rejected email: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	s.logger.Debug("brevo accepted email", slog.String("to", msg.To), slog.Int("attachments", len(msg.Attachments)))
	return nil
}

// LogSender 只把邮件摘要写入日志，用于本地开发。
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send 实现 Sender。
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if !strings.Contains(msg.To, "@") {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, msg.To)
	}
	attrs := []any{
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("html_bytes", len(msg.HTML)),
	}
	for _, a := range msg.Attachments {
		attrs = append(attrs, slog.Group("attachment", slog.String("name", a.Name), slog.Int("bytes", len(a.Content))))
	}
	s.logger.Info("mail (log driver)", attrs...)
	return nil
}

// DisabledSender 拒绝所有邮件，批次中的每位收件人都会记为失败。
type DisabledSender struct{}

func (DisabledSender) Send(context.Context, Message) error {
	return ErrDisabled
}
