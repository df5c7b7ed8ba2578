// Package verification 生成并解析证书上的验证令牌。
//
// 令牌是 "email:eventId" 的标准 base64 编码，不含签名：持有令牌只能证明
// 该邮箱在活动报名名单中，不能用于身份认证。
package verification

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"eventcert/internal/event"
)

// ErrInvalidToken 表示令牌无法解码、活动不存在或邮箱不在名单中，三者不对外区分。
var ErrInvalidToken = errors.New("invalid or expired certificate")

// Encode 生成验证令牌。
func Encode(email, eventID string) string {
	return base64.StdEncoding.EncodeToString([]byte(email + ":" + eventID))
}

// Decode 解析验证令牌，按第一个冒号切分邮箱与活动 id。
// 兼容无填充与 URL 安全字母表的变体，便于处理被网关改写过的链接。
func Decode(token string) (email, eventID string, err error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "/"))
	if token == "" {
		return "", "", ErrInvalidToken
	}
	var raw []byte
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if raw, err = enc.DecodeString(token); err == nil {
			break
		}
	}
	if err != nil || !utf8.Valid(raw) {
		return "", "", ErrInvalidToken
	}
	email, eventID, ok := strings.Cut(string(raw), ":")
	if !ok || email == "" || eventID == "" {
		return "", "", ErrInvalidToken
	}
	return email, eventID, nil
}

// URL 返回证书二维码中编码的验证链接。
func URL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/verify/" + token
}

// Result 是验证成功时返回给公众的信息。
type Result struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	EventName  string    `json:"eventName"`
	College    string    `json:"college"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// EventGetter 按 id 读取活动。
type EventGetter interface {
	Get(ctx context.Context, id string) (*event.Event, error)
}

// Resolver 把令牌解析为报名记录。
type Resolver struct {
	events EventGetter
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver 创建 Resolver。
func NewResolver(events EventGetter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{events: events, logger: logger, now: time.Now}
}

// Resolve 校验令牌。令牌格式错误、活动不存在、邮箱不在名单中都返回 ErrInvalidToken；
// 其余错误（例如数据库不可用）原样返回。
func (r *Resolver) Resolve(ctx context.Context, token string) (*Result, error) {
	email, eventID, err := Decode(token)
	if err != nil {
		r.logger.Debug("verification token rejected", slog.String("reason", "malformed"))
		return nil, ErrInvalidToken
	}

	ev, err := r.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			r.logger.Debug("verification token rejected", slog.String("reason", "unknown_event"), slog.String("event_id", eventID))
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	resp, ok := ev.FindResponse(email)
	if !ok {
		r.logger.Debug("verification token rejected", slog.String("reason", "not_registered"), slog.String("event_id", eventID))
		return nil, ErrInvalidToken
	}

	eventName := resp.EventName
	if eventName == "" {
		eventName = ev.Title
	}
	college := resp.College
	if college == "" {
		college = ev.CollegeName
	}
	return &Result{
		Name:       resp.Name,
		Email:      resp.Email,
		EventName:  eventName,
		College:    college,
		VerifiedAt: r.now(),
	}, nil
}
