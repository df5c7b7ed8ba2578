// Package event 管理活动记录：报名来源、证书模板与布局、报名名单快照以及发送记录。
package event

import (
	"errors"
	"time"

	"eventcert/internal/layout"
	"eventcert/internal/recipient"
)

// ErrNotFound 表示活动不存在。
var ErrNotFound = errors.New("event not found")

// RegistrationType 指定报名名单的来源。
type RegistrationType string

const (
	RegistrationUpload RegistrationType = "upload"
	RegistrationGoogle RegistrationType = "google"
	RegistrationTally  RegistrationType = "tally"
)

// Valid 报告 t 是否为已知的报名来源。
func (t RegistrationType) Valid() bool {
	switch t {
	case RegistrationUpload, RegistrationGoogle, RegistrationTally:
		return true
	}
	return false
}

// Event 是一次活动。CertificateLayout 为 nil 表示从未保存过布局，
// 渲染时使用默认布局。
type Event struct {
	ID                  string                `json:"id"`
	OwnerID             uint                  `json:"ownerId"`
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	RegistrationFormURL string                `json:"registrationFormUrl,omitempty"`
	RegistrationType    RegistrationType      `json:"registrationType"`
	GoogleSheetID       string                `json:"googleSheetId,omitempty"`
	TallyEndpoint       string                `json:"tallyEndpoint,omitempty"`
	RegistrationEnabled bool                  `json:"registrationEnabled"`
	RegistrationLimit   int                   `json:"registrationLimit"`
	CollegeName         string                `json:"collegeName,omitempty"`
	CertificateTemplate string                `json:"certificateTemplate,omitempty"`
	CertificateLayout   *layout.Layout        `json:"certificateLayout,omitempty"`
	Responses           []recipient.Recipient `json:"responses,omitempty"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}

// EffectiveLayout 返回用于渲染的布局，未保存过布局时返回默认布局。
func (e *Event) EffectiveLayout() layout.Layout {
	if e.CertificateLayout == nil {
		return layout.Default()
	}
	return e.CertificateLayout.Clone()
}

// FindResponse 按邮箱精确查找报名记录。
func (e *Event) FindResponse(email string) (recipient.Recipient, bool) {
	for _, r := range e.Responses {
		if r.Email == email {
			return r, true
		}
	}
	return recipient.Recipient{}, false
}

// Changes 描述一次部分更新，nil 字段保持不变。
type Changes struct {
	Title               *string
	Description         *string
	RegistrationFormURL *string
	RegistrationType    *RegistrationType
	GoogleSheetID       *string
	TallyEndpoint       *string
	RegistrationEnabled *bool
	RegistrationLimit   *int
	CollegeName         *string
	CertificateTemplate *string
	CertificateLayout   *layout.Layout
	Responses           *[]recipient.Recipient
}

// Empty 报告是否没有任何字段被设置。
func (c Changes) Empty() bool {
	return c == Changes{}
}

// DeliveryStatus 是单封邮件的发送结果。
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Delivery 是一条发送记录。
type Delivery struct {
	EventID   string         `json:"eventId"`
	Email     string         `json:"email"`
	Kind      string         `json:"kind"`
	Status    DeliveryStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Pulse 是活动的实时报名概况。
type Pulse struct {
	Count  int                   `json:"count"`
	Recent []recipient.Recipient `json:"recent"`
}

const pulseRecent = 10

// PulseOf 返回报名人数与最近 10 条报名（最新在前）。
func PulseOf(e *Event) Pulse {
	n := len(e.Responses)
	start := max(n-pulseRecent, 0)
	recent := make([]recipient.Recipient, 0, n-start)
	for i := n - 1; i >= start; i-- {
		recent = append(recent, e.Responses[i])
	}
	return Pulse{Count: n, Recent: recent}
}
