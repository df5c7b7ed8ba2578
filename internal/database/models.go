package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Organizer 表示可以创建活动并发放证书的组织者账号。
type Organizer struct {
	gorm.Model
	Email  *string `gorm:"uniqueIndex;size:255"` // 手机号登录的账号可以没有邮箱
	Mobile string  `gorm:"uniqueIndex;size:32"`
	Name   string  `gorm:"size:255"`
	Events []Event `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}

// Event 表示一次活动，包含报名来源、证书模板与布局，以及报名名单快照。
// ID 为 snowflake 字符串，同时出现在验证链接中。
type Event struct {
	ID                  string         `gorm:"primaryKey;size:32"`
	OwnerID             uint           `gorm:"index"`
	Title               string         `gorm:"size:255"`
	Description         string         `gorm:"type:text"`
	RegistrationFormURL string         `gorm:"size:512"`
	RegistrationType    string         `gorm:"size:16;default:upload"`
	GoogleSheetID       string         `gorm:"size:128"`
	TallyEndpoint       string         `gorm:"size:512"`
	RegistrationEnabled bool
	RegistrationLimit   int
	CollegeName         string         `gorm:"size:255"`
	CertificateTemplate string         `gorm:"size:512"` // MinIO 对象 key
	CertificateLayout   datatypes.JSON `gorm:"type:jsonb"`
	Responses           datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Delivery 记录一次邮件发送的结果，与 Event 分表存放，
// 使批量发送过程中 Event 行最多被写一次。
type Delivery struct {
	gorm.Model
	EventID string `gorm:"index;size:32"`
	Email   string `gorm:"index;size:255"`
	Kind    string `gorm:"size:16"`
	Status  string `gorm:"size:16"`
	Error   string `gorm:"size:512"`
}
