package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"eventcert/internal/database"
	"eventcert/internal/layout"
	"eventcert/internal/recipient"
)

// Store 基于 GORM 持久化活动与发送记录。
type Store struct {
	db   *gorm.DB
	node *snowflake.Node
}

// NewStore 创建 Store，node 为 snowflake 节点号。
func NewStore(db *gorm.DB, node int64) (*Store, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node: %w", err)
	}
	return &Store{db: db, node: n}, nil
}

// Create 为活动分配 id 并写入数据库。
func (s *Store) Create(ctx context.Context, e *Event) error {
	e.ID = s.node.Generate().String()
	if e.RegistrationType == "" {
		e.RegistrationType = RegistrationUpload
	}
	row, err := toRow(e)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	e.CreatedAt, e.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

// Get 按 id 读取活动。
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	var row database.Event
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query event: %w", err)
	}
	return fromRow(row)
}

// ListByOwner 返回组织者的全部活动，按创建时间倒序。
func (s *Store) ListByOwner(ctx context.Context, ownerID uint) ([]*Event, error) {
	var rows []database.Event
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return fromRows(rows)
}

// ListSyncable 返回报名来源为外部表单的活动。
func (s *Store) ListSyncable(ctx context.Context) ([]*Event, error) {
	var rows []database.Event
	if err := s.db.WithContext(ctx).
		Where("registration_type IN ?", []string{string(RegistrationGoogle), string(RegistrationTally)}).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list syncable events: %w", err)
	}
	return fromRows(rows)
}

// Update 以单条 UPDATE 语句写入部分更新并返回最新记录。
func (s *Store) Update(ctx context.Context, id string, c Changes) (*Event, error) {
	values, err := changeColumns(c)
	if err != nil {
		return nil, err
	}
	if len(values) > 0 {
		values["updated_at"] = time.Now()
		res := s.db.WithContext(ctx).Model(&database.Event{}).Where("id = ?", id).Updates(values)
		if res.Error != nil {
			return nil, fmt.Errorf("update event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.Get(ctx, id)
}

// RecordDelivery 写入一条发送记录。
func (s *Store) RecordDelivery(ctx context.Context, d Delivery) error {
	row := database.Delivery{
		EventID: d.EventID,
		Email:   d.Email,
		Kind:    d.Kind,
		Status:  string(d.Status),
		Error:   truncate(d.Error, 512),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// ListDeliveries 返回活动的发送记录，最新在前。
func (s *Store) ListDeliveries(ctx context.Context, eventID string) ([]Delivery, error) {
	var rows []database.Delivery
	if err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	out := make([]Delivery, 0, len(rows))
	for _, r := range rows {
		out = append(out, Delivery{
			EventID:   r.EventID,
			Email:     r.Email,
			Kind:      r.Kind,
			Status:    DeliveryStatus(r.Status),
			Error:     r.Error,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func changeColumns(c Changes) (map[string]any, error) {
	values := map[string]any{}
	setString := func(col string, v *string) {
		if v != nil {
			values[col] = *v
		}
	}
	setString("title", c.Title)
	setString("description", c.Description)
	setString("registration_form_url", c.RegistrationFormURL)
	setString("google_sheet_id", c.GoogleSheetID)
	setString("tally_endpoint", c.TallyEndpoint)
	setString("college_name", c.CollegeName)
	setString("certificate_template", c.CertificateTemplate)
	if c.RegistrationType != nil {
		values["registration_type"] = string(*c.RegistrationType)
	}
	if c.RegistrationEnabled != nil {
		values["registration_enabled"] = *c.RegistrationEnabled
	}
	if c.RegistrationLimit != nil {
		values["registration_limit"] = *c.RegistrationLimit
	}
	if c.CertificateLayout != nil {
		b, err := json.Marshal(c.CertificateLayout)
		if err != nil {
			return nil, fmt.Errorf("encode layout: %w", err)
		}
		values["certificate_layout"] = datatypes.JSON(b)
	}
	if c.Responses != nil {
		b, err := json.Marshal(*c.Responses)
		if err != nil {
			return nil, fmt.Errorf("encode responses: %w", err)
		}
		values["responses"] = datatypes.JSON(b)
	}
	return values, nil
}

func toRow(e *Event) (database.Event, error) {
	row := database.Event{
		ID:                  e.ID,
		OwnerID:             e.OwnerID,
		Title:               e.Title,
		Description:         e.Description,
		RegistrationFormURL: e.RegistrationFormURL,
		RegistrationType:    string(e.RegistrationType),
		GoogleSheetID:       e.GoogleSheetID,
		TallyEndpoint:       e.TallyEndpoint,
		RegistrationEnabled: e.RegistrationEnabled,
		RegistrationLimit:   e.RegistrationLimit,
		CollegeName:         e.CollegeName,
		CertificateTemplate: e.CertificateTemplate,
	}
	if e.CertificateLayout != nil {
		b, err := json.Marshal(e.CertificateLayout)
		if err != nil {
			return row, fmt.Errorf("encode layout: %w", err)
		}
		row.CertificateLayout = datatypes.JSON(b)
	}
	responses := e.Responses
	if responses == nil {
		responses = []recipient.Recipient{}
	}
	b, err := json.Marshal(responses)
	if err != nil {
		return row, fmt.Errorf("encode responses: %w", err)
	}
	row.Responses = datatypes.JSON(b)
	return row, nil
}

func fromRow(row database.Event) (*Event, error) {
	e := &Event{
		ID:                  row.ID,
		OwnerID:             row.OwnerID,
		Title:               row.Title,
		Description:         row.Description,
		RegistrationFormURL: row.RegistrationFormURL,
		RegistrationType:    RegistrationType(row.RegistrationType),
		GoogleSheetID:       row.GoogleSheetID,
		TallyEndpoint:       row.TallyEndpoint,
		RegistrationEnabled: row.RegistrationEnabled,
		RegistrationLimit:   row.RegistrationLimit,
		CollegeName:         row.CollegeName,
		CertificateTemplate: row.CertificateTemplate,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
	if len(row.CertificateLayout) > 0 && string(row.CertificateLayout) != "null" {
		l, err := layout.Parse(row.CertificateLayout)
		if err != nil {
			return nil, fmt.Errorf("decode stored layout of event %s: %w", row.ID, err)
		}
		e.CertificateLayout = &l
	}
	if len(row.Responses) > 0 {
		if err := json.Unmarshal(row.Responses, &e.Responses); err != nil {
			return nil, fmt.Errorf("decode responses of event %s: %w", row.ID, err)
		}
	}
	return e, nil
}

func fromRows(rows []database.Event) ([]*Event, error) {
	out := make([]*Event, 0, len(rows))
	for _, row := range rows {
		e, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
