package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"eventcert/internal/event"
	"eventcert/internal/recipient"
)

// SyncStore 列出需要同步的活动并写回名单。
type SyncStore interface {
	ListSyncable(ctx context.Context) ([]*event.Event, error)
	Update(ctx context.Context, id string, c event.Changes) (*event.Event, error)
}

// RegistrationSource 拉取活动的在线报名名单。
type RegistrationSource interface {
	Fetch(ctx context.Context, ev *event.Event, accessToken string) ([]recipient.Recipient, error)
}

// RegistrationSync 定时把 Google 表格与 Tally 的报名名单同步到活动记录，
// 供核验与实时报名概况使用。
type RegistrationSync struct {
	events  SyncStore
	source  RegistrationSource
	logger  *slog.Logger
	timeout time.Duration
}

func NewRegistrationSync(events SyncStore, source RegistrationSource, logger *slog.Logger) *RegistrationSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationSync{events: events, source: source, logger: logger, timeout: 5 * time.Minute}
}

// Run 同步一轮。单个活动失败只记录日志，返回成功同步的活动数。
func (s *RegistrationSync) Run(ctx context.Context) (int, error) {
	events, err := s.events.ListSyncable(ctx)
	if err != nil {
		return 0, fmt.Errorf("list syncable events: %w", err)
	}
	synced := 0
	for _, ev := range events {
		log := s.logger.With(slog.String("event_id", ev.ID), slog.String("registration_type", string(ev.RegistrationType)))
		rs, err := s.source.Fetch(ctx, ev, "")
		if err != nil {
			log.Warn("registration sync fetch failed", slog.Any("error", err))
			continue
		}
		if _, err := s.events.Update(ctx, ev.ID, event.Changes{Responses: &rs}); err != nil {
			log.Warn("registration sync update failed", slog.Any("error", err))
			continue
		}
		log.Debug("registrations synced", slog.Int("count", len(rs)))
		synced++
	}
	return synced, nil
}

// Schedule 按 cron 表达式注册同步任务。
func (s *RegistrationSync) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		started := time.Now()
		n, err := s.Run(ctx)
		if err != nil {
			s.logger.Error("registration sync failed", slog.Any("error", err))
			return
		}
		s.logger.Info("registration sync finished", slog.Int("events", n), slog.Duration("took", time.Since(started)))
	})
}
