package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"eventcert/internal/api/middleware"
	"eventcert/internal/event"
	"eventcert/internal/issuance"
	"eventcert/internal/recipient"
)

// EventStore 是处理器需要的活动仓储接口，由 event.Store 实现。
type EventStore interface {
	Create(ctx context.Context, e *event.Event) error
	Get(ctx context.Context, id string) (*event.Event, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]*event.Event, error)
	Update(ctx context.Context, id string, c event.Changes) (*event.Event, error)
	ListDeliveries(ctx context.Context, eventID string) ([]event.Delivery, error)
}

// RegistrationFetcher 拉取在线报名名单，由 integration.Fetcher 实现。
type RegistrationFetcher interface {
	Fetch(ctx context.Context, ev *event.Event, accessToken string) ([]recipient.Recipient, error)
}

// TemplateStore 保存与读取证书模板，由 storage.TemplateStore 实现。
type TemplateStore interface {
	Save(ctx context.Context, eventID string, data []byte) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
}

// URLSigner 生成对象的预签名访问链接，由 storage.Client 实现。
type URLSigner interface {
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// BatchSender 同步执行一个批次，由 issuance.Orchestrator 实现。
type BatchSender interface {
	Send(ctx context.Context, req issuance.Request) (issuance.Result, error)
}

// BatchStager 暂存排队批次的上传文件，由 storage.BatchStore 实现。
type BatchStager interface {
	Put(ctx context.Context, batchID, name string, data []byte) (string, error)
}

// TaskEnqueuer 投递异步任务，由 asynq.Client 实现。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// googleTokenHeader 携带组织者的 Google OAuth 令牌，用于读取未公开的报名表格。
const googleTokenHeader = "X-Google-Access-Token"

// loadOwnedEvent 读取路径中的活动并校验归属。不属于当前组织者的活动按不存在处理。
func loadOwnedEvent(c *gin.Context, events EventStore) (*event.Event, uint, bool) {
	organizerID, ok := middleware.OrganizerID(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, 0, false
	}
	ev, ok := loadEvent(c, events)
	if !ok {
		return nil, 0, false
	}
	if ev.OwnerID != organizerID {
		NotFound(c, "event not found")
		return nil, 0, false
	}
	return ev, organizerID, true
}

func loadEvent(c *gin.Context, events EventStore) (*event.Event, bool) {
	ev, err := events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			NotFound(c, "event not found")
			return nil, false
		}
		middleware.LoggerFromContext(c).Error("load event failed", slog.Any("error", err))
		Internal(c, "internal error")
		return nil, false
	}
	return ev, true
}
