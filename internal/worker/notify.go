package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// BatchNotifyMessage 通过 Redis Pub/Sub 转发给组织者的 WebSocket 连接。
// 注意：这里的字段名与前端解析保持一致。
type BatchNotifyMessage struct {
	Status        string `json:"status"`
	BatchID       string `json:"batch_id"`
	EventID       string `json:"event_id"`
	CorrelationID string `json:"correlation_id"`
	Sent          int    `json:"sent"`
	Failed        int    `json:"failed"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Publisher 是 redis.Client 的发布子集。
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotifyChannel 返回组织者的通知频道。
func NotifyChannel(ownerID uint) string {
	return fmt.Sprintf("organizer_notify:%d", ownerID)
}

func publishNotify(ctx context.Context, pub Publisher, ownerID uint, msg BatchNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(ownerID)
	if err := pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
