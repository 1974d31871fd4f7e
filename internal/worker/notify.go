package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// JobStatusNotifyMessage 通过 Redis Pub/Sub 转发给 WebSocket 客户端。
// 字段名与前端解析保持一致。
type JobStatusNotifyMessage struct {
	Type          string `json:"type"`
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

const notifyTypeJobStatus = "job_status"

// NotifyChannel 返回用户的通知频道名。
func NotifyChannel(userID string) string {
	return "user_notify:" + userID
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

func publishJobStatus(ctx context.Context, client redisPublisher, userID string, msg JobStatusNotifyMessage) error {
	msg.Type = notifyTypeJobStatus
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(userID)
	if err := client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
