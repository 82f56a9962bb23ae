package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage 消费组读到的一条 stream 消息
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// PublishJSON 将 payload 序列化为 JSON 后以 data 字段写入指定 stream
// maxLen > 0 时按近似长度裁剪 stream
func PublishJSON(ctx context.Context, client *redis.Client, stream string, maxLen int64, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": string(data)},
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}

	id, err := client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}
	return id, nil
}

// EnsureConsumerGroup 在 stream 上创建消费组, 组已存在时忽略 BUSYGROUP 错误
func EnsureConsumerGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on stream %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup 以消费组方式批量读取新消息, 没有新消息时返回空切片
func ReadGroup(ctx context.Context, client *redis.Client, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream %s: %w", stream, err)
	}

	var messages []StreamMessage
	for _, st := range streams {
		for _, msg := range st.Messages {
			messages = append(messages, StreamMessage{
				Stream: st.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}
	return messages, nil
}

// Ack 确认消费组内的一条消息
func Ack(ctx context.Context, client *redis.Client, stream, group, messageID string) error {
	return client.XAck(ctx, stream, group, messageID).Err()
}
