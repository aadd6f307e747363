package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"wisefido-allocator/internal/config"
	"wisefido-allocator/internal/events"

	"github.com/go-redis/redis/v8"
)

// StreamPublisher 将分配事件和通知发布到 Redis Streams，供下游服务消费
type StreamPublisher struct {
	client       *redis.Client
	eventStream  string
	notifyStream string
	maxLen       int64
}

// NewStreamPublisher 创建 Stream 发布器
func NewStreamPublisher(client *redis.Client, cfg config.CacheConfig) *StreamPublisher {
	return &StreamPublisher{
		client:       client,
		eventStream:  cfg.EventStream,
		notifyStream: cfg.NotifyStream,
		maxLen:       cfg.StreamMaxLength,
	}
}

// Publish 发布 JSON 消息到指定 Stream（超过 maxLen 时裁剪旧消息）
func (p *StreamPublisher) Publish(ctx context.Context, stream, kind string, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"kind": kind,
			"data": string(jsonBytes),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}
	return id, nil
}

// Name 实现 events.Sink
func (p *StreamPublisher) Name() string { return "redis-stream" }

// Handle 分配事件写入事件流，通知写入通知流；看板事件忽略
func (p *StreamPublisher) Handle(ctx context.Context, ev events.Event) error {
	switch {
	case ev.Assignment != nil:
		_, err := p.Publish(ctx, p.eventStream, string(ev.Assignment.Kind), ev.Assignment)
		return err
	case ev.Notification != nil:
		_, err := p.Publish(ctx, p.notifyStream, string(ev.Notification.Type), ev.Notification)
		return err
	}
	return nil
}
