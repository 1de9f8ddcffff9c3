package service

import (
	"context"

	commonredis "fieldvisit/common/redis"

	"github.com/go-redis/redis/v8"
)

// 客户变更事件类型
const (
	EventClientCreated = "client.created"
	EventClientUpdated = "client.updated"
	EventClientDeleted = "client.deleted"
	EventImportDone    = "import.completed"
)

// ChangeFeed publishes registry change events for downstream consumers.
type ChangeFeed interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// RedisChangeFeed appends events to a capped Redis stream.
type RedisChangeFeed struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisChangeFeed(client *redis.Client, stream string, maxLen int64) *RedisChangeFeed {
	return &RedisChangeFeed{client: client, stream: stream, maxLen: maxLen}
}

func (f *RedisChangeFeed) Publish(ctx context.Context, eventType string, data any) error {
	_, err := commonredis.PublishJSONToStream(ctx, f.client, f.stream, f.maxLen, eventType, data)
	return err
}

// NopChangeFeed Redis 未启用时使用
type NopChangeFeed struct{}

func (NopChangeFeed) Publish(context.Context, string, any) error { return nil }
