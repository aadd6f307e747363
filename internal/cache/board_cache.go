package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-allocator/internal/config"
	"wisefido-allocator/internal/events"
	"wisefido-allocator/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrBoardNotFound 看板缓存不存在或已过期
var ErrBoardNotFound = errors.New("board snapshot not found")

// NewRedisClient 创建 Redis 客户端
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping 测试 Redis 连接
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// BoardCache 看板快照缓存（前端大屏直接读取 Redis）
type BoardCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewBoardCache 创建看板缓存；键为 BoardKey + tenantID
func NewBoardCache(client *redis.Client, cfg config.CacheConfig, tenantID string, logger *zap.Logger) *BoardCache {
	if tenantID == "" {
		tenantID = "default"
	}
	return &BoardCache{
		client: client,
		key:    cfg.BoardKey + tenantID,
		ttl:    time.Duration(cfg.BoardTTL) * time.Second,
		logger: logger,
	}
}

// Key 缓存键
func (c *BoardCache) Key() string {
	return c.key
}

// SetBoard 写入看板快照（设置 TTL）
func (c *BoardCache) SetBoard(ctx context.Context, board *models.Board) error {
	jsonData, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	if err := c.client.Set(ctx, c.key, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set board cache: %w", err)
	}

	c.logger.Debug("Updated board cache",
		zap.String("key", c.key),
		zap.Int("resource_count", len(board.Resources)),
		zap.Int("queue_length", len(board.Queue)),
	)
	return nil
}

// GetBoard 读取看板快照
func (c *BoardCache) GetBoard(ctx context.Context) (*models.Board, error) {
	val, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrBoardNotFound
		}
		return nil, fmt.Errorf("failed to get board cache: %w", err)
	}

	var board models.Board
	if err := json.Unmarshal([]byte(val), &board); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board: %w", err)
	}
	return &board, nil
}

// Name 实现 events.Sink
func (c *BoardCache) Name() string { return "redis-board" }

// Handle 只处理看板事件
func (c *BoardCache) Handle(ctx context.Context, ev events.Event) error {
	if ev.Board == nil {
		return nil
	}
	return c.SetBoard(ctx, ev.Board)
}
