package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// lastPointTTL 最近保存点缓存的过期时间
const lastPointTTL = 24 * time.Hour

// LastPoint 最近一次保存的轨迹点摘要（采样决策的参照点）
type LastPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Speed     *float64  `json:"speed,omitempty"`
}

// LastPointCache 按 (userId, tripId) 缓存最近保存点
type LastPointCache interface {
	// Get 缓存未命中时返回 (nil, nil)
	Get(ctx context.Context, userID, tripID string) (*LastPoint, error)
	Set(ctx context.Context, userID, tripID string, point *LastPoint) error
}

// RedisLastPointCache 最近保存点缓存的Redis实现
type RedisLastPointCache struct {
	client *redis.Client
}

// NewRedisLastPointCache 创建Redis缓存
func NewRedisLastPointCache(client *redis.Client) *RedisLastPointCache {
	return &RedisLastPointCache{client: client}
}

var _ LastPointCache = (*RedisLastPointCache)(nil)

func lastPointKey(userID, tripID string) string {
	return fmt.Sprintf("trip:lastpoint:%s:%s", userID, tripID)
}

// Get 读取最近保存点
func (c *RedisLastPointCache) Get(ctx context.Context, userID, tripID string) (*LastPoint, error) {
	data, err := c.client.Get(ctx, lastPointKey(userID, tripID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read last point cache: %w", err)
	}

	var point LastPoint
	if err := json.Unmarshal([]byte(data), &point); err != nil {
		return nil, fmt.Errorf("failed to decode last point cache: %w", err)
	}
	return &point, nil
}

// Set 写入最近保存点
func (c *RedisLastPointCache) Set(ctx context.Context, userID, tripID string, point *LastPoint) error {
	data, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("failed to encode last point: %w", err)
	}

	if err := c.client.Set(ctx, lastPointKey(userID, tripID), data, lastPointTTL).Err(); err != nil {
		return fmt.Errorf("failed to write last point cache: %w", err)
	}
	return nil
}
