package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// ErrMiss 键不存在
var ErrMiss = errors.New("cache: miss")

// Cache 键值缓存
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, keys ...string) error
	IncrementScore(ctx context.Context, key, member string, by float64) error
	TopMembers(ctx context.Context, key string, n int) ([]string, error)
	PushRecent(ctx context.Context, key, value string, max int, ttl time.Duration) error
	Recent(ctx context.Context, key string, n int) ([]string, error)
}

// RedisCache 基于 go-redis 的实现
type RedisCache struct {
	rdb *rd.Client
}

func NewRedisCache(rdb *rd.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// NewClient 创建并检查 Redis 连接
func NewClient(ctx context.Context, addr, password string, db int) (*rd.Client, error) {
	rdb := rd.NewClient(&rd.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, rd.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX 仅在键不存在时写入，返回是否写入成功
func (c *RedisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *RedisCache) Increment(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *RedisCache) IncrementScore(ctx context.Context, key, member string, by float64) error {
	return c.rdb.ZIncrBy(ctx, key, by, member).Err()
}

// TopMembers 按分数从高到低取前 n 个成员
func (c *RedisCache) TopMembers(ctx context.Context, key string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return c.rdb.ZRevRange(ctx, key, 0, int64(n-1)).Result()
}

// PushRecent 去重后放到列表头部并截断到 max 个
func (c *RedisCache) PushRecent(ctx context.Context, key, value string, max int, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.LRem(ctx, key, 0, value)
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, int64(max-1))
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Recent(ctx context.Context, key string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return c.rdb.LRange(ctx, key, 0, int64(n-1)).Result()
}

// ParseIDs 将缓存中的字符串 ID 转为整数，忽略无法解析的项
func ParseIDs(values []string) []int {
	ids := make([]int, 0, len(values))
	for _, v := range values {
		if id, err := strconv.Atoi(v); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
