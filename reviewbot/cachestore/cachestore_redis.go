package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

const redisReplyPrefix = "reply-body/"

// RedisReplyCache shares reply bodies between bot instances, with a small in-process layer in front of redis.
type RedisReplyCache struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ ReplyCache = (*RedisReplyCache)(nil)

func NewRedisReplyCache(rdb *redis.Client, ttl time.Duration) *RedisReplyCache {
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(1_000, ttl),
	})
	return &RedisReplyCache{
		Data: data,
		TTL:  ttl,
	}
}

// ConnectRedis parses a redis URL and checks the connection.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return rdb, nil
}

func (s *RedisReplyCache) Body(ctx context.Context, replyID string) (string, bool, error) {
	var body string
	err := s.Data.Get(ctx, redisReplyPrefix+replyID, &body)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

func (s *RedisReplyCache) Remember(ctx context.Context, replyID, body string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisReplyPrefix + replyID,
		Value: body,
		TTL:   s.TTL,
	})
}

func (s *RedisReplyCache) Forget(ctx context.Context, replyID string) error {
	err := s.Data.Delete(ctx, redisReplyPrefix+replyID)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
