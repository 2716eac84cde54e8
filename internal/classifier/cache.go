package classifier

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/mohammad-safakhou/runbooker/models"
	"github.com/redis/go-redis/v9"
)

const verdictKeyPrefix = "runbooker:verdict:"

// VerdictStore is the slice of the redis client RedisCache needs.
type VerdictStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores model verdicts in redis with a TTL. Redis errors are
// logged and treated as misses.
type RedisCache struct {
	client VerdictStore
	ttl    time.Duration
	logger *log.Logger
}

func NewRedisCache(client VerdictStore, ttl time.Duration, logger *log.Logger) *RedisCache {
	if logger == nil {
		logger = log.New(log.Writer(), "[CLASSIFIER] ", log.LstdFlags)
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (r *RedisCache) Get(ctx context.Context, key string) (models.Topic, bool) {
	val, err := r.client.Get(ctx, verdictKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.logger.Printf("verdict cache get: %v", err)
		return "", false
	}
	topic, err := models.ParseTopic(val)
	if err != nil {
		r.logger.Printf("verdict cache: ignoring %v", err)
		return "", false
	}
	return topic, true
}

func (r *RedisCache) Set(ctx context.Context, key string, topic models.Topic) {
	if err := r.client.Set(ctx, verdictKeyPrefix+key, string(topic), r.ttl).Err(); err != nil {
		r.logger.Printf("verdict cache set: %v", err)
	}
}
