package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a best-effort read-through accelerator. It is never the source
// of truth: implementations swallow backend errors and report misses, and
// callers must treat every miss as "go to the store".
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	DeletePrefix(ctx context.Context, prefix string)
}

// Select connects to Redis when an address is configured and falls back to
// the no-op cache when it is absent or unreachable, so cache availability
// never affects correctness.
func Select(ctx context.Context, addr string, db int) Cache {
	if addr == "" {
		return Noop{}
	}
	c, err := NewRedis(ctx, addr, db)
	if err != nil {
		log.Printf("cache disabled, redis unreachable: %v", err)
		return Noop{}
	}
	return c
}

type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("cache set %s: %v", key, err)
	}
}

func (c *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache delete: %v", err)
	}
}

func (c *Redis) DeletePrefix(ctx context.Context, prefix string) {
	var cursor uint64
	pattern := prefix + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			log.Printf("cache scan %s: %v", pattern, err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				log.Printf("cache delete pattern %s: %v", pattern, err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Noop is the injected null cache: every read misses, every write is
// dropped.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }

func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}

func (Noop) Delete(ctx context.Context, keys ...string) {}

func (Noop) DeletePrefix(ctx context.Context, prefix string) {}

func QuizKey(quizID int64) string {
	return fmt.Sprintf("quiz:%d", quizID)
}

func QuizQuestionsKey(quizID int64) string {
	return fmt.Sprintf("quiz:%d:questions", quizID)
}

func QuizListKey(admin bool, limit, offset int) string {
	return fmt.Sprintf("quiz:list:admin:%t:limit:%d:offset:%d", admin, limit, offset)
}

const QuizListPrefix = "quiz:list:"
