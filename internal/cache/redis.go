package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache хранит котировки в Redis с ограниченным временем жизни.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache создаёт кэш, подключённый к Redis по указанному адресу.
func NewRedisCache(addr string) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{client: rdb}
}

// Get возвращает значение ключа; промах и ошибка соединения неразличимы.
func (r *RedisCache) Get(key string) (string, bool) {
	val, err := r.client.Get(context.Background(), key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set сохраняет значение ключа с указанным TTL.
func (r *RedisCache) Set(key string, value string, ttl time.Duration) error {
	return r.client.Set(context.Background(), key, value, ttl).Err()
}

// Close закрывает соединение с Redis.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
