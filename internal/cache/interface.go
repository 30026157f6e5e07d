package cache

import (
	"context"
	"errors"
	"time"
)

// HotCache быстрый слой ключ-значение перед постоянным хранилищем чанков.
//
// Использование:
//
//	hot, err := NewRedisCache(config)
//	data, err := hot.Get(ctx, "terrain:chunk:0:1:0")
//	err = hot.Set(ctx, key, data, 10*time.Minute)
type HotCache interface {
	// Get возвращает ErrCacheMiss, если ключа нет.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение с TTL. TTL = 0 означает отсутствие истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключи. Отсутствующие ключи не ошибка.
	Delete(ctx context.Context, keys ...string) error

	Close() error
}

// CacheInvalidator рассылает и принимает уведомления об изменённых чанках
// между узлами, у каждого из которых свой HotCache.
type CacheInvalidator interface {
	// PublishInvalidation отправляет уведомление об инвалидации.
	PublishInvalidation(ctx context.Context, key string) error

	// SubscribeInvalidations подписывается на уведомления других узлов.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	Close() error
}

// InvalidationHandler обрабатывает уведомления об инвалидации кеша.
type InvalidationHandler func(key string) error

// CacheMetrics содержит метрики кеша чанков.
type CacheMetrics struct {
	Requests      int64   `json:"requests"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRatio      float64 `json:"hit_ratio"`
	Invalidations int64   `json:"invalidations"`
	Errors        int64   `json:"errors"`
}

// CacheConfig содержит конфигурацию кеша.
type CacheConfig struct {
	// Redis конфигурация
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	PoolSize      int    `yaml:"pool_size"`

	// TTL записей чанков
	TTL time.Duration `yaml:"ttl"`

	// Таймаут одной операции с кешем
	Timeout time.Duration `yaml:"timeout"`

	// Префикс ключей, чтобы несколько миров делили один Redis
	KeyPrefix string `yaml:"key_prefix"`
}

// ErrCacheMiss ключ не найден в кеше
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func (c *CacheConfig) applyDefaults() {
	if c.TTL == 0 {
		c.TTL = 10 * time.Minute
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Second
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "terrain"
	}
}
