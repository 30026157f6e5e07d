package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annel0/voxel-terrain/internal/logging"
	"github.com/annel0/voxel-terrain/internal/storage"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// ChunkStore постоянное хранилище чанков (обычно storage.WorldStorage)
type ChunkStore interface {
	world.ChunkSource
	world.ChunkSink
}

// ChunkCache read-through кеш чанков. Чтение идёт сначала в HotCache, при промахе в
// ChunkStore с последующим заполнением кеша. Запись write-through: сначала в
// хранилище, затем ключ удаляется из кеша и другим узлам рассылается инвалидация.
//
// Ошибки HotCache не ломают загрузку мира: чанк читается из хранилища.
type ChunkCache struct {
	hot         HotCache
	cold        ChunkStore
	invalidator CacheInvalidator
	config      CacheConfig

	requests      atomic.Int64
	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
	errors        atomic.Int64

	closeOnce sync.Once
}

var (
	_ world.ChunkSource = (*ChunkCache)(nil)
	_ world.ChunkSink   = (*ChunkCache)(nil)
)

// NewChunkCache создаёт кеш. invalidator может быть nil (один узел).
func NewChunkCache(hot HotCache, cold ChunkStore, invalidator CacheInvalidator, config CacheConfig) *ChunkCache {
	config.applyDefaults()
	return &ChunkCache{hot: hot, cold: cold, invalidator: invalidator, config: config}
}

// Key ключ чанка в кеше
func (c *ChunkCache) Key(index vec.Vec3) string {
	return fmt.Sprintf("%s:chunk:%d:%d:%d", c.config.KeyPrefix, index.X, index.Y, index.Z)
}

// LoadChunk реализует world.ChunkSource
func (c *ChunkCache) LoadChunk(index vec.Vec3) ([]block.Block, bool, error) {
	c.requests.Add(1)
	key := c.Key(index)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	data, err := c.hot.Get(ctx, key)
	switch {
	case err == nil:
		blocks, derr := storage.DecodeBlocks(data, world.ChunkVolume)
		if derr == nil {
			c.hits.Add(1)
			return blocks, true, nil
		}
		// испорченная запись: выбрасываем и читаем из хранилища
		c.errors.Add(1)
		logging.Warn("Кеш чанка %v повреждён: %v", index, derr)
		_ = c.hot.Delete(ctx, key)
	case !IsCacheMiss(err):
		c.errors.Add(1)
		logging.Warn("Кеш недоступен для чанка %v: %v", index, err)
	}
	c.misses.Add(1)

	blocks, found, err := c.cold.LoadChunk(index)
	if err != nil || !found {
		return blocks, found, err
	}

	if err := c.hot.Set(ctx, key, storage.EncodeBlocks(blocks), c.config.TTL); err != nil {
		c.errors.Add(1)
		logging.Debug("Не удалось закешировать чанк %v: %v", index, err)
	}
	return blocks, true, nil
}

// SaveChunk реализует world.ChunkSink
func (c *ChunkCache) SaveChunk(index vec.Vec3, blocks []block.Block) error {
	if err := c.cold.SaveChunk(index, blocks); err != nil {
		return err
	}

	key := c.Key(index)
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	if err := c.hot.Delete(ctx, key); err != nil {
		c.errors.Add(1)
		logging.Warn("Не удалось удалить чанк %v из кеша: %v", index, err)
	}
	if c.invalidator != nil {
		if err := c.invalidator.PublishInvalidation(ctx, key); err != nil {
			c.errors.Add(1)
			logging.Warn("Инвалидация чанка %v не отправлена: %v", index, err)
		}
	}
	return nil
}

// Subscribe удаляет из локального кеша чанки, изменённые другими узлами
func (c *ChunkCache) Subscribe(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.SubscribeInvalidations(ctx, c.evict)
}

func (c *ChunkCache) evict(key string) error {
	c.invalidations.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()
	return c.hot.Delete(ctx, key)
}

// GetMetrics возвращает снимок метрик кеша
func (c *ChunkCache) GetMetrics() CacheMetrics {
	m := CacheMetrics{
		Requests:      c.requests.Load(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Errors:        c.errors.Load(),
	}
	if total := m.Hits + m.Misses; total > 0 {
		m.HitRatio = float64(m.Hits) / float64(total)
	}
	return m
}

// Close закрывает invalidator и HotCache. Хранилище закрывает владелец.
func (c *ChunkCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.invalidator != nil {
			err = c.invalidator.Close()
		}
		if herr := c.hot.Close(); err == nil {
			err = herr
		}
	})
	return err
}
