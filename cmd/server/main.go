package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/voxel-terrain/internal/api"
	"github.com/annel0/voxel-terrain/internal/auth"
	"github.com/annel0/voxel-terrain/internal/cache"
	"github.com/annel0/voxel-terrain/internal/config"
	"github.com/annel0/voxel-terrain/internal/eventbus"
	"github.com/annel0/voxel-terrain/internal/logging"
	"github.com/annel0/voxel-terrain/internal/observability"
	"github.com/annel0/voxel-terrain/internal/render"
	"github.com/annel0/voxel-terrain/internal/storage"
	tsync "github.com/annel0/voxel-terrain/internal/sync"
	"github.com/annel0/voxel-terrain/internal/worker"
	"github.com/annel0/voxel-terrain/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $VOXEL_CONFIG)")
	hashKey := flag.String("hash-key", "", "напечатать bcrypt хеш ключа редактора и выйти")
	genSecret := flag.Bool("gen-secret", false, "напечатать новый секрет для server.auth.secret и выйти")
	flag.Parse()

	if *hashKey != "" {
		hash, err := auth.HashKey(*hashKey)
		if err != nil {
			log.Fatalf("❌ Ошибка хеширования: %v", err)
		}
		fmt.Println(hash)
		return
	}
	if *genSecret {
		fmt.Println(auth.GenerateSecureSecret())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.LogDir = cfg.Logging.Dir
	if err := logging.InitDefaultLogger("terrain"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	logManager := logging.GetLoggerManager()
	logManager.SetDefaultLevels(logging.ParseLevel(cfg.Logging.Console), logging.ParseLevel(cfg.Logging.File))
	defer logManager.CloseAll()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logManager.CloseAll()
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	role, err := cfg.World.WorldRole()
	if err != nil {
		return err
	}
	density, err := cfg.World.Density()
	if err != nil {
		return err
	}
	logging.Info("🌍 Мир %v чанков, роль %s, шум %s, seed %d", cfg.World.Size(), role, cfg.World.Noise, cfg.World.Seed)

	// === ТРАССИРОВКА ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logging.Warn("Ошибка остановки трассировки: %v", err)
			}
		}()
	}

	// === ХРАНИЛИЩЕ ===
	var store *storage.WorldStorage
	switch {
	case cfg.Storage.InMemory:
		store, err = storage.NewInMemoryWorldStorage()
	case cfg.Storage.Path != "":
		store, err = storage.NewWorldStorageWithLogger(cfg.Storage.Path, logging.GetStorageLogger())
	}
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logging.Warn("Ошибка закрытия хранилища: %v", err)
			}
		}()
		logging.Info("💾 Хранилище чанков: %s", store.Path())
	}

	chunks, err := newChunkStore(ctx, cfg, store)
	if err != nil {
		return err
	}
	if closer, ok := chunks.(*cache.ChunkCache); ok {
		defer closer.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ПУЛ ВОРКЕРОВ ===
	size := cfg.Workers.Count
	if size <= 0 {
		if cfg.Workers.Reserved > 0 {
			size = worker.SizeFor(worker.CoreCount(), cfg.Workers.Reserved)
		} else {
			size = worker.DefaultSize(role == world.RoleServer)
		}
	}
	pool := worker.NewPool(size)
	defer func() {
		logging.Debug("Пул остановлен, выполнено задач: %d", pool.Close())
	}()

	opts := world.Options{
		Size:        cfg.World.Size(),
		Role:        role,
		Seed:        cfg.World.Seed,
		Density:     density,
		RemeshDelay: cfg.World.RemeshDelay(),
		Metrics:     world.NewMetrics(registry),
	}
	if chunks != nil {
		opts.Source = chunks
	}
	terrain := world.NewTerrain(pool, opts)

	// === ШИНА СОБЫТИЙ ===
	bus, err := newBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	exporter := eventbus.NewMetricsExporter(bus, registry, 5*time.Second)
	exporter.Start()
	defer exporter.Stop()

	if cfg.Server.Debug {
		if sub, err := eventbus.StartLoggingListener(bus); err == nil {
			defer sub.Unsubscribe()
		}
	}
	nodeID := cfg.Sync.Node()
	publisher := eventbus.NewBlockChangePublisher(bus, nodeID)
	publisher.Attach(terrain)

	if cfg.Sync.Enabled {
		syncManager, err := tsync.NewSyncManager(tsync.SyncConfig{
			NodeID:     nodeID,
			Bus:        bus,
			Target:     terrain,
			BatchSize:  cfg.Sync.BatchSize,
			FlushEvery: cfg.Sync.FlushInterval(),
			Compress:   cfg.Sync.Compress,
		})
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		defer syncManager.Stop()
	}

	// === REST API ===
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	issuer, editors, err := newEditorAuth(cfg.Server.Auth)
	if err != nil {
		return err
	}
	meshes := render.NewRecorder()
	restServer := api.NewRestServer(api.Config{
		Port:     fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Terrain:  terrain,
		Meshes:   meshes,
		Bus:      bus,
		Registry: registry,
		Service:  "terrain_api",
		Auth:     issuer,
		Editors:  editors,
	})
	apiErr := make(chan error, 1)
	go func() { apiErr <- restServer.Start() }()

	// === ПРЕДГЕНЕРАЦИЯ ===
	started := time.Now()
	if err := terrain.Generate(ctx); err != nil {
		return fmt.Errorf("генерация мира: %w", err)
	}
	stats := terrain.Stats()
	logging.Info("✅ Мир готов за %v: %d чанков", time.Since(started).Round(time.Millisecond), stats.Chunks)
	if err := publisher.PublishWorldReady(ctx, stats); err != nil {
		logging.Warn("Событие готовности мира не отправлено: %v", err)
	}

	// === ТИКИ ===
	tickErr := tickLoop(ctx, terrain, meshes, cfg.World.TickInterval(), apiErr)

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Ошибка остановки REST API: %v", err)
	}
	if chunks != nil && cfg.Storage.SaveOnExit {
		if err := terrain.Save(chunks); err != nil {
			logging.Error("Ошибка сохранения мира: %v", err)
		} else {
			logging.Info("💾 Мир сохранён")
		}
	}
	if err := terrain.Close(shutdownCtx); err != nil {
		logging.Warn("Ошибка освобождения чанков: %v", err)
	}
	return tickErr
}

// newEditorAuth собирает издателя токенов и редакторов из конфигурации
func newEditorAuth(cfg config.AuthConfig) (*auth.TokenIssuer, auth.EditorRepository, error) {
	if !cfg.Enabled() {
		logging.Warn("⚠️ server.auth.secret не задан: изменение блоков через API открыто")
		return nil, nil, nil
	}
	issuer, err := auth.NewTokenIssuer(cfg.Secret, cfg.TokenTTL())
	if err != nil {
		return nil, nil, fmt.Errorf("auth: %w", err)
	}
	editors := auth.NewMemoryEditorRepo()
	for _, e := range cfg.Editors {
		if err := editors.AddEditor(e.Name, e.KeyHash); err != nil {
			return nil, nil, fmt.Errorf("редактор %q: %w", e.Name, err)
		}
	}
	logging.Info("🔑 Токены редакторов включены: %d учётных записей", editors.Len())
	return issuer, editors, nil
}

// newChunkStore ставит Redis кеш перед хранилищем, если он настроен
func newChunkStore(ctx context.Context, cfg *config.Config, store *storage.WorldStorage) (cache.ChunkStore, error) {
	if store == nil {
		return nil, nil
	}
	if !cfg.Cache.Enabled() {
		return store, nil
	}

	cacheCfg := cache.CacheConfig{
		RedisURL:      cfg.Cache.RedisURL,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		TTL:           cfg.Cache.TTL(),
		KeyPrefix:     cfg.Cache.KeyPrefix,
	}
	hot, err := cache.NewRedisCache(cacheCfg)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	var invalidator cache.CacheInvalidator
	if cfg.Cache.Invalidate {
		inv, err := cache.NewNATSInvalidator(cache.InvalidatorConfig{NATSURL: cfg.EventBus.URL}, uuid.NewString())
		if err != nil {
			_ = hot.Close()
			return nil, fmt.Errorf("cache invalidator: %w", err)
		}
		invalidator = inv
	}

	chunkCache := cache.NewChunkCache(hot, store, invalidator, cacheCfg)
	if err := chunkCache.Subscribe(ctx); err != nil {
		_ = chunkCache.Close()
		return nil, fmt.Errorf("cache subscribe: %w", err)
	}
	logging.Info("⚡ Кеш чанков Redis %s (TTL %v)", cfg.Cache.RedisURL, cacheCfg.TTL)
	return chunkCache, nil
}

// newBus выбирает JetStream при заданном URL, иначе шину в памяти процесса
func newBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("eventbus: %w", err)
	}
	logging.Info("📨 JetStream %s, поток %s", cfg.URL, cfg.Stream)
	return bus, nil
}

// tickLoop выгружает готовые меши каждый тик и раз в секунду обновляет метрики мира
func tickLoop(ctx context.Context, terrain *world.Terrain, consumer world.MeshConsumer, interval time.Duration, apiErr <-chan error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	statsEvery := int(time.Second / interval)
	if statsEvery < 1 {
		statsEvery = 1
	}

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			logging.Info("📡 Получен сигнал завершения")
			return nil
		case err := <-apiErr:
			if err != nil {
				return err
			}
			return nil
		case <-ticker.C:
			if n := terrain.Update(consumer); n > 0 {
				logging.Trace("Выгружено мешей: %d", n)
			}
			if tick%statsEvery == 0 {
				terrain.Stats()
			}
		}
	}
}
