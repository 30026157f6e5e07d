package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxel-terrain/internal/util"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Workers   WorkersConfig   `yaml:"workers"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Sync      SyncConfig      `yaml:"sync"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WorldConfig параметры мира
type WorldConfig struct {
	Role          string `yaml:"role"` // client | server
	SizeX         int    `yaml:"size_x"`
	SizeY         int    `yaml:"size_y"`
	SizeZ         int    `yaml:"size_z"`
	Seed          int64  `yaml:"seed"`
	Noise         string `yaml:"noise"` // perlin | simplex | flat
	BaseHeight    int    `yaml:"base_height"`
	HeightScale   int    `yaml:"height_scale"`
	RemeshDelayMs int    `yaml:"remesh_delay_ms"`
	TickRate      int    `yaml:"tick_rate"`
}

// WorkersConfig размер пула. Workers == 0 означает max(ядра − reserved, 2).
type WorkersConfig struct {
	Count    int `yaml:"count"`
	Reserved int `yaml:"reserved"`
}

// StorageConfig хранилище чанков. Пустой Path отключает сохранение.
type StorageConfig struct {
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	SaveOnExit bool   `yaml:"save_on_exit"`
}

// CacheConfig горячий кеш чанков в Redis перед хранилищем.
// Пустой RedisURL отключает кеш.
type CacheConfig struct {
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
	KeyPrefix     string `yaml:"key_prefix"`
	// Рассылать инвалидации через NATS из eventbus.url
	Invalidate bool `yaml:"invalidate"`
}

// Enabled true, если кеш настроен
func (c CacheConfig) Enabled() bool { return c.RedisURL != "" }

// TTL время жизни записи чанка
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// EventBusConfig шина событий. Пустой URL означает шину в памяти.
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

// SyncConfig репликация правок блоков между узлами через шину
type SyncConfig struct {
	Enabled   bool   `yaml:"enabled"`
	NodeID    string `yaml:"node_id"` // по умолчанию имя хоста
	BatchSize int    `yaml:"batch_size"`
	FlushMs   int    `yaml:"flush_ms"`
	Compress  bool   `yaml:"compress"`
}

// FlushInterval период отправки пакетов
func (s SyncConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushMs) * time.Millisecond
}

// Node идентификатор узла для Source событий
func (s SyncConfig) Node() string {
	if s.NodeID != "" {
		return s.NodeID
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "terrain"
}

type ServerConfig struct {
	RESTPort int        `yaml:"rest_port"`
	Debug    bool       `yaml:"debug"`
	Auth     AuthConfig `yaml:"auth"`
}

// AuthConfig токены редакторов для изменяющих запросов API
type AuthConfig struct {
	Secret          string         `yaml:"secret"` // base64, не короче 32 байт; пусто отключает проверку
	TokenTTLMinutes int            `yaml:"token_ttl_minutes"`
	Editors         []EditorConfig `yaml:"editors"`
}

// EditorConfig учётная запись редактора, ключ хранится только как bcrypt хеш
type EditorConfig struct {
	Name    string `yaml:"name"`
	KeyHash string `yaml:"key_hash"`
}

// Enabled включена ли проверка токенов
func (a AuthConfig) Enabled() bool {
	return a.Secret != ""
}

// TokenTTL время жизни токена
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"` // host:port OTLP/HTTP, по умолчанию localhost:4318
}

type LoggingConfig struct {
	Console string `yaml:"console"`
	File    string `yaml:"file"`
	Dir     string `yaml:"dir"`
}

// Default конфигурация по умолчанию
func Default() *Config {
	shape := util.DefaultTerrainShape()
	return &Config{
		World: WorldConfig{
			Role:          world.RoleClient.String(),
			SizeX:         4,
			SizeY:         3,
			SizeZ:         4,
			Seed:          1337,
			Noise:         "perlin",
			BaseHeight:    int(shape.BaseHeight),
			HeightScale:   int(shape.HeightScale),
			RemeshDelayMs: int(world.DefaultRemeshDelay / time.Millisecond),
			TickRate:      20,
		},
		Cache: CacheConfig{
			TTLSeconds: 600,
			KeyPrefix:  "terrain",
		},
		EventBus: EventBusConfig{
			Stream:    "TERRAIN",
			Retention: 24,
			Buffer:    1024,
		},
		Sync: SyncConfig{
			BatchSize: 256,
			FlushMs:   100,
			Compress:  true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxel-terrain",
		},
		Logging: LoggingConfig{
			Console: "INFO",
			File:    "DEBUG",
			Dir:     "logs",
		},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXEL_REST_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Size размер мира в чанках
func (w WorldConfig) Size() vec.Vec3 {
	return vec.Vec3{X: w.SizeX, Y: w.SizeY, Z: w.SizeZ}
}

// WorldRole роль мира из строки
func (w WorldConfig) WorldRole() (world.Role, error) {
	switch w.Role {
	case "", "client":
		return world.RoleClient, nil
	case "server":
		return world.RoleServer, nil
	default:
		return world.RoleClient, fmt.Errorf("неизвестная роль мира %q", w.Role)
	}
}

// RemeshDelay интервал опроса грязных чанков
func (w WorldConfig) RemeshDelay() time.Duration {
	return time.Duration(w.RemeshDelayMs) * time.Millisecond
}

// TickInterval длительность тика
func (w WorldConfig) TickInterval() time.Duration {
	if w.TickRate <= 0 {
		return 50 * time.Millisecond
	}
	return time.Second / time.Duration(w.TickRate)
}

// Density функция плотности по настройкам шума
func (w WorldConfig) Density() (util.DensityFunc, error) {
	shape := util.DefaultTerrainShape()
	if w.BaseHeight > 0 {
		shape.BaseHeight = float64(w.BaseHeight)
	}
	if w.HeightScale > 0 {
		shape.HeightScale = float64(w.HeightScale)
	}
	return util.NewDensity(w.Noise, w.Seed, shape)
}

// Validate проверяет значения, которые нельзя исправить молча
func (c *Config) Validate() error {
	if c.World.SizeX <= 0 || c.World.SizeY <= 0 || c.World.SizeZ <= 0 {
		return fmt.Errorf("размер мира должен быть положительным: %v", c.World.Size())
	}
	if _, err := c.World.WorldRole(); err != nil {
		return err
	}
	if c.World.RemeshDelayMs < 0 {
		return fmt.Errorf("remesh_delay_ms не может быть отрицательным")
	}
	if c.Workers.Count < 0 || c.Workers.Reserved < 0 {
		return fmt.Errorf("размер пула не может быть отрицательным")
	}
	if c.Sync.BatchSize < 0 || c.Sync.FlushMs < 0 {
		return fmt.Errorf("параметры sync не могут быть отрицательными")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds не может быть отрицательным")
	}
	if c.Cache.Enabled() && c.Storage.Path == "" && !c.Storage.InMemory {
		return fmt.Errorf("кеш чанков требует хранилища (storage.path или storage.in_memory)")
	}
	if c.Cache.Invalidate && c.EventBus.URL == "" {
		return fmt.Errorf("cache.invalidate требует eventbus.url")
	}
	if c.Server.Auth.TokenTTLMinutes < 0 {
		return fmt.Errorf("server.auth.token_ttl_minutes не может быть отрицательным")
	}
	for _, e := range c.Server.Auth.Editors {
		if e.Name == "" || e.KeyHash == "" {
			return fmt.Errorf("редактор требует name и key_hash")
		}
	}
	if len(c.Server.Auth.Editors) > 0 && !c.Server.Auth.Enabled() {
		return fmt.Errorf("server.auth.editors заданы без server.auth.secret")
	}
	return nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV VOXEL_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан, используем дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("конфигурация %s: %w", path, err)
	}
	return cfg, nil
}
