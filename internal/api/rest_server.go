package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-terrain/internal/auth"
	"github.com/annel0/voxel-terrain/internal/eventbus"
	"github.com/annel0/voxel-terrain/internal/logging"
	"github.com/annel0/voxel-terrain/internal/middleware"
	"github.com/annel0/voxel-terrain/internal/render"
	"github.com/annel0/voxel-terrain/internal/world"
)

// RestServer отладочный HTTP API мира
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	terrain    *world.Terrain
	meshes     *render.Recorder
	bus        eventbus.EventBus
	port       string
	metrics    *ServerMetrics
	issuer     *auth.TokenIssuer
	editors    auth.EditorRepository
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string               // адрес для запуска сервера, например ":8088"
	Terrain  *world.Terrain       // обслуживаемый мир
	Meshes   *render.Recorder     // загруженные меши (может быть nil)
	Bus      eventbus.EventBus    // шина событий для статистики (может быть nil)
	Registry *prometheus.Registry // регистр метрик; nil означает дефолтный
	Service  string               // пространство имён HTTP метрик

	// Auth включает токены редакторов для изменяющих запросов; nil отключает проверку
	Auth    *auth.TokenIssuer
	Editors auth.EditorRepository
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Service == "" {
		config.Service = "terrain_api"
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware(config.Service))
	router.Use(middleware.NewRequestLogger().Handler())

	var (
		reg      prometheus.Registerer
		gatherer prometheus.Gatherer
	)
	if config.Registry != nil {
		reg, gatherer = config.Registry, config.Registry
	}
	promMw := middleware.NewPrometheusMiddleware(config.Service, reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	rs := &RestServer{
		router:  router,
		terrain: config.Terrain,
		meshes:  config.Meshes,
		bus:     config.Bus,
		port:    config.Port,
		metrics: NewServerMetrics(),
		issuer:  config.Auth,
		editors: config.Editors,
	}
	rs.httpServer = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rs.setupRoutes()
	return rs
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(corsMiddleware())

	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.GET("/server", rs.handleServerInfo)
	if rs.issuer != nil {
		api.POST("/auth/token", rs.handleIssueToken)
	}

	w := api.Group("/world")
	{
		w.GET("/stats", rs.handleWorldStats)
		w.GET("/chunks", rs.handleListChunks)
		w.GET("/chunks/:x/:y/:z", rs.handleGetChunk)
	}

	// Запросы к блокам только после предгенерации
	ready := w.Group("/")
	ready.Use(rs.readyMiddleware())
	{
		ready.GET("/block", rs.handleGetBlock)
		ready.GET("/column", rs.handleColumn)
		ready.POST("/visible", rs.handleVisibleChunks)
		ready.POST("/raycast", rs.handleRaycast)
		ready.GET("/spawn", rs.handleSpawn)
	}

	edit := ready.Group("/")
	edit.Use(rs.authMiddleware())
	{
		edit.PUT("/block", rs.handleSetBlock)
		edit.DELETE("/block", rs.handleRemoveBlock)
		edit.POST("/block/damage", rs.handleDamageBlock)
	}
}

// Handler корневой http.Handler (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"ready":  rs.terrain.IsReady(),
		"time":   time.Now().Unix(),
	})
}

// handleServerInfo ресурсы процесса
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    rs.metrics.Snapshot(),
	})
}

// Start запускает REST сервер и блокируется до Shutdown
func (rs *RestServer) Start() error {
	logging.Info("🌐 REST API слушает %s", rs.port)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("rest api: %w", err)
	}
	return nil
}

// Shutdown останавливает сервер, дожидаясь активных запросов в пределах ctx
func (rs *RestServer) Shutdown(ctx context.Context) error {
	return rs.httpServer.Shutdown(ctx)
}
