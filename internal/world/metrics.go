package world

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-terrain/internal/logging"
)

// Metrics метрики конвейера чанков
type Metrics struct {
	TasksTotal     *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	ChunksByState  *prometheus.GaugeVec
	RetrievalQueue prometheus.Gauge
	MeshUploads    prometheus.Counter
	LightingPasses prometheus.Counter
	BlockChanges   prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil означает без регистрации)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "tasks_total",
			Help:      "Выполненные фоновые действия над чанками.",
		}, []string{"action"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "terrain",
			Name:      "task_duration_seconds",
			Help:      "Длительность фоновых действий над чанками.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"action"}),
		ChunksByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "terrain",
			Name:      "chunks",
			Help:      "Число чанков по стадиям жизненного цикла.",
		}, []string{"state"}),
		RetrievalQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "terrain",
			Name:      "retrieval_queue_length",
			Help:      "Чанки с готовым мешем, ожидающие выгрузки.",
		}),
		MeshUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "mesh_uploads_total",
			Help:      "Меши, переданные потребителю.",
		}),
		LightingPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "lighting_passes_total",
			Help:      "Проходы по очередям освещения.",
		}),
		BlockChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "block_changes_total",
			Help:      "Изменения блоков.",
		}),
	}

	if reg != nil {
		for _, collector := range m.collectors() {
			if err := reg.Register(collector); err != nil {
				// Игнорируем ошибки дублирования метрик
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					logging.Warn("Не удалось зарегистрировать метрику: %v", err)
				}
			}
		}
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TasksTotal, m.TaskDuration, m.ChunksByState,
		m.RetrievalQueue, m.MeshUploads, m.LightingPasses, m.BlockChanges,
	}
}

func (m *Metrics) observeTask(action Action, started time.Time) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(action.String()).Inc()
	m.TaskDuration.WithLabelValues(action.String()).Observe(time.Since(started).Seconds())
	if action == ActionLight {
		m.LightingPasses.Inc()
	}
}

func (m *Metrics) observeStates(counts map[ChunkState]int, retrieval int) {
	if m == nil {
		return
	}
	for _, s := range AllStates {
		m.ChunksByState.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
	m.RetrievalQueue.Set(float64(retrieval))
}

func (m *Metrics) observeUpload() {
	if m == nil {
		return
	}
	m.MeshUploads.Inc()
}

func (m *Metrics) observeChange() {
	if m == nil {
		return
	}
	m.BlockChanges.Inc()
}
