package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-terrain/internal/logging"
	"github.com/annel0/voxel-terrain/internal/util"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/voxel"
	"github.com/annel0/voxel-terrain/internal/worker"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// Role роль процесса: сервер не строит меши
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// DefaultRemeshDelay пауза между опросами грязных чанков
const DefaultRemeshDelay = 50 * time.Millisecond

// ChunkSource источник сохранённых чанков
type ChunkSource interface {
	LoadChunk(index vec.Vec3) ([]block.Block, bool, error)
}

// ChunkSink приёмник для сохранения чанков
type ChunkSink interface {
	SaveChunk(index vec.Vec3, blocks []block.Block) error
}

// MeshConsumer потребитель готовых мешей (рендер). Вызывается только из Update,
// данные действительны до следующего построения меша этого чанка.
type MeshConsumer interface {
	CreateOrUpdateMesh(index vec.Vec3, opaque, translucent voxel.MeshData)
}

// Options параметры мира
type Options struct {
	Size        vec.Vec3 // размер мира в чанках
	Role        Role
	Seed        int64
	Density     util.DensityFunc
	RemeshDelay time.Duration
	Source      ChunkSource
	Metrics     *Metrics
}

// Terrain реестр чанков и фоновый конвейер генерации, света и мешей
type Terrain struct {
	size      vec.Vec3
	role      Role
	chunks    sync.Map // vec.Vec3 -> *Chunk
	count     atomic.Int64
	pool      *worker.Pool
	generator *WorldGenerator
	source    ChunkSource
	metrics   *Metrics
	tracer    trace.Tracer

	// finished очередь выдачи готовых мешей, разбирается одним потребителем
	finished    *util.Queue[*Chunk]
	remeshDelay time.Duration
	lastPoll    time.Time

	tracking atomic.Bool
	changeMu sync.RWMutex
	changes  []BlockChange
	handlers []BlockChangeHandler

	ready  atomic.Bool
	closed atomic.Bool
}

// NewTerrain создаёт мир и регистрирует все его чанки. Пул передаётся снаружи.
func NewTerrain(pool *worker.Pool, opts Options) *Terrain {
	if opts.Size.X <= 0 || opts.Size.Y <= 0 || opts.Size.Z <= 0 {
		opts.Size = vec.Vec3{X: 1, Y: 1, Z: 1}
	}
	if opts.RemeshDelay < 0 {
		opts.RemeshDelay = 0
	}

	t := &Terrain{
		size:        opts.Size,
		role:        opts.Role,
		pool:        pool,
		generator:   NewWorldGenerator(opts.Seed, opts.Density, opts.Size.Y*ChunkSize),
		source:      opts.Source,
		metrics:     opts.Metrics,
		tracer:      otel.Tracer("github.com/annel0/voxel-terrain/internal/world"),
		finished:    util.NewQueue[*Chunk](int(opts.Size.X * opts.Size.Y * opts.Size.Z)),
		remeshDelay: opts.RemeshDelay,
	}

	for y := 0; y < opts.Size.Y; y++ {
		for z := 0; z < opts.Size.Z; z++ {
			for x := 0; x < opts.Size.X; x++ {
				t.AddChunk(NewChunk(vec.Vec3{X: x, Y: y, Z: z}, t))
			}
		}
	}
	return t
}

// Size размер мира в чанках
func (t *Terrain) Size() vec.Vec3 {
	return t.size
}

// Role роль мира
func (t *Terrain) Role() Role {
	return t.role
}

// Generator генератор мира
func (t *Terrain) Generator() *WorldGenerator {
	return t.generator
}

// IsReady true после завершения предгенерации
func (t *Terrain) IsReady() bool {
	return t.ready.Load()
}

// AddChunk регистрирует чанк. Повторная регистрация индекса отбрасывается.
func (t *Terrain) AddChunk(c *Chunk) bool {
	if _, loaded := t.chunks.LoadOrStore(c.Index, c); loaded {
		logging.Debug("Чанк %v уже зарегистрирован, дубликат отброшен", c.Index)
		return false
	}
	t.count.Add(1)
	return true
}

// ChunkAt реализует ChunkProvider
func (t *Terrain) ChunkAt(index vec.Vec3) (*Chunk, bool) {
	v, ok := t.chunks.Load(index)
	if !ok {
		return nil, false
	}
	return v.(*Chunk), true
}

// IsAboveWorld реализует ChunkProvider
func (t *Terrain) IsAboveWorld(index vec.Vec3) bool {
	return index.Y >= t.size.Y
}

// ChunkCount число зарегистрированных чанков
func (t *Terrain) ChunkCount() int {
	return int(t.count.Load())
}

// Chunks все чанки, упорядоченные по (Y, Z, X)
func (t *Terrain) Chunks() []*Chunk {
	out := make([]*Chunk, 0, t.ChunkCount())
	t.chunks.Range(func(_, v any) bool {
		out = append(out, v.(*Chunk))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Index, out[j].Index
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
	return out
}

// sentinel блок за пределами заполненного мира: над миром воздух, иначе камень
func (t *Terrain) sentinel(y int) block.Block {
	if y >= t.size.Y*ChunkSize {
		return block.AIR
	}
	return block.STONE
}

// GetBlockSafe блок по мировым координатам, за пределами мира сторожевое значение
func (t *Terrain) GetBlockSafe(x, y, z int) block.Block {
	pos := vec.Vec3{X: x, Y: y, Z: z}
	c, ok := t.ChunkAt(vec.ChunkOf(pos))
	if !ok || c.Disposed() {
		return t.sentinel(y)
	}
	l := vec.LocalOf(pos)
	return c.Block(l.X, l.Y, l.Z)
}

// IsSolidAt true для блоков с коллизией (неизвестное пространство твёрдое)
func (t *Terrain) IsSolidAt(x, y, z int) bool {
	return t.GetBlockSafe(x, y, z).Collides()
}

// SunlightAt уровень солнца по мировым координатам
func (t *Terrain) SunlightAt(x, y, z int) uint8 {
	pos := vec.Vec3{X: x, Y: y, Z: z}
	c, ok := t.ChunkAt(vec.ChunkOf(pos))
	if !ok {
		if y >= t.size.Y*ChunkSize {
			return MaxSunlight
		}
		return 0
	}
	l := vec.LocalOf(pos)
	return c.Sunlight(l.X, l.Y, l.Z)
}

// HighestY высота самого верхнего непустого блока в колонке или -1
func (t *Terrain) HighestY(x, z int) int {
	for cy := t.size.Y - 1; cy >= 0; cy-- {
		pos := vec.Vec3{X: x, Y: cy * ChunkSize, Z: z}
		c, ok := t.ChunkAt(vec.ChunkOf(pos))
		if !ok {
			continue
		}
		l := vec.LocalOf(pos)
		for ly := ChunkSize - 1; ly >= 0; ly-- {
			if !c.Block(l.X, ly, l.Z).IsAir() {
				return cy*ChunkSize + ly
			}
		}
	}
	return -1
}

func (t *Terrain) locate(x, y, z int) (*Chunk, vec.Vec3, bool) {
	pos := vec.Vec3{X: x, Y: y, Z: z}
	c, ok := t.ChunkAt(vec.ChunkOf(pos))
	if !ok || c.Disposed() {
		return nil, vec.Vec3{}, false
	}
	return c, vec.LocalOf(pos), true
}

// SetBlock ставит блок по мировым координатам
func (t *Terrain) SetBlock(x, y, z int, b block.Block) bool {
	c, l, ok := t.locate(x, y, z)
	if !ok {
		return false
	}
	change, ok := c.SetBlock(l.X, l.Y, l.Z, b)
	if ok {
		t.recordChange(change)
	}
	return ok
}

// ApplyBlock ставит блок, пришедший с другого узла. Изменение не попадает в журнал
// и не вызывает подписчиков, поэтому не уходит обратно в шину.
func (t *Terrain) ApplyBlock(x, y, z int, b block.Block) bool {
	c, l, ok := t.locate(x, y, z)
	if !ok {
		return false
	}
	if _, ok = c.SetBlock(l.X, l.Y, l.Z, b); ok {
		t.metrics.observeChange()
	}
	return ok
}

// RemoveBlock заменяет блок воздухом
func (t *Terrain) RemoveBlock(x, y, z int) bool {
	return t.SetBlock(x, y, z, block.AIR)
}

// DamageBlock наносит урон блоку. Возвращает признак разрушения.
func (t *Terrain) DamageBlock(x, y, z, amount int) (destroyed bool, ok bool) {
	c, l, found := t.locate(x, y, z)
	if !found {
		return false, false
	}
	change, destroyed, ok := c.DamageBlock(l.X, l.Y, l.Z, amount)
	if ok {
		t.recordChange(change)
	}
	return destroyed, ok
}

// SetChangeTracking включает запись изменений блоков
func (t *Terrain) SetChangeTracking(enabled bool) {
	t.tracking.Store(enabled)
}

// OnBlockModified добавляет синхронного подписчика на изменения
func (t *Terrain) OnBlockModified(h BlockChangeHandler) {
	t.changeMu.Lock()
	t.handlers = append(t.handlers, h)
	t.changeMu.Unlock()
}

// Changes копия журнала изменений
func (t *Terrain) Changes() []BlockChange {
	t.changeMu.RLock()
	defer t.changeMu.RUnlock()
	return append([]BlockChange(nil), t.changes...)
}

// ClearChanges очищает журнал и возвращает его содержимое
func (t *Terrain) ClearChanges() []BlockChange {
	t.changeMu.Lock()
	defer t.changeMu.Unlock()
	out := t.changes
	t.changes = nil
	return out
}

func (t *Terrain) recordChange(change BlockChange) {
	t.metrics.observeChange()
	if !t.tracking.Load() {
		return
	}
	t.changeMu.Lock()
	t.changes = append(t.changes, change)
	handlers := append([]BlockChangeHandler(nil), t.handlers...)
	t.changeMu.Unlock()

	for _, h := range handlers {
		h(change)
	}
}

// VisibleChunks выведенные чанки, попадающие в пирамиду видимости
func (t *Terrain) VisibleChunks(viewProj mgl32.Mat4) []*Chunk {
	frustum := NewFrustum(viewProj)
	var out []*Chunk
	for _, c := range t.Chunks() {
		if c.State() != StateRenderable {
			continue
		}
		if lo, hi := ChunkBounds(c); frustum.IntersectsAABB(lo, hi) {
			out = append(out, c)
		}
	}
	return out
}

// Stats снимок состояния мира
type Stats struct {
	Role           string         `json:"role"`
	Ready          bool           `json:"ready"`
	Chunks         int            `json:"chunks"`
	ByState        map[string]int `json:"by_state"`
	InFlight       int            `json:"in_flight"`
	Dirty          int            `json:"dirty"`
	LightingDirty  int            `json:"lighting_dirty"`
	RetrievalQueue int            `json:"retrieval_queue"`
	WorkerQueues   []int          `json:"worker_queues,omitempty"`
}

// Stats собирает статистику и обновляет метрики
func (t *Terrain) Stats() Stats {
	counts := make(map[ChunkState]int, len(AllStates))
	s := Stats{
		Role:    t.role.String(),
		Ready:   t.ready.Load(),
		ByState: make(map[string]int, len(AllStates)),
	}
	t.chunks.Range(func(_, v any) bool {
		c := v.(*Chunk)
		s.Chunks++
		counts[c.State()]++
		if c.BeingWorkedOn() {
			s.InFlight++
		}
		if c.Dirty() {
			s.Dirty++
		}
		if c.Lighting.IsDirty() {
			s.LightingDirty++
		}
		return true
	})
	for st, n := range counts {
		s.ByState[st.String()] = n
	}
	s.RetrievalQueue = t.finished.Len()
	if t.pool != nil {
		s.WorkerQueues = t.pool.QueueLengths()
	}
	t.metrics.observeStates(counts, s.RetrievalQueue)
	return s
}

// Save сохраняет все заполненные чанки
func (t *Terrain) Save(sink ChunkSink) error {
	var errs []error
	for _, c := range t.Chunks() {
		if c.State() < StateUnshaped || c.Disposed() {
			continue
		}
		if err := sink.SaveChunk(c.Index, c.ExportBlocks()); err != nil {
			errs = append(errs, fmt.Errorf("chunk %v: %w", c.Index, err))
		}
	}
	return errors.Join(errs...)
}

// Close прекращает постановку задач, ждёт пул (в пределах ctx) и освобождает чанки
func (t *Terrain) Close(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if t.pool != nil {
		err = t.pool.WaitIdle(ctx)
	}
	t.chunks.Range(func(_, v any) bool {
		c := v.(*Chunk)
		if !c.Disposed() {
			c.Dispose()
		}
		return true
	})
	t.finished.Clear()
	logging.Info("Мир закрыт: %d чанков освобождено", t.ChunkCount())
	return err
}
