package world

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/annel0/voxel-terrain/internal/logging"
	"github.com/annel0/voxel-terrain/internal/worker"
)

// Action фоновое действие над чанком
type Action int

const (
	ActionPopulate Action = iota
	ActionShape
	ActionLight
	ActionBuildMesh
)

func (a Action) String() string {
	switch a {
	case ActionPopulate:
		return "populate"
	case ActionShape:
		return "shape"
	case ActionLight:
		return "light"
	case ActionBuildMesh:
		return "build_mesh"
	default:
		return "unknown"
	}
}

// chunkTask пара (чанк, действие) в очереди воркера
type chunkTask struct {
	terrain *Terrain
	chunk   *Chunk
	action  Action
}

// Execute реализует worker.Task
func (task chunkTask) Execute() {
	defer task.chunk.beingWorkedOn.Store(false)
	if task.chunk.Disposed() {
		return
	}
	started := time.Now()
	task.terrain.run(task.chunk, task.action)
	task.terrain.metrics.observeTask(task.action, started)
}

var _ worker.Task = chunkTask{}

// dispatch ставит действие в пул, если над чанком сейчас ничего не выполняется
func (t *Terrain) dispatch(c *Chunk, action Action) bool {
	if t.closed.Load() || t.pool == nil {
		return false
	}
	if !c.beingWorkedOn.CompareAndSwap(false, true) {
		return false
	}
	if err := t.pool.Submit(chunkTask{terrain: t, chunk: c, action: action}); err != nil {
		c.beingWorkedOn.Store(false)
		logging.Warn("Не удалось поставить %s для чанка %v: %v", action, c.Index, err)
		return false
	}
	return true
}

// run выполняет действие в потоке воркера
func (t *Terrain) run(c *Chunk, action Action) {
	switch action {
	case ActionPopulate:
		t.populate(c)
	case ActionShape:
		t.generator.Shape(c)
		c.advance(StateUnlit)
	case ActionLight:
		if c.State() == StateUnlit {
			if c.CanProcess() {
				c.Lighting.InitialPass()
			}
			return
		}
		c.Lighting.Process()
	case ActionBuildMesh:
		if c.BuildMesh() {
			t.finished.Push(c)
		}
	}
}

func (t *Terrain) populate(c *Chunk) {
	loaded := false
	if t.source != nil {
		blocks, ok, err := t.source.LoadChunk(c.Index)
		switch {
		case err != nil:
			logging.Warn("Чанк %v не загружен, генерируем заново: %v", c.Index, err)
		case ok:
			if err := c.LoadBlocks(blocks); err != nil {
				logging.Warn("Чанк %v: %v", c.Index, err)
			} else {
				loaded = true
			}
		}
	}
	if !loaded {
		t.generator.Populate(c)
	}
	c.advance(StateUnshaped)
	c.invalidateBorders()

	// сервер не строит меши и сразу считает чанк готовым
	if t.role == RoleServer {
		c.advance(StateMeshReady)
	}
}

// runPhase ставит действие для каждого чанка и ждёт опустошения пула
func (t *Terrain) runPhase(ctx context.Context, name string, chunks []*Chunk, action Action) error {
	ctx, span := t.tracer.Start(ctx, "terrain."+name)
	defer span.End()
	span.SetAttributes(
		attribute.String("action", action.String()),
		attribute.Int("chunks", len(chunks)),
	)

	for _, c := range chunks {
		if !t.dispatch(c, action) {
			// чанк ещё занят предыдущей фазой, дожидаемся и повторяем
			if err := t.pool.WaitIdle(ctx); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			if !t.dispatch(c, action) {
				err := fmt.Errorf("phase %s: chunk %v was not dispatched", name, c.Index)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
		}
	}
	if err := t.pool.WaitIdle(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Generate предгенерация мира шагами с барьерами: заполнение, цвета,
// солнечный свет послойно сверху вниз, досчёт света, меши.
func (t *Terrain) Generate(ctx context.Context) error {
	if t.pool == nil {
		return fmt.Errorf("terrain: worker pool is not configured")
	}
	ctx, span := t.tracer.Start(ctx, "terrain.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("role", t.role.String()),
		attribute.Int("chunks", t.ChunkCount()),
	)

	start := time.Now()
	chunks := t.Chunks()
	logging.Info("🌍 Предгенерация %d чанков (%s, %d воркеров)", len(chunks), t.role, t.pool.Size())

	if err := t.runPhase(ctx, "populate", chunks, ActionPopulate); err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	logging.Debug("Заполнение завершено за %v", time.Since(start))

	if t.role == RoleClient {
		if err := t.runPhase(ctx, "shape", chunks, ActionShape); err != nil {
			return fmt.Errorf("shape: %w", err)
		}

		// слой за слоем сверху вниз: верхний сосед всегда освещён раньше
		for y := t.size.Y - 1; y >= 0; y-- {
			layer := make([]*Chunk, 0, t.size.X*t.size.Z)
			for _, c := range chunks {
				if c.Index.Y == y {
					layer = append(layer, c)
				}
			}
			if err := t.runPhase(ctx, "light", layer, ActionLight); err != nil {
				return fmt.Errorf("light layer %d: %w", y, err)
			}
		}

		rounds, err := t.settleLighting(ctx, chunks)
		if err != nil {
			return fmt.Errorf("settle lighting: %w", err)
		}
		logging.Debug("Свет сошёлся за %d доп. проходов", rounds)

		if err := t.runPhase(ctx, "mesh", chunks, ActionBuildMesh); err != nil {
			return fmt.Errorf("build mesh: %w", err)
		}
	}

	t.ready.Store(true)
	t.Stats()
	logging.Info("✅ Мир готов за %v", time.Since(start))
	return nil
}

// settleLighting повторяет проходы света, пока у всех чанков не опустеют очереди
func (t *Terrain) settleLighting(ctx context.Context, chunks []*Chunk) (int, error) {
	rounds := 0
	for {
		var dirty []*Chunk
		for _, c := range chunks {
			if c.Lighting.IsDirty() {
				dirty = append(dirty, c)
			}
		}
		if len(dirty) == 0 {
			return rounds, nil
		}
		rounds++
		if err := t.runPhase(ctx, "relight", dirty, ActionLight); err != nil {
			return rounds, err
		}
	}
}

// Update вызывается потребителем раз в тик: выгружает готовые меши и
// с интервалом RemeshDelay ставит в работу грязные чанки.
func (t *Terrain) Update(consumer MeshConsumer) int {
	uploaded := 0
	for {
		c, ok := t.finished.Pop()
		if !ok {
			break
		}
		if c.Disposed() {
			continue
		}
		opaque, translucent := c.swapBuffers()
		if consumer != nil {
			consumer.CreateOrUpdateMesh(c.Index, opaque, translucent)
		}
		c.advance(StateRenderable)
		t.metrics.observeUpload()
		uploaded++
	}

	if !t.ready.Load() || t.role == RoleServer || t.closed.Load() {
		return uploaded
	}
	now := time.Now()
	if now.Sub(t.lastPoll) < t.remeshDelay {
		return uploaded
	}
	t.lastPoll = now
	t.poll()
	return uploaded
}

// poll ставит в работу только чанки, над которыми сейчас ничего не выполняется
func (t *Terrain) poll() {
	t.chunks.Range(func(_, v any) bool {
		c := v.(*Chunk)
		if c.BeingWorkedOn() || c.Disposed() {
			return true
		}
		switch st := c.State(); {
		case st == StateUnlit:
			if c.CanProcess() {
				t.dispatch(c, ActionLight)
			}
		case st < StateUnlit, st == StateMeshReady:
			// ещё не сгенерирован или ждёт выгрузки
		case c.Lighting.IsDirty():
			t.dispatch(c, ActionLight)
		case c.Dirty():
			c.state.CompareAndSwap(int32(StateRenderable), int32(StateUnbuilt))
			t.dispatch(c, ActionBuildMesh)
		case st == StateUnbuilt:
			t.dispatch(c, ActionBuildMesh)
		}
		return true
	})
}
