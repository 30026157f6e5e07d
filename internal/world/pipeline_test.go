package world

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-terrain/internal/util"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/voxel"
	"github.com/annel0/voxel-terrain/internal/worker"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

type recordedMesh struct {
	opaque, translucent voxel.MeshData
}

// meshRecorder копирует выгруженные меши
type meshRecorder struct {
	mu      sync.Mutex
	meshes  map[vec.Vec3]recordedMesh
	uploads int
}

func newMeshRecorder() *meshRecorder {
	return &meshRecorder{meshes: make(map[vec.Vec3]recordedMesh)}
}

func (r *meshRecorder) CreateOrUpdateMesh(index vec.Vec3, opaque, translucent voxel.MeshData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meshes[index] = recordedMesh{opaque: opaque.Clone(), translucent: translucent.Clone()}
	r.uploads++
}

func newPipelineTerrain(t *testing.T, role Role, size vec.Vec3, opts Options) (*Terrain, *worker.Pool) {
	t.Helper()
	pool := worker.NewPool(2)
	t.Cleanup(func() { pool.Close() })

	opts.Size = size
	opts.Role = role
	opts.Seed = 7
	if opts.Density == nil {
		opts.Density = util.FlatDensity{Height: 40}
	}
	return NewTerrain(pool, opts), pool
}

// pump крутит тики, пока мир не придёт в покой
func pump(t *testing.T, tr *Terrain, pool *worker.Pool, consumer MeshConsumer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := 0; i < 500; i++ {
		tr.Update(consumer)
		require.NoError(t, pool.WaitIdle(ctx))
		if settled(tr) {
			return
		}
	}
	t.Fatalf("мир не пришёл в покой: %+v", tr.Stats())
}

func settled(tr *Terrain) bool {
	for _, c := range tr.Chunks() {
		if c.State() != StateRenderable || c.Dirty() || c.Lighting.IsDirty() || c.BeingWorkedOn() {
			return false
		}
	}
	return tr.finished.Len() == 0
}

func TestGenerateClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	tr, pool := newPipelineTerrain(t, RoleClient, vec.Vec3{X: 2, Y: 2, Z: 2}, Options{Metrics: metrics})

	require.NoError(t, tr.Generate(context.Background()))
	assert.True(t, tr.IsReady())
	for _, c := range tr.Chunks() {
		assert.Equal(t, StateMeshReady, c.State(), "чанк %v", c.Index)
		assert.True(t, c.SunlightReady())
	}
	assert.Equal(t, 8, tr.finished.Len())

	rec := newMeshRecorder()
	assert.Equal(t, 8, tr.Update(rec))
	pump(t, tr, pool, rec)

	// нижний слой сплошной и со всех сторон закрыт камнем за границей мира,
	// поверхность в верхнем
	assert.True(t, rec.meshes[vec.Vec3{Y: 0}].opaque.Empty())
	assert.False(t, rec.meshes[vec.Vec3{Y: 1}].opaque.Empty())

	assert.Equal(t, 39, tr.HighestY(5, 5))
	assert.Equal(t, uint8(MaxSunlight), tr.SunlightAt(5, 40, 5))
	assert.Equal(t, uint8(0), tr.SunlightAt(5, 20, 5))
	assert.True(t, tr.GetBlockSafe(5, 0, 5).Equal(block.New(block.Bedrock)))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(8), values["terrain_mesh_uploads_total"])
	assert.GreaterOrEqual(t, values["terrain_tasks_total"], float64(8*4))
}

func TestGenerateServerSkipsMeshing(t *testing.T) {
	tr, _ := newPipelineTerrain(t, RoleServer, vec.Vec3{X: 2, Y: 1, Z: 1}, Options{Density: util.FlatDensity{Height: 20}})

	require.NoError(t, tr.Generate(context.Background()))
	rec := newMeshRecorder()
	assert.Zero(t, tr.Update(rec))
	for _, c := range tr.Chunks() {
		assert.Equal(t, StateMeshReady, c.State())
		assert.False(t, c.SunlightReady())
	}
	assert.Zero(t, rec.uploads)

	// правки на сервере не копят запросы освещения
	require.False(t, tr.GetBlockSafe(3, 19, 3).IsAir())
	require.True(t, tr.RemoveBlock(3, 19, 3))
	assert.True(t, tr.GetBlockSafe(3, 19, 3).IsAir())
	require.True(t, tr.SetBlock(31, 20, 3, block.New(block.Stone)), "блок на границе соседнего чанка")
	for _, c := range tr.Chunks() {
		assert.False(t, c.Lighting.IsDirty(), "чанк %v", c.Index)
		assert.Equal(t, StateMeshReady, c.State())
	}
	assert.Zero(t, tr.Update(rec))
}

func TestEditRemeshMatchesFromScratch(t *testing.T) {
	tr, pool := newPipelineTerrain(t, RoleClient, vec.Vec3{X: 2, Y: 2, Z: 1}, Options{})
	require.NoError(t, tr.Generate(context.Background()))
	rec := newMeshRecorder()
	pump(t, tr, pool, rec)
	before := rec.uploads

	// шахта у границы чанков и перекрытие над ней
	for y := 39; y >= 30; y-- {
		require.True(t, tr.RemoveBlock(31, y, 4))
	}
	require.True(t, tr.SetBlock(30, 45, 4, block.New(block.Stone)))
	pump(t, tr, pool, rec)
	assert.Greater(t, rec.uploads, before)

	// пересчёт с нуля по тем же блокам
	fresh := NewTerrain(nil, Options{Size: tr.Size()})
	for _, c := range tr.Chunks() {
		fc, _ := fresh.ChunkAt(c.Index)
		require.NoError(t, fc.LoadBlocks(c.ExportBlocks()))
		fc.advance(StateUnlit)
	}
	lightFromScratch(t, fresh)
	assert.Equal(t, sunlightOf(fresh), sunlightOf(tr))

	for _, fc := range fresh.Chunks() {
		require.True(t, fc.BuildMesh(), "чанк %v", fc.Index)
		opaque, translucent := fc.swapBuffers()
		got := rec.meshes[fc.Index]
		assert.Equal(t, opaque.Clone(), got.opaque, "меш чанка %v", fc.Index)
		assert.Equal(t, translucent.Clone(), got.translucent)
	}
}

func TestGenerateLoadsFromSource(t *testing.T) {
	saved := memorySink{}
	blocks := make([]block.Block, ChunkVolume)
	blocks[localIndex(2, 2, 2)] = block.NewColored(block.Glass, 10, 20, 30)
	saved[vec.Vec3{}] = blocks

	tr, _ := newPipelineTerrain(t, RoleClient, vec.Vec3{X: 1, Y: 1, Z: 1}, Options{Source: saved})
	require.NoError(t, tr.Generate(context.Background()))

	got := tr.GetBlockSafe(2, 2, 2)
	assert.Equal(t, block.NewColored(block.Glass, 10, 20, 30), got, "цвета загруженного чанка не перезапекаются")
	assert.True(t, tr.GetBlockSafe(5, 5, 5).IsAir())
}

func TestCloseDisposesChunks(t *testing.T) {
	tr, _ := newPipelineTerrain(t, RoleClient, vec.Vec3{X: 1, Y: 1, Z: 1}, Options{})
	require.NoError(t, tr.Generate(context.Background()))
	require.NoError(t, tr.Close(context.Background()))
	require.NoError(t, tr.Close(context.Background()))

	c, _ := tr.ChunkAt(vec.Vec3{})
	assert.True(t, c.Disposed())
	assert.Zero(t, tr.Update(newMeshRecorder()))
	assert.False(t, tr.SetBlock(1, 1, 1, block.STONE))
}

func TestGenerateRequiresPool(t *testing.T) {
	tr := NewTerrain(nil, Options{})
	assert.Error(t, tr.Generate(context.Background()))
}
