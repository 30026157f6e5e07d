package voxel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-terrain/internal/world/block"
)

// solidShell источник, где всё за пределами сетки камень, а свет задан константой
type solidShell struct {
	*Grid
	light uint8
}

func (s solidShell) BlockAt(x, y, z int) block.Block {
	if !s.InBounds(x, y, z) {
		return block.STONE
	}
	return s.Grid.BlockAt(x, y, z)
}

func (s solidShell) SunlightAt(_, _, _ int) uint8 { return s.light }

func buildGrid(g *Grid) (*MeshBuilder, *MeshBuilder) {
	opaque, translucent := NewMeshBuilder(), NewMeshBuilder()
	g.BuildMesh(mgl32.Vec3{}, opaque, translucent)
	return opaque, translucent
}

func TestSingleBlockEmitsSixFaces(t *testing.T) {
	g := NewGrid(1, 1, 1)
	g.Set(0, 0, 0, block.STONE)

	opaque, translucent := buildGrid(g)
	data := opaque.Data()

	assert.Equal(t, 24, data.VertexCount())
	assert.Equal(t, 36, data.IndexCount)
	assert.Len(t, data.Colors, 24*4)
	assert.Len(t, data.Normals, 24*3)
	assert.Len(t, data.Lighting, 24*2)
	assert.True(t, translucent.Data().Empty())

	// без соседей и при полном свете затенения нет
	for v := 0; v < data.VertexCount(); v++ {
		assert.Equal(t, float32(0), data.Lighting[v*2])
	}
}

func TestEnclosedBlockEmitsNothing(t *testing.T) {
	g := NewGrid(3, 3, 3)
	g.Fill(func(_, _, _ int) block.Block { return block.STONE })

	assert.Equal(t, uint8(0), VisibleFaces(g, 1, 1, 1))

	src := solidShell{Grid: g, light: MaxLight}
	opaque, translucent := NewMeshBuilder(), NewMeshBuilder()
	BuildMesh(src, mgl32.Vec3{}, opaque, translucent)
	assert.Equal(t, 0, opaque.VertexCount())
	assert.Equal(t, 0, translucent.VertexCount())
}

func TestFaceWinding(t *testing.T) {
	g := NewGrid(1, 1, 1)
	g.Set(0, 0, 0, block.STONE)
	opaque, _ := buildGrid(g)
	data := opaque.Data()

	pos := func(i uint32) mgl32.Vec3 {
		return mgl32.Vec3{data.Positions[i*3], data.Positions[i*3+1], data.Positions[i*3+2]}
	}
	for tri := 0; tri < data.IndexCount; tri += 3 {
		a, b, c := data.Indices[tri], data.Indices[tri+1], data.Indices[tri+2]
		n := mgl32.Vec3{data.Normals[a*3], data.Normals[a*3+1], data.Normals[a*3+2]}
		cross := pos(b).Sub(pos(a)).Cross(pos(c).Sub(pos(a)))
		assert.Greater(t, cross.Dot(n), float32(0), "треугольник %d должен смотреть наружу", tri/3)
	}
}

func findQuad(data MeshData, normal, firstCorner mgl32.Vec3) (int, bool) {
	for q := 0; q < data.VertexCount()/4; q++ {
		v := q * 4
		n := mgl32.Vec3{data.Normals[v*3], data.Normals[v*3+1], data.Normals[v*3+2]}
		p := mgl32.Vec3{data.Positions[v*3], data.Positions[v*3+1], data.Positions[v*3+2]}
		if n.ApproxEqual(normal) && p.ApproxEqual(firstCorner) {
			return q, true
		}
	}
	return 0, false
}

func TestAmbientOcclusionSideNeighbor(t *testing.T) {
	g := NewGrid(3, 2, 3)
	g.Set(1, 0, 1, block.STONE)
	g.Set(0, 1, 1, block.STONE)

	opaque, _ := buildGrid(g)
	data := opaque.Data()

	q, ok := findQuad(data, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 1, 1})
	require.True(t, ok)
	for i := 0; i < 4; i++ {
		v := q*4 + i
		x := data.Positions[v*3]
		if x == 1 {
			assert.Equal(t, AOPartial, data.Lighting[v*2], "вершина у соседа затенена")
		} else {
			assert.Equal(t, float32(0), data.Lighting[v*2])
		}
		assert.Equal(t, FacePosY.Directional(), data.Lighting[v*2+1])
	}
}

func TestQuadFlipOnAODiagonal(t *testing.T) {
	g := NewGrid(3, 2, 3)
	g.Set(1, 0, 1, block.STONE)
	g.Set(0, 1, 0, block.STONE) // затеняет только угол (1,1,1)

	opaque, _ := buildGrid(g)
	data := opaque.Data()

	q, ok := findQuad(data, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 1, 1})
	require.True(t, ok)
	base := uint32(q * 4)
	assert.Equal(t, AOPartial, data.Lighting[base*2])
	assert.Equal(t, base+1, data.Indices[q*6], "квад разбит по диагонали 1-3")

	// без затенения разбиение по умолчанию
	g.Set(0, 1, 0, block.AIR)
	opaque, _ = buildGrid(g)
	data = opaque.Data()
	q, ok = findQuad(data, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 1, 1})
	require.True(t, ok)
	assert.Equal(t, uint32(q*4), data.Indices[q*6])
}

func TestAmbientOcclusionValues(t *testing.T) {
	assert.Equal(t, float32(0), AmbientOcclusion(false, false, false))
	assert.Equal(t, AOPartial, AmbientOcclusion(true, false, false))
	assert.Equal(t, AOPartial, AmbientOcclusion(false, true, true))
	assert.Equal(t, AOFull, AmbientOcclusion(true, true, true))
}

func TestShadeBlendsLight(t *testing.T) {
	assert.Equal(t, float32(1), Shade(0, 0))
	assert.Equal(t, float32(0), Shade(0, MaxLight))
	assert.Equal(t, AOFull, Shade(AOFull, MaxLight))
	assert.InDelta(t, 1-16.0/31, Shade(0.3, 16), 1e-6)
	// значения выше максимума ограничиваются
	assert.Equal(t, float32(0), Shade(0, 200))
}

func TestDarkSourceShadesFully(t *testing.T) {
	g := NewGrid(1, 1, 1)
	g.Set(0, 0, 0, block.STONE)
	opaque := NewMeshBuilder()
	AppendBlock(darkGrid{g}, 0, 0, 0, AllFaces, mgl32.Vec3{}, opaque, nil)
	data := opaque.Data()
	require.Equal(t, 24, data.VertexCount())
	for v := 0; v < 24; v++ {
		assert.Equal(t, float32(1), data.Lighting[v*2])
	}
}

type darkGrid struct{ *Grid }

func (darkGrid) SunlightAt(_, _, _ int) uint8 { return 0 }

func TestTranslucentCulling(t *testing.T) {
	g := NewGrid(3, 1, 1)
	g.Set(0, 0, 0, block.New(block.Glass))
	g.Set(1, 0, 0, block.New(block.Glass))
	g.Set(2, 0, 0, block.STONE)

	// стекло рядом со стеклом общую грань не выводит
	assert.Zero(t, VisibleFaces(g, 0, 0, 0)&(1<<FacePosX))
	// грань стекла к камню скрыта, грань камня к стеклу видна
	assert.Zero(t, VisibleFaces(g, 1, 0, 0)&(1<<FacePosX))
	assert.NotZero(t, VisibleFaces(g, 2, 0, 0)&(1<<FaceNegX))

	opaque, translucent := buildGrid(g)
	assert.Equal(t, 6*4, opaque.VertexCount())
	assert.Equal(t, (5+4)*4, translucent.VertexCount())

	alpha := translucent.Data().Colors[3]
	assert.Equal(t, block.New(block.Glass).Alpha(), alpha)
}

func TestMeshIdempotent(t *testing.T) {
	g := NewGrid(8, 8, 8)
	g.Fill(func(x, y, z int) block.Block {
		if (x*7+y*13+z*3)%5 < 2 {
			return block.NewColored(block.Dirt, uint8(x*30), uint8(y*30), uint8(z*30))
		}
		return block.AIR
	})

	first, _ := buildGrid(g)
	second, _ := buildGrid(g)
	assert.Equal(t, first.Data(), second.Data())

	// повторное построение в тот же построитель
	first.Reset()
	g.BuildMesh(mgl32.Vec3{}, first, nil)
	assert.Equal(t, second.Data(), first.Data())
}

func TestGridBoundsSafe(t *testing.T) {
	g := NewGrid(4, 4, 4)
	assert.Equal(t, block.AIR, g.Get(-1, 0, 0))
	assert.Equal(t, block.AIR, g.Get(0, 4, 0))
	assert.False(t, g.Set(4, 0, 0, block.STONE))

	require.True(t, g.Set(1, 2, 3, block.STONE))
	idx := g.Index(1, 2, 3)
	x, y, z := g.Coords(idx)
	assert.Equal(t, []int{1, 2, 3}, []int{x, y, z})
	assert.Equal(t, block.STONE, g.At(idx))
}

func TestGridDoubleDisposePanics(t *testing.T) {
	g := NewGrid(2, 2, 2)
	g.Dispose()
	assert.True(t, g.Disposed())
	assert.Panics(t, g.Dispose)
}

func BenchmarkBuildMesh(b *testing.B) {
	g := NewGrid(32, 32, 32)
	g.Fill(func(x, y, z int) block.Block {
		if y < 16+(x*z)%8 {
			return block.STONE
		}
		return block.AIR
	})
	opaque, translucent := NewDynamicMeshBuilder(4096), NewDynamicMeshBuilder(64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		opaque.Reset()
		translucent.Reset()
		g.BuildMesh(mgl32.Vec3{}, opaque, translucent)
	}
}
