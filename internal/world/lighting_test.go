package world

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

func TestSunlightShaft(t *testing.T) {
	// сплошной камень с одной вертикальной шахтой глубиной 31 блок
	tr := newFilledTerrain(vec.Vec3{X: 1, Y: 1, Z: 1}, func(x, y, z int) block.Block {
		if x == 15 && z == 15 && y >= 1 {
			return block.AIR
		}
		return block.STONE
	})
	lightFromScratch(t, tr)

	c, ok := tr.ChunkAt(vec.Vec3{})
	require.True(t, ok)
	assert.Equal(t, uint8(MaxSunlight), c.Sunlight(15, 31, 15), "верхняя открытая ячейка")
	for y := 1; y < ChunkSize; y++ {
		assert.Equal(t, uint8(MaxSunlight), c.Sunlight(15, y, 15), "свет идёт вниз без затухания, y=%d", y)
	}
	assert.Equal(t, uint8(0), c.Sunlight(15, 0, 15), "дно шахты")
	assert.Equal(t, uint8(0), c.Sunlight(14, 20, 15))
	assert.False(t, c.Lighting.IsDirty())
	assert.True(t, c.SunlightReady())
	assert.Equal(t, StateUnbuilt, c.State())
}

func TestSunlightFloodFill(t *testing.T) {
	// крыша на высоте 20 с одним отверстием над (16,16)
	tr := newFilledTerrain(vec.Vec3{X: 1, Y: 1, Z: 1}, func(x, y, z int) block.Block {
		if y == 20 && !(x == 16 && z == 16) {
			return block.STONE
		}
		if y == 0 {
			return block.STONE
		}
		return block.AIR
	})
	lightFromScratch(t, tr)
	c, _ := tr.ChunkAt(vec.Vec3{})

	assert.Equal(t, uint8(MaxSunlight), c.Sunlight(16, 10, 16), "столб под отверстием")
	assert.Equal(t, uint8(MaxSunlight-1), c.Sunlight(17, 10, 16))
	assert.Equal(t, uint8(MaxSunlight-4), c.Sunlight(20, 10, 16))
	assert.Equal(t, uint8(MaxSunlight-7), c.Sunlight(20, 10, 19))
	assert.Equal(t, uint8(0), c.Sunlight(16, 20, 17), "крыша непрозрачна")
	assert.Equal(t, uint8(MaxSunlight), c.Sunlight(0, 25, 0), "над крышей открытое небо")
	assert.False(t, c.Lighting.IsDirty(), "очереди сходятся")
}

func TestOpenChunkFullyLit(t *testing.T) {
	tr := newFilledTerrain(vec.Vec3{X: 1, Y: 1, Z: 1}, func(_, _, _ int) block.Block { return block.AIR })
	lightFromScratch(t, tr)

	for _, l := range sunlightOf(tr)[vec.Vec3{}] {
		require.Equal(t, uint8(MaxSunlight), l)
	}
}

func TestRemovalMatchesFromScratch(t *testing.T) {
	size := vec.Vec3{X: 1, Y: 1, Z: 1}
	tr := newFilledTerrain(size, stoneBelow(4))
	lightFromScratch(t, tr)

	// перекрываем всё небо плитой на высоте 20, кроме двух отверстий
	slab := func(x, y, z int) bool {
		return y == 20 && !(x == 3 && z == 3) && !(x == 28 && z == 10)
	}
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			if slab(x, 20, z) {
				require.True(t, tr.SetBlock(x, 20, z, block.STONE))
			}
		}
	}
	settle(t, tr)

	expected := newFilledTerrain(size, func(x, y, z int) block.Block {
		if slab(x, y, z) {
			return block.STONE
		}
		return stoneBelow(4)(x, y, z)
	})
	lightFromScratch(t, expected)

	assert.Equal(t, sunlightOf(expected), sunlightOf(tr))
}

// cavityWorld мир 2x2x1: нижние чанки каменные с полостью через границу по X,
// над полостью шахта к небу, закрытая одним блоком-полом
func cavityWorld(withFloor bool) blockFunc {
	return func(x, y, z int) block.Block {
		switch {
		case y >= ChunkSize:
			return block.AIR
		case x >= 20 && x < 44 && y >= 5 && y < 25 && z >= 8 && z < 24:
			return block.AIR
		case x == 31 && z == 16 && y > 26:
			return block.AIR
		case x == 31 && z == 16 && (y == 25 || y == 26):
			if y == 26 && withFloor {
				return block.STONE
			}
			return block.AIR
		default:
			return block.STONE
		}
	}
}

func TestIncrementalMatchesFromScratchAcrossChunks(t *testing.T) {
	size := vec.Vec3{X: 2, Y: 2, Z: 1}
	tr := newFilledTerrain(size, cavityWorld(true))
	lightFromScratch(t, tr)

	// до удаления полость тёмная
	assert.Equal(t, uint8(0), tr.SunlightAt(31, 10, 16))
	assert.Equal(t, uint8(0), tr.SunlightAt(40, 10, 16))

	require.True(t, tr.RemoveBlock(31, 26, 16))
	settle(t, tr)

	expected := newFilledTerrain(size, cavityWorld(false))
	lightFromScratch(t, expected)
	assert.Equal(t, sunlightOf(expected), sunlightOf(tr))

	assert.Equal(t, uint8(MaxSunlight), tr.SunlightAt(31, 6, 16), "столб света в полости")
	assert.Equal(t, uint8(MaxSunlight-9), tr.SunlightAt(40, 6, 16), "свет перешёл в соседний чанк")

	// возвращаем блок, свет должен вернуться к исходному
	require.True(t, tr.SetBlock(31, 26, 16, block.STONE))
	settle(t, tr)

	original := newFilledTerrain(size, cavityWorld(true))
	lightFromScratch(t, original)
	assert.Equal(t, sunlightOf(original), sunlightOf(tr))
}

func TestLightingMarksBorderNeighborsDirty(t *testing.T) {
	size := vec.Vec3{X: 2, Y: 1, Z: 1}
	tr := newFilledTerrain(size, stoneBelow(8))
	lightFromScratch(t, tr)

	// открываем ячейку у границы в левом чанке: свет меняется на грани +X
	require.True(t, tr.RemoveBlock(31, 7, 5))
	right, _ := tr.ChunkAt(vec.Vec3{X: 1})
	right.dirty.Store(false)
	left, _ := tr.ChunkAt(vec.Vec3{})
	assert.True(t, left.Lighting.IsDirty())
	left.Lighting.Process()

	assert.Equal(t, uint8(MaxSunlight), left.Sunlight(31, 7, 5))
	assert.True(t, right.Dirty(), "сосед по изменённой грани должен перестроить меш")
}

func TestLightValuesClamped(t *testing.T) {
	tr := newFilledTerrain(vec.Vec3{X: 1, Y: 1, Z: 1}, stoneBelow(2))
	c, _ := tr.ChunkAt(vec.Vec3{})
	c.Lighting.RequestSet(localIndex(4, 10, 4), 200)
	c.Lighting.Process()
	assert.Equal(t, uint8(MaxSunlight), c.Sunlight(4, 10, 4))
	assert.Equal(t, uint8(0), c.Sunlight(4, 1, 4), "камень не освещается")
	assert.Equal(t, uint8(0), clampLight(-3))
}

func TestCanProcessWaitsForChunkAbove(t *testing.T) {
	tr := newFilledTerrain(vec.Vec3{X: 1, Y: 2, Z: 1}, stoneBelow(10))
	top, _ := tr.ChunkAt(vec.Vec3{Y: 1})
	bottom, _ := tr.ChunkAt(vec.Vec3{})

	assert.True(t, top.CanProcess(), "верхний чанк под открытым небом")
	assert.False(t, bottom.CanProcess())

	top.Lighting.InitialPass()
	assert.True(t, bottom.CanProcess())
}

// checkLightGradient на каждой паре соседних прозрачных ячеек уровни
// отличаются не больше чем на единицу, и ни один уровень не выше максимума
func checkLightGradient(t *testing.T, tr *Terrain) {
	t.Helper()
	size := tr.Size().Scale(ChunkSize)
	inside := func(p vec.Vec3) bool {
		return p.X >= 0 && p.Y >= 0 && p.Z >= 0 && p.X < size.X && p.Y < size.Y && p.Z < size.Z
	}
	for x := 0; x < size.X; x++ {
		for y := 0; y < size.Y; y++ {
			for z := 0; z < size.Z; z++ {
				if tr.GetBlockSafe(x, y, z).Opaque() {
					continue
				}
				l := int(tr.SunlightAt(x, y, z))
				require.LessOrEqual(t, l, MaxSunlight)
				for _, d := range vec.FaceDirections {
					n := vec.Vec3{X: x, Y: y, Z: z}.Add(d)
					if !inside(n) || tr.GetBlockSafe(n.X, n.Y, n.Z).Opaque() {
						continue
					}
					nl := int(tr.SunlightAt(n.X, n.Y, n.Z))
					if l < nl-1 {
						t.Fatalf("(%d,%d,%d)=%d рядом с %v=%d", x, y, z, l, n, nl)
					}
				}
			}
		}
	}
}

func TestFloodFillConvergenceInvariant(t *testing.T) {
	const pocketX, pocketY, pocketZ = 40, 5, 40
	for seed := int64(1); seed <= 3; seed++ {
		rng := rand.New(rand.NewSource(seed))
		heights := make(map[[2]int]int)
		caves := make(map[vec.Vec3]bool)
		for x := 0; x < 2*ChunkSize; x++ {
			for z := 0; z < 2*ChunkSize; z++ {
				heights[[2]int{x, z}] = 20 + rng.Intn(24)
				for y := 12; y < 44; y++ {
					if rng.Intn(8) == 0 {
						caves[vec.Vec3{X: x, Y: y, Z: z}] = true
					}
				}
			}
		}
		tr := newFilledTerrain(vec.Vec3{X: 2, Y: 2, Z: 2}, func(x, y, z int) block.Block {
			if x == pocketX && y == pocketY && z == pocketZ {
				return block.AIR // замкнутая полость без выхода к небу
			}
			if y < heights[[2]int{x, z}] && !caves[vec.Vec3{X: x, Y: y, Z: z}] {
				return block.STONE
			}
			return block.AIR
		})
		lightFromScratch(t, tr)
		checkLightGradient(t, tr)
		assert.Zero(t, tr.SunlightAt(pocketX, pocketY, pocketZ), "seed %d", seed)

		// случайные правки выше полости, затем досчёт очередей
		for i := 0; i < 60; i++ {
			x, y, z := rng.Intn(2*ChunkSize), 12+rng.Intn(2*ChunkSize-12), rng.Intn(2*ChunkSize)
			b := block.AIR
			if i%2 == 0 {
				b = block.STONE
			}
			require.True(t, tr.SetBlock(x, y, z, b))
		}
		settle(t, tr)
		checkLightGradient(t, tr)
		assert.Zero(t, tr.SunlightAt(pocketX, pocketY, pocketZ), "seed %d", seed)
	}
}
