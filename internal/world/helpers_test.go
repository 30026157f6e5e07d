package world

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

type blockFunc func(x, y, z int) block.Block

// newFilledTerrain мир без пула, заполненный функцией от мировых координат
func newFilledTerrain(size vec.Vec3, fn blockFunc) *Terrain {
	tr := NewTerrain(nil, Options{Size: size})
	for _, c := range tr.Chunks() {
		o := c.Origin()
		c.fill(func(x, y, z int) block.Block { return fn(o.X+x, o.Y+y, o.Z+z) })
		c.colorsBaked = true
		c.advance(StateUnlit)
	}
	return tr
}

// lightFromScratch первичный проход сверху вниз и досчёт очередей
func lightFromScratch(t *testing.T, tr *Terrain) {
	t.Helper()
	for y := tr.Size().Y - 1; y >= 0; y-- {
		for _, c := range tr.Chunks() {
			if c.Index.Y != y {
				continue
			}
			require.True(t, c.CanProcess(), "чанк %v", c.Index)
			c.Lighting.InitialPass()
		}
	}
	settle(t, tr)
}

func settle(t *testing.T, tr *Terrain) {
	t.Helper()
	for round := 0; round < 1000; round++ {
		dirty := false
		for _, c := range tr.Chunks() {
			if c.Lighting.IsDirty() {
				dirty = true
				c.Lighting.Process()
			}
		}
		if !dirty {
			return
		}
	}
	t.Fatal("освещение не сошлось")
}

func sunlightOf(tr *Terrain) map[vec.Vec3][]uint8 {
	out := make(map[vec.Vec3][]uint8)
	for _, c := range tr.Chunks() {
		out[c.Index] = c.Lighting.SunlightLevels()
	}
	return out
}

func stoneBelow(height int) blockFunc {
	return func(_, y, _ int) block.Block {
		if y < height {
			return block.STONE
		}
		return block.AIR
	}
}
