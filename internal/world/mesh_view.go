package world

import (
	"sync"

	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

const (
	viewSize   = ChunkSize + 2
	viewVolume = viewSize * viewSize * viewSize
)

// chunkView снимок блоков и света чанка с рамкой в один блок от 26 соседей.
// Меш строится по снимку, поэтому блокировки держатся только на время копирования.
type chunkView struct {
	blocks [viewVolume]block.Block
	light  [viewVolume]uint8
}

var viewPool = sync.Pool{
	New: func() any { return new(chunkView) },
}

func acquireView() *chunkView {
	return viewPool.Get().(*chunkView)
}

func releaseView(v *chunkView) {
	viewPool.Put(v)
}

func viewIndex(x, y, z int) int {
	return ((z+1)*viewSize+(y+1))*viewSize + (x + 1)
}

// BlockAt координаты от -1 до ChunkSize включительно
func (v *chunkView) BlockAt(x, y, z int) block.Block {
	return v.blocks[viewIndex(x, y, z)]
}

// SunlightAt координаты от -1 до ChunkSize включительно
func (v *chunkView) SunlightAt(x, y, z int) uint8 {
	return v.light[viewIndex(x, y, z)]
}

// axisRange диапазон координат снимка для смещения соседа по оси
func axisRange(d int) (from, to int) {
	switch d {
	case -1:
		return -1, -1
	case 1:
		return ChunkSize, ChunkSize
	default:
		return 0, ChunkSize - 1
	}
}

// capture копирует чанк и рамку соседей. За пределами мира ставятся
// сторожевые блоки: воздух с полным светом над миром, камень в остальных местах.
func (v *chunkView) capture(c *Chunk) bool {
	if !v.copyFrom(c, vec.Vec3{}) {
		return false
	}
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				off := vec.Vec3{X: dx, Y: dy, Z: dz}
				if nb, ok := c.neighbor(off); ok && v.copyFrom(nb, off) {
					continue
				}
				b, l := block.STONE, uint8(0)
				if c.provider == nil || c.provider.IsAboveWorld(c.Index.Add(off)) {
					b, l = block.AIR, MaxSunlight
				}
				v.fillRegion(off, b, l)
			}
		}
	}
	return true
}

func (v *chunkView) copyFrom(src *Chunk, off vec.Vec3) bool {
	src.mu.RLock()
	defer src.mu.RUnlock()
	if src.grid.Disposed() {
		return false
	}

	x0, x1 := axisRange(off.X)
	y0, y1 := axisRange(off.Y)
	z0, z1 := axisRange(off.Z)
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				si := localIndex(wrap(x), wrap(y), wrap(z))
				di := viewIndex(x, y, z)
				v.blocks[di] = src.grid.At(si)
				v.light[di] = src.Lighting.sun(si)
			}
		}
	}
	return true
}

func (v *chunkView) fillRegion(off vec.Vec3, b block.Block, light uint8) {
	x0, x1 := axisRange(off.X)
	y0, y1 := axisRange(off.Y)
	z0, z1 := axisRange(off.Z)
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				di := viewIndex(x, y, z)
				v.blocks[di] = b
				v.light[di] = light
			}
		}
	}
}
