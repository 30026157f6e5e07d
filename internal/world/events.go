package world

import (
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// BlockChange запись об изменении блока
type BlockChange struct {
	Chunk vec.Vec3    `json:"chunk"`
	Block block.Block `json:"block"`
	Index int         `json:"index"`
}

// Position мировая координата изменённого блока
func (bc BlockChange) Position() vec.Vec3 {
	x, y, z := localCoords(bc.Index)
	return vec.ToWorld(bc.Chunk, vec.Vec3{X: x, Y: y, Z: z})
}

// BlockChangeHandler подписчик на изменения блоков
type BlockChangeHandler func(BlockChange)
