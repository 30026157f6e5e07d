package world

import (
	"sync/atomic"

	"github.com/annel0/voxel-terrain/internal/voxel"
)

const maskWords = ChunkVolume / 64

// bitMask атомарная битовая маска по блокам чанка
type bitMask []atomic.Uint64

func newBitMask(bits int) bitMask {
	return make(bitMask, (bits+63)/64)
}

func (m bitMask) set(i int) {
	m[i>>6].Or(1 << (i & 63))
}

func (m bitMask) test(i int) bool {
	return m[i>>6].Load()&(1<<(i&63)) != 0
}

func (m bitMask) setAll() {
	for i := range m {
		m[i].Store(^uint64(0))
	}
}

// drain переносит маску в dst и очищает её
func (m bitMask) drain(dst []uint64) {
	for i := range m {
		dst[i] = m[i].Swap(0)
	}
}

// setSlab помечает граничный слой чанка со стороны грани f
func (m bitMask) setSlab(f voxel.Face) {
	for a := 0; a < ChunkSize; a++ {
		for b := 0; b < ChunkSize; b++ {
			var x, y, z int
			switch f {
			case voxel.FacePosX:
				x, y, z = ChunkSize-1, a, b
			case voxel.FaceNegX:
				x, y, z = 0, a, b
			case voxel.FacePosY:
				x, y, z = a, ChunkSize-1, b
			case voxel.FaceNegY:
				x, y, z = a, 0, b
			case voxel.FacePosZ:
				x, y, z = a, b, ChunkSize-1
			default:
				x, y, z = a, b, 0
			}
			m.set(localIndex(x, y, z))
		}
	}
}
