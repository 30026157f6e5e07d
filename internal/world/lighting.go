package world

import (
	"sync/atomic"

	"github.com/annel0/voxel-terrain/internal/util"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/voxel"
)

// lightNode элемент очередей освещения
type lightNode struct {
	index int32
	level uint8
	// down: соседний узел лежит прямо под источником
	down bool
	// remote: запрос пришёл от соседнего чанка
	remote bool
}

// LightingEngine солнечное освещение одного чанка. Пять FIFO-очередей
// разбираются в фиксированном порядке. Соседние чанки получают работу
// только через свои очереди, значения света пишет лишь владелец.
type LightingEngine struct {
	chunk *Chunk
	// light: sun<<8 | point, защищён chunk.mu
	light []uint16

	removeRequests *util.Queue[lightNode]
	removeQueue    *util.Queue[lightNode]
	setRequests    *util.Queue[lightNode]
	refillRequests *util.Queue[lightNode]
	fillQueue      *util.Queue[lightNode]

	// заполняются под chunk.mu во время Process
	changed bool
	touched uint8

	passes atomic.Int64
}

func newLightingEngine(c *Chunk) *LightingEngine {
	return &LightingEngine{
		chunk:          c,
		light:          make([]uint16, ChunkVolume),
		removeRequests: util.NewQueue[lightNode](0),
		removeQueue:    util.NewQueue[lightNode](0),
		setRequests:    util.NewQueue[lightNode](ChunkSize * ChunkSize),
		refillRequests: util.NewQueue[lightNode](0),
		fillQueue:      util.NewQueue[lightNode](ChunkSize * ChunkSize),
	}
}

// IsDirty true, если хотя бы одна очередь не пуста
func (le *LightingEngine) IsDirty() bool {
	return !le.removeRequests.Empty() ||
		!le.removeQueue.Empty() ||
		!le.setRequests.Empty() ||
		!le.refillRequests.Empty() ||
		!le.fillQueue.Empty()
}

// Passes число выполненных проходов Process
func (le *LightingEngine) Passes() int64 {
	return le.passes.Load()
}

// RequestRemoval убирает свет из ячейки, ставшей непрозрачной
func (le *LightingEngine) RequestRemoval(idx int) {
	le.removeRequests.Push(lightNode{index: int32(idx)})
}

// RequestSet поднимает свет ячейки до level, если он больше текущего
func (le *LightingEngine) RequestSet(idx int, level uint8) {
	le.setRequests.Push(lightNode{index: int32(idx), level: clampLight(int(level))})
}

// RequestRefill заполняет освободившуюся ячейку от освещённых соседей
func (le *LightingEngine) RequestRefill(idx int) {
	le.refillRequests.Push(lightNode{index: int32(idx)})
}

func clampLight(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > MaxSunlight {
		return MaxSunlight
	}
	return uint8(v)
}

func (le *LightingEngine) sun(idx int) uint8 {
	return uint8(le.light[idx] >> 8)
}

func (le *LightingEngine) setSun(idx int, level uint8) {
	level = clampLight(int(level))
	le.light[idx] = uint16(level)<<8 | le.light[idx]&0xFF
	le.changed = true

	x, y, z := localCoords(idx)
	if x == ChunkSize-1 {
		le.touched |= 1 << voxel.FacePosX
	} else if x == 0 {
		le.touched |= 1 << voxel.FaceNegX
	}
	if y == ChunkSize-1 {
		le.touched |= 1 << voxel.FacePosY
	} else if y == 0 {
		le.touched |= 1 << voxel.FaceNegY
	}
	if z == ChunkSize-1 {
		le.touched |= 1 << voxel.FacePosZ
	} else if z == 0 {
		le.touched |= 1 << voxel.FaceNegZ
	}
}

func (le *LightingEngine) opaque(idx int) bool {
	return le.chunk.grid.At(idx).Opaque()
}

// step возвращает соседа в направлении f: локальный индекс или чанк-владелец.
// nb == nil и local < 0 означают отсутствие соседа.
func (le *LightingEngine) step(idx int, f int) (local int, nb *Chunk, remoteIdx int) {
	x, y, z := localCoords(idx)
	d := vec.FaceDirections[f]
	nx, ny, nz := x+d.X, y+d.Y, z+d.Z
	if inChunk(nx, ny, nz) {
		return localIndex(nx, ny, nz), nil, -1
	}
	nb, ok := le.chunk.neighbor(d)
	if !ok {
		return -1, nil, -1
	}
	return -1, nb, localIndex(wrap(nx), wrap(ny), wrap(nz))
}

const faceDown = int(voxel.FaceNegY)

// Process разбирает очереди до полного опустошения. Возвращает true, если свет изменился.
func (le *LightingEngine) Process() bool {
	c := le.chunk
	c.mu.Lock()
	if c.grid.Disposed() {
		c.mu.Unlock()
		return false
	}
	le.changed, le.touched = false, 0

	for {
		n := 0
		n += drain(le.removeRequests, le.handleRemovalRequest)
		n += drain(le.removeQueue, le.propagateRemoval)
		n += drain(le.setRequests, le.handleSet)
		n += drain(le.refillRequests, le.handleRefill)
		n += drain(le.fillQueue, le.propagateFill)
		if n == 0 {
			break
		}
	}

	changed, touched := le.changed, le.touched
	c.mu.Unlock()
	le.passes.Add(1)

	if changed {
		c.markDirty()
		for f, dir := range vec.FaceDirections {
			if touched&(1<<f) == 0 {
				continue
			}
			if nb, ok := c.neighbor(dir); ok {
				nb.markDirty()
			}
		}
	}
	return changed
}

func drain(q *util.Queue[lightNode], fn func(lightNode)) int {
	n := 0
	for {
		node, ok := q.Pop()
		if !ok {
			return n
		}
		fn(node)
		n++
	}
}

func (le *LightingEngine) handleRemovalRequest(node lightNode) {
	idx := int(node.index)
	if node.remote {
		le.visitRemoved(idx, node.level, node.down)
		return
	}
	if cur := le.sun(idx); cur != 0 {
		le.setSun(idx, 0)
		le.removeQueue.Push(lightNode{index: node.index, level: cur})
	}
}

// visitRemoved проверяет соседа ячейки, потерявшей уровень removed.
// Более тёмный сосед (или прямо нижний под максимумом) гаснет, остальные
// становятся источниками повторной заливки.
func (le *LightingEngine) visitRemoved(idx int, removed uint8, down bool) {
	nl := le.sun(idx)
	if nl == 0 {
		return
	}
	if nl < removed || (down && removed == MaxSunlight && nl == MaxSunlight) {
		le.setSun(idx, 0)
		le.removeQueue.Push(lightNode{index: int32(idx), level: nl})
		return
	}
	le.fillQueue.Push(lightNode{index: int32(idx), level: nl})
}

func (le *LightingEngine) propagateRemoval(node lightNode) {
	for f := range vec.FaceDirections {
		local, nb, remoteIdx := le.step(int(node.index), f)
		down := f == faceDown
		switch {
		case local >= 0:
			le.visitRemoved(local, node.level, down)
		case nb != nil:
			nb.Lighting.removeRequests.Push(lightNode{
				index: int32(remoteIdx), level: node.level, down: down, remote: true,
			})
		}
	}
}

func (le *LightingEngine) handleSet(node lightNode) {
	idx := int(node.index)
	if le.opaque(idx) {
		return
	}
	if node.level > le.sun(idx) {
		le.setSun(idx, node.level)
		le.fillQueue.Push(lightNode{index: node.index, level: node.level})
	}
}

func (le *LightingEngine) handleRefill(node lightNode) {
	idx := int(node.index)
	if le.opaque(idx) {
		return
	}
	if node.remote {
		// сосед просит разлить свет из этой ячейки
		if l := le.sun(idx); l > 0 {
			le.fillQueue.Push(lightNode{index: node.index, level: l})
		}
		return
	}
	if le.sun(idx) != 0 {
		return
	}
	for f := range vec.FaceDirections {
		local, nb, remoteIdx := le.step(idx, f)
		switch {
		case local >= 0:
			if l := le.sun(local); l > 0 {
				le.fillQueue.Push(lightNode{index: int32(local), level: l})
			}
		case nb != nil:
			nb.Lighting.refillRequests.Push(lightNode{index: int32(remoteIdx), remote: true})
		case f == int(voxel.FacePosY) && le.openSky():
			le.handleSet(lightNode{index: node.index, level: MaxSunlight})
		}
	}
}

func (le *LightingEngine) propagateFill(node lightNode) {
	idx := int(node.index)
	cur := le.sun(idx)
	if cur == 0 || cur != node.level {
		return
	}
	for f := range vec.FaceDirections {
		target := cur - 1
		if f == faceDown && cur == MaxSunlight {
			target = MaxSunlight
		}
		if target == 0 {
			continue
		}
		local, nb, remoteIdx := le.step(idx, f)
		switch {
		case local >= 0:
			// сосед поднимается, только если выигрывает хотя бы единицу
			if !le.opaque(local) && le.sun(local) < target {
				le.setSun(local, target)
				le.fillQueue.Push(lightNode{index: int32(local), level: target})
			}
		case nb != nil:
			nb.Lighting.setRequests.Push(lightNode{index: int32(remoteIdx), level: target})
		}
	}
}

// openSky true, если над чанком нет другого чанка
func (le *LightingEngine) openSky() bool {
	_, ok := le.chunk.neighbor(vec.Up)
	return !ok
}

// InitialPass первичный солнечный проход: засев верхнего слоя и заливка.
// Вызывается, когда CanProcess() == true.
func (le *LightingEngine) InitialPass() {
	c := le.chunk
	var seeds [ChunkSize * ChunkSize]uint8

	if above, ok := c.neighbor(vec.Up); ok {
		above.mu.RLock()
		if !above.grid.Disposed() {
			for z := 0; z < ChunkSize; z++ {
				for x := 0; x < ChunkSize; x++ {
					l := above.Lighting.sun(localIndex(x, 0, z))
					if l < MaxSunlight && l > 0 {
						l--
					}
					seeds[z*ChunkSize+x] = l
				}
			}
		}
		above.mu.RUnlock()
	} else {
		for i := range seeds {
			seeds[i] = MaxSunlight
		}
	}

	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			if l := seeds[z*ChunkSize+x]; l > 0 {
				le.RequestSet(localIndex(x, ChunkSize-1, z), l)
			}
		}
	}

	le.Process()
	c.sunlightReady.Store(true)
	c.advance(StateUnbuilt)
}

// SunlightLevels копия уровней солнечного света
func (le *LightingEngine) SunlightLevels() []uint8 {
	le.chunk.mu.RLock()
	defer le.chunk.mu.RUnlock()
	out := make([]uint8, len(le.light))
	for i := range le.light {
		out[i] = uint8(le.light[i] >> 8)
	}
	return out
}

// release освобождает массивы. Вызывается под chunk.mu.
func (le *LightingEngine) release() {
	le.light = nil
	le.removeRequests.Clear()
	le.removeQueue.Clear()
	le.setRequests.Clear()
	le.refillRequests.Clear()
	le.fillQueue.Clear()
}
