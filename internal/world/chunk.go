package world

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/voxel"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// Размеры чанка
const (
	ChunkSize   = vec.ChunkSize
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
	MaxSunlight = voxel.MaxLight
)

// ChunkProvider поиск соседей по индексу. Чанк хранит только ссылку на реестр,
// а не на соседей.
type ChunkProvider interface {
	ChunkAt(index vec.Vec3) (*Chunk, bool)
	IsAboveWorld(index vec.Vec3) bool
}

// Chunk участок мира 32x32x32 блоков
type Chunk struct {
	Index vec.Vec3

	// mu защищает блоки и значения света
	mu          sync.RWMutex
	grid        *voxel.Grid
	colorsBaked bool

	provider ChunkProvider
	Lighting *LightingEngine

	state         atomic.Int32
	beingWorkedOn atomic.Bool
	dirty         atomic.Bool
	sunlightReady atomic.Bool
	disposed      atomic.Bool

	// dirtyMask помечает блоки с устаревшей маской видимых граней.
	// faceCache принадлежит тому, кто строит меш.
	dirtyMask bitMask
	faceCache []uint8

	opaque      [2]*voxel.MeshBuilder
	translucent [2]*voxel.MeshBuilder
	front       atomic.Int32
}

// NewChunk создаёт пустой чанк с указанным индексом
func NewChunk(index vec.Vec3, provider ChunkProvider) *Chunk {
	c := &Chunk{
		Index:     index,
		grid:      voxel.NewGrid(ChunkSize, ChunkSize, ChunkSize),
		provider:  provider,
		dirtyMask: newBitMask(ChunkVolume),
		faceCache: make([]uint8, ChunkVolume),
	}
	c.Lighting = newLightingEngine(c)
	c.dirtyMask.setAll()
	for i := range c.opaque {
		c.opaque[i] = voxel.NewDynamicMeshBuilder(256)
		c.translucent[i] = voxel.NewDynamicMeshBuilder(16)
	}
	return c
}

// State текущая стадия
func (c *Chunk) State() ChunkState {
	return ChunkState(c.state.Load())
}

// advance переводит чанк на более позднюю стадию. Возврат назад игнорируется.
func (c *Chunk) advance(to ChunkState) bool {
	for {
		cur := c.state.Load()
		if ChunkState(cur) >= to {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// BeingWorkedOn true, пока над чанком выполняется фоновое действие
func (c *Chunk) BeingWorkedOn() bool {
	return c.beingWorkedOn.Load()
}

// Dirty true, если меш чанка устарел
func (c *Chunk) Dirty() bool {
	return c.dirty.Load()
}

// markDirty помечает меш устаревшим. Выведенный чанк возвращается в Unbuilt.
func (c *Chunk) markDirty() {
	c.dirty.Store(true)
	c.state.CompareAndSwap(int32(StateRenderable), int32(StateUnbuilt))
}

// SunlightReady true после первичного солнечного прохода
func (c *Chunk) SunlightReady() bool {
	return c.sunlightReady.Load()
}

// Disposed сообщает, освобождён ли чанк
func (c *Chunk) Disposed() bool {
	return c.disposed.Load()
}

// Origin мировая координата нулевого блока
func (c *Chunk) Origin() vec.Vec3 {
	return vec.ChunkOrigin(c.Index)
}

func (c *Chunk) neighbor(dir vec.Vec3) (*Chunk, bool) {
	if c.provider == nil {
		return nil, false
	}
	return c.provider.ChunkAt(c.Index.Add(dir))
}

func inChunk(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < ChunkSize && y < ChunkSize && z < ChunkSize
}

func localIndex(x, y, z int) int {
	return (z*ChunkSize+y)*ChunkSize + x
}

func localCoords(idx int) (x, y, z int) {
	return idx % ChunkSize, (idx / ChunkSize) % ChunkSize, idx / (ChunkSize * ChunkSize)
}

// Block возвращает блок по локальным координатам или AIR за пределами чанка
func (c *Chunk) Block(x, y, z int) block.Block {
	if !inChunk(x, y, z) {
		return block.AIR
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.grid.Disposed() {
		return block.AIR
	}
	return c.grid.At(localIndex(x, y, z))
}

// Sunlight уровень солнечного света по локальным координатам (0 за пределами)
func (c *Chunk) Sunlight(x, y, z int) uint8 {
	if !inChunk(x, y, z) {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.grid.Disposed() {
		return 0
	}
	return c.Lighting.sun(localIndex(x, y, z))
}

// SetBlock меняет блок, ставит запросы освещения и помечает меши.
// Возвращает запись изменения и false, если координаты вне чанка.
func (c *Chunk) SetBlock(x, y, z int, b block.Block) (BlockChange, bool) {
	if !inChunk(x, y, z) {
		return BlockChange{}, false
	}
	if b.IsAir() {
		b = block.AIR
	}
	idx := localIndex(x, y, z)

	c.mu.Lock()
	if c.grid.Disposed() {
		c.mu.Unlock()
		return BlockChange{}, false
	}
	old := c.grid.At(idx)
	c.grid.SetAt(idx, b)
	c.mu.Unlock()

	c.afterEdit(x, y, z, old, b)
	return BlockChange{Chunk: c.Index, Block: b, Index: idx}, true
}

// RemoveBlock заменяет блок воздухом
func (c *Chunk) RemoveBlock(x, y, z int) (BlockChange, bool) {
	return c.SetBlock(x, y, z, block.AIR)
}

// DamageBlock наносит урон блоку. При нулевой прочности блок удаляется.
// Изменение прочности без разрушения не трогает меш и свет.
func (c *Chunk) DamageBlock(x, y, z, amount int) (change BlockChange, destroyed, ok bool) {
	if !inChunk(x, y, z) {
		return BlockChange{}, false, false
	}
	idx := localIndex(x, y, z)

	c.mu.Lock()
	if c.grid.Disposed() {
		c.mu.Unlock()
		return BlockChange{}, false, false
	}
	old := c.grid.At(idx)
	damaged, destroyed := old.Damage(amount)
	if damaged == old {
		c.mu.Unlock()
		return BlockChange{}, false, false
	}
	c.grid.SetAt(idx, damaged)
	c.mu.Unlock()

	if destroyed {
		c.afterEdit(x, y, z, old, damaged)
	}
	return BlockChange{Chunk: c.Index, Block: damaged, Index: idx}, destroyed, true
}

func (c *Chunk) afterEdit(x, y, z int, old, b block.Block) {
	// до первичного прохода свет считается с нуля, запросы не нужны
	if c.sunlightReady.Load() {
		idx := localIndex(x, y, z)
		switch {
		case b.Opaque() && !old.Opaque():
			c.Lighting.RequestRemoval(idx)
		case !b.Opaque() && old.Opaque():
			c.Lighting.RequestRefill(idx)
		}
	}
	c.invalidateAround(x, y, z)
}

// invalidateAround сбрасывает кэш видимости блока и его соседей по граням,
// а также помечает меши соседних чанков, которых касается изменение.
func (c *Chunk) invalidateAround(x, y, z int) {
	c.markDirty()
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny, nz := x+dx, y+dy, z+dz
				faceStep := abs(dx)+abs(dy)+abs(dz) <= 1
				if inChunk(nx, ny, nz) {
					if faceStep {
						c.dirtyMask.set(localIndex(nx, ny, nz))
					}
					continue
				}
				off := vec.Vec3{X: floorDiv(nx), Y: floorDiv(ny), Z: floorDiv(nz)}
				nb, ok := c.neighbor(off)
				if !ok {
					continue
				}
				if faceStep {
					nb.dirtyMask.set(localIndex(wrap(nx), wrap(ny), wrap(nz)))
				}
				nb.markDirty()
			}
		}
	}
}

// invalidateBorders сбрасывает у соседей кэш граничного слоя, обращённого к этому чанку
func (c *Chunk) invalidateBorders() {
	for f, dir := range vec.FaceDirections {
		nb, ok := c.neighbor(dir)
		if !ok {
			continue
		}
		nb.dirtyMask.setSlab(voxel.Face(f) ^ 1)
		nb.markDirty()
	}
}

// fill заполняет блоки чанка функцией fn (локальные координаты)
func (c *Chunk) fill(fn func(x, y, z int) block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grid.Disposed() {
		return
	}
	c.grid.Fill(fn)
	c.dirtyMask.setAll()
}

// LoadBlocks заменяет все блоки сохранённой копией с уже запечёнными цветами
func (c *Chunk) LoadBlocks(blocks []block.Block) error {
	if len(blocks) != ChunkVolume {
		return fmt.Errorf("chunk %v: expected %d blocks, got %d", c.Index, ChunkVolume, len(blocks))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grid.Disposed() {
		return fmt.Errorf("chunk %v disposed", c.Index)
	}
	copy(c.grid.Blocks(), blocks)
	c.colorsBaked = true
	c.dirtyMask.setAll()
	return nil
}

// ExportBlocks копия блоков чанка
func (c *Chunk) ExportBlocks() []block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.grid.Disposed() {
		return nil
	}
	return append([]block.Block(nil), c.grid.Blocks()...)
}

// CanProcess разрешает первичный солнечный проход: сверху нет чанка
// или верхний чанк уже прошёл свой.
func (c *Chunk) CanProcess() bool {
	above, ok := c.neighbor(vec.Up)
	return !ok || above.sunlightReady.Load()
}

// IsMeshReady true, если очереди света пусты у чанка и у всех соседей по граням
func (c *Chunk) IsMeshReady() bool {
	if c.Lighting.IsDirty() {
		return false
	}
	for _, dir := range vec.FaceDirections {
		nb, ok := c.neighbor(dir)
		if !ok {
			continue
		}
		if nb.State() < StateUnbuilt || nb.Lighting.IsDirty() {
			return false
		}
	}
	return true
}

// BuildMesh дорабатывает очереди света и строит меш в задний буфер.
// Если соседи ещё не готовы, чанк остаётся грязным и повторяется позже.
func (c *Chunk) BuildMesh() bool {
	if c.disposed.Load() || c.State() < StateUnbuilt {
		return false
	}
	if c.Lighting.IsDirty() {
		c.Lighting.Process()
	}
	if !c.IsMeshReady() {
		return false
	}

	c.dirty.Store(false)
	var stale [maskWords]uint64
	c.dirtyMask.drain(stale[:])

	view := acquireView()
	defer releaseView(view)
	if !view.capture(c) {
		return false
	}

	back := 1 - c.front.Load()
	opaque, translucent := c.opaque[back], c.translucent[back]
	opaque.Reset()
	translucent.Reset()

	o := c.Origin()
	origin := mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)}
	for idx := 0; idx < ChunkVolume; idx++ {
		x, y, z := localCoords(idx)
		faces := c.faceCache[idx]
		if stale[idx>>6]&(1<<(idx&63)) != 0 {
			faces = voxel.VisibleFaces(view, x, y, z)
			c.faceCache[idx] = faces
		}
		voxel.AppendBlock(view, x, y, z, faces, origin, opaque, translucent)
	}

	c.advance(StateMeshReady)
	return true
}

// swapBuffers делает задний буфер передним. Вызывается только потребителем.
func (c *Chunk) swapBuffers() (voxel.MeshData, voxel.MeshData) {
	f := 1 - c.front.Load()
	c.front.Store(f)
	return c.opaque[f].Data(), c.translucent[f].Data()
}

// FrontMesh данные переднего буфера
func (c *Chunk) FrontMesh() (opaque, translucent voxel.MeshData) {
	f := c.front.Load()
	return c.opaque[f].Data(), c.translucent[f].Data()
}

// Dispose освобождает память чанка. Повторный вызов паникует.
func (c *Chunk) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("world: chunk %v disposed twice", c.Index))
	}
	c.mu.Lock()
	c.grid.Dispose()
	c.Lighting.release()
	c.mu.Unlock()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// floorDiv делит локальную координату на размер чанка с округлением вниз
func floorDiv(v int) int {
	return v >> vec.ChunkShift
}

func wrap(v int) int {
	return v & (ChunkSize - 1)
}
