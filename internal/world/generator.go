package world

import (
	"math/rand"

	"github.com/annel0/voxel-terrain/internal/util"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// Константы генерации
const (
	TopsoilDepth = 3 // глубина слоя земли под травой
	ColorJitter  = 6 // разброс цвета на блок
)

// WorldGenerator заполняет чанки материалами и запекает цвета
type WorldGenerator struct {
	Seed        int64
	Density     util.DensityFunc
	WorldHeight int // высота мира в блоках, для градиента цвета
}

// NewWorldGenerator создаёт генератор мира
func NewWorldGenerator(seed int64, density util.DensityFunc, worldHeight int) *WorldGenerator {
	if density == nil {
		density = util.NewPerlinDensity(seed, util.DefaultTerrainShape())
	}
	if worldHeight <= 0 {
		worldHeight = ChunkSize
	}
	return &WorldGenerator{
		Seed:        seed,
		Density:     density,
		WorldHeight: worldHeight,
	}
}

// MaterialAt материал в мировой точке по функции плотности
func (wg *WorldGenerator) MaterialAt(x, y, z int) block.Material {
	if y == 0 {
		return block.Bedrock
	}
	solid := func(dy int) bool {
		return wg.Density.Density(float64(x), float64(y+dy), float64(z)) > 0
	}
	if !solid(0) {
		return block.Air
	}
	if !solid(1) {
		return block.Grass
	}
	if !solid(TopsoilDepth) {
		return block.Dirt
	}
	return block.Stone
}

// Populate заполняет чанк материалами с базовыми цветами
func (wg *WorldGenerator) Populate(c *Chunk) {
	origin := c.Origin()
	c.fill(func(x, y, z int) block.Block {
		return block.New(wg.MaterialAt(origin.X+x, origin.Y+y, origin.Z+z))
	})
}

// Shape запекает цвета: базовый цвет материала, градиент по высоте и
// детерминированный разброс на каждый воксель. Загруженные чанки не трогает.
func (wg *WorldGenerator) Shape(c *Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.colorsBaked || c.grid.Disposed() {
		return
	}

	// Для каждого чанка свой сид на основе глобального сида и координат
	chunkSeed := wg.Seed + int64(c.Index.X*73856093) + int64(c.Index.Y*19349663) + int64(c.Index.Z*83492791)
	rng := rand.New(rand.NewSource(chunkSeed))
	originY := vec.ChunkOrigin(c.Index).Y

	blocks := c.grid.Blocks()
	for idx := range blocks {
		b := blocks[idx]
		if b.IsAir() {
			continue
		}
		_, y, _ := localCoords(idx)
		gradient := 0.8 + 0.4*float64(originY+y)/float64(wg.WorldHeight)
		base := block.New(b.Material)
		b.R = shade(base.R, gradient, rng)
		b.G = shade(base.G, gradient, rng)
		b.B = shade(base.B, gradient, rng)
		blocks[idx] = b
	}
	c.colorsBaked = true
}

func shade(base uint8, gradient float64, rng *rand.Rand) uint8 {
	v := int(float64(base)*gradient) + rng.Intn(2*ColorJitter+1) - ColorJitter
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
