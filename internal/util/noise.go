package util

import (
	"fmt"
	"strings"

	"github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"
)

// DensityFunc возвращает плотность в мировой точке. Положительная плотность означает твёрдый блок.
type DensityFunc interface {
	Density(x, y, z float64) float64
}

// TerrainShape параметры формы рельефа поверх шума
type TerrainShape struct {
	BaseHeight  float64 // высота поверхности без шума, в блоках
	HeightScale float64 // на сколько блоков шум поднимает/опускает поверхность
	Frequency   float64 // масштаб координат для шума
}

// DefaultTerrainShape подходит для мира высотой в несколько чанков
func DefaultTerrainShape() TerrainShape {
	return TerrainShape{BaseHeight: 48, HeightScale: 24, Frequency: 1.0 / 48}
}

func (s TerrainShape) density(noise, y float64) float64 {
	scale := s.HeightScale
	if scale <= 0 {
		scale = 1
	}
	return noise + (s.BaseHeight-y)/scale
}

// PerlinDensity плотность на основе шума Перлина
type PerlinDensity struct {
	shape TerrainShape
	noise *perlin.Perlin
}

// NewPerlinDensity создаёт генератор плотности с указанным сидом
func NewPerlinDensity(seed int64, shape TerrainShape) *PerlinDensity {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &PerlinDensity{shape: shape, noise: perlin.NewPerlin(alpha, beta, n, seed)}
}

// Density реализует DensityFunc
func (p *PerlinDensity) Density(x, y, z float64) float64 {
	f := p.shape.Frequency
	return p.shape.density(p.noise.Noise3D(x*f, y*f, z*f), y)
}

// SimplexDensity плотность на основе OpenSimplex
type SimplexDensity struct {
	shape TerrainShape
	noise opensimplex.Noise
}

// NewSimplexDensity создаёт генератор плотности с указанным сидом
func NewSimplexDensity(seed int64, shape TerrainShape) *SimplexDensity {
	return &SimplexDensity{shape: shape, noise: opensimplex.New(seed)}
}

// Density реализует DensityFunc
func (s *SimplexDensity) Density(x, y, z float64) float64 {
	f := s.shape.Frequency
	return s.shape.density(s.noise.Eval3(x*f, y*f, z*f), y)
}

// FlatDensity ровная поверхность на заданной высоте, удобна для тестов
type FlatDensity struct {
	Height float64
}

// Density реализует DensityFunc
func (f FlatDensity) Density(_, y, _ float64) float64 {
	return f.Height - y
}

// NewDensity выбирает реализацию по имени из конфигурации
func NewDensity(kind string, seed int64, shape TerrainShape) (DensityFunc, error) {
	switch strings.ToLower(kind) {
	case "", "perlin":
		return NewPerlinDensity(seed, shape), nil
	case "simplex", "opensimplex":
		return NewSimplexDensity(seed, shape), nil
	case "flat":
		return FlatDensity{Height: shape.BaseHeight}, nil
	default:
		return nil, fmt.Errorf("unknown noise kind %q", kind)
	}
}
