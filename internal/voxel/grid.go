// Package voxel содержит плотную сетку блоков и построение геометрии из неё:
// отсечение скрытых граней, ambient occlusion и смешивание с освещением.
package voxel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-terrain/internal/world/block"
)

// MaxLight максимальный уровень солнечного света
const MaxLight = 31

// Source источник блоков и света для построения меша. Координаты могут выходить
// на один блок за пределы объёма, за соседей отвечает реализация.
type Source interface {
	BlockAt(x, y, z int) block.Block
	SunlightAt(x, y, z int) uint8
}

// Volume источник с известными размерами
type Volume interface {
	Source
	Dims() (w, h, d int)
}

// Grid плотный массив блоков с индексом [z][y][x]. Не потокобезопасен,
// синхронизацию обеспечивает владелец.
type Grid struct {
	width, height, depth int
	blocks               []block.Block
	disposed             bool
}

// NewGrid выделяет сетку заданного размера, заполненную воздухом
func NewGrid(width, height, depth int) *Grid {
	if width <= 0 || height <= 0 || depth <= 0 {
		panic(fmt.Sprintf("voxel: invalid grid size %dx%dx%d", width, height, depth))
	}
	return &Grid{
		width:  width,
		height: height,
		depth:  depth,
		blocks: make([]block.Block, width*height*depth),
	}
}

// Dims возвращает размеры сетки
func (g *Grid) Dims() (int, int, int) {
	return g.width, g.height, g.depth
}

// Len число ячеек
func (g *Grid) Len() int {
	return len(g.blocks)
}

// Index линейный индекс ячейки (без проверки границ)
func (g *Grid) Index(x, y, z int) int {
	return (z*g.height+y)*g.width + x
}

// Coords обратное преобразование линейного индекса
func (g *Grid) Coords(idx int) (x, y, z int) {
	x = idx % g.width
	y = (idx / g.width) % g.height
	z = idx / (g.width * g.height)
	return
}

// InBounds проверяет попадание координат в сетку
func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.width && y < g.height && z < g.depth
}

// Get возвращает блок или AIR за пределами сетки
func (g *Grid) Get(x, y, z int) block.Block {
	if !g.InBounds(x, y, z) {
		return block.AIR
	}
	return g.blocks[g.Index(x, y, z)]
}

// Set записывает блок. За пределами сетки запись игнорируется.
func (g *Grid) Set(x, y, z int, b block.Block) bool {
	if !g.InBounds(x, y, z) {
		return false
	}
	g.blocks[g.Index(x, y, z)] = b
	return true
}

// At возвращает блок по линейному индексу
func (g *Grid) At(idx int) block.Block {
	return g.blocks[idx]
}

// SetAt записывает блок по линейному индексу
func (g *Grid) SetAt(idx int, b block.Block) {
	g.blocks[idx] = b
}

// Blocks прямой доступ к массиву для владельца сетки
func (g *Grid) Blocks() []block.Block {
	return g.blocks
}

// Fill заполняет всю сетку блоками, возвращаемыми fn
func (g *Grid) Fill(fn func(x, y, z int) block.Block) {
	for z := 0; z < g.depth; z++ {
		for y := 0; y < g.height; y++ {
			for x := 0; x < g.width; x++ {
				g.blocks[g.Index(x, y, z)] = fn(x, y, z)
			}
		}
	}
}

// BlockAt реализует Source
func (g *Grid) BlockAt(x, y, z int) block.Block {
	return g.Get(x, y, z)
}

// SunlightAt реализует Source. Отдельная сетка освещена полностью.
func (g *Grid) SunlightAt(_, _, _ int) uint8 {
	return MaxLight
}

// BuildMesh строит меш всей сетки в переданные построители
func (g *Grid) BuildMesh(origin mgl32.Vec3, opaque, translucent *MeshBuilder) {
	BuildMesh(g, origin, opaque, translucent)
}

// Dispose освобождает массив блоков. Повторный вызов считается ошибкой программы.
func (g *Grid) Dispose() {
	if g.disposed {
		panic("voxel: grid disposed twice")
	}
	g.disposed = true
	g.blocks = nil
}

// Disposed сообщает, освобождена ли сетка
func (g *Grid) Disposed() bool {
	return g.disposed
}
