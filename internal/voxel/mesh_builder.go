package voxel

import "github.com/go-gl/mathgl/mgl32"

// MeshData плоские массивы вершинных атрибутов, готовые к загрузке
type MeshData struct {
	Positions  []float32 // 3 на вершину
	Colors     []float32 // 4 на вершину
	Normals    []float32 // 3 на вершину
	Lighting   []float32 // 2 на вершину: затенение и направленное затемнение
	Indices    []uint32
	IndexCount int
}

// VertexCount число вершин
func (m MeshData) VertexCount() int {
	return len(m.Positions) / 3
}

// Empty true, если меш не содержит треугольников
func (m MeshData) Empty() bool {
	return m.IndexCount == 0
}

// Clone глубокая копия массивов
func (m MeshData) Clone() MeshData {
	return MeshData{
		Positions:  append([]float32(nil), m.Positions...),
		Colors:     append([]float32(nil), m.Colors...),
		Normals:    append([]float32(nil), m.Normals...),
		Lighting:   append([]float32(nil), m.Lighting...),
		Indices:    append([]uint32(nil), m.Indices...),
		IndexCount: m.IndexCount,
	}
}

// MeshBuilder накапливает квады. В динамическом режиме массивы выделяются заранее
// и растут на недостачу плюс 10%, иначе используется append.
type MeshBuilder struct {
	dynamic bool

	positions []float32
	colors    []float32
	normals   []float32
	lighting  []float32
	indices   []uint32

	vertices   int
	indexCount int
}

// NewMeshBuilder построитель на append
func NewMeshBuilder() *MeshBuilder {
	return &MeshBuilder{}
}

// NewDynamicMeshBuilder построитель с заранее выделенными массивами на initialQuads квадов
func NewDynamicMeshBuilder(initialQuads int) *MeshBuilder {
	mb := &MeshBuilder{dynamic: true}
	if initialQuads > 0 {
		mb.resize(initialQuads * 4)
	}
	return mb
}

// Dynamic сообщает режим построителя
func (mb *MeshBuilder) Dynamic() bool {
	return mb.dynamic
}

// VertexCount число записанных вершин
func (mb *MeshBuilder) VertexCount() int {
	return mb.vertices
}

// IndexCount число записанных индексов
func (mb *MeshBuilder) IndexCount() int {
	return mb.indexCount
}

// VertexCapacity ёмкость в вершинах
func (mb *MeshBuilder) VertexCapacity() int {
	if mb.dynamic {
		return len(mb.positions) / 3
	}
	return cap(mb.positions) / 3
}

// Reset очищает построитель, сохраняя выделенную память
func (mb *MeshBuilder) Reset() {
	mb.vertices = 0
	mb.indexCount = 0
	if !mb.dynamic {
		mb.positions = mb.positions[:0]
		mb.colors = mb.colors[:0]
		mb.normals = mb.normals[:0]
		mb.lighting = mb.lighting[:0]
		mb.indices = mb.indices[:0]
	}
}

func (mb *MeshBuilder) resize(vertexCap int) {
	grow := func(src []float32, n int) []float32 {
		dst := make([]float32, n)
		copy(dst, src)
		return dst
	}
	mb.positions = grow(mb.positions, vertexCap*3)
	mb.colors = grow(mb.colors, vertexCap*4)
	mb.normals = grow(mb.normals, vertexCap*3)
	mb.lighting = grow(mb.lighting, vertexCap*2)

	idx := make([]uint32, vertexCap/4*6)
	copy(idx, mb.indices)
	mb.indices = idx
}

func (mb *MeshBuilder) ensure(extraVertices int) {
	have := len(mb.positions) / 3
	need := mb.vertices + extraVertices
	if need <= have {
		return
	}
	shortfall := need - have
	newCap := have + shortfall + (have+shortfall)/10
	// индексы считаются по квадам
	newCap = (newCap + 3) &^ 3
	mb.resize(newCap)
}

// AddQuad добавляет квад из четырёх вершин против часовой стрелки.
// flip выбирает диагональ 1-3 вместо 0-2 для разбиения на треугольники.
func (mb *MeshBuilder) AddQuad(corners [4]mgl32.Vec3, normal mgl32.Vec3, color mgl32.Vec4, shade [4]float32, directional float32, flip bool) {
	base := uint32(mb.vertices)
	var tris [6]uint32
	if flip {
		tris = [6]uint32{base + 1, base + 2, base + 3, base + 1, base + 3, base}
	} else {
		tris = [6]uint32{base, base + 1, base + 2, base, base + 2, base + 3}
	}

	if mb.dynamic {
		mb.ensure(4)
		for i, c := range corners {
			v := mb.vertices + i
			copy(mb.positions[v*3:], c[:])
			copy(mb.colors[v*4:], color[:])
			copy(mb.normals[v*3:], normal[:])
			mb.lighting[v*2] = shade[i]
			mb.lighting[v*2+1] = directional
		}
		copy(mb.indices[mb.indexCount:], tris[:])
	} else {
		for i, c := range corners {
			mb.positions = append(mb.positions, c[:]...)
			mb.colors = append(mb.colors, color[:]...)
			mb.normals = append(mb.normals, normal[:]...)
			mb.lighting = append(mb.lighting, shade[i], directional)
		}
		mb.indices = append(mb.indices, tris[:]...)
	}

	mb.vertices += 4
	mb.indexCount += 6
}

// Data возвращает срезы записанных данных без копирования
func (mb *MeshBuilder) Data() MeshData {
	return MeshData{
		Positions:  mb.positions[:mb.vertices*3],
		Colors:     mb.colors[:mb.vertices*4],
		Normals:    mb.normals[:mb.vertices*3],
		Lighting:   mb.lighting[:mb.vertices*2],
		Indices:    mb.indices[:mb.indexCount],
		IndexCount: mb.indexCount,
	}
}
