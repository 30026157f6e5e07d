// Package render содержит потребителей готовых мешей чанков.
package render

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/voxel"
)

// Mesh загруженная пара мешей чанка
type Mesh struct {
	Opaque      voxel.MeshData
	Translucent voxel.MeshData
	Version     int
}

// Recorder хранит копии выгруженных мешей в памяти. Используется там, где
// нет GPU: на сервере отладки и в тестах.
type Recorder struct {
	mu      sync.RWMutex
	meshes  map[vec.Vec3]*Mesh
	uploads int
}

// NewRecorder создаёт пустой Recorder
func NewRecorder() *Recorder {
	return &Recorder{meshes: make(map[vec.Vec3]*Mesh)}
}

// CreateOrUpdateMesh копирует данные: буферы чанка переиспользуются при следующем построении
func (r *Recorder) CreateOrUpdateMesh(index vec.Vec3, opaque, translucent voxel.MeshData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.meshes[index]
	if !ok {
		m = &Mesh{}
		r.meshes[index] = m
	}
	m.Opaque = opaque.Clone()
	m.Translucent = translucent.Clone()
	m.Version++
	r.uploads++
}

// Mesh копия последнего меша чанка
func (r *Recorder) Mesh(index vec.Vec3) (Mesh, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meshes[index]
	if !ok {
		return Mesh{}, false
	}
	return *m, true
}

// Remove забывает меш выгруженного чанка
func (r *Recorder) Remove(index vec.Vec3) {
	r.mu.Lock()
	delete(r.meshes, index)
	r.mu.Unlock()
}

// Uploads общее число выгрузок
func (r *Recorder) Uploads() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uploads
}

// Stats сводка по загруженной геометрии
type Stats struct {
	Chunks      int `json:"chunks"`
	Uploads     int `json:"uploads"`
	Vertices    int `json:"vertices"`
	Triangles   int `json:"triangles"`
	Translucent int `json:"translucent_chunks"`
}

// Stats считает вершины и треугольники всех мешей
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Chunks: len(r.meshes), Uploads: r.uploads}
	for _, m := range r.meshes {
		s.Vertices += m.Opaque.VertexCount() + m.Translucent.VertexCount()
		s.Triangles += (m.Opaque.IndexCount + m.Translucent.IndexCount) / 3
		if !m.Translucent.Empty() {
			s.Translucent++
		}
	}
	return s
}

// Indices индексы чанков с мешами в порядке (Y, Z, X)
func (r *Recorder) Indices() []vec.Vec3 {
	r.mu.RLock()
	out := make([]vec.Vec3, 0, len(r.meshes))
	for idx := range r.meshes {
		out = append(out, idx)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
	return out
}
