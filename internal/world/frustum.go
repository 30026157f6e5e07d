package world

import "github.com/go-gl/mathgl/mgl32"

// Frustum шесть плоскостей пирамиды видимости (нормали смотрят внутрь)
type Frustum struct {
	planes [6]mgl32.Vec4
}

// NewFrustum извлекает плоскости из матрицы view-projection
func NewFrustum(viewProj mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	f := Frustum{planes: [6]mgl32.Vec4{
		r3.Add(r0), // левая
		r3.Sub(r0), // правая
		r3.Add(r1), // нижняя
		r3.Sub(r1), // верхняя
		r3.Add(r2), // ближняя
		r3.Sub(r2), // дальняя
	}}
	for i, p := range f.planes {
		if l := p.Vec3().Len(); l > 0 {
			f.planes[i] = p.Mul(1 / l)
		}
	}
	return f
}

// IntersectsAABB true, если бокс хотя бы частично внутри пирамиды
func (f Frustum) IntersectsAABB(lo, hi mgl32.Vec3) bool {
	for _, p := range f.planes {
		// самая дальняя вдоль нормали вершина бокса
		v := lo
		if p[0] >= 0 {
			v[0] = hi[0]
		}
		if p[1] >= 0 {
			v[1] = hi[1]
		}
		if p[2] >= 0 {
			v[2] = hi[2]
		}
		if p.Vec3().Dot(v)+p[3] < 0 {
			return false
		}
	}
	return true
}

// ChunkBounds мировой AABB чанка
func ChunkBounds(c *Chunk) (mgl32.Vec3, mgl32.Vec3) {
	o := c.Origin()
	lo := mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)}
	return lo, lo.Add(mgl32.Vec3{ChunkSize, ChunkSize, ChunkSize})
}
