package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/annel0/voxel-terrain/internal/vec"
)

func lookAlongX() mgl32.Mat4 {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 200)
	view := mgl32.LookAtV(mgl32.Vec3{0, 16, 16}, mgl32.Vec3{100, 16, 16}, mgl32.Vec3{0, 1, 0})
	return proj.Mul4(view)
}

func TestFrustumIntersectsAABB(t *testing.T) {
	f := NewFrustum(lookAlongX())

	assert.True(t, f.IntersectsAABB(mgl32.Vec3{40, 0, 0}, mgl32.Vec3{72, 32, 32}), "прямо перед камерой")
	assert.False(t, f.IntersectsAABB(mgl32.Vec3{-72, 0, 0}, mgl32.Vec3{-40, 32, 32}), "позади")
	assert.False(t, f.IntersectsAABB(mgl32.Vec3{300, 0, 0}, mgl32.Vec3{332, 32, 32}), "дальше дальней плоскости")
	assert.False(t, f.IntersectsAABB(mgl32.Vec3{40, 0, 200}, mgl32.Vec3{72, 32, 232}), "сбоку")
	// камера внутри бокса
	assert.True(t, f.IntersectsAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{32, 32, 32}))
}

func TestVisibleChunksOnlyRenderable(t *testing.T) {
	tr := NewTerrain(nil, Options{Size: vec.Vec3{X: 4, Y: 1, Z: 1}})
	for _, c := range tr.Chunks() {
		c.advance(StateRenderable)
	}
	stale, _ := tr.ChunkAt(vec.Vec3{X: 2})
	stale.markDirty()

	visible := tr.VisibleChunks(lookAlongX())
	var indices []vec.Vec3
	for _, c := range visible {
		indices = append(indices, c.Index)
	}
	// чанк с камерой и впереди, кроме грязного
	assert.Equal(t, []vec.Vec3{{X: 0}, {X: 1}, {X: 3}}, indices)
}
