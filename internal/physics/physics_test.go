package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-terrain/internal/vec"
)

// floorWorld твёрдо всё ниже floorY и отдельные блоки
type floorWorld struct {
	floorY int
	blocks map[vec.Vec3]bool
}

func (w floorWorld) IsSolidAt(x, y, z int) bool {
	return y < w.floorY || w.blocks[vec.Vec3{X: x, Y: y, Z: z}]
}

func TestRaycastDown(t *testing.T) {
	w := floorWorld{floorY: 10}
	hit, ok := Raycast(w, mgl32.Vec3{3.5, 20.5, 3.5}, mgl32.Vec3{0, -1, 0}, 32)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 3, Y: 9, Z: 3}, hit.Block)
	assert.Equal(t, vec.Vec3{Y: 1}, hit.Normal)
	assert.InDelta(t, 10.5, hit.Distance, 1e-4)
	assert.Equal(t, vec.Vec3{X: 3, Y: 10, Z: 3}, hit.Adjacent())
}

func TestRaycastSideHitAndRange(t *testing.T) {
	w := floorWorld{floorY: 0, blocks: map[vec.Vec3]bool{{X: 5, Y: 2, Z: 0}: true}}
	origin := mgl32.Vec3{0.5, 2.5, 0.5}

	hit, ok := Raycast(w, origin, mgl32.Vec3{1, 0, 0}, 10)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 5, Y: 2, Z: 0}, hit.Block)
	assert.Equal(t, vec.Vec3{X: -1}, hit.Normal)

	_, ok = Raycast(w, origin, mgl32.Vec3{1, 0, 0}, 3)
	assert.False(t, ok, "блок дальше дистанции")

	_, ok = Raycast(w, origin, mgl32.Vec3{0, 1, 0}, 50)
	assert.False(t, ok, "вверх ничего нет")

	_, ok = Raycast(w, origin, mgl32.Vec3{}, 50)
	assert.False(t, ok)
}

func TestRaycastStartsInsideSolid(t *testing.T) {
	w := floorWorld{floorY: 10}
	hit, ok := Raycast(w, mgl32.Vec3{1.5, 5.5, 1.5}, mgl32.Vec3{0, 1, 0}, 4)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 1, Y: 5, Z: 1}, hit.Block)
	assert.Equal(t, vec.Vec3{}, hit.Normal)
	assert.Zero(t, hit.Distance)
}

func TestBoxCollision(t *testing.T) {
	c := NewBoxCollider(1, 2)
	assert.True(t, CheckBoxCollision(mgl32.Vec3{0, 0, 0}, c, mgl32.Vec3{0.5, 1, 0.5}, c))
	assert.False(t, CheckBoxCollision(mgl32.Vec3{0, 0, 0}, c, mgl32.Vec3{1, 0, 0}, c), "касание не столкновение")
	assert.False(t, CheckBoxCollision(mgl32.Vec3{0, 0, 0}, c, mgl32.Vec3{0, 2, 0}, c))
}

func TestCanMoveToPosition(t *testing.T) {
	w := floorWorld{floorY: 10, blocks: map[vec.Vec3]bool{{X: 2, Y: 11, Z: 2}: true}}
	c := NewBoxCollider(0.6, 1.8)

	assert.True(t, CanMoveToPosition(w, mgl32.Vec3{0.5, 10, 0.5}, c))
	assert.False(t, CanMoveToPosition(w, mgl32.Vec3{0.5, 9.5, 0.5}, c), "ноги в земле")
	assert.False(t, CanMoveToPosition(w, mgl32.Vec3{2.5, 10, 2.5}, c), "голова в блоке")
	assert.False(t, CanMoveToPosition(w, mgl32.Vec3{1.8, 10, 2.5}, c), "край задевает блок")
}

func TestFindStandingY(t *testing.T) {
	// навес над землёй: стоять можно только на нём или под ним при достаточной высоте
	w := floorWorld{floorY: 10, blocks: map[vec.Vec3]bool{{X: 0, Y: 11, Z: 0}: true}}
	c := NewBoxCollider(0.6, 1.8)

	y, ok := FindStandingY(w, 0, 0, 30, c)
	require.True(t, ok)
	assert.Equal(t, 12, y, "на навесе")

	// под навесом высоты 1 не помещается, поиск с высоты под ним ничего не находит
	_, ok = FindStandingY(w, 0, 0, 10, c)
	assert.False(t, ok)

	y, ok = FindStandingY(w, 5, 5, 30, c)
	require.True(t, ok)
	assert.Equal(t, 10, y)
}
