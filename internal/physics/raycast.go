package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-terrain/internal/vec"
)

// Hit результат луча
type Hit struct {
	Block    vec.Vec3 `json:"block"`    // попавший блок
	Normal   vec.Vec3 `json:"normal"`   // грань входа; нулевая, если луч начался внутри блока
	Distance float32  `json:"distance"` // расстояние от начала луча
}

// Adjacent клетка перед гранью попадания, куда ставится новый блок
func (h Hit) Adjacent() vec.Vec3 {
	return h.Block.Add(h.Normal)
}

// Raycast проходит по клеткам сетки вдоль луча (DDA) и возвращает первый
// твёрдый блок не дальше maxDist.
func Raycast(w Solid, origin, dir mgl32.Vec3, maxDist float32) (Hit, bool) {
	if maxDist <= 0 || dir.Len() == 0 {
		return Hit{}, false
	}
	d := dir.Normalize()

	var (
		cell   [3]int
		step   [3]int
		tMax   [3]float32
		tDelta [3]float32
	)
	inf := float32(math.Inf(1))
	for i := 0; i < 3; i++ {
		cell[i] = floor(origin[i])
		switch {
		case d[i] > 0:
			step[i] = 1
			tMax[i] = (float32(cell[i]+1) - origin[i]) / d[i]
			tDelta[i] = 1 / d[i]
		case d[i] < 0:
			step[i] = -1
			tMax[i] = (origin[i] - float32(cell[i])) / -d[i]
			tDelta[i] = -1 / d[i]
		default:
			tMax[i], tDelta[i] = inf, inf
		}
	}

	var normal [3]int
	dist := float32(0)
	for dist <= maxDist {
		if w.IsSolidAt(cell[0], cell[1], cell[2]) {
			return Hit{
				Block:    vec.Vec3{X: cell[0], Y: cell[1], Z: cell[2]},
				Normal:   vec.Vec3{X: normal[0], Y: normal[1], Z: normal[2]},
				Distance: dist,
			}, true
		}

		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		dist = tMax[axis]
		cell[axis] += step[axis]
		tMax[axis] += tDelta[axis]
		normal = [3]int{}
		normal[axis] = -step[axis]
	}
	return Hit{}, false
}
