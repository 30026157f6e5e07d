package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Solid мир, отвечающий на вопрос о коллизии блока. Неизвестное пространство
// считается твёрдым.
type Solid interface {
	IsSolidAt(x, y, z int) bool
}

// AABB выровненный по осям параллелепипед в мировых координатах
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Intersects пересекаются ли объёмы (касание гранями не считается)
func (a AABB) Intersects(b AABB) bool {
	for i := 0; i < 3; i++ {
		if a.Max[i] <= b.Min[i] || a.Min[i] >= b.Max[i] {
			return false
		}
	}
	return true
}

// BoxCollider представляет простой прямоугольный коллайдер
type BoxCollider struct {
	Width  float32 // ширина по X и Z в блоках
	Height float32 // высота в блоках
}

// NewBoxCollider создаёт новый коллайдер с указанными размерами
func NewBoxCollider(width, height float32) BoxCollider {
	return BoxCollider{Width: width, Height: height}
}

// Bounds объём коллайдера, стоящего в точке feet (центр основания)
func (bc BoxCollider) Bounds(feet mgl32.Vec3) AABB {
	half := bc.Width / 2
	return AABB{
		Min: mgl32.Vec3{feet.X() - half, feet.Y(), feet.Z() - half},
		Max: mgl32.Vec3{feet.X() + half, feet.Y() + bc.Height, feet.Z() + half},
	}
}

// CheckBoxCollision проверяет столкновение двух коллайдеров
func CheckBoxCollision(pos1 mgl32.Vec3, collider1 BoxCollider, pos2 mgl32.Vec3, collider2 BoxCollider) bool {
	return collider1.Bounds(pos1).Intersects(collider2.Bounds(pos2))
}

// CollidesWithTerrain пересекает ли объём хотя бы один твёрдый блок
func CollidesWithTerrain(w Solid, box AABB) bool {
	minX, minY, minZ := floor(box.Min.X()), floor(box.Min.Y()), floor(box.Min.Z())
	maxX, maxY, maxZ := ceil(box.Max.X()), ceil(box.Max.Y()), ceil(box.Max.Z())
	for x := minX; x < maxX; x++ {
		for y := minY; y < maxY; y++ {
			for z := minZ; z < maxZ; z++ {
				if w.IsSolidAt(x, y, z) {
					return true
				}
			}
		}
	}
	return false
}

// CanMoveToPosition проверяет, помещается ли коллайдер в точке feet
func CanMoveToPosition(w Solid, feet mgl32.Vec3, collider BoxCollider) bool {
	return !CollidesWithTerrain(w, collider.Bounds(feet))
}

// FindStandingY ищет сверху вниз первую высоту в колонке (x, z), где коллайдер
// стоит на твёрдом блоке и ни с чем не пересекается.
func FindStandingY(w Solid, x, z, top int, collider BoxCollider) (int, bool) {
	cx, cz := float32(x)+0.5, float32(z)+0.5
	for y := top; y > 0; y-- {
		if !w.IsSolidAt(x, y-1, z) {
			continue
		}
		if CanMoveToPosition(w, mgl32.Vec3{cx, float32(y), cz}, collider) {
			return y, true
		}
	}
	return 0, false
}

func floor(v float32) int {
	return int(math.Floor(float64(v)))
}

func ceil(v float32) int {
	return int(math.Ceil(float64(v)))
}
