package vec

import "fmt"

// ChunkShift и ChunkSize задают размер чанка по каждой оси (32 блока)
const (
	ChunkShift = 5
	ChunkSize  = 1 << ChunkShift
	chunkMask  = ChunkSize - 1
)

// Vec3 представляет трехмерный вектор с целочисленными координатами
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Направления шести граней: +X, -X, +Y, -Y, +Z, -Z
var (
	Right   = Vec3{1, 0, 0}
	Left    = Vec3{-1, 0, 0}
	Up      = Vec3{0, 1, 0}
	Down    = Vec3{0, -1, 0}
	Forward = Vec3{0, 0, 1}
	Back    = Vec3{0, 0, -1}
)

// FaceDirections упорядочены так же, как грани в пакете voxel
var FaceDirections = [6]Vec3{Right, Left, Up, Down, Forward, Back}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale умножает вектор на скаляр
func (v Vec3) Scale(k int) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// DistanceSq возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceSq(other Vec3) int {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// ChunkOf возвращает индекс чанка, содержащего мировую координату блока.
// Сдвиг корректно округляет отрицательные координаты вниз.
func ChunkOf(world Vec3) Vec3 {
	return Vec3{
		X: world.X >> ChunkShift,
		Y: world.Y >> ChunkShift,
		Z: world.Z >> ChunkShift,
	}
}

// LocalOf возвращает координату блока внутри его чанка (0..31)
func LocalOf(world Vec3) Vec3 {
	return Vec3{
		X: world.X & chunkMask,
		Y: world.Y & chunkMask,
		Z: world.Z & chunkMask,
	}
}

// ChunkOrigin возвращает мировую координату нулевого блока чанка
func ChunkOrigin(chunk Vec3) Vec3 {
	return Vec3{
		X: chunk.X << ChunkShift,
		Y: chunk.Y << ChunkShift,
		Z: chunk.Z << ChunkShift,
	}
}

// ToWorld собирает мировую координату из индекса чанка и локальной позиции
func ToWorld(chunk, local Vec3) Vec3 {
	return ChunkOrigin(chunk).Add(local)
}
