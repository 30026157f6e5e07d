package voxel

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Face номер грани блока. Порядок совпадает с vec.FaceDirections.
type Face int

const (
	FacePosX Face = iota
	FaceNegX
	FacePosY
	FaceNegY
	FacePosZ
	FaceNegZ
	FaceCount
)

// AllFaces маска всех шести граней
const AllFaces uint8 = 1<<FaceCount - 1

// Значения AO по числу непрозрачных блоков среди (сторона, сторона, угол)
const (
	AOFull    float32 = 0.6
	AOPartial float32 = 0.3
)

type faceDef struct {
	normal      [3]int
	base        [3]int
	t1, t2      [3]int
	directional float32
}

// Для каждой грани t2 × t1 = normal, поэтому обход (0,0),(0,1),(1,1),(1,0)
// идёт против часовой стрелки при взгляде снаружи.
var faces = [FaceCount]faceDef{
	FacePosX: {normal: [3]int{1, 0, 0}, base: [3]int{1, 0, 0}, t1: [3]int{0, 0, 1}, t2: [3]int{0, 1, 0}, directional: 0.2},
	FaceNegX: {normal: [3]int{-1, 0, 0}, base: [3]int{0, 0, 0}, t1: [3]int{0, 1, 0}, t2: [3]int{0, 0, 1}, directional: 0.2},
	FacePosY: {normal: [3]int{0, 1, 0}, base: [3]int{0, 1, 0}, t1: [3]int{1, 0, 0}, t2: [3]int{0, 0, 1}, directional: 0},
	FaceNegY: {normal: [3]int{0, -1, 0}, base: [3]int{0, 0, 0}, t1: [3]int{0, 0, 1}, t2: [3]int{1, 0, 0}, directional: 0.5},
	FacePosZ: {normal: [3]int{0, 0, 1}, base: [3]int{0, 0, 1}, t1: [3]int{0, 1, 0}, t2: [3]int{1, 0, 0}, directional: 0.3},
	FaceNegZ: {normal: [3]int{0, 0, -1}, base: [3]int{0, 0, 0}, t1: [3]int{1, 0, 0}, t2: [3]int{0, 1, 0}, directional: 0.3},
}

var quadCorners = [4][2]int{{0, 0}, {0, 1}, {1, 1}, {1, 0}}

// Normal возвращает нормаль грани
func (f Face) Normal() (int, int, int) {
	n := faces[f].normal
	return n[0], n[1], n[2]
}

// Directional направленное затемнение грани
func (f Face) Directional() float32 {
	return faces[f].directional
}

// AmbientOcclusion значение затенения вершины: 3 непрозрачных соседа дают 0.6,
// один или два дают 0.3, ни одного 0.
func AmbientOcclusion(side1, side2, corner bool) float32 {
	n := 0
	for _, s := range [3]bool{side1, side2, corner} {
		if s {
			n++
		}
	}
	switch {
	case n == 3:
		return AOFull
	case n > 0:
		return AOPartial
	default:
		return 0
	}
}

// Shade совмещает AO и освещённость: берётся большее из AO и 1 - light/31
func Shade(ao float32, light uint8) float32 {
	if light > MaxLight {
		light = MaxLight
	}
	s := 1 - float32(light)/MaxLight
	if ao > s {
		s = ao
	}
	return mgl32.Clamp(s, 0, 1)
}

// VisibleFaces маска граней блока, которые нужно выводить
func VisibleFaces(src Source, x, y, z int) uint8 {
	b := src.BlockAt(x, y, z)
	if b.IsAir() {
		return 0
	}
	var mask uint8
	for f := Face(0); f < FaceCount; f++ {
		n := faces[f].normal
		neighbor := src.BlockAt(x+n[0], y+n[1], z+n[2])
		if !neighbor.Occludes(b) {
			mask |= 1 << f
		}
	}
	return mask
}

// AppendBlock добавляет видимые грани блока. Полупрозрачные блоки идут в translucent.
func AppendBlock(src Source, x, y, z int, mask uint8, origin mgl32.Vec3, opaque, translucent *MeshBuilder) {
	if mask == 0 {
		return
	}
	b := src.BlockAt(x, y, z)
	if b.IsAir() {
		return
	}

	target := opaque
	if b.Translucent() {
		target = translucent
	}
	if target == nil {
		return
	}

	color := mgl32.Vec4{float32(b.R) / 255, float32(b.G) / 255, float32(b.B) / 255, b.Alpha()}
	pos := mgl32.Vec3{origin[0] + float32(x), origin[1] + float32(y), origin[2] + float32(z)}

	for f := Face(0); f < FaceCount; f++ {
		if mask&(1<<f) == 0 {
			continue
		}
		def := &faces[f]
		nx, ny, nz := x+def.normal[0], y+def.normal[1], z+def.normal[2]
		light := src.SunlightAt(nx, ny, nz)

		var corners [4]mgl32.Vec3
		var ao, shade [4]float32
		for i, uv := range quadCorners {
			u, v := uv[0], uv[1]
			corners[i] = pos.Add(mgl32.Vec3{
				float32(def.base[0] + u*def.t1[0] + v*def.t2[0]),
				float32(def.base[1] + u*def.t1[1] + v*def.t2[1]),
				float32(def.base[2] + u*def.t1[2] + v*def.t2[2]),
			})

			su, sv := 2*u-1, 2*v-1
			s1 := src.BlockAt(nx+su*def.t1[0], ny+su*def.t1[1], nz+su*def.t1[2]).Opaque()
			s2 := src.BlockAt(nx+sv*def.t2[0], ny+sv*def.t2[1], nz+sv*def.t2[2]).Opaque()
			c := src.BlockAt(
				nx+su*def.t1[0]+sv*def.t2[0],
				ny+su*def.t1[1]+sv*def.t2[1],
				nz+su*def.t1[2]+sv*def.t2[2],
			).Opaque()
			ao[i] = AmbientOcclusion(s1, s2, c)
			shade[i] = Shade(ao[i], light)
		}

		normal := mgl32.Vec3{float32(def.normal[0]), float32(def.normal[1]), float32(def.normal[2])}
		flip := ao[0]+ao[2] > ao[1]+ao[3]
		target.AddQuad(corners, normal, color, shade, def.directional, flip)
	}
}

// BuildMesh строит меш всего объёма без кэша видимости
func BuildMesh(vol Volume, origin mgl32.Vec3, opaque, translucent *MeshBuilder) {
	w, h, d := vol.Dims()
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				mask := VisibleFaces(vol, x, y, z)
				AppendBlock(vol, x, y, z, mask, origin, opaque, translucent)
			}
		}
	}
}
