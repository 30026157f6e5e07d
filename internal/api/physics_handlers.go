package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-terrain/internal/physics"
	"github.com/annel0/voxel-terrain/internal/vec"
)

// maxRayDistance предел длины луча, чтобы запрос не обходил весь мир
const maxRayDistance = 256

// RaycastRequest луч в мировых координатах
type RaycastRequest struct {
	Origin      [3]float32 `json:"origin"`
	Direction   [3]float32 `json:"direction"`
	MaxDistance float32    `json:"max_distance"`
}

// RaycastResponse первый твёрдый блок на луче
type RaycastResponse struct {
	Hit      bool           `json:"hit"`
	Result   *physics.Hit   `json:"result,omitempty"`
	Block    *BlockResponse `json:"block,omitempty"`
	Adjacent *vec.Vec3      `json:"adjacent,omitempty"`
}

// SpawnResponse точка, где помещается коллайдер
type SpawnResponse struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// spawnCollider размер персонажа по умолчанию
var spawnCollider = physics.NewBoxCollider(0.6, 1.8)

func (rs *RestServer) handleRaycast(c *gin.Context) {
	var req RaycastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	dir := mgl32.Vec3(req.Direction)
	if dir.Len() == 0 {
		badRequest(c, "Нулевое направление луча")
		return
	}
	dist := req.MaxDistance
	if dist <= 0 || dist > maxRayDistance {
		dist = maxRayDistance
	}

	hit, ok := physics.Raycast(rs.terrain, mgl32.Vec3(req.Origin), dir, dist)
	resp := RaycastResponse{Hit: ok}
	if ok {
		block := rs.blockResponse(hit.Block.X, hit.Block.Y, hit.Block.Z)
		adjacent := hit.Adjacent()
		resp.Result, resp.Block, resp.Adjacent = &hit, &block, &adjacent
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Луч", Data: resp})
}

func (rs *RestServer) handleSpawn(c *gin.Context) {
	p, ok := queryInts(c, "x", "z")
	if !ok {
		return
	}
	size := rs.terrain.Size()
	if p[0] < 0 || p[1] < 0 || p[0] >= size.X*vec.ChunkSize || p[1] >= size.Z*vec.ChunkSize {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Координаты вне мира"})
		return
	}
	top := rs.terrain.HighestY(p[0], p[1])
	if top < 0 {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Колонка пуста"})
		return
	}
	y, found := physics.FindStandingY(rs.terrain, p[0], p[1], top+1, spawnCollider)
	if !found {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Нет места для появления"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Точка появления",
		Data:    SpawnResponse{X: p[0], Y: y, Z: p[1]},
	})
}
