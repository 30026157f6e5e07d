package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-terrain/internal/eventbus"
	"github.com/annel0/voxel-terrain/internal/render"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/world"
	"github.com/annel0/voxel-terrain/internal/world/block"
)

// WorldStatsResponse статистика мира, мешей и шины
type WorldStatsResponse struct {
	World  world.Stats     `json:"world"`
	Meshes *render.Stats   `json:"meshes,omitempty"`
	Events *eventbus.Stats `json:"events,omitempty"`
}

// ChunkInfo состояние одного чанка
type ChunkInfo struct {
	Index         vec.Vec3 `json:"index"`
	State         string   `json:"state"`
	Dirty         bool     `json:"dirty"`
	LightingDirty bool     `json:"lighting_dirty"`
	SunlightReady bool     `json:"sunlight_ready"`
	BeingWorkedOn bool     `json:"being_worked_on"`
}

// BlockResponse блок и его освещённость
type BlockResponse struct {
	Position vec.Vec3    `json:"position"`
	Material string      `json:"material"`
	Block    block.Block `json:"block"`
	Sunlight uint8       `json:"sunlight"`
}

// SetBlockRequest запрос установки блока. Без цвета берётся базовый цвет материала.
type SetBlockRequest struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Z        int    `json:"z"`
	Material string `json:"material" binding:"required"`
	Color    []int  `json:"color,omitempty"`
}

// DamageRequest запрос урона блоку
type DamageRequest struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Z      int `json:"z"`
	Amount int `json:"amount" binding:"required,min=1"`
}

// VisibleRequest матрица view-projection по столбцам (как в mgl32)
type VisibleRequest struct {
	ViewProj [16]float32 `json:"view_proj"`
}

func chunkInfo(c *world.Chunk) ChunkInfo {
	return ChunkInfo{
		Index:         c.Index,
		State:         c.State().String(),
		Dirty:         c.Dirty(),
		LightingDirty: c.Lighting.IsDirty(),
		SunlightReady: c.SunlightReady(),
		BeingWorkedOn: c.BeingWorkedOn(),
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: msg})
}

// queryInts читает целые параметры запроса
func queryInts(c *gin.Context, names ...string) ([]int, bool) {
	out := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(c.Query(name))
		if err != nil {
			badRequest(c, "Параметр "+name+" должен быть целым числом")
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func (rs *RestServer) handleWorldStats(c *gin.Context) {
	resp := WorldStatsResponse{World: rs.terrain.Stats()}
	if rs.meshes != nil {
		s := rs.meshes.Stats()
		resp.Meshes = &s
	}
	if rs.bus != nil {
		s := rs.bus.Metrics()
		resp.Events = &s
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Статистика получена", Data: resp})
}

func (rs *RestServer) handleListChunks(c *gin.Context) {
	chunks := rs.terrain.Chunks()
	infos := make([]ChunkInfo, 0, len(chunks))
	for _, ch := range chunks {
		infos = append(infos, chunkInfo(ch))
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Список чанков", Data: infos})
}

func (rs *RestServer) handleGetChunk(c *gin.Context) {
	var idx vec.Vec3
	var err error
	if idx.X, err = strconv.Atoi(c.Param("x")); err == nil {
		if idx.Y, err = strconv.Atoi(c.Param("y")); err == nil {
			idx.Z, err = strconv.Atoi(c.Param("z"))
		}
	}
	if err != nil {
		badRequest(c, "Индекс чанка должен состоять из целых чисел")
		return
	}

	ch, ok := rs.terrain.ChunkAt(idx)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Чанк не найден"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Чанк найден", Data: chunkInfo(ch)})
}

func (rs *RestServer) blockResponse(x, y, z int) BlockResponse {
	b := rs.terrain.GetBlockSafe(x, y, z)
	return BlockResponse{
		Position: vec.Vec3{X: x, Y: y, Z: z},
		Material: b.Material.String(),
		Block:    b,
		Sunlight: rs.terrain.SunlightAt(x, y, z),
	}
}

func (rs *RestServer) handleGetBlock(c *gin.Context) {
	p, ok := queryInts(c, "x", "y", "z")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Блок", Data: rs.blockResponse(p[0], p[1], p[2])})
}

func (rs *RestServer) handleSetBlock(c *gin.Context) {
	var req SetBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	m, ok := block.ParseMaterial(req.Material)
	if !ok {
		badRequest(c, "Неизвестный материал "+req.Material)
		return
	}

	b := block.New(m)
	if len(req.Color) == 3 && !b.IsAir() {
		b = block.NewColored(m, clampByte(req.Color[0]), clampByte(req.Color[1]), clampByte(req.Color[2]))
	}
	if !rs.terrain.SetBlock(req.X, req.Y, req.Z, b) {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Координаты вне мира"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Блок установлен", Data: rs.blockResponse(req.X, req.Y, req.Z)})
}

func (rs *RestServer) handleRemoveBlock(c *gin.Context) {
	p, ok := queryInts(c, "x", "y", "z")
	if !ok {
		return
	}
	if !rs.terrain.RemoveBlock(p[0], p[1], p[2]) {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Координаты вне мира"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Блок удалён", Data: rs.blockResponse(p[0], p[1], p[2])})
}

func (rs *RestServer) handleDamageBlock(c *gin.Context) {
	var req DamageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	destroyed, ok := rs.terrain.DamageBlock(req.X, req.Y, req.Z, req.Amount)
	if !ok {
		c.JSON(http.StatusConflict, GenericResponse{Success: false, Message: "Блок не получил урона"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Урон нанесён",
		Data: gin.H{
			"destroyed": destroyed,
			"block":     rs.blockResponse(req.X, req.Y, req.Z),
		},
	})
}

func (rs *RestServer) handleColumn(c *gin.Context) {
	p, ok := queryInts(c, "x", "z")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Высота колонки",
		Data:    gin.H{"x": p[0], "z": p[1], "highest_y": rs.terrain.HighestY(p[0], p[1])},
	})
}

func (rs *RestServer) handleVisibleChunks(c *gin.Context) {
	var req VisibleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	visible := rs.terrain.VisibleChunks(mgl32.Mat4(req.ViewProj))
	indices := make([]vec.Vec3, 0, len(visible))
	for _, ch := range visible {
		indices = append(indices, ch.Index)
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Видимые чанки", Data: indices})
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
