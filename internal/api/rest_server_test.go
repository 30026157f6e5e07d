package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-terrain/internal/eventbus"
	"github.com/annel0/voxel-terrain/internal/render"
	"github.com/annel0/voxel-terrain/internal/util"
	"github.com/annel0/voxel-terrain/internal/vec"
	"github.com/annel0/voxel-terrain/internal/worker"
	"github.com/annel0/voxel-terrain/internal/world"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*RestServer, *world.Terrain) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool := worker.NewPool(2)
	t.Cleanup(func() { pool.Close() })

	tr := world.NewTerrain(pool, world.Options{
		Size:    vec.Vec3{X: 1, Y: 2, Z: 1},
		Role:    world.RoleServer,
		Density: util.FlatDensity{Height: 40},
	})
	bus := eventbus.NewMemoryBus(16)
	t.Cleanup(func() { bus.Close() })

	rs := NewRestServer(Config{
		Terrain:  tr,
		Meshes:   render.NewRecorder(),
		Bus:      bus,
		Registry: prometheus.NewRegistry(),
	})
	return rs, tr
}

func do(t *testing.T, rs *RestServer, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rs.Handler().ServeHTTP(w, req)

	var resp apiResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestBlockRoutesWaitForGeneration(t *testing.T) {
	rs, tr := newTestServer(t)

	code, resp := do(t, rs, http.MethodGet, "/api/world/block?x=1&y=1&z=1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Success)

	// статистика доступна всегда
	code, _ = do(t, rs, http.MethodGet, "/api/world/stats", nil)
	assert.Equal(t, http.StatusOK, code)

	require.NoError(t, tr.Generate(context.Background()))
	code, _ = do(t, rs, http.MethodGet, "/api/world/block?x=1&y=1&z=1", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealth(t *testing.T) {
	rs, tr := newTestServer(t)
	require.NoError(t, tr.Generate(context.Background()))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	rs.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ready"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestBlockEditing(t *testing.T) {
	rs, tr := newTestServer(t)
	require.NoError(t, tr.Generate(context.Background()))

	code, resp := do(t, rs, http.MethodGet, "/api/world/block?x=3&y=50&z=3", nil)
	require.Equal(t, http.StatusOK, code)
	var b BlockResponse
	require.NoError(t, json.Unmarshal(resp.Data, &b))
	assert.Equal(t, "air", b.Material)

	code, resp = do(t, rs, http.MethodPut, "/api/world/block", SetBlockRequest{X: 3, Y: 50, Z: 3, Material: "sand", Color: []int{300, 2, -1}})
	require.Equal(t, http.StatusOK, code, resp.Message)
	require.NoError(t, json.Unmarshal(resp.Data, &b))
	assert.Equal(t, "sand", b.Material)
	assert.Equal(t, uint8(255), b.Block.R)
	assert.Equal(t, uint8(0), b.Block.B)

	code, resp = do(t, rs, http.MethodGet, "/api/world/column?x=3&z=3", nil)
	require.Equal(t, http.StatusOK, code)
	var col struct {
		HighestY int `json:"highest_y"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &col))
	assert.Equal(t, 50, col.HighestY)

	code, _ = do(t, rs, http.MethodDelete, "/api/world/block?x=3&y=50&z=3", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, tr.GetBlockSafe(3, 50, 3).IsAir())

	code, _ = do(t, rs, http.MethodPut, "/api/world/block", SetBlockRequest{X: 3, Y: 500, Z: 3, Material: "sand"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, rs, http.MethodPut, "/api/world/block", SetBlockRequest{X: 3, Y: 50, Z: 3, Material: "unobtainium"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, rs, http.MethodGet, "/api/world/block?x=a&y=1&z=1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDamageBlock(t *testing.T) {
	rs, tr := newTestServer(t)
	require.NoError(t, tr.Generate(context.Background()))

	code, resp := do(t, rs, http.MethodPost, "/api/world/block/damage", DamageRequest{X: 4, Y: 20, Z: 4, Amount: 5})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var out struct {
		Destroyed bool `json:"destroyed"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.False(t, out.Destroyed)
	assert.Equal(t, uint8(10), tr.GetBlockSafe(4, 20, 4).Health)

	code, resp = do(t, rs, http.MethodPost, "/api/world/block/damage", DamageRequest{X: 4, Y: 20, Z: 4, Amount: 50})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.True(t, out.Destroyed)
	assert.True(t, tr.GetBlockSafe(4, 20, 4).IsAir())

	// воздух урон не получает
	code, _ = do(t, rs, http.MethodPost, "/api/world/block/damage", DamageRequest{X: 4, Y: 20, Z: 4, Amount: 1})
	assert.Equal(t, http.StatusConflict, code)
}

func TestChunkRoutes(t *testing.T) {
	rs, tr := newTestServer(t)
	require.NoError(t, tr.Generate(context.Background()))

	code, resp := do(t, rs, http.MethodGet, "/api/world/chunks", nil)
	require.Equal(t, http.StatusOK, code)
	var infos []ChunkInfo
	require.NoError(t, json.Unmarshal(resp.Data, &infos))
	assert.Len(t, infos, 2)

	code, resp = do(t, rs, http.MethodGet, "/api/world/chunks/0/1/0", nil)
	require.Equal(t, http.StatusOK, code)
	var info ChunkInfo
	require.NoError(t, json.Unmarshal(resp.Data, &info))
	assert.Equal(t, vec.Vec3{X: 0, Y: 1, Z: 0}, info.Index)
	assert.False(t, info.BeingWorkedOn)

	code, _ = do(t, rs, http.MethodGet, "/api/world/chunks/5/5/5", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, rs, http.MethodGet, "/api/world/chunks/x/0/0", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWorldStats(t *testing.T) {
	rs, tr := newTestServer(t)
	require.NoError(t, tr.Generate(context.Background()))

	code, resp := do(t, rs, http.MethodGet, "/api/world/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats WorldStatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 2, stats.World.Chunks)
	assert.True(t, stats.World.Ready)
	assert.Equal(t, "server", stats.World.Role)
	require.NotNil(t, stats.Meshes)
	require.NotNil(t, stats.Events)
}

func TestVisibleChunksServerRole(t *testing.T) {
	rs, tr := newTestServer(t)
	require.NoError(t, tr.Generate(context.Background()))

	proj := mgl32.Perspective(mgl32.DegToRad(90), 1, 0.1, 500)
	view := mgl32.LookAtV(mgl32.Vec3{-10, 32, 16}, mgl32.Vec3{100, 32, 16}, mgl32.Vec3{0, 1, 0})
	code, resp := do(t, rs, http.MethodPost, "/api/world/visible", VisibleRequest{ViewProj: [16]float32(proj.Mul4(view))})
	require.Equal(t, http.StatusOK, code)
	var indices []vec.Vec3
	require.NoError(t, json.Unmarshal(resp.Data, &indices))
	// без мешей ни один чанк не готов к отрисовке
	assert.Empty(t, indices)
}

func TestMetricsEndpoint(t *testing.T) {
	rs, _ := newTestServer(t)
	do(t, rs, http.MethodGet, "/api/server", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	rs.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "terrain_api_http_request_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	rs, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/world/block", nil)
	w := httptest.NewRecorder()
	rs.Handler().ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
