package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/annel0/voxel-terrain/internal/logging"
)

// corsMiddleware разрешает запросы отладочных клиентов с других origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// readyMiddleware отвечает 503, пока мир не закончил предгенерацию
func (rs *RestServer) readyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rs.terrain.IsReady() {
			c.JSON(http.StatusServiceUnavailable, GenericResponse{
				Success: false,
				Message: "Мир ещё генерируется",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// editorKey ключ gin.Context с проверенными claims
const editorKey = "editor"

// authMiddleware требует Bearer токен редактора. Без издателя пропускает всё.
func (rs *RestServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.issuer == nil {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.Header("WWW-Authenticate", `Bearer realm="terrain"`)
			c.JSON(http.StatusUnauthorized, GenericResponse{Success: false, Message: "Требуется токен редактора"})
			c.Abort()
			return
		}
		claims, err := rs.issuer.Validate(token)
		if err != nil {
			logging.Debug("отклонён токен: %v", err)
			c.JSON(http.StatusUnauthorized, GenericResponse{Success: false, Message: "Недействительный токен"})
			c.Abort()
			return
		}
		c.Set(editorKey, claims)
		c.Next()
	}
}
