package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/annel0/voxel-terrain/internal/auth"
	"github.com/annel0/voxel-terrain/internal/logging"
)

// TokenRequest учётные данные редактора
type TokenRequest struct {
	Name string `json:"name" binding:"required"`
	Key  string `json:"key" binding:"required"`
}

// TokenResponse выданный токен
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleIssueToken обменивает имя и ключ редактора на JWT
func (rs *RestServer) handleIssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if rs.editors == nil {
		c.JSON(http.StatusForbidden, GenericResponse{Success: false, Message: "Редакторы не настроены"})
		return
	}

	editor, err := rs.editors.ValidateCredentials(req.Name, req.Key)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logging.Warn("неудачный вход редактора %q с %s", req.Name, c.ClientIP())
			c.JSON(http.StatusUnauthorized, GenericResponse{Success: false, Message: "Неверное имя или ключ"})
			return
		}
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: err.Error()})
		return
	}

	token, expires, err := rs.issuer.Issue(editor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	logging.Info("🔑 выдан токен редактору %s", editor.Name)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Токен выдан",
		Data:    TokenResponse{Token: token, ExpiresAt: expires},
	})
}
