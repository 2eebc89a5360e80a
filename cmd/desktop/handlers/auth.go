package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pentrypal/app/core/internal/api"
	"github.com/pentrypal/app/core/internal/sync"
)

// AuthHandler handles login and logout.
type AuthHandler struct {
	client *api.Client
	engine *sync.Engine
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(client *api.Client, engine *sync.Engine) *AuthHandler {
	return &AuthHandler{client: client, engine: engine}
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid", Error: "email and password are required"})
		return
	}

	resp, err := h.client.Login(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    resp.Session.UserID,
		"expires_at": resp.Session.ExpiresAt,
		"profile":    resp.Profile,
	})
}

// Logout handles POST /v1/auth/logout. The offline queue is wiped along
// with the session; captured actions belong to the account that made
// them.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.engine.Reset()
	if err := h.client.Logout(c.Request.Context()); err != nil {
		// Session is cleared locally regardless
		c.JSON(http.StatusOK, gin.H{"logged_out": true, "server_error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}
