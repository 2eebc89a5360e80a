package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pentrypal/app/core/internal/store"
)

// StateHandler exposes the full client state snapshot to the UI shell.
type StateHandler struct {
	st *store.Store
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(st *store.Store) *StateHandler {
	return &StateHandler{st: st}
}

// GetState handles GET /v1/state. The UI renders from this snapshot and
// then follows the event stream for changes.
func (h *StateHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.st.State())
}

// UpdateProfile handles PUT /v1/profile.
func (h *StateHandler) UpdateProfile(c *gin.Context) {
	var request struct {
		DisplayName string `json:"display_name" binding:"required"`
		AvatarURL   string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid", Error: "display_name is required"})
		return
	}

	cmd := store.UpdateProfile{DisplayName: request.DisplayName, AvatarURL: request.AvatarURL}
	if err := h.st.Dispatch(cmd); err != nil {
		HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.st.State().Auth.Profile)
}
