package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
)

// PantryHandler handles pantry stock operations.
type PantryHandler struct {
	st *store.Store
}

// NewPantryHandler creates a PantryHandler.
func NewPantryHandler(st *store.Store) *PantryHandler {
	return &PantryHandler{st: st}
}

// GetPantry handles GET /v1/pantry.
func (h *PantryHandler) GetPantry(c *gin.Context) {
	state := h.st.State()
	c.JSON(http.StatusOK, gin.H{"items": state.Pantry.Items})
}

// UpsertItem handles PUT /v1/pantry/:id and POST /v1/pantry.
func (h *PantryHandler) UpsertItem(c *gin.Context) {
	var request struct {
		Name      string  `json:"name" binding:"required"`
		Quantity  float64 `json:"quantity"`
		Unit      string  `json:"unit"`
		Location  string  `json:"location"`
		ExpiresAt int64   `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid", Error: "name is required"})
		return
	}

	cmd := store.UpsertPantryItem{
		ItemID:    models.UUID(c.Param("id")), // empty on POST, reducer assigns one
		Name:      request.Name,
		Quantity:  request.Quantity,
		Unit:      request.Unit,
		Location:  request.Location,
		ExpiresAt: request.ExpiresAt,
	}
	if err := h.st.Dispatch(cmd); err != nil {
		HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upserted": true})
}

// RemoveItem handles DELETE /v1/pantry/:id.
func (h *PantryHandler) RemoveItem(c *gin.Context) {
	cmd := store.RemovePantryItem{ItemID: models.UUID(c.Param("id"))}
	if err := h.st.Dispatch(cmd); err != nil {
		HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
