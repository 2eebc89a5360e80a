package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
	"github.com/pentrypal/app/core/internal/uuid"
)

// ListsHandler handles shopping list operations. Every mutation goes
// through the store so offline capture and persistence apply uniformly.
type ListsHandler struct {
	st *store.Store
}

// NewListsHandler creates a ListsHandler.
func NewListsHandler(st *store.Store) *ListsHandler {
	return &ListsHandler{st: st}
}

// GetLists handles GET /v1/lists.
func (h *ListsHandler) GetLists(c *gin.Context) {
	state := h.st.State()
	c.JSON(http.StatusOK, gin.H{
		"lists": state.ShoppingLists.Lists,
		"items": state.ShoppingLists.Items,
	})
}

// CreateList handles POST /v1/lists.
func (h *ListsHandler) CreateList(c *gin.Context) {
	var request struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid", Error: "name is required"})
		return
	}

	// Assign the id here so the created list can be looked up without
	// relying on its name, which is not unique
	listID := models.UUID(uuid.New())
	cmd := store.CreateList{ListID: listID, Name: request.Name}
	if err := h.st.Dispatch(cmd); err != nil {
		HandleError(c, err)
		return
	}

	state := h.st.State()
	var created *models.ShoppingList
	for _, list := range state.ShoppingLists.Lists {
		if list.ID == listID {
			created = list
		}
	}
	c.JSON(http.StatusCreated, created)
}

// RenameList handles PUT /v1/lists/:id.
func (h *ListsHandler) RenameList(c *gin.Context) {
	var request struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid", Error: "name is required"})
		return
	}

	cmd := store.RenameList{ListID: models.UUID(c.Param("id")), Name: request.Name}
	if err := h.st.Dispatch(cmd); err != nil {
		HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"renamed": true})
}

// DeleteList handles DELETE /v1/lists/:id.
func (h *ListsHandler) DeleteList(c *gin.Context) {
	cmd := store.DeleteList{ListID: models.UUID(c.Param("id"))}
	if err := h.st.Dispatch(cmd); err != nil {
		HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddItem handles POST /v1/lists/:id/items.
func (h *ListsHandler) AddItem(c *gin.Context) {
	var request struct {
		Name     string  `json:"name" binding:"required"`
		Quantity float64 `json:"quantity"`
		Unit     string  `json:"unit"`
		Category string  `json:"category"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid", Error: "name is required"})
		return
	}
	if request.Quantity == 0 {
		request.Quantity = 1
	}

	cmd := store.AddItem{
		ListID:   models.UUID(c.Param("id")),
		Name:     request.Name,
		Quantity: request.Quantity,
		Unit:     request.Unit,
		Category: request.Category,
	}
	if err := h.st.Dispatch(cmd); err != nil {
		HandleError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// CheckItem handles PUT /v1/items/:id/checked.
func (h *ListsHandler) CheckItem(c *gin.Context) {
	var request struct {
		Checked bool `json:"checked"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid", Error: "invalid request body"})
		return
	}

	cmd := store.CheckItem{ItemID: models.UUID(c.Param("id")), Checked: request.Checked}
	if err := h.st.Dispatch(cmd); err != nil {
		HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checked": request.Checked})
}

// RemoveItem handles DELETE /v1/items/:id.
func (h *ListsHandler) RemoveItem(c *gin.Context) {
	cmd := store.RemoveItem{ItemID: models.UUID(c.Param("id"))}
	if err := h.st.Dispatch(cmd); err != nil {
		HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetActiveList handles PUT /v1/ui/active-list.
func (h *ListsHandler) SetActiveList(c *gin.Context) {
	var request struct {
		ListID string `json:"list_id"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid", Error: "invalid request body"})
		return
	}

	if err := h.st.Dispatch(store.SetActiveList{ListID: models.UUID(request.ListID)}); err != nil {
		HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_list_id": request.ListID})
}
