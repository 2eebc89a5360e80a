package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pentrypal/app/core/cmd/desktop/handlers"
)

// routerDeps collects the handlers wired into the control plane.
type routerDeps struct {
	auth   *handlers.AuthHandler
	lists  *handlers.ListsHandler
	pantry *handlers.PantryHandler
	sync   *handlers.SyncHandler
	state  *handlers.StateHandler
	hub    *WSHub
	port   string
}

// setupRouter builds the localhost control plane for the desktop shell.
func setupRouter(deps routerDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "pentrypal-core"})
	})

	router.GET("/ws", gin.WrapF(HandleWebSocket(deps.hub, deps.port)))

	v1 := router.Group("/v1")
	{
		v1.GET("/state", deps.state.GetState)
		v1.PUT("/profile", deps.state.UpdateProfile)

		v1.POST("/auth/login", deps.auth.Login)
		v1.POST("/auth/logout", deps.auth.Logout)

		v1.GET("/lists", deps.lists.GetLists)
		v1.POST("/lists", deps.lists.CreateList)
		v1.PUT("/lists/:id", deps.lists.RenameList)
		v1.DELETE("/lists/:id", deps.lists.DeleteList)
		v1.POST("/lists/:id/items", deps.lists.AddItem)
		v1.PUT("/items/:id/checked", deps.lists.CheckItem)
		v1.DELETE("/items/:id", deps.lists.RemoveItem)
		v1.PUT("/ui/active-list", deps.lists.SetActiveList)

		v1.GET("/pantry", deps.pantry.GetPantry)
		v1.POST("/pantry", deps.pantry.UpsertItem)
		v1.PUT("/pantry/:id", deps.pantry.UpsertItem)
		v1.DELETE("/pantry/:id", deps.pantry.RemoveItem)

		v1.GET("/sync/status", deps.sync.GetStatus)
		v1.GET("/sync/pending", deps.sync.GetPending)
		v1.POST("/sync/drain", deps.sync.TriggerDrain)
		v1.POST("/sync/check", deps.sync.CheckConnectivity)
		v1.GET("/sync/conflicts", deps.sync.GetConflicts)
		v1.GET("/sync/changes", deps.sync.GetChanges)
	}

	return router
}
