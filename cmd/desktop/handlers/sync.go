package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pentrypal/app/core/internal/connectivity"
	"github.com/pentrypal/app/core/internal/db"
	"github.com/pentrypal/app/core/internal/store"
	"github.com/pentrypal/app/core/internal/sync"
	"github.com/pentrypal/app/core/internal/sync/queue"
)

// SyncHandler exposes offline queue state and drain controls.
type SyncHandler struct {
	st      *store.Store
	engine  *sync.Engine
	q       *queue.OfflineQueue
	monitor *connectivity.Monitor
	repo    *db.Repository
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(st *store.Store, engine *sync.Engine, q *queue.OfflineQueue, monitor *connectivity.Monitor, repo *db.Repository) *SyncHandler {
	return &SyncHandler{st: st, engine: engine, q: q, monitor: monitor, repo: repo}
}

// GetStatus handles GET /v1/sync/status.
func (h *SyncHandler) GetStatus(c *gin.Context) {
	state := h.st.State()
	c.JSON(http.StatusOK, gin.H{
		"online":       state.UI.Online,
		"draining":     h.engine.Draining(),
		"pending":      h.q.Len(),
		"last_sync_at": state.UI.LastSyncAt,
		"sync_error":   state.UI.SyncError,
		"queue_stats":  h.q.Stats(),
	})
}

// GetPending handles GET /v1/sync/pending, for the diagnostics screen.
func (h *SyncHandler) GetPending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": h.q.Snapshot()})
}

// TriggerDrain handles POST /v1/sync/drain. A drain already in flight
// returns 429.
func (h *SyncHandler) TriggerDrain(c *gin.Context) {
	result, err := h.engine.Drain(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"replayed":    result.Replayed,
		"retried":     result.Retried,
		"dropped":     result.Dropped,
		"remaining":   result.Remaining,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// CheckConnectivity handles POST /v1/sync/check, a manual probe outside
// the polling schedule.
func (h *SyncHandler) CheckConnectivity(c *gin.Context) {
	online := h.monitor.CheckNow(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"online": online})
}

// GetChanges handles GET /v1/sync/changes. The UI shell uses it to
// refetch only what changed after a known timestamp instead of pulling
// the whole state snapshot.
func (h *SyncHandler) GetChanges(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid", Error: "since must be a unix timestamp"})
		return
	}

	entries, err := h.repo.ListChangeLogSince(since)
	if err != nil {
		HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": entries})
}

// GetConflicts handles GET /v1/sync/conflicts.
func (h *SyncHandler) GetConflicts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	conflicts, err := h.repo.ListConflictLog(limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}
