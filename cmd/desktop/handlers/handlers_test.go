package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pentrypal/app/core/internal/connectivity"
	"github.com/pentrypal/app/core/internal/db"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
	syncpkg "github.com/pentrypal/app/core/internal/sync"
	"github.com/pentrypal/app/core/internal/sync/queue"
)

type noopReplayer struct{}

func (noopReplayer) Replay(context.Context, *models.PendingAction) error { return nil }

type onlineProber struct{}

func (onlineProber) Probe(context.Context) error { return nil }

// testEnv wires a full handler stack over an in-memory database.
type testEnv struct {
	router *gin.Engine
	st     *store.Store
	q      *queue.OfflineQueue
}

func setupHandlerTest(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	repo := db.NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })

	st := store.New(repo)
	q := queue.New(100)
	engine := syncpkg.NewEngine(st, q, noopReplayer{}, &syncpkg.EngineConfig{
		DrainDelay: time.Hour,
		MaxRetries: 3,
	})
	st.Use(engine)
	monitor := connectivity.NewMonitor(st, onlineProber{}, time.Hour)

	lists := NewListsHandler(st)
	pantry := NewPantryHandler(st)
	syncHandler := NewSyncHandler(st, engine, q, monitor, repo)
	state := NewStateHandler(st)

	router := gin.New()
	router.GET("/v1/state", state.GetState)
	router.PUT("/v1/profile", state.UpdateProfile)
	router.GET("/v1/lists", lists.GetLists)
	router.POST("/v1/lists", lists.CreateList)
	router.PUT("/v1/lists/:id", lists.RenameList)
	router.DELETE("/v1/lists/:id", lists.DeleteList)
	router.POST("/v1/lists/:id/items", lists.AddItem)
	router.PUT("/v1/items/:id/checked", lists.CheckItem)
	router.DELETE("/v1/items/:id", lists.RemoveItem)
	router.GET("/v1/pantry", pantry.GetPantry)
	router.POST("/v1/pantry", pantry.UpsertItem)
	router.DELETE("/v1/pantry/:id", pantry.RemoveItem)
	router.GET("/v1/sync/status", syncHandler.GetStatus)
	router.GET("/v1/sync/pending", syncHandler.GetPending)
	router.POST("/v1/sync/drain", syncHandler.TriggerDrain)
	router.POST("/v1/sync/check", syncHandler.CheckConnectivity)
	router.GET("/v1/sync/conflicts", syncHandler.GetConflicts)
	router.GET("/v1/sync/changes", syncHandler.GetChanges)

	return &testEnv{router: router, st: st, q: q}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// TestListLifecycle tests create, rename, add item, check and delete
// through the REST surface.
func TestListLifecycle(t *testing.T) {
	env := setupHandlerTest(t)

	rec := env.request(t, http.MethodPost, "/v1/lists", map[string]string{"name": "Groceries"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.ShoppingList
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.ID == "" || created.Name != "Groceries" {
		t.Fatalf("Unexpected created list: %+v", created)
	}
	listID := string(created.ID)

	rec = env.request(t, http.MethodPut, "/v1/lists/"+listID, map[string]string{"name": "Weekly"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Rename failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodPost, "/v1/lists/"+listID+"/items",
		map[string]interface{}{"name": "Milk", "quantity": 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("AddItem failed: %d %s", rec.Code, rec.Body.String())
	}

	state := env.st.State()
	items := state.ShoppingLists.Items[listID]
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	itemID := string(items[0].ID)

	rec = env.request(t, http.MethodPut, "/v1/items/"+itemID+"/checked",
		map[string]bool{"checked": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("CheckItem failed: %d %s", rec.Code, rec.Body.String())
	}
	if !env.st.State().ShoppingLists.Items[listID][0].Checked {
		t.Error("Expected item checked in state")
	}

	rec = env.request(t, http.MethodDelete, "/v1/lists/"+listID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DeleteList failed: %d", rec.Code)
	}
	if len(env.st.State().ShoppingLists.Lists) != 0 {
		t.Error("Expected list removed from state")
	}
}

// TestCreateListDuplicateNames tests that two lists sharing a name get
// distinct identities in the creation responses.
func TestCreateListDuplicateNames(t *testing.T) {
	env := setupHandlerTest(t)

	var first, second models.ShoppingList
	rec := env.request(t, http.MethodPost, "/v1/lists", map[string]string{"name": "Groceries"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("First create failed: %d %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &first)

	rec = env.request(t, http.MethodPost, "/v1/lists", map[string]string{"name": "Groceries"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Second create failed: %d %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &second)

	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("Expected distinct list ids, got %q and %q", first.ID, second.ID)
	}
	if len(env.st.State().ShoppingLists.Lists) != 2 {
		t.Errorf("Expected both lists in state")
	}
}

// TestSyncChangesEndpoint tests the incremental change feed.
func TestSyncChangesEndpoint(t *testing.T) {
	env := setupHandlerTest(t)

	env.request(t, http.MethodPost, "/v1/lists", map[string]string{"name": "Groceries"})

	rec := env.request(t, http.MethodGet, "/v1/sync/changes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Changes fetch failed: %d %s", rec.Code, rec.Body.String())
	}
	var feed struct {
		Changes []models.ChangeLog `json:"changes"`
	}
	json.Unmarshal(rec.Body.Bytes(), &feed)
	if len(feed.Changes) != 1 || feed.Changes[0].Entity != "shopping_list" {
		t.Fatalf("Unexpected change feed: %+v", feed.Changes)
	}

	rec = env.request(t, http.MethodGet, "/v1/sync/changes?since=notatime", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed since, got %d", rec.Code)
	}
}

// TestErrorMapping tests HTTP statuses for domain errors.
func TestErrorMapping(t *testing.T) {
	env := setupHandlerTest(t)

	// Unknown list -> 404
	rec := env.request(t, http.MethodPost, "/v1/lists/no-such-list/items",
		map[string]string{"name": "Milk"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown list, got %d", rec.Code)
	}

	// Missing required field -> 400
	rec = env.request(t, http.MethodPost, "/v1/lists", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", rec.Code)
	}

	// Unknown item -> 404
	rec = env.request(t, http.MethodPut, "/v1/items/ghost/checked", map[string]bool{"checked": true})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown item, got %d", rec.Code)
	}
}

// TestPantryEndpoints tests pantry upsert and removal.
func TestPantryEndpoints(t *testing.T) {
	env := setupHandlerTest(t)

	rec := env.request(t, http.MethodPost, "/v1/pantry",
		map[string]interface{}{"name": "Rice", "quantity": 2, "location": "shelf"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Pantry upsert failed: %d %s", rec.Code, rec.Body.String())
	}

	state := env.st.State()
	if len(state.Pantry.Items) != 1 || state.Pantry.Items[0].Name != "Rice" {
		t.Fatalf("Expected pantry item in state, got %v", state.Pantry.Items)
	}
	itemID := string(state.Pantry.Items[0].ID)

	rec = env.request(t, http.MethodDelete, "/v1/pantry/"+itemID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Pantry remove failed: %d", rec.Code)
	}
	if len(env.st.State().Pantry.Items) != 0 {
		t.Error("Expected pantry item removed")
	}
}

// TestSyncEndpoints tests status, pending and manual drain.
func TestSyncEndpoints(t *testing.T) {
	env := setupHandlerTest(t)

	// Offline mutation lands in the queue
	env.request(t, http.MethodPost, "/v1/lists", map[string]string{"name": "Groceries"})
	if env.q.Len() != 1 {
		t.Fatalf("Expected 1 queued action, got %d", env.q.Len())
	}

	rec := env.request(t, http.MethodGet, "/v1/sync/status", nil)
	var status map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status["online"] != false {
		t.Error("Expected offline status")
	}
	if status["pending"].(float64) != 1 {
		t.Errorf("Expected 1 pending, got %v", status["pending"])
	}

	rec = env.request(t, http.MethodGet, "/v1/sync/pending", nil)
	var pending struct {
		Actions []models.PendingAction `json:"actions"`
	}
	json.Unmarshal(rec.Body.Bytes(), &pending)
	if len(pending.Actions) != 1 || pending.Actions[0].ActionType != "shoppingLists/createList" {
		t.Errorf("Unexpected pending actions: %+v", pending.Actions)
	}

	// Manual probe brings us online, then a drain clears the queue
	rec = env.request(t, http.MethodPost, "/v1/sync/check", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Connectivity check failed: %d", rec.Code)
	}
	rec = env.request(t, http.MethodPost, "/v1/sync/drain", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Drain failed: %d %s", rec.Code, rec.Body.String())
	}
	var drain map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &drain)
	if drain["replayed"].(float64) != 1 {
		t.Errorf("Expected 1 replayed, got %v", drain["replayed"])
	}
	if env.q.Len() != 0 {
		t.Errorf("Expected drained queue, got %d", env.q.Len())
	}
}

// TestStateAndProfile tests the snapshot endpoint and profile update.
func TestStateAndProfile(t *testing.T) {
	env := setupHandlerTest(t)

	rec := env.request(t, http.MethodPut, "/v1/profile",
		map[string]string{"display_name": "Alex"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Profile update failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, "/v1/state", nil)
	var state store.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if state.Auth.Profile == nil || state.Auth.Profile.DisplayName != "Alex" {
		t.Error("Expected profile in state snapshot")
	}
}
