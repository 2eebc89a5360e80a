// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libpentrypal.so (Android) / pentrypal.framework (iOS).
// All exported functions use the C calling convention; strings returned
// to the host must be released with FreeString.
package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/pentrypal/app/core/internal/api"
	"github.com/pentrypal/app/core/internal/config"
	"github.com/pentrypal/app/core/internal/connectivity"
	"github.com/pentrypal/app/core/internal/db"
	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
	syncpkg "github.com/pentrypal/app/core/internal/sync"
	"github.com/pentrypal/app/core/internal/sync/queue"
)

var (
	once     sync.Once
	initErr  string
	database *db.DB
	repo     *db.Repository
	st       *store.Store
	q        *queue.OfflineQueue
	engine   *syncpkg.Engine
	client   *api.Client
	monitor  *connectivity.Monitor
	push     *api.PushSubscriber
	cancelFn context.CancelFunc

	lastErr string
	lastMu  sync.RWMutex
)

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

//export Init
// Init boots the core against the given data directory. Returns 0 on
// success. Safe to call more than once; later calls are no-ops.
func Init(dataDir *C.char) int32 {
	once.Do(func() {
		dir := C.GoString(dataDir)
		if dir != "" {
			os.Setenv("PENTRYPAL_DATA_DIR", dir)
		}
		cfg := config.NewConfig()
		logging.Init(os.Stderr, cfg.Logger.Level)

		var err error
		database, err = db.Open(cfg.Storage.DataDir)
		if err != nil {
			initErr = fmt.Sprintf("failed to open database: %v", err)
			return
		}

		migrator := db.NewMigrator(database.DB)
		if err := migrator.Initialize(); err != nil {
			initErr = fmt.Sprintf("failed to initialize migrations: %v", err)
			return
		}
		if err := migrator.Up(); err != nil {
			initErr = fmt.Sprintf("failed to apply migrations: %v", err)
			return
		}

		repo = db.NewRepository(database.DB)
		st = store.New(repo)
		if err := st.Hydrate(); err != nil {
			initErr = fmt.Sprintf("failed to hydrate state: %v", err)
			return
		}

		q = queue.New(cfg.Sync.QueueMaxSize)
		client = api.NewClient(cfg.API, st)
		replayer := api.NewActionReplayer(client, st)
		engine = syncpkg.NewEngine(st, q, replayer, &syncpkg.EngineConfig{
			DrainDelay: cfg.Sync.DrainDelay,
			MaxRetries: cfg.Sync.ActionMaxRetries,
		})
		st.Use(engine)
		engine.UsePuller(client)
		client.OnSessionRevoked(engine.Reset)

		ctx, cancel := context.WithCancel(context.Background())
		cancelFn = cancel

		prober := connectivity.NewHTTPProber(cfg.API.BaseURL, cfg.Sync.ProbeTimeout)
		monitor = connectivity.NewMonitor(st, prober, cfg.Sync.ProbeInterval)
		monitor.Start(ctx)

		push = api.NewPushSubscriber(cfg.API.WebSocketURL, st)
		push.OnSessionRevoked(engine.Reset)
		push.Start(ctx)
	})

	if initErr != "" {
		setLastError(initErr)
		return 1
	}
	return 0
}

//export Shutdown
// Shutdown stops background work and closes the database.
func Shutdown() {
	if cancelFn != nil {
		cancelFn()
	}
	if push != nil {
		push.Stop()
	}
	if monitor != nil {
		monitor.Stop()
	}
	if repo != nil {
		repo.Close()
	}
	if database != nil {
		database.Close()
	}
}

//export GetLastError
// GetLastError returns the last error message. Free with FreeString.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return C.CString(lastErr)
}

// dispatch runs a command and records any failure for GetLastError.
func dispatch(cmd store.Command) int32 {
	if st == nil {
		setLastError("core not initialized")
		return 1
	}
	if err := st.Dispatch(cmd); err != nil {
		setLastError(err.Error())
		return 1
	}
	return 0
}

// jsonString marshals v for handoff to the host. Free with FreeString.
func jsonString(v interface{}) *C.char {
	data, err := json.Marshal(v)
	if err != nil {
		setLastError(fmt.Sprintf("failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

// =====================================================
// State
// =====================================================

//export GetState
// GetState returns the full state snapshot as JSON. The host UI renders
// from this and calls it again after mutations.
func GetState() *C.char {
	if st == nil {
		setLastError("core not initialized")
		return nil
	}
	return jsonString(st.State())
}

// =====================================================
// Auth
// =====================================================

//export Login
// Login authenticates and returns the profile JSON, or nil on failure.
func Login(email, password *C.char) *C.char {
	if client == nil {
		setLastError("core not initialized")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Login(ctx, C.GoString(email), C.GoString(password))
	if err != nil {
		setLastError(err.Error())
		return nil
	}
	return jsonString(resp.Profile)
}

//export Logout
// Logout ends the session and wipes the offline queue. Returns 0 on
// success.
func Logout() int32 {
	if client == nil {
		setLastError("core not initialized")
		return 1
	}
	engine.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Logout(ctx); err != nil {
		// Session is cleared locally either way
		setLastError(err.Error())
		return 1
	}
	return 0
}

// =====================================================
// Shopping lists
// =====================================================

//export ListCreate
func ListCreate(name *C.char) int32 {
	return dispatch(store.CreateList{Name: C.GoString(name)})
}

//export ListRename
func ListRename(id, name *C.char) int32 {
	return dispatch(store.RenameList{ListID: models.UUID(C.GoString(id)), Name: C.GoString(name)})
}

//export ListDelete
func ListDelete(id *C.char) int32 {
	return dispatch(store.DeleteList{ListID: models.UUID(C.GoString(id))})
}

//export ItemAdd
func ItemAdd(listID, name, unit, category *C.char, quantity float64) int32 {
	return dispatch(store.AddItem{
		ListID:   models.UUID(C.GoString(listID)),
		Name:     C.GoString(name),
		Quantity: quantity,
		Unit:     C.GoString(unit),
		Category: C.GoString(category),
	})
}

//export ItemCheck
func ItemCheck(id *C.char, checked int32) int32 {
	return dispatch(store.CheckItem{ItemID: models.UUID(C.GoString(id)), Checked: checked != 0})
}

//export ItemRemove
func ItemRemove(id *C.char) int32 {
	return dispatch(store.RemoveItem{ItemID: models.UUID(C.GoString(id))})
}

// =====================================================
// Pantry
// =====================================================

//export PantryUpsert
func PantryUpsert(id, name, unit, location *C.char, quantity float64, expiresAt int64) int32 {
	return dispatch(store.UpsertPantryItem{
		ItemID:    models.UUID(C.GoString(id)),
		Name:      C.GoString(name),
		Quantity:  quantity,
		Unit:      C.GoString(unit),
		Location:  C.GoString(location),
		ExpiresAt: expiresAt,
	})
}

//export PantryRemove
func PantryRemove(id *C.char) int32 {
	return dispatch(store.RemovePantryItem{ItemID: models.UUID(C.GoString(id))})
}

// =====================================================
// Sync
// =====================================================

//export SyncStatus
// SyncStatus returns queue and drain counters as JSON.
func SyncStatus() *C.char {
	if st == nil || q == nil {
		setLastError("core not initialized")
		return nil
	}
	state := st.State()
	return jsonString(map[string]interface{}{
		"online":       state.UI.Online,
		"draining":     engine.Draining(),
		"pending":      q.Len(),
		"last_sync_at": state.UI.LastSyncAt,
		"sync_error":   state.UI.SyncError,
	})
}

//export SyncDrain
// SyncDrain runs a drain pass and returns its result as JSON.
func SyncDrain() *C.char {
	if engine == nil {
		setLastError("core not initialized")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := engine.Drain(ctx)
	if err != nil {
		setLastError(err.Error())
		return nil
	}
	return jsonString(map[string]interface{}{
		"replayed":  result.Replayed,
		"retried":   result.Retried,
		"dropped":   result.Dropped,
		"remaining": result.Remaining,
	})
}

//export ConnectivityCheck
// ConnectivityCheck probes the backend now, for OS reachability hints.
// Returns 1 when online.
func ConnectivityCheck() int32 {
	if monitor == nil {
		setLastError("core not initialized")
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if monitor.CheckNow(ctx) {
		return 1
	}
	return 0
}

// =====================================================
// Memory management
// =====================================================

//export FreeString
// FreeString releases a string allocated by the core.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

func main() {
	// Required for c-shared build mode; never executed as a library
}
