package sync

import (
	stdctx "context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pentrypal/app/core/internal/db"
	"github.com/pentrypal/app/core/internal/errors"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
	"github.com/pentrypal/app/core/internal/sync/queue"
)

// fakeReplayer records replayed actions and fails the types it is told to.
type fakeReplayer struct {
	mu       sync.Mutex
	replayed []string
	failFor  map[string]error
	onReplay func(action *models.PendingAction)
}

func (f *fakeReplayer) Replay(_ stdctx.Context, action *models.PendingAction) error {
	f.mu.Lock()
	f.replayed = append(f.replayed, action.ActionType)
	hook := f.onReplay
	err := f.failFor[action.ActionType]
	f.mu.Unlock()

	if hook != nil {
		hook(action)
	}
	return err
}

// fakePuller records delta pull watermarks and fails on demand.
type fakePuller struct {
	mu    sync.Mutex
	since []int64
	err   error
}

func (f *fakePuller) PullChanges(_ stdctx.Context, since int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	return f.err
}

func (f *fakePuller) pulls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.since))
	copy(out, f.since)
	return out
}

func (f *fakeReplayer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.replayed))
	copy(out, f.replayed)
	return out
}

func setupEngineTest(t *testing.T, config *EngineConfig) (*store.Store, *queue.OfflineQueue, *fakeReplayer, *Engine) {
	t.Helper()

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
	replayer := &fakeReplayer{failFor: map[string]error{}}
	engine := NewEngine(st, q, replayer, config)
	return st, q, replayer, engine
}

// TestDrainReplaysInFIFOOrder tests that a drain pass replays actions in
// enqueue order and empties the queue.
func TestDrainReplaysInFIFOOrder(t *testing.T) {
	st, q, replayer, engine := setupEngineTest(t, nil)

	for i := 0; i < 3; i++ {
		q.Enqueue(fmt.Sprintf("action-%d", i), json.RawMessage(`{}`), 3)
	}
	st.Dispatch(store.SetOnline{Online: true})

	result, err := engine.Drain(stdctx.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if result.Replayed != 3 {
		t.Errorf("Expected 3 replayed, got %d", result.Replayed)
	}
	calls := replayer.calls()
	for i, want := range []string{"action-0", "action-1", "action-2"} {
		if calls[i] != want {
			t.Errorf("Expected %s at position %d, got %s", want, i, calls[i])
		}
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after drain, got %d", q.Len())
	}
}

// TestOfflineDispatchIsCapturedAndOptimistic tests that queueable
// commands issued offline land in the queue while still applying locally.
func TestOfflineDispatchIsCapturedAndOptimistic(t *testing.T) {
	st, q, _, engine := setupEngineTest(t, nil)
	st.Use(engine)

	// State starts offline
	if err := st.Dispatch(store.CreateList{ListID: "list-1", Name: "Groceries"}); err != nil {
		t.Fatalf("CreateList dispatch failed: %v", err)
	}
	if err := st.Dispatch(store.AddItem{ItemID: "item-1", ListID: "list-1", Name: "Milk"}); err != nil {
		t.Fatalf("AddItem dispatch failed: %v", err)
	}

	// Optimistic local update happened
	state := st.State()
	if len(state.ShoppingLists.Items["list-1"]) != 1 {
		t.Error("Expected item applied locally while offline")
	}

	// Both mutations are queued in order
	snapshot := q.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("Expected 2 queued actions, got %d", len(snapshot))
	}
	if snapshot[0].ActionType != "shoppingLists/createList" ||
		snapshot[1].ActionType != "shoppingLists/addItem" {
		t.Errorf("Unexpected queued action types: %s, %s",
			snapshot[0].ActionType, snapshot[1].ActionType)
	}
}

// TestOnlineDispatchFlushesImmediately tests that mutations issued
// while online are pushed to the remote side right away, without
// waiting for the stabilization window.
func TestOnlineDispatchFlushesImmediately(t *testing.T) {
	st, q, replayer, engine := setupEngineTest(t, &EngineConfig{DrainDelay: time.Hour, MaxRetries: 3})
	st.Use(engine)

	st.Dispatch(store.SetOnline{Online: true})
	st.Dispatch(store.CreateList{ListID: "list-1", Name: "Groceries"})

	deadline := time.After(2 * time.Second)
	for q.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("Online mutation was never replayed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if calls := replayer.calls(); len(calls) != 1 || calls[0] != "shoppingLists/createList" {
		t.Errorf("Expected immediate createList replay, got %v", calls)
	}
}

// TestDrainRetriesThenDropsExhaustedActions tests per-action retry
// accounting across passes and the drop at budget exhaustion.
func TestDrainRetriesThenDropsExhaustedActions(t *testing.T) {
	st, q, replayer, engine := setupEngineTest(t, nil)
	st.Dispatch(store.SetOnline{Online: true})

	replayer.failFor["bad-action"] = fmt.Errorf("server rejected payload")
	q.Enqueue("bad-action", json.RawMessage(`{}`), 3)
	q.Enqueue("good-action", json.RawMessage(`{}`), 3)

	// First two passes: bad-action fails and stays queued
	for pass := 1; pass <= 2; pass++ {
		result, err := engine.Drain(stdctx.Background())
		if err != nil {
			t.Fatalf("Drain pass %d failed: %v", pass, err)
		}
		if pass == 1 && result.Replayed != 1 {
			t.Errorf("Expected good-action replayed on first pass, got %d", result.Replayed)
		}
		if result.Dropped != 0 {
			t.Errorf("Pass %d dropped too early", pass)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("Expected bad-action still queued, got len %d", q.Len())
	}

	// Third failure exhausts the budget and drops it
	result, err := engine.Drain(stdctx.Background())
	if err != nil {
		t.Fatalf("Final drain failed: %v", err)
	}
	if result.Dropped != 1 {
		t.Errorf("Expected 1 dropped action, got %d", result.Dropped)
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after drop, got %d", q.Len())
	}
}

// TestDrainSingleFlight tests that a concurrent drain is rejected while
// one is already running.
func TestDrainSingleFlight(t *testing.T) {
	st, q, replayer, engine := setupEngineTest(t, nil)
	st.Dispatch(store.SetOnline{Online: true})

	entered := make(chan struct{})
	release := make(chan struct{})
	replayer.onReplay = func(*models.PendingAction) {
		close(entered)
		<-release
	}
	q.Enqueue("slow-action", json.RawMessage(`{}`), 3)

	done := make(chan struct{})
	go func() {
		engine.Drain(stdctx.Background())
		close(done)
	}()

	<-entered
	if _, err := engine.Drain(stdctx.Background()); !errors.Is(err, errors.ErrSyncInProgress) {
		t.Errorf("Expected ErrSyncInProgress for concurrent drain, got %v", err)
	}

	close(release)
	<-done

	// Each action replayed exactly once despite the second attempt
	if calls := replayer.calls(); len(calls) != 1 {
		t.Errorf("Expected exactly one replay, got %d", len(calls))
	}
}

// TestDrainAbortsWhenConnectivityLost tests that a pass stops early when
// the device goes offline mid-drain and keeps the rest queued.
func TestDrainAbortsWhenConnectivityLost(t *testing.T) {
	st, q, replayer, engine := setupEngineTest(t, nil)
	st.Dispatch(store.SetOnline{Online: true})

	q.Enqueue("first", json.RawMessage(`{}`), 3)
	q.Enqueue("second", json.RawMessage(`{}`), 3)
	q.Enqueue("third", json.RawMessage(`{}`), 3)

	replayer.onReplay = func(action *models.PendingAction) {
		if action.ActionType == "first" {
			st.Dispatch(store.SetOnline{Online: false})
		}
	}

	result, err := engine.Drain(stdctx.Background())
	if !errors.Is(err, errors.ErrSyncFailed) {
		t.Fatalf("Expected ErrSyncFailed, got %v", err)
	}
	if result.Replayed != 1 {
		t.Errorf("Expected 1 replayed before abort, got %d", result.Replayed)
	}
	if q.Len() != 2 {
		t.Errorf("Expected 2 actions still queued, got %d", q.Len())
	}
}

// TestOfflineOnlineTransitionSchedulesDrain tests the stabilization
// delay between regaining connectivity and the drain pass.
func TestOfflineOnlineTransitionSchedulesDrain(t *testing.T) {
	st, q, replayer, engine := setupEngineTest(t, &EngineConfig{
		DrainDelay: 30 * time.Millisecond,
		MaxRetries: 3,
	})
	st.Use(engine)

	st.Dispatch(store.CreateList{ListID: "list-1", Name: "Groceries"})
	if q.Len() != 1 {
		t.Fatalf("Expected queued action, got %d", q.Len())
	}

	st.Dispatch(store.SetOnline{Online: true})

	// Not drained before the settle window
	if len(replayer.calls()) != 0 {
		t.Error("Expected no replay before the stabilization delay")
	}

	deadline := time.After(2 * time.Second)
	for q.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("Drain did not run after the stabilization delay")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if calls := replayer.calls(); len(calls) != 1 || calls[0] != "shoppingLists/createList" {
		t.Errorf("Expected single createList replay, got %v", calls)
	}
}

// TestFlappingConnectivityCancelsScheduledDrain tests that going offline
// during the settle window disarms the pending drain.
func TestFlappingConnectivityCancelsScheduledDrain(t *testing.T) {
	st, q, replayer, engine := setupEngineTest(t, &EngineConfig{
		DrainDelay: 50 * time.Millisecond,
		MaxRetries: 3,
	})
	st.Use(engine)

	st.Dispatch(store.CreateList{ListID: "list-1", Name: "Groceries"})
	st.Dispatch(store.SetOnline{Online: true})
	st.Dispatch(store.SetOnline{Online: false})

	time.Sleep(150 * time.Millisecond)

	if len(replayer.calls()) != 0 {
		t.Error("Expected no replay after the drain was canceled")
	}
	if q.Len() != 1 {
		t.Errorf("Expected action still queued, got %d", q.Len())
	}
}

// TestDrainPullsRemoteChanges tests that a clean pass follows up with a
// delta pull from the previous checkpoint.
func TestDrainPullsRemoteChanges(t *testing.T) {
	st, q, _, engine := setupEngineTest(t, nil)
	st.Dispatch(store.SetOnline{Online: true})

	puller := &fakePuller{}
	engine.UsePuller(puller)

	q.Enqueue("shoppingLists/createList", json.RawMessage(`{}`), 3)
	if _, err := engine.Drain(stdctx.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if pulls := puller.pulls(); len(pulls) != 1 || pulls[0] != 0 {
		t.Fatalf("Expected one pull from the zero watermark, got %v", pulls)
	}

	// The pass stamped a checkpoint; the next pull starts from it
	if _, err := engine.Drain(stdctx.Background()); err != nil {
		t.Fatalf("Second drain failed: %v", err)
	}
	if pulls := puller.pulls(); len(pulls) != 2 || pulls[1] == 0 {
		t.Fatalf("Expected second pull from the stamped checkpoint, got %v", pulls)
	}
}

// TestDrainSurfacesPullFailure tests that a failed delta pull lands in
// the sync error slice.
func TestDrainSurfacesPullFailure(t *testing.T) {
	st, _, _, engine := setupEngineTest(t, nil)
	st.Dispatch(store.SetOnline{Online: true})

	engine.UsePuller(&fakePuller{err: fmt.Errorf("changes endpoint down")})

	if _, err := engine.Drain(stdctx.Background()); !errors.Is(err, errors.ErrSyncFailed) {
		t.Fatalf("Expected ErrSyncFailed, got %v", err)
	}
	if st.State().UI.SyncError == "" {
		t.Error("Expected sync error surfaced in state")
	}
}

// TestResetClearsQueue tests that logout wipes pending actions.
func TestResetClearsQueue(t *testing.T) {
	st, q, _, engine := setupEngineTest(t, nil)
	st.Use(engine)

	st.Dispatch(store.CreateList{ListID: "list-1", Name: "Groceries"})
	if q.Len() != 1 {
		t.Fatalf("Expected queued action, got %d", q.Len())
	}

	engine.Reset()
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after Reset, got %d", q.Len())
	}
}
