// Package sync drains the action queue against the remote API. The
// engine hooks into the store as middleware: every queueable mutation
// is mirrored into the queue, flushed immediately while online or
// replayed in order once connectivity returns and has stabilized.
package sync

import (
	stdctx "context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pentrypal/app/core/internal/errors"
	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
	"github.com/pentrypal/app/core/internal/sync/queue"
)

// Replayer applies a captured offline action against the remote API.
type Replayer interface {
	Replay(ctx stdctx.Context, action *models.PendingAction) error
}

// ChangePuller fetches remote deltas recorded after the given timestamp
// and folds them into local state.
type ChangePuller interface {
	PullChanges(ctx stdctx.Context, since int64) error
}

// DrainResult summarizes one pass over the offline queue.
type DrainResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Replayed  int
	Retried   int
	Dropped   int
	Remaining int
	Error     string
}

// EngineConfig holds drain tuning knobs.
type EngineConfig struct {
	DrainDelay time.Duration // settle time after regaining connectivity
	MaxRetries int           // per-action replay budget
}

// DefaultEngineConfig returns the default drain configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		DrainDelay: 2 * time.Second,
		MaxRetries: 3,
	}
}

// Engine owns the offline queue lifecycle. It observes every dispatched
// command as store middleware and runs drain passes in the background.
type Engine struct {
	st       *store.Store
	q        *queue.OfflineQueue
	replayer Replayer
	puller   ChangePuller

	drainDelay time.Duration
	maxRetries int

	mu         sync.Mutex
	draining   bool
	drainTimer *time.Timer
}

// NewEngine creates an Engine over the given store and queue. The caller
// must register it with store.Use for mutation capture to work.
func NewEngine(st *store.Store, q *queue.OfflineQueue, replayer Replayer, config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	return &Engine{
		st:         st,
		q:          q,
		replayer:   replayer,
		drainDelay: config.DrainDelay,
		maxRetries: config.MaxRetries,
	}
}

// UsePuller wires the delta pull that runs at the tail of each clean
// drain pass. Startup-only, like store.Use.
func (e *Engine) UsePuller(p ChangePuller) {
	e.puller = p
}

// OnDispatch implements store.Middleware. It runs before reduction, so
// the state it sees reflects connectivity as it was when the command
// was issued.
func (e *Engine) OnDispatch(cmd store.Command, state *store.State) {
	switch c := cmd.(type) {
	case store.SetOnline:
		if c.Online && !state.UI.Online {
			e.scheduleDrain()
		} else if !c.Online {
			e.cancelScheduledDrain()
		}
		return
	}

	if _, ok := cmd.(store.QueueableCommand); !ok {
		return
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		logging.Error("Failed to capture action", err,
			map[string]interface{}{"action_type": cmd.Type()})
		return
	}
	e.q.Enqueue(cmd.Type(), payload, e.maxRetries)

	// Publish the new pending count once the dispatch in flight releases
	// the store lock.
	go e.publishPending()

	if state.UI.Online {
		// Online mutations flush straight away; the settle window only
		// applies after regaining connectivity.
		go e.drainNow()
	}
}

// drainNow runs an immediate drain pass for a mutation issued while
// online. A pass already in flight re-arms the settle timer so the new
// entry is picked up right after it finishes.
func (e *Engine) drainNow() {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Minute)
	defer cancel()
	if _, err := e.Drain(ctx); err != nil {
		if errors.Is(err, errors.ErrSyncInProgress) {
			e.scheduleDrain()
			return
		}
		logging.ErrorWithCode("Online mutation sync failed", string(errors.ErrSyncFailed), err, nil)
	}
}

// scheduleDrain arms a one-shot drain after the stabilization delay.
// Rapid offline/online flapping resets the timer instead of stacking
// extra passes.
func (e *Engine) scheduleDrain() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.drainTimer != nil {
		e.drainTimer.Stop()
	}
	e.drainTimer = time.AfterFunc(e.drainDelay, func() {
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Minute)
		defer cancel()
		if _, err := e.Drain(ctx); err != nil && !errors.Is(err, errors.ErrSyncInProgress) {
			logging.ErrorWithCode("Scheduled drain failed", string(errors.ErrSyncFailed), err, nil)
		}
	})

	logging.Debug("Drain scheduled", map[string]interface{}{
		"delay_ms": e.drainDelay.Milliseconds(),
	})
}

// cancelScheduledDrain disarms a pending drain when connectivity drops
// before the settle window elapses.
func (e *Engine) cancelScheduledDrain() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.drainTimer != nil {
		e.drainTimer.Stop()
		e.drainTimer = nil
	}
}

// Drain replays queued actions in FIFO order. Only one pass runs at a
// time; a concurrent call returns ErrSyncInProgress. Each action is
// handled in isolation: success removes it, failure bumps its retry
// counter, and an exhausted budget drops it with a warning. The pass
// aborts early when connectivity is lost or the context is canceled;
// anything unprocessed stays queued for the next pass.
func (e *Engine) Drain(ctx stdctx.Context) (*DrainResult, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, errors.New(errors.ErrSyncInProgress, "drain already in progress")
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	result := &DrainResult{StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		result.Remaining = e.q.Len()
	}()

	// Watermark for the delta pull, read before this pass stamps a new one
	since := e.st.State().UI.LastSyncAt

	pending := e.q.Snapshot()
	if len(pending) == 0 {
		if err := e.pullRemote(ctx, result, since); err != nil {
			return result, err
		}
		e.publishStatus("")
		return result, nil
	}

	logging.Info("Draining offline queue", map[string]interface{}{
		"pending": len(pending),
	})

	for _, action := range pending {
		select {
		case <-ctx.Done():
			result.Error = ctx.Err().Error()
			e.publishStatus(result.Error)
			return result, errors.Wrap(errors.ErrSyncFailed, "drain aborted", ctx.Err())
		default:
		}

		if !e.st.State().UI.Online {
			result.Error = "connectivity lost during drain"
			e.publishStatus(result.Error)
			return result, errors.New(errors.ErrSyncFailed, "connectivity lost during drain")
		}

		if err := e.replayer.Replay(ctx, action); err != nil {
			updated := e.q.IncrementRetry(action.ID)
			if updated == nil {
				continue
			}
			if updated.Exhausted() {
				e.q.Dequeue(updated.ID)
				result.Dropped++
				logging.Warn("Dropping offline action after retry budget exhausted",
					map[string]interface{}{
						"id":          string(updated.ID),
						"action_type": updated.ActionType,
						"retries":     updated.RetryCount,
						"error":       err.Error(),
					})
			} else {
				result.Retried++
				logging.Debug("Offline action replay failed, will retry",
					map[string]interface{}{
						"id":          string(updated.ID),
						"action_type": updated.ActionType,
						"retry":       updated.RetryCount,
						"max_retries": updated.MaxRetries,
					})
			}
			continue
		}

		e.q.Dequeue(action.ID)
		result.Replayed++
	}

	if err := e.pullRemote(ctx, result, since); err != nil {
		return result, err
	}

	e.publishStatus("")

	logging.Info("Offline queue drain completed", map[string]interface{}{
		"replayed":  result.Replayed,
		"retried":   result.Retried,
		"dropped":   result.Dropped,
		"remaining": e.q.Len(),
	})

	return result, nil
}

// pullRemote fetches server-side deltas missed while offline and folds
// them into the store. Runs at the tail of a drain pass, after the
// queue has been replayed, so local edits reach the server first.
func (e *Engine) pullRemote(ctx stdctx.Context, result *DrainResult, since int64) error {
	if e.puller == nil {
		return nil
	}
	if err := e.puller.PullChanges(ctx, since); err != nil {
		result.Error = err.Error()
		e.publishStatus(result.Error)
		return errors.Wrap(errors.ErrSyncFailed, "failed to pull remote changes", err)
	}
	return nil
}

// Draining reports whether a drain pass is currently running.
func (e *Engine) Draining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}

// Reset drops all queued actions and clears sync status, for logout and
// account switches.
func (e *Engine) Reset() {
	e.cancelScheduledDrain()
	e.q.Clear()
	e.publishStatus("")
}

// publishStatus pushes drain results into the UI slice. A clean pass
// also stamps the last-sync time.
func (e *Engine) publishStatus(syncErr string) {
	cmd := store.SetSyncStatus{
		SyncError: syncErr,
		Pending:   e.q.Len(),
	}
	if syncErr == "" {
		cmd.LastSyncAt = time.Now().Unix()
	}
	if err := e.st.Dispatch(cmd); err != nil {
		logging.Error("Failed to publish sync status", err, nil)
	}
}

// publishPending refreshes only the pending count, leaving the last-sync
// time untouched.
func (e *Engine) publishPending() {
	if err := e.st.Dispatch(store.SetSyncStatus{Pending: e.q.Len()}); err != nil {
		logging.Error("Failed to publish sync status", err, nil)
	}
}
