// Package queue provides the in-memory offline action queue. Mutations
// issued without connectivity are captured here, in dispatch order, until
// the sync engine replays them against the remote API.
package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/uuid"
)

// OfflineQueue is a bounded FIFO of pending actions. When capacity is
// reached the oldest entry is evicted to make room; the queue never
// rejects a new action. Contents live in memory only and are lost on
// process exit.
type OfflineQueue struct {
	mu      sync.RWMutex
	actions []*models.PendingAction
	maxSize int
	evicted int64
}

// New creates an OfflineQueue holding at most maxSize actions.
func New(maxSize int) *OfflineQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &OfflineQueue{
		actions: make([]*models.PendingAction, 0, maxSize),
		maxSize: maxSize,
	}
}

// Enqueue appends an action to the tail of the queue. If the queue is at
// capacity the oldest action is dropped to make room.
func (q *OfflineQueue) Enqueue(actionType string, payload json.RawMessage, maxRetries int) *models.PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) >= q.maxSize {
		dropped := q.actions[0]
		q.actions = q.actions[1:]
		q.evicted++
		logging.Warn("Offline queue full, evicted oldest action", map[string]interface{}{
			"evicted_id":   string(dropped.ID),
			"evicted_type": dropped.ActionType,
			"max_size":     q.maxSize,
		})
	}

	action := &models.PendingAction{
		ID:         models.UUID(uuid.New()),
		ActionType: actionType,
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: maxRetries,
		EnqueuedAt: time.Now().Unix(),
	}
	q.actions = append(q.actions, action)

	logging.Debug("Enqueued offline action", map[string]interface{}{
		"id":          string(action.ID),
		"action_type": action.ActionType,
		"queue_len":   len(q.actions),
	})

	return action
}

// Dequeue removes the action with the given id. It is a no-op when the
// id is not present (the action may already have been evicted).
func (q *OfflineQueue) Dequeue(id models.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, action := range q.actions {
		if action.ID == id {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			return
		}
	}
}

// IncrementRetry bumps the retry counter of the action with the given id
// and reports the updated action. Returns nil when the id is not present.
func (q *OfflineQueue) IncrementRetry(id models.UUID) *models.PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, action := range q.actions {
		if action.ID == id {
			action.RetryCount++
			copied := *action
			return &copied
		}
	}
	return nil
}

// Snapshot returns the queued actions in FIFO order. The returned slice
// and its entries are copies; callers may hold them across lock boundaries.
func (q *OfflineQueue) Snapshot() []*models.PendingAction {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*models.PendingAction, len(q.actions))
	for i, action := range q.actions {
		copied := *action
		out[i] = &copied
	}
	return out
}

// Len returns the number of queued actions.
func (q *OfflineQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.actions)
}

// Clear drops every queued action, for logout and account switches.
func (q *OfflineQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) > 0 {
		logging.Info("Offline queue cleared", map[string]interface{}{
			"dropped": len(q.actions),
		})
	}
	q.actions = q.actions[:0]
}

// Stats returns queue counters for the diagnostics surface.
func (q *OfflineQueue) Stats() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	retrying := 0
	for _, action := range q.actions {
		if action.RetryCount > 0 {
			retrying++
		}
	}

	return map[string]int{
		"pending":  len(q.actions),
		"retrying": retrying,
		"evicted":  int(q.evicted),
		"max_size": q.maxSize,
	}
}
