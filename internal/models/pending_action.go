// Package models provides data model definitions for PentryPal Core.
package models

import (
	"encoding/json"
	"time"
)

// PendingAction is a mutation captured while offline, waiting for replay
// against the remote API. Lives in memory only; never persisted.
type PendingAction struct {
	ID         UUID            `json:"id"`
	ActionType string          `json:"action_type"` // e.g. "shoppingLists/addItem"
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	EnqueuedAt int64           `json:"enqueued_at"`
}

// EnqueuedAtTime returns the EnqueuedAt as time.Time.
func (a *PendingAction) EnqueuedAtTime() time.Time {
	return time.Unix(a.EnqueuedAt, 0)
}

// Exhausted reports whether the action has used up its retry budget.
func (a *PendingAction) Exhausted() bool {
	return a.RetryCount >= a.MaxRetries
}
