// Package models provides data model definitions for PentryPal Core.
package models

import "encoding/json"

// StateSnapshot is a persisted state slice, stored as a single JSON blob
// per slice name and restored at startup.
type StateSnapshot struct {
	Slice     string          `db:"slice" json:"slice"` // auth, shoppingLists, pantry, ui
	Payload   json.RawMessage `db:"payload" json:"payload"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for StateSnapshot.
func (StateSnapshot) TableName() string {
	return "state_snapshots"
}
