// Package models provides data model definitions for PentryPal Core.
package models

import "time"

// PantryItem represents an item currently stocked in the user's pantry.
type PantryItem struct {
	ID        UUID    `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Quantity  float64 `db:"quantity" json:"quantity"`
	Unit      string  `db:"unit" json:"unit,omitempty"`
	Location  string  `db:"location" json:"location,omitempty"` // fridge, freezer, shelf
	ExpiresAt int64   `db:"expires_at" json:"expires_at,omitempty"`
	IsDeleted bool    `db:"is_deleted" json:"is_deleted"`
	CreatedAt int64   `db:"created_at" json:"created_at"`
	UpdatedAt int64   `db:"updated_at" json:"updated_at"`
	Version   int     `db:"version" json:"version"`
}

// TableName returns the table name for PantryItem.
func (PantryItem) TableName() string {
	return "pantry_items"
}

// Touch updates the UpdatedAt timestamp and bumps the version.
func (p *PantryItem) Touch() {
	p.UpdatedAt = time.Now().Unix()
	p.Version++
}

// IsExpired reports whether the item is past its expiry date.
func (p *PantryItem) IsExpired(now time.Time) bool {
	return p.ExpiresAt > 0 && p.ExpiresAt < now.Unix()
}
