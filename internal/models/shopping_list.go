// Package models provides data model definitions for PentryPal Core.
package models

import "time"

// ShoppingList represents a named shopping list shared with the user's group.
type ShoppingList struct {
	ID        UUID   `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	OwnerID   UUID   `db:"owner_id" json:"owner_id"`
	IsDeleted bool   `db:"is_deleted" json:"is_deleted"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
	Version   int    `db:"version" json:"version"`
}

// TableName returns the table name for ShoppingList.
func (ShoppingList) TableName() string {
	return "shopping_lists"
}

// Touch updates the UpdatedAt timestamp and bumps the version.
func (l *ShoppingList) Touch() {
	l.UpdatedAt = time.Now().Unix()
	l.Version++
}

// ListItem represents a single entry on a shopping list.
type ListItem struct {
	ID        UUID    `db:"id" json:"id"`
	ListID    UUID    `db:"list_id" json:"list_id"`
	Name      string  `db:"name" json:"name"`
	Quantity  float64 `db:"quantity" json:"quantity"`
	Unit      string  `db:"unit" json:"unit,omitempty"`
	Category  string  `db:"category" json:"category,omitempty"`
	Checked   bool    `db:"checked" json:"checked"`
	IsDeleted bool    `db:"is_deleted" json:"is_deleted"`
	CreatedAt int64   `db:"created_at" json:"created_at"`
	UpdatedAt int64   `db:"updated_at" json:"updated_at"`
	Version   int     `db:"version" json:"version"`
}

// TableName returns the table name for ListItem.
func (ListItem) TableName() string {
	return "list_items"
}

// Touch updates the UpdatedAt timestamp and bumps the version.
func (i *ListItem) Touch() {
	i.UpdatedAt = time.Now().Unix()
	i.Version++
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (i *ListItem) UpdatedAtTime() time.Time {
	return time.Unix(i.UpdatedAt, 0)
}
