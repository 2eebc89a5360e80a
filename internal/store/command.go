// Package store provides the application state store for PentryPal Core.
// State is partitioned into slices (auth, shoppingLists, pantry, ui) and is
// mutated only through typed commands dispatched to the store.
package store

import "github.com/pentrypal/app/core/internal/models"

// Command is a typed state mutation. Every mutation kind carries its own
// payload struct; there are no untyped action payloads.
type Command interface {
	// Type returns the wire identifier for the command, also used as the
	// action type of queued offline mutations.
	Type() string
}

// QueueableCommand marks mutations that are mirrored into the sync queue:
// flushed to the server right away while online, held for replay while
// offline. The set is fixed: shopping list, pantry and profile mutations.
// Connectivity, session and remote-apply commands are never queued.
type QueueableCommand interface {
	Command
	queueable()
}

// =====================================================
// Shopping list commands (queueable)
// =====================================================

// CreateList creates a shopping list. The ID is assigned by the caller so the
// optimistic local row and the eventual remote row share an id.
type CreateList struct {
	ListID models.UUID `json:"list_id"`
	Name   string      `json:"name"`
}

func (CreateList) Type() string { return "shoppingLists/createList" }
func (CreateList) queueable()   {}

// RenameList renames a shopping list.
type RenameList struct {
	ListID models.UUID `json:"list_id"`
	Name   string      `json:"name"`
}

func (RenameList) Type() string { return "shoppingLists/renameList" }
func (RenameList) queueable()   {}

// DeleteList soft-deletes a shopping list and its items.
type DeleteList struct {
	ListID models.UUID `json:"list_id"`
}

func (DeleteList) Type() string { return "shoppingLists/deleteList" }
func (DeleteList) queueable()   {}

// AddItem adds an item to a shopping list.
type AddItem struct {
	ItemID   models.UUID `json:"item_id"`
	ListID   models.UUID `json:"list_id"`
	Name     string      `json:"name"`
	Quantity float64     `json:"quantity"`
	Unit     string      `json:"unit,omitempty"`
	Category string      `json:"category,omitempty"`
}

func (AddItem) Type() string { return "shoppingLists/addItem" }
func (AddItem) queueable()   {}

// CheckItem marks an item as checked or unchecked.
type CheckItem struct {
	ItemID  models.UUID `json:"item_id"`
	Checked bool        `json:"checked"`
}

func (CheckItem) Type() string { return "shoppingLists/checkItem" }
func (CheckItem) queueable()   {}

// RemoveItem soft-deletes an item from a shopping list.
type RemoveItem struct {
	ItemID models.UUID `json:"item_id"`
}

func (RemoveItem) Type() string { return "shoppingLists/removeItem" }
func (RemoveItem) queueable()   {}

// =====================================================
// Pantry commands (queueable)
// =====================================================

// UpsertPantryItem creates or updates a pantry item.
type UpsertPantryItem struct {
	ItemID    models.UUID `json:"item_id"`
	Name      string      `json:"name"`
	Quantity  float64     `json:"quantity"`
	Unit      string      `json:"unit,omitempty"`
	Location  string      `json:"location,omitempty"`
	ExpiresAt int64       `json:"expires_at,omitempty"`
}

func (UpsertPantryItem) Type() string { return "pantry/upsertItem" }
func (UpsertPantryItem) queueable()   {}

// RemovePantryItem soft-deletes a pantry item.
type RemovePantryItem struct {
	ItemID models.UUID `json:"item_id"`
}

func (RemovePantryItem) Type() string { return "pantry/removeItem" }
func (RemovePantryItem) queueable()   {}

// =====================================================
// Profile commands (queueable)
// =====================================================

// UpdateProfile updates the user's display profile.
type UpdateProfile struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (UpdateProfile) Type() string { return "profile/update" }
func (UpdateProfile) queueable()   {}

// =====================================================
// Connectivity, session and sync status commands
// =====================================================

// SetOnline records a connectivity transition.
type SetOnline struct {
	Online bool `json:"online"`
}

func (SetOnline) Type() string { return "connectivity/setOnline" }

// SetSession stores the authenticated session after login or token refresh.
type SetSession struct {
	Session models.Session      `json:"session"`
	Profile *models.UserProfile `json:"profile,omitempty"`
}

func (SetSession) Type() string { return "auth/setSession" }

// ClearSession removes the session on logout or revocation.
type ClearSession struct{}

func (ClearSession) Type() string { return "auth/clearSession" }

// SetSyncStatus publishes drain results into the UI slice.
type SetSyncStatus struct {
	LastSyncAt int64  `json:"last_sync_at,omitempty"`
	SyncError  string `json:"sync_error,omitempty"`
	Pending    int    `json:"pending"`
}

func (SetSyncStatus) Type() string { return "sync/setStatus" }

// SetActiveList records the list currently open in the UI.
type SetActiveList struct {
	ListID models.UUID `json:"list_id"`
}

func (SetActiveList) Type() string { return "ui/setActiveList" }

// =====================================================
// Remote-apply commands (dispatched by the push subscriber)
// =====================================================

// ApplyRemoteList upserts a list received from the push channel.
type ApplyRemoteList struct {
	List models.ShoppingList `json:"list"`
}

func (ApplyRemoteList) Type() string { return "remote/applyList" }

// ApplyRemoteItem upserts a list item received from the push channel.
type ApplyRemoteItem struct {
	Item models.ListItem `json:"item"`
}

func (ApplyRemoteItem) Type() string { return "remote/applyItem" }

// ApplyRemotePantryItem upserts a pantry item received from the push channel.
type ApplyRemotePantryItem struct {
	Item models.PantryItem `json:"item"`
}

func (ApplyRemotePantryItem) Type() string { return "remote/applyPantryItem" }
