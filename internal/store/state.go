package store

import "github.com/pentrypal/app/core/internal/models"

// AuthState is the auth slice: the current session and profile.
type AuthState struct {
	LoggedIn bool                `json:"logged_in"`
	UserID   models.UUID         `json:"user_id,omitempty"`
	Session  *models.Session     `json:"session,omitempty"`
	Profile  *models.UserProfile `json:"profile,omitempty"`
}

// ShoppingListsState is the shoppingLists slice.
type ShoppingListsState struct {
	Lists []*models.ShoppingList        `json:"lists"`
	Items map[string][]*models.ListItem `json:"items"` // keyed by list id
}

// PantryState is the pantry slice.
type PantryState struct {
	Items []*models.PantryItem `json:"items"`
}

// UIState is the ui slice: connectivity and sync status surfaced to screens.
type UIState struct {
	Online       bool        `json:"online"`
	ActiveListID models.UUID `json:"active_list_id,omitempty"`
	LastSyncAt   int64       `json:"last_sync_at,omitempty"`
	SyncError    string      `json:"sync_error,omitempty"`
	PendingCount int         `json:"pending_count"`
}

// State is the full application state tree.
type State struct {
	Auth          AuthState          `json:"auth"`
	ShoppingLists ShoppingListsState `json:"shopping_lists"`
	Pantry        PantryState        `json:"pantry"`
	UI            UIState            `json:"ui"`
}

// NewState returns an empty state tree.
func NewState() *State {
	return &State{
		ShoppingLists: ShoppingListsState{
			Items: make(map[string][]*models.ListItem),
		},
	}
}

// Clone returns a deep copy of the state, safe to hand to subscribers.
func (s *State) Clone() *State {
	out := &State{
		Auth: s.Auth,
		UI:   s.UI,
	}

	if s.Auth.Session != nil {
		session := *s.Auth.Session
		out.Auth.Session = &session
	}
	if s.Auth.Profile != nil {
		profile := *s.Auth.Profile
		out.Auth.Profile = &profile
	}

	out.ShoppingLists.Lists = make([]*models.ShoppingList, len(s.ShoppingLists.Lists))
	for i, list := range s.ShoppingLists.Lists {
		copied := *list
		out.ShoppingLists.Lists[i] = &copied
	}

	out.ShoppingLists.Items = make(map[string][]*models.ListItem, len(s.ShoppingLists.Items))
	for listID, items := range s.ShoppingLists.Items {
		copies := make([]*models.ListItem, len(items))
		for i, item := range items {
			copied := *item
			copies[i] = &copied
		}
		out.ShoppingLists.Items[listID] = copies
	}

	out.Pantry.Items = make([]*models.PantryItem, len(s.Pantry.Items))
	for i, item := range s.Pantry.Items {
		copied := *item
		out.Pantry.Items[i] = &copied
	}

	return out
}

// findList returns the list with the given id, or nil.
func (s *State) findList(id models.UUID) *models.ShoppingList {
	for _, list := range s.ShoppingLists.Lists {
		if list.ID == id {
			return list
		}
	}
	return nil
}

// findItem returns the item with the given id and its list id, or nil.
func (s *State) findItem(id models.UUID) *models.ListItem {
	for _, items := range s.ShoppingLists.Items {
		for _, item := range items {
			if item.ID == id {
				return item
			}
		}
	}
	return nil
}

// findPantryItem returns the pantry item with the given id, or nil.
func (s *State) findPantryItem(id models.UUID) *models.PantryItem {
	for _, item := range s.Pantry.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}
