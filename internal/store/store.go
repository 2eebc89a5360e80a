package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pentrypal/app/core/internal/db"
	"github.com/pentrypal/app/core/internal/errors"
	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/sync/conflict"
	"github.com/pentrypal/app/core/internal/uuid"
)

// Middleware observes every dispatched command before it is reduced.
// The state argument is the pre-reduction state and must not be mutated.
type Middleware interface {
	OnDispatch(cmd Command, state *State)
}

// Subscriber receives every successfully reduced command.
type Subscriber func(cmd Command)

// Store owns the application state tree. All mutations go through Dispatch,
// which applies commands synchronously one at a time (reducer discipline);
// no other code path touches the state.
type Store struct {
	mu          sync.RWMutex
	state       *State
	repo        *db.Repository
	resolver    *conflict.Resolver
	middleware  []Middleware
	subscribers []Subscriber
	onConflict  func(*models.ConflictLog)
}

// New creates a Store backed by the given repository.
func New(repo *db.Repository) *Store {
	return &Store{
		state:    NewState(),
		repo:     repo,
		resolver: conflict.NewResolver(conflict.ResolutionStrategyLastWriteWins),
	}
}

// Use registers a middleware. Not safe to call concurrently with Dispatch;
// wire middleware during startup.
func (s *Store) Use(m Middleware) {
	s.middleware = append(s.middleware, m)
}

// Subscribe registers a subscriber for reduced commands. Startup-only, like Use.
func (s *Store) Subscribe(fn Subscriber) {
	s.subscribers = append(s.subscribers, fn)
}

// OnConflict registers a hook fired when a remote change collides with a
// concurrent local edit. Startup-only, like Use.
func (s *Store) OnConflict(fn func(*models.ConflictLog)) {
	s.onConflict = fn
}

// State returns a deep copy of the current state tree.
func (s *Store) State() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Dispatch runs middleware against the pre-reduction state, reduces the
// command, persists affected slices, and notifies subscribers. Queueable
// commands always reduce locally regardless of connectivity; mirroring them
// into the offline queue is the sync middleware's job.
func (s *Store) Dispatch(cmd Command) error {
	s.mu.Lock()

	for _, m := range s.middleware {
		m.OnDispatch(cmd, s.state)
	}

	if err := s.reduce(cmd); err != nil {
		s.mu.Unlock()
		return err
	}

	s.persistSlices(cmd)
	s.mu.Unlock()

	// Subscribers run outside the store lock so they may read state.
	for _, fn := range s.subscribers {
		fn(cmd)
	}

	return nil
}

// reduce applies a command to the state tree and writes through to the
// repository. Called with the store lock held.
func (s *Store) reduce(cmd Command) error {
	switch c := cmd.(type) {

	case CreateList:
		list := &models.ShoppingList{
			ID:      c.ListID,
			Name:    c.Name,
			OwnerID: s.state.Auth.UserID,
		}
		if list.ID == "" {
			list.ID = models.UUID(uuid.New())
		}
		if err := s.repo.CreateShoppingList(list); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to create list", err)
		}
		s.state.ShoppingLists.Lists = append(s.state.ShoppingLists.Lists, list)
		s.logChange(list.ID, "shopping_list", "create", list.Version)

	case RenameList:
		list := s.state.findList(c.ListID)
		if list == nil {
			return errors.New(errors.ErrListNotFound, fmt.Sprintf("list %s not found", c.ListID))
		}
		list.Name = c.Name
		list.Touch()
		if err := s.repo.UpdateShoppingList(list); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to rename list", err)
		}
		s.logChange(list.ID, "shopping_list", "update", list.Version)

	case DeleteList:
		list := s.state.findList(c.ListID)
		if list == nil {
			return errors.New(errors.ErrListNotFound, fmt.Sprintf("list %s not found", c.ListID))
		}
		if err := s.repo.DeleteShoppingList(string(c.ListID)); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to delete list", err)
		}
		lists := s.state.ShoppingLists.Lists[:0]
		for _, l := range s.state.ShoppingLists.Lists {
			if l.ID != c.ListID {
				lists = append(lists, l)
			}
		}
		s.state.ShoppingLists.Lists = lists
		delete(s.state.ShoppingLists.Items, string(c.ListID))
		s.logChange(c.ListID, "shopping_list", "delete", list.Version)

	case AddItem:
		if s.state.findList(c.ListID) == nil {
			return errors.New(errors.ErrListNotFound, fmt.Sprintf("list %s not found", c.ListID))
		}
		item := &models.ListItem{
			ID:       c.ItemID,
			ListID:   c.ListID,
			Name:     c.Name,
			Quantity: c.Quantity,
			Unit:     c.Unit,
			Category: c.Category,
		}
		if item.ID == "" {
			item.ID = models.UUID(uuid.New())
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		if err := s.repo.CreateListItem(item); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to add item", err)
		}
		key := string(c.ListID)
		s.state.ShoppingLists.Items[key] = append(s.state.ShoppingLists.Items[key], item)
		s.logChange(item.ID, "list_item", "create", item.Version)

	case CheckItem:
		item := s.state.findItem(c.ItemID)
		if item == nil {
			return errors.New(errors.ErrItemNotFound, fmt.Sprintf("item %s not found", c.ItemID))
		}
		item.Checked = c.Checked
		item.Touch()
		if err := s.repo.UpdateListItem(item); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to update item", err)
		}
		s.logChange(item.ID, "list_item", "update", item.Version)

	case RemoveItem:
		item := s.state.findItem(c.ItemID)
		if item == nil {
			return errors.New(errors.ErrItemNotFound, fmt.Sprintf("item %s not found", c.ItemID))
		}
		if err := s.repo.DeleteListItem(string(c.ItemID)); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to remove item", err)
		}
		key := string(item.ListID)
		items := s.state.ShoppingLists.Items[key][:0]
		for _, i := range s.state.ShoppingLists.Items[key] {
			if i.ID != c.ItemID {
				items = append(items, i)
			}
		}
		s.state.ShoppingLists.Items[key] = items
		s.logChange(c.ItemID, "list_item", "delete", item.Version)

	case UpsertPantryItem:
		item := s.state.findPantryItem(c.ItemID)
		if item != nil {
			item.Name = c.Name
			item.Quantity = c.Quantity
			item.Unit = c.Unit
			item.Location = c.Location
			item.ExpiresAt = c.ExpiresAt
			item.Touch()
			if err := s.repo.UpdatePantryItem(item); err != nil {
				return errors.Wrap(errors.ErrDatabase, "failed to update pantry item", err)
			}
			s.logChange(item.ID, "pantry_item", "update", item.Version)
			break
		}
		item = &models.PantryItem{
			ID:        c.ItemID,
			Name:      c.Name,
			Quantity:  c.Quantity,
			Unit:      c.Unit,
			Location:  c.Location,
			ExpiresAt: c.ExpiresAt,
		}
		if item.ID == "" {
			item.ID = models.UUID(uuid.New())
		}
		if err := s.repo.CreatePantryItem(item); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to create pantry item", err)
		}
		s.state.Pantry.Items = append(s.state.Pantry.Items, item)
		s.logChange(item.ID, "pantry_item", "create", item.Version)

	case RemovePantryItem:
		item := s.state.findPantryItem(c.ItemID)
		if item == nil {
			return errors.New(errors.ErrPantryItemNotFound, fmt.Sprintf("pantry item %s not found", c.ItemID))
		}
		if err := s.repo.DeletePantryItem(string(c.ItemID)); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to remove pantry item", err)
		}
		items := s.state.Pantry.Items[:0]
		for _, i := range s.state.Pantry.Items {
			if i.ID != c.ItemID {
				items = append(items, i)
			}
		}
		s.state.Pantry.Items = items
		s.logChange(c.ItemID, "pantry_item", "delete", item.Version)

	case UpdateProfile:
		if s.state.Auth.Profile == nil {
			s.state.Auth.Profile = &models.UserProfile{ID: s.state.Auth.UserID}
		}
		s.state.Auth.Profile.DisplayName = c.DisplayName
		s.state.Auth.Profile.AvatarURL = c.AvatarURL
		s.state.Auth.Profile.UpdatedAt = time.Now().Unix()

	case SetOnline:
		s.state.UI.Online = c.Online

	case SetSession:
		session := c.Session
		if err := s.repo.SaveSession(&session); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to save session", err)
		}
		s.state.Auth.LoggedIn = true
		s.state.Auth.UserID = session.UserID
		s.state.Auth.Session = &session
		if c.Profile != nil {
			s.state.Auth.Profile = c.Profile
		}

	case ClearSession:
		if err := s.repo.ClearSession(); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to clear session", err)
		}
		s.state.Auth = AuthState{}

	case SetSyncStatus:
		if c.LastSyncAt > 0 {
			// A new checkpoint clears any stale sync error and retires
			// change log entries the previous checkpoint already covered.
			s.pruneChangeLog(s.state.UI.LastSyncAt)
			s.state.UI.LastSyncAt = c.LastSyncAt
			s.state.UI.SyncError = ""
		}
		if c.SyncError != "" {
			s.state.UI.SyncError = c.SyncError
		}
		s.state.UI.PendingCount = c.Pending

	case SetActiveList:
		s.state.UI.ActiveListID = c.ListID

	case ApplyRemoteList:
		return s.applyRemoteList(&c.List)

	case ApplyRemoteItem:
		return s.applyRemoteItem(&c.Item)

	case ApplyRemotePantryItem:
		return s.applyRemotePantryItem(&c.Item)

	default:
		return errors.New(errors.ErrInvalid, fmt.Sprintf("unknown command %q", cmd.Type()))
	}

	return nil
}

// applyRemoteList upserts a list received from the remote side, keeping the
// remote version and timestamps.
func (s *Store) applyRemoteList(remote *models.ShoppingList) error {
	existing := s.state.findList(remote.ID)
	if existing == nil {
		if remote.IsDeleted {
			return nil
		}
		copied := *remote
		if err := s.repo.CreateShoppingList(&copied); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to apply remote list", err)
		}
		s.state.ShoppingLists.Lists = append(s.state.ShoppingLists.Lists, &copied)
		return nil
	}

	if s.keepLocal(existing.ID, "shopping_list",
		conflict.Revision{UpdatedAt: existing.UpdatedAt, Version: existing.Version},
		conflict.Revision{UpdatedAt: remote.UpdatedAt, Version: remote.Version}) {
		return nil
	}

	if remote.IsDeleted {
		return s.reduce(DeleteList{ListID: remote.ID})
	}

	*existing = *remote
	if err := s.repo.UpdateShoppingList(existing); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to apply remote list", err)
	}
	return nil
}

// applyRemoteItem upserts a list item received from the remote side.
func (s *Store) applyRemoteItem(remote *models.ListItem) error {
	existing := s.state.findItem(remote.ID)
	if existing == nil {
		if remote.IsDeleted {
			return nil
		}
		copied := *remote
		if err := s.repo.CreateListItem(&copied); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to apply remote item", err)
		}
		key := string(copied.ListID)
		s.state.ShoppingLists.Items[key] = append(s.state.ShoppingLists.Items[key], &copied)
		return nil
	}

	if s.keepLocal(existing.ID, "list_item",
		conflict.Revision{UpdatedAt: existing.UpdatedAt, Version: existing.Version},
		conflict.Revision{UpdatedAt: remote.UpdatedAt, Version: remote.Version}) {
		return nil
	}

	if remote.IsDeleted {
		return s.reduce(RemoveItem{ItemID: remote.ID})
	}

	*existing = *remote
	if err := s.repo.UpdateListItem(existing); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to apply remote item", err)
	}
	return nil
}

// applyRemotePantryItem upserts a pantry item received from the remote side.
func (s *Store) applyRemotePantryItem(remote *models.PantryItem) error {
	existing := s.state.findPantryItem(remote.ID)
	if existing == nil {
		if remote.IsDeleted {
			return nil
		}
		copied := *remote
		if err := s.repo.CreatePantryItem(&copied); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to apply remote pantry item", err)
		}
		s.state.Pantry.Items = append(s.state.Pantry.Items, &copied)
		return nil
	}

	if s.keepLocal(existing.ID, "pantry_item",
		conflict.Revision{UpdatedAt: existing.UpdatedAt, Version: existing.Version},
		conflict.Revision{UpdatedAt: remote.UpdatedAt, Version: remote.Version}) {
		return nil
	}

	if remote.IsDeleted {
		return s.reduce(RemovePantryItem{ItemID: remote.ID})
	}

	*existing = *remote
	if err := s.repo.UpdatePantryItem(existing); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to apply remote pantry item", err)
	}
	return nil
}

// keepLocal runs conflict resolution for a remote change that hit an
// entity with a diverged local copy. Returns true when the local copy
// wins and the remote change must be discarded. Every resolution lands
// in the conflict log. Called with the store lock held.
func (s *Store) keepLocal(id models.UUID, entity string, local, remote conflict.Revision) bool {
	detected, ok := s.resolver.DetectConflict(id, entity, local, remote)
	if !ok {
		return false
	}

	result, err := s.resolver.Resolve(detected)
	if err != nil {
		logging.Error("Failed to resolve concurrent edit", err,
			map[string]interface{}{"entity_id": string(id), "entity": entity})
		return false
	}

	if result.ConflictLog != nil {
		if err := s.repo.CreateConflictLog(result.ConflictLog); err != nil {
			logging.Error("Failed to record conflict log entry", err,
				map[string]interface{}{"entity_id": string(id)})
		}
		if s.onConflict != nil {
			// The hook runs outside the store lock
			go s.onConflict(result.ConflictLog)
		}
	}

	return result.Winner != conflict.SideRemote
}

// pruneChangeLog retires change log entries older than a completed sync
// checkpoint; anything newer may still need a delta pull elsewhere.
func (s *Store) pruneChangeLog(before int64) {
	if before == 0 {
		return
	}
	if err := s.repo.PruneChangeLog(before); err != nil {
		logging.Error("Failed to prune change log", err, nil)
	}
}

// logChange records a mutation in the change log for incremental sync.
// Failures are logged, not surfaced; the mutation itself already succeeded.
func (s *Store) logChange(entityID models.UUID, entity, operation string, version int) {
	entry := &models.ChangeLog{
		EntityID:  entityID,
		Entity:    entity,
		Operation: operation,
		Version:   version,
	}
	if err := s.repo.CreateChangeLog(entry); err != nil {
		logging.Error("Failed to record change log entry", err,
			map[string]interface{}{"entity_id": entityID, "operation": operation})
	}
}

// persistSlices saves the auth and ui slices as snapshot blobs when a command
// touched them. Shopping list and pantry slices live in their own tables and
// are written through during reduction; the offline queue is never persisted.
func (s *Store) persistSlices(cmd Command) {
	switch cmd.(type) {
	case UpdateProfile, SetSession, ClearSession:
		s.saveSnapshot("auth", s.authSnapshot())
	case SetOnline, SetSyncStatus, SetActiveList:
		s.saveSnapshot("ui", s.state.UI)
	}
}

// authSnapshot returns the auth slice with tokens stripped; the session row
// is the token store, the snapshot only carries identity and profile.
func (s *Store) authSnapshot() AuthState {
	snapshot := s.state.Auth
	snapshot.Session = nil
	return snapshot
}

func (s *Store) saveSnapshot(slice string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		logging.Error("Failed to marshal state slice", err, map[string]interface{}{"slice": slice})
		return
	}
	if err := s.repo.SaveSnapshot(slice, payload); err != nil {
		logging.Error("Failed to persist state slice", err, map[string]interface{}{"slice": slice})
	}
}

// Hydrate restores the state tree from local storage at startup.
func (s *Store) Hydrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := NewState()

	lists, err := s.repo.ListShoppingLists()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to load shopping lists", err)
	}
	state.ShoppingLists.Lists = lists
	for _, list := range lists {
		items, err := s.repo.ListItemsByList(string(list.ID))
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to load list items", err)
		}
		state.ShoppingLists.Items[string(list.ID)] = items
	}

	pantry, err := s.repo.ListPantryItems()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to load pantry", err)
	}
	state.Pantry.Items = pantry

	session, err := s.repo.GetSession()
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(errors.ErrDatabase, "failed to load session", err)
	}
	if session != nil {
		state.Auth.LoggedIn = true
		state.Auth.UserID = session.UserID
		state.Auth.Session = session
	}

	if payload, err := s.repo.GetSnapshot("auth"); err == nil {
		var auth AuthState
		if err := json.Unmarshal(payload, &auth); err == nil && auth.Profile != nil {
			state.Auth.Profile = auth.Profile
		}
	}

	if payload, err := s.repo.GetSnapshot("ui"); err == nil {
		var ui UIState
		if err := json.Unmarshal(payload, &ui); err == nil {
			state.UI = ui
		}
	}

	// Connectivity is unknown until the monitor's first probe.
	state.UI.Online = false
	state.UI.PendingCount = 0

	s.state = state

	logging.Info("State hydrated", map[string]interface{}{
		"lists":  len(state.ShoppingLists.Lists),
		"pantry": len(state.Pantry.Items),
		"auth":   state.Auth.LoggedIn,
	})

	return nil
}
