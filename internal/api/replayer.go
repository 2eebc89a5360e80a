package api

import (
	"context"
	"encoding/json"

	"github.com/pentrypal/app/core/internal/errors"
	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
)

// ActionReplayer translates captured offline actions back into API
// calls. Where the action only carries a delta (a rename, a checkbox
// flip), the current store state supplies the full entity so the server
// sees the latest local copy, not a stale intermediate.
type ActionReplayer struct {
	client *Client
	st     *store.Store
}

// NewActionReplayer creates an ActionReplayer over the client and store.
func NewActionReplayer(client *Client, st *store.Store) *ActionReplayer {
	return &ActionReplayer{client: client, st: st}
}

// Replay applies one pending action against the backend.
func (r *ActionReplayer) Replay(ctx context.Context, action *models.PendingAction) error {
	logging.Debug("Replaying offline action", map[string]interface{}{
		"id":          string(action.ID),
		"action_type": action.ActionType,
	})

	switch action.ActionType {
	case store.CreateList{}.Type():
		var cmd store.CreateList
		if err := json.Unmarshal(action.Payload, &cmd); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to decode action payload", err)
		}
		list := r.currentList(cmd.ListID)
		if list == nil {
			// Deleted again before the drain ran; nothing to create
			return nil
		}
		return r.client.CreateList(ctx, list)

	case store.RenameList{}.Type():
		var cmd store.RenameList
		if err := json.Unmarshal(action.Payload, &cmd); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to decode action payload", err)
		}
		list := r.currentList(cmd.ListID)
		if list == nil {
			return nil
		}
		return r.client.UpdateList(ctx, list)

	case store.DeleteList{}.Type():
		var cmd store.DeleteList
		if err := json.Unmarshal(action.Payload, &cmd); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to decode action payload", err)
		}
		return r.ignoreNotFound(r.client.DeleteList(ctx, cmd.ListID))

	case store.AddItem{}.Type():
		var cmd store.AddItem
		if err := json.Unmarshal(action.Payload, &cmd); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to decode action payload", err)
		}
		item := r.currentItem(cmd.ItemID)
		if item == nil {
			return nil
		}
		return r.client.CreateItem(ctx, item)

	case store.CheckItem{}.Type():
		var cmd store.CheckItem
		if err := json.Unmarshal(action.Payload, &cmd); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to decode action payload", err)
		}
		item := r.currentItem(cmd.ItemID)
		if item == nil {
			return nil
		}
		return r.client.UpdateItem(ctx, item)

	case store.RemoveItem{}.Type():
		var cmd store.RemoveItem
		if err := json.Unmarshal(action.Payload, &cmd); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to decode action payload", err)
		}
		return r.ignoreNotFound(r.client.DeleteItem(ctx, cmd.ItemID))

	case store.UpsertPantryItem{}.Type():
		var cmd store.UpsertPantryItem
		if err := json.Unmarshal(action.Payload, &cmd); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to decode action payload", err)
		}
		item := r.currentPantryItem(cmd.ItemID)
		if item == nil {
			return nil
		}
		return r.client.UpsertPantryItem(ctx, item)

	case store.RemovePantryItem{}.Type():
		var cmd store.RemovePantryItem
		if err := json.Unmarshal(action.Payload, &cmd); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to decode action payload", err)
		}
		return r.ignoreNotFound(r.client.DeletePantryItem(ctx, cmd.ItemID))

	case store.UpdateProfile{}.Type():
		state := r.st.State()
		if state.Auth.Profile == nil {
			return nil
		}
		return r.client.UpdateProfile(ctx, state.Auth.Profile)

	default:
		logging.Warn("Unknown offline action type, dropping", map[string]interface{}{
			"id":          string(action.ID),
			"action_type": action.ActionType,
		})
		return nil
	}
}

// currentList looks up the latest local copy of a list.
func (r *ActionReplayer) currentList(id models.UUID) *models.ShoppingList {
	state := r.st.State()
	for _, list := range state.ShoppingLists.Lists {
		if list.ID == id {
			return list
		}
	}
	return nil
}

// currentItem looks up the latest local copy of a list item.
func (r *ActionReplayer) currentItem(id models.UUID) *models.ListItem {
	state := r.st.State()
	for _, items := range state.ShoppingLists.Items {
		for _, item := range items {
			if item.ID == id {
				return item
			}
		}
	}
	return nil
}

// currentPantryItem looks up the latest local copy of a pantry item.
func (r *ActionReplayer) currentPantryItem(id models.UUID) *models.PantryItem {
	state := r.st.State()
	for _, item := range state.Pantry.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// ignoreNotFound treats a 404 on delete as success; the entity is
// already gone remotely, which is the outcome the user wanted.
func (r *ActionReplayer) ignoreNotFound(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == 404 {
		return nil
	}
	return err
}
