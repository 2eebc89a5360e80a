package api

import (
	"encoding/json"
	"testing"

	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
)

func envelope(t *testing.T, eventType string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal envelope data: %v", err)
	}
	msg, err := json.Marshal(PushEnvelope{Type: eventType, Data: raw, Timestamp: 100})
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}
	return msg
}

// TestHandleMessageAppliesRemoteEntities tests that pushed entities land
// in the store through the remote-apply path.
func TestHandleMessageAppliesRemoteEntities(t *testing.T) {
	st := setupAPIStore(t)
	sub := NewPushSubscriber("wss://unused", st)

	sub.handleMessage(envelope(t, EventListUpdated, models.ShoppingList{
		ID: "list-1", Name: "Shared", OwnerID: "friend", UpdatedAt: 100, Version: 1,
	}))
	sub.handleMessage(envelope(t, EventItemUpdated, models.ListItem{
		ID: "item-1", ListID: "list-1", Name: "Butter", UpdatedAt: 100, Version: 1,
	}))
	sub.handleMessage(envelope(t, EventPantryItemUpdated, models.PantryItem{
		ID: "pantry-1", Name: "Flour", Quantity: 2, UpdatedAt: 100, Version: 1,
	}))

	state := st.State()
	if len(state.ShoppingLists.Lists) != 1 || state.ShoppingLists.Lists[0].Name != "Shared" {
		t.Error("Expected pushed list applied")
	}
	if len(state.ShoppingLists.Items["list-1"]) != 1 {
		t.Error("Expected pushed item applied")
	}
	if len(state.Pantry.Items) != 1 {
		t.Error("Expected pushed pantry item applied")
	}
}

// TestHandleMessageRemoteDelete tests that a pushed deletion removes the
// local copy.
func TestHandleMessageRemoteDelete(t *testing.T) {
	st := setupAPIStore(t)
	sub := NewPushSubscriber("wss://unused", st)

	sub.handleMessage(envelope(t, EventListUpdated, models.ShoppingList{
		ID: "list-1", Name: "Shared", UpdatedAt: 100, Version: 1,
	}))
	sub.handleMessage(envelope(t, EventListUpdated, models.ShoppingList{
		ID: "list-1", Name: "Shared", UpdatedAt: 200, Version: 2, IsDeleted: true,
	}))

	if len(st.State().ShoppingLists.Lists) != 0 {
		t.Error("Expected remotely deleted list removed")
	}
}

// TestHandleMessageSessionRevoked tests the forced-logout path.
func TestHandleMessageSessionRevoked(t *testing.T) {
	st := setupAPIStore(t)
	st.Dispatch(store.SetSession{Session: models.Session{
		UserID: "user-1", AccessToken: "a", RefreshToken: "r", ExpiresAt: 9999999999,
	}})

	sub := NewPushSubscriber("wss://unused", st)
	revoked := false
	sub.OnSessionRevoked(func() { revoked = true })

	sub.handleMessage(envelope(t, EventSessionRevoked, map[string]string{"reason": "password_changed"}))

	if st.State().Auth.LoggedIn {
		t.Error("Expected session cleared after revocation push")
	}
	if !revoked {
		t.Error("Expected forced-logout hook to fire")
	}
}

// TestHandleMessageMalformedAndUnknown tests that garbage and unknown
// events are skipped without state changes.
func TestHandleMessageMalformedAndUnknown(t *testing.T) {
	st := setupAPIStore(t)
	sub := NewPushSubscriber("wss://unused", st)

	sub.handleMessage([]byte(`not json`))
	sub.handleMessage(envelope(t, "future.event", map[string]string{"k": "v"}))
	sub.handleMessage([]byte(`{"type":"list.updated","data":"not an object"}`))

	state := st.State()
	if len(state.ShoppingLists.Lists) != 0 || len(state.Pantry.Items) != 0 {
		t.Error("Expected no state changes from malformed messages")
	}
}
