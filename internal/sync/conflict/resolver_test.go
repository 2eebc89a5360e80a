package conflict

import (
	"testing"
)

// TestDetectConflict tests divergence detection by version.
func TestDetectConflict(t *testing.T) {
	r := NewResolver(ResolutionStrategyLastWriteWins)

	// Same version is not a conflict
	if _, ok := r.DetectConflict("item-1", "list_item",
		Revision{UpdatedAt: 100, Version: 2},
		Revision{UpdatedAt: 200, Version: 2}); ok {
		t.Error("Expected no conflict for equal versions")
	}

	// Diverged versions are a conflict
	conflict, ok := r.DetectConflict("item-1", "list_item",
		Revision{UpdatedAt: 100, Version: 3},
		Revision{UpdatedAt: 200, Version: 2})
	if !ok {
		t.Fatal("Expected conflict for diverged versions")
	}
	if conflict.EntityID != "item-1" || conflict.Entity != "list_item" {
		t.Errorf("Unexpected conflict identity: %+v", conflict)
	}
	if conflict.DetectedAt == 0 {
		t.Error("Expected DetectedAt to be stamped")
	}
}

// TestResolveLastWriteWins tests winner selection by timestamp, with
// ties going to the local copy.
func TestResolveLastWriteWins(t *testing.T) {
	r := NewResolver(ResolutionStrategyLastWriteWins)

	tests := []struct {
		name   string
		local  Revision
		remote Revision
		winner Side
	}{
		{"remote newer", Revision{UpdatedAt: 100, Version: 2}, Revision{UpdatedAt: 200, Version: 3}, SideRemote},
		{"local newer", Revision{UpdatedAt: 300, Version: 3}, Revision{UpdatedAt: 200, Version: 2}, SideLocal},
		{"tie keeps local", Revision{UpdatedAt: 200, Version: 3}, Revision{UpdatedAt: 200, Version: 2}, SideLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Resolve(&Conflict{
				EntityID: "item-1",
				Entity:   "pantry_item",
				Local:    tt.local,
				Remote:   tt.remote,
			})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if result.Winner != tt.winner {
				t.Errorf("Expected winner %s, got %s", tt.winner, result.Winner)
			}
			if result.ConflictLog == nil {
				t.Fatal("Expected a conflict log entry")
			}
			if result.ConflictLog.EntityID != "item-1" {
				t.Errorf("Unexpected conflict log entity: %s", result.ConflictLog.EntityID)
			}
			if result.ConflictLog.LocalTimestamp != tt.local.UpdatedAt ||
				result.ConflictLog.RemoteTimestamp != tt.remote.UpdatedAt {
				t.Error("Conflict log timestamps do not match the revisions")
			}
		})
	}
}

// TestResolveManual tests that the manual strategy keeps nothing and
// flags the collision for review.
func TestResolveManual(t *testing.T) {
	r := NewResolver(ResolutionStrategyManual)

	result, err := r.Resolve(&Conflict{
		EntityID: "item-1",
		Entity:   "shopping_list",
		Local:    Revision{UpdatedAt: 100, Version: 2},
		Remote:   Revision{UpdatedAt: 200, Version: 3},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Winner != SideNone {
		t.Errorf("Expected no winner for manual strategy, got %s", result.Winner)
	}
	if result.ConflictLog.Resolution != "manual_review_required" {
		t.Errorf("Unexpected resolution: %s", result.ConflictLog.Resolution)
	}
}

// TestResolveInvalidConflict tests the validation error path.
func TestResolveInvalidConflict(t *testing.T) {
	r := NewResolver(ResolutionStrategyLastWriteWins)

	if _, err := r.Resolve(nil); err != ErrInvalidConflict {
		t.Errorf("Expected ErrInvalidConflict for nil conflict, got %v", err)
	}
	if _, err := r.Resolve(&Conflict{}); err != ErrInvalidConflict {
		t.Errorf("Expected ErrInvalidConflict for missing entity id, got %v", err)
	}
}

// TestResolveMultiple tests batch resolution.
func TestResolveMultiple(t *testing.T) {
	r := NewResolver(ResolutionStrategyLastWriteWins)

	conflicts := []*Conflict{
		{EntityID: "a", Entity: "list_item", Local: Revision{UpdatedAt: 1, Version: 1}, Remote: Revision{UpdatedAt: 2, Version: 2}},
		{EntityID: "b", Entity: "list_item", Local: Revision{UpdatedAt: 5, Version: 2}, Remote: Revision{UpdatedAt: 2, Version: 1}},
	}

	results, err := r.ResolveMultiple(conflicts)
	if err != nil {
		t.Fatalf("ResolveMultiple failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Winner != SideRemote || results[1].Winner != SideLocal {
		t.Errorf("Unexpected winners: %s, %s", results[0].Winner, results[1].Winner)
	}
}
