// Package conflict provides conflict resolution for multi-device edits.
// When a pushed remote change collides with a local edit, the resolver
// picks a winner and records the collision for user awareness.
package conflict

import (
	"time"

	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/uuid"
)

// ResolutionStrategy defines how conflicts are resolved.
type ResolutionStrategy string

const (
	ResolutionStrategyLastWriteWins ResolutionStrategy = "last_write_wins"
	ResolutionStrategyManual        ResolutionStrategy = "manual"
)

// Side identifies which copy of an entity won a conflict.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
	SideNone   Side = "none" // manual review required
)

// Revision is the sync metadata of one copy of an entity.
type Revision struct {
	UpdatedAt int64
	Version   int
}

// Conflict represents a detected collision between a local edit and a
// remote change to the same entity.
type Conflict struct {
	EntityID   models.UUID
	Entity     string // shopping_list, list_item, pantry_item
	Local      Revision
	Remote     Revision
	DetectedAt int64
}

// ResolveResult is the outcome of conflict resolution.
type ResolveResult struct {
	Winner      Side
	Strategy    ResolutionStrategy
	ConflictLog *models.ConflictLog
}

// Resolver picks winners for concurrent edits.
type Resolver struct {
	strategy ResolutionStrategy
}

// NewResolver creates a Resolver with the given strategy.
func NewResolver(strategy ResolutionStrategy) *Resolver {
	return &Resolver{strategy: strategy}
}

// DetectConflict reports whether the local and remote revisions of an
// entity have diverged. Equal versions mean one side simply has not
// caught up yet; that is not a conflict.
func (r *Resolver) DetectConflict(entityID models.UUID, entity string, local, remote Revision) (*Conflict, bool) {
	if local.Version == remote.Version {
		return nil, false
	}

	conflict := &Conflict{
		EntityID:   entityID,
		Entity:     entity,
		Local:      local,
		Remote:     remote,
		DetectedAt: time.Now().Unix(),
	}

	logging.Warn("Concurrent edit conflict detected",
		map[string]interface{}{
			"entity_id":        string(entityID),
			"entity":           entity,
			"local_timestamp":  local.UpdatedAt,
			"remote_timestamp": remote.UpdatedAt,
			"local_version":    local.Version,
			"remote_version":   remote.Version,
		})

	return conflict, true
}

// Resolve resolves a conflict using the configured strategy.
func (r *Resolver) Resolve(conflict *Conflict) (*ResolveResult, error) {
	if conflict == nil || conflict.EntityID == "" {
		return nil, ErrInvalidConflict
	}

	switch r.strategy {
	case ResolutionStrategyManual:
		return r.resolveManual(conflict), nil
	default:
		return r.resolveLastWriteWins(conflict), nil
	}
}

// resolveLastWriteWins picks the copy with the newer UpdatedAt. Ties go
// to the local copy so an in-hand edit is never silently discarded.
func (r *Resolver) resolveLastWriteWins(conflict *Conflict) *ResolveResult {
	winner := SideLocal
	resolution := "local_wins"
	if conflict.Remote.UpdatedAt > conflict.Local.UpdatedAt {
		winner = SideRemote
		resolution = "remote_wins"
	}

	conflictLog := &models.ConflictLog{
		ID:              models.UUID(uuid.New()),
		EntityID:        conflict.EntityID,
		LocalTimestamp:  conflict.Local.UpdatedAt,
		RemoteTimestamp: conflict.Remote.UpdatedAt,
		Resolution:      resolution,
		DetectedAt:      conflict.DetectedAt,
	}

	logging.Info("Conflict resolved using last-write-wins",
		map[string]interface{}{
			"entity_id":        string(conflict.EntityID),
			"entity":           conflict.Entity,
			"winner_side":      string(winner),
			"local_timestamp":  conflict.Local.UpdatedAt,
			"remote_timestamp": conflict.Remote.UpdatedAt,
		})

	return &ResolveResult{
		Winner:      winner,
		Strategy:    ResolutionStrategyLastWriteWins,
		ConflictLog: conflictLog,
	}
}

// resolveManual keeps the local copy in place and marks the collision
// for user review.
func (r *Resolver) resolveManual(conflict *Conflict) *ResolveResult {
	conflictLog := &models.ConflictLog{
		ID:              models.UUID(uuid.New()),
		EntityID:        conflict.EntityID,
		LocalTimestamp:  conflict.Local.UpdatedAt,
		RemoteTimestamp: conflict.Remote.UpdatedAt,
		Resolution:      "manual_review_required",
		DetectedAt:      conflict.DetectedAt,
	}

	logging.Warn("Conflict queued for manual review",
		map[string]interface{}{
			"entity_id": string(conflict.EntityID),
			"entity":    conflict.Entity,
		})

	return &ResolveResult{
		Winner:      SideNone,
		Strategy:    ResolutionStrategyManual,
		ConflictLog: conflictLog,
	}
}

// ResolveMultiple resolves conflicts in batch.
func (r *Resolver) ResolveMultiple(conflicts []*Conflict) ([]*ResolveResult, error) {
	results := make([]*ResolveResult, 0, len(conflicts))
	for _, conflict := range conflicts {
		result, err := r.Resolve(conflict)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Errors
var (
	ErrInvalidConflict = &ConflictError{Message: "invalid conflict: entity id required"}
)

// ConflictError represents a conflict resolution error.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}
