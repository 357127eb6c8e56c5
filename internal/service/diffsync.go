// Package service implements the business logic of the follow graph sync
// system: diff-based collection sync, non-follower derivation, job admission,
// bot execution, status presentation, and stale job reconciliation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
)

// SyncServiceOptions groups dependencies for SyncService.
type SyncServiceOptions struct {
	Graph  core.GraphRepository // Required: relationship document store
	Logger *slog.Logger         // Optional: structured logger
}

// SyncService reconciles a stored relationship collection against a freshly
// fetched snapshot by computing and applying the minimal set of document
// creations and deletions. Documents present in both snapshots are never
// rewritten, so re-running a sync against an unchanged remote is a no-op.
type SyncService struct {
	graph  core.GraphRepository
	logger *slog.Logger
}

// NewSyncService constructs a new SyncService.
func NewSyncService(opts SyncServiceOptions) (*SyncService, error) {
	if opts.Graph == nil {
		return nil, errors.New("GraphRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sync_service")
	}

	return &SyncService{
		graph:  opts.Graph,
		logger: logger,
	}, nil
}

// SyncParams groups parameters for SyncService.Sync.
type SyncParams struct {
	UserID   string
	Relation model.Relation
	// Fetched is the target state: the identifiers the collection should
	// contain after the sync.
	Fetched model.IdentifierSet
	// Existing is the collection snapshot loaded from the store before the
	// sync started.
	Existing *model.RelationshipSet
}

// SyncResult reports how many documents a sync created and deleted.
type SyncResult struct {
	Added   int
	Removed int
}

// Changed reports whether the sync applied any writes.
func (r SyncResult) Changed() bool {
	return r.Added > 0 || r.Removed > 0
}

// Sync applies the difference between the fetched snapshot and the stored
// collection. Additions are written before removals, so a mid-sync failure
// leaves the collection a superset of its prior state rather than missing
// rows a retry would have to rediscover.
func (s *SyncService) Sync(ctx context.Context, p SyncParams) (SyncResult, error) {
	if p.UserID == "" {
		return SyncResult{}, errors.New("user id is required")
	}
	if !p.Relation.Valid() {
		return SyncResult{}, fmt.Errorf("invalid relation: %q", p.Relation)
	}
	if p.Existing == nil {
		return SyncResult{}, errors.New("existing snapshot is required")
	}

	stored := p.Existing.Identifiers()
	toAdd := p.Fetched.Diff(stored).Sorted()
	toRemove := stored.Diff(p.Fetched).Sorted()

	if len(toAdd) == 0 && len(toRemove) == 0 {
		return SyncResult{}, nil
	}

	if len(toAdd) > 0 {
		err := s.graph.BatchCreate(ctx, core.BatchCreateParams{
			UserID:      p.UserID,
			Relation:    p.Relation,
			Identifiers: toAdd,
		})
		if err != nil {
			return SyncResult{}, fmt.Errorf("create %s documents: %w", p.Relation, err)
		}
	}

	docIDs := make([]string, 0, len(toRemove))
	for _, identifier := range toRemove {
		docID, ok := p.Existing.DocID(identifier)
		if !ok || docID == "" {
			// The store diverged from the loaded snapshot; skip rather
			// than fail, the next sync sees the current state.
			if s.logger != nil {
				s.logger.WarnContext(ctx, "no document id for removal, skipping",
					"user_id", p.UserID,
					"collection", p.Relation,
					"identifier", identifier,
				)
			}
			continue
		}
		docIDs = append(docIDs, docID)
	}

	if len(docIDs) > 0 {
		err := s.graph.BatchDelete(ctx, core.BatchDeleteParams{
			UserID:   p.UserID,
			Relation: p.Relation,
			DocIDs:   docIDs,
		})
		if err != nil {
			return SyncResult{Added: len(toAdd)}, fmt.Errorf("delete %s documents: %w", p.Relation, err)
		}
	}

	return SyncResult{Added: len(toAdd), Removed: len(docIDs)}, nil
}

// SyncCollection loads the stored collection and syncs it to the target
// snapshot in one step.
func (s *SyncService) SyncCollection(
	ctx context.Context,
	userID string,
	rel model.Relation,
	target model.IdentifierSet,
) (SyncResult, error) {
	existing, err := s.graph.LoadCollection(ctx, userID, rel)
	if err != nil {
		return SyncResult{}, fmt.Errorf("load %s collection: %w", rel, err)
	}

	return s.Sync(ctx, SyncParams{
		UserID:   userID,
		Relation: rel,
		Fetched:  target,
		Existing: existing,
	})
}
