package service

import (
	"context"

	"github.com/followscope/followscope/internal/domain/model"
)

// DeriveNonFollowers computes the accounts the user follows that do not
// follow back. Both inputs must come from the same point-in-time scan;
// deriving from a fresh following snapshot against stale followers (or vice
// versa) misclassifies accounts that changed in between.
func DeriveNonFollowers(followers, following model.IdentifierSet) model.IdentifierSet {
	return following.Diff(followers)
}

// SyncNonFollowers reconciles the stored non-followers collection to the
// given derived target set.
func (s *SyncService) SyncNonFollowers(
	ctx context.Context,
	userID string,
	target model.IdentifierSet,
) (SyncResult, error) {
	return s.SyncCollection(ctx, userID, model.RelationNonFollowers, target)
}
