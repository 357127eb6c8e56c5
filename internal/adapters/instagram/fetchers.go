package instagram

import (
	"context"
	"errors"
	"fmt"

	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
)

type fetcherFunc func(ctx context.Context) (model.IdentifierSet, error)

func (f fetcherFunc) Fetch(ctx context.Context) (model.IdentifierSet, error) {
	return f(ctx)
}

// FollowersFetcher returns a fetcher for the account's followers list.
func (c *Client) FollowersFetcher() core.SnapshotFetcher {
	return fetcherFunc(c.Followers)
}

// FollowingFetcher returns a fetcher for the account's following list.
func (c *Client) FollowingFetcher() core.SnapshotFetcher {
	return fetcherFunc(c.Following)
}

// UnfollowFetcherOptions groups dependencies for the unfollow fetcher.
type UnfollowFetcherOptions struct {
	Client *Client              // Required: authenticated remote client
	Graph  core.GraphRepository // Required: source of the stored non-followers
	UserID string               // Required: application user driving the pass
}

// UnfollowFetcher returns a fetcher that performs the unfollow pass: it
// unfollows every stored non-follower, then fetches and returns the fresh
// following list so the caller can reconcile against reality rather than an
// assumed outcome. Individual unfollow failures are logged and skipped; the
// remote may refuse some (rate limits, deleted accounts) without invalidating
// the rest of the pass.
func UnfollowFetcher(opts UnfollowFetcherOptions) (core.SnapshotFetcher, error) {
	if opts.Client == nil {
		return nil, errors.New("Client is required")
	}
	if opts.Graph == nil {
		return nil, errors.New("GraphRepository is required")
	}
	if opts.UserID == "" {
		return nil, errors.New("user id is required")
	}

	c := opts.Client
	return fetcherFunc(func(ctx context.Context) (model.IdentifierSet, error) {
		stored, err := opts.Graph.LoadCollection(ctx, opts.UserID, model.RelationNonFollowers)
		if err != nil {
			return nil, fmt.Errorf("load non-followers collection: %w", err)
		}

		for _, username := range stored.Identifiers().Sorted() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := c.Unfollow(ctx, username); err != nil {
				if c.logger != nil {
					c.logger.WarnContext(ctx, "unfollow failed, skipping",
						"username", username, "error", err)
				}
			}
		}

		return c.Following(ctx)
	}), nil
}
