package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
)

// StatusServiceOptions groups dependencies for StatusService.
type StatusServiceOptions struct {
	Status   core.StatusRepository   // Required: durable status records
	Graph    core.GraphRepository    // Required: relationship document store
	ScanInfo core.ScanInfoRepository // Required: last-scan bookkeeping
	Logger   *slog.Logger            // Optional: structured logger
}

// StatusService serves the read side of the system: job status polling,
// follow counts, and the stored non-follower list.
type StatusService struct {
	status   core.StatusRepository
	graph    core.GraphRepository
	scanInfo core.ScanInfoRepository
	logger   *slog.Logger
}

// NewStatusService constructs a new StatusService.
func NewStatusService(opts StatusServiceOptions) (*StatusService, error) {
	if opts.Status == nil {
		return nil, errors.New("StatusRepository is required")
	}
	if opts.Graph == nil {
		return nil, errors.New("GraphRepository is required")
	}
	if opts.ScanInfo == nil {
		return nil, errors.New("ScanInfoRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "status_service")
	}

	return &StatusService{
		status:   opts.Status,
		graph:    opts.Graph,
		scanInfo: opts.ScanInfo,
		logger:   logger,
	}, nil
}

// GetStatus returns the caller-visible status record for the user. While a
// job runs only the running flag is exposed; once it finishes the full
// terminal record is visible until the next run starts.
func (s *StatusService) GetStatus(ctx context.Context, userID string) (model.BotStatus, error) {
	if userID == "" {
		return model.BotStatus{}, errors.New("user id is required")
	}

	st, err := s.status.GetStatus(ctx, userID)
	if err != nil {
		return model.BotStatus{}, fmt.Errorf("read status record: %w", err)
	}
	return st.Presentation(), nil
}

// NonFollowers returns the stored non-follower identifiers in lexical order.
func (s *StatusService) NonFollowers(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	set, err := s.graph.LoadCollection(ctx, userID, model.RelationNonFollowers)
	if err != nil {
		return nil, fmt.Errorf("load non-followers collection: %w", err)
	}
	return set.Identifiers().Sorted(), nil
}

// FollowStats returns follower and following counts plus last-scan times.
func (s *StatusService) FollowStats(ctx context.Context, userID string) (model.FollowStats, error) {
	if userID == "" {
		return model.FollowStats{}, errors.New("user id is required")
	}

	followers, err := s.graph.CountCollection(ctx, userID, model.RelationFollowers)
	if err != nil {
		return model.FollowStats{}, fmt.Errorf("count followers: %w", err)
	}
	following, err := s.graph.CountCollection(ctx, userID, model.RelationFollowing)
	if err != nil {
		return model.FollowStats{}, fmt.Errorf("count following: %w", err)
	}
	scans, err := s.scanInfo.Get(ctx, userID)
	if err != nil {
		return model.FollowStats{}, fmt.Errorf("read scan info: %w", err)
	}

	return model.FollowStats{
		Followers: followers,
		Following: following,
		ScanInfo:  scans,
	}, nil
}
