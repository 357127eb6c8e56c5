// Package reconciler provides an adapter for running the stale status
// reconciler loop.
package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/followscope/followscope/config"
	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/data"
	"github.com/followscope/followscope/internal/observability/statsd"
	"github.com/followscope/followscope/internal/service"
)

// Runner constructs the reconciler service over the status repository and
// runs its sweep loop.
type Runner struct {
	reconciler *service.ReconcilerService
	logger     *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReconcilerConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    core.StatusRepository
	Metrics statsd.Sink
}

// NewRunner creates a new reconciler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewStatusRepo(opts.DB)
	}

	reconciler, err := service.NewReconcilerService(service.ReconcilerServiceOptions{
		Status:  repo,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reconciler service: %w", err)
	}

	return &Runner{
		reconciler: reconciler,
		logger:     opts.Logger,
	}, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reconciler runner")
	return r.reconciler.Run(ctx)
}
