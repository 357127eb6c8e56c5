package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/followscope/followscope/config"
	"github.com/followscope/followscope/internal/core"
	obserrors "github.com/followscope/followscope/internal/observability/errors"
	"github.com/followscope/followscope/internal/observability/metrics"
	"github.com/followscope/followscope/internal/observability/statsd"
)

// ReconcilerServiceOptions groups dependencies for ReconcilerService.
type ReconcilerServiceOptions struct {
	Status  core.StatusRepository   // Required: durable status records
	Config  config.ReconcilerConfig // Required: reconciler configuration
	Logger  *slog.Logger            // Optional: structured logger
	Metrics statsd.Sink             // Optional: metrics sink (StatsD-compatible)
}

// ReconcilerService periodically fails status records stuck in the running
// state. A record goes stale when the process crashed (or was killed) between
// writing the running marker and writing the terminal result; without the
// sweep the user would be locked out of new runs forever.
type ReconcilerService struct {
	status  core.StatusRepository
	config  config.ReconcilerConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReconcilerService constructs a new ReconcilerService.
func NewReconcilerService(opts ReconcilerServiceOptions) (*ReconcilerService, error) {
	if opts.Status == nil {
		return nil, errors.New("StatusRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reconciler_service")
		logger.Debug("ReconcilerService initialized",
			"interval", opts.Config.Interval,
			"max_job_age", opts.Config.MaxJobAge,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &ReconcilerService{
		status:  opts.Status,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReconcilerService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reconciler service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.sweep(ctx); err != nil {
		s.logSweepError(err)
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reconciler service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logSweepError(err)
				// Continue running despite errors
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReconcilerService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// sweep fails stale running records in batches until none remain.
func (s *ReconcilerService) sweep(ctx context.Context) error {
	start := time.Now()

	var total int64
	var sweepErr error
	for {
		count, err := s.status.FailStaleRunning(ctx, s.config.MaxJobAge, s.config.BatchSize)
		total += count
		if err != nil {
			sweepErr = err
			break
		}
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			sweepErr = ctx.Err()
			break
		}
	}

	s.emitSweepMetrics(total, sweepErr, time.Since(start))

	if sweepErr != nil {
		if isContextCancellation(sweepErr) {
			return context.Canceled
		}
		return fmt.Errorf("fail stale running records: %w", sweepErr)
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stale running records",
			"count", total,
			"max_job_age", s.config.MaxJobAge,
		)
	}

	return nil
}

func (s *ReconcilerService) emitSweepMetrics(count int64, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reconciler.sweep", 1, tags)

	if elapsed > 0 {
		s.metrics.Timing("reconciler.sweep_duration", elapsed, metrics.CloneTags(tags))
	}

	if err == nil && count > 0 {
		s.metrics.Count("reconciler.records_failed", count, metrics.CloneTags(tags))
	}

	if err == nil {
		s.metrics.Gauge("reconciler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReconcilerService) logSweepError(err error) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug("sweep cancelled by context", "error", err)
		return
	}

	s.logger.Error("sweep failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
