package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
	"github.com/followscope/followscope/internal/observability/metrics"
	"github.com/followscope/followscope/internal/observability/statsd"
)

// Fetchers bundles the snapshot fetchers a bot run may need. Single-relation
// kinds use one fetcher; sync_all needs a followers/following pair from the
// same session so the derived non-follower set is consistent.
type Fetchers struct {
	Followers core.SnapshotFetcher
	Following core.SnapshotFetcher
	// Unfollow performs the remote unfollow pass over the user's
	// non-followers and returns the set of accounts still followed.
	Unfollow core.SnapshotFetcher
}

// BotRunnerOptions groups dependencies for BotRunner.
type BotRunnerOptions struct {
	Graph    core.GraphRepository    // Required: relationship document store
	Status   core.StatusRepository   // Required: durable status records
	ScanInfo core.ScanInfoRepository // Required: last-scan bookkeeping
	Sync     *SyncService            // Required: diff sync engine
	Logger   *slog.Logger            // Optional: structured logger
	Metrics  statsd.Sink             // Optional: metrics sink (StatsD-compatible)
	Clock    func() time.Time        // Optional: time source, defaults to time.Now
}

// BotRunner executes one admitted bot job end to end: fetch, sync, terminal
// status write, cleanup. A panic anywhere in the run is contained and
// recorded as an error outcome; it never unwinds past Execute.
type BotRunner struct {
	graph    core.GraphRepository
	status   core.StatusRepository
	scanInfo core.ScanInfoRepository
	sync     *SyncService
	logger   *slog.Logger
	metrics  statsd.Sink
	clock    func() time.Time
}

// NewBotRunner constructs a new BotRunner.
func NewBotRunner(opts BotRunnerOptions) (*BotRunner, error) {
	if opts.Graph == nil {
		return nil, errors.New("GraphRepository is required")
	}
	if opts.Status == nil {
		return nil, errors.New("StatusRepository is required")
	}
	if opts.ScanInfo == nil {
		return nil, errors.New("ScanInfoRepository is required")
	}
	if opts.Sync == nil {
		return nil, errors.New("SyncService is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "bot_runner")
	}

	return &BotRunner{
		graph:    opts.Graph,
		status:   opts.Status,
		scanInfo: opts.ScanInfo,
		sync:     opts.Sync,
		logger:   logger,
		metrics:  opts.Metrics,
		clock:    clock,
	}, nil
}

// BotJob is one admitted unit of work for the runner.
type BotJob struct {
	UserID   string
	Kind     model.BotKind
	Fetchers Fetchers
	// Ticket is the admission ticket; the runner releases it when the job
	// finishes, whatever the outcome.
	Ticket *Ticket
}

// runTally accumulates write counts across every collection a run touches.
// For multi-collection kinds the counters aggregate over all of them.
type runTally struct {
	added       int
	removed     int
	countBefore int
}

func (t *runTally) absorb(before int, res SyncResult) {
	t.countBefore += before
	t.added += res.Added
	t.removed += res.Removed
}

func (t runTally) countAfter() int {
	return t.countBefore + t.added - t.removed
}

// Execute runs one bot job to completion and writes the terminal status
// record. The returned result mirrors what was written; err is non-nil only
// when the terminal write itself failed.
func (r *BotRunner) Execute(ctx context.Context, job BotJob) (result model.BotResult, err error) {
	start := r.clock()

	defer job.Ticket.Release()
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.ErrorContext(ctx, "bot run panicked",
					"user_id", job.UserID, "kind", job.Kind, "panic", rec)
			}
			result = r.errorResult(job.Kind, fmt.Errorf("internal error: %v", rec))
			err = r.finish(ctx, job, result, start)
		}
	}()

	if r.logger != nil {
		r.logger.InfoContext(ctx, "bot run started", "user_id", job.UserID, "kind", job.Kind)
	}

	tally, runErr := r.dispatch(ctx, job)
	if runErr != nil {
		result = r.errorResult(job.Kind, runErr)
		return result, r.finish(ctx, job, result, start)
	}

	if scanErr := r.recordScan(ctx, job); scanErr != nil && r.logger != nil {
		// Scan bookkeeping is advisory; a failed write must not fail the run.
		r.logger.WarnContext(ctx, "failed to record scan time",
			"user_id", job.UserID, "kind", job.Kind, "error", scanErr)
	}

	outcome := model.OutcomeSuccess
	if tally.added == 0 && tally.removed == 0 {
		outcome = model.OutcomeNoChange
	}

	result = model.BotResult{
		Kind:        job.Kind,
		Status:      outcome,
		Added:       tally.added,
		Removed:     tally.removed,
		CountBefore: tally.countBefore,
		CountAfter:  tally.countAfter(),
		Timestamp:   r.clock(),
	}
	return result, r.finish(ctx, job, result, start)
}

func (r *BotRunner) dispatch(ctx context.Context, job BotJob) (runTally, error) {
	switch job.Kind {
	case model.BotKindFollowers:
		return r.runRelationSync(ctx, job.UserID, job.Fetchers.Followers, model.RelationFollowers)
	case model.BotKindFollowing:
		return r.runRelationSync(ctx, job.UserID, job.Fetchers.Following, model.RelationFollowing)
	case model.BotKindSyncAll:
		return r.runSyncAll(ctx, job)
	case model.BotKindUnfollow:
		return r.runUnfollow(ctx, job)
	default:
		return runTally{}, fmt.Errorf("invalid bot kind: %q", job.Kind)
	}
}

// runRelationSync fetches one fresh snapshot and reconciles the matching
// stored collection to it.
func (r *BotRunner) runRelationSync(
	ctx context.Context,
	userID string,
	fetcher core.SnapshotFetcher,
	rel model.Relation,
) (runTally, error) {
	if fetcher == nil {
		return runTally{}, fmt.Errorf("no fetcher configured for %s", rel)
	}

	snapshot, err := fetcher.Fetch(ctx)
	if err != nil {
		return runTally{}, fmt.Errorf("fetch %s snapshot: %w", rel, err)
	}

	existing, err := r.graph.LoadCollection(ctx, userID, rel)
	if err != nil {
		return runTally{}, fmt.Errorf("load %s collection: %w", rel, err)
	}

	var tally runTally
	before := existing.Len()
	res, err := r.sync.Sync(ctx, SyncParams{
		UserID:   userID,
		Relation: rel,
		Fetched:  snapshot,
		Existing: existing,
	})
	tally.absorb(before, res)
	if err != nil {
		return tally, fmt.Errorf("sync %s: %w", rel, err)
	}

	return tally, nil
}

// runSyncAll fetches both snapshots up front so the derived non-follower set
// reflects one point in time, then reconciles all three collections.
func (r *BotRunner) runSyncAll(ctx context.Context, job BotJob) (runTally, error) {
	if job.Fetchers.Followers == nil || job.Fetchers.Following == nil {
		return runTally{}, errors.New("sync_all requires followers and following fetchers")
	}

	followers, err := job.Fetchers.Followers.Fetch(ctx)
	if err != nil {
		return runTally{}, fmt.Errorf("fetch followers snapshot: %w", err)
	}
	following, err := job.Fetchers.Following.Fetch(ctx)
	if err != nil {
		return runTally{}, fmt.Errorf("fetch following snapshot: %w", err)
	}

	var tally runTally

	steps := []struct {
		rel    model.Relation
		target model.IdentifierSet
	}{
		{model.RelationFollowers, followers},
		{model.RelationFollowing, following},
		{model.RelationNonFollowers, DeriveNonFollowers(followers, following)},
	}
	for _, step := range steps {
		existing, err := r.graph.LoadCollection(ctx, job.UserID, step.rel)
		if err != nil {
			return tally, fmt.Errorf("load %s collection: %w", step.rel, err)
		}
		before := existing.Len()
		res, err := r.sync.Sync(ctx, SyncParams{
			UserID:   job.UserID,
			Relation: step.rel,
			Fetched:  step.target,
			Existing: existing,
		})
		tally.absorb(before, res)
		if err != nil {
			return tally, fmt.Errorf("sync %s: %w", step.rel, err)
		}
	}

	return tally, nil
}

// runUnfollow performs the remote unfollow pass, then reconciles the
// following collection to what remains and shrinks the stored non-follower
// set to those still followed. Followers are untouched: unfollowing someone
// does not change who follows the user.
func (r *BotRunner) runUnfollow(ctx context.Context, job BotJob) (runTally, error) {
	if job.Fetchers.Unfollow == nil {
		return runTally{}, errors.New("unfollow requires an unfollow fetcher")
	}

	remaining, err := job.Fetchers.Unfollow.Fetch(ctx)
	if err != nil {
		return runTally{}, fmt.Errorf("unfollow pass: %w", err)
	}

	var tally runTally

	followingExisting, err := r.graph.LoadCollection(ctx, job.UserID, model.RelationFollowing)
	if err != nil {
		return tally, fmt.Errorf("load %s collection: %w", model.RelationFollowing, err)
	}
	before := followingExisting.Len()
	res, err := r.sync.Sync(ctx, SyncParams{
		UserID:   job.UserID,
		Relation: model.RelationFollowing,
		Fetched:  remaining,
		Existing: followingExisting,
	})
	tally.absorb(before, res)
	if err != nil {
		return tally, fmt.Errorf("sync %s: %w", model.RelationFollowing, err)
	}

	nonFollowers, err := r.graph.LoadCollection(ctx, job.UserID, model.RelationNonFollowers)
	if err != nil {
		return tally, fmt.Errorf("load %s collection: %w", model.RelationNonFollowers, err)
	}
	before = nonFollowers.Len()
	res, err = r.sync.Sync(ctx, SyncParams{
		UserID:   job.UserID,
		Relation: model.RelationNonFollowers,
		Fetched:  nonFollowers.Identifiers().Intersect(remaining),
		Existing: nonFollowers,
	})
	tally.absorb(before, res)
	if err != nil {
		return tally, fmt.Errorf("sync %s: %w", model.RelationNonFollowers, err)
	}

	return tally, nil
}

// recordScan updates last-scan bookkeeping for kinds that refreshed a
// relation from the remote network.
func (r *BotRunner) recordScan(ctx context.Context, job BotJob) error {
	switch job.Kind {
	case model.BotKindFollowers, model.BotKindFollowing, model.BotKindSyncAll:
		return r.scanInfo.Record(ctx, job.UserID, job.Kind, r.clock())
	default:
		return nil
	}
}

func (r *BotRunner) errorResult(kind model.BotKind, runErr error) model.BotResult {
	return model.BotResult{
		Kind:      kind,
		Status:    model.OutcomeError,
		Message:   runErr.Error(),
		Timestamp: r.clock(),
	}
}

// finish writes the terminal status record and emits lifecycle metrics. The
// terminal write clears the running flag atomically with the result fields;
// the extra SetRunning(false) is a backstop in case that write failed.
func (r *BotRunner) finish(ctx context.Context, job BotJob, result model.BotResult, start time.Time) error {
	writeErr := r.status.SetResult(ctx, job.UserID, result)
	if writeErr != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "failed to write terminal status",
				"user_id", job.UserID, "kind", job.Kind, "error", writeErr)
		}
		if clearErr := r.status.SetRunning(ctx, job.UserID, false, nil); clearErr != nil && r.logger != nil {
			r.logger.ErrorContext(ctx, "failed to clear running flag",
				"user_id", job.UserID, "kind", job.Kind, "error", clearErr)
		}
	}

	r.emitLifecycle(job, result, r.clock().Sub(start))

	if r.logger != nil {
		r.logger.InfoContext(ctx, "bot run finished",
			"user_id", job.UserID,
			"kind", job.Kind,
			"status", result.Status,
			"added", result.Added,
			"removed", result.Removed,
		)
	}

	if writeErr != nil {
		return fmt.Errorf("write terminal status: %w", writeErr)
	}
	return nil
}

func (r *BotRunner) emitLifecycle(job BotJob, result model.BotResult, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}

	metricResult := metrics.ResultSuccess
	switch result.Status {
	case model.OutcomeError:
		metricResult = metrics.ResultError
	case model.OutcomeNoChange:
		metricResult = metrics.ResultNoop
	}

	metrics.EmitBotLifecycle(r.metrics, metrics.BotMetric{
		Kind:     string(job.Kind),
		Result:   metricResult,
		Duration: elapsed,
	})
}
