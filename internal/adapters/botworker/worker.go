// Package botworker bridges job submission to background execution: it
// admits, wires a remote client from the stored session, and runs the bot on
// a detached goroutine so the submitting request can return immediately.
package botworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/followscope/followscope/config"
	"github.com/followscope/followscope/internal/adapters/instagram"
	adapterredis "github.com/followscope/followscope/internal/adapters/redis"
	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
	"github.com/followscope/followscope/internal/observability/statsd"
	"github.com/followscope/followscope/internal/service"
)

// ErrNoSession is returned by Submit when no remote session is stored for
// the user. The user must log in again before running a bot.
var ErrNoSession = errors.New("no remote session stored for user")

// WorkerOptions groups dependencies for Worker.
type WorkerOptions struct {
	Admission *service.AdmissionService // Required: job admission
	Runner    *service.BotRunner        // Required: job execution
	Graph     core.GraphRepository      // Required: needed by the unfollow pass
	Sessions  core.SessionStore         // Required: stored remote sessions
	Config    config.BotConfig          // Required: fetcher configuration
	Logger    *slog.Logger              // Optional: structured logger
	Metrics   statsd.Sink               // Optional: metrics sink (StatsD-compatible)
}

// Worker accepts bot job submissions and runs admitted jobs in the
// background. Submission is fire-and-forget: a nil error means the job was
// admitted and its running marker is already durable; the caller observes
// progress by polling status.
type Worker struct {
	admission *service.AdmissionService
	runner    *service.BotRunner
	graph     core.GraphRepository
	sessions  core.SessionStore
	config    config.BotConfig
	logger    *slog.Logger
	metrics   statsd.Sink

	wg sync.WaitGroup
}

// NewWorker constructs a new Worker.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Admission == nil {
		return nil, errors.New("AdmissionService is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("BotRunner is required")
	}
	if opts.Graph == nil {
		return nil, errors.New("GraphRepository is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "bot_worker")
	}

	return &Worker{
		admission: opts.Admission,
		runner:    opts.Runner,
		graph:     opts.Graph,
		sessions:  opts.Sessions,
		config:    opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// Submit admits and launches a bot job for the user. The session lookup and
// client wiring happen before admission so a rejected submission never leaves
// a running marker behind.
func (w *Worker) Submit(ctx context.Context, userID string, kind model.BotKind) error {
	sess, err := w.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, adapterredis.ErrNotFound) {
			return ErrNoSession
		}
		return fmt.Errorf("load remote session: %w", err)
	}

	fetchers, err := w.buildFetchers(userID, sess)
	if err != nil {
		return fmt.Errorf("wire remote client: %w", err)
	}

	ticket, err := w.admission.TryAdmit(ctx, userID, kind)
	if err != nil {
		return err
	}

	job := service.BotJob{
		UserID:   userID,
		Kind:     kind,
		Fetchers: fetchers,
		Ticket:   ticket,
	}

	// The job must outlive the submitting request.
	runCtx := context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if _, err := w.runner.Execute(runCtx, job); err != nil && w.logger != nil {
			w.logger.ErrorContext(runCtx, "bot job finished with infrastructure error",
				"user_id", userID, "kind", kind, "error", err)
		}
	}()

	if w.metrics != nil {
		w.metrics.Count("worker.submitted", 1, map[string]string{"kind": string(kind)})
	}

	return nil
}

func (w *Worker) buildFetchers(userID string, sess model.RemoteSession) (service.Fetchers, error) {
	client, err := instagram.NewClient(instagram.ClientOptions{
		Config:  w.config,
		Session: sess,
		Logger:  w.logger,
	})
	if err != nil {
		return service.Fetchers{}, err
	}

	unfollow, err := instagram.UnfollowFetcher(instagram.UnfollowFetcherOptions{
		Client: client,
		Graph:  w.graph,
		UserID: userID,
	})
	if err != nil {
		return service.Fetchers{}, err
	}

	return service.Fetchers{
		Followers: client.FollowersFetcher(),
		Following: client.FollowingFetcher(),
		Unfollow:  unfollow,
	}, nil
}

// Wait blocks until every launched job has finished. Used during shutdown so
// in-flight jobs can write their terminal status.
func (w *Worker) Wait() {
	w.wg.Wait()
}
