package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/followscope/followscope/config"
	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
	"github.com/followscope/followscope/internal/observability/statsd"
)

// ErrGlobalCapacity is returned by TryAdmit when the system-wide concurrent
// bot limit is exhausted. The caller should ask the user to retry later.
var ErrGlobalCapacity = errors.New("global bot capacity exhausted")

// AlreadyRunningError is returned by TryAdmit when the user already has a bot
// job in flight, either in this process or according to the durable status
// record written by another runner.
type AlreadyRunningError struct {
	// Kind is the kind of the job already running, when known.
	Kind *model.BotKind
}

func (e *AlreadyRunningError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("a %s bot is already running for this user", *e.Kind)
	}
	return "a bot is already running for this user"
}

// AdmissionWriteError is returned by TryAdmit when admission was granted but
// the durable running marker could not be written. The admission slot has
// already been released; no job may start on the back of this error.
type AdmissionWriteError struct {
	Err error
}

func (e *AdmissionWriteError) Error() string {
	return fmt.Sprintf("write running status: %v", e.Err)
}

func (e *AdmissionWriteError) Unwrap() error {
	return e.Err
}

// AdmissionServiceOptions groups dependencies for AdmissionService.
type AdmissionServiceOptions struct {
	Status  core.StatusRepository // Required: durable status records
	Config  config.BotConfig      // Required: concurrency limits
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// AdmissionService decides whether a requested bot job may start. Admission
// requires all three of:
//   - no job in flight for the user in this process,
//   - no running marker in the user's durable status record,
//   - a free slot under the global concurrency limit.
//
// A granted admission has already written the durable running marker, so a
// poll issued immediately after returns is_running=true.
type AdmissionService struct {
	status  core.StatusRepository
	logger  *slog.Logger
	metrics statsd.Sink
	slots   *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]model.BotKind
}

// NewAdmissionService constructs a new AdmissionService.
func NewAdmissionService(opts AdmissionServiceOptions) (*AdmissionService, error) {
	if opts.Status == nil {
		return nil, errors.New("StatusRepository is required")
	}
	if opts.Config.MaxConcurrentBots < 1 {
		return nil, fmt.Errorf("MaxConcurrentBots must be positive, got %d", opts.Config.MaxConcurrentBots)
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "admission_service")
	}

	return &AdmissionService{
		status:   opts.Status,
		logger:   logger,
		metrics:  opts.Metrics,
		slots:    semaphore.NewWeighted(int64(opts.Config.MaxConcurrentBots)),
		inFlight: make(map[string]model.BotKind),
	}, nil
}

// Ticket represents a granted admission. The holder must call Release exactly
// once when the job finishes; Release is idempotent so calling it again from
// cleanup paths is safe.
type Ticket struct {
	userID string
	kind   model.BotKind

	once    sync.Once
	release func()
}

// UserID returns the admitted user.
func (t *Ticket) UserID() string { return t.userID }

// Kind returns the admitted job kind.
func (t *Ticket) Kind() model.BotKind { return t.kind }

// Release frees the user's exclusivity flag and the global slot. Safe to call
// more than once; only the first call has effect.
func (t *Ticket) Release() {
	if t == nil {
		return
	}
	t.once.Do(t.release)
}

// TryAdmit attempts to admit a bot job for the user. It never blocks waiting
// for capacity. On success the durable running marker has been written and
// the returned ticket holds both the per-user flag and a global slot.
func (s *AdmissionService) TryAdmit(ctx context.Context, userID string, kind model.BotKind) (*Ticket, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid bot kind: %q", kind)
	}

	// Claim the per-user flag first so two concurrent requests for the same
	// user cannot both pass the status check below.
	s.mu.Lock()
	if running, ok := s.inFlight[userID]; ok {
		s.mu.Unlock()
		s.countAdmission("rejected_user_busy")
		return nil, &AlreadyRunningError{Kind: &running}
	}
	s.inFlight[userID] = kind
	s.mu.Unlock()

	ticket, err := s.admitClaimed(ctx, userID, kind)
	if err != nil {
		s.mu.Lock()
		delete(s.inFlight, userID)
		s.mu.Unlock()
		return nil, err
	}
	return ticket, nil
}

// admitClaimed runs the admission steps that follow the in-process claim.
// The caller removes the claim if an error is returned.
func (s *AdmissionService) admitClaimed(ctx context.Context, userID string, kind model.BotKind) (*Ticket, error) {
	// A running marker written by another process also blocks admission.
	st, err := s.status.GetStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read status record: %w", err)
	}
	if st.IsRunning {
		s.countAdmission("rejected_user_busy")
		return nil, &AlreadyRunningError{Kind: st.Kind}
	}

	if !s.slots.TryAcquire(1) {
		s.countAdmission("rejected_capacity")
		return nil, ErrGlobalCapacity
	}

	if err := s.status.SetRunning(ctx, userID, true, &kind); err != nil {
		// The job must not start without a durable running marker, or a
		// poll right after submission would claim nothing is happening.
		s.slots.Release(1)
		s.countAdmission("rejected_write_failed")
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "admission aborted, running marker write failed",
				"user_id", userID, "kind", kind, "error", err)
		}
		return nil, &AdmissionWriteError{Err: err}
	}

	s.countAdmission("granted")
	s.gaugeInFlight()

	return &Ticket{
		userID: userID,
		kind:   kind,
		release: func() {
			s.mu.Lock()
			delete(s.inFlight, userID)
			s.mu.Unlock()
			s.slots.Release(1)
			s.gaugeInFlight()
		},
	}, nil
}

// InFlight returns the number of jobs currently admitted in this process.
func (s *AdmissionService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

func (s *AdmissionService) countAdmission(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Count("admission.decision", 1, map[string]string{"result": result})
}

func (s *AdmissionService) gaugeInFlight() {
	if s.metrics == nil {
		return
	}
	s.metrics.Gauge("admission.in_flight", float64(s.InFlight()), nil)
}
