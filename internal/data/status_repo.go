package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/followscope/followscope/internal/domain/model"
)

// StatusRepo persists per-user bot status records in Postgres. The record is
// mutated in place and never deleted; the latest write wins and is the only
// readable state.
type StatusRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewStatusRepo creates a new StatusRepo with a real time provider.
func NewStatusRepo(db *sql.DB) *StatusRepo {
	return &StatusRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewStatusRepoWithTimeProvider creates a new StatusRepo with a custom time provider (useful for tests).
func NewStatusRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *StatusRepo {
	return &StatusRepo{DB: db, timeProvider: tp}
}

// SetRunning merges the running flag (and kind, when non-nil) into the user's
// status record. Terminal-result fields from a previous run stay untouched so
// callers still see the last known result until the next job completes.
func (r *StatusRepo) SetRunning(
	ctx context.Context,
	userID string,
	running bool,
	kind *model.BotKind,
) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	var kindVal *string
	if kind != nil {
		k := string(*kind)
		kindVal = &k
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO bot_status (user_id, is_running, kind, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			is_running = EXCLUDED.is_running,
			kind       = COALESCE(EXCLUDED.kind, bot_status.kind),
			updated_at = EXCLUDED.updated_at
	`, userID, running, kindVal, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set running=%t for user %s: %w", running, userID, err)
	}
	return nil
}

// SetResult merges the full terminal record in one atomic statement that also
// clears the running flag, so a crash cannot strand a finished job in the
// running state.
func (r *StatusRepo) SetResult(ctx context.Context, userID string, res model.BotResult) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	ts := res.Timestamp
	if ts.IsZero() {
		ts = r.timeProvider.Now()
	}

	var message *string
	if res.Message != "" {
		message = &res.Message
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO bot_status (
			user_id, is_running, kind, status, added, removed,
			count_before, count_after, message, updated_at
		) VALUES ($1, FALSE, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			is_running   = FALSE,
			kind         = EXCLUDED.kind,
			status       = EXCLUDED.status,
			added        = EXCLUDED.added,
			removed      = EXCLUDED.removed,
			count_before = EXCLUDED.count_before,
			count_after  = EXCLUDED.count_after,
			message      = EXCLUDED.message,
			updated_at   = EXCLUDED.updated_at
	`, userID, string(res.Kind), string(res.Status), res.Added, res.Removed,
		res.CountBefore, res.CountAfter, message, ts.UTC())
	if err != nil {
		return fmt.Errorf("set result for user %s: %w", userID, err)
	}
	return nil
}

// GetStatus returns the user's status record, or the default (not running, no
// outcome) when none was ever written.
func (r *StatusRepo) GetStatus(ctx context.Context, userID string) (model.BotStatus, error) {
	if userID == "" {
		return model.BotStatus{}, ErrUserIDRequired
	}

	var (
		status    = model.BotStatus{UserID: userID}
		kind      sql.NullString
		outcome   sql.NullString
		added     sql.NullInt64
		removed   sql.NullInt64
		before    sql.NullInt64
		after     sql.NullInt64
		message   sql.NullString
		updatedAt sql.NullTime
	)

	err := r.DB.QueryRowContext(ctx, `
		SELECT is_running, kind, status, added, removed,
		       count_before, count_after, message, updated_at
		FROM bot_status
		WHERE user_id = $1
	`, userID).Scan(&status.IsRunning, &kind, &outcome, &added, &removed,
		&before, &after, &message, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultBotStatus(userID), nil
	}
	if err != nil {
		return model.BotStatus{}, fmt.Errorf("get status for user %s: %w", userID, err)
	}

	if kind.Valid {
		k := model.BotKind(kind.String)
		status.Kind = &k
	}
	if outcome.Valid {
		o := model.BotOutcome(outcome.String)
		status.Status = &o
	}
	status.Added = nullableInt(added)
	status.Removed = nullableInt(removed)
	status.CountBefore = nullableInt(before)
	status.CountAfter = nullableInt(after)
	if message.Valid {
		status.Message = &message.String
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		status.UpdatedAt = &t
	}

	return status, nil
}

// FailStaleRunning marks records stuck running longer than maxAge as failed.
// Up to batchSize records are reconciled per call.
func (r *StatusRepo) FailStaleRunning(
	ctx context.Context,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	cutoff := r.timeProvider.Now().UTC().Add(-maxAge)

	res, err := r.DB.ExecContext(ctx, `
		WITH stale AS (
			SELECT user_id FROM bot_status
			WHERE is_running AND updated_at < $1
			ORDER BY updated_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE bot_status b SET
			is_running = FALSE,
			status     = 'error',
			message    = 'job exceeded maximum runtime and was marked failed',
			updated_at = $3
		FROM stale
		WHERE b.user_id = stale.user_id
	`, cutoff, batchSize, r.timeProvider.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail stale running records: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
