package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/followscope/followscope/internal/domain/model"
)

// ScanInfoRepo persists when each relation was last successfully scanned.
type ScanInfoRepo struct {
	DB *sql.DB
}

// NewScanInfoRepo creates a new ScanInfoRepo.
func NewScanInfoRepo(db *sql.DB) *ScanInfoRepo {
	return &ScanInfoRepo{DB: db}
}

// Record upserts the scan timestamp for the relation the kind refreshed.
// Kinds that refresh no snapshot collection (unfollow) are a no-op.
func (r *ScanInfoRepo) Record(
	ctx context.Context,
	userID string,
	kind model.BotKind,
	at time.Time,
) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	var column string
	switch kind {
	case model.BotKindFollowers:
		column = "last_followers_scan"
	case model.BotKindFollowing:
		column = "last_following_scan"
	case model.BotKindSyncAll:
		// sync_all refreshes both snapshots from one point in time.
		_, err := r.DB.ExecContext(ctx, `
			INSERT INTO user_scan_info (user_id, last_followers_scan, last_following_scan)
			VALUES ($1, $2, $2)
			ON CONFLICT (user_id) DO UPDATE SET
				last_followers_scan = EXCLUDED.last_followers_scan,
				last_following_scan = EXCLUDED.last_following_scan
		`, userID, at.UTC())
		if err != nil {
			return fmt.Errorf("record sync_all scan for user %s: %w", userID, err)
		}
		return nil
	default:
		return nil
	}

	//nolint:gosec // column name comes from the switch above, never from input
	query := fmt.Sprintf(`
		INSERT INTO user_scan_info (user_id, %[1]s)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s
	`, column)

	if _, err := r.DB.ExecContext(ctx, query, userID, at.UTC()); err != nil {
		return fmt.Errorf("record %s scan for user %s: %w", kind, userID, err)
	}
	return nil
}

// Get returns the user's scan info; absent users get empty scan info.
func (r *ScanInfoRepo) Get(ctx context.Context, userID string) (model.ScanInfo, error) {
	if userID == "" {
		return model.ScanInfo{}, ErrUserIDRequired
	}

	var followers, following sql.NullTime
	err := r.DB.QueryRowContext(ctx, `
		SELECT last_followers_scan, last_following_scan
		FROM user_scan_info
		WHERE user_id = $1
	`, userID).Scan(&followers, &following)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScanInfo{}, nil
	}
	if err != nil {
		return model.ScanInfo{}, fmt.Errorf("get scan info for user %s: %w", userID, err)
	}

	var info model.ScanInfo
	if followers.Valid {
		t := followers.Time
		info.LastFollowersScan = &t
	}
	if following.Valid {
		t := following.Time
		info.LastFollowingScan = &t
	}
	return info, nil
}
