package model

import (
	"fmt"
	"strings"
	"time"
)

// BotKind represents the kind of bot job requested for a user.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type BotKind string

// BotOutcome represents the terminal outcome of a finished bot job.
type BotOutcome string

const (
	// BotKindFollowers syncs the followers collection from a fresh snapshot.
	BotKindFollowers BotKind = "followers"
	// BotKindFollowing syncs the followings collection from a fresh snapshot.
	BotKindFollowing BotKind = "following"
	// BotKindUnfollow unfollows non-followers remotely and reconciles both
	// the followings and non_followers collections afterwards.
	BotKindUnfollow BotKind = "unfollow"
	// BotKindSyncAll syncs followers, followings, and derived non-followers
	// from one point-in-time pair of snapshots.
	BotKindSyncAll BotKind = "sync_all"

	// OutcomeSuccess indicates the job applied at least one change.
	OutcomeSuccess BotOutcome = "success"
	// OutcomeNoChange indicates the job completed with nothing to apply.
	OutcomeNoChange BotOutcome = "no_change"
	// OutcomeError indicates the job terminated with an error.
	OutcomeError BotOutcome = "error"
)

// UnmarshalText implements encoding.TextUnmarshaler for BotKind to allow
// parsing from env and URL path values.
func (k *BotKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	kind := BotKind(v)
	if kind.Valid() {
		*k = kind
		return nil
	}
	return fmt.Errorf("invalid BotKind: %q", v)
}

// Valid returns true if the BotKind is valid.
func (k BotKind) Valid() bool {
	return k == BotKindFollowers || k == BotKindFollowing || k == BotKindUnfollow ||
		k == BotKindSyncAll
}

// Valid returns true if the BotOutcome is valid.
func (o BotOutcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeNoChange || o == OutcomeError
}

// BotStatus is the durable, last-write-wins record of a user's bot job
// lifecycle, read by polling clients. Pointer fields are nil when the field
// has never been written.
type BotStatus struct {
	UserID      string      `json:"user_id"`
	IsRunning   bool        `json:"is_running"`
	Kind        *BotKind    `json:"type,omitempty"`
	Status      *BotOutcome `json:"status,omitempty"`
	Added       *int        `json:"added,omitempty"`
	Removed     *int        `json:"removed,omitempty"`
	CountBefore *int        `json:"count_before,omitempty"`
	CountAfter  *int        `json:"count_after,omitempty"`
	Message     *string     `json:"message,omitempty"`
	UpdatedAt   *time.Time  `json:"timestamp,omitempty"`
}

// DefaultBotStatus returns the status reported for a user with no record:
// not running, no outcome.
func DefaultBotStatus(userID string) BotStatus {
	return BotStatus{UserID: userID}
}

// Presentation returns the caller-visible view of the status. While a job is
// running only the running flag is exposed, so no partial or stale terminal
// fields leak through.
func (s BotStatus) Presentation() BotStatus {
	if s.IsRunning {
		return BotStatus{UserID: s.UserID, IsRunning: true}
	}
	return s
}

// BotResult is the terminal record written once a job finishes.
type BotResult struct {
	Kind        BotKind
	Status      BotOutcome
	Added       int
	Removed     int
	CountBefore int
	CountAfter  int
	Message     string
	Timestamp   time.Time
}

// ScanInfo records when each relation was last successfully scanned.
type ScanInfo struct {
	LastFollowersScan *time.Time `json:"last_followers_scan,omitempty"`
	LastFollowingScan *time.Time `json:"last_following_scan,omitempty"`
}

// FollowStats is the aggregate view served to polling clients.
type FollowStats struct {
	Followers int      `json:"followers"`
	Following int      `json:"following"`
	ScanInfo  ScanInfo `json:"scan_info"`
}
