// Package core defines the ports between the service layer and its
// collaborators (document store, status store, snapshot fetchers). Service
// implementations depend on these interfaces, not concrete implementations.
package core

import (
	"context"
	"time"

	"github.com/followscope/followscope/internal/domain/model"
)

// GraphRepository defines document-store operations over a user's
// relationship collections. Batched writes are chunked internally at the
// configured batch limit; each chunk is atomic on its own, and a failed chunk
// aborts the remainder without rolling back chunks already committed.
type GraphRepository interface {
	// LoadCollection reads every document in the named collection for the
	// user. Documents missing the identifier field are skipped, not fatal.
	// An empty collection yields an empty set, not an error.
	LoadCollection(ctx context.Context, userID string, rel model.Relation) (*model.RelationshipSet, error)

	// BatchCreate creates one document per identifier, each keyed by a
	// generated opaque id.
	BatchCreate(ctx context.Context, params BatchCreateParams) error

	// BatchDelete deletes documents by their previously resolved ids.
	BatchDelete(ctx context.Context, params BatchDeleteParams) error

	// CountCollection returns the number of documents in the collection.
	CountCollection(ctx context.Context, userID string, rel model.Relation) (int, error)
}

// BatchCreateParams groups parameters for GraphRepository.BatchCreate.
type BatchCreateParams struct {
	UserID      string
	Relation    model.Relation
	Identifiers []string
}

// BatchDeleteParams groups parameters for GraphRepository.BatchDelete.
type BatchDeleteParams struct {
	UserID   string
	Relation model.Relation
	DocIDs   []string
}

// StatusRepository defines the durable bot status record operations.
type StatusRepository interface {
	// SetRunning merges the running flag (and kind, when non-nil) into the
	// user's status record. Terminal-result fields from a previous run are
	// left untouched so they stay visible as the last known result.
	SetRunning(ctx context.Context, userID string, running bool, kind *model.BotKind) error

	// SetResult merges the full terminal record in a single atomic write
	// that also clears the running flag.
	SetResult(ctx context.Context, userID string, res model.BotResult) error

	// GetStatus returns the user's status record, or the default record
	// (not running, no outcome) when none was ever written.
	GetStatus(ctx context.Context, userID string) (model.BotStatus, error)

	// FailStaleRunning marks records stuck in the running state longer than
	// maxAge as failed. Processes up to batchSize records per call and
	// returns the number reconciled.
	FailStaleRunning(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// ScanInfoRepository records when each relation was last successfully scanned.
type ScanInfoRepository interface {
	Record(ctx context.Context, userID string, kind model.BotKind, at time.Time) error
	Get(ctx context.Context, userID string) (model.ScanInfo, error)
}

// SnapshotFetcher obtains one relationship snapshot from the remote network.
// Fetching may block for seconds to minutes depending on remote pagination.
// There is exactly one production implementation, selected at construction
// time; sync logic never branches on fetch strategy.
type SnapshotFetcher interface {
	Fetch(ctx context.Context) (model.IdentifierSet, error)
}

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	UserID string
	Email  string
}

// TokenVerifier validates a bearer token and resolves the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Identity, error)
}

// SessionStore persists a user's remote network session between bot runs.
type SessionStore interface {
	Save(ctx context.Context, sess model.RemoteSession) error
	Get(ctx context.Context, userID string) (model.RemoteSession, error)
	Delete(ctx context.Context, userID string) error
}
