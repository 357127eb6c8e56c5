package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
)

// GraphRepoConfig holds configuration options for the graph repository.
type GraphRepoConfig struct {
	// BatchLimit caps how many documents one atomic batch statement touches.
	// Values outside 1..500 fall back to 500, the store-imposed ceiling.
	BatchLimit int
	Logger     *slog.Logger
	TimeProvider TimeProvider
}

// GraphRepo stores per-user relationship collections as documents in
// Postgres. Each document carries a generated opaque id; identifiers are the
// natural key and are unique per (user, collection).
type GraphRepo struct {
	DB           *sql.DB
	batchLimit   int
	timeProvider TimeProvider
	logger       *slog.Logger
}

const graphBatchCeiling = 500

// NewGraphRepo creates a new GraphRepo with the given database connection and configuration.
func NewGraphRepo(db *sql.DB, cfg GraphRepoConfig) *GraphRepo {
	limit := cfg.BatchLimit
	if limit < 1 || limit > graphBatchCeiling {
		limit = graphBatchCeiling
	}
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &GraphRepo{
		DB:           db,
		batchLimit:   limit,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// LoadCollection reads every document in the named collection for the user.
// Rows with an empty identifier are skipped with a warning; they cannot be
// diffed and are left for manual cleanup. An empty collection yields an
// empty set.
func (r *GraphRepo) LoadCollection(
	ctx context.Context,
	userID string,
	rel model.Relation,
) (*model.RelationshipSet, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if !rel.Valid() {
		return nil, ErrInvalidRelation
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT doc_id, identifier
		FROM relationship_docs
		WHERE user_id = $1 AND collection = $2
	`, userID, string(rel))
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", rel, err)
	}
	defer rows.Close()

	set := model.NewRelationshipSet()
	for rows.Next() {
		var docID, identifier string
		if scanErr := rows.Scan(&docID, &identifier); scanErr != nil {
			return nil, fmt.Errorf("scan relationship doc: %w", scanErr)
		}
		if identifier == "" {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "skipping document without identifier",
					"user_id", userID, "collection", rel, "doc_id", docID)
			}
			continue
		}
		set.Put(model.RelationshipRecord{Identifier: identifier, DocID: docID})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", rel, err)
	}

	return set, nil
}

// BatchCreate creates one document per identifier, keyed by a generated
// opaque id. Writes are chunked at the batch limit; each chunk commits as a
// single atomic statement, and a failed chunk aborts the remainder. Chunks
// already committed are not rolled back.
func (r *GraphRepo) BatchCreate(ctx context.Context, params core.BatchCreateParams) error {
	if params.UserID == "" {
		return ErrUserIDRequired
	}
	if !params.Relation.Valid() {
		return ErrInvalidRelation
	}

	createdAt := r.timeProvider.Now().UTC()
	for _, chunk := range chunkStrings(params.Identifiers, r.batchLimit) {
		docIDs := make([]string, len(chunk))
		for i := range chunk {
			docIDs[i] = uuid.NewString()
		}

		_, err := r.DB.ExecContext(ctx, `
			INSERT INTO relationship_docs (doc_id, user_id, collection, identifier, created_at)
			SELECT t.doc_id, $3, $4, t.identifier, $5
			FROM unnest($1::text[], $2::text[]) AS t(doc_id, identifier)
			ON CONFLICT (user_id, collection, identifier) DO NOTHING
		`, docIDs, chunk, params.UserID, string(params.Relation), createdAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("batch create %s: %w", params.Relation, ErrDuplicateIdentifier)
			}
			return fmt.Errorf("batch create %s: %w", params.Relation, err)
		}
	}

	return nil
}

// BatchDelete deletes documents by id, chunked at the batch limit. The delete
// is scoped to the user and collection so a stale doc id cannot cross user
// boundaries.
func (r *GraphRepo) BatchDelete(ctx context.Context, params core.BatchDeleteParams) error {
	if params.UserID == "" {
		return ErrUserIDRequired
	}
	if !params.Relation.Valid() {
		return ErrInvalidRelation
	}

	for _, chunk := range chunkStrings(params.DocIDs, r.batchLimit) {
		_, err := r.DB.ExecContext(ctx, `
			DELETE FROM relationship_docs
			WHERE user_id = $1 AND collection = $2 AND doc_id = ANY($3::text[])
		`, params.UserID, string(params.Relation), chunk)
		if err != nil {
			return fmt.Errorf("batch delete %s: %w", params.Relation, err)
		}
	}

	return nil
}

// CountCollection returns the number of documents stored in the collection.
func (r *GraphRepo) CountCollection(
	ctx context.Context,
	userID string,
	rel model.Relation,
) (int, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	if !rel.Valid() {
		return 0, ErrInvalidRelation
	}

	var count int
	err := r.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM relationship_docs
		WHERE user_id = $1 AND collection = $2
	`, userID, string(rel)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count collection %s: %w", rel, err)
	}
	return count, nil
}

// chunkStrings splits items into slices of at most size elements.
func chunkStrings(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	chunks := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
