package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
	"github.com/followscope/followscope/internal/testutil"
)

func TestGraphRepo_Integration(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewGraphRepo(db, GraphRepoConfig{})

		t.Run("empty collection loads as an empty set", func(t *testing.T) {
			set, err := repo.LoadCollection(ctx, "u-empty", model.RelationFollowers)
			require.NoError(t, err)
			assert.Equal(t, 0, set.Len())
		})

		t.Run("batch create keys every document by a generated id", func(t *testing.T) {
			err := repo.BatchCreate(ctx, core.BatchCreateParams{
				UserID:      "u1",
				Relation:    model.RelationFollowers,
				Identifiers: []string{"alice", "bob", "carol"},
			})
			require.NoError(t, err)

			set, err := repo.LoadCollection(ctx, "u1", model.RelationFollowers)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob", "carol"}, set.Identifiers().Sorted())

			seen := map[string]bool{}
			for _, identifier := range set.Identifiers().Sorted() {
				docID, ok := set.DocID(identifier)
				require.True(t, ok)
				require.NotEmpty(t, docID)
				assert.NotEqual(t, identifier, docID, "doc id must be opaque, not the identifier")
				assert.False(t, seen[docID], "doc ids must be unique")
				seen[docID] = true
			}
		})

		t.Run("recreating existing identifiers is idempotent", func(t *testing.T) {
			before, err := repo.LoadCollection(ctx, "u1", model.RelationFollowers)
			require.NoError(t, err)
			aliceDoc, _ := before.DocID("alice")

			err = repo.BatchCreate(ctx, core.BatchCreateParams{
				UserID:      "u1",
				Relation:    model.RelationFollowers,
				Identifiers: []string{"alice", "dave"},
			})
			require.NoError(t, err)

			after, err := repo.LoadCollection(ctx, "u1", model.RelationFollowers)
			require.NoError(t, err)
			assert.Equal(t, 4, after.Len())

			// The existing document keeps its id.
			got, ok := after.DocID("alice")
			require.True(t, ok)
			assert.Equal(t, aliceDoc, got)
		})

		t.Run("collections are isolated per user and relation", func(t *testing.T) {
			err := repo.BatchCreate(ctx, core.BatchCreateParams{
				UserID:      "u2",
				Relation:    model.RelationFollowers,
				Identifiers: []string{"alice"},
			})
			require.NoError(t, err)
			err = repo.BatchCreate(ctx, core.BatchCreateParams{
				UserID:      "u1",
				Relation:    model.RelationFollowing,
				Identifiers: []string{"alice"},
			})
			require.NoError(t, err)

			count, err := repo.CountCollection(ctx, "u2", model.RelationFollowers)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			count, err = repo.CountCollection(ctx, "u1", model.RelationFollowing)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})

		t.Run("batch delete removes only the named documents", func(t *testing.T) {
			set, err := repo.LoadCollection(ctx, "u1", model.RelationFollowers)
			require.NoError(t, err)
			aliceDoc, _ := set.DocID("alice")
			bobDoc, _ := set.DocID("bob")

			err = repo.BatchDelete(ctx, core.BatchDeleteParams{
				UserID:   "u1",
				Relation: model.RelationFollowers,
				DocIDs:   []string{aliceDoc, bobDoc},
			})
			require.NoError(t, err)

			after, err := repo.LoadCollection(ctx, "u1", model.RelationFollowers)
			require.NoError(t, err)
			assert.Equal(t, []string{"carol", "dave"}, after.Identifiers().Sorted())

			// The other user's documents survive.
			count, err := repo.CountCollection(ctx, "u2", model.RelationFollowers)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})

		t.Run("delete scoped to user ignores foreign doc ids", func(t *testing.T) {
			other, err := repo.LoadCollection(ctx, "u2", model.RelationFollowers)
			require.NoError(t, err)
			foreignDoc, _ := other.DocID("alice")

			err = repo.BatchDelete(ctx, core.BatchDeleteParams{
				UserID:   "u1",
				Relation: model.RelationFollowers,
				DocIDs:   []string{foreignDoc},
			})
			require.NoError(t, err)

			count, err := repo.CountCollection(ctx, "u2", model.RelationFollowers)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})

		t.Run("rejects missing user id and unknown relations", func(t *testing.T) {
			_, err := repo.LoadCollection(ctx, "", model.RelationFollowers)
			require.ErrorIs(t, err, ErrUserIDRequired)

			_, err = repo.LoadCollection(ctx, "u1", model.Relation("likes"))
			require.ErrorIs(t, err, ErrInvalidRelation)

			err = repo.BatchCreate(ctx, core.BatchCreateParams{
				UserID: "u1", Relation: model.Relation("likes"), Identifiers: []string{"x"},
			})
			require.ErrorIs(t, err, ErrInvalidRelation)
		})
	})
}

func TestChunkStrings(t *testing.T) {
	t.Run("splits at the chunk size", func(t *testing.T) {
		chunks := chunkStrings([]string{"a", "b", "c", "d", "e"}, 2)
		assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunks)
	})

	t.Run("empty input yields no chunks", func(t *testing.T) {
		assert.Nil(t, chunkStrings(nil, 2))
	})

	t.Run("non-positive size falls back to one", func(t *testing.T) {
		chunks := chunkStrings([]string{"a", "b"}, 0)
		assert.Equal(t, [][]string{{"a"}, {"b"}}, chunks)
	})
}
