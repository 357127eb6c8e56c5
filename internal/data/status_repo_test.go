package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/followscope/followscope/internal/domain/model"
	"github.com/followscope/followscope/internal/testutil"
)

func TestStatusRepo_Integration(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewStatusRepo(db)

		t.Run("unknown user gets the default record", func(t *testing.T) {
			status, err := repo.GetStatus(ctx, "u-unknown")
			require.NoError(t, err)
			assert.Equal(t, model.DefaultBotStatus("u-unknown"), status)
		})

		t.Run("set running writes the marker and kind", func(t *testing.T) {
			kind := model.BotKindFollowers
			require.NoError(t, repo.SetRunning(ctx, "u1", true, &kind))

			status, err := repo.GetStatus(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, status.IsRunning)
			require.NotNil(t, status.Kind)
			assert.Equal(t, model.BotKindFollowers, *status.Kind)
			assert.Nil(t, status.Status)
		})

		t.Run("set result clears running and records the outcome", func(t *testing.T) {
			ts := testutil.TestTime()
			err := repo.SetResult(ctx, "u1", model.BotResult{
				Kind:        model.BotKindFollowers,
				Status:      model.OutcomeSuccess,
				Added:       3,
				Removed:     1,
				CountBefore: 10,
				CountAfter:  12,
				Message:     "synced",
				Timestamp:   ts,
			})
			require.NoError(t, err)

			status, err := repo.GetStatus(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, status.IsRunning)
			require.NotNil(t, status.Status)
			assert.Equal(t, model.OutcomeSuccess, *status.Status)
			assert.Equal(t, 3, *status.Added)
			assert.Equal(t, 1, *status.Removed)
			assert.Equal(t, 10, *status.CountBefore)
			assert.Equal(t, 12, *status.CountAfter)
			assert.Equal(t, "synced", *status.Message)
			require.NotNil(t, status.UpdatedAt)
			assert.WithinDuration(t, ts, *status.UpdatedAt, time.Second)
		})

		t.Run("set running keeps the previous terminal fields", func(t *testing.T) {
			kind := model.BotKindSyncAll
			require.NoError(t, repo.SetRunning(ctx, "u1", true, &kind))

			status, err := repo.GetStatus(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, status.IsRunning)
			assert.Equal(t, model.BotKindSyncAll, *status.Kind)
			// Last run's outcome stays in the record until the next result lands.
			require.NotNil(t, status.Status)
			assert.Equal(t, model.OutcomeSuccess, *status.Status)
		})

		t.Run("empty message stores as null", func(t *testing.T) {
			err := repo.SetResult(ctx, "u2", model.BotResult{
				Kind:   model.BotKindFollowing,
				Status: model.OutcomeNoChange,
			})
			require.NoError(t, err)

			status, err := repo.GetStatus(ctx, "u2")
			require.NoError(t, err)
			assert.Nil(t, status.Message)
		})
	})
}

func TestStatusRepo_FailStaleRunning(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()

		past := time.Now().Add(-2 * time.Hour)
		staleRepo := NewStatusRepoWithTimeProvider(db, NewFixedTimeProvider(past))
		repo := NewStatusRepo(db)

		kind := model.BotKindFollowers
		require.NoError(t, staleRepo.SetRunning(ctx, "u-stale", true, &kind))
		require.NoError(t, repo.SetRunning(ctx, "u-fresh", true, &kind))

		reconciled, err := repo.FailStaleRunning(ctx, time.Hour, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 1, reconciled)

		stale, err := repo.GetStatus(ctx, "u-stale")
		require.NoError(t, err)
		assert.False(t, stale.IsRunning)
		require.NotNil(t, stale.Status)
		assert.Equal(t, model.OutcomeError, *stale.Status)
		require.NotNil(t, stale.Message)
		assert.Contains(t, *stale.Message, "maximum runtime")

		fresh, err := repo.GetStatus(ctx, "u-fresh")
		require.NoError(t, err)
		assert.True(t, fresh.IsRunning)

		// A second sweep finds nothing left.
		reconciled, err = repo.FailStaleRunning(ctx, time.Hour, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 0, reconciled)
	})
}
