package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/followscope/followscope/internal/domain/model"
)

func newTestStatusService(t *testing.T, graph *fakeGraphRepo, status *fakeStatusRepo, scans *fakeScanRepo) *StatusService {
	t.Helper()
	svc, err := NewStatusService(StatusServiceOptions{
		Status:   status,
		Graph:    graph,
		ScanInfo: scans,
	})
	require.NoError(t, err)
	return svc
}

func TestStatusService_GetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("returns default record for unknown user", func(t *testing.T) {
		svc := newTestStatusService(t, newFakeGraphRepo(), newFakeStatusRepo(), newFakeScanRepo())

		st, err := svc.GetStatus(ctx, "nobody")

		require.NoError(t, err)
		assert.Equal(t, "nobody", st.UserID)
		assert.False(t, st.IsRunning)
		assert.Nil(t, st.Status)
	})

	t.Run("hides terminal fields while running", func(t *testing.T) {
		status := newFakeStatusRepo()
		require.NoError(t, status.SetResult(ctx, "u1", model.BotResult{
			Kind:      model.BotKindFollowers,
			Status:    model.OutcomeSuccess,
			Added:     3,
			Timestamp: time.Now(),
		}))
		kind := model.BotKindFollowing
		require.NoError(t, status.SetRunning(ctx, "u1", true, &kind))

		svc := newTestStatusService(t, newFakeGraphRepo(), status, newFakeScanRepo())

		st, err := svc.GetStatus(ctx, "u1")

		require.NoError(t, err)
		assert.True(t, st.IsRunning)
		assert.Nil(t, st.Status)
		assert.Nil(t, st.Added)
		assert.Nil(t, st.UpdatedAt)
	})

	t.Run("exposes the full terminal record after the run", func(t *testing.T) {
		status := newFakeStatusRepo()
		require.NoError(t, status.SetResult(ctx, "u1", model.BotResult{
			Kind:      model.BotKindSyncAll,
			Status:    model.OutcomeSuccess,
			Added:     2,
			Removed:   1,
			Timestamp: time.Now(),
		}))

		svc := newTestStatusService(t, newFakeGraphRepo(), status, newFakeScanRepo())

		st, err := svc.GetStatus(ctx, "u1")

		require.NoError(t, err)
		assert.False(t, st.IsRunning)
		require.NotNil(t, st.Status)
		assert.Equal(t, model.OutcomeSuccess, *st.Status)
		require.NotNil(t, st.Added)
		assert.Equal(t, 2, *st.Added)
	})
}

func TestStatusService_NonFollowers(t *testing.T) {
	t.Run("returns stored identifiers in lexical order", func(t *testing.T) {
		graph := newFakeGraphRepo()
		graph.seed("u1", model.RelationNonFollowers, "zed", "amy", "mia")
		svc := newTestStatusService(t, graph, newFakeStatusRepo(), newFakeScanRepo())

		got, err := svc.NonFollowers(context.Background(), "u1")

		require.NoError(t, err)
		assert.Equal(t, []string{"amy", "mia", "zed"}, got)
	})

	t.Run("empty collection yields empty list", func(t *testing.T) {
		svc := newTestStatusService(t, newFakeGraphRepo(), newFakeStatusRepo(), newFakeScanRepo())

		got, err := svc.NonFollowers(context.Background(), "u1")

		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStatusService_FollowStats(t *testing.T) {
	t.Run("combines counts with scan info", func(t *testing.T) {
		ctx := context.Background()
		graph := newFakeGraphRepo()
		graph.seed("u1", model.RelationFollowers, "a", "b", "c")
		graph.seed("u1", model.RelationFollowing, "a", "b")
		scans := newFakeScanRepo()
		scanned := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
		require.NoError(t, scans.Record(ctx, "u1", model.BotKindSyncAll, scanned))

		svc := newTestStatusService(t, graph, newFakeStatusRepo(), scans)

		stats, err := svc.FollowStats(ctx, "u1")

		require.NoError(t, err)
		assert.Equal(t, 3, stats.Followers)
		assert.Equal(t, 2, stats.Following)
		require.NotNil(t, stats.ScanInfo.LastFollowersScan)
		assert.Equal(t, scanned, *stats.ScanInfo.LastFollowersScan)
		require.NotNil(t, stats.ScanInfo.LastFollowingScan)
	})
}
