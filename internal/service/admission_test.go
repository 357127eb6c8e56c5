package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/followscope/followscope/config"
	"github.com/followscope/followscope/internal/domain/model"
)

func newTestAdmission(t *testing.T, status *fakeStatusRepo, maxConcurrent int) *AdmissionService {
	t.Helper()
	svc, err := NewAdmissionService(AdmissionServiceOptions{
		Status: status,
		Config: config.BotConfig{MaxConcurrentBots: maxConcurrent},
	})
	require.NoError(t, err)
	return svc
}

func TestNewAdmissionService(t *testing.T) {
	t.Run("returns error when status repo is nil", func(t *testing.T) {
		_, err := NewAdmissionService(AdmissionServiceOptions{
			Config: config.BotConfig{MaxConcurrentBots: 1},
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "StatusRepository is required")
	})

	t.Run("returns error on non-positive concurrency", func(t *testing.T) {
		_, err := NewAdmissionService(AdmissionServiceOptions{
			Status: newFakeStatusRepo(),
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "MaxConcurrentBots")
	})
}

func TestAdmissionService_TryAdmit(t *testing.T) {
	ctx := context.Background()

	t.Run("grants admission and writes running marker", func(t *testing.T) {
		status := newFakeStatusRepo()
		svc := newTestAdmission(t, status, 2)

		ticket, err := svc.TryAdmit(ctx, "u1", model.BotKindFollowers)

		require.NoError(t, err)
		require.NotNil(t, ticket)
		assert.Equal(t, "u1", ticket.UserID())
		assert.Equal(t, model.BotKindFollowers, ticket.Kind())
		assert.Equal(t, 1, svc.InFlight())

		st, err := status.GetStatus(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, st.IsRunning)
		require.NotNil(t, st.Kind)
		assert.Equal(t, model.BotKindFollowers, *st.Kind)
	})

	t.Run("rejects a second job for the same user", func(t *testing.T) {
		status := newFakeStatusRepo()
		svc := newTestAdmission(t, status, 2)

		_, err := svc.TryAdmit(ctx, "u1", model.BotKindFollowers)
		require.NoError(t, err)

		_, err = svc.TryAdmit(ctx, "u1", model.BotKindFollowing)

		var busy *AlreadyRunningError
		require.ErrorAs(t, err, &busy)
		require.NotNil(t, busy.Kind)
		assert.Equal(t, model.BotKindFollowers, *busy.Kind)
	})

	t.Run("rejects when durable record says running", func(t *testing.T) {
		status := newFakeStatusRepo()
		kind := model.BotKindSyncAll
		require.NoError(t, status.SetRunning(ctx, "u1", true, &kind))
		svc := newTestAdmission(t, status, 2)

		_, err := svc.TryAdmit(ctx, "u1", model.BotKindFollowers)

		var busy *AlreadyRunningError
		require.ErrorAs(t, err, &busy)
		assert.Zero(t, svc.InFlight())
	})

	t.Run("rejects when global capacity is exhausted", func(t *testing.T) {
		status := newFakeStatusRepo()
		svc := newTestAdmission(t, status, 1)

		_, err := svc.TryAdmit(ctx, "u1", model.BotKindFollowers)
		require.NoError(t, err)

		_, err = svc.TryAdmit(ctx, "u2", model.BotKindFollowers)

		require.ErrorIs(t, err, ErrGlobalCapacity)
		assert.Equal(t, 1, svc.InFlight())
	})

	t.Run("releases slot when running marker write fails", func(t *testing.T) {
		status := newFakeStatusRepo()
		status.setRunningErr = errors.New("db down")
		svc := newTestAdmission(t, status, 1)

		_, err := svc.TryAdmit(ctx, "u1", model.BotKindFollowers)

		var writeErr *AdmissionWriteError
		require.ErrorAs(t, err, &writeErr)
		assert.Zero(t, svc.InFlight())

		// The slot and the per-user flag must be free again.
		status.setRunningErr = nil
		ticket, err := svc.TryAdmit(ctx, "u1", model.BotKindFollowers)
		require.NoError(t, err)
		ticket.Release()
	})

	t.Run("release frees the user and the slot exactly once", func(t *testing.T) {
		status := newFakeStatusRepo()
		svc := newTestAdmission(t, status, 1)

		ticket, err := svc.TryAdmit(ctx, "u1", model.BotKindFollowers)
		require.NoError(t, err)

		ticket.Release()
		ticket.Release() // idempotent

		assert.Zero(t, svc.InFlight())

		next, err := svc.TryAdmit(ctx, "u2", model.BotKindFollowers)
		require.NoError(t, err)
		next.Release()
	})

	t.Run("rejects invalid kind and empty user", func(t *testing.T) {
		svc := newTestAdmission(t, newFakeStatusRepo(), 1)

		_, err := svc.TryAdmit(ctx, "u1", model.BotKind("prune"))
		require.Error(t, err)

		_, err = svc.TryAdmit(ctx, "", model.BotKindFollowers)
		require.Error(t, err)
	})
}
