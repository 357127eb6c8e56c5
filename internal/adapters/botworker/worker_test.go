package botworker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/followscope/followscope/config"
	adapterredis "github.com/followscope/followscope/internal/adapters/redis"
	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
	"github.com/followscope/followscope/internal/mocks"
	"github.com/followscope/followscope/internal/service"
)

type memGraph struct {
	mu   sync.Mutex
	docs map[model.Relation]map[string]string // identifier -> doc id
}

func newMemGraph() *memGraph {
	return &memGraph{docs: make(map[model.Relation]map[string]string)}
}

func (g *memGraph) LoadCollection(_ context.Context, _ string, rel model.Relation) (*model.RelationshipSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := model.NewRelationshipSet()
	for identifier, docID := range g.docs[rel] {
		set.Put(model.RelationshipRecord{Identifier: identifier, DocID: docID})
	}
	return set, nil
}

func (g *memGraph) BatchCreate(_ context.Context, params core.BatchCreateParams) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.docs[params.Relation] == nil {
		g.docs[params.Relation] = make(map[string]string)
	}
	for _, identifier := range params.Identifiers {
		g.docs[params.Relation][identifier] = "doc-" + identifier
	}
	return nil
}

func (g *memGraph) BatchDelete(_ context.Context, params core.BatchDeleteParams) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, docID := range params.DocIDs {
		for identifier, id := range g.docs[params.Relation] {
			if id == docID {
				delete(g.docs[params.Relation], identifier)
			}
		}
	}
	return nil
}

func (g *memGraph) CountCollection(_ context.Context, _ string, rel model.Relation) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.docs[rel]), nil
}

func (g *memGraph) identifiers(rel model.Relation) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := make(model.IdentifierSet, len(g.docs[rel]))
	for identifier := range g.docs[rel] {
		set.Add(identifier)
	}
	return set.Sorted()
}

type memStatus struct {
	mu       sync.Mutex
	statuses map[string]model.BotStatus
}

func newMemStatus() *memStatus {
	return &memStatus{statuses: make(map[string]model.BotStatus)}
}

func (s *memStatus) SetRunning(_ context.Context, userID string, running bool, kind *model.BotKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.statuses[userID]
	status.UserID = userID
	status.IsRunning = running
	if kind != nil {
		k := *kind
		status.Kind = &k
	}
	s.statuses[userID] = status
	return nil
}

func (s *memStatus) SetResult(_ context.Context, userID string, res model.BotResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = model.BotStatus{
		UserID:      userID,
		IsRunning:   false,
		Kind:        &res.Kind,
		Status:      &res.Status,
		Added:       &res.Added,
		Removed:     &res.Removed,
		CountBefore: &res.CountBefore,
		CountAfter:  &res.CountAfter,
		Message:     &res.Message,
		UpdatedAt:   &res.Timestamp,
	}
	return nil
}

func (s *memStatus) GetStatus(_ context.Context, userID string) (model.BotStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.statuses[userID]; ok {
		return status, nil
	}
	return model.DefaultBotStatus(userID), nil
}

func (s *memStatus) FailStaleRunning(_ context.Context, _ time.Duration, _ int) (int64, error) {
	return 0, nil
}

type memScan struct {
	mu    sync.Mutex
	kinds []model.BotKind
}

func (s *memScan) Record(_ context.Context, _ string, kind model.BotKind, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	return nil
}

func (s *memScan) Get(_ context.Context, _ string) (model.ScanInfo, error) {
	return model.ScanInfo{}, nil
}

type workerFixture struct {
	worker   *Worker
	sessions *mocks.MockSessionStore
	graph    *memGraph
	status   *memStatus
}

func newWorkerFixture(t *testing.T, baseURL string) *workerFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	sessions := mocks.NewMockSessionStore(ctrl)
	graph := newMemGraph()
	status := newMemStatus()

	cfg := config.BotConfig{
		MaxConcurrentBots: 2,
		FetchBaseURL:      baseURL,
		FetchPageSize:     10,
		UserListExpr:      "users[].username",
		NextCursorExpr:    "next_max_id",
	}
	cfg.Sanitize()

	syncSvc, err := service.NewSyncService(service.SyncServiceOptions{Graph: graph})
	require.NoError(t, err)

	admission, err := service.NewAdmissionService(service.AdmissionServiceOptions{
		Status: status,
		Config: cfg,
	})
	require.NoError(t, err)

	runner, err := service.NewBotRunner(service.BotRunnerOptions{
		Graph:    graph,
		Status:   status,
		ScanInfo: &memScan{},
		Sync:     syncSvc,
	})
	require.NoError(t, err)

	worker, err := NewWorker(WorkerOptions{
		Admission: admission,
		Runner:    runner,
		Graph:     graph,
		Sessions:  sessions,
		Config:    cfg,
	})
	require.NoError(t, err)

	return &workerFixture{
		worker:   worker,
		sessions: sessions,
		graph:    graph,
		status:   status,
	}
}

func workerSession(userID string) model.RemoteSession {
	return model.RemoteSession{
		UserID:       userID,
		RemoteUserID: "9000",
		Cookies:      []model.SessionCookie{{Name: "sessionid", Value: "s"}},
	}
}

func TestWorker_Submit(t *testing.T) {
	t.Run("returns ErrNoSession when no session is stored", func(t *testing.T) {
		fixture := newWorkerFixture(t, "https://example.com")
		fixture.sessions.EXPECT().Get(gomock.Any(), "u1").Return(model.RemoteSession{}, adapterredis.ErrNotFound)

		err := fixture.worker.Submit(context.Background(), "u1", model.BotKindFollowers)

		require.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("propagates session store failures", func(t *testing.T) {
		fixture := newWorkerFixture(t, "https://example.com")
		fixture.sessions.EXPECT().Get(gomock.Any(), "u1").Return(model.RemoteSession{}, errors.New("redis down"))

		err := fixture.worker.Submit(context.Background(), "u1", model.BotKindFollowers)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "load remote session")
	})

	t.Run("rejects an unusable session before admission", func(t *testing.T) {
		fixture := newWorkerFixture(t, "https://example.com")
		sess := workerSession("u1")
		sess.RemoteUserID = ""
		fixture.sessions.EXPECT().Get(gomock.Any(), "u1").Return(sess, nil)

		err := fixture.worker.Submit(context.Background(), "u1", model.BotKindFollowers)

		require.Error(t, err)

		// Rejection at wiring must not leave a running marker behind.
		status, statusErr := fixture.status.GetStatus(context.Background(), "u1")
		require.NoError(t, statusErr)
		assert.False(t, status.IsRunning)
	})

	t.Run("runs an admitted followers job to completion", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v1/friendships/9000/followers/", r.URL.Path)
			page := map[string]any{
				"users": []map[string]any{{"username": "alice"}, {"username": "bob"}},
			}
			require.NoError(t, json.NewEncoder(w).Encode(page))
		}))
		defer srv.Close()

		fixture := newWorkerFixture(t, srv.URL)
		fixture.sessions.EXPECT().Get(gomock.Any(), "u1").Return(workerSession("u1"), nil)

		err := fixture.worker.Submit(context.Background(), "u1", model.BotKindFollowers)
		require.NoError(t, err)

		fixture.worker.Wait()

		status, statusErr := fixture.status.GetStatus(context.Background(), "u1")
		require.NoError(t, statusErr)
		assert.False(t, status.IsRunning)
		require.NotNil(t, status.Status)
		assert.Equal(t, model.OutcomeSuccess, *status.Status)
		assert.Equal(t, []string{"alice", "bob"}, fixture.graph.identifiers(model.RelationFollowers))
	})

	t.Run("a second submission for a busy user is rejected", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			<-release
			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"users": []map[string]any{}}))
		}))
		defer srv.Close()

		fixture := newWorkerFixture(t, srv.URL)
		fixture.sessions.EXPECT().Get(gomock.Any(), "u1").Return(workerSession("u1"), nil).Times(2)

		require.NoError(t, fixture.worker.Submit(context.Background(), "u1", model.BotKindFollowers))

		err := fixture.worker.Submit(context.Background(), "u1", model.BotKindFollowers)
		var alreadyRunning *service.AlreadyRunningError
		require.ErrorAs(t, err, &alreadyRunning)

		close(release)
		fixture.worker.Wait()
	})
}
