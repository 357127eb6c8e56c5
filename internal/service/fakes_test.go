package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/domain/model"
)

// fakeGraphRepo is an in-memory document store for testing.
type fakeGraphRepo struct {
	mu    sync.Mutex
	docs  map[string]map[model.Relation]map[string]string // user -> relation -> identifier -> doc id
	nextID int

	createErr error
	deleteErr error
	loadErr   error

	createCalls int
	deleteCalls int
	// ops records write operations in order as "create:<rel>" / "delete:<rel>".
	ops []string
}

func newFakeGraphRepo() *fakeGraphRepo {
	return &fakeGraphRepo{docs: make(map[string]map[model.Relation]map[string]string)}
}

func (f *fakeGraphRepo) seed(userID string, rel model.Relation, identifiers ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range identifiers {
		f.nextID++
		f.collection(userID, rel)[id] = fmt.Sprintf("doc-%d", f.nextID)
	}
}

func (f *fakeGraphRepo) collection(userID string, rel model.Relation) map[string]string {
	if f.docs[userID] == nil {
		f.docs[userID] = make(map[model.Relation]map[string]string)
	}
	if f.docs[userID][rel] == nil {
		f.docs[userID][rel] = make(map[string]string)
	}
	return f.docs[userID][rel]
}

func (f *fakeGraphRepo) identifiers(userID string, rel model.Relation) model.IdentifierSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(model.IdentifierSet)
	for id := range f.collection(userID, rel) {
		out.Add(id)
	}
	return out
}

func (f *fakeGraphRepo) LoadCollection(
	ctx context.Context,
	userID string,
	rel model.Relation,
) (*model.RelationshipSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	set := model.NewRelationshipSet()
	for identifier, docID := range f.collection(userID, rel) {
		set.Put(model.RelationshipRecord{Identifier: identifier, DocID: docID})
	}
	return set, nil
}

func (f *fakeGraphRepo) BatchCreate(ctx context.Context, params core.BatchCreateParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.ops = append(f.ops, "create:"+string(params.Relation))
	if f.createErr != nil {
		return f.createErr
	}
	for _, id := range params.Identifiers {
		if _, ok := f.collection(params.UserID, params.Relation)[id]; ok {
			continue
		}
		f.nextID++
		f.collection(params.UserID, params.Relation)[id] = fmt.Sprintf("doc-%d", f.nextID)
	}
	return nil
}

func (f *fakeGraphRepo) BatchDelete(ctx context.Context, params core.BatchDeleteParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.ops = append(f.ops, "delete:"+string(params.Relation))
	if f.deleteErr != nil {
		return f.deleteErr
	}
	coll := f.collection(params.UserID, params.Relation)
	for _, docID := range params.DocIDs {
		for identifier, id := range coll {
			if id == docID {
				delete(coll, identifier)
				break
			}
		}
	}
	return nil
}

func (f *fakeGraphRepo) CountCollection(ctx context.Context, userID string, rel model.Relation) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	return len(f.collection(userID, rel)), nil
}

// fakeStatusRepo is an in-memory status record store for testing.
type fakeStatusRepo struct {
	mu       sync.Mutex
	statuses map[string]model.BotStatus

	setRunningErr error
	setResultErr  error
	getErr        error

	setRunningCalls int
	setResultCalls  int

	failStaleCount  int64
	failStaleErr    error
	failStaleCalls  int
}

func newFakeStatusRepo() *fakeStatusRepo {
	return &fakeStatusRepo{statuses: make(map[string]model.BotStatus)}
}

func (f *fakeStatusRepo) SetRunning(ctx context.Context, userID string, running bool, kind *model.BotKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setRunningCalls++
	if f.setRunningErr != nil {
		return f.setRunningErr
	}
	st, ok := f.statuses[userID]
	if !ok {
		st = model.DefaultBotStatus(userID)
	}
	st.IsRunning = running
	if kind != nil {
		st.Kind = kind
	}
	f.statuses[userID] = st
	return nil
}

func (f *fakeStatusRepo) SetResult(ctx context.Context, userID string, res model.BotResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setResultCalls++
	if f.setResultErr != nil {
		return f.setResultErr
	}
	kind := res.Kind
	status := res.Status
	added, removed := res.Added, res.Removed
	before, after := res.CountBefore, res.CountAfter
	ts := res.Timestamp
	st := model.BotStatus{
		UserID:      userID,
		IsRunning:   false,
		Kind:        &kind,
		Status:      &status,
		Added:       &added,
		Removed:     &removed,
		CountBefore: &before,
		CountAfter:  &after,
		UpdatedAt:   &ts,
	}
	if res.Message != "" {
		msg := res.Message
		st.Message = &msg
	}
	f.statuses[userID] = st
	return nil
}

func (f *fakeStatusRepo) GetStatus(ctx context.Context, userID string) (model.BotStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return model.BotStatus{}, f.getErr
	}
	st, ok := f.statuses[userID]
	if !ok {
		return model.DefaultBotStatus(userID), nil
	}
	return st, nil
}

func (f *fakeStatusRepo) FailStaleRunning(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStaleCalls++
	if f.failStaleErr != nil {
		return 0, f.failStaleErr
	}
	// Return count on first call, then 0 to simulate batch exhaustion
	if f.failStaleCalls == 1 {
		return f.failStaleCount, nil
	}
	return 0, nil
}

func (f *fakeStatusRepo) get(userID string) model.BotStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[userID]
}

// fakeScanRepo is an in-memory scan info store for testing.
type fakeScanRepo struct {
	mu      sync.Mutex
	records []model.BotKind
	info    map[string]model.ScanInfo

	recordErr error
}

func newFakeScanRepo() *fakeScanRepo {
	return &fakeScanRepo{info: make(map[string]model.ScanInfo)}
}

func (f *fakeScanRepo) Record(ctx context.Context, userID string, kind model.BotKind, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, kind)
	info := f.info[userID]
	switch kind {
	case model.BotKindFollowers:
		info.LastFollowersScan = &at
	case model.BotKindFollowing:
		info.LastFollowingScan = &at
	case model.BotKindSyncAll:
		info.LastFollowersScan = &at
		info.LastFollowingScan = &at
	}
	f.info[userID] = info
	return nil
}

func (f *fakeScanRepo) Get(ctx context.Context, userID string) (model.ScanInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info[userID], nil
}

// fakeFetcher returns a canned snapshot, an error, or panics.
type fakeFetcher struct {
	set   model.IdentifierSet
	err   error
	panics bool

	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (model.IdentifierSet, error) {
	f.calls++
	if f.panics {
		panic("fetcher exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}
