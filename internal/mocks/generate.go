// Package mocks provides mock implementations for testing the followscope job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our core ports.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockStore := mocks.NewMockSessionStore(ctrl)
//	mockStore.EXPECT().Get(gomock.Any(), "u1").Return(sess, nil)
package mocks

// Generate mock for SessionStore interface from internal/core package.
// This creates MockSessionStore with methods for all SessionStore interface methods:
// Save, Get, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/followscope/followscope/internal/core SessionStore

// Generate mock for SnapshotFetcher interface from internal/core package.
// This creates MockSnapshotFetcher with methods for all SnapshotFetcher interface methods:
// Fetch
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=snapshot_fetcher_mock.go github.com/followscope/followscope/internal/core SnapshotFetcher
