// Package redis provides Redis-backed adapters for the followscope system.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/followscope/followscope/internal/domain/model"
)

const defaultPrefix = "remote_session:"

// SessionStore keeps each user's remote network session in Redis so any
// instance can run a bot for a user who logged in through another one.
// Sessions expire after the configured TTL; a bot run against an expired
// session fails admission at the worker, not mid-fetch.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSessionStore creates a Redis-backed remote session store.
func NewSessionStore(client redis.UniversalClient, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: defaultPrefix,
		ttl:    ttl,
	}
}

// NewSessionStoreWithPrefix creates a store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, ttl time.Duration, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Save stores the session under the user's key, refreshing the TTL.
func (s *SessionStore) Save(ctx context.Context, sess model.RemoteSession) error {
	if sess.UserID == "" {
		return errors.New("session user id cannot be empty")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.client.Set(ctx, s.prefix+sess.UserID, data, s.ttl).Err()
}

// Get returns the user's stored session, or ErrNotFound when none exists or
// it has expired.
func (s *SessionStore) Get(ctx context.Context, userID string) (model.RemoteSession, error) {
	if userID == "" {
		return model.RemoteSession{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.RemoteSession{}, ErrNotFound
		}
		return model.RemoteSession{}, fmt.Errorf("redis get: %w", err)
	}

	var sess model.RemoteSession
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return model.RemoteSession{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}
	return sess, nil
}

// Delete removes the user's stored session. Deleting a missing session is
// not an error.
func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+userID).Err()
}

// ErrNotFound is returned when no session is stored for the user.
type notFoundError struct{}

func (notFoundError) Error() string { return "remote session not found" }

var ErrNotFound error = notFoundError{}
