// Package store implements the Transcript store and Settings store:
// Redis-backed KV persistence for chat history and per-user configuration,
// per SPEC_FULL §6 ("Persisted state layout"). The connection shape —
// redis.NewClient plus context-scoped Get/Set calls, degrading to a logged
// warning rather than a fatal error when Redis is unreachable — is grounded
// in other_examples' chimney cache layer (cacheGet/cacheSet over
// github.com/redis/go-redis/v9).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// ErrNotFound is returned by Settings and History lookups that find no
// value at the given key. Callers treat it as "use defaults" / "empty
// history", never as a fatal condition.
var ErrNotFound = errors.New("store: not found")

const (
	transcriptKeyPrefix = "transcript:"
	settingsKeyPrefix   = "settings:"

	// transcriptTTL bounds how long an idle session's history survives.
	// A session with no activity for this long is treated as abandoned.
	transcriptTTL = 30 * 24 * time.Hour
)

// Store is a Redis-backed implementation of the Transcript and Settings
// stores. A single client backs both key spaces, distinguished by prefix.
type Store struct {
	rdb *redis.Client
}

// New wraps an already-configured *redis.Client. Connectivity is verified
// by the caller (see Ping) — construction itself never fails.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Ping verifies the Redis connection is reachable, for use at startup and
// from GET /health.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store.Ping: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// AppendTurn appends one completed turn to a session's transcript and
// refreshes its TTL. It satisfies pipeline.TranscriptStore.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn model.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("store.AppendTurn: marshal: %w", err)
	}
	key := transcriptKeyPrefix + sessionID
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, transcriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store.AppendTurn: %w", err)
	}
	return nil
}

// History returns every persisted Turn for a session, oldest first. An
// empty, non-nil slice is returned for a session with no history — that is
// not an error (a new session has no prior transcript).
func (s *Store) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	key := transcriptKeyPrefix + sessionID
	raw, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store.History: %w", err)
	}
	turns := make([]model.Turn, 0, len(raw))
	for _, item := range raw {
		var t model.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("store.History: unmarshal turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// DeleteHistory removes a session's entire transcript.
func (s *Store) DeleteHistory(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, transcriptKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("store.DeleteHistory: %w", err)
	}
	return nil
}

// GetSettings returns the persisted Settings for a user, or ErrNotFound if
// none have been saved yet.
func (s *Store) GetSettings(ctx context.Context, userID string) (model.Settings, error) {
	raw, err := s.rdb.Get(ctx, settingsKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Settings{}, ErrNotFound
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("store.GetSettings: %w", err)
	}
	var settings model.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return model.Settings{}, fmt.Errorf("store.GetSettings: unmarshal: %w", err)
	}
	return settings, nil
}

// PutSettings persists settings for a user, replacing any prior value.
func (s *Store) PutSettings(ctx context.Context, userID string, settings model.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("store.PutSettings: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, settingsKeyPrefix+userID, data, 0).Err(); err != nil {
		return fmt.Errorf("store.PutSettings: %w", err)
	}
	return nil
}
