// Package local persists the device push token in on-device key-value storage.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// TokenKey is the single storage key holding the device push token.
const TokenKey = "@fcm_token"

// KeyValue is the subset of a key-value backend the token store needs.
// Lookup reports ok=false for a missing key; Del on a missing key is not an error.
type KeyValue interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Store(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}

// KeyValueTokenStore implements push.TokenStore on top of any KeyValue backend.
// Writers always replace the whole value, so the mutex only serializes
// access to backends that are not safe for concurrent use.
type KeyValueTokenStore struct {
	mu     sync.Mutex
	kv     KeyValue
	logger *slog.Logger
}

func NewKeyValueTokenStore(kv KeyValue, logger *slog.Logger) *KeyValueTokenStore {
	return &KeyValueTokenStore{
		kv:     kv,
		logger: logger.With("component", "TokenStore"),
	}
}

func (s *KeyValueTokenStore) Get(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok, err := s.kv.Lookup(ctx, TokenKey)
	if err != nil {
		s.logger.Error("Failed to read push token", "err", err)
		return "", false, fmt.Errorf("read %s: %w", TokenKey, err)
	}
	if !ok || token == "" {
		return "", false, nil
	}
	return token, true, nil
}

func (s *KeyValueTokenStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("refusing to persist empty push token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Store(ctx, TokenKey, token); err != nil {
		s.logger.Error("Failed to persist push token", "err", err)
		return fmt.Errorf("write %s: %w", TokenKey, err)
	}
	s.logger.Debug("Push token persisted")
	return nil
}

func (s *KeyValueTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Del(ctx, TokenKey); err != nil {
		s.logger.Error("Failed to clear push token", "err", err)
		return fmt.Errorf("clear %s: %w", TokenKey, err)
	}
	s.logger.Debug("Push token cleared")
	return nil
}
