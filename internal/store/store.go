// Package store holds the durable key-value storage that session snapshots
// and saved results are written to. Keys are scoped per evaluator device.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key holds no value
var ErrNotFound = errors.New("key not found")

// ErrCorrupt is returned when a stored value cannot be decoded
var ErrCorrupt = errors.New("corrupt value")

// Store is a flat key-value store with overwrite semantics
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type scoped struct {
	inner     Store
	namespace string
}

// Scoped returns a view of s whose keys live under namespace
func Scoped(s Store, namespace string) Store {
	return &scoped{inner: s, namespace: namespace}
}

func (s *scoped) key(k string) string {
	return fmt.Sprintf("%s:%s", s.namespace, k)
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, s.key(key))
}

func (s *scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.inner.Set(ctx, s.key(key), value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.key(key))
}

// GetJSON decodes the value under key into v
func GetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: failed to unmarshal %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// SetJSON encodes v and overwrites the value under key
func SetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
