// Package kvstore defines the persistence contract shared by every storage
// backend: named collections of JSON records addressed by a string key.
//
// Create is the only primitive with semantics stronger than last-write-wins:
// it fails with ErrKeyExists when the key is already present and must be
// atomic per key. Uniqueness of registrations and single-use of blacklisted
// refresh tokens are built entirely on that guarantee.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by Get when the key is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyExists is returned by Create when the key is already present.
	ErrKeyExists = errors.New("key already exists")

	// ErrInvalidKey is returned for keys a backend cannot address safely.
	// The file-per-record backend rejects keys that would resolve outside
	// the collection directory.
	ErrInvalidKey = errors.New("invalid key")
)

// Storage is a key-value collection of JSON documents. Values cross the
// interface as raw JSON; typed access goes through Collection.
//
// No operation spans collections and only Create is atomic beyond a single
// write. Iteration order of Keys is not guaranteed.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Create(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	IsEmpty(ctx context.Context) (bool, error)
	Drop(ctx context.Context) error
}

// Factory creates storages for named collections. CreateCompactStorage is a
// variant for small collections where addressing the whole collection is
// cheap (e.g. a single file); backends without a meaningful distinction
// return the same implementation from both.
type Factory interface {
	CreateStorage(collection string) Storage
	CreateCompactStorage(collection string) Storage
}

// Collection is a typed wrapper around a Storage that marshals values to and
// from JSON. The zero value is not usable; construct with NewCollection.
type Collection[T any] struct {
	s Storage
}

func NewCollection[T any](s Storage) *Collection[T] {
	return &Collection[T]{s: s}
}

func (c *Collection[T]) Get(ctx context.Context, key string) (*T, error) {
	b, err := c.s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	v := new(T)
	if err := json.Unmarshal(b, v); err != nil {
		return nil, fmt.Errorf("unmarshaling record %q: %w", key, err)
	}
	return v, nil
}

func (c *Collection[T]) Put(ctx context.Context, key string, value *T) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling record %q: %w", key, err)
	}
	return c.s.Put(ctx, key, b)
}

func (c *Collection[T]) Create(ctx context.Context, key string, value *T) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling record %q: %w", key, err)
	}
	return c.s.Create(ctx, key, b)
}

func (c *Collection[T]) Delete(ctx context.Context, key string) error {
	return c.s.Delete(ctx, key)
}

func (c *Collection[T]) Keys(ctx context.Context) ([]string, error) {
	return c.s.Keys(ctx)
}

func (c *Collection[T]) IsEmpty(ctx context.Context) (bool, error) {
	return c.s.IsEmpty(ctx)
}

// All loads every record in the collection. Intended for small collections
// (admin listings, expiry sweeps), not bulk data.
func (c *Collection[T]) All(ctx context.Context) (map[string]*T, error) {
	keys, err := c.s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*T, len(keys))
	for _, k := range keys {
		v, err := c.Get(ctx, k)
		if err != nil {
			// Deleted between Keys and Get; iteration gives no snapshot.
			if errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
