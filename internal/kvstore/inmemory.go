package kvstore

import (
	"context"
	"sync"
)

// InMemoryStorage keeps records in a map guarded by a RWMutex. Values are
// stored as copies of the marshaled bytes, so callers never share mutable
// state with the store. Used by tests and as a throwaway backend.
type InMemoryStorage struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{items: make(map[string][]byte)}
}

func (s *InMemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *InMemoryStorage) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = cloneBytes(value)
	return nil
}

func (s *InMemoryStorage) Create(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return ErrKeyExists
	}
	s.items[key] = cloneBytes(value)
	return nil
}

func (s *InMemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *InMemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *InMemoryStorage) IsEmpty(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items) == 0, nil
}

func (s *InMemoryStorage) Drop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string][]byte)
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// InMemoryFactory hands out one storage per collection name, so two callers
// asking for the same collection share records.
type InMemoryFactory struct {
	mu          sync.Mutex
	collections map[string]*InMemoryStorage
}

func NewInMemoryFactory() *InMemoryFactory {
	return &InMemoryFactory{collections: make(map[string]*InMemoryStorage)}
}

func (f *InMemoryFactory) CreateStorage(collection string) Storage {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.collections[collection]; ok {
		return s
	}
	s := NewInMemoryStorage()
	f.collections[collection] = s
	return s
}

func (f *InMemoryFactory) CreateCompactStorage(collection string) Storage {
	return f.CreateStorage(collection)
}
