package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStorage namespaces records as "<collection>:<key>". SETNX carries the
// atomic fail-if-exists semantics of Create.
type RedisStorage struct {
	client     *redis.Client
	collection string
}

func NewRedisStorage(client *redis.Client, collection string) *RedisStorage {
	return &RedisStorage{client: client, collection: collection}
}

func (s *RedisStorage) fullKey(key string) string {
	return s.collection + ":" + key
}

func (s *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return b, nil
}

func (s *RedisStorage) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.fullKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (s *RedisStorage) Create(ctx context.Context, key string, value []byte) error {
	ok, err := s.client.SetNX(ctx, s.fullKey(key), value, 0).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (s *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	prefix := s.collection + ":"

	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return keys, nil
}

func (s *RedisStorage) IsEmpty(ctx context.Context) (bool, error) {
	iter := s.client.Scan(ctx, 0, s.collection+":*", 1).Iterator()
	if iter.Next(ctx) {
		return false, iter.Err()
	}
	return true, iter.Err()
}

func (s *RedisStorage) Drop(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// RedisFactory creates storages over a shared client.
type RedisFactory struct {
	client *redis.Client
}

func NewRedisFactory(client *redis.Client) *RedisFactory {
	return &RedisFactory{client: client}
}

func (f *RedisFactory) CreateStorage(collection string) Storage {
	return NewRedisStorage(f.client, collection)
}

func (f *RedisFactory) CreateCompactStorage(collection string) Storage {
	return NewRedisStorage(f.client, collection)
}
