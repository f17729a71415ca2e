package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgUniqueViolation = "23505"

// PostgresStorage stores a collection as rows of a single kv_records table
// (collection, key, value jsonb). Create is a plain INSERT; the table's
// primary key turns a duplicate into a unique violation, which is the atomic
// fail-if-exists the contract requires.
type PostgresStorage struct {
	db         *sql.DB
	collection string
}

func NewPostgresStorage(db *sql.DB, collection string) *PostgresStorage {
	return &PostgresStorage{db: db, collection: collection}
}

func (s *PostgresStorage) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM kv_records WHERE collection = $1 AND key = $2`

	var value []byte
	err := s.db.QueryRowContext(ctx, query, s.collection, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return value, nil
}

func (s *PostgresStorage) Put(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO kv_records (collection, key, value)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (collection, key) DO UPDATE SET value = EXCLUDED.value`

	if _, err := s.db.ExecContext(ctx, query, s.collection, key, value); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Create(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO kv_records (collection, key, value) VALUES ($1, $2, $3)`

	if _, err := s.db.ExecContext(ctx, query, s.collection, key, value); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrKeyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM kv_records WHERE collection = $1 AND key = $2`

	if _, err := s.db.ExecContext(ctx, query, s.collection, key); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Keys(ctx context.Context) ([]string, error) {
	query := `SELECT key FROM kv_records WHERE collection = $1`

	rows, err := s.db.QueryContext(ctx, query, s.collection)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return keys, nil
}

func (s *PostgresStorage) IsEmpty(ctx context.Context) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM kv_records WHERE collection = $1)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, s.collection).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return !exists, nil
}

func (s *PostgresStorage) Drop(ctx context.Context) error {
	query := `DELETE FROM kv_records WHERE collection = $1`

	if _, err := s.db.ExecContext(ctx, query, s.collection); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// PostgresFactory creates storages over a shared *sql.DB opened with the pgx
// stdlib driver. The compact variant is the same implementation; Postgres has
// no small-collection optimization worth a second code path.
type PostgresFactory struct {
	db *sql.DB
}

func NewPostgresFactory(db *sql.DB) *PostgresFactory {
	return &PostgresFactory{db: db}
}

func (f *PostgresFactory) CreateStorage(collection string) Storage {
	return NewPostgresStorage(f.db, collection)
}

func (f *PostgresFactory) CreateCompactStorage(collection string) Storage {
	return NewPostgresStorage(f.db, collection)
}
