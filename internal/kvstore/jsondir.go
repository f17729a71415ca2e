package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const jsonExt = ".json"

// MultiFileStorage stores one JSON file per record under a collection
// directory. With subfolderChars > 0 records are fanned out into
// subdirectories named after the first subfolderChars characters of the key,
// which keeps directory listings manageable for large collections.
//
// Directories are created on first write; a missing collection directory
// reads as an empty collection. Create relies on O_EXCL, so the
// fail-if-exists guarantee is as atomic as the underlying filesystem.
type MultiFileStorage struct {
	dir            string
	subfolderChars int
}

func NewMultiFileStorage(dir, collection string, subfolderChars int) *MultiFileStorage {
	return &MultiFileStorage{dir: filepath.Join(dir, collection), subfolderChars: subfolderChars}
}

// validateKey rejects keys that would resolve to a path outside the
// collection directory, or that Keys could never list back. Keys become
// file names, so path separators and parent references are hostile input
// here, not addressing.
func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func (s *MultiFileStorage) keyToPath(key string) string {
	name := key + jsonExt
	if s.subfolderChars > 0 && len(key) > s.subfolderChars {
		return filepath.Join(s.dir, key[:s.subfolderChars], name)
	}
	return filepath.Join(s.dir, name)
}

func (s *MultiFileStorage) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("reading record %q: %w", key, err)
	}
	return b, nil
}

func (s *MultiFileStorage) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	path := s.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("writing record %q: %w", key, err)
	}
	return os.Rename(tmp, path)
}

func (s *MultiFileStorage) Create(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	path := s.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrKeyExists
		}
		return fmt.Errorf("creating record %q: %w", key, err)
	}
	defer f.Close()

	if _, err := f.Write(value); err != nil {
		return fmt.Errorf("writing record %q: %w", key, err)
	}
	return nil
}

func (s *MultiFileStorage) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.keyToPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *MultiFileStorage) Keys(_ context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), jsonExt) {
			return nil
		}
		keys = append(keys, strings.TrimSuffix(d.Name(), jsonExt))
		return nil
	})
	if err != nil {
		// nothing written yet
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("walking %s: %w", s.dir, err)
	}
	return keys, nil
}

func (s *MultiFileStorage) IsEmpty(ctx context.Context) (bool, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return false, err
	}
	return len(keys) == 0, nil
}

func (s *MultiFileStorage) Drop(_ context.Context) error {
	return os.RemoveAll(s.dir)
}

// LocalFactory creates file-backed storages under a data directory: one file
// per record for regular collections, a single file for compact ones.
// Storages touch the filesystem lazily, so construction cannot fail; I/O
// problems surface from the operation that hits them.
type LocalFactory struct {
	dir            string
	subfolderChars int
}

func NewLocalFactory(dir string, subfolderChars int) *LocalFactory {
	return &LocalFactory{dir: dir, subfolderChars: subfolderChars}
}

func (f *LocalFactory) CreateStorage(collection string) Storage {
	return NewMultiFileStorage(f.dir, collection, f.subfolderChars)
}

func (f *LocalFactory) CreateCompactStorage(collection string) Storage {
	return NewOneFileStorage(f.dir, collection)
}
