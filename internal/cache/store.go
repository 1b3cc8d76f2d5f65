package cache

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"rayzor/internal/project"
)

// Store is a thread-safe, content-addressed on-disk cache of compiled
// module entries, one file per cache key under dir/mods.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes (creating it if needed) a Store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// OpenDefault opens the cache at the standard per-user location
// ($XDG_CACHE_HOME/rayzor, falling back to ~/.cache/rayzor).
func OpenDefault() (*Store, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return Open(filepath.Join(base, "rayzor"))
}

// Dir returns the root directory this store is rooted at.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

func (s *Store) pathFor(key project.Digest) string {
	return filepath.Join(s.dir, "mods", hex.EncodeToString(key[:])+".blad")
}

// Put atomically writes entry under key, replacing any existing entry.
func (s *Store) Put(key project.Digest, entry *Entry) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Schema = entrySchemaVersion
	payload, err := msgpack.Marshal(entry)
	if err != nil {
		return err
	}

	p := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := writeEnvelope(f, payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, p)
}

// Get reads and decodes the entry stored under key. It reports (false, nil)
// for both "no such file" and "format version mismatch" - both are ordinary
// cache misses from the caller's point of view, not errors.
func (s *Store) Get(key project.Digest) (*Entry, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer func() { _ = f.Close() }()

	payload, err := readEnvelope(f)
	if err != nil {
		if errors.Is(err, ErrVersionMismatch) || errors.Is(err, ErrBadMagic) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entry Entry
	if err := msgpack.Unmarshal(payload, &entry); err != nil {
		return nil, false, err
	}
	if entry.Schema != entrySchemaVersion {
		return nil, false, nil
	}
	return &entry, true, nil
}

// DropAll invalidates the entire cache, moving it aside and removing it in
// the background. Used after a compiler upgrade that changes MIR shape in a
// way formatVersion/entrySchemaVersion bumps alone can't express cleanly.
func (s *Store) DropAll() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(s.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}

// Stat reports whether an entry exists for key without decoding it.
func (s *Store) Stat(key project.Digest) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.pathFor(key))
	return err == nil
}
