package position

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists position ids. Writes are last-write-wins and visible to the
// next Get in the same process.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Key derives the deterministic store key for an (owner, series, collateral) tuple.
func Key(owner common.Address, seriesID, ilkID [6]byte) string {
	return fmt.Sprintf("position:%s:0x%x:0x%x", strings.ToLower(owner.Hex()), seriesID[:], ilkID[:])
}

// MemoryStore keeps ids for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	value, ok := s.data[key]
	s.mu.RUnlock()
	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendLevelDB  Backend = "leveldb"
	BackendPostgres Backend = "postgres"
)

// OpenConfig selects and configures a backend.
type OpenConfig struct {
	Backend Backend
	Path    string
	DSN     string
}

// Open returns the configured Store and a function releasing its resources.
func Open(ctx context.Context, cfg OpenConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	case BackendFile, "":
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("file store path is required")
		}
		return NewFileStore(cfg.Path), noop, nil
	case BackendLevelDB:
		s, err := NewLevelDBStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", cfg.Backend)
	}
}
