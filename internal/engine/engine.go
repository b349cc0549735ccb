// Package engine owns the root store and hands out sessions, each holding one
// root transaction and a private local space.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/config"
	"github.com/greydoubt/cozo/internal/kv"
	"github.com/greydoubt/cozo/internal/kv/badgerkv"
	"github.com/greydoubt/cozo/internal/kv/boltkv"
	"github.com/greydoubt/cozo/internal/kv/memkv"
	"github.com/greydoubt/cozo/internal/metrics"
)

const boltFile = "cozo.db"

// Engine is an opened database.
type Engine struct {
	cfg     *config.Config
	root    kv.Store
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// Open opens the root store selected by cfg.Storage.Backend.
func Open(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	root, err := openStore(&cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Engine opened",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("data_dir", cfg.Storage.DataDir))

	return &Engine{
		cfg:      cfg,
		root:     root,
		logger:   logger,
		metrics:  m,
		sessions: make(map[*Session]struct{}),
	}, nil
}

func openStore(cfg *config.StorageConfig, logger *zap.Logger) (kv.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memkv.New(), nil
	case config.BackendBadger:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s, err := badgerkv.New(&badgerkv.StoreConfig{
			Path:       cfg.DataDir,
			SyncWrites: cfg.SyncWrites,
			Checksum:   cfg.Checksum,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return s, nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s, err := boltkv.New(&boltkv.StoreConfig{
			Path:     filepath.Join(cfg.DataDir, boltFile),
			NoSync:   !cfg.SyncWrites,
			Timeout:  cfg.OpenTimeout,
			Checksum: cfg.Checksum,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// ActiveSessions returns the number of sessions not yet finished.
func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *Engine) track(s *Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine is closed")
	}
	e.sessions[s] = struct{}{}
	return nil
}

func (e *Engine) untrack(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, s)
}

// Close aborts every open session and closes the root store.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	open := make([]*Session, 0, len(e.sessions))
	for s := range e.sessions {
		open = append(open, s)
	}
	e.mu.Unlock()

	var err error
	for _, s := range open {
		err = multierr.Append(err, s.Abort())
	}
	err = multierr.Append(err, e.root.Close())

	e.logger.Info("Engine closed",
		zap.Int("aborted_sessions", len(open)),
		zap.Error(err))
	return err
}
