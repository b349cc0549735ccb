// Package badgerkv backs kv.Store with Badger.
package badgerkv

import (
	"errors"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/kv"
)

var _ kv.Store = &Store{}

// StoreConfig configures the Badger directory.
type StoreConfig struct {
	Path       string
	SyncWrites bool
	InMemory   bool
	Checksum   bool
}

// Store wraps a Badger database.
type Store struct {
	path     string
	db       *badger.DB
	envelope kv.Envelope
	logger   *zap.Logger
}

// New opens (or creates) the database under config.Path.
func New(config *StoreConfig, logger *zap.Logger) (*Store, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	if config.Path == "" && !config.InMemory {
		return nil, os.ErrInvalid
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(config.Path).
		WithSyncWrites(config.SyncWrites).
		WithInMemory(config.InMemory).
		WithLogger(&badgerLogger{s: logger.Named("badger").Sugar()})
	if config.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("Opened badger store",
		zap.String("path", config.Path),
		zap.Bool("in_memory", config.InMemory),
		zap.Bool("sync_writes", config.SyncWrites))

	return &Store{
		path:     config.Path,
		db:       db,
		envelope: kv.Envelope{Checksum: config.Checksum},
		logger:   logger,
	}, nil
}

func (s *Store) Begin(writable bool) (kv.Txn, error) {
	return &Txn{
		tx:       s.db.NewTransaction(writable),
		writable: writable,
		envelope: s.envelope,
	}, nil
}

func (s *Store) Close() error {
	s.logger.Info("Closing badger store", zap.String("path", s.path))
	return s.db.Close()
}

// badgerLogger routes Badger's own logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }
