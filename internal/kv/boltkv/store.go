// Package boltkv backs kv.Store with bbolt. bbolt serialises writers, so a
// second writable Begin blocks until the first transaction finishes.
package boltkv

import (
	"errors"
	"os"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/kv"
)

const defaultBucket = "cozo"

var _ kv.Store = &Store{}

type StoreConfig struct {
	Path     string
	Bucket   string
	NoSync   bool
	Timeout  time.Duration
	Checksum bool
}

type Store struct {
	path     string
	bucket   []byte
	db       *bbolt.DB
	envelope kv.Envelope
	logger   *zap.Logger
}

// New opens the bolt file at config.Path and makes sure the bucket exists.
func New(config *StoreConfig, logger *zap.Logger) (*Store, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	if config.Path == "" {
		return nil, os.ErrInvalid
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bucket := config.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = time.Second
	}

	db, err := bbolt.Open(config.Path, 0600, &bbolt.Options{Timeout: timeout, NoSync: config.NoSync})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened bolt store",
		zap.String("path", config.Path),
		zap.String("bucket", bucket),
		zap.Bool("no_sync", config.NoSync))

	return &Store{
		path:     config.Path,
		bucket:   []byte(bucket),
		db:       db,
		envelope: kv.Envelope{Checksum: config.Checksum},
		logger:   logger,
	}, nil
}

func (s *Store) Begin(writable bool) (kv.Txn, error) {
	tx, err := s.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &Txn{
		tx:       tx,
		bucket:   tx.Bucket(s.bucket),
		writable: writable,
		envelope: s.envelope,
	}, nil
}

func (s *Store) Close() error {
	s.logger.Info("Closing bolt store", zap.String("path", s.path))
	return s.db.Close()
}
