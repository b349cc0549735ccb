package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/catalog"
	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/eval"
	"github.com/greydoubt/cozo/internal/kv"
	"github.com/greydoubt/cozo/internal/kv/memkv"
	"github.com/greydoubt/cozo/internal/plan"
	"github.com/greydoubt/cozo/internal/value"
)

// Session outcomes recorded on close
const (
	OutcomeCommit = "commit"
	OutcomeAbort  = "abort"
	OutcomeFailed = "failed"
)

// Session owns one root transaction and a local space that lives as long as
// the session. It is not safe for concurrent use.
type Session struct {
	*catalog.Session

	id        string
	engine    *Engine
	rootTxn   kv.Txn
	localTxn  kv.Txn
	evaluator *eval.Evaluator
	planner   *plan.Builder
	logger    *zap.Logger
	started   time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewSession begins a writable root transaction.
func (e *Engine) NewSession() (*Session, error) {
	rootTxn, err := e.root.Begin(true)
	if err != nil {
		return nil, errors.StorageFailed("failed to begin transaction", err)
	}
	localTxn, err := memkv.New().Begin(true)
	if err != nil {
		return nil, multierr.Append(errors.StorageFailed("failed to open local space", err), rootTxn.Rollback())
	}

	id := uuid.New().String()
	logger := e.logger.With(zap.String("session_id", id))
	cs := catalog.NewSession(rootTxn, localTxn, catalog.Config{
		MaxScopeDepth: e.cfg.Catalog.MaxScopeDepth,
		MaxNameLength: e.cfg.Catalog.MaxNameLength,
		MaxColumns:    e.cfg.Catalog.MaxColumns,
	}, logger, e.metrics)
	evaluator := eval.New(cs, logger, e.metrics)

	s := &Session{
		Session:   cs,
		id:        id,
		engine:    e,
		rootTxn:   rootTxn,
		localTxn:  localTxn,
		evaluator: evaluator,
		planner:   plan.NewBuilder(cs, evaluator, logger),
		logger:    logger,
		started:   time.Now(),
	}
	if err := e.track(s); err != nil {
		return nil, multierr.Combine(err, rootTxn.Rollback(), localTxn.Rollback())
	}
	e.metrics.SessionOpened()
	logger.Debug("Session opened")
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Eval partially evaluates expr against this session's catalog.
func (s *Session) Eval(expr value.Value, params eval.Params, bindings eval.Bindings) (bool, value.Value, error) {
	return s.evaluator.Eval(expr, params, bindings)
}

// Plan builds a logical plan for q.
func (s *Session) Plan(q plan.Query) (plan.Plan, error) {
	return s.planner.Build(q)
}

// Commit publishes root-space changes. The local space is discarded.
func (s *Session) Commit() error {
	return s.finish(OutcomeCommit, func() error {
		if err := s.rootTxn.Commit(); err != nil {
			return multierr.Append(errors.StorageFailed("failed to commit session", err), s.localTxn.Rollback())
		}
		return s.localTxn.Rollback()
	})
}

// Abort discards every change made in the session.
func (s *Session) Abort() error {
	return s.finish(OutcomeAbort, func() error {
		return multierr.Combine(s.rootTxn.Rollback(), s.localTxn.Rollback())
	})
}

// Close aborts the session unless it already finished.
func (s *Session) Close() error {
	return s.Abort()
}

func (s *Session) finish(outcome string, fn func() error) error {
	s.closeOnce.Do(func() {
		s.closeErr = fn()
		if s.closeErr != nil {
			outcome = OutcomeFailed
		}
		s.engine.untrack(s)
		s.engine.metrics.SessionClosed(outcome)
		s.logger.Debug("Session closed",
			zap.String("outcome", outcome),
			zap.Duration("duration", time.Since(s.started)),
			zap.Error(s.closeErr))
	})
	return s.closeErr
}
