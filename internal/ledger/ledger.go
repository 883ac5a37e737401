// Package ledger tracks round progression for one interview cycle and
// answers the gating questions round views ask before rendering.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/logging"
	"github.com/enftaurus/vidyamitra/pkg/metrics"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// Update is what a status source returns after a write.
type Update struct {
	Status model.StatusMap
	// FlowReset is set when the source closed the cycle on its own, as the
	// backend does once the final round completes.
	FlowReset bool
}

// Source is the backing status store. The ledger treats it as an opaque
// key-value store.
type Source interface {
	Status(ctx context.Context) (model.StatusMap, error)
	Mark(ctx context.Context, round model.RoundKey, status model.RoundStatus) (Update, error)
	Reset(ctx context.Context) (model.StatusMap, error)
}

// Ledger caches the last observed status. After a failed read it is
// untrusted and locks every round until a read succeeds.
type Ledger struct {
	src     Source
	log     *logging.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	status  model.StatusMap
	trusted bool
	closed  bool
}

// New creates a ledger over src. Until the first GetStatus it is untrusted.
func New(src Source, log *logging.Logger, m *metrics.Registry) *Ledger {
	if log == nil {
		log = logging.Global()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Ledger{
		src:     src,
		log:     log.WithFields(map[string]any{"component": "ledger"}),
		metrics: m,
		status:  model.DefaultStatus(),
	}
}

// GetStatus reads the status from the source.
func (l *Ledger) GetStatus(ctx context.Context) (model.StatusMap, error) {
	status, err := l.src.Status(ctx)
	if err != nil {
		l.mu.Lock()
		l.trusted = false
		l.mu.Unlock()
		l.metrics.RecordStatusUnavailable()
		l.log.Warn("round status unavailable", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("get round status: %w", asUnavailable(err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.observe(status)
	return l.status.Clone(), nil
}

// Status returns the cached status without contacting the source.
func (l *Ledger) Status() model.StatusMap {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status.Clone()
}

// Trusted reports whether the last read succeeded.
func (l *Ledger) Trusted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trusted
}

// MarkInProgress records that round has been entered. Entering a completed
// round again is a redo and never unlocks later rounds by itself.
func (l *Ledger) MarkInProgress(ctx context.Context, round model.RoundKey) error {
	return l.mark(ctx, round, model.StatusInProgress)
}

// MarkCompleted records that round has been finished. It is idempotent.
func (l *Ledger) MarkCompleted(ctx context.Context, round model.RoundKey) error {
	return l.mark(ctx, round, model.StatusCompleted)
}

func (l *Ledger) mark(ctx context.Context, round model.RoundKey, status model.RoundStatus) error {
	if !round.Valid() {
		return errclass.ErrRoundInvalid.WithMessagef("unknown round %q", round)
	}
	upd, err := l.src.Mark(ctx, round, status)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", round, status, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.observe(upd.Status)
	if status == model.StatusInProgress && round == model.RoundOrder[0] {
		l.closed = false
	}
	if upd.FlowReset {
		l.closed = true
		l.log.Info("interview cycle closed", map[string]any{"round": round})
	}
	return nil
}

// NextAllowedRound returns the first round not yet completed, or the last
// round when the cycle is complete.
func (l *Ledger) NextAllowedRound() model.RoundKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.NextAllowedRound(l.status)
}

// IsLocked reports whether round may not be entered. An untrusted ledger
// locks everything.
func (l *Ledger) IsLocked(round model.RoundKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.trusted {
		return true
	}
	return model.IsLocked(l.status, round)
}

// Closed reports whether the current cycle has been completed.
func (l *Ledger) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Reset clears every round to not_started and reopens the cycle. Local
// state is cleared even when the source cannot be reached; in that case
// ErrResetFailed is returned.
func (l *Ledger) Reset(ctx context.Context) error {
	status, err := l.src.Reset(ctx)

	l.mu.Lock()
	l.status = model.DefaultStatus()
	l.closed = false
	if err == nil {
		l.status = status.Normalize()
		l.trusted = true
	}
	l.mu.Unlock()

	l.metrics.RecordLedgerReset(err == nil)
	if err != nil {
		return fmt.Errorf("reset round flow: %w", errclass.ErrResetFailed.WithMessage(err.Error()))
	}
	return nil
}

// observe must be called with l.mu held.
func (l *Ledger) observe(status model.StatusMap) {
	l.status = status.Normalize()
	l.trusted = true
	if model.AllCompleted(l.status) {
		l.closed = true
	}
}

func asUnavailable(err error) error {
	if errors.Is(err, errclass.ErrStatusUnavailable) {
		return err
	}
	return errclass.ErrStatusUnavailable.WithMessage(err.Error())
}
