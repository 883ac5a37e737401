// Package session coordinates one gated round view: it consults the ledger
// on entry, runs tab-focus and presence monitoring while the view is active,
// and decides when to warn and when to terminate.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"k8s.io/utils/clock"

	"github.com/enftaurus/vidyamitra/internal/ledger"
	"github.com/enftaurus/vidyamitra/internal/presence"
	"github.com/enftaurus/vidyamitra/internal/tabfocus"
	"github.com/enftaurus/vidyamitra/pkg/config"
	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/logging"
	"github.com/enftaurus/vidyamitra/pkg/metrics"
	"github.com/enftaurus/vidyamitra/pkg/model"
	"github.com/enftaurus/vidyamitra/pkg/uuidutil"
)

// State is the controller's lifecycle state. Warnings are an overlay on
// StateActive, not a state of their own.
type State string

const (
	StateIdle       State = "idle"
	StateVerifying  State = "verifying"
	StateActive     State = "active"
	StateTerminated State = "terminated"
	StateBlocked    State = "blocked"
	StateCompleted  State = "completed"
)

// Terminal reports whether no further events are processed in s.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateBlocked || s == StateCompleted
}

const (
	tabWarningMessage  = "Tab switching is not allowed during interview rounds. Next violation will reset all rounds."
	tabResetMessage    = "Second tab-switch violation detected. All rounds were reset. Redirecting to Interview Hub..."
	tabAdvanceMessage  = "Second tab-switch violation detected. The round was submitted automatically. Redirecting to Interview Hub..."
	presenceResetFmt   = "Proctoring rule violated %d times (no face/multiple faces). Interview terminated and all rounds reset."
	presenceAdvanceFmt = "Proctoring rule violated %d times (no face/multiple faces). Interview terminated and the round was submitted automatically."
	presenceWarningFmt = "Warning %d/%d: %s. Keep exactly one face visible."
)

// Options identifies the session and carries its thresholds.
type Options struct {
	Round      model.RoundKey
	SessionID  string
	UserID     string
	Proctoring config.ProctoringConfig
}

// Deps are the collaborators a controller drives. Ledger, Camera and
// Detector are required.
type Deps struct {
	Ledger   *ledger.Ledger
	Camera   presence.Camera
	Detector presence.Detector
	Listener Listener
	Notifier Notifier
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	Clock    clock.WithTicker
}

// Controller is created per round view and discarded when the view goes
// away. All state changes happen under one mutex; ledger and detector calls
// run outside it.
type Controller struct {
	opts     Options
	ledger   *ledger.Ledger
	listener Listener
	notifier Notifier
	log      *logging.Logger
	metrics  *metrics.Registry

	tab     *tabfocus.Monitor
	sampler *presence.Sampler

	mu             sync.Mutex
	state          State
	runCtx         context.Context
	cancel         context.CancelFunc
	loaded         bool
	fullscreen     bool
	presenceCount  int
	terminating    bool
	stopped        bool
	counted        bool
	cameraDegraded bool
}

// New builds an idle controller.
func New(opts Options, deps Deps) (*Controller, error) {
	if !opts.Round.Valid() {
		return nil, errclass.ErrRoundInvalid.WithMessagef("unknown round %q", opts.Round)
	}
	if deps.Ledger == nil || deps.Camera == nil || deps.Detector == nil {
		return nil, errors.New("session: ledger, camera and detector are required")
	}

	defaults := config.Default().Proctoring
	p := &opts.Proctoring
	if p.MaxProctorWarnings <= 0 {
		p.MaxProctorWarnings = defaults.MaxProctorWarnings
	}
	if p.TerminationPolicy == "" {
		p.TerminationPolicy = defaults.TerminationPolicy
	}
	if p.ResetTimeout <= 0 {
		p.ResetTimeout = defaults.ResetTimeout
	}
	tabGap := p.TabSwitchGap
	switch {
	case tabGap == 0:
		tabGap = defaults.TabSwitchGap
		p.TabSwitchGap = tabGap
	case tabGap < 0:
		tabGap = 0
	}
	if opts.SessionID == "" {
		opts.SessionID = uuidutil.SessionID()
	}

	if deps.Listener == nil {
		deps.Listener = ListenerFuncs{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Global()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}

	c := &Controller{
		opts:     opts,
		ledger:   deps.Ledger,
		listener: deps.Listener,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		log: deps.Logger.WithFields(map[string]any{
			"session_id": opts.SessionID,
			"user_id":    opts.UserID,
			"round":      opts.Round,
		}),
		tab:   tabfocus.New(deps.Clock, tabGap),
		state: StateIdle,
	}
	c.sampler = presence.New(deps.Camera, deps.Detector, c.ReportViolation, presence.Options{
		Interval:       p.SampleInterval,
		MultiThreshold: p.MultiFaceThreshold,
		NoneThreshold:  p.NoFaceThreshold,
		Clock:          deps.Clock,
		Logger:         deps.Logger,
		Metrics:        deps.Metrics,
	})
	return c, nil
}

// SessionID returns the id used in logs and notifications.
func (c *Controller) SessionID() string {
	return c.opts.SessionID
}

// Round returns the round this controller gates.
func (c *Controller) Round() model.RoundKey {
	return c.opts.Round
}

// Start queries the ledger. A locked round or an unreachable status source
// moves the controller to StateBlocked and no monitoring starts. Otherwise
// the round is marked in progress and the controller waits for the view to
// be loaded and fullscreen. ctx bounds the whole session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle || c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.runCtx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if _, err := c.ledger.GetStatus(ctx); err != nil {
		c.block("", err)
		return err
	}

	if c.ledger.IsLocked(c.opts.Round) {
		next := c.ledger.NextAllowedRound()
		err := errclass.ErrRoundLocked.WithMessagef("Complete %s round first.", next)
		c.block(next, err)
		return err
	}

	if !c.transition(StateIdle, StateVerifying) {
		return nil
	}
	c.mu.Lock()
	c.counted = true
	c.mu.Unlock()
	c.metrics.SessionStarted()
	c.log.Info("session verifying")

	if err := c.ledger.MarkInProgress(ctx, c.opts.Round); err != nil {
		c.log.Warn("mark round in progress", map[string]any{"error": err.Error()})
	}
	c.reconcile()
	return nil
}

func (c *Controller) block(next model.RoundKey, err error) {
	if !c.transition(StateIdle, StateBlocked) {
		return
	}
	c.log.Info("session blocked", map[string]any{"next": next, "error": err.Error()})
	c.listener.OnBlocked(next, err)
}

// transition moves from one state to another and announces it. It reports
// false if the controller was not in from.
func (c *Controller) transition(from, to State) bool {
	c.mu.Lock()
	if c.state != from || c.stopped {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()
	c.listener.OnStateChange(to)
	return true
}

// SetLoaded reports whether the round content has finished loading.
func (c *Controller) SetLoaded(loaded bool) {
	c.mu.Lock()
	c.loaded = loaded
	c.mu.Unlock()
	c.reconcile()
}

// SetFullscreen mirrors the environment's fullscreen state. Leaving
// fullscreen pauses monitoring; counters are kept.
func (c *Controller) SetFullscreen(active bool) {
	c.mu.Lock()
	c.fullscreen = active
	c.mu.Unlock()
	c.reconcile()
}

// FullscreenDenied records that the environment refused fullscreen.
// Monitoring cannot start until fullscreen is granted.
func (c *Controller) FullscreenDenied() {
	c.listener.OnNotice(errclass.ErrFullscreenDenied)
	c.SetFullscreen(false)
}

// reconcile starts or pauses monitoring to match the view's preconditions.
func (c *Controller) reconcile() {
	c.mu.Lock()
	if c.stopped || c.terminating {
		c.mu.Unlock()
		return
	}
	ready := c.loaded && c.fullscreen && !c.ledger.IsLocked(c.opts.Round)
	var next State
	switch {
	case c.state == StateVerifying && ready:
		next = StateActive
	case c.state == StateActive && !ready:
		next = StateVerifying
	default:
		c.mu.Unlock()
		return
	}
	c.state = next
	ctx := c.runCtx
	c.mu.Unlock()

	c.listener.OnStateChange(next)
	if next == StateVerifying {
		c.sampler.Stop()
		c.log.Info("monitoring paused")
		return
	}

	c.log.Info("monitoring active")
	if err := c.sampler.Start(ctx); err != nil {
		c.mu.Lock()
		c.cameraDegraded = true
		c.mu.Unlock()
		c.log.Warn("presence checks disabled", map[string]any{"error": err.Error()})
		c.listener.OnNotice(err)
	}
}

// VisibilityChanged feeds a document visibility transition. Only an active
// session counts tab switches.
func (c *Controller) VisibilityChanged(ctx context.Context, hidden bool) {
	c.mu.Lock()
	if c.state != StateActive || c.terminating || c.stopped {
		c.mu.Unlock()
		return
	}
	strike := c.tab.OnVisibilityChange(hidden)
	c.mu.Unlock()

	switch strike {
	case model.StrikeFirst:
		c.warn(Warning{
			Cause:   CauseTabSwitch,
			Count:   1,
			Max:     2,
			Message: tabWarningMessage,
		})
	case model.StrikeSecond:
		c.terminate(ctx, CauseTabSwitch)
		c.tab.Settle()
	}
}

// ReportViolation is the presence sink: every confirmed verdict counts
// towards MaxProctorWarnings.
func (c *Controller) ReportViolation(ctx context.Context, verdict model.Verdict, reason string) {
	if verdict == model.VerdictNone {
		return
	}
	c.mu.Lock()
	if c.state != StateActive || c.terminating || c.stopped {
		c.mu.Unlock()
		return
	}
	c.presenceCount++
	n := c.presenceCount
	limit := c.opts.Proctoring.MaxProctorWarnings
	c.mu.Unlock()

	if n >= limit {
		c.terminate(ctx, CausePresence)
		return
	}
	c.warn(Warning{
		Cause:   CausePresence,
		Count:   n,
		Max:     limit,
		Message: fmt.Sprintf(presenceWarningFmt, n, limit, reason),
	})
}

func (c *Controller) warn(w Warning) {
	c.metrics.RecordWarning(string(w.Cause), string(c.opts.Round))
	c.log.Info("integrity warning", map[string]any{"cause": w.Cause, "count": w.Count})
	c.listener.OnWarning(w)
	if c.notifier != nil {
		if err := c.notifier.SendSessionWarned(c.opts.SessionID, c.opts.UserID, string(c.opts.Round), string(w.Cause), w.Count, w.Message); err != nil {
			c.log.Debug("notify warning", map[string]any{"error": err.Error()})
		}
	}
}

// terminate runs at most once per controller. The ledger action is best
// effort; monitors are stopped and the listener told to redirect whatever
// its outcome.
func (c *Controller) terminate(ctx context.Context, cause Cause) {
	c.mu.Lock()
	if c.terminating || c.state.Terminal() || c.stopped {
		c.mu.Unlock()
		return
	}
	c.terminating = true
	count := c.presenceCount
	c.mu.Unlock()

	policy := c.opts.Proctoring.TerminationPolicy
	actionCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Proctoring.ResetTimeout)
	var actionErr error
	if policy == config.TerminateAdvance {
		actionErr = c.ledger.MarkCompleted(actionCtx, c.opts.Round)
	} else {
		actionErr = c.ledger.Reset(actionCtx)
	}
	cancel()
	if actionErr != nil {
		c.log.ErrorErr("termination ledger action failed", actionErr, map[string]any{"policy": policy})
	}

	c.sampler.Stop()

	c.mu.Lock()
	c.state = StateTerminated
	c.mu.Unlock()
	c.end()

	t := Termination{
		Cause:     cause,
		Message:   terminationMessage(cause, policy, count),
		Redirect:  RedirectHub,
		ActionErr: actionErr,
	}
	c.metrics.RecordTermination(string(cause), string(c.opts.Round))
	c.log.Info("session terminated", map[string]any{"cause": cause})

	c.listener.OnStateChange(StateTerminated)
	c.listener.OnTerminated(t)
	if c.notifier != nil {
		if err := c.notifier.SendSessionTerminated(c.opts.SessionID, c.opts.UserID, string(c.opts.Round), string(cause), t.Message, actionErr); err != nil {
			c.log.Debug("notify termination", map[string]any{"error": err.Error()})
		}
	}
}

func terminationMessage(cause Cause, policy config.TerminationPolicy, count int) string {
	advance := policy == config.TerminateAdvance
	if cause == CauseTabSwitch {
		if advance {
			return tabAdvanceMessage
		}
		return tabResetMessage
	}
	if advance {
		return fmt.Sprintf(presenceAdvanceFmt, count)
	}
	return fmt.Sprintf(presenceResetFmt, count)
}

// Complete finishes the round normally: monitoring stops and the round is
// marked completed.
func (c *Controller) Complete(ctx context.Context) error {
	c.mu.Lock()
	if c.terminating || c.stopped || (c.state != StateVerifying && c.state != StateActive) {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("complete round: session is %s", st)
	}
	c.state = StateCompleted
	c.mu.Unlock()

	c.sampler.Stop()
	c.end()
	c.listener.OnStateChange(StateCompleted)

	if err := c.ledger.MarkCompleted(ctx, c.opts.Round); err != nil {
		return err
	}
	c.log.Info("round completed", map[string]any{"cycle_closed": c.ledger.Closed()})
	return nil
}

// Stop tears the session down when the view goes away. Later events are
// ignored. It is safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	c.sampler.Stop()
	if cancel != nil {
		cancel()
	}
	c.end()
}

func (c *Controller) end() {
	c.mu.Lock()
	counted := c.counted
	c.counted = false
	c.mu.Unlock()
	if counted {
		c.metrics.SessionEnded()
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CameraDegraded reports whether presence checks were disabled because the
// capture device could not be acquired.
func (c *Controller) CameraDegraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cameraDegraded
}

// Snapshot returns the integrity counters of this session.
func (c *Controller) Snapshot() model.IntegrityState {
	multi, none := c.sampler.Streaks()
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.IntegrityState{
		TabSwitchCount:         c.tab.Count(),
		PresenceViolationCount: c.presenceCount,
		MultiFaceStreak:        multi,
		NoFaceStreak:           none,
		IsFullscreen:           c.fullscreen,
		Terminated:             c.state == StateTerminated,
	}
}
