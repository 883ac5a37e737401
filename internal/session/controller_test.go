package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/enftaurus/vidyamitra/internal/ledger"
	"github.com/enftaurus/vidyamitra/internal/presence"
	"github.com/enftaurus/vidyamitra/internal/session"
	"github.com/enftaurus/vidyamitra/pkg/config"
	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/logging"
	"github.com/enftaurus/vidyamitra/pkg/metrics"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// countingSource records how often the controller touched the backend.
type countingSource struct {
	*ledger.MemorySource
	resets   atomic.Int32
	marks    atomic.Int32
	resetErr error
}

func (s *countingSource) Reset(ctx context.Context) (model.StatusMap, error) {
	s.resets.Add(1)
	if s.resetErr != nil {
		return nil, s.resetErr
	}
	return s.MemorySource.Reset(ctx)
}

func (s *countingSource) Mark(ctx context.Context, round model.RoundKey, status model.RoundStatus) (ledger.Update, error) {
	s.marks.Add(1)
	return s.MemorySource.Mark(ctx, round, status)
}

type brokenSource struct{}

func (brokenSource) Status(ctx context.Context) (model.StatusMap, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (brokenSource) Mark(ctx context.Context, round model.RoundKey, status model.RoundStatus) (ledger.Update, error) {
	return ledger.Update{}, errors.New("dial tcp: connection refused")
}

func (brokenSource) Reset(ctx context.Context) (model.StatusMap, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type fakeCamera struct {
	closes  atomic.Int32
	openErr error
}

func (c *fakeCamera) Open(ctx context.Context) error { return c.openErr }

func (c *fakeCamera) Capture(ctx context.Context) (presence.Frame, error) {
	return presence.Frame{Data: []byte{1}}, nil
}

func (c *fakeCamera) Close() error {
	c.closes.Add(1)
	return nil
}

var oneFace = presence.DetectorFunc(func(ctx context.Context, f presence.Frame) (presence.Detection, error) {
	return presence.Detection{FaceCount: 1, Status: model.DetectorSingleFace}, nil
})

type recorder struct {
	mu          sync.Mutex
	states      []session.State
	warnings    []session.Warning
	terminated  []session.Termination
	blockedNext []model.RoundKey
	blockedErr  []error
	notices     []error
}

func (r *recorder) OnStateChange(s session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) OnWarning(w session.Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, w)
}

func (r *recorder) OnTerminated(t session.Termination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated = append(r.terminated, t)
}

func (r *recorder) OnBlocked(next model.RoundKey, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blockedNext = append(r.blockedNext, next)
	r.blockedErr = append(r.blockedErr, err)
}

func (r *recorder) OnNotice(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, err)
}

func (r *recorder) warningMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.warnings))
	for _, w := range r.warnings {
		out = append(out, w.Message)
	}
	return out
}

func (r *recorder) terminations() []session.Termination {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Termination(nil), r.terminated...)
}

type fixture struct {
	ctrl   *session.Controller
	source *countingSource
	ledger *ledger.Ledger
	camera *fakeCamera
	rec    *recorder
	clock  *clocktesting.FakeClock
}

func newFixture(t *testing.T, round model.RoundKey, status model.StatusMap, tweak func(*config.ProctoringConfig)) *fixture {
	t.Helper()
	p := config.Default().Proctoring
	if tweak != nil {
		tweak(&p)
	}
	return newFixtureWith(t, round, status, p, oneFace)
}

func newFixtureWith(t *testing.T, round model.RoundKey, status model.StatusMap, p config.ProctoringConfig, det presence.Detector) *fixture {
	t.Helper()
	mem := ledger.NewMemorySource()
	if status != nil {
		mem.Set(status)
	}
	src := &countingSource{MemorySource: mem}
	reg := metrics.NewRegistry()
	l := ledger.New(src, logging.Discard(), reg)

	f := &fixture{
		source: src,
		ledger: l,
		camera: &fakeCamera{},
		rec:    &recorder{},
		clock:  clocktesting.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
	}
	ctrl, err := session.New(session.Options{
		Round:      round,
		UserID:     "u-1",
		Proctoring: p,
	}, session.Deps{
		Ledger:   l,
		Camera:   f.camera,
		Detector: det,
		Listener: f.rec,
		Logger:   logging.Discard(),
		Metrics:  reg,
		Clock:    f.clock,
	})
	require.NoError(t, err)
	f.ctrl = ctrl
	t.Cleanup(ctrl.Stop)
	return f
}

// activate enters the round and satisfies every monitoring precondition.
func (f *fixture) activate(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.Start(context.Background()))
	f.ctrl.SetLoaded(true)
	f.ctrl.SetFullscreen(true)
	require.Equal(t, session.StateActive, f.ctrl.State())
}

func TestController_LockedRoundIsBlocked(t *testing.T) {
	f := newFixture(t, model.RoundManager, model.StatusMap{
		model.RoundCoding:    model.StatusCompleted,
		model.RoundTechnical: model.StatusInProgress,
	}, nil)

	err := f.ctrl.Start(context.Background())
	require.ErrorIs(t, err, errclass.ErrRoundLocked)
	assert.Contains(t, err.Error(), "Complete technical round first.")
	assert.Equal(t, session.StateBlocked, f.ctrl.State())
	assert.Equal(t, []model.RoundKey{model.RoundTechnical}, f.rec.blockedNext)

	f.ctrl.SetLoaded(true)
	f.ctrl.SetFullscreen(true)
	assert.Equal(t, session.StateBlocked, f.ctrl.State(), "no monitoring on a blocked round")
	assert.Zero(t, f.source.marks.Load())
}

func TestController_StatusUnavailableFailsClosed(t *testing.T) {
	l := ledger.New(brokenSource{}, logging.Discard(), metrics.NewRegistry())
	rec := &recorder{}
	ctrl, err := session.New(session.Options{Round: model.RoundCoding}, session.Deps{
		Ledger:   l,
		Camera:   &fakeCamera{},
		Detector: oneFace,
		Listener: rec,
		Logger:   logging.Discard(),
		Metrics:  metrics.NewRegistry(),
		Clock:    clocktesting.NewFakeClock(time.Now()),
	})
	require.NoError(t, err)
	defer ctrl.Stop()

	err = ctrl.Start(context.Background())
	require.ErrorIs(t, err, errclass.ErrStatusUnavailable)
	assert.Equal(t, session.StateBlocked, ctrl.State())
	require.Len(t, rec.blockedErr, 1)
	assert.ErrorIs(t, rec.blockedErr[0], errclass.ErrStatusUnavailable)
}

func TestController_ActivatesOnlyWhenLoadedAndFullscreen(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, nil)

	require.NoError(t, f.ctrl.Start(context.Background()))
	assert.Equal(t, session.StateVerifying, f.ctrl.State())
	assert.Equal(t, model.StatusInProgress, f.ledger.Status().Get(model.RoundCoding))

	f.ctrl.SetFullscreen(true)
	assert.Equal(t, session.StateVerifying, f.ctrl.State())
	f.ctrl.SetLoaded(true)
	assert.Equal(t, session.StateActive, f.ctrl.State())

	f.ctrl.SetFullscreen(false)
	assert.Equal(t, session.StateVerifying, f.ctrl.State())
	assert.Equal(t, int32(1), f.camera.closes.Load(), "pausing releases the camera")
}

func TestController_VisibilityIgnoredUntilActive(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, nil)
	require.NoError(t, f.ctrl.Start(context.Background()))

	f.ctrl.VisibilityChanged(context.Background(), true)
	assert.Zero(t, f.ctrl.Snapshot().TabSwitchCount)
	assert.Empty(t, f.rec.warningMessages())
}

func TestController_TabSwitchTwoStrikes(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, nil)
	f.activate(t)
	ctx := context.Background()

	f.ctrl.VisibilityChanged(ctx, true)
	f.ctrl.VisibilityChanged(ctx, true) // duplicate browser event
	f.ctrl.VisibilityChanged(ctx, false)
	require.Len(t, f.rec.warningMessages(), 1)
	assert.Equal(t, session.StateActive, f.ctrl.State())

	f.clock.Step(time.Second)
	f.ctrl.VisibilityChanged(ctx, true)

	terms := f.rec.terminations()
	require.Len(t, terms, 1)
	assert.Equal(t, session.CauseTabSwitch, terms[0].Cause)
	assert.Equal(t, "Second tab-switch violation detected. All rounds were reset. Redirecting to Interview Hub...", terms[0].Message)
	assert.Equal(t, session.RedirectHub, terms[0].Redirect)
	assert.NoError(t, terms[0].ActionErr)
	assert.Equal(t, int32(1), f.source.resets.Load())
	assert.Equal(t, session.StateTerminated, f.ctrl.State())
	assert.True(t, f.ctrl.Snapshot().Terminated)

	f.clock.Step(time.Second)
	f.ctrl.VisibilityChanged(ctx, true)
	assert.Len(t, f.rec.terminations(), 1)
	assert.Equal(t, int32(1), f.source.resets.Load())
}

func TestController_ZeroConfigDebouncesTabSwitch(t *testing.T) {
	f := newFixtureWith(t, model.RoundCoding, nil, config.ProctoringConfig{}, oneFace)
	f.activate(t)
	ctx := context.Background()

	f.ctrl.VisibilityChanged(ctx, true)
	f.ctrl.VisibilityChanged(ctx, false)
	f.ctrl.VisibilityChanged(ctx, true)

	assert.Len(t, f.rec.warningMessages(), 1)
	assert.Empty(t, f.rec.terminations())
	assert.Equal(t, session.StateActive, f.ctrl.State())
	assert.Equal(t, int32(0), f.source.resets.Load())
}

func TestController_NegativeTabGapCountsEveryHide(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, func(p *config.ProctoringConfig) {
		p.TabSwitchGap = -1
	})
	f.activate(t)
	ctx := context.Background()

	f.ctrl.VisibilityChanged(ctx, true)
	f.ctrl.VisibilityChanged(ctx, false)
	f.ctrl.VisibilityChanged(ctx, true)

	require.Len(t, f.rec.terminations(), 1)
	assert.Equal(t, session.CauseTabSwitch, f.rec.terminations()[0].Cause)
}

func TestController_NoFaceSamplerTerminatesOnce(t *testing.T) {
	var detections atomic.Int32
	noFace := presence.DetectorFunc(func(ctx context.Context, fr presence.Frame) (presence.Detection, error) {
		detections.Add(1)
		return presence.Detection{FaceCount: 0, Status: model.DetectorNoFace}, nil
	})
	p := config.Default().Proctoring
	f := newFixtureWith(t, model.RoundCoding, nil, p, noFace)
	f.activate(t)

	require.Eventually(t, f.clock.HasWaiters, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		if len(f.rec.terminations()) > 0 {
			return true
		}
		f.clock.Step(p.SampleInterval)
		return false
	}, 5*time.Second, 5*time.Millisecond)

	for i := 0; i < 10; i++ {
		f.clock.Step(p.SampleInterval)
		time.Sleep(2 * time.Millisecond)
	}

	terms := f.rec.terminations()
	require.Len(t, terms, 1)
	assert.Equal(t, session.CausePresence, terms[0].Cause)
	assert.Equal(t, session.RedirectHub, terms[0].Redirect)
	assert.Equal(t, int32(1), f.source.resets.Load())
	assert.Equal(t, []string{
		"Warning 1/5: No face detected. Keep exactly one face visible.",
		"Warning 2/5: No face detected. Keep exactly one face visible.",
		"Warning 3/5: No face detected. Keep exactly one face visible.",
		"Warning 4/5: No face detected. Keep exactly one face visible.",
	}, f.rec.warningMessages())
	assert.Equal(t, session.StateTerminated, f.ctrl.State())
	assert.GreaterOrEqual(t, detections.Load(), int32(5*p.NoFaceThreshold))
	assert.Equal(t, int32(1), f.camera.closes.Load())
}

func TestController_PresenceWarningsThenSingleTermination(t *testing.T) {
	f := newFixture(t, model.RoundTechnical, model.StatusMap{
		model.RoundCoding: model.StatusCompleted,
	}, nil)
	f.activate(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.ctrl.ReportViolation(ctx, model.VerdictConfirmedNone, model.VerdictConfirmedNone.Reason())
	}
	for i := 0; i < 10; i++ {
		f.ctrl.ReportViolation(ctx, model.VerdictConfirmedNone, model.VerdictConfirmedNone.Reason())
	}

	assert.Equal(t, []string{
		"Warning 1/5: No face detected. Keep exactly one face visible.",
		"Warning 2/5: No face detected. Keep exactly one face visible.",
		"Warning 3/5: No face detected. Keep exactly one face visible.",
		"Warning 4/5: No face detected. Keep exactly one face visible.",
	}, f.rec.warningMessages())

	terms := f.rec.terminations()
	require.Len(t, terms, 1)
	assert.Equal(t, session.CausePresence, terms[0].Cause)
	assert.Equal(t, "Proctoring rule violated 5 times (no face/multiple faces). Interview terminated and all rounds reset.", terms[0].Message)
	assert.Equal(t, int32(1), f.source.resets.Load())
	assert.Equal(t, model.DefaultStatus(), f.ledger.Status())
	assert.Equal(t, 5, f.ctrl.Snapshot().PresenceViolationCount)
}

func TestController_ConcurrentTriggersTerminateOnce(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, func(p *config.ProctoringConfig) {
		p.MaxProctorWarnings = 1
	})
	f.activate(t)
	ctx := context.Background()

	f.ctrl.VisibilityChanged(ctx, true)
	f.clock.Step(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.ctrl.VisibilityChanged(ctx, true)
		}()
		go func() {
			defer wg.Done()
			f.ctrl.ReportViolation(ctx, model.VerdictConfirmedMulti, model.VerdictConfirmedMulti.Reason())
		}()
	}
	wg.Wait()

	assert.Len(t, f.rec.terminations(), 1)
	assert.Equal(t, int32(1), f.source.resets.Load())
}

func TestController_ResetFailureDoesNotBlockRedirect(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, func(p *config.ProctoringConfig) {
		p.MaxProctorWarnings = 2
	})
	f.source.resetErr = errors.New("backend down")
	f.activate(t)
	ctx := context.Background()

	f.ctrl.ReportViolation(ctx, model.VerdictConfirmedMulti, "Multiple faces detected")
	f.ctrl.ReportViolation(ctx, model.VerdictConfirmedMulti, "Multiple faces detected")

	terms := f.rec.terminations()
	require.Len(t, terms, 1)
	assert.ErrorIs(t, terms[0].ActionErr, errclass.ErrResetFailed)
	assert.Equal(t, session.RedirectHub, terms[0].Redirect)
	assert.Equal(t, session.StateTerminated, f.ctrl.State())
	assert.Equal(t, model.DefaultStatus(), f.ledger.Status(), "local progression cleared regardless")
}

func TestController_AdvancePolicySubmitsRound(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, func(p *config.ProctoringConfig) {
		p.MaxProctorWarnings = 1
		p.TerminationPolicy = config.TerminateAdvance
	})
	f.activate(t)

	f.ctrl.ReportViolation(context.Background(), model.VerdictConfirmedNone, "No face detected")

	terms := f.rec.terminations()
	require.Len(t, terms, 1)
	assert.Contains(t, terms[0].Message, "submitted automatically")
	assert.Zero(t, f.source.resets.Load())
	assert.Equal(t, model.StatusCompleted, f.ledger.Status().Get(model.RoundCoding))
	assert.Equal(t, model.RoundTechnical, f.ledger.NextAllowedRound())
}

func TestController_CameraUnavailableRunsDegraded(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, nil)
	f.camera.openErr = errors.New("NotAllowedError")
	f.activate(t)

	assert.True(t, f.ctrl.CameraDegraded())
	require.Len(t, f.rec.notices, 1)
	assert.ErrorIs(t, f.rec.notices[0], errclass.ErrDeviceUnavailable)
	assert.Equal(t, int32(1), f.camera.closes.Load())

	f.ctrl.VisibilityChanged(context.Background(), true)
	assert.Len(t, f.rec.warningMessages(), 1, "tab monitoring still runs")
}

func TestController_FullscreenDenied(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, nil)
	require.NoError(t, f.ctrl.Start(context.Background()))
	f.ctrl.SetLoaded(true)
	f.ctrl.FullscreenDenied()

	assert.Equal(t, session.StateVerifying, f.ctrl.State())
	require.Len(t, f.rec.notices, 1)
	assert.ErrorIs(t, f.rec.notices[0], errclass.ErrFullscreenDenied)
}

func TestController_CompleteMarksRound(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, nil)
	f.activate(t)

	require.NoError(t, f.ctrl.Complete(context.Background()))
	assert.Equal(t, session.StateCompleted, f.ctrl.State())
	assert.Equal(t, model.StatusCompleted, f.ledger.Status().Get(model.RoundCoding))

	f.ctrl.ReportViolation(context.Background(), model.VerdictConfirmedNone, "No face detected")
	assert.Empty(t, f.rec.warningMessages())
	require.Error(t, f.ctrl.Complete(context.Background()))
}

func TestController_StopIgnoresLaterEvents(t *testing.T) {
	f := newFixture(t, model.RoundCoding, nil, nil)
	f.activate(t)

	f.ctrl.Stop()
	f.ctrl.Stop()
	f.ctrl.ReportViolation(context.Background(), model.VerdictConfirmedNone, "No face detected")
	f.ctrl.VisibilityChanged(context.Background(), true)

	assert.Empty(t, f.rec.warningMessages())
	assert.Empty(t, f.rec.terminations())
	assert.Equal(t, int32(1), f.camera.closes.Load())
}

func TestNew_RejectsUnknownRound(t *testing.T) {
	_, err := session.New(session.Options{Round: "lunch"}, session.Deps{})
	require.ErrorIs(t, err, errclass.ErrRoundInvalid)
}
