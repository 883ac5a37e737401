// Package presence polls an external face detector on a fixed interval and
// forwards debounced presence violations to a sink.
package presence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/enftaurus/vidyamitra/internal/debounce"
	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/logging"
	"github.com/enftaurus/vidyamitra/pkg/metrics"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// DefaultInterval matches the polling cadence round views have always used.
const DefaultInterval = 1800 * time.Millisecond

// Sink receives confirmed violations. It is called from the sampler's cycle
// goroutine and may stop the sampler.
type Sink func(ctx context.Context, verdict model.Verdict, reason string)

// Options configures a Sampler.
type Options struct {
	Interval       time.Duration
	MultiThreshold int
	NoneThreshold  int
	Clock          clock.WithTicker
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	// OnSample, if set, observes every classified sample (e.g. to show the
	// live face count).
	OnSample func(model.Sample)
}

// Stats counts what the sampler did since it was created.
type Stats struct {
	Cycles   int64
	Skipped  int64
	Failures int64
}

// run is one Start..Stop span. Each run has its own in-flight flag so a cycle
// abandoned by Stop never blocks the next run.
type run struct {
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
}

// Sampler owns the camera for as long as it is running.
type Sampler struct {
	cam      Camera
	det      Detector
	sink     Sink
	opts     Options
	log      *logging.Logger
	metrics  *metrics.Registry
	clock    clock.WithTicker
	interval time.Duration

	mu        sync.Mutex
	run       *run
	debouncer *debounce.Debouncer
	lastErr   error

	cycles   atomic.Int64
	skipped  atomic.Int64
	failures atomic.Int64
}

// New creates a stopped sampler.
func New(cam Camera, det Detector, sink Sink, opts Options) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Global()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	return &Sampler{
		cam:       cam,
		det:       det,
		sink:      sink,
		opts:      opts,
		log:       opts.Logger.WithFields(map[string]any{"component": "presence"}),
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		interval:  opts.Interval,
		debouncer: debounce.New(opts.MultiThreshold, opts.NoneThreshold),
	}
}

// Start acquires the camera, runs one cycle immediately and then one per
// interval. If the camera cannot be acquired it is released again and
// ErrDeviceUnavailable is returned. Starting a running sampler is a no-op.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return nil
	}

	if err := s.cam.Open(ctx); err != nil {
		if cerr := s.cam.Close(); cerr != nil {
			s.log.Debug("release camera after failed open", map[string]any{"error": cerr.Error()})
		}
		return fmt.Errorf("open camera: %w", errclass.ErrDeviceUnavailable.WithMessage(err.Error()))
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	s.run = r

	s.trigger(r)
	go s.loop(r)
	return nil
}

// Stop cancels the ticker and any in-flight detector call, discards its
// result and releases the camera. It is safe to call at any time, including
// from the sink.
func (s *Sampler) Stop() {
	s.mu.Lock()
	r := s.run
	s.run = nil
	s.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	<-r.done

	if err := s.cam.Close(); err != nil {
		s.log.Warn("release camera", map[string]any{"error": err.Error()})
	}
}

// Running reports whether the sampler is between Start and Stop.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// InFlight reports whether a detector cycle of the current run is pending.
func (s *Sampler) InFlight() bool {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	return r != nil && r.inFlight.Load()
}

// Streaks returns the debouncer's multi-face and no-face streaks.
func (s *Sampler) Streaks() (multi, none int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debouncer.Streaks()
}

// LastError returns the most recent transient failure, if any.
func (s *Sampler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stats returns cycle counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Cycles:   s.cycles.Load(),
		Skipped:  s.skipped.Load(),
		Failures: s.failures.Load(),
	}
}

func (s *Sampler) loop(r *run) {
	defer close(r.done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C():
			s.trigger(r)
		}
	}
}

// trigger starts a cycle unless one is already in flight for this run.
func (s *Sampler) trigger(r *run) {
	if r.ctx.Err() != nil {
		return
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.metrics.RecordSkippedTick()
		return
	}
	go func() {
		defer r.inFlight.Store(false)
		s.cycle(r)
	}()
}

func (s *Sampler) cycle(r *run) {
	s.cycles.Add(1)

	frame, err := s.cam.Capture(r.ctx)
	if err != nil {
		if r.ctx.Err() == nil {
			s.fail(errclass.ErrDeviceUnavailable.WithMessagef("capture frame: %v", err))
		}
		return
	}

	det, err := s.det.Detect(r.ctx, frame)
	if r.ctx.Err() != nil {
		return
	}
	if err != nil {
		s.failures.Add(1)
		s.metrics.RecordDetectorFailure()
		s.fail(fmt.Errorf("detect faces: %w", errclass.ErrDetectorCallFailed.WithMessage(err.Error())))
		return
	}

	sample := model.Sample{
		FaceCount:      det.FaceCount,
		Classification: model.ClassifyFaces(det.Status, det.FaceCount),
		Timestamp:      s.clock.Now(),
	}
	s.metrics.RecordSample(string(sample.Classification))

	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	verdict := s.debouncer.Classify(sample)
	s.lastErr = nil
	s.mu.Unlock()

	if s.opts.OnSample != nil {
		s.opts.OnSample(sample)
	}
	if verdict == model.VerdictNone {
		return
	}
	// Stop may have landed while OnSample ran.
	if r.ctx.Err() != nil {
		return
	}

	s.log.Info("presence violation confirmed", map[string]any{
		"verdict":    verdict,
		"face_count": sample.FaceCount,
	})
	s.sink(r.ctx, verdict, verdict.Reason())
}

func (s *Sampler) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.log.Debug("presence cycle skipped", map[string]any{"error": err.Error()})
}
