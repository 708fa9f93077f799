// Package capture implements the speech capture adapter for interview
// answers. A [Recorder] arms a speech recognition stream on demand; each
// [Capture] represents one answer attempt and delivers live partial text,
// elapsed-time ticks, and exactly one terminal result: the finalised
// utterance or an error. Stopping a capture tears it down without emitting
// anything, which is how abandoning an answer (manual end, restart) is
// expressed.
//
// Whether speech capture is available at all is decided once, when the
// Recorder is constructed. A deployment without a speech recognition
// backend gets [ErrUnsupported] and the feature stays disabled; it is never
// retried per attempt.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oratiohq/oratio/internal/observe"
	"github.com/oratiohq/oratio/pkg/provider/stt"
	"github.com/oratiohq/oratio/pkg/types"
)

// ErrUnsupported indicates that speech capture is not available in this
// deployment. It wraps [stt.ErrUnsupported] so errors.Is works across both.
var ErrUnsupported = fmt.Errorf("capture: %w", stt.ErrUnsupported)

// ErrActive is returned by [Recorder.Start] when a capture is already in
// flight. Only one answer can be recorded at a time.
var ErrActive = errors.New("capture: a capture is already in flight")

const defaultTickInterval = time.Second

// Option is a functional option for configuring a [Recorder].
type Option func(*Recorder)

// WithTickInterval sets how often a live capture reports elapsed recording
// time. Default: 1 s.
func WithTickInterval(d time.Duration) Option {
	return func(r *Recorder) {
		r.tickInterval = d
	}
}

// WithMetrics attaches the metrics instruments. Each finalised capture
// records its start-to-utterance duration.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// Recorder arms speech captures against a speech recognition provider.
// All methods are safe for concurrent use.
type Recorder struct {
	provider     stt.Provider
	tickInterval time.Duration
	metrics      *observe.Metrics

	mu     sync.Mutex
	active *Capture
}

// NewRecorder constructs a Recorder over provider. A nil provider means the
// deployment has no speech recognition backend; NewRecorder then returns
// [ErrUnsupported] and callers disable the capture feature.
func NewRecorder(provider stt.Provider, opts ...Option) (*Recorder, error) {
	if provider == nil {
		return nil, ErrUnsupported
	}
	r := &Recorder{
		provider:     provider,
		tickInterval: defaultTickInterval,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Result is the single terminal event of a [Capture]. Exactly one of
// Utterance or Err is meaningful.
type Result struct {
	// Utterance is the finalised candidate answer.
	Utterance types.Transcript

	// Err is the capture failure, when the stream broke before an utterance
	// was finalised.
	Err error
}

// Capture is one in-flight answer recording.
type Capture struct {
	recorder *Recorder
	handle   stt.SessionHandle
	cancel   context.CancelFunc
	started  time.Time

	partials chan string
	ticks    chan time.Duration
	done     chan Result

	terminalOnce sync.Once
	stopOnce     sync.Once
}

// Start arms a new capture. It returns [ErrActive] while another capture is
// in flight and [ErrUnsupported] when the backend reports speech
// recognition as unavailable. The capture ends when the recognition stream
// finalises an utterance, when the stream fails, or when [Capture.Stop] is
// called.
func (r *Recorder) Start(ctx context.Context, cfg stt.StreamConfig) (*Capture, error) {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return nil, ErrActive
	}
	// Reserve the slot before the (possibly slow) stream dial.
	placeholder := &Capture{}
	r.active = placeholder
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		r.active = nil
		r.mu.Unlock()
	}

	streamCtx, cancel := context.WithCancel(ctx)
	handle, err := r.provider.StartStream(streamCtx, cfg)
	if err != nil {
		cancel()
		release()
		if errors.Is(err, stt.ErrUnsupported) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("capture: start stream: %w", err)
	}

	c := &Capture{
		recorder: r,
		handle:   handle,
		cancel:   cancel,
		started:  time.Now(),
		partials: make(chan string, 16),
		ticks:    make(chan time.Duration, 4),
		done:     make(chan Result, 1),
	}
	r.mu.Lock()
	r.active = c
	r.mu.Unlock()

	go c.run(streamCtx)
	return c, nil
}

// Partials delivers live partial transcript text while the capture runs.
// Entries may be dropped under backpressure; only the latest matters for
// display.
func (c *Capture) Partials() <-chan string { return c.partials }

// Ticks delivers elapsed recording time at the Recorder's tick interval.
// The ticker stops when the capture ends or is torn down.
func (c *Capture) Ticks() <-chan time.Duration { return c.ticks }

// Done delivers the terminal [Result] and is then closed. At most one value
// is ever delivered; a stopped capture closes the channel without a value.
func (c *Capture) Done() <-chan Result { return c.done }

// SendAudio forwards one chunk of raw PCM microphone audio to the
// recognition stream.
func (c *Capture) SendAudio(pcm []byte) error {
	if err := c.handle.SendAudio(pcm); err != nil {
		return fmt.Errorf("capture: send audio: %w", err)
	}
	return nil
}

// Stop abandons the capture: the stream is torn down, the ticker stops, and
// no terminal result is emitted.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		// Claim the terminal slot so the run loop cannot emit after us,
		// then unblock it. The run loop performs the actual teardown so
		// channel closes stay single-threaded.
		c.terminalOnce.Do(func() {})
		c.cancel()
		_ = c.handle.Close()
	})
}

// run pumps recognition events until an utterance is finalised, the stream
// fails, or the capture is torn down.
func (c *Capture) run(ctx context.Context) {
	ticker := time.NewTicker(c.recorder.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case t, ok := <-c.handle.Partials():
			if !ok {
				c.finish(Result{Err: errors.New("capture: recognition stream closed")})
				return
			}
			select {
			case c.partials <- t.Text:
			default:
			}

		case t, ok := <-c.handle.Finals():
			if !ok {
				c.finish(Result{Err: errors.New("capture: recognition stream closed")})
				return
			}
			c.finish(Result{Utterance: t})
			return

		case <-ticker.C:
			select {
			case c.ticks <- time.Since(c.started).Truncate(time.Second):
			default:
			}

		case <-ctx.Done():
			c.finish(Result{Err: fmt.Errorf("capture: %w", ctx.Err())})
			return
		}
	}
}

// finish emits the terminal result unless the capture was already stopped,
// then tears the capture down. Only the run goroutine calls finish, so the
// channel closes below are race-free.
func (c *Capture) finish(res Result) {
	c.terminalOnce.Do(func() {
		c.done <- res
		if res.Err == nil && c.recorder.metrics != nil {
			c.recorder.metrics.STTDuration.Record(context.Background(), time.Since(c.started).Seconds())
		}
	})
	close(c.done)

	c.cancel()
	_ = c.handle.Close()
	close(c.partials)
	close(c.ticks)

	c.recorder.mu.Lock()
	if c.recorder.active == c {
		c.recorder.active = nil
	}
	c.recorder.mu.Unlock()
}
