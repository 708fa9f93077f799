// Package playback implements the audio playback adapter for interviewer
// speech. A [Player] turns interviewer text into audio via a TTS provider
// and forwards the PCM to a [Sink] (in practice the session WebSocket, where
// the browser plays it).
//
// At most one playback is active per Player: starting a new one cancels and
// releases the previous one first, so a stale utterance can never keep
// playing over a new question. Muting silences the output without
// disturbing the playback lifecycle, which keeps the conversational state
// machine's timing identical whether or not the user wants sound.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oratiohq/oratio/internal/observe"
	"github.com/oratiohq/oratio/pkg/provider/tts"
)

// Sink receives synthesised PCM audio chunks. Implementations must be safe
// for concurrent use.
type Sink interface {
	// WriteAudio delivers one chunk of raw PCM audio. A returned error
	// aborts the playback.
	WriteAudio(ctx context.Context, pcm []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, pcm []byte) error

// WriteAudio implements [Sink].
func (f SinkFunc) WriteAudio(ctx context.Context, pcm []byte) error { return f(ctx, pcm) }

// Option is a functional option for configuring a [Player].
type Option func(*Player)

// WithVoice sets the interviewer voice. Defaults to the provider's zero
// Voice, which selects the provider default.
func WithVoice(v tts.Voice) Option {
	return func(p *Player) {
		p.voice = v
	}
}

// WithMetrics attaches the metrics instruments. Each playback records the
// time from Speak to its first audio chunk.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Player) {
		p.metrics = m
	}
}

// Player coordinates interviewer speech synthesis and delivery.
// All methods are safe for concurrent use.
type Player struct {
	provider tts.Provider
	sink     Sink
	voice    tts.Voice
	metrics  *observe.Metrics

	mu     sync.Mutex
	active *Playback
	muted  bool
}

// New constructs a Player that synthesises with provider and delivers audio
// to sink.
func New(provider tts.Provider, sink Sink, opts ...Option) (*Player, error) {
	if provider == nil {
		return nil, errors.New("playback: provider must not be nil")
	}
	if sink == nil {
		return nil, errors.New("playback: sink must not be nil")
	}
	p := &Player{provider: provider, sink: sink}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Playback is one in-flight utterance.
type Playback struct {
	cancel  context.CancelFunc
	started time.Time

	done chan struct{}

	mu  sync.Mutex
	err error
}

// Done is closed when the playback finishes, fails, or is cancelled.
func (pb *Playback) Done() <-chan struct{} { return pb.done }

// Cancel stops this playback. Unlike [Player.Stop] it targets only the
// playback it is called on, so a handle held across a Speak that has since
// been superseded cannot cancel the newer utterance.
func (pb *Playback) Cancel() {
	pb.cancel()
	<-pb.done
}

// Err reports why the playback ended. nil means it ran to completion or was
// cancelled by a newer playback or Stop.
func (pb *Playback) Err() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.err
}

// Speak cancels any active playback, then synthesises text and streams the
// audio to the sink. It returns immediately with a handle; completion is
// signalled on the handle's Done channel.
func (p *Player) Speak(ctx context.Context, text string) (*Playback, error) {
	if text == "" {
		return nil, errors.New("playback: text must not be empty")
	}

	playCtx, cancel := context.WithCancel(ctx)
	audio, err := p.provider.Synthesize(playCtx, text, p.voice)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("playback: synthesize: %w", err)
	}

	pb := &Playback{cancel: cancel, started: time.Now(), done: make(chan struct{})}

	p.mu.Lock()
	if prev := p.active; prev != nil {
		prev.cancel()
	}
	p.active = pb
	p.mu.Unlock()

	go p.run(playCtx, pb, audio)
	return pb, nil
}

// Stop cancels the active playback, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	pb := p.active
	p.mu.Unlock()
	if pb != nil {
		pb.cancel()
		<-pb.done
	}
}

// Playing reports whether an utterance is currently being delivered.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

// SetMuted silences (or restores) audio delivery. A muted playback keeps
// consuming synthesis output and completes on its normal schedule; only the
// sink writes are suppressed.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

// Muted reports the current mute state.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// run drains the synthesis channel into the sink until it closes or the
// playback is cancelled.
func (p *Player) run(ctx context.Context, pb *Playback, audio <-chan []byte) {
	defer func() {
		pb.cancel()
		close(pb.done)

		p.mu.Lock()
		if p.active == pb {
			p.active = nil
		}
		p.mu.Unlock()
	}()

	first := true
	for {
		select {
		case chunk, ok := <-audio:
			if !ok {
				return
			}
			if first {
				first = false
				if p.metrics != nil {
					p.metrics.TTSDuration.Record(context.Background(), time.Since(pb.started).Seconds())
				}
			}
			if p.Muted() {
				continue
			}
			if err := p.sink.WriteAudio(ctx, chunk); err != nil {
				if !errors.Is(err, context.Canceled) {
					pb.mu.Lock()
					pb.err = fmt.Errorf("playback: sink: %w", err)
					pb.mu.Unlock()
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
