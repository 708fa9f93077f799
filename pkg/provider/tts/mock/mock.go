// Package mock provides a mock implementation of the tts.Provider interface
// for use in tests. It records all calls and returns configurable canned
// audio chunks.
package mock

import (
	"context"
	"sync"

	"github.com/oratiohq/oratio/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records the arguments of a single Synthesize invocation.
type SynthesizeCall struct {
	Text  string
	Voice tts.Voice
}

// Provider is a mock tts.Provider. Configure the exported fields before use;
// inspect the call records after. All methods are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// SynthesizeChunks are the audio chunks emitted on the channel returned
	// by Synthesize. Each Synthesize call emits all chunks and then closes
	// the channel.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned by Synthesize instead of a channel.
	SynthesizeErr error

	// HoldOpen, if set, makes the returned channel stay open until ctx is
	// cancelled after emitting SynthesizeChunks. Used to simulate long
	// playback in tests.
	HoldOpen bool

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every Synthesize invocation in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCallCount counts ListVoices invocations.
	ListVoicesCallCount int
}

// Synthesize records the call and returns a channel pre-loaded with
// SynthesizeChunks. If HoldOpen is set the channel is closed only when ctx is
// cancelled, otherwise it closes after the last chunk.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	err := p.SynthesizeErr
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	holdOpen := p.HoldOpen
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	out := make(chan []byte, len(chunks)+1)
	go func() {
		defer close(out)
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
		if holdOpen {
			<-ctx.Done()
		}
	}()
	return out, nil
}

// ListVoices records the call and returns the configured voices.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCallCount++
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.Voices, nil
}
