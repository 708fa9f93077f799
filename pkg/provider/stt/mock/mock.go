// Package mock provides test doubles for the stt.Provider and
// stt.SessionHandle interfaces.
//
// Use Provider in unit tests to feed controlled transcripts into the capture
// adapter without a live STT backend:
//
//	h := mock.NewHandle()
//	p := &mock.Provider{Handle: h}
//	// later, from the test:
//	h.EmitFinal(types.Transcript{Text: "I led the migration."})
package mock

import (
	"context"
	"sync"

	"github.com/oratiohq/oratio/pkg/provider/stt"
	"github.com/oratiohq/oratio/pkg/types"
)

// StartStreamCall records a single invocation of StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Handle is returned by StartStream. When nil, a fresh Handle is created
	// per call and recorded in Handles.
	Handle *Handle

	// StartErr, if non-nil, is returned by StartStream instead of a handle.
	StartErr error

	// StartStreamCalls records every invocation of StartStream in order.
	StartStreamCalls []StartStreamCall

	// Handles records every handle returned by StartStream.
	Handles []*Handle
}

// Compile-time interface check.
var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns the configured (or a fresh) Handle.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	h := p.Handle
	if h == nil {
		h = NewHandle()
	}
	p.Handles = append(p.Handles, h)
	return h, nil
}

// Handle is a mock stt.SessionHandle driven from test code.
type Handle struct {
	mu     sync.Mutex
	closed bool

	partials chan types.Transcript
	finals   chan types.Transcript

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// AudioChunks records every chunk passed to SendAudio.
	AudioChunks [][]byte

	// closeCalls is the number of times Close was called.
	closeCalls int
}

// Compile-time interface check.
var _ stt.SessionHandle = (*Handle)(nil)

// NewHandle creates a Handle with buffered transcript channels.
func NewHandle() *Handle {
	return &Handle{
		partials: make(chan types.Transcript, 16),
		finals:   make(chan types.Transcript, 16),
	}
}

// SendAudio records the chunk.
func (h *Handle) SendAudio(chunk []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.SendAudioErr != nil {
		return h.SendAudioErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	h.AudioChunks = append(h.AudioChunks, cp)
	return nil
}

// Partials returns the partial transcript channel.
func (h *Handle) Partials() <-chan types.Transcript { return h.partials }

// Finals returns the final transcript channel.
func (h *Handle) Finals() <-chan types.Transcript { return h.finals }

// EmitPartial delivers a partial transcript to the consumer.
func (h *Handle) EmitPartial(t types.Transcript) {
	h.partials <- t
}

// EmitFinal delivers a final transcript to the consumer.
func (h *Handle) EmitFinal(t types.Transcript) {
	h.finals <- t
}

// SentAudio returns a snapshot of every chunk passed to SendAudio so far.
func (h *Handle) SentAudio() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.AudioChunks))
	copy(out, h.AudioChunks)
	return out
}

// CloseCalls returns the number of times Close was called.
func (h *Handle) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCalls
}

// Close closes the transcript channels. Safe to call multiple times.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeCalls++
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.partials)
	close(h.finals)
	return nil
}
