package resilience

import (
	"context"

	"github.com/oratiohq/oratio/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover on synthesis start.
// Only establishing the synthesis is covered; once the audio channel is
// handed out, mid-stream errors close the channel and playback reports them.
//
// Voice IDs are backend-specific, so a fallback synthesis uses whatever voice
// the caller passed. Callers that care should resolve a voice per backend via
// ListVoices first.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, name string, cfg FallbackConfig) *TTSFallback {
	cfg.Kind = "tts"
	return &TTSFallback{group: NewFallbackGroup(primary, name, cfg)}
}

// AddFallback registers an additional backend, tried after the primary.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Synthesize streams synthesized speech from the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	return DoWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices lists the primary's voices, falling back on failure.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return DoWithResult(f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}
