// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a
// local Coqui instance) and presents a uniform interface: Synthesize accepts
// one complete interviewer utterance and returns a channel of raw PCM audio
// chunks as they become available, enabling playback to begin before the full
// utterance is rendered.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice describes a TTS voice configuration for the interviewer persona.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text to speech audio and returns a channel that
	// emits raw PCM audio byte slices as they are synthesised.
	//
	// The returned channel is closed by the implementation when synthesis
	// completes or when ctx is cancelled. The caller must drain the channel
	// to avoid blocking the provider's internal goroutines.
	//
	// Returns a non-nil error only if synthesis cannot be started. Errors
	// encountered mid-stream are signalled by closing the channel early;
	// callers should check ctx.Err() to distinguish cancellation from
	// provider failure.
	Synthesize(ctx context.Context, text string, voice Voice) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls.
	ListVoices(ctx context.Context) ([]Voice, error)
}
