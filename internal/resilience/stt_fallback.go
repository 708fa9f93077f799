package resilience

import (
	"context"
	"errors"

	"github.com/oratiohq/oratio/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover on session
// establishment. Only the StartStream call is covered; once a stream is open,
// mid-stream failures belong to the capture layer, which surfaces them as a
// terminal capture result.
//
// [stt.ErrUnsupported] from a backend still moves on to the next entry, but
// is never counted as a breaker failure: a backend that cannot stream is not
// a backend that is down.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Provider, name string, cfg FallbackConfig) *STTFallback {
	if cfg.Breaker.Ignore == nil {
		cfg.Breaker.Ignore = func(err error) bool {
			return errors.Is(err, stt.ErrUnsupported)
		}
	}
	cfg.Kind = "stt"
	return &STTFallback{group: NewFallbackGroup(primary, name, cfg)}
}

// AddFallback registers an additional backend, tried after the primary.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// StartStream opens a transcription session on the first healthy backend.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return DoWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
