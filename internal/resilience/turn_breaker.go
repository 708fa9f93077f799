package resilience

import (
	"context"
	"errors"

	"github.com/oratiohq/oratio/internal/interview"
)

// TurnBreaker wraps an [interview.TurnService] with a single shared breaker.
// The three operations hit the same backend, so they share failure
// accounting: a turn service that cannot continue an interview will not
// produce feedback either.
//
// [interview.ErrEmptyTranscript] is a caller mistake, not a backend fault,
// and never counts toward tripping the breaker.
type TurnBreaker struct {
	svc     interview.TurnService
	breaker *Breaker
}

var _ interview.TurnService = (*TurnBreaker)(nil)

// NewTurnBreaker wraps svc with a breaker built from cfg.
func NewTurnBreaker(svc interview.TurnService, cfg BreakerConfig) *TurnBreaker {
	if cfg.Name == "" {
		cfg.Name = "turn-service"
	}
	if cfg.Ignore == nil {
		cfg.Ignore = func(err error) bool {
			return errors.Is(err, interview.ErrEmptyTranscript)
		}
	}
	return &TurnBreaker{svc: svc, breaker: NewBreaker(cfg)}
}

// StartInterview implements [interview.TurnService].
func (t *TurnBreaker) StartInterview(ctx context.Context, params interview.StartParams) (*interview.Message, error) {
	var msg *interview.Message
	err := t.breaker.Do(func() error {
		var innerErr error
		msg, innerErr = t.svc.StartInterview(ctx, params)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ContinueInterview implements [interview.TurnService].
func (t *TurnBreaker) ContinueInterview(ctx context.Context, params interview.ContinueParams) (*interview.Message, error) {
	var msg *interview.Message
	err := t.breaker.Do(func() error {
		var innerErr error
		msg, innerErr = t.svc.ContinueInterview(ctx, params)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetFeedback implements [interview.TurnService].
func (t *TurnBreaker) GetFeedback(ctx context.Context, transcript []interview.Turn, jobTitle string) (*interview.FeedbackReport, error) {
	var report *interview.FeedbackReport
	err := t.breaker.Do(func() error {
		var innerErr error
		report, innerErr = t.svc.GetFeedback(ctx, transcript, jobTitle)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
