package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oratiohq/oratio/pkg/provider/llm"
)

const (
	turnTemperature     = 0.7
	feedbackTemperature = 0.3
	turnMaxTokens       = 512
	feedbackMaxTokens   = 1024
)

// LLMTurnService is the [TurnService] implementation backed by an
// [llm.Provider]. It is stateless and safe for concurrent use.
type LLMTurnService struct {
	provider llm.Provider
}

var _ TurnService = (*LLMTurnService)(nil)

// NewLLMTurnService constructs a turn service over provider.
func NewLLMTurnService(provider llm.Provider) (*LLMTurnService, error) {
	if provider == nil {
		return nil, errors.New("interview: llm provider must not be nil")
	}
	return &LLMTurnService{provider: provider}, nil
}

// StartInterview implements [TurnService].
func (s *LLMTurnService) StartInterview(ctx context.Context, params StartParams) (*Message, error) {
	if strings.TrimSpace(params.JobTitle) == "" {
		return nil, errors.New("interview: job title must not be empty")
	}
	if strings.TrimSpace(params.ResumeText) == "" {
		return nil, errors.New("interview: resume text must not be empty")
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: turnSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildStartPrompt(params)},
		},
		Temperature: turnTemperature,
		MaxTokens:   turnMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("interview: start interview: %w", err)
	}

	msg, err := parseTurn(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("interview: start interview: %w", err)
	}
	// An opening turn can never be the closing turn.
	msg.Final = false
	return msg, nil
}

// ContinueInterview implements [TurnService].
func (s *LLMTurnService) ContinueInterview(ctx context.Context, params ContinueParams) (*Message, error) {
	if len(params.Transcript) == 0 {
		return nil, errors.New("interview: continue requires a transcript")
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: turnSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildContinuePrompt(params)},
		},
		Temperature: turnTemperature,
		MaxTokens:   turnMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("interview: continue interview: %w", err)
	}

	msg, err := parseTurn(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("interview: continue interview: %w", err)
	}
	return msg, nil
}

// GetFeedback implements [TurnService].
func (s *LLMTurnService) GetFeedback(ctx context.Context, transcript []Turn, jobTitle string) (*FeedbackReport, error) {
	if !hasCandidateTurn(transcript) {
		return nil, ErrEmptyTranscript
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: feedbackSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildFeedbackPrompt(transcript, jobTitle)},
		},
		Temperature: feedbackTemperature,
		MaxTokens:   feedbackMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("interview: get feedback: %w", err)
	}

	report, err := parseFeedbackReport(resp.Content)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// hasCandidateTurn reports whether the transcript contains at least one
// candidate answer to evaluate.
func hasCandidateTurn(transcript []Turn) bool {
	for _, t := range transcript {
		if t.Role == RoleCandidate && strings.TrimSpace(t.Text) != "" {
			return true
		}
	}
	return false
}
