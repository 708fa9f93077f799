package interview_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/oratiohq/oratio/internal/interview"
	"github.com/oratiohq/oratio/pkg/provider/llm"
	llmmock "github.com/oratiohq/oratio/pkg/provider/llm/mock"
)

func TestLLMTurnService_StartInterview(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: `{"message": "Welcome! Tell me about yourself.", "final": false}`},
		},
	}
	svc, err := interview.NewLLMTurnService(p)
	if err != nil {
		t.Fatalf("NewLLMTurnService: %v", err)
	}

	msg, err := svc.StartInterview(context.Background(), interview.StartParams{
		JobTitle:   "Backend Engineer",
		ResumeText: "Six years of Go.",
	})
	if err != nil {
		t.Fatalf("StartInterview: %v", err)
	}
	if msg.Text == "" || msg.Final {
		t.Errorf("msg=%+v", msg)
	}

	if len(p.CompleteCalls) != 1 {
		t.Fatalf("expected 1 Complete call, got %d", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if req.SystemPrompt == "" {
		t.Error("system prompt missing")
	}
	prompt := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(prompt, "Backend Engineer") || !strings.Contains(prompt, "Six years of Go.") {
		t.Errorf("prompt missing job or resume context: %q", prompt)
	}
}

func TestLLMTurnService_StartValidation(t *testing.T) {
	t.Parallel()

	svc, _ := interview.NewLLMTurnService(&llmmock.Provider{})

	if _, err := svc.StartInterview(context.Background(), interview.StartParams{ResumeText: "r"}); err == nil {
		t.Error("expected error for missing job title")
	}
	if _, err := svc.StartInterview(context.Background(), interview.StartParams{JobTitle: "x"}); err == nil {
		t.Error("expected error for missing resume")
	}
}

func TestLLMTurnService_ContinueWrapUpAtBudget(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: `{"message": "Thanks, compiling your feedback.", "final": true}`},
		},
	}
	svc, _ := interview.NewLLMTurnService(p)

	msg, err := svc.ContinueInterview(context.Background(), interview.ContinueParams{
		JobTitle: "Backend Engineer",
		Transcript: []interview.Turn{
			{Role: interview.RoleInterviewer, Text: "Q1"},
			{Role: interview.RoleCandidate, Text: "A1"},
		},
		QuestionsAsked: 5,
		QuestionBudget: 5,
	})
	if err != nil {
		t.Fatalf("ContinueInterview: %v", err)
	}
	if !msg.Final {
		t.Error("closing turn not final")
	}

	prompt := p.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "closing turn") {
		t.Errorf("wrap-up instruction missing from prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "Interviewer: Q1") || !strings.Contains(prompt, "Candidate: A1") {
		t.Errorf("transcript missing from prompt: %q", prompt)
	}
}

func TestLLMTurnService_GetFeedback(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: `{"overall_feedback": "Good.", "strengths": ["depth"], "areas_for_improvement": ["pace"]}`},
		},
	}
	svc, _ := interview.NewLLMTurnService(p)

	report, err := svc.GetFeedback(context.Background(), []interview.Turn{
		{Role: interview.RoleInterviewer, Text: "Q"},
		{Role: interview.RoleCandidate, Text: "A"},
	}, "Backend Engineer")
	if err != nil {
		t.Fatalf("GetFeedback: %v", err)
	}
	if report.OverallFeedback != "Good." {
		t.Errorf("report=%+v", report)
	}
}

func TestLLMTurnService_GetFeedbackEmptyTranscript(t *testing.T) {
	t.Parallel()

	svc, _ := interview.NewLLMTurnService(&llmmock.Provider{})

	_, err := svc.GetFeedback(context.Background(), nil, "x")
	if !errors.Is(err, interview.ErrEmptyTranscript) {
		t.Fatalf("got %v, want ErrEmptyTranscript", err)
	}

	// Interviewer-only transcript counts as empty too.
	_, err = svc.GetFeedback(context.Background(), []interview.Turn{
		{Role: interview.RoleInterviewer, Text: "Q"},
	}, "x")
	if !errors.Is(err, interview.ErrEmptyTranscript) {
		t.Fatalf("got %v, want ErrEmptyTranscript", err)
	}
}

func TestLLMTurnService_MalformedFeedbackIsFailure(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "The candidate was great, no JSON here."},
		},
	}
	svc, _ := interview.NewLLMTurnService(p)

	if _, err := svc.GetFeedback(context.Background(), []interview.Turn{
		{Role: interview.RoleCandidate, Text: "A"},
	}, "x"); err == nil {
		t.Fatal("malformed feedback must be a service failure")
	}
}
