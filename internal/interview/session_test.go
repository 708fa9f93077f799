package interview_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oratiohq/oratio/internal/interview"
	"github.com/oratiohq/oratio/internal/trial"
)

// scriptedService is a TurnService driven by per-call queues. A nil entry in
// the error queue means success.
type scriptedService struct {
	mu sync.Mutex

	startMsg *interview.Message
	startErr error

	nextMsgs []*interview.Message
	nextErrs []error
	nextN    int

	report      *interview.FeedbackReport
	feedbackErr error

	feedbackCalls int
	block         chan struct{} // when non-nil, calls wait here first
	feedbackHook  func()        // when non-nil, runs on GetFeedback entry
}

func (s *scriptedService) wait() {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (s *scriptedService) StartInterview(_ context.Context, _ interview.StartParams) (*interview.Message, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.startMsg, nil
}

func (s *scriptedService) ContinueInterview(_ context.Context, _ interview.ContinueParams) (*interview.Message, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nextN
	s.nextN++
	if n < len(s.nextErrs) && s.nextErrs[n] != nil {
		return nil, s.nextErrs[n]
	}
	if n >= len(s.nextMsgs) {
		n = len(s.nextMsgs) - 1
	}
	return s.nextMsgs[n], nil
}

func (s *scriptedService) GetFeedback(_ context.Context, transcript []interview.Turn, _ string) (*interview.FeedbackReport, error) {
	s.wait()
	s.mu.Lock()
	hook := s.feedbackHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbackCalls = s.feedbackCalls + 1
	if len(transcript) == 0 {
		return nil, interview.ErrEmptyTranscript
	}
	if s.feedbackErr != nil {
		return nil, s.feedbackErr
	}
	return s.report, nil
}

func validParams() interview.Params {
	return interview.Params{
		JobTitle:   "Backend Engineer",
		ResumeText: "Six years of Go at Stripe.",
	}
}

func basicService() *scriptedService {
	return &scriptedService{
		startMsg: &interview.Message{Text: "Welcome. Tell me about yourself."},
		nextMsgs: []*interview.Message{{Text: "Why this role?"}},
		report:   &interview.FeedbackReport{OverallFeedback: "Solid."},
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_StartValidation(t *testing.T) {
	t.Parallel()

	s, err := interview.NewSession(basicService())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	if err := s.Start(interview.Params{ResumeText: "r"}); err == nil {
		t.Error("expected error for missing job title")
	}
	if err := s.Start(interview.Params{JobTitle: "x"}); err == nil {
		t.Error("expected error for missing resume")
	}
	if s.Stage() != interview.StageSetup {
		t.Errorf("stage=%v after failed start, want setup", s.Stage())
	}
}

func TestSession_TrialGateBlocksStart(t *testing.T) {
	t.Parallel()

	gate := trial.NewMemoryGate()
	if err := gate.RecordUsage(context.Background(), "user-1"); err != nil {
		t.Fatal(err)
	}

	s, err := interview.NewSession(basicService(), interview.WithTrialGate(gate))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	p := validParams()
	p.UserID = "user-1"
	if err := s.Start(p); !errors.Is(err, trial.ErrUsed) {
		t.Fatalf("got %v, want trial.ErrUsed", err)
	}
	if s.Stage() != interview.StageSetup {
		t.Errorf("stage=%v, want setup", s.Stage())
	}

	// Anonymous start is not gated.
	if err := s.Start(validParams()); err != nil {
		t.Fatalf("anonymous start: %v", err)
	}
}

func TestSession_HappyPathToFeedback(t *testing.T) {
	t.Parallel()

	svc := &scriptedService{
		startMsg: &interview.Message{Text: "Welcome. First question?"},
		nextMsgs: []*interview.Message{
			{Text: "Why this role?"},
			{Text: "Thanks, compiling your feedback.", Final: true},
		},
		report: &interview.FeedbackReport{
			OverallFeedback: "Strong communication.",
			Strengths:       []string{"clarity"},
		},
	}
	gate := trial.NewMemoryGate()

	s, err := interview.NewSession(svc,
		interview.WithTrialGate(gate),
		interview.WithGraceDelay(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	p := validParams()
	p.UserID = "user-7"
	if err := s.Start(p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageInterviewing }, "never reached interviewing")

	if err := s.SubmitAnswer("I am a Go developer."); err != nil {
		t.Fatalf("SubmitAnswer 1: %v", err)
	}
	waitFor(t, func() bool { return len(s.Transcript()) == 3 }, "second interviewer turn missing")

	if err := s.SubmitAnswer("I want backend scale."); err != nil {
		t.Fatalf("SubmitAnswer 2: %v", err)
	}

	waitFor(t, func() bool { return s.Stage() == interview.StageFeedback }, "never reached feedback")

	report := s.Report()
	if report == nil || report.OverallFeedback != "Strong communication." {
		t.Fatalf("report=%+v", report)
	}

	// Transcript is append-only and ordered.
	tr := s.Transcript()
	wantRoles := []interview.Role{
		interview.RoleInterviewer, interview.RoleCandidate,
		interview.RoleInterviewer, interview.RoleCandidate,
		interview.RoleInterviewer,
	}
	if len(tr) != len(wantRoles) {
		t.Fatalf("transcript has %d turns, want %d: %+v", len(tr), len(wantRoles), tr)
	}
	for i, r := range wantRoles {
		if tr[i].Role != r {
			t.Errorf("turn %d role=%v, want %v", i, tr[i].Role, r)
		}
	}

	// Trial recorded exactly once for the authenticated user.
	waitFor(t, func() bool {
		used, _ := gate.HasUsedTrial(context.Background(), "user-7")
		return used
	}, "trial usage never recorded")
}

func TestSession_AnonymousDoesNotRecordTrial(t *testing.T) {
	t.Parallel()

	svc := &scriptedService{
		startMsg: &interview.Message{Text: "Hello."},
		nextMsgs: []*interview.Message{{Text: "Bye.", Final: true}},
		report:   &interview.FeedbackReport{OverallFeedback: "ok"},
	}
	gate := trial.NewMemoryGate()

	s, err := interview.NewSession(svc,
		interview.WithTrialGate(gate),
		interview.WithGraceDelay(time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(validParams()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageInterviewing }, "no interviewing stage")
	if err := s.SubmitAnswer("answer"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageFeedback }, "no feedback stage")

	time.Sleep(50 * time.Millisecond)
	used, _ := gate.HasUsedTrial(context.Background(), "")
	if used {
		t.Error("trial recorded for anonymous session")
	}
}

func TestSession_AIFailureMidLoopIsRetryable(t *testing.T) {
	t.Parallel()

	svc := &scriptedService{
		startMsg: &interview.Message{Text: "Q1"},
		nextMsgs: []*interview.Message{{Text: "Q2"}},
		nextErrs: []error{errors.New("backend unavailable"), nil},
		report:   &interview.FeedbackReport{OverallFeedback: "ok"},
	}

	s, err := interview.NewSession(svc)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(validParams()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageInterviewing }, "no interviewing stage")

	if err := s.SubmitAnswer("A1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Err() != nil }, "AI failure never surfaced")

	// Still interviewing, candidate turn kept.
	if s.Stage() != interview.StageInterviewing {
		t.Fatalf("stage=%v, want interviewing", s.Stage())
	}
	tr := s.Transcript()
	if len(tr) != 2 || tr[1].Role != interview.RoleCandidate {
		t.Fatalf("transcript=%+v", tr)
	}

	// Manual retry succeeds.
	if err := s.RetryTurn(); err != nil {
		t.Fatalf("RetryTurn: %v", err)
	}
	waitFor(t, func() bool { return len(s.Transcript()) == 3 }, "retried turn never arrived")
	if s.Err() != nil {
		t.Errorf("lastErr not cleared: %v", s.Err())
	}
}

func TestSession_QuestionBudgetForcesWindDown(t *testing.T) {
	t.Parallel()

	// The model never sets final; the budget must force the transition.
	svc := &scriptedService{
		startMsg: &interview.Message{Text: "Q"},
		nextMsgs: []*interview.Message{{Text: "Another question?"}},
		report:   &interview.FeedbackReport{OverallFeedback: "ok"},
	}

	s, err := interview.NewSession(svc,
		interview.WithQuestionBudget(2),
		interview.WithGraceDelay(time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(validParams()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageInterviewing }, "no interviewing stage")

	if err := s.SubmitAnswer("A1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(s.Transcript()) == 3 }, "turn 2 missing")
	if err := s.SubmitAnswer("A2"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return s.Stage() == interview.StageFeedback }, "budget did not force feedback")
}

func TestSession_ManualEnd(t *testing.T) {
	t.Parallel()

	svc := &scriptedService{
		startMsg: &interview.Message{Text: "Q1"},
		nextMsgs: []*interview.Message{{Text: "Q2"}},
		report:   &interview.FeedbackReport{OverallFeedback: "cut short"},
	}

	s, err := interview.NewSession(svc)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// End before any answer: nothing to evaluate.
	if err := s.End(); !errors.Is(err, interview.ErrWrongStage) {
		t.Fatalf("End in setup: got %v, want ErrWrongStage", err)
	}

	if err := s.Start(validParams()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageInterviewing }, "no interviewing stage")

	if err := s.End(); !errors.Is(err, interview.ErrNothingToEvaluate) {
		t.Fatalf("End without answers: got %v, want ErrNothingToEvaluate", err)
	}

	if err := s.SubmitAnswer("A1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(s.Transcript()) == 3 }, "turn 2 missing")

	if err := s.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageFeedback }, "manual end never produced feedback")
}

func TestSession_StaleResponseDropped(t *testing.T) {
	t.Parallel()

	svc := basicService()
	svc.block = make(chan struct{})

	s, err := interview.NewSession(svc)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(validParams()); err != nil {
		t.Fatal(err)
	}

	// Restart while the opening turn is still in flight, then release it.
	s.Restart()
	close(svc.block)

	time.Sleep(100 * time.Millisecond)
	if s.Stage() != interview.StageSetup {
		t.Errorf("stale opening turn advanced the session: stage=%v", s.Stage())
	}
	if len(s.Transcript()) != 0 {
		t.Errorf("stale turn appended: %+v", s.Transcript())
	}
}

func TestSession_FeedbackFailureRetryable(t *testing.T) {
	t.Parallel()

	svc := &scriptedService{
		startMsg:    &interview.Message{Text: "Q1"},
		nextMsgs:    []*interview.Message{{Text: "Bye.", Final: true}},
		report:      &interview.FeedbackReport{OverallFeedback: "ok"},
		feedbackErr: errors.New("model overloaded"),
	}

	s, err := interview.NewSession(svc, interview.WithGraceDelay(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(validParams()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageInterviewing }, "no interviewing stage")
	if err := s.SubmitAnswer("A1"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return s.Err() != nil }, "feedback failure never surfaced")
	if s.Stage() != interview.StageInterviewing {
		t.Fatalf("stage=%v after feedback failure, want interviewing", s.Stage())
	}

	// Clear the injected failure and retry.
	svc.mu.Lock()
	svc.feedbackErr = nil
	svc.mu.Unlock()

	if err := s.RetryTurn(); err != nil {
		t.Fatalf("RetryTurn: %v", err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageFeedback }, "feedback retry never succeeded")
}

func TestSession_RestartClearsEverything(t *testing.T) {
	t.Parallel()

	svc := &scriptedService{
		startMsg: &interview.Message{Text: "Q1"},
		nextMsgs: []*interview.Message{{Text: "Bye.", Final: true}},
		report:   &interview.FeedbackReport{OverallFeedback: "ok"},
	}
	gate := trial.NewMemoryGate()

	s, err := interview.NewSession(svc,
		interview.WithTrialGate(gate),
		interview.WithGraceDelay(time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	p := validParams()
	p.UserID = "user-9"
	if err := s.Start(p); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageInterviewing }, "no interviewing stage")
	if err := s.SubmitAnswer("A1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Stage() == interview.StageFeedback }, "no feedback stage")
	waitFor(t, func() bool {
		used, _ := gate.HasUsedTrial(context.Background(), "user-9")
		return used
	}, "trial not recorded")

	s.Restart()

	if s.Stage() != interview.StageSetup {
		t.Errorf("stage=%v after restart, want setup", s.Stage())
	}
	if len(s.Transcript()) != 0 || s.Report() != nil || s.Err() != nil {
		t.Error("restart did not clear session state")
	}

	// The trial record survives the restart.
	used, _ := gate.HasUsedTrial(context.Background(), "user-9")
	if !used {
		t.Error("restart erased the trial record")
	}
}

func TestSession_SubmitWhileAIPending(t *testing.T) {
	t.Parallel()

	svc := basicService()
	svc.block = make(chan struct{})

	s, err := interview.NewSession(svc)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Start(validParams()); err != nil {
		t.Fatal(err)
	}
	// Opening turn still in flight: no answers yet.
	if err := s.SubmitAnswer("too early"); !errors.Is(err, interview.ErrWrongStage) {
		t.Fatalf("got %v, want ErrWrongStage", err)
	}
	close(svc.block)
	waitFor(t, func() bool { return s.Stage() == interview.StageInterviewing }, "no interviewing stage")

	// Now block the next turn and try to double-submit.
	svc.mu.Lock()
	svc.block = make(chan struct{})
	svc.mu.Unlock()

	if err := s.SubmitAnswer("A1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SubmitAnswer("A1 again"); !errors.Is(err, interview.ErrAIPending) {
		t.Fatalf("got %v, want ErrAIPending", err)
	}
	svc.mu.Lock()
	close(svc.block)
	svc.block = nil
	svc.mu.Unlock()
}
