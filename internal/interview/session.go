package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oratiohq/oratio/internal/capture"
	"github.com/oratiohq/oratio/internal/observe"
	"github.com/oratiohq/oratio/internal/playback"
	"github.com/oratiohq/oratio/internal/transcript"
	"github.com/oratiohq/oratio/internal/trial"
	"github.com/oratiohq/oratio/pkg/provider/stt"
)

// Stage is the coarse session lifecycle position.
type Stage string

const (
	// StageSetup is the initial stage: job details and resume are collected
	// and the interview has not started.
	StageSetup Stage = "setup"

	// StageInterviewing is the live conversation loop.
	StageInterviewing Stage = "interviewing"

	// StageFeedback is terminal: the feedback report is available.
	StageFeedback Stage = "feedback"
)

const (
	defaultQuestionBudget = 5
	defaultGraceDelay     = 3 * time.Second
	captureSampleRate     = 16000
)

// Session lifecycle errors.
var (
	// ErrWrongStage is returned when an operation is invalid in the current
	// stage.
	ErrWrongStage = errors.New("interview: operation not valid in current stage")

	// ErrAIPending is returned when an operation conflicts with an in-flight
	// AI request.
	ErrAIPending = errors.New("interview: an AI request is in flight")

	// ErrNothingToEvaluate is returned by End when the candidate never
	// answered; a feedback report is never produced from an empty interview.
	ErrNothingToEvaluate = errors.New("interview: no candidate answers to evaluate")
)

// Params carries the setup inputs for one interview.
type Params struct {
	// UserID identifies the authenticated user. Empty means anonymous; the
	// trial gate is consulted and written only for authenticated users.
	UserID string

	JobTitle       string
	JobDescription string
	ResumeText     string
}

// EventKind discriminates session events.
type EventKind string

const (
	EventStage    EventKind = "stage"    // stage transition
	EventTurn     EventKind = "turn"     // transcript turn appended
	EventPartial  EventKind = "partial"  // live partial answer text
	EventElapsed  EventKind = "elapsed"  // answer recording time
	EventThinking EventKind = "thinking" // AI request in flight (true/false)
	EventReport   EventKind = "report"   // feedback report ready
	EventError    EventKind = "error"    // surfaced failure, session still usable
)

// Event is one observable session occurrence, pushed to the session's event
// channel for transports to forward.
type Event struct {
	Kind     EventKind       `json:"kind"`
	Stage    Stage           `json:"stage,omitempty"`
	Turn     *Turn           `json:"turn,omitempty"`
	Partial  string          `json:"partial,omitempty"`
	Elapsed  time.Duration   `json:"elapsed,omitempty"`
	Thinking bool            `json:"thinking,omitempty"`
	Report   *FeedbackReport `json:"report,omitempty"`
	Err      string          `json:"error,omitempty"`
}

// SessionOption is a functional option for configuring a [Session].
type SessionOption func(*Session)

// WithQuestionBudget caps the number of interviewer questions. Reaching the
// budget forces the wind-down even when the model never signals finality.
// Default: 5.
func WithQuestionBudget(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.questionBudget = n
		}
	}
}

// WithGraceDelay sets the pause between the interviewer's closing turn and
// the automatic feedback request, giving the closing audio time to play.
// Default: 3 s.
func WithGraceDelay(d time.Duration) SessionOption {
	return func(s *Session) {
		if d >= 0 {
			s.graceDelay = d
		}
	}
}

// WithTrialGate attaches the free-interview gate. A nil gate disables trial
// enforcement entirely.
func WithTrialGate(g trial.Gate) SessionOption {
	return func(s *Session) {
		s.gate = g
	}
}

// WithCorrector attaches a transcript correction pipeline applied to
// candidate utterances before they join the transcript.
func WithCorrector(p transcript.Pipeline) SessionOption {
	return func(s *Session) {
		s.corrector = p
	}
}

// WithRecorder attaches the speech capture recorder. A nil recorder means
// voice answers are unavailable; typed answers still work via SubmitAnswer.
func WithRecorder(r *capture.Recorder) SessionOption {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithPlayer attaches the audio playback adapter. A nil player means
// interviewer turns are delivered as text only.
func WithPlayer(p *playback.Player) SessionOption {
	return func(s *Session) {
		s.player = p
	}
}

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithMetrics attaches the metrics instruments. A nil metrics value leaves
// the session unrecorded.
func WithMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session is the conversational state machine for one mock interview.
//
// All exported methods are safe for concurrent use. Every asynchronous
// completion (AI turn, capture result, grace timer) carries the session
// epoch from when it was dispatched; completions whose epoch no longer
// matches are dropped, so a restart or manual end can never be overwritten
// by a stale response.
type Session struct {
	ID string

	svc       TurnService
	recorder  *capture.Recorder
	player    *playback.Player
	gate      trial.Gate
	corrector transcript.Pipeline
	logger    *slog.Logger
	metrics   *observe.Metrics

	questionBudget int
	graceDelay     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	stage          Stage
	params         Params
	keywords       []string
	transcript     []Turn
	questionsAsked int
	report         *FeedbackReport
	lastErr        error
	epoch          uint64
	aiPending      bool
	finalSignalled bool
	feedbackDue    bool
	trialRecorded  bool
	closed         bool
	cap            *capture.Capture
	graceTimer     *time.Timer

	events chan Event
}

// NewSession constructs a session in the setup stage. svc must be non-nil;
// adapters and policy knobs are attached via options. Call Close when the
// session is abandoned to release its background work.
func NewSession(svc TurnService, opts ...SessionOption) (*Session, error) {
	if svc == nil {
		return nil, errors.New("interview: turn service must not be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:             uuid.NewString(),
		svc:            svc,
		logger:         slog.Default(),
		questionBudget: defaultQuestionBudget,
		graceDelay:     defaultGraceDelay,
		ctx:            ctx,
		cancel:         cancel,
		stage:          StageSetup,
		events:         make(chan Event, 64),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("session_id", s.ID)
	return s, nil
}

// Events is the stream of session occurrences for transports. Events are
// dropped, never blocked on, when the consumer falls behind.
func (s *Session) Events() <-chan Event { return s.events }

// Stage returns the current lifecycle stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Transcript returns a copy of the interview transcript so far.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Report returns the feedback report, or nil before the feedback stage.
func (s *Session) Report() *FeedbackReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Err returns the most recent surfaced failure, cleared by the next
// successful operation.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// CanCapture reports whether voice answers are available.
func (s *Session) CanCapture() bool { return s.recorder != nil }

// Start validates the setup inputs, checks the trial gate, and dispatches
// the opening interviewer turn. On success the session moves to the
// interviewing stage when the opening turn arrives; on failure it stays in
// setup and Start (or the surfaced error) can be retried.
func (s *Session) Start(p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageSetup {
		return ErrWrongStage
	}
	if s.aiPending {
		return ErrAIPending
	}
	if strings.TrimSpace(p.JobTitle) == "" {
		return errors.New("interview: job title is required")
	}
	if strings.TrimSpace(p.ResumeText) == "" {
		return errors.New("interview: resume text is required")
	}

	if s.gate != nil && p.UserID != "" {
		used, err := s.gate.HasUsedTrial(s.ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("interview: trial gate: %w", err)
		}
		if used {
			return trial.ErrUsed
		}
	}

	s.params = p
	s.keywords = transcript.ExtractKeywords(p.ResumeText, 0)
	s.lastErr = nil
	s.aiPending = true
	s.emitLocked(Event{Kind: EventThinking, Thinking: true})

	epoch := s.epoch
	go func() {
		start := time.Now()
		msg, err := s.svc.StartInterview(s.ctx, StartParams{
			JobTitle:       p.JobTitle,
			JobDescription: p.JobDescription,
			ResumeText:     p.ResumeText,
		})
		s.recordTurnMetric("start", start, err)
		s.onOpeningTurn(epoch, msg, err)
	}()
	return nil
}

// onOpeningTurn lands the StartInterview result.
func (s *Session) onOpeningTurn(epoch uint64, msg *Message, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.aiPending = false
	s.emitLocked(Event{Kind: EventThinking, Thinking: false})

	if err != nil {
		// Still in setup; the user can press start again.
		s.lastErr = err
		s.logger.Error("opening turn failed", "error", err)
		s.emitLocked(Event{Kind: EventError, Err: err.Error()})
		return
	}

	s.stage = StageInterviewing
	s.emitLocked(Event{Kind: EventStage, Stage: s.stage})
	s.appendTurnLocked(Turn{Role: RoleInterviewer, Text: msg.Text})
	s.speakLocked(msg.Text)
}

// BeginAnswer arms a voice capture for the candidate's next answer. Any
// playing interviewer audio is stopped first; capture is refused while an
// AI request is in flight or another capture is live.
func (s *Session) BeginAnswer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageInterviewing {
		return ErrWrongStage
	}
	if s.aiPending || s.feedbackDue {
		return ErrAIPending
	}
	if s.recorder == nil {
		return capture.ErrUnsupported
	}
	if s.cap != nil {
		return capture.ErrActive
	}

	if s.player != nil {
		s.player.Stop()
	}

	cfg := stt.StreamConfig{
		SampleRate: captureSampleRate,
		Channels:   1,
		Language:   "en-US",
		Keywords:   transcript.KeywordBoosts(s.keywords),
	}
	c, err := s.recorder.Start(s.ctx, cfg)
	if err != nil {
		s.lastErr = err
		s.emitLocked(Event{Kind: EventError, Err: err.Error()})
		return err
	}
	s.cap = c

	epoch := s.epoch
	go s.watchCapture(epoch, c)
	return nil
}

// watchCapture forwards live capture events and lands the terminal result.
func (s *Session) watchCapture(epoch uint64, c *capture.Capture) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for text := range c.Partials() {
			s.emitIfCurrent(epoch, Event{Kind: EventPartial, Partial: text})
		}
	}()
	go func() {
		defer wg.Done()
		for d := range c.Ticks() {
			s.emitIfCurrent(epoch, Event{Kind: EventElapsed, Elapsed: d})
		}
	}()

	res, ok := <-c.Done()
	wg.Wait()

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	if s.cap == c {
		s.cap = nil
	}
	if !ok {
		// Stopped: the answer was abandoned, nothing to submit.
		s.mu.Unlock()
		return
	}
	if res.Err != nil {
		s.lastErr = res.Err
		s.logger.Error("capture failed", "error", res.Err)
		s.emitLocked(Event{Kind: EventError, Err: res.Err.Error()})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	answer := res.Utterance.Text
	if s.corrector != nil {
		corrected, err := s.corrector.Correct(s.ctx, res.Utterance, s.keywordsSnapshot())
		if err != nil {
			s.logger.Warn("transcript correction failed, using raw utterance", "error", err)
		} else {
			answer = corrected.Corrected
		}
	}

	if err := s.submitAnswer(epoch, answer); err != nil {
		s.logger.Warn("voice answer dropped", "error", err)
	}
}

// SendAudio forwards microphone PCM into the live capture.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	c := s.cap
	s.mu.Unlock()
	if c == nil {
		return errors.New("interview: no capture in flight")
	}
	return c.SendAudio(pcm)
}

// AbandonAnswer discards the in-flight capture without submitting anything.
func (s *Session) AbandonAnswer() {
	s.mu.Lock()
	c := s.cap
	s.cap = nil
	s.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

// SubmitAnswer records a typed candidate answer. It is also the landing
// path for finalised voice captures.
func (s *Session) SubmitAnswer(text string) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	return s.submitAnswer(epoch, text)
}

// submitAnswer appends the candidate turn and dispatches the next
// interviewer turn.
func (s *Session) submitAnswer(epoch uint64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return errors.New("interview: answer from a previous run discarded")
	}
	if s.stage != StageInterviewing {
		return ErrWrongStage
	}
	if s.aiPending || s.feedbackDue {
		return ErrAIPending
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("interview: answer must not be empty")
	}

	s.appendTurnLocked(Turn{Role: RoleCandidate, Text: text})
	s.questionsAsked++
	s.lastErr = nil
	s.aiPending = true
	s.emitLocked(Event{Kind: EventThinking, Thinking: true})

	params := ContinueParams{
		JobTitle:       s.params.JobTitle,
		JobDescription: s.params.JobDescription,
		ResumeText:     s.params.ResumeText,
		Transcript:     append([]Turn(nil), s.transcript...),
		QuestionsAsked: s.questionsAsked,
		QuestionBudget: s.questionBudget,
	}
	go func() {
		start := time.Now()
		msg, err := s.svc.ContinueInterview(s.ctx, params)
		s.recordTurnMetric("continue", start, err)
		s.onNextTurn(epoch, msg, err)
	}()
	return nil
}

// onNextTurn lands a ContinueInterview result.
func (s *Session) onNextTurn(epoch uint64, msg *Message, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.aiPending = false
	s.emitLocked(Event{Kind: EventThinking, Thinking: false})

	if err != nil {
		// The candidate turn stays in the transcript; the interview
		// continues once the user retries.
		s.lastErr = err
		s.logger.Error("interviewer turn failed", "error", err)
		s.emitLocked(Event{Kind: EventError, Err: err.Error()})
		return
	}

	final := msg.Final || s.questionsAsked >= s.questionBudget
	s.appendTurnLocked(Turn{Role: RoleInterviewer, Text: msg.Text})
	s.speakLocked(msg.Text)

	if final && !s.finalSignalled {
		s.finalSignalled = true
		s.feedbackDue = true
		delay := s.graceDelay
		timerEpoch := s.epoch
		s.graceTimer = time.AfterFunc(delay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if timerEpoch != s.epoch || s.stage != StageInterviewing {
				return
			}
			s.requestFeedbackLocked()
		})
	}
}

// RetryTurn re-dispatches the interviewer turn after a mid-loop AI failure.
// Valid only when the last transcript turn is the candidate's.
func (s *Session) RetryTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageInterviewing {
		return ErrWrongStage
	}
	if s.aiPending {
		return ErrAIPending
	}
	if s.feedbackDue {
		s.requestFeedbackLocked()
		return nil
	}
	if len(s.transcript) == 0 || s.transcript[len(s.transcript)-1].Role != RoleCandidate {
		return errors.New("interview: nothing to retry")
	}

	s.lastErr = nil
	s.aiPending = true
	s.emitLocked(Event{Kind: EventThinking, Thinking: true})

	epoch := s.epoch
	params := ContinueParams{
		JobTitle:       s.params.JobTitle,
		JobDescription: s.params.JobDescription,
		ResumeText:     s.params.ResumeText,
		Transcript:     append([]Turn(nil), s.transcript...),
		QuestionsAsked: s.questionsAsked,
		QuestionBudget: s.questionBudget,
	}
	go func() {
		start := time.Now()
		msg, err := s.svc.ContinueInterview(s.ctx, params)
		s.recordTurnMetric("continue", start, err)
		s.onNextTurn(epoch, msg, err)
	}()
	return nil
}

// End finishes the interview immediately: playback and capture are
// cancelled, pending async work is invalidated, and the feedback request is
// dispatched. Returns [ErrNothingToEvaluate] when the candidate never
// answered.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageInterviewing {
		return ErrWrongStage
	}
	if !hasCandidateTurn(s.transcript) {
		return ErrNothingToEvaluate
	}

	s.invalidateAsyncLocked()
	s.requestFeedbackLocked()
	return nil
}

// requestFeedbackLocked dispatches GetFeedback. Callers hold s.mu.
func (s *Session) requestFeedbackLocked() {
	if s.aiPending {
		return
	}
	s.feedbackDue = true
	s.lastErr = nil
	s.aiPending = true
	s.emitLocked(Event{Kind: EventThinking, Thinking: true})

	epoch := s.epoch
	transcriptCopy := append([]Turn(nil), s.transcript...)
	jobTitle := s.params.JobTitle
	go func() {
		start := time.Now()
		report, err := s.svc.GetFeedback(s.ctx, transcriptCopy, jobTitle)
		s.recordTurnMetric("feedback", start, err)
		s.onFeedback(epoch, report, err)
	}()
}

// onFeedback lands the GetFeedback result.
func (s *Session) onFeedback(epoch uint64, report *FeedbackReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.aiPending = false
	s.emitLocked(Event{Kind: EventThinking, Thinking: false})

	if err != nil {
		// Stay in the interviewing stage; RetryTurn re-requests feedback.
		s.lastErr = err
		s.logger.Error("feedback failed", "error", err)
		s.emitLocked(Event{Kind: EventError, Err: err.Error()})
		return
	}

	s.report = report
	s.stage = StageFeedback
	s.feedbackDue = false
	s.emitLocked(Event{Kind: EventReport, Report: report})
	s.emitLocked(Event{Kind: EventStage, Stage: s.stage})

	s.recordTrialLocked()
}

// recordTrialLocked writes the trial usage exactly once per session, only
// for authenticated users, only after a report exists. A write failure is
// logged, not surfaced: the report is already owed to the user.
func (s *Session) recordTrialLocked() {
	if s.trialRecorded || s.gate == nil || s.params.UserID == "" {
		return
	}
	s.trialRecorded = true

	userID := s.params.UserID
	gate := s.gate
	logger := s.logger
	metrics := s.metrics
	ctx := s.ctx
	go func() {
		if err := gate.RecordUsage(ctx, userID); err != nil && !errors.Is(err, trial.ErrUsed) {
			logger.Error("trial usage not recorded", "user_id", userID, "error", err)
			return
		}
		if metrics != nil {
			metrics.TrialsRecorded.Add(ctx, 1)
		}
	}()
}

// Restart discards the entire interview and returns to setup. The trial
// record, if already written, stays written.
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidateAsyncLocked()
	s.stage = StageSetup
	s.params = Params{}
	s.keywords = nil
	s.transcript = nil
	s.questionsAsked = 0
	s.report = nil
	s.lastErr = nil
	s.aiPending = false
	s.finalSignalled = false
	s.feedbackDue = false
	s.trialRecorded = false
	s.emitLocked(Event{Kind: EventStage, Stage: s.stage})
}

// Close releases the session: async work is invalidated, the lifetime
// context is cancelled, and the event stream is closed. The session is
// unusable afterwards. Calling Close more than once is safe.
func (s *Session) Close() {
	s.mu.Lock()
	s.invalidateAsyncLocked()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	s.cancel()
}

// invalidateAsyncLocked bumps the epoch so in-flight completions are
// dropped, and tears down capture, playback, and the grace timer. Callers
// hold s.mu.
func (s *Session) invalidateAsyncLocked() {
	s.epoch++
	s.aiPending = false
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	if s.cap != nil {
		s.cap.Stop()
		s.cap = nil
	}
	if s.player != nil {
		s.player.Stop()
	}
}

// appendTurnLocked appends to the transcript and emits the turn event.
// Callers hold s.mu.
func (s *Session) appendTurnLocked(t Turn) {
	s.transcript = append(s.transcript, t)
	s.emitLocked(Event{Kind: EventTurn, Turn: &t})
}

// speakLocked dispatches playback of an interviewer utterance. Callers hold
// s.mu. The synthesis dial happens off the lock so state reads are never
// blocked behind a TTS backend; a playback that started during a stage
// change is cancelled when its dispatch epoch no longer matches. Playback
// failures are surfaced as events but never halt the conversation: the turn
// text is already in the transcript.
func (s *Session) speakLocked(text string) {
	if s.player == nil {
		return
	}
	epoch := s.epoch
	player := s.player
	go func() {
		pb, err := player.Speak(s.ctx, text)
		if err != nil {
			s.logger.Warn("playback failed", "error", err)
			s.emitIfCurrent(epoch, Event{Kind: EventError, Err: err.Error()})
			return
		}

		s.mu.Lock()
		stale := epoch != s.epoch
		s.mu.Unlock()
		if stale {
			pb.Cancel()
		}
	}()
}

// emitLocked pushes an event without blocking; slow consumers lose events.
// Callers hold s.mu.
func (s *Session) emitLocked(e Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
		s.logger.Warn("event dropped", "kind", string(e.Kind))
	}
}

// recordTurnMetric records one turn-service round trip. Called from the
// dispatch goroutines, outside the lock.
func (s *Session) recordTurnMetric(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordTurn(s.ctx, operation, status, time.Since(start).Seconds())
}

// emitIfCurrent emits only when the epoch still matches.
func (s *Session) emitIfCurrent(epoch uint64, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch == s.epoch {
		s.emitLocked(e)
	}
}

// keywordsSnapshot copies the keyword list for use outside the lock.
func (s *Session) keywordsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keywords...)
}
