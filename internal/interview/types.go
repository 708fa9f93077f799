// Package interview holds the core of the mock-interview service: the
// conversational [Session] state machine and the [TurnService] that produces
// interviewer turns and the final feedback report from a language model.
package interview

import (
	"context"
	"errors"
)

// Role identifies who produced a transcript turn.
type Role string

const (
	// RoleInterviewer marks turns spoken by the AI interviewer.
	RoleInterviewer Role = "interviewer"

	// RoleCandidate marks turns spoken by the user.
	RoleCandidate Role = "candidate"
)

// Turn is one utterance in the interview transcript. The transcript is
// append-only: turns are never edited or removed once recorded.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// FeedbackReport is the structured evaluation produced at the end of an
// interview. At most one report exists per session, derived from the full
// transcript.
type FeedbackReport struct {
	// OverallFeedback is the narrative summary of the candidate's
	// performance.
	OverallFeedback string `json:"overall_feedback"`

	// Strengths lists what the candidate did well.
	Strengths []string `json:"strengths"`

	// AreasForImprovement lists concrete things to work on.
	AreasForImprovement []string `json:"areas_for_improvement"`
}

// Message is one interviewer utterance produced by the [TurnService].
type Message struct {
	// Text is what the interviewer says next.
	Text string

	// Final reports that the interviewer has asked its last question and
	// the session should wind down after this utterance plays.
	Final bool
}

// StartParams carries everything the turn service needs to open an interview.
type StartParams struct {
	JobTitle       string
	JobDescription string
	ResumeText     string
}

// ContinueParams carries the conversation state for the next interviewer turn.
type ContinueParams struct {
	JobTitle       string
	JobDescription string
	ResumeText     string

	// Transcript is the full interview so far, oldest turn first.
	Transcript []Turn

	// QuestionsAsked is how many interviewer questions have been answered.
	QuestionsAsked int

	// QuestionBudget is the maximum number of questions for this session.
	// When QuestionsAsked is about to reach it, the service instructs the
	// model to wrap up.
	QuestionBudget int
}

// ErrEmptyTranscript is returned by [TurnService.GetFeedback] when called
// with no candidate turns. A feedback report is never produced from an empty
// interview.
var ErrEmptyTranscript = errors.New("interview: cannot produce feedback for an empty transcript")

// TurnService produces interviewer turns and the feedback report. It is
// stateless: every call receives the full conversation context.
//
// Implementations must be safe for concurrent use and must not retry
// internally; a failed call is surfaced to the session, which owns retry
// policy.
type TurnService interface {
	// StartInterview produces the interviewer's opening (greeting plus
	// first question).
	StartInterview(ctx context.Context, params StartParams) (*Message, error)

	// ContinueInterview produces the next interviewer turn given the full
	// transcript. The returned Message's Final flag signals the terminal
	// question.
	ContinueInterview(ctx context.Context, params ContinueParams) (*Message, error)

	// GetFeedback produces the structured feedback report from the full
	// transcript. A malformed model response is a service failure, not a
	// partial result.
	GetFeedback(ctx context.Context, transcript []Turn, jobTitle string) (*FeedbackReport, error)
}
