package interview

import (
	"fmt"
	"strings"
)

// closingSentinel is the phrase the interviewer is told to speak in its last
// turn. It doubles as the fallback finality signal when the model ignores
// the structured "final" flag.
const closingSentinel = "compiling your feedback"

// turnSystemPrompt frames every interviewer-turn request. The model must
// answer with a single JSON object so finality is machine-readable.
const turnSystemPrompt = `You are a professional job interviewer conducting a realistic voice interview.
Keep every utterance short and conversational: it will be spoken aloud.
Ask exactly one question per turn. Never answer for the candidate.

Respond with a single JSON object and nothing else:
{"message": "<what you say next>", "final": <true only in your closing turn>}

In your closing turn, thank the candidate, tell them you are ` + closingSentinel + `, set "final" to true, and do not ask another question.`

// feedbackSystemPrompt frames the feedback-report request.
const feedbackSystemPrompt = `You are an interview coach evaluating a completed mock interview.
Base every observation strictly on the transcript. Be specific and constructive.

Respond with a single JSON object and nothing else:
{"overall_feedback": "<2-4 sentence narrative>", "strengths": ["..."], "areas_for_improvement": ["..."]}`

// buildStartPrompt renders the user prompt for the opening turn.
func buildStartPrompt(p StartParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are interviewing a candidate for the position of %q.\n\n", p.JobTitle)
	if p.JobDescription != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n\n", p.JobDescription)
	}
	fmt.Fprintf(&b, "Candidate resume:\n%s\n\n", p.ResumeText)
	b.WriteString("Greet the candidate briefly and ask your first question.")
	return b.String()
}

// buildContinuePrompt renders the user prompt for a follow-up turn,
// including the transcript so far and, at the question budget, the wrap-up
// instruction.
func buildContinuePrompt(p ContinueParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are interviewing a candidate for the position of %q.\n\n", p.JobTitle)
	if p.JobDescription != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n\n", p.JobDescription)
	}
	fmt.Fprintf(&b, "Candidate resume:\n%s\n\n", p.ResumeText)

	b.WriteString("Interview so far:\n")
	writeTranscript(&b, p.Transcript)
	b.WriteString("\n")

	remaining := p.QuestionBudget - p.QuestionsAsked
	switch {
	case p.QuestionBudget > 0 && remaining <= 0:
		b.WriteString("The interview is over. Produce your closing turn now.")
	case p.QuestionBudget > 0 && remaining == 1:
		b.WriteString("Ask your final question, then close in your next turn.")
	default:
		b.WriteString("React briefly to the candidate's last answer and ask your next question.")
	}
	return b.String()
}

// buildFeedbackPrompt renders the user prompt for the feedback report.
func buildFeedbackPrompt(transcript []Turn, jobTitle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The candidate interviewed for the position of %q.\n\n", jobTitle)
	b.WriteString("Full transcript:\n")
	writeTranscript(&b, transcript)
	b.WriteString("\nEvaluate the candidate's performance.")
	return b.String()
}

func writeTranscript(b *strings.Builder, transcript []Turn) {
	for _, t := range transcript {
		label := "Interviewer"
		if t.Role == RoleCandidate {
			label = "Candidate"
		}
		fmt.Fprintf(b, "%s: %s\n", label, t.Text)
	}
}
