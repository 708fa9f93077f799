package interview

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// stripFences removes a surrounding markdown code fence from an LLM
// response. Models frequently wrap JSON output in ```json blocks even when
// told not to.
func stripFences(s string) string {
	clean := strings.TrimSpace(s)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

// turnPayload mirrors the JSON object the turn prompts demand.
type turnPayload struct {
	Message string `json:"message"`
	Final   bool   `json:"final"`
}

// parseTurn decodes an interviewer-turn response. When the model ignored
// the JSON schema and answered in prose, the raw text becomes the message
// and finality falls back to detecting the closing sentinel phrase.
func parseTurn(raw string) (*Message, error) {
	clean := stripFences(raw)
	if clean == "" {
		return nil, errors.New("interview: empty model response")
	}

	var p turnPayload
	if err := json.Unmarshal([]byte(clean), &p); err == nil && p.Message != "" {
		return &Message{Text: p.Message, Final: p.Final}, nil
	}

	// Prose fallback: sentinel detection.
	return &Message{
		Text:  clean,
		Final: strings.Contains(strings.ToLower(clean), closingSentinel),
	}, nil
}

// parseFeedbackReport decodes a feedback response. Unlike turns there is no
// prose fallback: a report that cannot be decoded is a service failure.
func parseFeedbackReport(raw string) (*FeedbackReport, error) {
	clean := stripFences(raw)
	if clean == "" {
		return nil, errors.New("interview: empty feedback response")
	}

	var r FeedbackReport
	if err := json.Unmarshal([]byte(clean), &r); err != nil {
		return nil, fmt.Errorf("interview: decode feedback report: %w", err)
	}
	if r.OverallFeedback == "" {
		return nil, errors.New("interview: feedback report missing overall_feedback")
	}
	return &r, nil
}
