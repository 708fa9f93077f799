// Package transcript defines the transcript correction pipeline used to fix
// STT errors in résumé-specific vocabulary.
//
// Raw speech-to-text output is rarely perfect for the proper nouns that come
// up in an interview — employer names, product names, technologies, and
// certifications from the candidate's résumé are frequently misheard. The
// [Pipeline] corrects them with a phonetic matching stage ([PhoneticMatcher]):
// fast, dictionary-free alignment based on pronunciation similarity that runs
// in-process with no network calls.
//
// Each [Correction] records which method produced the substitution and its
// confidence, so callers can audit or display changes.
//
// Implementations of both interfaces must be safe for concurrent use.
package transcript

import (
	"context"

	"github.com/oratiohq/oratio/pkg/types"
)

// Correction captures a single word-level substitution made by the pipeline.
type Correction struct {
	// Original is the word as produced by the STT provider.
	Original string

	// Corrected is the replacement selected by the pipeline.
	Corrected string

	// Confidence is the pipeline's confidence in this substitution (0.0–1.0).
	Confidence float64

	// Method describes which correction stage produced this substitution.
	// Currently always "phonetic".
	Method string
}

// CorrectedTranscript is the output of a [Pipeline.Correct] call.
// It pairs the original [types.Transcript] with the fully corrected text and
// an itemised record of every substitution that was applied.
type CorrectedTranscript struct {
	// Original is the raw [types.Transcript] as received from the STT provider.
	Original types.Transcript

	// Corrected is the full corrected transcript text with all substitutions
	// applied. This is what gets appended to the interview transcript and
	// sent to the AI turn service.
	Corrected string

	// Corrections is the ordered list of word-level substitutions applied to
	// produce Corrected. An empty (non-nil) slice means no corrections were
	// necessary.
	Corrections []Correction
}

// Pipeline applies corrections to a raw [types.Transcript], resolving STT
// errors for résumé-specific vocabulary.
//
// Implementations must be safe for concurrent use.
type Pipeline interface {
	// Correct processes transcript using the provided keyword list and
	// returns a [CorrectedTranscript] containing the corrected text and an
	// itemised record of every substitution made.
	//
	// keywords is the list of résumé proper nouns the pipeline should
	// recognise: employer names, product names, technologies, certifications.
	//
	// Returns a non-nil *CorrectedTranscript on success. When no corrections
	// are needed, Corrected equals transcript.Text and Corrections is an
	// empty (non-nil) slice.
	Correct(ctx context.Context, transcript types.Transcript, keywords []string) (*CorrectedTranscript, error)
}

// PhoneticMatcher resolves a single word or phrase to a known résumé keyword
// based on pronunciation similarity. It must be fast enough for real-time
// use, with no network calls.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match attempts to find the keyword from keywords that is most
	// phonetically similar to word.
	//
	// Return values:
	//   corrected  — the best-matching keyword from keywords.
	//   confidence — similarity score in [0.0, 1.0] where 1.0 is a perfect match.
	//   matched    — true when a sufficiently similar keyword was found.
	//
	// When matched is false, corrected must equal word unchanged and
	// confidence must be 0. Implementations define their own similarity
	// threshold for deciding when a match is "sufficient".
	Match(word string, keywords []string) (corrected string, confidence float64, matched bool)
}
