package transcript

import (
	"context"
	"strings"

	"github.com/oratiohq/oratio/pkg/types"
)

// CorrectorOption is a functional option for configuring a [Corrector].
type CorrectorOption func(*Corrector)

// WithPhoneticMatcher attaches a [PhoneticMatcher] as the correction stage.
// When nil (the default), Correct returns the transcript unchanged.
func WithPhoneticMatcher(m PhoneticMatcher) CorrectorOption {
	return func(c *Corrector) {
		c.phonetic = m
	}
}

// Corrector is the phonetic transcript correction implementation of
// [Pipeline]. It aligns n-gram windows of the transcript text against the
// résumé keyword list so that multi-word keywords take precedence over
// partial single-word matches.
//
// Corrector is safe for concurrent use.
type Corrector struct {
	phonetic PhoneticMatcher
}

// Ensure Corrector satisfies the Pipeline interface at compile time.
var _ Pipeline = (*Corrector)(nil)

// NewCorrector constructs a [Corrector] with the supplied options.
func NewCorrector(opts ...CorrectorOption) *Corrector {
	c := &Corrector{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct applies phonetic keyword correction to transcript:
//
//  1. The transcript text is tokenised into whitespace-separated word tokens.
//  2. At each token position, n-gram windows (from the maximum keyword word
//     count down to 1) are tested against the keyword list. The longest
//     matching window wins.
//  3. Matched windows are replaced by the keyword; everything else passes
//     through unchanged.
//
// ctx is currently unused but kept so LLM-assisted stages can be added
// behind the same interface.
func (c *Corrector) Correct(
	ctx context.Context,
	t types.Transcript,
	keywords []string,
) (*CorrectedTranscript, error) {
	_ = ctx
	result := &CorrectedTranscript{
		Original:    t,
		Corrected:   t.Text,
		Corrections: []Correction{},
	}

	if c.phonetic == nil || len(keywords) == 0 {
		return result, nil
	}

	tokens := strings.Fields(t.Text)
	if len(tokens) == 0 {
		return result, nil
	}

	maxKeywordWords := maxWordCount(keywords)

	var output []string
	i := 0
	for i < len(tokens) {
		// Clamp window size to remaining tokens.
		maxN := maxKeywordWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			keyword, conf, ok := c.phonetic.Match(window, keywords)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(keyword)...)
			// An exact (case-insensitive) hit only normalises casing and is
			// not recorded as a correction.
			if !strings.EqualFold(window, keyword) {
				result.Corrections = append(result.Corrections, Correction{
					Original:   window,
					Corrected:  keyword,
					Confidence: conf,
					Method:     "phonetic",
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	result.Corrected = strings.Join(output, " ")
	return result, nil
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any keyword. Returns 1 when keywords is empty.
func maxWordCount(keywords []string) int {
	max := 1
	for _, kw := range keywords {
		if n := len(strings.Fields(kw)); n > max {
			max = n
		}
	}
	return max
}
