package transcript

import (
	"sort"
	"strings"
	"unicode"

	"github.com/oratiohq/oratio/pkg/types"
)

// defaultKeywordLimit caps how many résumé keywords are extracted. Deepgram
// accepts a bounded number of keyword boosts per stream, and a short list
// keeps the phonetic matcher from over-correcting common words.
const defaultKeywordLimit = 50

// sttKeywordBoost is the intensifier applied to résumé keywords when they are
// passed to the speech recognition backend.
const sttKeywordBoost = 2.0

// stopwords are capitalised words that routinely start sentences or section
// headers in résumés and carry no boosting value.
var stopwords = map[string]struct{}{
	"i": {}, "a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"at": {}, "in": {}, "on": {}, "of": {}, "to": {}, "for": {}, "with": {},
	"as": {}, "by": {}, "from": {}, "my": {}, "we": {}, "our": {},
	"summary": {}, "experience": {}, "education": {}, "skills": {},
	"projects": {}, "certifications": {}, "references": {}, "objective": {},
	"january": {}, "february": {}, "march": {}, "april": {}, "may": {},
	"june": {}, "july": {}, "august": {}, "september": {}, "october": {},
	"november": {}, "december": {}, "present": {},
}

// ExtractKeywords pulls proper nouns and technology names out of résumé text
// for STT keyword boosting and phonetic correction.
//
// The heuristic keeps a token when it is capitalised mid-sentence (employer
// and product names), contains interior capitals or digits ("PostgreSQL",
// "EC2"), or carries technology punctuation ("C++", "Node.js", ".NET").
// Consecutive capitalised tokens are merged into one multi-word keyword
// ("Goldman Sachs"). Results are deduplicated case-insensitively, ordered by
// frequency, and capped at limit (defaultKeywordLimit when limit <= 0).
func ExtractKeywords(resume string, limit int) []string {
	if limit <= 0 {
		limit = defaultKeywordLimit
	}

	counts := make(map[string]int)
	canonical := make(map[string]string)

	for _, line := range strings.Split(resume, "\n") {
		tokens := strings.Fields(line)
		i := 0
		for i < len(tokens) {
			tok := trimToken(tokens[i])
			if tok == "" {
				i++
				continue
			}

			if isCapitalised(tok) && !isStopword(tok) {
				// Merge a run of capitalised tokens into one keyword. A
				// clause boundary (trailing comma, semicolon, colon, or
				// period on the raw token) ends the run.
				phrase := []string{tok}
				j := i + 1
				for j < len(tokens) && !endsClause(tokens[j-1]) {
					next := trimToken(tokens[j])
					if next == "" || !isCapitalised(next) || isStopword(next) {
						break
					}
					phrase = append(phrase, next)
					j++
				}
				// A lone capitalised word at the start of a line is usually
				// just sentence casing, not a proper noun.
				if !(i == 0 && len(phrase) == 1 && !looksTechnical(tok)) {
					record(counts, canonical, strings.Join(phrase, " "))
				}
				i = j
				continue
			}

			if looksTechnical(tok) && !isStopword(tok) {
				record(counts, canonical, tok)
			}
			i++
		}
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if counts[keys[a]] != counts[keys[b]] {
			return counts[keys[a]] > counts[keys[b]]
		}
		return keys[a] < keys[b]
	})

	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = canonical[k]
	}
	return out
}

// KeywordBoosts converts extracted keywords into the boost entries consumed
// by the speech recognition stream configuration.
func KeywordBoosts(keywords []string) []types.KeywordBoost {
	boosts := make([]types.KeywordBoost, 0, len(keywords))
	for _, kw := range keywords {
		boosts = append(boosts, types.KeywordBoost{
			Keyword: kw,
			Boost:   sttKeywordBoost,
		})
	}
	return boosts
}

// record tallies a keyword, keeping the first-seen casing as canonical.
func record(counts map[string]int, canonical map[string]string, kw string) {
	key := strings.ToLower(kw)
	if _, ok := canonical[key]; !ok {
		canonical[key] = kw
	}
	counts[key]++
}

// trimToken strips surrounding punctuation while preserving technology
// punctuation: trailing '+' and '#' ("C++", "C#"), leading '.' (".NET"),
// and interior '.' ("Node.js").
func trimToken(tok string) string {
	tok = strings.TrimLeftFunc(tok, func(r rune) bool {
		return unicode.IsPunct(r) && r != '.' && r != '#' && r != '+'
	})
	return strings.TrimRightFunc(tok, func(r rune) bool {
		return unicode.IsPunct(r) && r != '+' && r != '#'
	})
}

// endsClause reports whether the raw (untrimmed) token terminates a clause.
func endsClause(raw string) bool {
	switch {
	case strings.HasSuffix(raw, ","), strings.HasSuffix(raw, ";"),
		strings.HasSuffix(raw, ":"), strings.HasSuffix(raw, "."):
		return true
	}
	return false
}

// isCapitalised reports whether the token starts with an uppercase letter.
func isCapitalised(tok string) bool {
	for _, r := range tok {
		return unicode.IsUpper(r)
	}
	return false
}

// isStopword reports whether the token is a common capitalised filler word.
func isStopword(tok string) bool {
	_, ok := stopwords[strings.ToLower(tok)]
	return ok
}

// looksTechnical reports whether the token resembles a technology name:
// interior capitals or digits ("PostgreSQL", "EC2"), or technology
// punctuation ("C++", "C#", "Node.js", ".NET").
func looksTechnical(tok string) bool {
	if strings.ContainsAny(tok, "+#") {
		return true
	}
	if strings.Contains(strings.Trim(tok, "."), ".") {
		return true
	}
	for i, r := range tok {
		if i > 0 && (unicode.IsUpper(r) || unicode.IsDigit(r)) {
			return true
		}
	}
	return false
}
