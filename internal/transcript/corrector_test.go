package transcript_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/oratiohq/oratio/internal/transcript"
	"github.com/oratiohq/oratio/internal/transcript/phonetic"
	"github.com/oratiohq/oratio/pkg/types"
)

func makeTranscript(text string) types.Transcript {
	return types.Transcript{
		Text:       text,
		IsFinal:    true,
		Confidence: 0.85,
		Timestamp:  time.Second,
		Duration:   3 * time.Second,
	}
}

func TestCorrector_PhoneticMultiWord(t *testing.T) {
	t.Parallel()

	corrector := transcript.NewCorrector(
		transcript.WithPhoneticMatcher(phonetic.New()),
	)

	tr := makeTranscript("I deployed services at goldman sax using terraform.")
	result, err := corrector.Correct(context.Background(), tr, []string{"Goldman Sachs", "Terraform"})
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}

	if result.Original.Text != tr.Text {
		t.Errorf("Original.Text=%q, want %q", result.Original.Text, tr.Text)
	}
	if result.Corrections == nil {
		t.Error("Corrections is nil, want non-nil (even if empty)")
	}
	if !strings.Contains(result.Corrected, "Goldman Sachs") {
		t.Errorf("Corrected=%q, want it to contain %q", result.Corrected, "Goldman Sachs")
	}
	for _, c := range result.Corrections {
		if c.Method != "phonetic" {
			t.Errorf("expected phonetic correction, got method=%q", c.Method)
		}
	}
}

func TestCorrector_NoMatcherReturnsUnchanged(t *testing.T) {
	t.Parallel()

	corrector := transcript.NewCorrector()

	tr := makeTranscript("I have six years of backend experience.")
	result, err := corrector.Correct(context.Background(), tr, []string{"PostgreSQL"})
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if result.Corrected != tr.Text {
		t.Errorf("Corrected=%q, want unchanged text %q", result.Corrected, tr.Text)
	}
	if len(result.Corrections) != 0 {
		t.Errorf("expected no corrections, got %d", len(result.Corrections))
	}
}

func TestCorrector_NoKeywordsReturnsUnchanged(t *testing.T) {
	t.Parallel()

	corrector := transcript.NewCorrector(
		transcript.WithPhoneticMatcher(phonetic.New()),
	)

	tr := makeTranscript("tell me about yourself")
	result, err := corrector.Correct(context.Background(), tr, nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if result.Corrected != tr.Text {
		t.Errorf("Corrected=%q, want unchanged text %q", result.Corrected, tr.Text)
	}
}

func TestCorrector_ExactHitNotRecorded(t *testing.T) {
	t.Parallel()

	corrector := transcript.NewCorrector(
		transcript.WithPhoneticMatcher(phonetic.New()),
	)

	tr := makeTranscript("I used Terraform daily.")
	result, err := corrector.Correct(context.Background(), tr, []string{"Terraform"})
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	for _, c := range result.Corrections {
		if strings.EqualFold(c.Original, c.Corrected) {
			t.Errorf("identical substitution recorded: %q -> %q", c.Original, c.Corrected)
		}
	}
}

func TestPhoneticMatcher_Basics(t *testing.T) {
	t.Parallel()

	m := phonetic.New()

	corrected, conf, matched := m.Match("cooper netties", []string{"Kubernetes", "Kafka"})
	if !matched {
		t.Fatal("expected phonetic match for 'cooper netties'")
	}
	if corrected != "Kubernetes" {
		t.Errorf("corrected=%q, want %q", corrected, "Kubernetes")
	}
	if conf <= 0 || conf > 1 {
		t.Errorf("confidence=%v, want in (0, 1]", conf)
	}

	corrected, conf, matched = m.Match("banana", []string{"Kubernetes"})
	if matched {
		t.Errorf("unexpected match: %q (conf=%v)", corrected, conf)
	}
	if corrected != "banana" || conf != 0 {
		t.Errorf("unmatched word must pass through unchanged, got %q conf=%v", corrected, conf)
	}

	if _, _, matched := m.Match("  ", []string{"Kubernetes"}); matched {
		t.Error("blank input must not match")
	}
	if _, _, matched := m.Match("kafka", nil); matched {
		t.Error("empty keyword list must not match")
	}
}

func TestExtractKeywords(t *testing.T) {
	t.Parallel()

	resume := `Summary
Senior backend engineer with experience at Goldman Sachs and Stripe.
Built event pipelines on Kafka and PostgreSQL, deployed with Terraform.
Experience
Software Engineer at Stripe working on payments infrastructure in Go.
Skills
Go, PostgreSQL, Kafka, Node.js, C++`

	keywords := transcript.ExtractKeywords(resume, 0)
	if len(keywords) == 0 {
		t.Fatal("expected keywords, got none")
	}

	want := []string{"Goldman Sachs", "Stripe", "Kafka", "PostgreSQL", "Node.js", "C++"}
	got := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		got[kw] = struct{}{}
	}
	for _, w := range want {
		if _, ok := got[w]; !ok {
			t.Errorf("expected keyword %q in %v", w, keywords)
		}
	}

	// Section headers must not be treated as keywords.
	for _, banned := range []string{"Summary", "Experience", "Skills"} {
		if _, ok := got[banned]; ok {
			t.Errorf("section header %q leaked into keywords", banned)
		}
	}
}

func TestExtractKeywords_Limit(t *testing.T) {
	t.Parallel()

	resume := "Worked with Alpha Beta, Gamma, Delta, Epsilon and Zeta systems."
	keywords := transcript.ExtractKeywords(resume, 2)
	if len(keywords) > 2 {
		t.Errorf("expected at most 2 keywords, got %d: %v", len(keywords), keywords)
	}
}

func TestKeywordBoosts(t *testing.T) {
	t.Parallel()

	boosts := transcript.KeywordBoosts([]string{"Kafka", "Stripe"})
	if len(boosts) != 2 {
		t.Fatalf("expected 2 boosts, got %d", len(boosts))
	}
	for _, b := range boosts {
		if b.Boost <= 1 {
			t.Errorf("boost for %q is %v, want > 1", b.Keyword, b.Boost)
		}
	}
}
