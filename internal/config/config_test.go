package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oratiohq/oratio/pkg/provider/llm"
	llmmock "github.com/oratiohq/oratio/pkg/provider/llm/mock"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  llm_fallbacks:
    - name: gemini
      api_key: g-test
      model: gemini-2.0-flash
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-2
  tts:
    name: elevenlabs
    api_key: el-test
interview:
  question_budget: 5
  grace_delay: 3s
  voice_id: rachel
  language: en-US
storage:
  postgres_dsn: "postgres://localhost:5432/oratio"
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("llm entry = %+v", cfg.Providers.LLM)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "gemini" {
		t.Errorf("llm_fallbacks = %+v", cfg.Providers.LLMFallbacks)
	}
	if cfg.Interview.QuestionBudget != 5 {
		t.Errorf("question_budget = %d", cfg.Interview.QuestionBudget)
	}
	if cfg.Interview.GraceDelay.Std() != 3*time.Second {
		t.Errorf("grace_delay = %v", cfg.Interview.GraceDelay)
	}
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("ORATIO_TEST_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := strings.Replace(validYAML, "api_key: sk-test", "api_key: ${ORATIO_TEST_KEY}", 1)
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Providers.LLM.APIKey; got != "sk-from-env" {
		t.Errorf("APIKey = %q, want value from environment", got)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
server:
  listen_addr: ":8080"
  not_a_field: true
providers:
  llm:
    name: openai
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			LogLevel: "loud",
			TLS:      &TLSConfig{CertFile: "cert.pem"},
		},
		Interview: InterviewConfig{
			QuestionBudget: -1,
			GraceDelay:     Duration(-time.Second),
		},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"log_level",
		"cert_file and key_file",
		"providers.llm.name is required",
		"question_budget",
		"grace_delay",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidate_MinimalConfig(t *testing.T) {
	cfg := &Config{
		Providers: ProvidersConfig{LLM: ProviderEntry{Name: "openai"}},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("minimal config rejected: %v", err)
	}
}

func TestRegistry_CreateAndLookup(t *testing.T) {
	r := NewRegistry()
	r.RegisterLLM("mock", func(entry ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	p, err := r.CreateLLM(ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM returned nil provider")
	}

	if _, err := r.CreateLLM(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateSTT(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateTTS(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("bad credentials")
	r.RegisterLLM("broken", func(ProviderEntry) (llm.Provider, error) {
		return nil, boom
	})

	if _, err := r.CreateLLM(ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("got %v, want factory error", err)
	}
}
