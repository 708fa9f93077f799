// Package app wires the Oratio subsystems into a running application.
//
// New connects storage, providers, and the interview engine; Run serves
// until the context is cancelled; Shutdown tears everything down in order.
// Inject test doubles via functional options. When an option is absent, New
// creates the real implementation from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oratiohq/oratio/internal/capture"
	"github.com/oratiohq/oratio/internal/config"
	"github.com/oratiohq/oratio/internal/health"
	"github.com/oratiohq/oratio/internal/history"
	historypg "github.com/oratiohq/oratio/internal/history/postgres"
	"github.com/oratiohq/oratio/internal/interview"
	"github.com/oratiohq/oratio/internal/observe"
	"github.com/oratiohq/oratio/internal/playback"
	"github.com/oratiohq/oratio/internal/resilience"
	"github.com/oratiohq/oratio/internal/server"
	"github.com/oratiohq/oratio/internal/transcript"
	"github.com/oratiohq/oratio/internal/transcript/phonetic"
	"github.com/oratiohq/oratio/internal/trial"
	trialpg "github.com/oratiohq/oratio/internal/trial/postgres"
	"github.com/oratiohq/oratio/pkg/provider/llm"
	"github.com/oratiohq/oratio/pkg/provider/stt"
	"github.com/oratiohq/oratio/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the slot
// is not configured. Populated by main.go via the config registry, with
// fallback wrapping already applied.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger

	pool      *pgxpool.Pool
	gate      trial.Gate
	archive   history.Archive
	turnSvc   interview.TurnService
	recorder  *capture.Recorder
	corrector transcript.Pipeline
	manager   *server.Manager
	server    *server.Server

	// closers run in reverse registration order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New]. Use these to inject test doubles.
type Option func(*App)

// WithTrialGate injects a trial gate instead of creating one from config.
func WithTrialGate(g trial.Gate) Option {
	return func(a *App) { a.gate = g }
}

// WithArchive injects an interview archive instead of creating one from
// config.
func WithArchive(ar history.Archive) Option {
	return func(a *App) { a.archive = ar }
}

// WithTurnService injects a turn service instead of building one from the
// LLM provider.
func WithTurnService(svc interview.TurnService) Option {
	return func(a *App) { a.turnSvc = svc }
}

// WithLogger sets the application logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New wires the application together. providers.LLM must be non-nil unless a
// turn service is injected.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStorage(ctx); err != nil {
		return nil, err
	}
	if err := a.initEngine(); err != nil {
		a.close()
		return nil, err
	}
	a.initServer()
	return a, nil
}

// initStorage connects PostgreSQL when a DSN is configured; otherwise the
// trial gate and the archive run in memory.
func (a *App) initStorage(ctx context.Context) error {
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		if a.gate == nil {
			a.gate = trial.NewMemoryGate()
		}
		if a.archive == nil {
			a.archive = history.NewMemoryArchive()
		}
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("app: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("app: ping postgres: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if a.gate == nil {
		gate, err := trialpg.NewGate(ctx, pool)
		if err != nil {
			return err
		}
		a.gate = gate
	}
	if a.archive == nil {
		archive, err := historypg.NewArchive(ctx, pool)
		if err != nil {
			return err
		}
		a.archive = archive
	}
	return nil
}

// initEngine builds the turn service, the speech adapters, and the
// transcript corrector.
func (a *App) initEngine() error {
	if a.turnSvc == nil {
		if a.providers.LLM == nil {
			return fmt.Errorf("app: no LLM provider configured and no turn service injected")
		}
		svc, err := interview.NewLLMTurnService(a.providers.LLM)
		if err != nil {
			return err
		}
		a.turnSvc = resilience.NewTurnBreaker(svc, resilience.BreakerConfig{Name: "turn-service"})
	}

	if a.providers.STT != nil {
		recorder, err := capture.NewRecorder(a.providers.STT,
			capture.WithMetrics(observe.DefaultMetrics()))
		if err != nil {
			return err
		}
		a.recorder = recorder
	}

	a.corrector = transcript.NewCorrector(
		transcript.WithPhoneticMatcher(phonetic.New()),
	)
	return nil
}

// initServer assembles the session factory, the manager, and the HTTP
// server.
func (a *App) initServer() {
	metrics := observe.DefaultMetrics()

	factory := func() (*interview.Session, *server.AudioHub, error) {
		sessionOpts := []interview.SessionOption{
			interview.WithTrialGate(a.gate),
			interview.WithCorrector(a.corrector),
			interview.WithMetrics(metrics),
			interview.WithLogger(a.logger),
		}
		if a.cfg.Interview.QuestionBudget > 0 {
			sessionOpts = append(sessionOpts, interview.WithQuestionBudget(a.cfg.Interview.QuestionBudget))
		}
		if a.cfg.Interview.GraceDelay > 0 {
			sessionOpts = append(sessionOpts, interview.WithGraceDelay(a.cfg.Interview.GraceDelay.Std()))
		}
		if a.recorder != nil {
			sessionOpts = append(sessionOpts, interview.WithRecorder(a.recorder))
		}

		var hub *server.AudioHub
		if a.providers.TTS != nil {
			hub = server.NewAudioHub()
			player, err := playback.New(a.providers.TTS, hub,
				playback.WithVoice(tts.Voice{ID: a.cfg.Interview.VoiceID}),
				playback.WithMetrics(metrics))
			if err != nil {
				return nil, nil, err
			}
			sessionOpts = append(sessionOpts, interview.WithPlayer(player))
		}

		s, err := interview.NewSession(a.turnSvc, sessionOpts...)
		if err != nil {
			return nil, nil, err
		}
		return s, hub, nil
	}

	a.manager = server.NewManager(factory, a.archive, metrics, a.logger)

	var checkers []health.Checker
	if a.pool != nil {
		pool := a.pool
		checkers = append(checkers, health.Checker{
			Name:  "database",
			Check: func(ctx context.Context) error { return pool.Ping(ctx) },
		})
	}

	a.server = server.New(a.cfg.Server, a.manager,
		server.WithArchive(a.archive),
		server.WithHealth(health.New(checkers...)),
		server.WithMetrics(metrics),
		server.WithLogger(a.logger),
	)
}

// Manager exposes the session manager, mainly for tests.
func (a *App) Manager() *server.Manager { return a.manager }

// Run serves HTTP until ctx is cancelled, then shuts the application down.
func (a *App) Run(ctx context.Context) error {
	err := a.server.Run(ctx)
	a.Shutdown()
	return err
}

// Shutdown releases all resources. Safe to call more than once.
func (a *App) Shutdown() {
	a.stopOnce.Do(a.close)
}

func (a *App) close() {
	if a.manager != nil {
		a.manager.CloseAll()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("shutdown step failed", "error", err)
		}
	}
}
