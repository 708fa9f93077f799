package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oratiohq/oratio/internal/history"
	"github.com/oratiohq/oratio/internal/interview"
	"github.com/oratiohq/oratio/internal/observe"
)

// ErrSessionNotFound is returned by [Manager.Get] for unknown session IDs.
var ErrSessionNotFound = errors.New("server: session not found")

// SessionFactory creates a fresh interview session wired with the
// application's providers. The returned hub is the session's playback sink;
// it may be nil when the session has no audio output.
type SessionFactory func() (*interview.Session, *AudioHub, error)

// managed pairs a session with the metadata the manager tracks for it.
type managed struct {
	session *interview.Session
	hub     *AudioHub

	mu        sync.Mutex
	userID    string
	jobTitle  string
	startedAt time.Time

	// subscribers receive a fan-out copy of the session's event stream.
	subscribers map[chan interview.Event]struct{}
}

// Manager owns all live interview sessions. Each session gets a pump
// goroutine that is the sole consumer of its event channel; websocket
// clients subscribe to a fan-out copy.
//
// All exported methods are safe for concurrent use.
type Manager struct {
	factory SessionFactory
	archive history.Archive
	metrics *observe.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*managed
}

// NewManager creates a Manager. archive may be nil, in which case completed
// interviews are not persisted.
func NewManager(factory SessionFactory, archive history.Archive, metrics *observe.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory:  factory,
		archive:  archive,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*managed),
	}
}

// Create builds a new session and starts its event pump. Returns the session
// ID.
func (m *Manager) Create() (string, error) {
	s, hub, err := m.factory()
	if err != nil {
		return "", err
	}

	mg := &managed{
		session:     s,
		hub:         hub,
		subscribers: make(map[chan interview.Event]struct{}),
	}

	m.mu.Lock()
	m.sessions[s.ID] = mg
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	go m.pump(mg)

	m.logger.Info("session created", "session_id", s.ID)
	return s.ID, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*interview.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mg, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return mg.session, nil
}

// Hub returns the session's playback audio hub, which may be nil.
func (m *Manager) Hub(id string) (*AudioHub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mg, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return mg.hub, nil
}

// Start validates and starts the interview, recording the metadata the
// archive will need when the session completes.
func (m *Manager) Start(id string, p interview.Params) error {
	m.mu.Lock()
	mg, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	if err := mg.session.Start(p); err != nil {
		return err
	}

	mg.mu.Lock()
	mg.userID = p.UserID
	mg.jobTitle = p.JobTitle
	mg.startedAt = time.Now()
	mg.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsStarted.Add(context.Background(), 1)
	}
	return nil
}

// Close tears down the session and removes it from the manager.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	mg, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	mg.session.Close()
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	m.logger.Info("session closed", "session_id", mg.session.ID)
	return nil
}

// CloseAll tears down every live session. Used during server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		all = append(all, id)
	}
	m.mu.Unlock()

	for _, id := range all {
		_ = m.Close(id)
	}
}

// Subscribe returns a channel receiving the session's events from this point
// on, plus an unsubscribe function. The channel is buffered; events are
// dropped for subscribers that fall behind.
func (m *Manager) Subscribe(id string) (<-chan interview.Event, func(), error) {
	m.mu.Lock()
	mg, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil, ErrSessionNotFound
	}

	ch := make(chan interview.Event, 64)
	mg.mu.Lock()
	mg.subscribers[ch] = struct{}{}
	mg.mu.Unlock()

	unsubscribe := func() {
		mg.mu.Lock()
		if _, still := mg.subscribers[ch]; still {
			delete(mg.subscribers, ch)
			close(ch)
		}
		mg.mu.Unlock()
	}
	return ch, unsubscribe, nil
}

// pump is the sole consumer of the session's event channel. It fans events
// out to subscribers, records metrics, and archives the interview when the
// feedback report lands.
func (m *Manager) pump(mg *managed) {
	for ev := range mg.session.Events() {
		mg.mu.Lock()
		for ch := range mg.subscribers {
			select {
			case ch <- ev:
			default:
			}
		}
		mg.mu.Unlock()

		if ev.Kind == interview.EventReport && ev.Report != nil {
			m.onReport(mg, ev.Report)
		}
	}

	// Event channel closed: the session is gone. Drop remaining subscribers.
	mg.mu.Lock()
	for ch := range mg.subscribers {
		delete(mg.subscribers, ch)
		close(ch)
	}
	mg.mu.Unlock()
}

func (m *Manager) onReport(mg *managed, report *interview.FeedbackReport) {
	if m.metrics != nil {
		m.metrics.SessionsCompleted.Add(context.Background(), 1)
	}
	if m.archive == nil {
		return
	}

	mg.mu.Lock()
	rec := history.Record{
		ID:        mg.session.ID,
		UserID:    mg.userID,
		JobTitle:  mg.jobTitle,
		StartedAt: mg.startedAt,
		EndedAt:   time.Now(),
		Turns:     mg.session.Transcript(),
		Report:    report,
	}
	mg.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.archive.Save(ctx, rec); err != nil {
		m.logger.Error("interview not archived", "session_id", rec.ID, "error", err)
	}
}
