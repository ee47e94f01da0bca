package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/cartengine/internal/event"
	"github.com/utafrali/cartengine/internal/repository"
	"github.com/utafrali/cartengine/internal/store"
)

// Engine is one live cart engine: the store owning the in-memory state plus
// the binding keeping it synchronized with durable storage.
type Engine struct {
	Store   *store.Store
	Binding *Binding
}

type entry struct {
	engine   *Engine
	lastSeen time.Time
}

// Manager keeps one engine per hosting UI session, creating it on first use
// and discarding it (in-memory only, the persisted slot survives) once the
// session has been idle longer than the configured TTL.
type Manager struct {
	repo    repository.CartRepository
	events  *event.Producer
	logger  *slog.Logger
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*entry

	now func() time.Time
}

// NewManager creates a session manager.
func NewManager(repo repository.CartRepository, events *event.Producer, logger *slog.Logger, idleTTL time.Duration) *Manager {
	return &Manager{
		repo:     repo,
		events:   events,
		logger:   logger,
		idleTTL:  idleTTL,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Engine returns the engine for the given session ID, creating an empty one
// on first use. Every call refreshes the session's idle deadline.
func (m *Manager) Engine(sessionID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[sessionID]; ok {
		e.lastSeen = m.now()
		return e.engine
	}

	st := store.New()
	eng := &Engine{
		Store:   st,
		Binding: NewBinding(st, m.repo, m.events, m.logger),
	}
	m.sessions[sessionID] = &entry{engine: eng, lastSeen: m.now()}

	m.logger.Debug("session engine created",
		slog.String("session_id", sessionID),
	)
	return eng
}

// Len returns the number of live session engines.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep discards engines idle longer than the TTL and returns how many were
// evicted.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idleTTL)
	var evicted int
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}

	if evicted > 0 {
		m.logger.Info("evicted idle session engines",
			slog.Int("count", evicted),
			slog.Int("remaining", len(m.sessions)),
		)
	}
	return evicted
}

// StartJanitor runs Sweep on the given interval until the context is
// canceled.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}
