// Package session tracks conversation sessions and expires idle ones.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// EndReason says why a session stopped.
type EndReason string

const (
	EndedByClient EndReason = "client"
	EndedIdle     EndReason = "idle"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID             string    `json:"session_id"`
	Persona        string    `json:"persona"`
	Status         Status    `json:"status"`
	Turns          int       `json:"turns"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndedAt        time.Time `json:"ended_at,omitzero"`
}

// CreateResponse is returned to clients opening a session.
type CreateResponse struct {
	Session
	InactivityTTLMS int64 `json:"inactivity_ttl_ms"`
}

// EndHook observes a session leaving the active state.
type EndHook func(s Session, reason EndReason)

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	now               func() time.Time
	onEnd             EndHook
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

// SetEndHook registers fn for both explicit ends and idle expiry. It runs
// outside the manager lock.
func (m *Manager) SetEndHook(fn EndHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = fn
}

func (m *Manager) Create(persona string) Session {
	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		Persona:        persona,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return *s
}

// Ensure returns the active session with id, registering client-chosen ids
// on first sight. An ended session is reopened.
func (m *Manager) Ensure(id, persona string) Session {
	id = strings.TrimSpace(id)
	if id == "" {
		return m.Create(persona)
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id, Persona: persona, StartedAt: now}
		m.sessions[id] = s
	}
	s.Status = StatusActive
	s.EndedAt = time.Time{}
	s.LastActivityAt = now
	return *s
}

func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = m.now()
	return nil
}

// RecordTurn bumps the turn counter and activity time.
func (m *Manager) RecordTurn(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Turns++
	s.LastActivityAt = m.now()
	return nil
}

func (m *Manager) End(id string) (Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return Session{}, ErrNotFound
	}
	wasActive := s.Status == StatusActive
	m.endLocked(s)
	out := *s
	hook := m.onEnd
	m.mu.Unlock()

	if wasActive && hook != nil {
		hook(out, EndedByClient)
	}
	return out, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			n++
		}
	}
	return n
}

// StartJanitor expires idle sessions every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
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

// Sweep ends sessions idle past the timeout and forgets sessions that have
// been ended for longer than that. It returns the sessions it expired.
func (m *Manager) Sweep() []Session {
	now := m.now()
	var expired []Session

	m.mu.Lock()
	for id, s := range m.sessions {
		switch {
		case s.Status == StatusEnded && now.Sub(s.EndedAt) >= m.inactivityTimeout:
			delete(m.sessions, id)
		case s.Status == StatusActive && now.Sub(s.LastActivityAt) >= m.inactivityTimeout:
			m.endLocked(s)
			expired = append(expired, *s)
		}
	}
	hook := m.onEnd
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s, EndedIdle)
		}
	}
	return expired
}

func (m *Manager) endLocked(s *Session) {
	if s.Status == StatusEnded {
		return
	}
	now := m.now()
	s.Status = StatusEnded
	s.LastActivityAt = now
	s.EndedAt = now
}
