package flow

import (
	"time"

	"storyteller/internal/llm"
	"storyteller/internal/metrics"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Manager хранит сессии в TTL-кэше. При вытеснении сессии её документ удаляется.
type Manager struct {
	sessions  *cache.Cache
	docs      Documents
	completer llm.Completer
	stories   Storyteller
}

func NewManager(ttl time.Duration, docs Documents, completer llm.Completer, stories Storyteller) *Manager {
	sessions := cache.New(ttl, ttl/2)
	sessions.OnEvicted(func(id string, v interface{}) {
		metrics.ActiveSessions.Dec()
		if s, ok := v.(*Session); ok {
			logrus.WithField("session", id).Info("⌛ Session closed")
			s.Close()
		}
	})

	return &Manager{
		sessions:  sessions,
		docs:      docs,
		completer: completer,
		stories:   stories,
	}
}

func (m *Manager) Create() *Session {
	s := NewSession(uuid.NewString(), m.docs, m.completer, m.stories)
	m.sessions.SetDefault(s.ID, s)
	metrics.ActiveSessions.Inc()
	s.log.Info("🆕 Session created")
	return s
}

// Get возвращает сессию и продлевает её TTL
func (m *Manager) Get(id string) (*Session, error) {
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s, ok := v.(*Session)
	if !ok {
		return nil, ErrSessionNotFound
	}
	// Replace не вернёт в кэш сессию, которую janitor успел вытеснить и закрыть
	if err := m.sessions.Replace(id, s, cache.DefaultExpiration); err != nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id string) error {
	if _, ok := m.sessions.Get(id); !ok {
		return ErrSessionNotFound
	}
	m.sessions.Delete(id)
	return nil
}

func (m *Manager) Count() int {
	return m.sessions.ItemCount()
}

// Close закрывает все сессии вместе с их документами
func (m *Manager) Close() int {
	items := m.sessions.Items()
	for id := range items {
		m.sessions.Delete(id)
	}
	return len(items)
}
