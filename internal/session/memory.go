package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/varsilias/scholar-search/internal/chat"
	"github.com/varsilias/scholar-search/pkg/types"
)

var ErrEmptySessionID = errors.New("empty session id")

// MemoryStore keeps conversations in process memory; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]*chat.Conversation
	updated map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]*chat.Conversation),
		updated: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(sessionID string) (*chat.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[sessionID]
	return c, ok
}

func (s *MemoryStore) Put(sessionID string, c *chat.Conversation) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = c
	s.updated[sessionID] = s.now()
	return nil
}

func (s *MemoryStore) Delete(sessionID string) (*chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[sessionID]
	delete(s.data, sessionID)
	delete(s.updated, sessionID)
	return c, ok
}

// Touch marks a session as active.
func (s *MemoryStore) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[sessionID]; ok {
		s.updated[sessionID] = s.now()
	}
}

func (s *MemoryStore) Idle(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, at := range s.updated {
		if at.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

// DeleteIfIdle removes the session only if it has not been touched since
// cutoff.
func (s *MemoryStore) DeleteIfIdle(sessionID string, cutoff time.Time) (*chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.updated[sessionID]
	if !ok || !at.Before(cutoff) {
		return nil, false
	}
	c := s.data[sessionID]
	delete(s.data, sessionID)
	delete(s.updated, sessionID)
	return c, true
}

func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	return out
}

// Summary is a lightweight listing entry.
type Summary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages int       `json:"messages"`
	Updated  time.Time `json:"updated"`
}

func (s *MemoryStore) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.data))
	for id, c := range s.data {
		st := c.Snapshot()
		out = append(out, Summary{ID: id, Title: titleFrom(st.Messages), Messages: len(st.Messages), Updated: s.updated[id]})
	}
	return out
}

func titleFrom(msgs []types.Message) string {
	for _, m := range msgs {
		if !m.IsBot {
			return clip(words(m.Text), 48)
		}
	}
	return ""
}

func words(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	parts := strings.Fields(s)
	if len(parts) <= 12 {
		return strings.Join(parts, " ")
	}
	return strings.Join(parts[:12], " ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
