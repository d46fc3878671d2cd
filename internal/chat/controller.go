package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/varsilias/scholar-search/pkg/types"
)

// Store keeps one Conversation per visitor session.
type Store interface {
	Get(sessionID string) (*Conversation, bool)
	Put(sessionID string, c *Conversation) error
	Delete(sessionID string) (*Conversation, bool)
	Touch(sessionID string)
	// Idle returns the sessions untouched since before the cutoff.
	Idle(cutoff time.Time) []string
	// DeleteIfIdle removes the session unless it was touched since cutoff.
	DeleteIfIdle(sessionID string, cutoff time.Time) (*Conversation, bool)
	IDs() []string
}

// Controller owns every visitor's conversation and their lifetime.
type Controller struct {
	log      *slog.Logger
	eng      Engine
	sessions Store
	opts     []Option

	mu sync.Mutex
}

// NewController applies opts to every conversation it creates.
func NewController(log *slog.Logger, eng Engine, store Store, opts ...Option) *Controller {
	return &Controller{log: log, eng: eng, sessions: store, opts: opts}
}

// Conversation returns the session's conversation, creating a freshly seeded
// one on first use.
func (c *Controller) Conversation(sessionID string) (*Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.sessions.Get(sessionID); ok {
		c.sessions.Touch(sessionID)
		return conv, nil
	}
	conv := NewConversation(c.log.With("session_id", sessionID), c.eng, c.opts...)
	if err := c.sessions.Put(sessionID, conv); err != nil {
		conv.Close()
		return nil, err
	}
	c.log.Debug("chat: conversation started", "session_id", sessionID)
	return conv, nil
}

// Submit runs one turn against the session's conversation.
func (c *Controller) Submit(ctx context.Context, sessionID, text string) (Outcome, types.State, error) {
	conv, err := c.Conversation(sessionID)
	if err != nil {
		return OutcomeEmptyInputIgnored, types.State{}, err
	}
	outcome, err := conv.Submit(ctx, text)
	if err != nil {
		return outcome, types.State{}, err
	}
	c.log.Debug("chat: submit", "session_id", sessionID, "outcome", outcome.String())
	return outcome, conv.Snapshot(), nil
}

// Touch marks the session as active without submitting anything.
func (c *Controller) Touch(sessionID string) {
	c.sessions.Touch(sessionID)
}

// State returns the current snapshot without creating a session.
func (c *Controller) State(sessionID string) (types.State, bool) {
	conv, ok := c.sessions.Get(sessionID)
	if !ok {
		return types.State{}, false
	}
	return conv.Snapshot(), true
}

// End tears the session down, cancelling a pending reply.
func (c *Controller) End(sessionID string) bool {
	c.mu.Lock()
	conv, ok := c.sessions.Delete(sessionID)
	c.mu.Unlock()
	if !ok {
		return false
	}
	conv.Close()
	c.log.Debug("chat: conversation ended", "session_id", sessionID)
	return true
}

// Sweep ends every session idle for longer than maxIdle. A session touched
// after the idle scan survives.
func (c *Controller) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	n := 0
	for _, id := range c.sessions.Idle(cutoff) {
		c.mu.Lock()
		conv, ok := c.sessions.DeleteIfIdle(id, cutoff)
		c.mu.Unlock()
		if !ok {
			continue
		}
		conv.Close()
		c.log.Debug("chat: conversation evicted", "session_id", id)
		n++
	}
	if n > 0 {
		c.log.Info("chat: evicted idle sessions", "count", n)
	}
	return n
}

// Run sweeps idle sessions every interval until ctx is done, then ends all
// remaining sessions.
func (c *Controller) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Shutdown()
			return
		case <-ticker.C:
			c.Sweep(maxIdle)
		}
	}
}

// Shutdown ends every session.
func (c *Controller) Shutdown() {
	for _, id := range c.sessions.IDs() {
		c.End(id)
	}
}
