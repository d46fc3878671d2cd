package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/varsilias/scholar-search/pkg/types"
)

// Greeting is the bot message every conversation starts with.
const Greeting = "How can I help you find scholarships today? Here are some common questions:"

// DefaultReplyDelay is the simulated typing time before an answer appears.
const DefaultReplyDelay = 1500 * time.Millisecond

// ErrConversationClosed is returned by Submit after Close.
var ErrConversationClosed = errors.New("conversation closed")

// Outcome names what a submission did to the conversation.
type Outcome int

const (
	OutcomeEmptyInputIgnored Outcome = iota
	OutcomeNoMatchFound
	OutcomeReplyScheduled
	OutcomeFallbackScheduled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmptyInputIgnored:
		return "empty_input_ignored"
	case OutcomeNoMatchFound:
		return "no_match_found"
	case OutcomeReplyScheduled:
		return "reply_scheduled"
	case OutcomeFallbackScheduled:
		return "fallback_scheduled"
	default:
		return "unknown"
	}
}

// Replied reports whether a bot message will follow the submission.
func (o Outcome) Replied() bool {
	return o == OutcomeReplyScheduled || o == OutcomeFallbackScheduled
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithReplyDelay sets the simulated typing time. Zero delivers replies on the
// next timer tick.
func WithReplyDelay(d time.Duration) Option {
	return func(c *Conversation) { c.delay = d }
}

// WithFallbackReply answers unrecognised questions with text instead of
// staying silent.
func WithFallbackReply(text string) Option {
	return func(c *Conversation) { c.fallback = text }
}

// Conversation holds one visitor's transcript. Submissions are accepted at any
// time; replies are delivered one after another in submission order, so at
// most one simulated delay is running.
type Conversation struct {
	log      *slog.Logger
	eng      Engine
	delay    time.Duration
	fallback string

	mu         sync.Mutex
	transcript []types.Message
	queue      []string
	timer      *time.Timer
	closed     bool
	subs       map[chan struct{}]struct{}
}

// NewConversation returns a conversation seeded with the greeting.
func NewConversation(log *slog.Logger, eng Engine, opts ...Option) *Conversation {
	c := &Conversation{
		log:   log,
		eng:   eng,
		delay: DefaultReplyDelay,
		subs:  make(map[chan struct{}]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.transcript = []types.Message{newMessage(Greeting, true)}
	return c
}

// Submit appends the visitor's message and, when the engine knows the
// question, schedules the answer.
func (c *Conversation) Submit(ctx context.Context, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return OutcomeEmptyInputIgnored, nil
	}

	answer, ok := c.eng.Answer(ctx, text)
	outcome := OutcomeReplyScheduled
	if !ok {
		outcome = OutcomeNoMatchFound
		if c.fallback != "" {
			answer, outcome = c.fallback, OutcomeFallbackScheduled
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return outcome, ErrConversationClosed
	}
	// The user message and its queued reply go in under one lock so replies
	// keep submission order.
	c.transcript = append(c.transcript, newMessage(text, false))
	if !ok {
		c.log.Info("chat: no match found", "question", text, "fallback", outcome == OutcomeFallbackScheduled)
	}
	if outcome.Replied() {
		c.queue = append(c.queue, answer)
		if c.timer == nil {
			c.timer = time.AfterFunc(c.delay, c.deliver)
		}
	}
	c.notifyLocked()
	return outcome, nil
}

func (c *Conversation) deliver() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.queue) == 0 {
		return
	}
	c.transcript = append(c.transcript, newMessage(c.queue[0], true))
	c.queue = c.queue[1:]
	if len(c.queue) > 0 {
		c.timer = time.AfterFunc(c.delay, c.deliver)
	} else {
		c.timer = nil
	}
	c.notifyLocked()
}

// Snapshot copies the transcript and the responding flag.
func (c *Conversation) Snapshot() types.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]types.Message, len(c.transcript))
	copy(msgs, c.transcript)
	return types.State{Messages: msgs, Responding: c.timer != nil}
}

// Responding reports whether a reply is pending.
func (c *Conversation) Responding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Subscribe returns a channel that receives a signal after every change. The
// channel is closed when the conversation is closed.
func (c *Conversation) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}

// Wait blocks until no reply is pending.
func (c *Conversation) Wait(ctx context.Context) error {
	ch, cancel := c.Subscribe()
	defer cancel()
	for {
		c.mu.Lock()
		idle, closed := c.timer == nil, c.closed
		c.mu.Unlock()
		if closed {
			return ErrConversationClosed
		}
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Close cancels any pending reply. The transcript stays readable.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if n := len(c.queue); n > 0 {
		c.log.Debug("chat: dropped pending replies", "count", n)
	}
	c.queue = nil
	for ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}

func (c *Conversation) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conversation) notifyLocked() {
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func newMessage(text string, bot bool) types.Message {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return types.Message{ID: id.String(), Text: text, IsBot: bot, CreatedAt: time.Now().UTC()}
}
