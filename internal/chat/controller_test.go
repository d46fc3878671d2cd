package chat_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/varsilias/scholar-search/internal/chat"
	"github.com/varsilias/scholar-search/internal/session"
)

func newController(delay time.Duration) (*chat.Controller, *session.MemoryStore) {
	store := session.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return chat.NewController(log, chat.DefaultKnowledge(), store, chat.WithReplyDelay(delay)), store
}

func TestControllerSubmitCreatesSession(t *testing.T) {
	ctrl, _ := newController(5 * time.Millisecond)
	ctx := context.Background()

	if _, ok := ctrl.State("visitor"); ok {
		t.Fatal("session should not exist yet")
	}

	outcome, st, err := ctrl.Submit(ctx, "visitor", "What are the best scholarship programs in Europe?")
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if outcome != chat.OutcomeReplyScheduled {
		t.Fatalf("unexpected outcome %s", outcome)
	}
	if len(st.Messages) != 2 || !st.Responding {
		t.Fatalf("unexpected state %+v", st)
	}

	conv, err := ctrl.Conversation("visitor")
	if err != nil {
		t.Fatalf("Conversation err: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := conv.Wait(waitCtx); err != nil {
		t.Fatalf("Wait err: %v", err)
	}

	got, ok := ctrl.State("visitor")
	if !ok || len(got.Messages) != 3 {
		t.Fatalf("expected reply in transcript, got %+v", got)
	}
}

func TestControllerSessionsAreIsolated(t *testing.T) {
	ctrl, _ := newController(time.Millisecond)
	ctx := context.Background()

	if _, _, err := ctrl.Submit(ctx, "a", "hello"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	st, _, err := ctrl.Submit(ctx, "b", "   ")
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if st != chat.OutcomeEmptyInputIgnored {
		t.Fatalf("unexpected outcome %s", st)
	}

	a, _ := ctrl.State("a")
	b, _ := ctrl.State("b")
	if len(a.Messages) != 2 || len(b.Messages) != 1 {
		t.Fatalf("sessions leaked into each other: a=%d b=%d", len(a.Messages), len(b.Messages))
	}
}

func TestControllerEndCancelsPendingReply(t *testing.T) {
	ctrl, store := newController(40 * time.Millisecond)
	ctx := context.Background()

	if _, _, err := ctrl.Submit(ctx, "s", "How do I apply for scholarships in Europe?"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	conv, _ := store.Get("s")

	if !ctrl.End("s") {
		t.Fatal("expected End to report an existing session")
	}
	if ctrl.End("s") {
		t.Fatal("second End should report missing session")
	}
	if !conv.Closed() {
		t.Fatal("conversation should be closed")
	}

	time.Sleep(80 * time.Millisecond)
	if n := len(conv.Snapshot().Messages); n != 2 {
		t.Fatalf("reply delivered after teardown: %d messages", n)
	}
	if _, ok := ctrl.State("s"); ok {
		t.Fatal("session should be gone")
	}
}

func TestControllerSweepEvictsIdle(t *testing.T) {
	ctrl, _ := newController(time.Millisecond)

	if _, err := ctrl.Conversation("old"); err != nil {
		t.Fatalf("Conversation err: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := ctrl.Conversation("fresh"); err != nil {
		t.Fatalf("Conversation err: %v", err)
	}

	if n := ctrl.Sweep(20 * time.Millisecond); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := ctrl.State("old"); ok {
		t.Fatal("idle session should be evicted")
	}
	if _, ok := ctrl.State("fresh"); !ok {
		t.Fatal("active session should survive")
	}
}

func TestControllerTouchKeepsSessionAlive(t *testing.T) {
	ctrl, _ := newController(time.Millisecond)
	if _, err := ctrl.Conversation("live"); err != nil {
		t.Fatalf("Conversation err: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	ctrl.Touch("live")

	if n := ctrl.Sweep(20 * time.Millisecond); n != 0 {
		t.Fatalf("expected no eviction, got %d", n)
	}
	if _, ok := ctrl.State("live"); !ok {
		t.Fatal("touched session should survive")
	}
}

func TestControllerRunShutsDownOnCancel(t *testing.T) {
	ctrl, store := newController(time.Millisecond)
	if _, err := ctrl.Conversation("x"); err != nil {
		t.Fatalf("Conversation err: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx, time.Hour, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(store.IDs()) != 0 {
		t.Fatal("expected all sessions ended")
	}
}

func TestControllerRejectsEmptySessionID(t *testing.T) {
	ctrl, _ := newController(time.Millisecond)
	if _, err := ctrl.Conversation(""); err == nil {
		t.Fatal("expected error for empty session id")
	}
}
