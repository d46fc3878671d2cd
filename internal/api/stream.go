package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/varsilias/scholar-search/internal/chat"
	"github.com/varsilias/scholar-search/internal/logging"
	"github.com/varsilias/scholar-search/pkg/types"
	"github.com/varsilias/scholar-search/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096

	// keepAlive is how often an open event stream marks its session active.
	keepAlive = 15 * time.Second
)

// Streams pushes conversation snapshots to live clients over SSE or WebSocket.
type Streams struct {
	log       *slog.Logger
	chat      *chat.Controller
	upgrader  websocket.Upgrader
	keepAlive time.Duration
}

func NewStreams(log *slog.Logger, c *chat.Controller) *Streams {
	return &Streams{
		log:  log,
		chat: c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		keepAlive: keepAlive,
	}
}

// Events GET /api/chat/{sessionID}/events streams a "state" event after every
// change. The stream ends when the client leaves or the session is ended.
func (s *Streams) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	conv, err := s.chat.Conversation(sessionID)
	if err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logging.FromContext(r.Context(), s.log)

	changes, cancel := conv.Subscribe()
	defer cancel()
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "state", conv.Snapshot()); err != nil {
		log.Debug("sse: write failed", "err", err)
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case _, open := <-changes:
			if !open {
				_ = utils.SendSSEEvent(w, flusher, "closed", map[string]any{"reason": "session ended"})
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "state", conv.Snapshot()); err != nil {
				log.Debug("sse: write failed", "err", err)
				return
			}
		case <-ticker.C:
			// a connected viewer keeps the session from being swept
			s.chat.Touch(sessionID)
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type wsInbound struct {
	Text string `json:"text"`
}

type wsOutbound struct {
	Type    string       `json:"type"`
	Outcome string       `json:"outcome,omitempty"`
	Error   string       `json:"error,omitempty"`
	State   *types.State `json:"state,omitempty"`
}

// WebSocket GET /ws/chat/{sessionID}. Clients send {"text": "..."} and receive
// {"type":"ack"} per submission plus {"type":"state"} after every change.
func (s *Streams) WebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conv, err := s.chat.Conversation(sessionID)
	if err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		s.log.Debug("ws: upgrade failed", "err", err)
		return
	}
	log := logging.FromContext(r.Context(), s.log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan wsOutbound, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ctx, ws, conv, out, log)
		// unblock the reader when the writer gives up first
		cancel()
		_ = ws.Close()
	}()

	s.readPump(ctx, ws, sessionID, conv, out, log)
	cancel()
	<-done
	_ = ws.Close()
}

func (s *Streams) readPump(ctx context.Context, ws *websocket.Conn, sessionID string, conv *chat.Conversation, out chan<- wsOutbound, log *slog.Logger) {
	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		s.chat.Touch(sessionID)
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("ws: read failed", "err", err)
			}
			return
		}
		// inbound frames count as activity
		s.chat.Touch(sessionID)
		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			send(ctx, out, wsOutbound{Type: "error", Error: "invalid json"})
			continue
		}
		outcome, err := conv.Submit(ctx, in.Text)
		if err != nil {
			send(ctx, out, wsOutbound{Type: "error", Error: err.Error()})
			if errors.Is(err, chat.ErrConversationClosed) {
				return
			}
			continue
		}
		send(ctx, out, wsOutbound{Type: "ack", Outcome: outcome.String()})
	}
}

func (s *Streams) writePump(ctx context.Context, ws *websocket.Conn, conv *chat.Conversation, out <-chan wsOutbound, log *slog.Logger) {
	changes, unsubscribe := conv.Subscribe()
	defer unsubscribe()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg wsOutbound) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(msg); err != nil {
			log.Debug("ws: write failed", "err", err)
			return false
		}
		return true
	}
	state := func() wsOutbound {
		st := conv.Snapshot()
		return wsOutbound{Type: "state", State: &st}
	}

	if !write(state()) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-out:
			if !write(msg) {
				return
			}
		case _, open := <-changes:
			if !open {
				_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), time.Now().Add(writeWait))
				return
			}
			if !write(state()) {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func send(ctx context.Context, out chan<- wsOutbound, msg wsOutbound) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}
