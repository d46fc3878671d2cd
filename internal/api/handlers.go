package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/scholar-search/internal/buildinfo"
	"github.com/varsilias/scholar-search/internal/catalog"
	"github.com/varsilias/scholar-search/internal/chat"
	"github.com/varsilias/scholar-search/internal/logging"
	"github.com/varsilias/scholar-search/internal/search"
	"github.com/varsilias/scholar-search/internal/session"
	"github.com/varsilias/scholar-search/pkg/types"
	"github.com/varsilias/scholar-search/pkg/utils"
)

type Handlers struct {
	log      *slog.Logger
	chat     *chat.Controller
	catalog  *catalog.Catalog
	sessions *session.MemoryStore
}

func NewHandlers(log *slog.Logger, chatCtrl *chat.Controller, cat *catalog.Catalog, store *session.MemoryStore) *Handlers {
	return &Handlers{
		log:      log,
		chat:     chatCtrl,
		catalog:  cat,
		sessions: store,
	}
}

// Health is a basic liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"status":    true,
		"message":   "scholar-search",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"version":  buildinfo.Version,
		"commit":   buildinfo.Commit,
		"built_at": buildinfo.BuiltAt,
	})
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"`
	types.State
}

// Chat POST /api/chat {session_id, message}
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	outcome, st, err := h.chat.Submit(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if outcome == chat.OutcomeEmptyInputIgnored {
		st, _ = h.chat.State(req.SessionID)
	}
	utils.JSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Outcome: outcome.String(), State: st})
}

// History GET /api/history/{sessionID}
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	st, ok := h.chat.State(id)
	if !ok {
		utils.Error(w, http.StatusNotFound, "session not found")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"session_id": id, "messages": st.Messages, "responding": st.Responding})
}

// ListSessions GET /api/sessions, most recently active first.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	list := h.sessions.List()
	sort.SliceStable(list, func(i, j int) bool { return list[i].Updated.After(list[j].Updated) })
	utils.JSON(w, http.StatusOK, map[string]any{"sessions": list})
}

// EndSession DELETE /api/sessions/{sessionID}
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	if !h.chat.End(chi.URLParam(r, "sessionID")) {
		utils.Error(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Universities GET /api/universities?q=...
func (h *Handlers) Universities(w http.ResponseWriter, r *http.Request) {
	f, err := search.Parse(r.URL.Query())
	if err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	unis, err := h.catalog.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"count": len(unis), "universities": unis})
}

// SearchURL GET /api/search-url builds the results link for a set of filters.
func (h *Handlers) SearchURL(w http.ResponseWriter, r *http.Request) {
	f, err := search.Parse(r.URL.Query())
	if err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{
		"url":     f.ResultsURL(),
		"enabled": f.Enabled(),
	})
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrConversationClosed):
		utils.Error(w, http.StatusGone, err.Error())
	case errors.Is(err, session.ErrEmptySessionID):
		utils.Error(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context(), h.log).Error("api", "path", r.URL.Path, "err", err)
		utils.Error(w, http.StatusInternalServerError, err.Error())
	}
}
