package ui

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/varsilias/scholar-search/internal/buildinfo"
	"github.com/varsilias/scholar-search/internal/chat"
	"github.com/varsilias/scholar-search/internal/logging"
	"github.com/varsilias/scholar-search/internal/search"
)

func RegisterRoutes(mux chi.Router, h *UI) {
	mux.Handle("/static/*", http.StripPrefix("/static/", h.Static()))

	mux.Get("/", h.Home)
	mux.Get("/search", h.Search)
	mux.Get("/results", h.Results)
	mux.Get("/chatbot", h.Chatbot)

	mux.Post("/ui/chat", h.ChatPost)
	mux.Get("/ui/chat/panel", h.ChatPanel)
	mux.Get("/ui/chat/messages", h.ChatMessages)
	mux.Post("/ui/session/new", h.NewSession)
	mux.Get("/ui/version-pill", h.VersionPill)
}

type formView struct {
	Filters   search.Filters
	Countries []search.Option
	Durations []search.Option
	Fields    []search.Option
	MinPrice  int
	MaxPrice  int
	PriceStep int
	Advanced  bool
	Error     string
}

func newFormView(f search.Filters) formView {
	return formView{
		Filters:   f,
		Countries: search.Countries,
		Durations: search.Durations,
		Fields:    search.Fields,
		MinPrice:  search.MinPrice,
		MaxPrice:  search.MaxPrice,
		PriceStep: search.PriceStep,
		Advanced:  f.HasActiveFilters(),
	}
}

// Home is the landing page: search form plus the floating chat widget.
func (u *UI) Home(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)
	conv, err := u.chat.Conversation(sid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	u.render(w, r, "home.html", map[string]any{
		"Form":   newFormView(search.Defaults()),
		"Widget": u.panel("widget", conv.Snapshot()),
	}, http.StatusOK)
}

// Search is the form target. It only builds the results URL.
func (u *UI) Search(w http.ResponseWriter, r *http.Request) {
	f, err := search.Parse(r.URL.Query())
	if err != nil {
		conv, cerr := u.chat.Conversation(sessionID(w, r))
		if cerr != nil {
			http.Error(w, cerr.Error(), http.StatusInternalServerError)
			return
		}
		fv := newFormView(search.Unvalidated(r.URL.Query()))
		fv.Error = err.Error()
		fv.Advanced = true
		u.render(w, r, "home.html", map[string]any{
			"Form":   fv,
			"Widget": u.panel("widget", conv.Snapshot()),
		}, http.StatusBadRequest)
		return
	}
	if !f.Enabled() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, f.ResultsURL(), http.StatusSeeOther)
}

func (u *UI) Results(w http.ResponseWriter, r *http.Request) {
	f, err := search.Parse(r.URL.Query())
	if err != nil {
		// the listing does not depend on the filters
		logging.FromContext(r.Context(), u.log).Debug("results: ignoring bad filters", "err", err)
		f = search.Defaults()
		f.Query = r.URL.Query().Get("q")
	}
	unis, err := u.catalog.List(r.Context(), f)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	u.render(w, r, "results.html", map[string]any{
		"Filters":      f,
		"Universities": unis,
		"Count":        len(unis),
	}, http.StatusOK)
}

// Chatbot is the full-page assistant.
func (u *UI) Chatbot(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)
	conv, err := u.chat.Conversation(sid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	u.render(w, r, "chatbot.html", map[string]any{
		"Panel": u.panel("page", conv.Snapshot()),
	}, http.StatusOK)
}

// ChatPost submits the message and answers with the refreshed panel. Blank
// input re-renders the panel unchanged.
func (u *UI) ChatPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sid := sessionID(w, r)
	surface := surfaceOf(r.Form.Get("surface"))

	outcome, st, err := u.chat.Submit(r.Context(), sid, r.Form.Get("message"))
	if err != nil {
		if errors.Is(err, chat.ErrConversationClosed) {
			http.Error(w, "conversation ended", http.StatusGone)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if outcome == chat.OutcomeEmptyInputIgnored {
		st, _ = u.chat.State(sid)
	}
	u.render(w, r, "chat-panel.html", u.panel(surface, st), http.StatusOK)
}

func (u *UI) ChatPanel(w http.ResponseWriter, r *http.Request) {
	u.chatFragment(w, r, "chat-panel.html")
}

// ChatMessages is what a responding panel polls. The input form is not part of
// it, so text being typed survives the refresh.
func (u *UI) ChatMessages(w http.ResponseWriter, r *http.Request) {
	u.chatFragment(w, r, "chat-messages.html")
}

func (u *UI) chatFragment(w http.ResponseWriter, r *http.Request, name string) {
	conv, err := u.chat.Conversation(sessionID(w, r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	u.render(w, r, name, u.panel(surfaceOf(r.URL.Query().Get("surface")), conv.Snapshot()), http.StatusOK)
}

// NewSession ends the current conversation and starts over with a fresh id.
func (u *UI) NewSession(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		u.chat.End(c.Value)
	}
	id := uuid.NewString()
	setSessionCookie(w, id)

	target := "/chatbot"
	if r.FormValue("next") == "/" {
		target = "/"
	}

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type versionVM struct {
	Version string
	Commit  string
	BuiltAt string
}

func (u *UI) VersionPill(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	u.render(w, r, "version-pill.html", versionVM{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		BuiltAt: buildinfo.BuiltAt,
	}, http.StatusOK)
}

func surfaceOf(s string) string {
	if s == "widget" {
		return "widget"
	}
	return "page"
}

func labelFor(kind, value string) string {
	switch kind {
	case "country":
		return search.Label(search.Countries, value)
	case "duration":
		return search.Label(search.Durations, value)
	case "field":
		return search.Label(search.Fields, value)
	}
	return value
}
