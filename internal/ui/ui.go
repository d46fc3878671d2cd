package ui

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/varsilias/scholar-search/internal/catalog"
	"github.com/varsilias/scholar-search/internal/chat"
	"github.com/varsilias/scholar-search/internal/logging"
	"github.com/varsilias/scholar-search/internal/search"
	"github.com/varsilias/scholar-search/pkg/types"
)

//go:embed templates static
var assets embed.FS

const sessionCookie = "sid"

// pollInterval is how often a responding chat panel refreshes itself.
const pollInterval = 500 * time.Millisecond

type UI struct {
	log         *slog.Logger
	tpl         *template.Template
	chat        *chat.Controller
	catalog     *catalog.Catalog
	suggestions []string
	md          goldmark.Markdown
	policy      *bluemonday.Policy
}

func New(log *slog.Logger, c *chat.Controller, kb *chat.KnowledgeBase, cat *catalog.Catalog) (*UI, error) {
	t, err := template.New("root").Funcs(template.FuncMap{
		"label":        labelFor,
		"defaultPrice": func() int { return search.DefaultPrice },
	}).ParseFS(assets, "templates/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle("dracula"),
				highlighting.WithFormatOptions(
					chromahtml.WithLineNumbers(false),
				),
			),
		),
	)

	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	p.AllowAttrs("style").OnElements("span", "pre") // inline styles from the highlighter

	return &UI{
		log:         log,
		tpl:         t,
		chat:        c,
		catalog:     cat,
		suggestions: kb.Questions(),
		md:          md,
		policy:      p,
	}, nil
}

// Static serves the embedded stylesheet and scripts.
func (u *UI) Static() http.Handler {
	sub, _ := fs.Sub(assets, "static")
	return http.FileServer(http.FS(sub))
}

type MsgView struct {
	ID    string
	IsBot bool
	HTML  template.HTML
	At    string
}

// PanelView is what both chat surfaces render: the inline page and the
// floating widget.
type PanelView struct {
	Surface     string
	Messages    []MsgView
	Responding  bool
	Suggestions []string
	PollMillis  int64
}

func (u *UI) panel(surface string, st types.State) PanelView {
	msgs := make([]MsgView, 0, len(st.Messages))
	for _, m := range st.Messages {
		msgs = append(msgs, MsgView{ID: m.ID, IsBot: m.IsBot, HTML: u.mdHTML(m.Text), At: m.CreatedAt.Format(time.Kitchen)})
	}
	v := PanelView{
		Surface:    surface,
		Messages:   msgs,
		Responding: st.Responding,
		PollMillis: pollInterval.Milliseconds(),
	}
	// suggestions only while the greeting is alone
	if len(st.Messages) == 1 {
		v.Suggestions = u.suggestions
	}
	return v
}

func (u *UI) mdHTML(src string) template.HTML {
	var buf bytes.Buffer
	if err := u.md.Convert([]byte(src), &buf); err != nil {
		u.log.Warn("markdown convert", "err", err)
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(u.policy.SanitizeBytes(buf.Bytes()))
}

func (u *UI) render(w http.ResponseWriter, r *http.Request, name string, data any, status int) {
	var buf bytes.Buffer
	if err := u.tpl.ExecuteTemplate(&buf, name, data); err != nil {
		u.errTpl(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (u *UI) errTpl(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context(), u.log).Error("template execute", "err", err)
	http.Error(w, "template error", http.StatusInternalServerError)
}

// sessionID resolves the visitor's session: ?s= first, then the cookie, else a
// new id. The chosen id is stored in the cookie so the panel's own requests
// reach the same session.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	cookie := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		cookie = c.Value
	}
	if s := r.URL.Query().Get("s"); s != "" {
		if s != cookie {
			setSessionCookie(w, s)
		}
		return s
	}
	if cookie != "" {
		return cookie
	}
	id := uuid.NewString()
	setSessionCookie(w, id)
	return id
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
