package ui

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/scholar-search/internal/catalog"
	"github.com/varsilias/scholar-search/internal/chat"
	"github.com/varsilias/scholar-search/internal/session"
)

func setupUI(t *testing.T) (*chi.Mux, *chat.Controller) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	kb := chat.DefaultKnowledge()
	ctrl := chat.NewController(log, kb, session.NewMemoryStore(), chat.WithReplyDelay(5*time.Millisecond))
	u, err := New(log, ctrl, kb, catalog.Default(0))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	r := chi.NewRouter()
	RegisterRoutes(r, u)
	return r, ctrl
}

func get(r http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postChat(r http.Handler, sid, surface, message string) *httptest.ResponseRecorder {
	form := url.Values{"surface": {surface}, "message": {message}}
	req := httptest.NewRequest(http.MethodPost, "/ui/chat", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: sid})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHomeRendersFormAndWidget(t *testing.T) {
	r, _ := setupUI(t)
	w := get(r, "/")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"European Scholarship Search",
		`name="price"`,
		`<option value="germany">Germany</option>`,
		"1 Semester",
		"chat-panel--widget",
		chat.Greeting,
		"How do I apply for scholarships in Europe?",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("home page missing %q", want)
		}
	}

	var sid string
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			sid = c.Value
		}
	}
	if sid == "" {
		t.Fatal("expected a session cookie")
	}
}

func TestSearchRedirectsToSparseURL(t *testing.T) {
	r, _ := setupUI(t)

	cases := map[string]string{
		"/search?q=tum&price=5000&country=&duration=&field=":         "/results?q=tum",
		"/search?q=&price=12000&country=&duration=&field=":           "/results?price=12000",
		"/search?q=&price=5000&country=sweden&duration=1-year&field=": "/results?country=sweden&duration=1-year",
		"/search?q=&price=5000&country=&duration=&field=":            "/",
		"/search?q=+++&price=5000":                                    "/",
	}
	for target, want := range cases {
		w := get(r, target)
		if w.Code != http.StatusSeeOther {
			t.Fatalf("%s: expected 303, got %d", target, w.Code)
		}
		if loc := w.Header().Get("Location"); loc != want {
			t.Fatalf("%s: redirect to %q, want %q", target, loc, want)
		}
	}
}

func TestSearchRejectsInvalidFilters(t *testing.T) {
	r, _ := setupUI(t)
	w := get(r, "/search?price=999999")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid filter") {
		t.Fatalf("expected error message in page, got %s", w.Body.String())
	}
}

func TestSearchErrorKeepsInputAndWidget(t *testing.T) {
	r, _ := setupUI(t)
	w := get(r, "/search?q=delft&country=germany&price=1234")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`value="delft"`,
		`<option value="germany" selected>Germany</option>`,
		"chat-panel--widget",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("error page missing %q", want)
		}
	}
}

func TestResultsListsUniversities(t *testing.T) {
	r, _ := setupUI(t)
	w := get(r, "/results?q=engineering&country=germany")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"Found 5 universities with available scholarships",
		"Technical University of Munich",
		"KU Leuven",
		"Uppsala University",
		"University of Copenhagen",
		"Justus &amp; Louise van Effen Excellence Scholarship",
		"Deadline: March 1st",
		"Germany",
		"engineering",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("results page missing %q", want)
		}
	}
}

func TestChatPostKnownQuestion(t *testing.T) {
	r, ctrl := setupUI(t)

	w := postChat(r, "visitor-1", "page", "How do I apply for scholarships in Europe?")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "How do I apply for scholarships in Europe?") {
		t.Fatal("expected the user bubble")
	}
	if !strings.Contains(body, `hx-trigger="every 500ms"`) || !strings.Contains(body, "typing") {
		t.Fatal("expected the panel to poll while responding")
	}
	if strings.Contains(body, "Suggestions:") {
		t.Fatal("suggestions should disappear after the first message")
	}

	conv, _ := ctrl.Conversation("visitor-1")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conv.Wait(ctx); err != nil {
		t.Fatalf("Wait err: %v", err)
	}

	w = get(r, "/ui/chat/panel?surface=page", &http.Cookie{Name: sessionCookie, Value: "visitor-1"})
	body = w.Body.String()
	if !strings.Contains(body, "To apply for scholarships in Europe, you typically need to:") {
		t.Fatalf("expected the answer, got %s", body)
	}
	if !strings.Contains(body, "<ol>") {
		t.Fatal("expected the numbered steps rendered as a list")
	}
	if strings.Contains(body, "hx-trigger") {
		t.Fatal("idle panel must not poll")
	}
}

func TestPollingLeavesInputAlone(t *testing.T) {
	r, _ := setupUI(t)
	w := postChat(r, "visitor-typing", "widget", "How do I apply for scholarships in Europe?")
	body := w.Body.String()
	poll := strings.Index(body, `hx-get="/ui/chat/messages?surface=widget"`)
	input := strings.Index(body, `class="chat-input"`)
	if poll < 0 || input < 0 {
		t.Fatalf("expected a polling message list and an input form, got %s", body)
	}
	if strings.Contains(body, `hx-get="/ui/chat/panel`) {
		t.Fatal("the whole panel must not poll")
	}

	w = get(r, "/ui/chat/messages?surface=widget", &http.Cookie{Name: sessionCookie, Value: "visitor-typing"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "chat-input") {
		t.Fatal("polled fragment must not replace the input")
	}
	if !strings.Contains(w.Body.String(), `id="chat-messages-widget"`) {
		t.Fatal("expected the message list fragment")
	}
}

func TestSharedSessionLinkReceivesSubmissions(t *testing.T) {
	r, ctrl := setupUI(t)

	w := get(r, "/chatbot?s=shared")
	var sid *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			sid = c
		}
	}
	if sid == nil || sid.Value != "shared" {
		t.Fatalf("expected the page to adopt session shared, got %+v", sid)
	}

	// the panel's form posts to its own action, carrying only the cookie
	form := url.Values{"surface": {"page"}, "message": {"what is 2+2"}}
	req := httptest.NewRequest(http.MethodPost, "/ui/chat", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(sid)
	r.ServeHTTP(httptest.NewRecorder(), req)

	st, ok := ctrl.State("shared")
	if !ok || len(st.Messages) != 2 {
		t.Fatalf("submission did not reach session shared: %+v", st)
	}
}

func TestChatPostBlankIsNoop(t *testing.T) {
	r, ctrl := setupUI(t)

	w := postChat(r, "visitor-2", "widget", "   ")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	st, ok := ctrl.State("visitor-2")
	if !ok || len(st.Messages) != 1 {
		t.Fatalf("expected only the greeting, got %+v", st)
	}
	if !strings.Contains(w.Body.String(), "Suggestions:") {
		t.Fatal("suggestions should still be offered")
	}
}

func TestChatPostEscapesUserInput(t *testing.T) {
	r, _ := setupUI(t)
	w := postChat(r, "visitor-3", "page", `<script>alert("x")</script>`)
	if strings.Contains(w.Body.String(), `<script>alert`) {
		t.Fatal("user input must be sanitised")
	}
}

func TestChatbotPage(t *testing.T) {
	r, _ := setupUI(t)
	w := get(r, "/chatbot?s=page-visitor")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Scholarship Assistant", "evidence-based", "<option>PT</option>", "chat-panel--page"} {
		if !strings.Contains(body, want) {
			t.Fatalf("chatbot page missing %q", want)
		}
	}
}

func TestNewSessionEndsPrevious(t *testing.T) {
	r, ctrl := setupUI(t)
	if _, err := ctrl.Conversation("old"); err != nil {
		t.Fatalf("Conversation err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/ui/session/new", nil)
	req.Header.Set("HX-Request", "true")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "old"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("HX-Redirect") != "/chatbot" {
		t.Fatalf("unexpected redirect %q", w.Header().Get("HX-Redirect"))
	}
	if _, ok := ctrl.State("old"); ok {
		t.Fatal("previous session should be ended")
	}
}

func TestVersionPillAndStatic(t *testing.T) {
	r, _ := setupUI(t)
	if w := get(r, "/ui/version-pill"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "version-pill") {
		t.Fatalf("unexpected version pill response %d", w.Code)
	}
	if w := get(r, "/static/app.css"); w.Code != http.StatusOK {
		t.Fatalf("expected stylesheet, got %d", w.Code)
	}
}
