package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/doccache"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/noteservice"
	"github.com/starford/folio/internal/postprocess"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/resolver"
	"github.com/starford/folio/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const slidesNote = `---
title: Slides
tags: [talks]
---
Deck has :pdf-page-count:deck.pdf pages.

:pdf-thumbnail:deck.pdf:2
`

// testEnv sets up a temp vault, SQLite DB, render pipeline and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*noteservice.Service, http.Handler) {
	t.Helper()

	dir, store := testutil.TestVault(t)
	testutil.WriteFile(t, dir, "talks/slides.md", []byte(slidesNote))
	testutil.WriteFile(t, dir, "hello.md", []byte("# Hello\nWorld\n"))
	testutil.WriteFile(t, dir, "talks/deck.pdf", testutil.FakePDF(4))

	db := testutil.TestDB(t)
	if err := index.Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	ready := index.NewReady()
	ready.MarkReady()

	cache := doccache.New(store, &testutil.FakeDecoder{}, quietLogger())
	t.Cleanup(cache.Close)
	sessions := render.NewRegistry(time.Hour, nil, quietLogger())
	t.Cleanup(sessions.CloseAll)
	pipeline := postprocess.New(resolver.New(db, db, ready), cache, postprocess.Options{
		Thumbnail: render.Options{Debounce: 10 * time.Millisecond},
	}, quietLogger())

	svc := noteservice.NewService(store, db, sessions, pipeline, quietLogger())
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/notes/hello.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Path != "hello.md" || note.Title != "Hello" {
		t.Errorf("note = %+v", note)
	}
}

func TestGetNote_EncodedSlash(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/notes/talks%2Fslides.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/notes/nope.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/notes?tag=talks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || len(resp.Notes) != 1 || resp.Notes[0].Path != "talks/slides.md" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search?q=World", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) == 0 || resp.Results[0].Path != "hello.md" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/files/talks/deck.pdf?access_token=secret123", nil); w.Code != http.StatusOK {
		t.Errorf("query token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// Minimal SSE handler stub: writes headers and blocks until context done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", sseStub)
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestServeFile(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/files/talks/deck.pdf", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("file = %d", w.Code)
	}
	if w.Body.String() != string(testutil.FakePDF(4)) {
		t.Errorf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content-type = %q", ct)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/files/talks/deck.pdf", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional = %d, want 304", w.Code)
	}
}

func TestServeFile_NotFoundAndTraversal(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/files/missing.pdf", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/files/..%2F..%2Fetc%2Fpasswd", nil); w.Code != http.StatusBadRequest {
		t.Errorf("traversal = %d, want 400", w.Code)
	}
}

func renderSlides(t *testing.T, router http.Handler, replace string) RenderedNote {
	t.Helper()
	target := "/render/notes/talks/slides.md"
	if replace != "" {
		target += "?replace=" + replace
	}
	w := do(t, router, http.MethodGet, target, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("render = %d, body = %s", w.Code, w.Body.String())
	}
	var out RenderedNote
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestRenderFlow(t *testing.T) {
	_, router := testEnv(t, "")

	out := renderSlides(t, router, "")
	if !strings.Contains(out.HTML, "Deck has 4 pages.") {
		t.Errorf("page count missing: %s", out.HTML)
	}
	if len(out.Thumbnails) != 1 {
		t.Fatalf("thumbnails = %v", out.Thumbnails)
	}
	el := out.Thumbnails[0]
	thumbURL := "/render/sessions/" + out.Session + "/thumbnails/" + el
	if !strings.Contains(out.HTML, `src="/api`+thumbURL+`"`) {
		t.Errorf("image src missing: %s", out.HTML)
	}

	// No size report yet.
	if w := do(t, router, http.MethodGet, thumbURL, nil); w.Code != http.StatusAccepted {
		t.Fatalf("pending thumbnail = %d, want 202", w.Code)
	}

	body, _ := json.Marshal([]ResizeReport{{Element: el, Width: 320, DPR: 2}, {Element: "e99", Width: 100}})
	w := do(t, router, http.MethodPost, "/render/sessions/"+out.Session+"/resize", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("resize = %d, body = %s", w.Code, w.Body.String())
	}
	var rr ResizeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &rr)
	if len(rr.Accepted) != 1 || rr.Accepted[0] != el || len(rr.Missing) != 1 || rr.Missing[0] != "e99" {
		t.Errorf("resize response = %+v", rr)
	}

	var frame *httptest.ResponseRecorder
	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		frame = do(t, router, http.MethodGet, thumbURL, nil)
		return frame.Code == http.StatusOK
	}, "thumbnail never rendered")
	if frame.Code != http.StatusOK {
		return
	}
	if ct := frame.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content-type = %q", ct)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(frame.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 640 {
		t.Errorf("png width = %d, want 640", cfg.Width)
	}

	req := httptest.NewRequest(http.MethodGet, thumbURL, nil)
	req.Header.Set("If-None-Match", frame.Header().Get("ETag"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional = %d, want 304", w.Code)
	}

	if w := do(t, router, http.MethodDelete, "/render/sessions/"+out.Session, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, thumbURL, nil); w.Code != http.StatusNotFound {
		t.Errorf("after delete = %d, want 404", w.Code)
	}
}

func TestRenderReplace(t *testing.T) {
	svc, router := testEnv(t, "")
	first := renderSlides(t, router, "")
	second := renderSlides(t, router, first.Session)
	if first.Session == second.Session {
		t.Fatal("expected a new session")
	}
	if svc.Sessions().Len() != 1 {
		t.Errorf("sessions = %d, want 1", svc.Sessions().Len())
	}
}

func TestRenderNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/render/notes/ghost.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("render missing = %d, want 404", w.Code)
	}
}

func TestResize_Errors(t *testing.T) {
	_, router := testEnv(t, "")
	out := renderSlides(t, router, "")

	cases := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"bad json", "/render/sessions/" + out.Session + "/resize", "{", http.StatusBadRequest},
		{"zero width", "/render/sessions/" + out.Session + "/resize", `[{"element":"e1","width":0}]`, http.StatusBadRequest},
		{"missing element", "/render/sessions/" + out.Session + "/resize", `[{"width":10}]`, http.StatusBadRequest},
		{"unknown session", "/render/sessions/nope/resize", `[{"element":"e1","width":10}]`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(t, router, http.MethodPost, tc.target, []byte(tc.body)); w.Code != tc.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestCloseSession_Unknown(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodDelete, "/render/sessions/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete unknown = %d, want 404", w.Code)
	}
}
