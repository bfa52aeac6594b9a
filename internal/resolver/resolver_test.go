package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/testutil"
)

func setup(t *testing.T) (*Resolver, *index.DB, *index.Ready) {
	t.Helper()
	db := testutil.TestDB(t)
	for _, p := range []string{
		"report.pdf",
		"Notes/report.pdf",
		"Reports/q3 final.pdf",
		"Slides.PDF",
		"Reports/summary.docx",
	} {
		if err := db.UpsertFile(index.FileRow{Path: p}); err != nil {
			t.Fatal(err)
		}
	}
	fields := map[string]string{
		"source": "[Q3](Reports/q3%20final.pdf)",
		"doc":    "[Summary](Reports/summary.docx)",
		"bare":   "report",
		"wiki":   "[[Notes/report.pdf|the report]]",
	}
	if err := db.UpsertNote(index.NoteRow{Path: "n.md", Checksum: "1", Tags: []string{}}, "", nil, fields); err != nil {
		t.Fatal(err)
	}
	ready := index.NewReady()
	ready.MarkReady()
	return New(db, db, ready), db, ready
}

func TestResolve(t *testing.T) {
	r, _, _ := setup(t)
	ctx := context.Background()
	fm := map[string]any{
		"file":    "[[Notes/report.pdf]]",
		"plain":   "report.pdf",
		"unquote": []any{[]any{"Notes/report.pdf"}},
	}

	cases := []struct {
		raw  string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"Notes/report.pdf", "Notes/report.pdf"},
		{"REPORT.pdf", "report.pdf"},
		{"[[report.pdf]]", "report.pdf"},
		{"[[Notes/report.pdf]]", "Notes/report.pdf"},
		{"[[Notes/report]]", "Notes/report.pdf"},
		{"[[Notes/report.pdf#Summary|alias]]", "Notes/report.pdf"},
		{"file", "Notes/report.pdf"},
		{"plain", "report.pdf"},
		{"unquote", "Notes/report.pdf"},
		{"source", "Reports/q3 final.pdf"},
		{"[Q3](Reports/q3%20final.pdf)", "Reports/q3 final.pdf"},
		{"q3 final.pdf", "Reports/q3 final.pdf"},
		{"bare", "report.pdf"},
		{"wiki", "Notes/report.pdf"},
		{"Slides", "Slides.PDF"},
		{"report", "report.pdf"},
	}
	for _, tc := range cases {
		got, err := r.Resolve(ctx, tc.raw, "n.md", fm)
		if err != nil {
			t.Errorf("Resolve(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Resolve(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestResolve_WikiLinkMatchesBare(t *testing.T) {
	r, _, _ := setup(t)
	ctx := context.Background()
	bare, err1 := r.Resolve(ctx, "report.pdf", "n.md", nil)
	wiki, err2 := r.Resolve(ctx, "[[report.pdf]]", "n.md", nil)
	if err1 != nil || err2 != nil || bare != wiki {
		t.Errorf("bare=%q (%v) wiki=%q (%v)", bare, err1, wiki, err2)
	}
}

func TestResolve_Unresolved(t *testing.T) {
	r, _, _ := setup(t)
	ctx := context.Background()
	for _, raw := range []string{
		"missingfile.pdf",
		"missing",
		"doc",
		"[[]]",
		"[[nowhere.pdf]]",
	} {
		if got, err := r.Resolve(ctx, raw, "n.md", nil); !errors.Is(err, ErrUnresolved) {
			t.Errorf("Resolve(%q) = %q, %v; want ErrUnresolved", raw, got, err)
		}
	}
}

func TestResolve_FieldsAreScopedToNote(t *testing.T) {
	r, _, _ := setup(t)
	if _, err := r.Resolve(context.Background(), "source", "other.md", nil); !errors.Is(err, ErrUnresolved) {
		t.Errorf("err = %v, want ErrUnresolved", err)
	}
}

func TestResolve_WaitsForIndexOnlyWhenNeeded(t *testing.T) {
	db := testutil.TestDB(t)
	_ = db.UpsertFile(index.FileRow{Path: "report.pdf"})
	ready := index.NewReady()
	r := New(db, db, ready)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if got, err := r.Resolve(ctx, "report.pdf", "n.md", nil); err != nil || got != "report.pdf" {
		t.Errorf("direct reference should not wait: %q %v", got, err)
	}
	if _, err := r.Resolve(ctx, "somefield", "n.md", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded before the index is ready", err)
	}

	ready.MarkReady()
	if got, err := r.Resolve(context.Background(), "report", "n.md", nil); err != nil || got != "report.pdf" {
		t.Errorf("after ready: %q %v", got, err)
	}
}
