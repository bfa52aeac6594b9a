// Package resolver turns the reference written in a directive into the
// canonical vault path of an existing PDF.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/starford/folio/internal/parser"
)

// ErrUnresolved means the reference does not lead to an existing file.
var ErrUnresolved = errors.New("resolver: unresolved reference")

const pdfExt = ".pdf"

var markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)

// FieldLookup answers field queries against the note index.
type FieldLookup interface {
	LookupField(ctx context.Context, notePath, field string) (string, bool, error)
}

// LinkResolver maps a link path to an existing vault file.
type LinkResolver interface {
	ResolveLink(ctx context.Context, linkpath string) (string, bool, error)
}

// Readiness is closed once the field index has finished its initial build.
type Readiness interface {
	Wait(ctx context.Context) error
}

// Resolver resolves directive references. It holds no state of its own.
type Resolver struct {
	fields FieldLookup
	links  LinkResolver
	ready  Readiness
}

// New creates a Resolver.
func New(fields FieldLookup, links LinkResolver, ready Readiness) *Resolver {
	return &Resolver{fields: fields, links: links, ready: ready}
}

// Resolve returns the canonical path for raw as written in the note at
// notePath. The steps, in order:
//
//  1. a frontmatter key named raw substitutes its value;
//  2. a [[wiki link]] is unwrapped (alias and heading dropped);
//  3. otherwise, a value not ending in .pdf is looked up as a field of the
//     note once the index is ready, and a [label](target) value yields its
//     target with %20 turned into spaces;
//  4. .pdf is appended when missing, unless step 3 extracted a link that
//     carries another extension;
//  5. the result goes through vault link resolution.
//
// Any failure to reach an existing file is ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, raw, notePath string, frontmatter map[string]any) (string, error) {
	value := strings.TrimSpace(raw)
	if v, ok := frontmatter[value]; ok {
		if s, ok := frontmatterString(v); ok {
			value = strings.TrimSpace(s)
		}
	}

	fromLink := false
	if target, ok := wikiTarget(value); ok {
		value = target
	} else if !hasPDFExt(value) {
		if err := r.ready.Wait(ctx); err != nil {
			return "", fmt.Errorf("resolver: wait for index: %w", err)
		}
		field, ok, err := r.fields.LookupField(ctx, notePath, value)
		if err != nil {
			return "", fmt.Errorf("resolver: lookup field %q: %w", value, err)
		}
		if ok {
			value = strings.TrimSpace(field)
		}
		if target, ok := wikiTarget(value); ok {
			value = target
		} else if m := markdownLinkRe.FindStringSubmatch(value); m != nil {
			value = strings.ReplaceAll(strings.Trim(m[2], "<>"), "%20", " ")
			fromLink = true
		}
	}

	if value == "" {
		return "", ErrUnresolved
	}
	if !hasPDFExt(value) {
		if fromLink && path.Ext(value) != "" {
			return "", fmt.Errorf("%w: %q is not a pdf", ErrUnresolved, value)
		}
		value += pdfExt
	}

	canonical, ok, err := r.links.ResolveLink(ctx, value)
	if err != nil {
		return "", fmt.Errorf("resolver: resolve %q: %w", value, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnresolved, value)
	}
	return canonical, nil
}

func hasPDFExt(s string) bool {
	return strings.EqualFold(path.Ext(s), pdfExt)
}

func wikiTarget(s string) (string, bool) {
	if !strings.HasPrefix(s, "[[") || !strings.HasSuffix(s, "]]") || len(s) < 4 {
		return "", false
	}
	return parser.LinkTarget(s[2 : len(s)-2]), true
}

// frontmatterString renders a frontmatter value as written. An unquoted
// [[link]] is parsed by YAML as a nested list and is turned back into text.
func frontmatterString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int, int64, float64, bool:
		return fmt.Sprint(t), true
	case []any:
		if len(t) != 1 {
			return "", false
		}
		inner, ok := t[0].([]any)
		if !ok || len(inner) != 1 {
			return "", false
		}
		if s, ok := inner[0].(string); ok {
			return "[[" + s + "]]", true
		}
	}
	return "", false
}
