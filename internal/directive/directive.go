// Package directive parses the inline ":pdf-<kind>:<reference>[:<page>[:<width>]]"
// syntax found in rendered note text.
package directive

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies what a directive asks for.
type Kind int

const (
	// Thumbnail renders one page of the document as an image.
	Thumbnail Kind = iota + 1
	// PageCount substitutes the document's page count.
	PageCount
)

const prefix = "pdf-"

var kinds = map[string]Kind{
	"thumbnail":  Thumbnail,
	"page-count": PageCount,
}

// String returns the kind as written in a directive, e.g. "pdf-thumbnail".
func (k Kind) String() string {
	switch k {
	case Thumbnail:
		return prefix + "thumbnail"
	case PageCount:
		return prefix + "page-count"
	}
	return "unknown"
}

// pattern groups: 1 kind; 2-5 reference, page, width and trailing colon of a
// ".pdf" name followed by a colon, which may contain spaces; 6-9 the same
// for every other reference.
//
// The second form is a wiki link, a Markdown link or a token without
// whitespace, colons or brackets that does not end in punctuation. Page and
// width are digit runs; anything else ends the directive so surrounding
// prose is never consumed.
var pattern = regexp.MustCompile(
	`:pdf-([a-z][a-z-]*):(?:` +
		`([^\s:\[\]][^:\[\]\n]*?\.[pP][dD][fF]):(\d*)(?::(\d*))?(:?)` +
		`|` +
		`(\[\[[^\]]+\]\]|\[[^\]]*\]\([^)\s]*\)|[^\s:\[\]]*[^\s:\[\].,;!?)])(?::(\d*)(?::(\d*))?)?(:?)` +
		`)`,
)

// Directive is one parsed occurrence. It is immutable once parsed.
type Directive struct {
	Kind      Kind
	Reference string
	// Page is 1-based and always >= 1.
	Page int
	// Width is the fixed thumbnail width in CSS pixels, 0 for auto-fit.
	Width int
	// Raw is the exact matched span.
	Raw string
	// Offset is the byte offset of Raw in the parsed text.
	Offset int

	rawPage, rawWidth *string
	trailingColon     bool
}

// Parse returns the first recognised directive in text. Directives with an
// unknown kind are skipped.
func Parse(text string) (Directive, bool) {
	for off := 0; off < len(text); {
		loc := pattern.FindStringSubmatchIndex(text[off:])
		if loc == nil {
			return Directive{}, false
		}
		kind, ok := kinds[text[off+loc[2]:off+loc[3]]]
		if !ok {
			// The unknown directive may have swallowed the colon that
			// opens the next one; resume right after its own colon.
			off += loc[0] + 1
			continue
		}
		return build(text, off, loc, kind), true
	}
	return Directive{}, false
}

func build(text string, off int, loc []int, kind Kind) Directive {
	group := func(i int) *string {
		if loc[2*i] < 0 {
			return nil
		}
		s := text[off+loc[2*i] : off+loc[2*i+1]]
		return &s
	}

	base := 2
	if loc[2*base] < 0 {
		base = 6
	}
	d := Directive{
		Kind:          kind,
		Reference:     *group(base),
		Page:          1,
		Raw:           text[off+loc[0] : off+loc[1]],
		Offset:        off + loc[0],
		rawPage:       group(base + 1),
		rawWidth:      group(base + 2),
		trailingColon: loc[2*(base+3)+1] > loc[2*(base+3)],
	}
	if n, ok := positive(d.rawPage); ok {
		d.Page = n
	}
	if kind == Thumbnail {
		if n, ok := positive(d.rawWidth); ok {
			d.Width = n
		}
	}
	return d
}

func positive(s *string) (int, bool) {
	if s == nil {
		return 0, false
	}
	n, err := strconv.Atoi(*s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// String rebuilds the directive text exactly as it was matched.
func (d Directive) String() string {
	var b strings.Builder
	b.WriteString(":")
	b.WriteString(d.Kind.String())
	b.WriteString(":")
	b.WriteString(d.Reference)
	if d.rawPage != nil {
		b.WriteString(":")
		b.WriteString(*d.rawPage)
		if d.rawWidth != nil {
			b.WriteString(":")
			b.WriteString(*d.rawWidth)
		}
	}
	if d.trailingColon {
		b.WriteString(":")
	}
	return b.String()
}

// HasFixedWidth reports whether the directive pins the thumbnail width.
func (d Directive) HasFixedWidth() bool {
	return d.Kind == Thumbnail && d.Width > 0
}
