package render

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/net/html"

	"github.com/starford/folio/internal/dom"
)

// PageCount replaces a directive with a document's page count. It has no
// lifecycle beyond Mount.
type PageCount struct {
	session   *Session
	container *html.Node
	raw       string
	count     int
}

// NewPageCount creates a page-count controller for the matched text raw.
func NewPageCount(s *Session, container *html.Node, raw string, count int) *PageCount {
	return &PageCount{session: s, container: container, raw: raw, count: count}
}

// Mount substitutes the count for the directive text.
func (p *PageCount) Mount(context.Context) error {
	var ok bool
	p.session.Mutate(func() {
		ok = dom.ReplaceText(p.container, p.raw, strconv.Itoa(p.count))
	})
	if !ok {
		return fmt.Errorf("%w: %q", ErrDirectiveNotFound, p.raw)
	}
	return nil
}

// Unmount is a no-op.
func (p *PageCount) Unmount() {}
