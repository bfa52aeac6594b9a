// Package dom holds the small set of HTML tree operations the post-processor
// needs: text extraction, element lookup and directive splicing.
package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// window is how many following siblings a splice may consume when the
// directive text was broken up by inline markup.
const window = 2

// TextContent concatenates every text node below n.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Elements returns every element below root (root included) whose atom is
// one of atoms, in document order.
func Elements(root *html.Node, atoms ...atom.Atom) []*html.Node {
	want := make(map[atom.Atom]bool, len(atoms))
	for _, a := range atoms {
		want[a] = true
	}
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && want[n.DataAtom] {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// Attr returns the value of key on n, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// SetAttr sets key on n, replacing an existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// AnchorTarget looks for an <a> below n whose text equals text and returns
// its link target: data-link-path when present, href otherwise.
func AnchorTarget(n *html.Node, text string) (string, bool) {
	for _, a := range Elements(n, atom.A) {
		if TextContent(a) != text {
			continue
		}
		if p := Attr(a, "data-link-path"); p != "" {
			return p, true
		}
		if h := Attr(a, "href"); h != "" {
			return h, true
		}
	}
	return "", false
}

// NewElement creates a detached element with attributes given as key/value
// pairs.
func NewElement(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

// NewText creates a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Splice replaces the first occurrence of raw among container's direct
// children with replacement. The scan looks at each text child; when raw is
// not inside that text alone, the text of up to two following siblings is
// appended and, on a hit, those siblings are removed. The text around raw is
// kept as separate text nodes. It reports whether raw was found.
func Splice(container *html.Node, raw string, replacement *html.Node) bool {
	if raw == "" {
		return false
	}
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		text, consumed, ok := windowText(c, raw)
		if !ok {
			continue
		}
		for _, s := range consumed {
			container.RemoveChild(s)
		}

		i := strings.Index(text, raw)
		before, after := text[:i], text[i+len(raw):]
		if before != "" {
			container.InsertBefore(NewText(before), c)
		}
		container.InsertBefore(replacement, c)
		if after != "" {
			container.InsertBefore(NewText(after), c)
		}
		container.RemoveChild(c)
		return true
	}
	return false
}

// windowText returns the text starting at c that contains raw, along with
// the siblings it had to borrow.
func windowText(c *html.Node, raw string) (string, []*html.Node, bool) {
	text := c.Data
	if strings.Contains(text, raw) {
		return text, nil, true
	}
	var consumed []*html.Node
	for s := c.NextSibling; s != nil && len(consumed) < window; s = s.NextSibling {
		consumed = append(consumed, s)
		text += TextContent(s)
		if strings.Contains(text, raw) {
			return text, consumed, true
		}
	}
	return "", nil, false
}

// ReplaceText substitutes the first occurrence of old in container with
// text. It splices when possible and otherwise flattens the container to a
// single text node, which drops inline markup. It reports whether old was
// found.
func ReplaceText(container *html.Node, old, text string) bool {
	if Splice(container, old, NewText(text)) {
		return true
	}
	content := TextContent(container)
	if !strings.Contains(content, old) {
		return false
	}
	for c := container.FirstChild; c != nil; c = container.FirstChild {
		container.RemoveChild(c)
	}
	container.AppendChild(NewText(strings.Replace(content, old, text, 1)))
	return true
}
