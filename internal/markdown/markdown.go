// Package markdown renders note bodies to HTML trees for post-processing.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// No Linkify: an autolinked URL would split directive text across nodes.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
	),
)

// Render converts Markdown to HTML and parses the result into a tree whose
// root is a detached <div>.
func Render(body string) (*html.Node, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(body), &buf); err != nil {
		return nil, fmt.Errorf("markdown: convert: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	nodes, err := html.ParseFragment(&buf, root)
	if err != nil {
		return nil, fmt.Errorf("markdown: parse html: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// Serialize renders the children of root back to HTML.
func Serialize(root *html.Node) (string, error) {
	var sb strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", fmt.Errorf("markdown: render html: %w", err)
		}
	}
	return sb.String(), nil
}
