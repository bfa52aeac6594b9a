package mcpserver

// DirectiveSyntax documents the inline PDF directives that Folio expands
// when it renders a note.
const DirectiveSyntax = `# Folio PDF Directives

Notes may embed PDF pages and page counts with inline directives. A
directive is recognised inside paragraphs, table cells and spans; the first
directive of an element is expanded when the note is rendered.

## Syntax

` + "```" + `
:pdf-thumbnail:<reference>[:<page>[:<width>]][:]
:pdf-page-count:<reference>
` + "```" + `

- **page** is 1-based and defaults to 1. A page past the end of the document
  shows page 1.
- **width** (thumbnails only) fixes the image width in CSS pixels. Without it
  the thumbnail follows the width of its container.
- Unknown kinds (e.g. ` + "`" + `:pdf-outline:x.pdf` + "`" + `) are left as text.

## References

A reference is resolved in this order:

1. A frontmatter key of the note: ` + "`" + `source: "[[Report.pdf]]"` + "`" + ` lets
   ` + "`" + `:pdf-thumbnail:source` + "`" + ` show Report.pdf.
2. A wiki link: ` + "`" + `[[Reports/Q3.pdf]]` + "`" + ` or ` + "`" + `[[Q3]]` + "`" + `.
3. An inline field of the note (` + "`" + `deck:: [[talk.pdf]]` + "`" + ` or
   ` + "`" + `deck:: [Slides](slides/talk%20v2.pdf)` + "`" + `).
4. A plain file name or path; ` + "`" + `.pdf` + "`" + ` is appended when missing.
   A name with spaces must end in ` + "`" + `.pdf:` + "`" + `, as in
   ` + "`" + `:pdf-page-count:Board Deck.pdf:` + "`" + `.

The result is matched against vault files like a wiki link: exact path
first (case-insensitive), then the shortest path ending with it.

## Example

` + "```" + `markdown
---
title: Q3 review
deck: "[[q3-deck.pdf]]"
---

The deck has :pdf-page-count:deck pages.

| Cover | Summary |
|-------|---------|
| :pdf-thumbnail:deck:1:200 | :pdf-thumbnail:deck:5:200 |
` + "```" + `
`
