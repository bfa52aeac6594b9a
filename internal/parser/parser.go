// Package parser extracts frontmatter, wikilinks, tags and fields from Markdown content.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

	// lineFieldRe matches "key:: value" on a line of its own (list bullets allowed).
	lineFieldRe = regexp.MustCompile(`^\s*(?:[-*+]\s+)?([A-Za-z][\w -]*?)::\s*(.*?)\s*$`)
	// bracketFieldRe matches inline "[key:: value]" and "(key:: value)" fields.
	bracketFieldRe = regexp.MustCompile(`[\[(]([A-Za-z][\w -]*?)::\s*([^\])]*?)\s*[\])]`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Links       []string
	Tags        []string
	Title       string
	// Fields holds queryable key/value pairs: frontmatter scalars first, then
	// inline fields from the body. Keys are lower-cased.
	Fields map[string]string
}

// Parse extracts frontmatter, body, wikilinks, tags and fields from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(body),
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
		Fields:      extractFields(fm, body),
	}, nil
}

// StripFrontmatter returns data without its leading YAML block.
func StripFrontmatter(data []byte) string {
	_, body, _ := splitFrontmatter(data)
	return body
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep the whole file as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// extractLinks returns deduplicated wikilink targets, normalising aliases.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := LinkTarget(m[1])
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// LinkTarget strips the alias ("|Alias") and heading ("#Heading") parts of
// the inside of a wikilink.
func LinkTarget(inner string) string {
	target := inner
	if i := strings.Index(target, "|"); i >= 0 {
		target = target[:i]
	}
	if i := strings.Index(target, "#"); i >= 0 {
		target = target[:i]
	}
	return strings.TrimSpace(target)
}

// extractTags collects #tags from body and from frontmatter "tags" field.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	if raw, ok := fm["tags"]; ok {
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}

	return out
}

// extractFields flattens scalar frontmatter values and inline fields into
// one lower-cased map. Frontmatter wins over inline fields with the same key.
func extractFields(fm map[string]any, body string) map[string]string {
	out := make(map[string]string)

	inCode := false
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}
		if m := lineFieldRe.FindStringSubmatch(line); m != nil {
			setField(out, m[1], m[2])
			continue
		}
		for _, m := range bracketFieldRe.FindAllStringSubmatch(line, -1) {
			setField(out, m[1], m[2])
		}
	}

	for k, v := range fm {
		if s, ok := scalarString(v); ok {
			out[strings.ToLower(strings.TrimSpace(k))] = s
		}
	}
	return out
}

func setField(fields map[string]string, key, value string) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return
	}
	if _, exists := fields[key]; exists {
		return
	}
	fields[key] = value
}

// scalarString renders YAML scalars as strings; lists and maps are skipped.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int, int64, float64, bool:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if t, ok := fm["title"]; ok {
		if s, ok := t.(string); ok && s != "" {
			return s
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
