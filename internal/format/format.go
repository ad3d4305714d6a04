// Package format turns message text into a typed content-node tree. The
// renderer escapes text content and interprets only the node tags, so
// embedded text is never re-read as markup.
package format

import (
	"regexp"
	"strings"
)

// NodeKind tags a block-level content node.
type NodeKind string

const (
	KindParagraph    NodeKind = "paragraph"
	KindCodeBlock    NodeKind = "code_block"
	KindBulletItem   NodeKind = "bullet_item"
	KindNumberedItem NodeKind = "numbered_item"
	KindLineBreak    NodeKind = "line_break"
)

// SpanKind tags an inline span inside a line-level node.
type SpanKind string

const (
	SpanText SpanKind = "text"
	SpanBold SpanKind = "bold"
	SpanLink SpanKind = "link"
)

// Span is an inline run of text. URL is set for link spans only.
type Span struct {
	Kind SpanKind `json:"kind"`
	Text string   `json:"text"`
	URL  string   `json:"url,omitempty"`
}

// Node is one block of formatted content.
type Node struct {
	Kind NodeKind `json:"kind"`
	// Spans carries the inline content of paragraph, bullet and numbered
	// nodes. Code blocks and line breaks have none.
	Spans []Span `json:"spans,omitempty"`
	// Ordinal is the matched ordinal text of a numbered item ("1", "12").
	Ordinal string `json:"ordinal,omitempty"`
	// Language and Code are set for code blocks.
	Language string `json:"language,omitempty"`
	Code     string `json:"code,omitempty"`
}

var (
	fenceLang = regexp.MustCompile(`^[A-Za-z0-9+#._-]+$`)
	numbered  = regexp.MustCompile(`^(\d+)\.\s*(.*)$`)
	bold      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	httpURL   = `https?://[^\s<>]+`
)

// Formatter is a pure message-text formatter. A zero-value Formatter links
// http(s) URLs only; configuring Domain additionally autolinks bare URLs
// under that domain.
type Formatter struct {
	link *regexp.Regexp
}

// New builds a formatter. domain may be empty.
func New(domain string) *Formatter {
	pattern := httpURL
	if domain != "" {
		// Bare or scheme-qualified URLs under the recognized domain.
		pattern = `(?:https?://)?(?:www\.)?` + regexp.QuoteMeta(domain) + `(?:/[^\s<>]*)?|` + httpURL
	}
	return &Formatter{link: regexp.MustCompile(pattern)}
}

// Format converts message text into an ordered sequence of content nodes.
func (f *Formatter) Format(text string) []Node {
	var nodes []Node
	for _, seg := range splitFences(text) {
		if seg.code {
			lang, body := splitCodeBody(seg.text)
			nodes = append(nodes, Node{Kind: KindCodeBlock, Language: lang, Code: body})
			continue
		}
		nodes = append(nodes, f.formatLines(seg.text)...)
	}
	return nodes
}

type segment struct {
	text string
	code bool
}

// splitFences splits text on triple-backtick fences. Segments alternate
// plain/code; an opening fence with no matching close is folded back into
// the preceding plain text unchanged.
func splitFences(text string) []segment {
	parts := strings.Split(text, "```")
	if len(parts)%2 == 0 {
		// Unmatched opening fence: rejoin the dangling tail as plain text.
		parts[len(parts)-2] = parts[len(parts)-2] + "```" + parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}
	segs := make([]segment, 0, len(parts))
	for i, p := range parts {
		if p == "" && i%2 == 0 {
			continue
		}
		segs = append(segs, segment{text: p, code: i%2 == 1})
	}
	return segs
}

// splitCodeBody separates the optional language label on the opening fence
// from the code body and trims surrounding whitespace from the body.
func splitCodeBody(raw string) (lang, body string) {
	first, rest, found := strings.Cut(raw, "\n")
	label := strings.TrimSpace(first)
	if found && (label == "" || fenceLang.MatchString(label)) {
		return label, strings.TrimSpace(rest)
	}
	return "", strings.TrimSpace(raw)
}

// formatLines processes a non-code span line by line.
func (f *Formatter) formatLines(text string) []Node {
	lines := strings.Split(text, "\n")
	// Fence splitting leaves empty boundary lines around code blocks; they
	// would render as spurious breaks.
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	var nodes []Node
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			nodes = append(nodes, Node{Kind: KindLineBreak})
		case strings.HasPrefix(trimmed, "•"):
			item := strings.TrimSpace(strings.TrimPrefix(trimmed, "•"))
			nodes = append(nodes, Node{Kind: KindBulletItem, Spans: f.spans(item)})
		default:
			if m := numbered.FindStringSubmatch(trimmed); m != nil {
				nodes = append(nodes, Node{Kind: KindNumberedItem, Ordinal: m[1], Spans: f.spans(m[2])})
				continue
			}
			nodes = append(nodes, Node{Kind: KindParagraph, Spans: f.spans(trimmed)})
		}
	}
	return nodes
}

// spans applies the two inline rewrites: **bold** emphasis and autolinked
// URLs, with trailing sentence punctuation kept outside the link.
func (f *Formatter) spans(text string) []Span {
	var out []Span
	last := 0
	for _, m := range bold.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, f.linkSpans(text[last:m[0]])...)
		out = append(out, Span{Kind: SpanBold, Text: text[m[2]:m[3]]})
		last = m[1]
	}
	out = append(out, f.linkSpans(text[last:])...)
	return out
}

func (f *Formatter) linkSpans(text string) []Span {
	if text == "" {
		return nil
	}
	var out []Span
	last := 0
	for _, m := range f.link.FindAllStringIndex(text, -1) {
		url := strings.TrimRight(text[m[0]:m[1]], ".,!?;:")
		if url == "" {
			continue
		}
		if text[last:m[0]] != "" {
			out = append(out, Span{Kind: SpanText, Text: text[last:m[0]]})
		}
		href := url
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			href = "https://" + href
		}
		out = append(out, Span{Kind: SpanLink, Text: url, URL: href})
		last = m[0] + len(url)
	}
	if text[last:] != "" {
		out = append(out, Span{Kind: SpanText, Text: text[last:]})
	}
	return out
}
