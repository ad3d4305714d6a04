package format_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura-assist/engine/internal/format"
)

func text(s string) format.Span { return format.Span{Kind: format.SpanText, Text: s} }

func TestFormat_CodeBlocks(t *testing.T) {
	f := format.New("")

	t.Run("fenced block with language", func(t *testing.T) {
		nodes := f.Format("```js\nconsole.log(1)\n```")
		require.Len(t, nodes, 1)
		assert.Equal(t, format.KindCodeBlock, nodes[0].Kind)
		assert.Equal(t, "js", nodes[0].Language)
		assert.Equal(t, "console.log(1)", nodes[0].Code)
	})

	t.Run("fenced block without language", func(t *testing.T) {
		nodes := f.Format("```\nfoo()\n```")
		require.Len(t, nodes, 1)
		assert.Equal(t, format.KindCodeBlock, nodes[0].Kind)
		assert.Empty(t, nodes[0].Language)
		assert.Equal(t, "foo()", nodes[0].Code)
	})

	t.Run("code between paragraphs", func(t *testing.T) {
		nodes := f.Format("before\n```go\nfmt.Println(1)\n```\nafter")
		require.Len(t, nodes, 3)
		assert.Equal(t, format.KindParagraph, nodes[0].Kind)
		assert.Equal(t, []format.Span{text("before")}, nodes[0].Spans)
		assert.Equal(t, format.KindCodeBlock, nodes[1].Kind)
		assert.Equal(t, "go", nodes[1].Language)
		assert.Equal(t, format.KindParagraph, nodes[2].Kind)
	})

	t.Run("unmatched fence passes through as text", func(t *testing.T) {
		nodes := f.Format("broken ```js\nfoo")
		require.Len(t, nodes, 2)
		assert.Equal(t, format.KindParagraph, nodes[0].Kind)
		assert.Equal(t, []format.Span{text("broken ```js")}, nodes[0].Spans)
		assert.Equal(t, []format.Span{text("foo")}, nodes[1].Spans)
	})
}

func TestFormat_Lines(t *testing.T) {
	f := format.New("")

	t.Run("bullet item", func(t *testing.T) {
		nodes := f.Format("• item one")
		require.Len(t, nodes, 1)
		assert.Equal(t, format.KindBulletItem, nodes[0].Kind)
		assert.Equal(t, []format.Span{text("item one")}, nodes[0].Spans)
	})

	t.Run("numbered item keeps ordinal", func(t *testing.T) {
		nodes := f.Format("12. twelfth thing")
		require.Len(t, nodes, 1)
		assert.Equal(t, format.KindNumberedItem, nodes[0].Kind)
		assert.Equal(t, "12", nodes[0].Ordinal)
		assert.Equal(t, []format.Span{text("twelfth thing")}, nodes[0].Spans)
	})

	t.Run("empty line becomes line break", func(t *testing.T) {
		nodes := f.Format("one\n\ntwo")
		require.Len(t, nodes, 3)
		assert.Equal(t, format.KindParagraph, nodes[0].Kind)
		assert.Equal(t, format.KindLineBreak, nodes[1].Kind)
		assert.Equal(t, format.KindParagraph, nodes[2].Kind)
	})
}

func TestFormat_InlineSpans(t *testing.T) {
	f := format.New("")

	t.Run("bold emphasis", func(t *testing.T) {
		nodes := f.Format("this is **bold** text")
		require.Len(t, nodes, 1)
		assert.Equal(t, []format.Span{
			text("this is "),
			{Kind: format.SpanBold, Text: "bold"},
			text(" text"),
		}, nodes[0].Spans)
	})

	t.Run("no literal asterisks remain", func(t *testing.T) {
		nodes := f.Format("**bold**")
		require.Len(t, nodes, 1)
		require.Len(t, nodes[0].Spans, 1)
		assert.Equal(t, format.SpanBold, nodes[0].Spans[0].Kind)
		assert.Equal(t, "bold", nodes[0].Spans[0].Text)
	})

	t.Run("autolinks http urls", func(t *testing.T) {
		nodes := f.Format("see https://example.com/docs for details")
		require.Len(t, nodes, 1)
		assert.Equal(t, []format.Span{
			text("see "),
			{Kind: format.SpanLink, Text: "https://example.com/docs", URL: "https://example.com/docs"},
			text(" for details"),
		}, nodes[0].Spans)
	})

	t.Run("trailing punctuation stays outside the link", func(t *testing.T) {
		nodes := f.Format("read https://example.com/docs.")
		require.Len(t, nodes, 1)
		assert.Equal(t, []format.Span{
			text("read "),
			{Kind: format.SpanLink, Text: "https://example.com/docs", URL: "https://example.com/docs"},
			text("."),
		}, nodes[0].Spans)
	})

	t.Run("bullets get inline rewrites too", func(t *testing.T) {
		nodes := f.Format("• **key** point")
		require.Len(t, nodes, 1)
		assert.Equal(t, format.KindBulletItem, nodes[0].Kind)
		assert.Equal(t, []format.Span{
			{Kind: format.SpanBold, Text: "key"},
			text(" point"),
		}, nodes[0].Spans)
	})
}

func TestFormat_RecognizedDomain(t *testing.T) {
	f := format.New("acme-help.com")

	t.Run("bare domain url is linked", func(t *testing.T) {
		nodes := f.Format("visit acme-help.com/billing today")
		require.Len(t, nodes, 1)
		assert.Equal(t, []format.Span{
			text("visit "),
			{Kind: format.SpanLink, Text: "acme-help.com/billing", URL: "https://acme-help.com/billing"},
			text(" today"),
		}, nodes[0].Spans)
	})

	t.Run("www prefix is linked", func(t *testing.T) {
		nodes := f.Format("www.acme-help.com")
		require.Len(t, nodes, 1)
		require.Len(t, nodes[0].Spans, 1)
		link := nodes[0].Spans[0]
		assert.Equal(t, format.SpanLink, link.Kind)
		assert.Equal(t, "https://www.acme-help.com", link.URL)
	})
}
