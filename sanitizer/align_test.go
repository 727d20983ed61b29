package sanitizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertCovers(t *testing.T, content string, spans []Span) {
	t.Helper()
	require.NotEmpty(t, spans)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len(content), spans[len(spans)-1].End)
	for i := 1; i < len(spans); i++ {
		assert.Equal(t, spans[i-1].End, spans[i].Start, "gap or overlap at span %d", i)
		assert.Less(t, spans[i].Start, spans[i].End)
	}
}

func assertNoSplitTags(t *testing.T, content string, spans []Span) {
	t.Helper()
	for _, s := range spans[:len(spans)-1] {
		head := content[:s.End]
		assert.GreaterOrEqual(t, strings.LastIndexByte(head, '>'), strings.LastIndexByte(head, '<'),
			"boundary %d splits a tag", s.End)
	}
}

func TestAlignChunksKeepsTagsWhole(t *testing.T) {
	rs := NewRuleSet(false, false)
	content := `<p class="lead">Hello</p><p>World</p><a href="https://example.com">x</a>`

	for _, size := range []int{1, 3, 5, 7, 16} {
		spans := AlignChunks(content, size, rs)
		assertCovers(t, content, spans)
		assertNoSplitTags(t, content, spans)
	}
}

func TestAlignChunksKeepsForbiddenBlocksWhole(t *testing.T) {
	rs := NewRuleSet(false, false)
	content := "aaaa<script>bbbbbbbbbb</script>cccc"
	start := strings.Index(content, "<script>")
	end := strings.Index(content, "</script>") + len("</script>")

	spans := AlignChunks(content, 6, rs)
	assertCovers(t, content, spans)
	for _, s := range spans[:len(spans)-1] {
		inside := s.End > start && s.End < end
		assert.False(t, inside, "boundary %d inside script block", s.End)
	}
}

func TestAlignChunksUnterminatedBlock(t *testing.T) {
	rs := NewRuleSet(false, false)
	content := "ab<script>" + strings.Repeat("x", 20)

	spans := AlignChunks(content, 4, rs)
	require.Len(t, spans, 2)
	assert.Equal(t, Span{Start: 0, End: 2}, spans[0])
	assert.Equal(t, Span{Start: 2, End: len(content)}, spans[1])
}

func TestAlignChunksVoidForbiddenTag(t *testing.T) {
	rs := NewRuleSet(false, false)
	content := `<input name="q">` + strings.Repeat("y", 40)

	spans := AlignChunks(content, 20, rs)
	assert.Greater(t, len(spans), 1)
	assertCovers(t, content, spans)
}

func TestAlignChunksText(t *testing.T) {
	rs := NewRuleSet(true, false)

	spans := AlignChunks("日本語日本語", 2, rs)
	require.Len(t, spans, 3)
	for _, s := range spans {
		assert.Equal(t, 2, s.Chars("日本語日本語"))
	}

	content := "a < b and c < d"
	spans = AlignChunks(content, 3, rs)
	assert.Len(t, spans, 5)
	assertCovers(t, content, spans)

	assert.Equal(t, []Span{{Start: 0, End: 5}}, AlignChunks("hello", 0, rs))
	assert.Nil(t, AlignChunks("", 10, rs))
}

func TestAlignChunksSanitizeMatchesWhole(t *testing.T) {
	rs := NewRuleSet(false, true)
	content := strings.Repeat(`<div class="para"><p onclick="x()">Clause <b>one</b></p><script>steal()</script></div>`, 20)

	whole := Sanitize(content, rs)

	var b strings.Builder
	st := NewState()
	var removed []string
	for _, s := range AlignChunks(content, 37, rs) {
		res := SanitizeChunk(content[s.Start:s.End], rs, st)
		b.WriteString(res.Sanitized)
		removed = append(removed, res.RemovedElements...)
	}
	assert.Equal(t, whole.Sanitized, b.String())
	assert.Len(t, removed, 20)
}

func assertNoBoundaryInside(t *testing.T, content string, spans []Span, open, close string) {
	t.Helper()
	for from := 0; ; {
		i := strings.Index(content[from:], open)
		if i < 0 {
			return
		}
		start := from + i
		end := len(content)
		if c := strings.Index(content[start+len(open):], close); c >= 0 {
			end = start + len(open) + c + len(close)
		}
		for _, s := range spans[:len(spans)-1] {
			assert.False(t, s.End > start && s.End < end, "boundary %d inside %q at %d", s.End, open, start)
		}
		from = end
		if from >= len(content) {
			return
		}
	}
}

func TestAlignChunksKeepsCommentsWhole(t *testing.T) {
	rs := NewRuleSet(false, false)
	content := `<p>Hello</p><!-- internal note: a > b, privileged -->` + strings.Repeat(`<p>x</p>`, 3)

	for _, size := range []int{3, 7, 20, 33} {
		spans := AlignChunks(content, size, rs)
		assertCovers(t, content, spans)
		assertNoBoundaryInside(t, content, spans, "<!--", "-->")

		var b strings.Builder
		st := NewState()
		for _, s := range spans {
			b.WriteString(SanitizeChunk(content[s.Start:s.End], rs, st).Sanitized)
		}
		assert.NotContains(t, b.String(), "privileged", "chunk size %d", size)
	}
}

func TestAlignChunksKeepsCDATAWhole(t *testing.T) {
	rs := NewRuleSet(false, false)
	content := `<p>a</p><![CDATA[ x > y <b>not a tag</b> ]]><p>b</p>`

	for _, size := range []int{4, 10, 25} {
		spans := AlignChunks(content, size, rs)
		assertCovers(t, content, spans)
		assertNoBoundaryInside(t, content, spans, "<![CDATA[", "]]>")
	}
}

func TestAlignChunksUnterminatedComment(t *testing.T) {
	rs := NewRuleSet(false, false)
	content := "intro<!-- never closed " + strings.Repeat("z", 30)

	spans := AlignChunks(content, 8, rs)
	require.Len(t, spans, 2)
	assert.Equal(t, Span{Start: 0, End: 5}, spans[0])
	assert.Equal(t, Span{Start: 5, End: len(content)}, spans[1])
}

func TestAlignChunksKeepsEntitiesWhole(t *testing.T) {
	rs := NewRuleSet(false, false)
	content := strings.Repeat("AT&amp;T and Smith &amp; Co. &#169;&nbsp;", 6)

	for _, size := range []int{1, 2, 5, 9} {
		spans := AlignChunks(content, size, rs)
		assertCovers(t, content, spans)
		for _, s := range spans[:len(spans)-1] {
			head := content[:s.End]
			amp := strings.LastIndexByte(head, '&')
			if amp >= 0 && len(head)-amp <= maxEntityLen {
				assert.Contains(t, head[amp:], ";", "boundary %d splits a reference", s.End)
			}
		}
	}
}

func TestAlignChunksEntityAtSpanStart(t *testing.T) {
	rs := NewRuleSet(false, false)

	// A reference that opens the span is taken whole rather than leaving an
	// empty span.
	spans := AlignBoundaries("&amp;rest", []int{2}, rs)
	assert.Equal(t, []Span{{Start: 0, End: 5}, {Start: 5, End: 9}}, spans)
}

func TestAlignChunksQuotedGreaterThan(t *testing.T) {
	rs := NewRuleSet(false, false)
	content := `<p title="a>b" class="c">text</p><p title='x>y'>more</p>`

	for _, size := range []int{2, 5, 12} {
		spans := AlignChunks(content, size, rs)
		assertCovers(t, content, spans)
		for _, s := range spans[:len(spans)-1] {
			inTag := false
			for i := 0; i < len(content); i++ {
				if content[i] != '<' {
					continue
				}
				gt := tagEnd(content, i, len(content))
				if s.End > i && s.End <= gt {
					inTag = true
				}
			}
			assert.False(t, inTag, "boundary %d splits a tag", s.End)
		}
	}
}

func TestTagEnd(t *testing.T) {
	content := `<a href="x>y" title=it's>z`
	assert.Equal(t, strings.Index(content, ">z"), tagEnd(content, 0, len(content)))
	assert.Equal(t, -1, tagEnd(`<a title="open>`, 0, len(`<a title="open>`)))
}
