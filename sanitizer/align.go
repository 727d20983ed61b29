package sanitizer

import (
	"strings"
	"unicode/utf8"
)

// maxTagScan bounds how far a boundary looks for the end of a tag it would
// otherwise split. Anything longer is treated as text.
const maxTagScan = 1024

// maxEntityLen bounds the character references a boundary keeps whole.
const maxEntityLen = 32

const maxAlignPasses = 8

// Span is a byte range [Start, End) of a document.
type Span struct {
	Start int
	End   int
}

// Chars returns the number of characters of content covered by the span.
func (s Span) Chars(content string) int {
	return utf8.RuneCountInString(content[s.Start:s.End])
}

// AlignChunks splits content into spans of about chunkSize characters whose
// boundaries never fall inside a tag, a character reference, a comment, a
// CDATA section or a forbidden block.
func AlignChunks(content string, chunkSize int, rs *RuleSet) []Span {
	if content == "" {
		return nil
	}
	if chunkSize <= 0 {
		return []Span{{Start: 0, End: len(content)}}
	}
	var cuts []int
	runes := 0
	for i := range content {
		if runes > 0 && runes%chunkSize == 0 {
			cuts = append(cuts, i)
		}
		runes++
	}
	return AlignBoundaries(content, cuts, rs)
}

// AlignBoundaries moves proposed chunk end offsets (ascending byte offsets
// on rune boundaries) so that no chunk splits markup. See AlignChunks.
// The returned spans cover content exactly once, in order.
func AlignBoundaries(content string, cuts []int, rs *RuleSet) []Span {
	if content == "" {
		return nil
	}
	var spans []Span
	pos := 0
	for _, cut := range cuts {
		if cut <= pos {
			continue
		}
		if cut >= len(content) {
			break
		}
		end := alignEnd(content, pos, cut, rs)
		if end >= len(content) {
			break
		}
		spans = append(spans, Span{Start: pos, End: end})
		pos = end
	}
	return append(spans, Span{Start: pos, End: len(content)})
}

// alignEnd moves a proposed cut until it sits outside every forbidden
// block, comment, CDATA section, tag and character reference. The result is
// always greater than pos.
func alignEnd(content string, pos, end int, rs *RuleSet) int {
	for range maxAlignPasses {
		next, floor := extendPastBlocks(content, pos, end, rs)
		if next >= len(content) {
			return len(content)
		}
		lo := max(pos, floor)
		next = outOfTag(content, pos, lo, next)
		next = outOfEntity(content, pos, lo, next)
		if next == end {
			return end
		}
		end = next
	}
	return end
}

// extendPastBlocks pushes end past the close of any forbidden block,
// comment or CDATA section that opens before it. An unterminated block runs
// to the end of content. floor is the offset just past the last block seen.
func extendPastBlocks(content string, pos, end int, rs *RuleSet) (int, int) {
	cursor := pos
	for cursor < end {
		start, blockEnd := nextBlock(content, cursor, end, rs)
		if start < 0 {
			break
		}
		if blockEnd > end {
			end = blockEnd
		}
		cursor = blockEnd
	}
	return end, cursor
}

var markupBlocks = [...]struct{ open, close string }{
	{"<!--", "-->"},
	{"<![CDATA[", "]]>"},
}

// nextBlock finds the earliest block opening in content[from:end] and
// returns its start and the offset just past its close.
func nextBlock(content string, from, end int, rs *RuleSet) (int, int) {
	window := content[from:end]
	start, blockEnd := -1, 0

	if loc := rs.forbiddenOpen.FindStringSubmatchIndex(window); loc != nil {
		start = from + loc[0]
		openEnd := from + loc[1]
		tag := strings.ToLower(window[loc[2]:loc[3]])
		blockEnd = openEnd
		if _, void := voidElements[tag]; !void {
			blockEnd = len(content)
			if c := rs.closers[tag].FindStringIndex(content[openEnd:]); c != nil {
				blockEnd = openEnd + c[1]
			}
		}
	}

	for _, b := range markupBlocks {
		i := strings.Index(window, b.open)
		if i < 0 || (start >= 0 && from+i > start) {
			continue
		}
		start = from + i
		// "<!-->" is an empty comment, so the close may overlap the opener.
		blockEnd = len(content)
		if c := strings.Index(content[start+2:], b.close); c >= 0 {
			blockEnd = start + 2 + c + len(b.close)
		}
	}
	return start, blockEnd
}

// outOfTag walks the tags in content[lo:end]. A tag still open at end moves
// the cut before it, or past it when that would leave the span empty.
func outOfTag(content string, pos, lo, end int) int {
	limit := min(len(content), end+maxTagScan)
	for i := lo; i < end; {
		lt := strings.IndexByte(content[i:end], '<')
		if lt < 0 {
			return end
		}
		lt += i
		if !isTagStart(content[lt+1]) {
			i = lt + 1
			continue
		}
		if n := openerLen(content[lt:]); n > 0 && lt+n > end {
			if lt > pos {
				return lt
			}
			return lt + n
		}
		gt := tagEnd(content, lt, limit)
		switch {
		case gt < 0:
			i = lt + 1
		case gt < end:
			i = gt + 1
		case lt > pos:
			return lt
		default:
			return gt + 1
		}
	}
	return end
}

// openerLen returns the length of the comment or CDATA opener s starts
// with, or 0.
func openerLen(s string) int {
	for _, b := range markupBlocks {
		if strings.HasPrefix(s, b.open) {
			return len(b.open)
		}
	}
	return 0
}

// tagEnd returns the offset of the '>' that closes the tag opening at lt, or
// -1 when there is none before limit. A '>' inside a quoted attribute value
// does not close the tag.
func tagEnd(content string, lt, limit int) int {
	var quote, prev byte
	for i := lt + 1; i < limit; i++ {
		c := content[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
				prev = c
			}
			continue
		case c == '>':
			return i
		case (c == '"' || c == '\'') && prev == '=':
			quote = c
		}
		if !isSpace(c) {
			prev = c
		}
	}
	return -1
}

// outOfEntity keeps a character reference such as "&amp;" in one span.
func outOfEntity(content string, pos, lo, end int) int {
	from := max(lo, end-maxEntityLen)
	amp := strings.LastIndexByte(content[from:end], '&')
	if amp < 0 {
		return end
	}
	amp += from
	for i := amp + 1; i < end; i++ {
		if !isEntityChar(content[i]) {
			return end
		}
	}
	if amp > pos {
		return amp
	}
	i := end
	for i < len(content) && i-amp < maxEntityLen && isEntityChar(content[i]) {
		i++
	}
	if i < len(content) && content[i] == ';' {
		i++
	}
	return i
}

func isTagStart(c byte) bool {
	return c == '/' || c == '!' || c == '?' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isEntityChar(c byte) bool {
	return c == '#' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
