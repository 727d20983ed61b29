package sanitizer

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkResult is the outcome of sanitizing one chunk.
type ChunkResult struct {
	Sanitized       string
	RemovedElements []string
	Warnings        []string
}

// State carries nesting information from one chunk to the next chunk of the
// same document. The zero value is ready to use.
type State struct {
	// Depth is the number of allowed, non-void tags currently open.
	Depth int

	// dropped counts opening tags removed for depth, per tag name, so their
	// closing tags are removed as well.
	dropped map[string]int
}

// NewState returns an empty State.
func NewState() *State {
	return &State{dropped: make(map[string]int)}
}

func (s *State) drop(name string) {
	if s.dropped == nil {
		s.dropped = make(map[string]int)
	}
	s.dropped[name]++
}

func (s *State) consumeDropped(name string) bool {
	if s.dropped[name] == 0 {
		return false
	}
	s.dropped[name]--
	return true
}

// tagBody matches the attributes of a tag. A quoted value that follows '='
// may hold '<' or '>'.
const tagBody = `((?:=\s*"[^"]*"|=\s*'[^']*'|[^<>"']|["'])*)`

var (
	openTagPattern  = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9:-]*)` + tagBody + `>`)
	tagTokenPattern = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9:-]*)` + tagBody + `>`)
	attrPattern     = regexp.MustCompile("([^\\s\"'<>/=]+)(?:\\s*=\\s*(\"[^\"]*\"|'[^']*'|[^\\s\"'<>=`]+))?")
	eventAttr       = regexp.MustCompile(`^on[a-z]+$`)
)

var unsafeSchemes = []string{"javascript:", "vbscript:", "data:"}

var voidElements = map[string]struct{}{
	"area": {}, "base": {}, "br": {}, "col": {}, "embed": {}, "frame": {},
	"hr": {}, "img": {}, "input": {}, "link": {}, "meta": {}, "param": {},
	"source": {}, "track": {}, "wbr": {},
}

const snippetLen = 80

// SanitizeChunk runs all passes over chunk. state threads nesting depth
// between chunks; nil starts from depth zero.
func SanitizeChunk(chunk string, rs *RuleSet, state *State) (res ChunkResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ChunkResult{
				Sanitized: html.EscapeString(chunk),
				Warnings:  []string{fmt.Sprintf("chunk escaped after sanitizer fault: %v", r)},
			}
		}
	}()
	return Finish(Prepare(chunk, rs), rs, state)
}

// Sanitize treats content as a single chunk.
func Sanitize(content string, rs *RuleSet) ChunkResult {
	return SanitizeChunk(content, rs, nil)
}

// Prepare runs the stateless passes: forbidden blocks, event handlers and
// URL schemes. Its output feeds Finish.
func Prepare(chunk string, rs *RuleSet) ChunkResult {
	out, removed := removeForbidden(chunk, rs)

	out, handlerWarnings := rewriteAttributes(out, func(_ string, a attribute) string {
		if eventAttr.MatchString(a.name) {
			return "removed event handler: " + snippet(a.raw)
		}
		return ""
	})

	out, urlWarnings := rewriteAttributes(out, func(_ string, a attribute) string {
		if (a.name == "href" || a.name == "src") && unsafeURL(a.value) {
			return fmt.Sprintf("removed unsafe %s: %s", a.name, snippet(a.value))
		}
		return ""
	})

	return ChunkResult{
		Sanitized:       out,
		RemovedElements: removed,
		Warnings:        append(handlerWarnings, urlWarnings...),
	}
}

// Finish runs the stateful passes over a prepared chunk: nesting depth and
// the allow-list policy.
func Finish(prepared ChunkResult, rs *RuleSet, state *State) ChunkResult {
	if state == nil {
		state = NewState()
	}
	out, depthWarnings := limitDepth(prepared.Sanitized, rs, state)
	out = applyPolicy(out, rs)

	var warnings []string
	if n := len(prepared.Warnings) + len(depthWarnings); n > 0 {
		warnings = make([]string, 0, n)
		warnings = append(warnings, prepared.Warnings...)
		warnings = append(warnings, depthWarnings...)
	}
	return ChunkResult{
		Sanitized:       out,
		RemovedElements: prepared.RemovedElements,
		Warnings:        warnings,
	}
}

// StripForbidden applies only forbidden-tag removal. It is the degraded path
// used when a time budget runs out.
func StripForbidden(content string, rs *RuleSet) (string, []string) {
	return removeForbidden(content, rs)
}

// removeForbidden deletes complete forbidden blocks and then stray forbidden
// tags, repeating until nothing changes so that removals cannot splice a new
// forbidden tag together.
func removeForbidden(s string, rs *RuleSet) (string, []string) {
	var removed []string
	for {
		if strings.IndexByte(s, '<') < 0 {
			return s, removed
		}
		lower := strings.ToLower(s)
		changed := false
		for _, tag := range rs.forbiddenTags {
			if !strings.Contains(lower, "<"+tag) && !strings.Contains(lower, "</"+tag) {
				continue
			}
			n := 0
			count := func(string) string { n++; return "" }
			s = rs.blocks[tag].ReplaceAllStringFunc(s, count)
			s = rs.lone[tag].ReplaceAllStringFunc(s, count)
			for i := 0; i < n; i++ {
				removed = append(removed, tag)
			}
			if n > 0 {
				changed = true
				lower = strings.ToLower(s)
			}
		}
		if !changed {
			return s, removed
		}
	}
}

type attribute struct {
	name  string // lower-cased
	value string // unquoted, still entity-encoded
	raw   string
}

// rewriteAttributes visits every attribute of every opening tag. decide
// returns a non-empty warning to remove the attribute.
func rewriteAttributes(s string, decide func(tag string, a attribute) string) (string, []string) {
	if strings.IndexByte(s, '<') < 0 {
		return s, nil
	}
	var warnings []string
	out := openTagPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := openTagPattern.FindStringSubmatchIndex(m)
		name, body := m[sub[2]:sub[3]], m[sub[4]:sub[5]]
		newBody, w := filterAttributes(strings.ToLower(name), body, decide)
		if len(w) == 0 {
			return m
		}
		warnings = append(warnings, w...)
		return "<" + name + newBody + ">"
	})
	return out, warnings
}

func filterAttributes(tag, body string, decide func(string, attribute) string) (string, []string) {
	var (
		b        strings.Builder
		warnings []string
		last     int
	)
	for _, loc := range attrPattern.FindAllStringSubmatchIndex(body, -1) {
		a := attribute{
			name: strings.ToLower(body[loc[2]:loc[3]]),
			raw:  body[loc[0]:loc[1]],
		}
		if loc[4] >= 0 {
			a.value = unquote(body[loc[4]:loc[5]])
		}
		w := decide(tag, a)
		if w == "" {
			continue
		}
		warnings = append(warnings, w)

		start := loc[0]
		for start > last && isAttrSeparator(body[start-1]) {
			start--
		}
		b.WriteString(body[last:start])
		last = loc[1]
	}
	if len(warnings) == 0 {
		return body, nil
	}
	b.WriteString(body[last:])
	return b.String(), warnings
}

func isAttrSeparator(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '/'
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// unsafeURL reports whether an attribute value resolves to a script-capable
// scheme once entities, whitespace and control characters are removed.
func unsafeURL(v string) bool {
	v = html.UnescapeString(v)
	v = strings.Map(func(r rune) rune {
		if r <= 0x20 || r == 0x7f || unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
	v = strings.ToLower(v)
	for _, scheme := range unsafeSchemes {
		if strings.HasPrefix(v, scheme) {
			return true
		}
	}
	return false
}

// limitDepth walks tags left to right. Only allowed, non-void tags move the
// depth counter because everything else is removed by the policy pass.
func limitDepth(s string, rs *RuleSet, st *State) (string, []string) {
	if strings.IndexByte(s, '<') < 0 {
		return s, nil
	}
	var warnings []string
	out := tagTokenPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := tagTokenPattern.FindStringSubmatch(m)
		closing, name, rest := sub[1] == "/", strings.ToLower(sub[2]), sub[3]

		if _, void := voidElements[name]; void || !rs.AllowsTag(name) {
			return m
		}
		if closing {
			if st.consumeDropped(name) {
				return ""
			}
			if st.Depth > 0 {
				st.Depth--
			}
			return m
		}
		if strings.HasSuffix(strings.TrimSpace(rest), "/") {
			return m
		}
		if st.Depth > rs.maxDepth {
			st.drop(name)
			warnings = append(warnings, fmt.Sprintf("removed <%s> nested beyond depth %d", name, rs.maxDepth))
			return ""
		}
		st.Depth++
		return m
	})
	return out, warnings
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetLen {
		return s
	}
	r := []rune(s)
	return string(r[:snippetLen]) + "…"
}
