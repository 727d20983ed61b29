package sanitizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeEliminatesScript(t *testing.T) {
	rs := NewRuleSet(false, false)
	res := SanitizeChunk("<p>Hello</p><script>alert(1)</script><p>World</p>", rs, nil)

	assert.Equal(t, "<p>Hello</p><p>World</p>", res.Sanitized)
	assert.Equal(t, []string{"script"}, res.RemovedElements)
	assert.Empty(t, res.Warnings)
}

func TestSanitizeForbiddenBlocks(t *testing.T) {
	rs := NewRuleSet(false, false)

	tests := []struct {
		name    string
		in      string
		want    string
		removed []string
	}{
		{"upper case", `<SCRIPT type="text/javascript">x()</SCRIPT >ok`, "ok", []string{"script"}},
		{"style block", "<style>p{color:red}</style><p>memo</p>", "<p>memo</p>", []string{"style"}},
		{"stray tag", "before<iframe src=\"https://evil.test\">after", "beforeafter", []string{"iframe"}},
		{"spliced tag", "<scr<script></script>ipt>alert(1)</script>", "alert(1)", []string{"script", "script", "script"}},
		{"multiline block", "<noscript>\n<img src=x>\n</noscript>done", "done", []string{"noscript"}},
		{"form controls", "<form action=\"/x\"><input name=a><button>go</button></form>", "", []string{"button", "form"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := SanitizeChunk(tt.in, rs, nil)
			assert.Equal(t, tt.want, res.Sanitized)
			assert.ElementsMatch(t, tt.removed, res.RemovedElements)
		})
	}
}

func TestSanitizeEventHandlers(t *testing.T) {
	rs := NewRuleSet(false, false)

	res := SanitizeChunk(`<p onclick="alert(1)" class="note">Hi</p>`, rs, nil)
	assert.Equal(t, `<p class="note">Hi</p>`, res.Sanitized)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, `removed event handler: onclick="alert(1)"`, res.Warnings[0])

	res = SanitizeChunk(`<img/onerror=alert(1) src="exhibit.png">`, rs, nil)
	assert.NotContains(t, res.Sanitized, "onerror")
	assert.Contains(t, res.Sanitized, `src="exhibit.png"`)
	assert.Len(t, res.Warnings, 1)

	res = SanitizeChunk(`<p title="onclick=x">keep</p>`, NewRuleSet(false, true), nil)
	assert.Empty(t, res.Warnings)
}

func TestSanitizeEventHandlerAfterQuotedGreaterThan(t *testing.T) {
	rs := NewRuleSet(false, false)

	for _, in := range []string{
		`<p title="a>b" onclick="x">t</p>`,
		`<p title='a>b' onclick="x">t</p>`,
		`<p title = "a>b" onclick=x>t</p>`,
	} {
		res := SanitizeChunk(in, rs, nil)
		assert.NotContains(t, res.Sanitized, "onclick", in)
		require.Len(t, res.Warnings, 1, in)
		assert.True(t, strings.HasPrefix(res.Warnings[0], "removed event handler: onclick="), in)
	}
}

func TestSanitizeUnsafeURLs(t *testing.T) {
	rs := NewRuleSet(false, false)

	tests := []struct {
		name string
		in   string
	}{
		{"javascript", `<a href="javascript:alert(1)" title="x">go</a>`},
		{"mixed case and spaces", `<a href=" JaVaScRiPt:alert(1)" title="x">go</a>`},
		{"entity encoded tab", `<a href="jav&#x09;ascript:alert(1)" title="x">go</a>`},
		{"vbscript", `<a href='vbscript:msgbox(1)' title="x">go</a>`},
		{"data image", `<img src="data:image/png;base64,AAAA" alt="scan">`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := SanitizeChunk(tt.in, rs, nil)
			lower := strings.ToLower(res.Sanitized)
			assert.NotContains(t, lower, "script:")
			assert.NotContains(t, lower, "data:")
			require.Len(t, res.Warnings, 1)
			assert.True(t, strings.HasPrefix(res.Warnings[0], "removed unsafe "))
		})
	}

	res := SanitizeChunk(`<a href="https://example.com/doc?id=1">doc</a>`, rs, nil)
	assert.Equal(t, `<a href="https://example.com/doc?id=1">doc</a>`, res.Sanitized)
	assert.Empty(t, res.Warnings)
}

func TestSanitizeDepthLimit(t *testing.T) {
	rs := NewRuleSet(true, false)
	in := strings.Repeat("<b>", 13) + "x" + strings.Repeat("</b>", 13)

	res := SanitizeChunk(in, rs, nil)
	assert.Equal(t, strings.Repeat("<b>", 11)+"x"+strings.Repeat("</b>", 11), res.Sanitized)
	assert.Len(t, res.Warnings, 2)

	// Void elements and disallowed tags never count toward depth.
	flat := strings.Repeat("<br>", 30) + strings.Repeat("<section>", 30) + "<b>y</b>"
	res = SanitizeChunk(flat, rs, nil)
	assert.Empty(t, res.Warnings)
	assert.Contains(t, res.Sanitized, "<b>y</b>")
}

func TestSanitizeDepthCarriesAcrossChunks(t *testing.T) {
	rs := NewRuleSet(true, false)
	first := strings.Repeat("<b>", 11)
	second := "<i>x</i>" + strings.Repeat("</b>", 11)

	st := NewState()
	res1 := SanitizeChunk(first, rs, st)
	assert.Equal(t, first, res1.Sanitized)
	assert.Equal(t, 11, st.Depth)

	res2 := SanitizeChunk(second, rs, st)
	assert.Equal(t, "x"+strings.Repeat("</b>", 11), res2.Sanitized)
	assert.Len(t, res2.Warnings, 1)
	assert.Equal(t, 0, st.Depth)

	reset := SanitizeChunk(second, rs, nil)
	assert.True(t, strings.HasPrefix(reset.Sanitized, "<i>x</i>"))
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"<p>Hello</p><script>alert(1)</script><p>World</p>",
		"<scr<script></script>ipt>alert(1)</script>",
		"<<script>script>alert(1)<</script>/script>",
		`<div><p onmouseover=alert(1)>x</p></div>`,
		`<a href="javascript:alert(1)">x</a>`,
		`<img src=x onerror=alert(1)>`,
		`<p style="color:red;background:url(javascript:alert(1))">t</p>`,
		`<a href="https://x.test/?q=a&b=c">link</a>`,
		"Tom & Jerry <3",
		"<table><tr><td colspan=2 data-row=\"1\">cell</td></tr></table>",
		strings.Repeat("<span>", 15) + "deep" + strings.Repeat("</span>", 15),
		"Résumé: 日本語 <em>ok</em>",
		"<p>unclosed <b>bold",
		"</p></b> stray closers <p>",
	}
	for _, rs := range []*RuleSet{NewRuleSet(true, false), NewRuleSet(false, false), NewRuleSet(false, true)} {
		for _, in := range inputs {
			once := Sanitize(in, rs)
			twice := Sanitize(once.Sanitized, rs)
			assert.Equal(t, once.Sanitized, twice.Sanitized, "%s: %q", rs.Name(), in)
			assert.Empty(t, twice.RemovedElements, "%s: %q", rs.Name(), in)
			assert.Empty(t, twice.Warnings, "%s: %q", rs.Name(), in)
		}
	}
}

func TestSanitizeNeverPanics(t *testing.T) {
	rs := NewRuleSet(false, true)
	for _, in := range []string{
		"", "<", ">", "<a", "</", "<a href='", "\x00<p\x00>", "<!--", "<![CDATA[x",
		"<p " + strings.Repeat("a=b ", 500), strings.Repeat("<", 2000),
	} {
		assert.NotPanics(t, func() { SanitizeChunk(in, rs, NewState()) }, "%q", in)
	}
}

func TestStripForbidden(t *testing.T) {
	rs := NewRuleSet(false, false)
	out, removed := StripForbidden(`a<style>b</style>c<iframe src=x><p onclick="x">d</p>`, rs)
	assert.Equal(t, `ac<p onclick="x">d</p>`, out)
	assert.ElementsMatch(t, []string{"iframe", "style"}, removed)
}

func TestPrepareIsStateless(t *testing.T) {
	rs := NewRuleSet(false, false)
	in := `<p onclick="x">a</p><script>y</script>`
	assert.Equal(t, Prepare(in, rs), Prepare(in, rs))

	prepared := Prepare(in, rs)
	assert.Equal(t, "<p>a</p>", prepared.Sanitized)
	assert.Equal(t, []string{"script"}, prepared.RemovedElements)
}
