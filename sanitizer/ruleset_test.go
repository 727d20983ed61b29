package sanitizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRuleSetProfiles(t *testing.T) {
	tests := []struct {
		name     string
		strict   bool
		preserve bool
		profile  Profile
		allowed  []string
		denied   []string
	}{
		{"strict", true, false, ProfileStrict, []string{"p", "br", "strong"}, []string{"a", "h1", "div"}},
		{"strict wins", true, true, ProfileStrict, []string{"em"}, []string{"table", "img"}},
		{"standard", false, false, ProfileStandard, []string{"h2", "ul", "a", "img"}, []string{"div", "table"}},
		{"formatting", false, true, ProfileFormatting, []string{"div", "table", "td", "code", "a"}, []string{"script", "form"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewRuleSet(tt.strict, tt.preserve)
			assert.Equal(t, tt.profile, rs.Profile())
			for _, tag := range tt.allowed {
				assert.True(t, rs.AllowsTag(tag), tag)
			}
			for _, tag := range tt.denied {
				assert.False(t, rs.AllowsTag(tag), tag)
			}
			assert.Equal(t, MaxNestingDepth, rs.MaxDepth())
		})
	}
}

func TestRuleSetAttributes(t *testing.T) {
	strict := NewRuleSet(true, false)
	assert.False(t, strict.AllowsAttr("p", "class"))

	standard := NewRuleSet(false, false)
	assert.True(t, standard.AllowsAttr("p", "class"))
	assert.True(t, standard.AllowsAttr("a", "HREF"))
	assert.True(t, standard.AllowsAttr("img", "width"))
	assert.False(t, standard.AllowsAttr("p", "href"))
	assert.False(t, standard.AllowsAttr("p", "data-id"))

	formatting := NewRuleSet(false, true)
	assert.True(t, formatting.AllowsAttr("span", "data-matter-id"))
	assert.True(t, formatting.AllowsAttr("td", "colspan"))
	assert.False(t, formatting.AllowsAttr("p", "colspan"))
}

func TestRuleSetSharedAndForbidden(t *testing.T) {
	assert.Same(t, NewRuleSet(false, true), NewRuleSet(false, true))

	rs := NewRuleSet(false, false)
	for _, tag := range []string{"script", "STYLE", "iframe", "noscript", "base"} {
		assert.True(t, rs.IsForbidden(tag), tag)
	}
	assert.False(t, rs.IsForbidden("p"))
	assert.Contains(t, rs.ForbiddenTags(), "applet")
	assert.NotNil(t, rs.Policy())
	assert.Same(t, rs.Policy(), rs.Policy())
}
