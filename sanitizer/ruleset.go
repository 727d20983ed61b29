package sanitizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNestingDepth is the deepest tag nesting that survives sanitization.
const MaxNestingDepth = 10

// Profile names a built-in rule set.
type Profile string

const (
	ProfileStrict     Profile = "strict"
	ProfileStandard   Profile = "standard"
	ProfileFormatting Profile = "formatting"
)

// globalAttrs is the AllowedAttrs key for attributes permitted on every tag.
const globalAttrs = "*"

// dataAttrWildcard in an attribute set permits every data-* attribute.
const dataAttrWildcard = "data-*"

var (
	strictTags = []string{"p", "br", "b", "strong", "i", "em"}

	standardTags = []string{
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "u", "a", "img",
	}

	formattingTags = []string{
		"div", "span", "blockquote", "pre", "code",
		"table", "caption", "thead", "tbody", "tfoot", "tr", "th", "td",
	}

	defaultForbiddenTags = []string{
		"applet", "base", "button", "embed", "form", "frame", "frameset",
		"iframe", "input", "link", "meta", "noscript", "object", "script",
		"select", "style", "textarea",
	}
)

// RuleSet is an immutable allow-list profile. Use NewRuleSet to obtain one.
type RuleSet struct {
	profile            Profile
	strictMode         bool
	preserveFormatting bool
	maxDepth           int

	allowedTags   map[string]struct{}
	allowedAttrs  map[string]map[string]struct{}
	forbiddenTags []string

	forbiddenOpen *regexp.Regexp
	blocks        map[string]*regexp.Regexp
	closers       map[string]*regexp.Regexp
	lone          map[string]*regexp.Regexp

	policyOnce sync.Once
	policy     *bluemonday.Policy
}

type profileKey struct {
	strict, preserve bool
}

var (
	ruleSetsMu sync.Mutex
	ruleSets   = make(map[profileKey]*RuleSet)
)

// NewRuleSet selects or composes a profile from the two flags. strictMode
// wins over preserveFormatting. Rule sets are shared and safe for
// concurrent use.
func NewRuleSet(strictMode, preserveFormatting bool) *RuleSet {
	key := profileKey{strict: strictMode, preserve: preserveFormatting}

	ruleSetsMu.Lock()
	defer ruleSetsMu.Unlock()
	if rs, ok := ruleSets[key]; ok {
		return rs
	}
	rs := buildRuleSet(strictMode, preserveFormatting)
	ruleSets[key] = rs
	return rs
}

func buildRuleSet(strictMode, preserveFormatting bool) *RuleSet {
	rs := &RuleSet{
		strictMode:         strictMode,
		preserveFormatting: preserveFormatting && !strictMode,
		maxDepth:           MaxNestingDepth,
		allowedTags:        make(map[string]struct{}),
		allowedAttrs:       make(map[string]map[string]struct{}),
	}

	rs.allowTags(strictTags...)
	switch {
	case strictMode:
		rs.profile = ProfileStrict
	default:
		rs.profile = ProfileStandard
		rs.allowTags(standardTags...)
		rs.allowAttrs(globalAttrs, "class", "style")
		rs.allowAttrs("a", "href", "title")
		rs.allowAttrs("img", "src", "alt", "width", "height")
		if rs.preserveFormatting {
			rs.profile = ProfileFormatting
			rs.allowTags(formattingTags...)
			rs.allowAttrs(globalAttrs, dataAttrWildcard)
			rs.allowAttrs("th", "colspan", "rowspan")
			rs.allowAttrs("td", "colspan", "rowspan")
		}
	}

	rs.forbiddenTags = append([]string(nil), defaultForbiddenTags...)
	sort.Strings(rs.forbiddenTags)
	rs.compileForbidden()
	return rs
}

func (rs *RuleSet) allowTags(tags ...string) {
	for _, t := range tags {
		rs.allowedTags[t] = struct{}{}
	}
}

func (rs *RuleSet) allowAttrs(tag string, attrs ...string) {
	set, ok := rs.allowedAttrs[tag]
	if !ok {
		set = make(map[string]struct{})
		rs.allowedAttrs[tag] = set
	}
	for _, a := range attrs {
		set[a] = struct{}{}
	}
}

func (rs *RuleSet) compileForbidden() {
	rs.blocks = make(map[string]*regexp.Regexp, len(rs.forbiddenTags))
	rs.closers = make(map[string]*regexp.Regexp, len(rs.forbiddenTags))
	rs.lone = make(map[string]*regexp.Regexp, len(rs.forbiddenTags))
	quoted := make([]string, 0, len(rs.forbiddenTags))
	for _, tag := range rs.forbiddenTags {
		q := regexp.QuoteMeta(tag)
		quoted = append(quoted, q)
		rs.blocks[tag] = regexp.MustCompile(fmt.Sprintf(`(?is)<%s\b[^>]*>.*?</%s\s*>`, q, q))
		rs.closers[tag] = regexp.MustCompile(fmt.Sprintf(`(?i)</%s\s*>`, q))
		rs.lone[tag] = regexp.MustCompile(fmt.Sprintf(`(?i)</?%s\b[^>]*>`, q))
	}
	rs.forbiddenOpen = regexp.MustCompile(`(?i)<(` + strings.Join(quoted, "|") + `)\b[^>]*>`)
}

// Profile returns which built-in profile this rule set implements.
func (rs *RuleSet) Profile() Profile { return rs.profile }

// Name is Profile as a string.
func (rs *RuleSet) Name() string { return string(rs.profile) }

// StrictMode reports whether the strict profile is active.
func (rs *RuleSet) StrictMode() bool { return rs.strictMode }

// PreserveFormatting reports whether the formatting-preserving layer is active.
func (rs *RuleSet) PreserveFormatting() bool { return rs.preserveFormatting }

// MaxDepth is the nesting limit enforced by this rule set.
func (rs *RuleSet) MaxDepth() int { return rs.maxDepth }

// AllowsTag reports whether tag survives sanitization.
func (rs *RuleSet) AllowsTag(tag string) bool {
	_, ok := rs.allowedTags[strings.ToLower(tag)]
	return ok
}

// AllowsAttr reports whether attr survives on tag, either through a
// per-tag entry or the global set. data-* attributes match the wildcard.
func (rs *RuleSet) AllowsAttr(tag, attr string) bool {
	tag, attr = strings.ToLower(tag), strings.ToLower(attr)
	for _, key := range []string{tag, globalAttrs} {
		set := rs.allowedAttrs[key]
		if _, ok := set[attr]; ok {
			return true
		}
		if _, ok := set[dataAttrWildcard]; ok && strings.HasPrefix(attr, "data-") {
			return true
		}
	}
	return false
}

// IsForbidden reports whether tag is removed together with its content.
func (rs *RuleSet) IsForbidden(tag string) bool {
	_, ok := rs.blocks[strings.ToLower(tag)]
	return ok
}

// ForbiddenTags returns the forbidden tag names in sorted order.
func (rs *RuleSet) ForbiddenTags() []string {
	return append([]string(nil), rs.forbiddenTags...)
}

// AllowedTags returns the allowed tag names in sorted order.
func (rs *RuleSet) AllowedTags() []string {
	tags := make([]string, 0, len(rs.allowedTags))
	for t := range rs.allowedTags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
