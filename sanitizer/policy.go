package sanitizer

import (
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// styleProperties are the CSS properties kept inside an allowed style attribute.
var styleProperties = []string{
	"background-color", "border", "color", "font-family", "font-size",
	"font-style", "font-weight", "height", "margin", "padding",
	"text-align", "text-decoration", "vertical-align", "width",
}

// Policy returns the bluemonday policy enforcing the rule set's allow-list.
// The policy is built once per rule set.
func (rs *RuleSet) Policy() *bluemonday.Policy {
	rs.policyOnce.Do(func() {
		rs.policy = buildPolicy(rs)
	})
	return rs.policy
}

func buildPolicy(rs *RuleSet) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(rs.AllowedTags()...)

	keys := make([]string, 0, len(rs.allowedAttrs))
	for k := range rs.allowedAttrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hasURLs := false
	for _, tag := range keys {
		var names []string
		for attr := range rs.allowedAttrs[tag] {
			switch attr {
			case dataAttrWildcard:
				p.AllowDataAttributes()
				continue
			case "style":
				if tag == globalAttrs {
					p.AllowStyles(styleProperties...).Globally()
				} else {
					p.AllowStyles(styleProperties...).OnElements(tag)
				}
				continue
			case "href", "src":
				hasURLs = true
			}
			names = append(names, attr)
		}
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		if tag == globalAttrs {
			p.AllowAttrs(names...).Globally()
		} else {
			p.AllowAttrs(names...).OnElements(tag)
		}
	}

	if hasURLs {
		p.RequireParseableURLs(true)
		p.AllowRelativeURLs(true)
		p.AllowURLSchemes("http", "https", "mailto", "tel")
	}
	return p
}

// applyPolicy runs the allow-list pass over an already pre-cleaned chunk.
func applyPolicy(chunk string, rs *RuleSet) string {
	// Chunks the tokenizer would emit unchanged skip the parse.
	if !strings.ContainsAny(chunk, "<>&\"'\r\x00") {
		return chunk
	}
	return rs.Policy().Sanitize(chunk)
}
