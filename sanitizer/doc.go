// Package sanitizer neutralizes untrusted HTML one chunk at a time.
//
// A document is cut with AlignChunks so that no chunk splits a tag or a
// forbidden block, then each chunk goes through five ordered passes:
//
//  1. forbidden blocks such as <script>…</script> are removed with their content
//  2. inline on* event handlers are stripped
//  3. href/src attributes with javascript:, vbscript: or data: URLs are dropped
//  4. tags nested beyond MaxNestingDepth are dropped (depth carried in State)
//  5. the RuleSet's bluemonday policy removes anything not on the allow-list
//
// Passes 1-3 are stateless (Prepare) and may run in parallel. Passes 4-5
// (Finish) must see chunks in document order with a shared *State.
//
//	rs := sanitizer.NewRuleSet(false, true)
//	st := sanitizer.NewState()
//	for _, span := range sanitizer.AlignChunks(doc, 5000, rs) {
//	    res := sanitizer.SanitizeChunk(doc[span.Start:span.End], rs, st)
//	    out.WriteString(res.Sanitized)
//	}
//
// Sanitization never fails; hostile input only produces more removals and
// warnings.
package sanitizer
