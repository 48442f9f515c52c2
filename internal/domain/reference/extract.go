// Package reference extracts task references from commit messages and pull
// request text.
package reference

import (
	"regexp"
	"strconv"

	"github.com/Strob0t/TaskForge/internal/domain/link"
)

// Reference is a single match of a task pattern in free text.
type Reference struct {
	TaskID      string    `json:"task_id"`
	LinkType    link.Type `json:"link_type"`
	MatchedText string    `json:"matched_text"`
}

const prefixes = `(?:TASK|DEV|ISSUE|BUG|FEAT|FIX)[-_]?`

type pattern struct {
	re       *regexp.Regexp
	linkType link.Type
}

// patterns is evaluated in order; every pattern runs over the full text.
// The bare "#" form is case-sensitive, keyword forms are not. Prefixed ids
// match anywhere in a word, so "sub_TASK-42" references task 42.
var patterns = []pattern{
	{regexp.MustCompile(`#(\d+)`), link.TypeReference},
	{regexp.MustCompile(`(?i)` + prefixes + `(\d+)`), link.TypeReference},
	{regexp.MustCompile(`(?i)\bcloses?\s+#(\d+)`), link.TypeCloses},
	{regexp.MustCompile(`(?i)\bfix(?:es)?\s+#(\d+)`), link.TypeFixes},
	{regexp.MustCompile(`(?i)\bresolves?\s+#(\d+)`), link.TypeResolves},
	{regexp.MustCompile(`(?i)\bcloses?\s+` + prefixes + `(\d+)`), link.TypeCloses},
	{regexp.MustCompile(`(?i)\bfix(?:es)?\s+` + prefixes + `(\d+)`), link.TypeFixes},
	{regexp.MustCompile(`(?i)\bresolves?\s+` + prefixes + `(\d+)`), link.TypeResolves},
}

type match struct {
	ref        Reference
	start, end int
}

// Extract returns every task reference found in text.
//
// Results are unique by (TaskID, LinkType, MatchedText) only, so "#42" and
// "TASK-42" in the same text are two references to task 42. A plain reference
// that sits inside a closing phrase ("Fixes #42") is part of that phrase and is
// not reported separately. Ids that do not parse as integers are dropped.
func Extract(text string) []Reference {
	if text == "" {
		return nil
	}

	var all []match
	var closing [][2]int
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			id, err := strconv.ParseInt(text[loc[2]:loc[3]], 10, 64)
			if err != nil {
				continue
			}
			m := match{
				ref: Reference{
					TaskID:      strconv.FormatInt(id, 10),
					LinkType:    p.linkType,
					MatchedText: text[loc[0]:loc[1]],
				},
				start: loc[0],
				end:   loc[1],
			}
			all = append(all, m)
			if p.linkType.IsClosing() {
				closing = append(closing, [2]int{m.start, m.end})
			}
		}
	}

	seen := make(map[Reference]struct{}, len(all))
	var refs []Reference
	for _, m := range all {
		if m.ref.LinkType == link.TypeReference && within(m.start, m.end, closing) {
			continue
		}
		if _, dup := seen[m.ref]; dup {
			continue
		}
		seen[m.ref] = struct{}{}
		refs = append(refs, m.ref)
	}
	return refs
}

func within(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start >= s[0] && end <= s[1] {
			return true
		}
	}
	return false
}
