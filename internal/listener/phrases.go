package listener

import (
	"regexp"
	"slices"
	"strings"
)

// containsFold reports whether phrase occurs in text, ignoring case. An
// empty phrase never matches.
func containsFold(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(phrase))
}

// Stripper removes control phrases from transcribed text, case-insensitively.
// Longer phrases are tried first so "stop session" is removed whole rather
// than leaving "session" behind after "stop". Surrounding whitespace and
// punctuation are left as they are.
type Stripper struct {
	re *regexp.Regexp
}

// NewStripper compiles the given phrases. Empty phrases are ignored.
func NewStripper(phrases ...string) *Stripper {
	var quoted []string
	for _, p := range phrases {
		if p != "" {
			quoted = append(quoted, p)
		}
	}
	if len(quoted) == 0 {
		return &Stripper{}
	}

	slices.SortStableFunc(quoted, func(a, b string) int { return len(b) - len(a) })
	for i, p := range quoted {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return &Stripper{re: regexp.MustCompile("(?i)(?:" + strings.Join(quoted, "|") + ")")}
}

// Strip returns text with every occurrence of the phrases removed.
func (s *Stripper) Strip(text string) string {
	if s.re == nil {
		return text
	}
	return s.re.ReplaceAllString(text, "")
}
