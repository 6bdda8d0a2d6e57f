package mirror

import (
	"regexp"
	"strings"
	"sync"
)

// CategoryFilter gates markets by their declared category. When a market
// carries no category at all, BlockedTitlePatterns is matched against the
// title as a fallback so sports parlays and similar noise still get
// filtered. Patterns are regular expressions; prefix with (?i) for
// case-insensitive matching.
type CategoryFilter struct {
	Allowed              []string `yaml:"allowed"`
	Blocked              []string `yaml:"blocked"`
	BlockedTitlePatterns []string `yaml:"blocked_title_patterns"`
}

// Permits reports whether a market with the given category and title
// passes the filter. Category matching is case-insensitive. An empty
// Allowed list permits every category not explicitly blocked.
func (f CategoryFilter) Permits(category, title string) bool {
	cat := strings.ToLower(strings.TrimSpace(category))
	if cat == "" {
		for _, pat := range f.BlockedTitlePatterns {
			re := compiledPattern(pat)
			if re != nil && re.MatchString(title) {
				return false
			}
		}
		return true
	}
	for _, b := range f.Blocked {
		if strings.EqualFold(strings.TrimSpace(b), cat) {
			return false
		}
	}
	if len(f.Allowed) == 0 {
		return true
	}
	for _, a := range f.Allowed {
		if strings.EqualFold(strings.TrimSpace(a), cat) {
			return true
		}
	}
	return false
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

// compiledPattern memoizes pattern compilation. Invalid patterns are
// rejected at config validation; one slipping through here matches
// nothing rather than failing the gate open or closed per call.
func compiledPattern(pat string) *regexp.Regexp {
	if pat == "" {
		return nil
	}
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[pat]; ok {
		return re
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		re = nil
	}
	patternCache[pat] = re
	return re
}
