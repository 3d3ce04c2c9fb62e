package naming

import (
	"regexp"
	"strings"
)

// TitleRule pairs a compiled regex with an extraction function. Rules are
// evaluated in order by [ResolveTitle] against the filename stem; first
// match with a non-empty result wins.
type TitleRule struct {
	Name    string
	Pattern *regexp.Regexp
	Extract func(stem string, matches []string) string
}

var (
	// "004 - Intro to X": numeric prefix, then " - ", then the title.
	reNumberedDash = regexp.MustCompile(`^\s*\d+\s+-\s+(.+)$`)

	// "001_My_Video", "12. Basics", "7-setup": numeric prefix plus separators.
	reNumericPrefix = regexp.MustCompile(`^\s*\d+[\s_.\-]+(.+)$`)
)

// Rules is the ordered title extraction table.
var Rules = []TitleRule{
	{
		Name:    "numbered-dash",
		Pattern: reNumberedDash,
		Extract: func(_ string, m []string) string { return m[1] },
	},
	{
		Name:    "numeric-prefix",
		Pattern: reNumericPrefix,
		Extract: func(_ string, m []string) string { return m[1] },
	},
}

// MatchRule returns the name of the first rule matching stem, or "fallback".
func MatchRule(stem string) string {
	for _, rule := range Rules {
		if rule.Pattern.MatchString(stem) {
			return rule.Name
		}
	}
	return "fallback"
}

var underscoreReplacer = strings.NewReplacer("_", " ")

// cleanTitle replaces underscores with spaces and collapses whitespace.
func cleanTitle(s string) string {
	return collapseSpaces(underscoreReplacer.Replace(s))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
