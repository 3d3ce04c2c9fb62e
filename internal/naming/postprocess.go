package naming

import (
	"regexp"
	"strings"
)

// Invisible direction and byte-order marks that caption editors prepend.
var markReplacer = strings.NewReplacer(
	"\u200e", "", // LRM
	"\u200f", "", // RLM
	"\ufeff", "", // BOM
)

// fillerPrefixes are stripped from the front of a lowercased title so that
// "Tutorial X" and "X" share a key.
var fillerPrefixes = []string{"video ", "tutorial ", "lesson "}

// Normalize canonicalizes a title or caption into a deduplication key:
// direction marks removed, whitespace collapsed, lowercased, and filler
// prefixes stripped until none remain. Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	s = collapseSpaces(markReplacer.Replace(s))
	s = strings.ToLower(s)
	for {
		stripped := false
		for _, p := range fillerPrefixes {
			if strings.HasPrefix(s, p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

// PartMarker separates the base title from the part counter in captions.
const PartMarker = " - Part "

// rePartSuffix also accepts the Persian "قسمت" marker used by earlier
// deliveries to the channel.
var rePartSuffix = regexp.MustCompile(`^(.+?)\s+-\s+(?:Part|قسمت)\s+\d+\s*/\s*\d+\s*$`)

// PartCaption formats the caption for part i of n (1-based).
func PartCaption(title string, i, n int) string {
	return title + PartMarker + itoa(i) + "/" + itoa(n)
}

// BaseTitle returns the caption without its part suffix. Captions that are
// not multi-part are returned trimmed and unchanged.
func BaseTitle(caption string) string {
	c := strings.TrimSpace(markReplacer.Replace(caption))
	if m := rePartSuffix.FindStringSubmatch(c); m != nil {
		return strings.TrimSpace(m[1])
	}
	return c
}

// CaptionKey is the reconciliation key for a delivered caption.
func CaptionKey(caption string) string {
	return Normalize(BaseTitle(caption))
}
