package naming

import (
	"path/filepath"
	"strings"
)

// ResolveTitle derives the display title for an asset. A non-empty embedded
// metadata title wins unconditionally; otherwise the filename stem is run
// through [Rules]. The result is never empty.
func ResolveTitle(embedded, filename string) string {
	if t := collapseSpaces(embedded); t != "" {
		return t
	}
	return TitleFromFilename(filename)
}

// TitleFromFilename applies the rule table to the filename stem, falling
// back to the cleaned stem, then the raw stem.
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	for _, rule := range Rules {
		m := rule.Pattern.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		if t := cleanTitle(rule.Extract(stem, m)); t != "" {
			return t
		}
	}

	if t := cleanTitle(stem); t != "" {
		return t
	}
	if t := strings.TrimSpace(stem); t != "" {
		return t
	}
	if base != "" && base != "." && base != string(filepath.Separator) {
		return base
	}
	return "untitled"
}
