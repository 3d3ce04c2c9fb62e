package intro

import "strings"

// Wrap breaks title into lines of at most width runes on word boundaries.
// Words longer than width are split. The result is never empty.
func Wrap(title string, width int) []string {
	words := strings.Fields(title)
	if len(words) == 0 {
		return []string{""}
	}
	if width <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var lines []string
	var cur []rune
	for _, w := range words {
		word := []rune(w)
		for len(word) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = cur[:0]
			}
			lines = append(lines, string(word[:width]))
			word = word[width:]
		}
		switch {
		case len(cur) == 0:
			cur = append(cur, word...)
		case len(cur)+1+len(word) <= width:
			cur = append(cur, ' ')
			cur = append(cur, word...)
		default:
			lines = append(lines, string(cur))
			cur = append(cur[:0], word...)
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
