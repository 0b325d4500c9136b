package diff

import "strings"

// NormalizeWhitespace removes the cosmetic differences a round trip through a
// rich text editor tends to introduce: line ending style, trailing blanks,
// runs of spaces and tabs, and empty lines.
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = collapseBlanks(strings.TrimRight(line, " \t"))
		if line == "" {
			continue
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Equal compares two field values after whitespace normalization.
func Equal(a, b string) bool {
	if a == b {
		return true
	}
	return NormalizeWhitespace(a) == NormalizeWhitespace(b)
}

func collapseBlanks(line string) string {
	if !strings.ContainsAny(line, "\t") && !strings.Contains(line, "  ") {
		return line
	}

	var b strings.Builder
	b.Grow(len(line))
	blank := false
	for _, r := range line {
		if r == ' ' || r == '\t' {
			if !blank {
				b.WriteByte(' ')
			}
			blank = true
			continue
		}
		blank = false
		b.WriteRune(r)
	}
	return b.String()
}
