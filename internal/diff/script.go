package diff

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type edit struct {
	op opKind
	a  int
	b  int
}

// editScript computes a minimal line edit script turning a into b. Each line
// is interned to one rune and diffed with Myers' algorithm; within a change
// the deletions come before the insertions, so changed lines cluster into
// fewer, larger blocks.
func editScript(a, b []string) []edit {
	dmp := diffmatchpatch.New()
	// No deadline: a timed out diff is not minimal and not reproducible.
	dmp.DiffTimeout = 0

	ra, rb, _ := dmp.DiffLinesToRunes(joinLines(a), joinLines(b))
	diffs := dmp.DiffMainRunes(ra, rb, false)

	script := make([]edit, 0, len(a)+len(b))
	i, j := 0, 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for k := 0; k < n; k++ {
				script = append(script, edit{op: opEqual, a: i + k, b: j + k})
			}
			i += n
			j += n
		case diffmatchpatch.DiffDelete:
			for k := 0; k < n; k++ {
				script = append(script, edit{op: opDelete, a: i + k, b: -1})
			}
			i += n
		case diffmatchpatch.DiffInsert:
			for k := 0; k < n; k++ {
				script = append(script, edit{op: opInsert, a: -1, b: j + k})
			}
			j += n
		}
	}

	return script
}

// joinLines terminates every line with "\n", the unit DiffLinesToRunes
// interns. A newline inside a line would split it, so it is swapped for NUL.
func joinLines(lines []string) string {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(strings.ReplaceAll(line, "\n", "\x00"))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// symmetricScript returns the same alignment for (a, b) and (b, a), mirrored.
// The script is always computed on the lexically smaller side first.
func symmetricScript(a, b []string) []edit {
	if compareSeq(a, b) <= 0 {
		return editScript(a, b)
	}

	script := editScript(b, a)
	for k := range script {
		e := &script[k]
		e.a, e.b = e.b, e.a
		switch e.op {
		case opDelete:
			e.op = opInsert
		case opInsert:
			e.op = opDelete
		}
	}
	return script
}

func compareSeq(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
