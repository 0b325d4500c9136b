package diff

import (
	"unicode"
)

// Row is one line of the side-by-side view. Changed rows carry word level
// spans so the UI can highlight what moved inside the line.
type Row struct {
	Kind        SegmentKind `json:"kind"`
	Left        string      `json:"left"`
	Right       string      `json:"right"`
	LeftInline  []Span      `json:"left_inline,omitempty"`
	RightInline []Span      `json:"right_inline,omitempty"`
}

type Span struct {
	Text    string `json:"text"`
	Changed bool   `json:"changed"`
}

func buildRows(segments []Segment) []Row {
	var rows []Row
	for _, seg := range segments {
		switch seg.Kind {
		case SegmentEqual:
			for i := range seg.leftLines {
				rows = append(rows, Row{Kind: SegmentEqual, Left: seg.leftLines[i], Right: seg.rightLines[i]})
			}
		case SegmentDelete:
			for _, line := range seg.leftLines {
				rows = append(rows, Row{Kind: SegmentDelete, Left: line})
			}
		case SegmentInsert:
			for _, line := range seg.rightLines {
				rows = append(rows, Row{Kind: SegmentInsert, Right: line})
			}
		case SegmentChange:
			n := len(seg.leftLines)
			if len(seg.rightLines) > n {
				n = len(seg.rightLines)
			}
			for i := 0; i < n; i++ {
				switch {
				case i >= len(seg.leftLines):
					rows = append(rows, Row{Kind: SegmentInsert, Right: seg.rightLines[i]})
				case i >= len(seg.rightLines):
					rows = append(rows, Row{Kind: SegmentDelete, Left: seg.leftLines[i]})
				default:
					left, right := inlineSpans(seg.leftLines[i], seg.rightLines[i])
					rows = append(rows, Row{
						Kind:        SegmentChange,
						Left:        seg.leftLines[i],
						Right:       seg.rightLines[i],
						LeftInline:  left,
						RightInline: right,
					})
				}
			}
		}
	}
	return rows
}

func inlineSpans(left, right string) ([]Span, []Span) {
	lt, rt := tokenizeWords(left), tokenizeWords(right)
	script := symmetricScript(lt, rt)

	var ls, rs []Span
	for _, e := range script {
		switch e.op {
		case opEqual:
			ls = appendSpan(ls, lt[e.a], false)
			rs = appendSpan(rs, rt[e.b], false)
		case opDelete:
			ls = appendSpan(ls, lt[e.a], true)
		case opInsert:
			rs = appendSpan(rs, rt[e.b], true)
		}
	}
	return ls, rs
}

func appendSpan(spans []Span, text string, changed bool) []Span {
	if n := len(spans); n > 0 && spans[n-1].Changed == changed {
		spans[n-1].Text += text
		return spans
	}
	return append(spans, Span{Text: text, Changed: changed})
}

// tokenizeWords splits a line into runs of letters and digits, with every
// other rune as its own token.
func tokenizeWords(s string) []string {
	var tokens []string
	start := -1
	for i, r := range s {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		if word {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, s[start:i])
			start = -1
		}
		tokens = append(tokens, string(r))
	}
	if start >= 0 {
		tokens = append(tokens, s[start:])
	}
	return tokens
}
