// Package diff renders line level differences between two versions of a
// field for side-by-side manual merging.
package diff

import (
	"fmt"
	"strings"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

type SegmentKind string

const (
	SegmentEqual  SegmentKind = "equal"
	SegmentInsert SegmentKind = "insert"
	SegmentDelete SegmentKind = "delete"
	SegmentChange SegmentKind = "change"
)

const (
	DefaultLeftTitle  = "Your version"
	DefaultRightTitle = "Latest version"
)

// Segment is a contiguous block of lines sharing one kind. Lines within a
// block are joined with "\n".
type Segment struct {
	Kind      SegmentKind `json:"kind"`
	LeftText  string      `json:"left_text"`
	RightText string      `json:"right_text"`

	leftLines  []string
	rightLines []string
}

type Result struct {
	Kind               domain.RenderKind `json:"kind"`
	LeftTitle          string            `json:"left_title"`
	RightTitle         string            `json:"right_title"`
	Segments           []Segment         `json:"segments"`
	Rows               []Row             `json:"rows"`
	RestrictedElements []string          `json:"paste_restricted_elements,omitempty"`
}

// HasChanges reports whether any segment is not Equal.
func (r *Result) HasChanges() bool {
	for _, s := range r.Segments {
		if s.Kind != SegmentEqual {
			return true
		}
	}
	return false
}

type Engine struct {
	leftTitle  string
	rightTitle string
}

func NewEngine() *Engine {
	return &Engine{
		leftTitle:  DefaultLeftTitle,
		rightTitle: DefaultRightTitle,
	}
}

func NewEngineWithTitles(left, right string) *Engine {
	return &Engine{leftTitle: left, rightTitle: right}
}

// Render diffs left (the submitted text) against right (the current text).
// The inputs are never modified and identical inputs always produce the
// identical segment sequence.
func (e *Engine) Render(left, right string, kind domain.RenderKind) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("render kind %q: %w", kind, domain.ErrMalformedField)
	}

	leftLines := splitLines(NormalizeWhitespace(left), kind)
	rightLines := splitLines(NormalizeWhitespace(right), kind)

	script := symmetricScript(lineKeys(leftLines, kind), lineKeys(rightLines, kind))
	segments := groupSegments(script, leftLines, rightLines)

	result := &Result{
		Kind:       kind,
		LeftTitle:  e.leftTitle,
		RightTitle: e.rightTitle,
		Segments:   segments,
		Rows:       buildRows(segments),
	}
	if kind == domain.RenderRichText {
		result.RestrictedElements = append([]string(nil), PasteRestrictedElements...)
	}

	return result, nil
}

func splitLines(s string, kind domain.RenderKind) []string {
	if s == "" {
		return nil
	}
	if kind == domain.RenderRichText {
		return splitRichLines(s)
	}
	return strings.Split(s, "\n")
}

func lineKeys(lines []string, kind domain.RenderKind) []string {
	if kind != domain.RenderRichText {
		return lines
	}
	keys := make([]string, len(lines))
	for i, line := range lines {
		keys[i] = textKey(line)
	}
	return keys
}

func groupSegments(script []edit, left, right []string) []Segment {
	var (
		segments []Segment
		cur      *Segment
		dels     []string
		ins      []string
	)

	flushRun := func() {
		if len(dels) == 0 && len(ins) == 0 {
			return
		}
		kind := SegmentChange
		switch {
		case len(ins) == 0:
			kind = SegmentDelete
		case len(dels) == 0:
			kind = SegmentInsert
		}
		segments = append(segments, newSegment(kind, dels, ins))
		dels, ins = nil, nil
	}
	flushEqual := func() {
		if cur != nil {
			segments = append(segments, newSegment(SegmentEqual, cur.leftLines, cur.rightLines))
			cur = nil
		}
	}

	for _, e := range script {
		switch e.op {
		case opEqual:
			flushRun()
			if cur == nil {
				cur = &Segment{}
			}
			cur.leftLines = append(cur.leftLines, left[e.a])
			cur.rightLines = append(cur.rightLines, right[e.b])
		case opDelete:
			flushEqual()
			dels = append(dels, left[e.a])
		case opInsert:
			flushEqual()
			ins = append(ins, right[e.b])
		}
	}
	flushRun()
	flushEqual()

	return segments
}

func newSegment(kind SegmentKind, left, right []string) Segment {
	return Segment{
		Kind:       kind,
		LeftText:   strings.Join(left, "\n"),
		RightText:  strings.Join(right, "\n"),
		leftLines:  left,
		rightLines: right,
	}
}
