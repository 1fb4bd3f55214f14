// Package anchor binds active annotations to rendered spans by exact content
// equality.
//
// Anchoring is by string, not by offset: when an annotated phrase occurs more
// than once in a document, every occurrence renders as annotated.
package anchor

import (
	"sort"
	"strings"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/keyword"
)

// Index maps OriginalText to the annotation anchored on it.
type Index struct {
	byText  map[string]annotation.TextAnnotation
	phrases []string
}

// NewIndex indexes active annotations. When two annotations share the same
// OriginalText the earlier one in list order wins.
func NewIndex(active []annotation.TextAnnotation) *Index {
	ix := &Index{byText: make(map[string]annotation.TextAnnotation, len(active))}
	for _, a := range active {
		if a.OriginalText == "" {
			continue
		}
		if _, ok := ix.byText[a.OriginalText]; ok {
			continue
		}
		ix.byText[a.OriginalText] = a
		ix.phrases = append(ix.phrases, a.OriginalText)
	}
	return ix
}

// Find returns the annotation whose OriginalText equals spanContent.
func (ix *Index) Find(spanContent string) (annotation.TextAnnotation, bool) {
	a, ok := ix.byText[spanContent]
	return a, ok
}

// Len returns the number of distinct anchored phrases.
func (ix *Index) Len() int { return len(ix.phrases) }

// Segment is a rendered span with the annotation anchored on it, if any.
type Segment struct {
	keyword.Span
	Annotation *annotation.TextAnnotation `json:"annotation,omitempty"`
}

type hit struct {
	start, end int
}

// Split cuts text spans at every occurrence of an anchored phrase so each
// occurrence becomes its own segment carrying the annotation. Keyword spans are
// never cut; they carry an annotation only when their whole content is an
// anchored phrase. The segments still partition the original text.
//
// Overlapping occurrences resolve left to right; at the same start the longer
// phrase wins.
func Split(spans []keyword.Span, ix *Index) []Segment {
	out := make([]Segment, 0, len(spans))
	for _, s := range spans {
		if s.Kind == keyword.SpanKeyword || ix.Len() == 0 {
			out = append(out, segmentFor(s, ix))
			continue
		}
		out = append(out, splitText(s, ix)...)
	}
	return out
}

func segmentFor(s keyword.Span, ix *Index) Segment {
	seg := Segment{Span: s}
	if a, ok := ix.Find(s.Content); ok {
		seg.Annotation = &a
	}
	return seg
}

func splitText(s keyword.Span, ix *Index) []Segment {
	var hits []hit
	for _, phrase := range ix.phrases {
		for from := 0; from < len(s.Content); {
			i := strings.Index(s.Content[from:], phrase)
			if i < 0 {
				break
			}
			start := from + i
			hits = append(hits, hit{start: start, end: start + len(phrase)})
			from = start + len(phrase)
		}
	}
	if len(hits) == 0 {
		return []Segment{segmentFor(s, ix)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].end > hits[j].end
	})

	var out []Segment
	last := 0
	piece := func(from, to int) keyword.Span {
		return keyword.Span{Kind: keyword.SpanText, Content: s.Content[from:to], StartIndex: s.StartIndex + from}
	}
	for _, h := range hits {
		if h.start < last {
			continue
		}
		if h.start > last {
			out = append(out, Segment{Span: piece(last, h.start)})
		}
		out = append(out, segmentFor(piece(h.start, h.end), ix))
		last = h.end
	}
	if last < len(s.Content) {
		out = append(out, Segment{Span: piece(last, len(s.Content))})
	}
	return out
}
