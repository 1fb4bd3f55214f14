// Package keyword partitions study text into plain-text and glossary-keyword spans.
package keyword

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
)

// SpanKind classifies a span.
type SpanKind string

const (
	SpanText    SpanKind = "text"
	SpanKeyword SpanKind = "keyword"
)

// Span is a contiguous slice of the source text.
// Spans returned by Tokenize partition the input: concatenating Content in
// order reproduces it exactly.
type Span struct {
	Kind    SpanKind `json:"kind"`
	Content string   `json:"content"`
	// StartIndex is a byte offset into the source text.
	StartIndex int `json:"start_index"`
	// Term is the dictionary term that produced a keyword span.
	Term string `json:"term,omitempty"`
}

// End returns the byte offset just past the span.
func (s Span) End() int { return s.StartIndex + len(s.Content) }

// Term is a glossary entry. Only Term takes part in matching.
type Term struct {
	Term       string `json:"term"`
	Definition string `json:"definition,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Index is a dictionary compiled for repeated tokenizing. Build one per
// dictionary version and reuse it across renders.
type Index struct {
	terms   []compiledTerm
	byLower map[string]Term
	version string
}

type compiledTerm struct {
	term  Term
	lower []rune
}

type candidate struct {
	start, end int // rune positions
	term       *compiledTerm
}

// NewIndex compiles dict. Blank terms are skipped, and a term whose
// lower-cased form was already seen is dropped (the first one wins).
func NewIndex(dict []Term) *Index {
	ix := &Index{byLower: make(map[string]Term, len(dict))}
	h := sha256.New()

	for _, t := range dict {
		if strings.TrimSpace(t.Term) == "" {
			continue
		}
		lower := toLowerRunes(t.Term)
		key := string(lower)
		if _, dup := ix.byLower[key]; dup {
			continue
		}
		ix.byLower[key] = t
		ix.terms = append(ix.terms, compiledTerm{term: t, lower: lower})
		h.Write([]byte(key))
		h.Write([]byte{0})
	}

	ix.version = hex.EncodeToString(h.Sum(nil))[:16]
	return ix
}

// Tokenize is a convenience for NewIndex(dict).Tokenize(text).
func Tokenize(text string, dict []Term) []Span {
	return NewIndex(dict).Tokenize(text)
}

// Version identifies the compiled dictionary content.
func (ix *Index) Version() string { return ix.version }

// Len returns the number of distinct terms.
func (ix *Index) Len() int { return len(ix.terms) }

// Lookup returns the glossary entry for a term, case-insensitively.
func (ix *Index) Lookup(term string) (Term, bool) {
	t, ok := ix.byLower[string(toLowerRunes(term))]
	return t, ok
}

// Tokenize splits text into keyword and plain-text spans.
//
// Every term is matched case-insensitively wherever it is not glued to a
// letter on either side, so "nervo" does not match inside "inervado".
// Overlapping candidates are resolved left to right: the earliest start wins,
// and candidates starting at the same position are ordered by dictionary
// position (not by length). When nothing matches, the whole input comes back
// as a single text span.
func (ix *Index) Tokenize(text string) []Span {
	// Rune-level view of text with byte offsets, so invalid UTF-8 still
	// round-trips through the partition.
	offsets := make([]int, 0, len(text)+1)
	runes := make([]rune, 0, len(text))
	for i, r := range text {
		offsets = append(offsets, i)
		runes = append(runes, r)
	}
	offsets = append(offsets, len(text))

	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}

	var cands []candidate
	for i := range ix.terms {
		ct := &ix.terms[i]
		n := len(ct.lower)
		for pos := 0; pos+n <= len(lowered); {
			if matchAt(lowered, pos, ct.lower) && isBoundary(runes, pos, pos+n) {
				cands = append(cands, candidate{start: pos, end: pos + n, term: ct})
				pos += n
				continue
			}
			pos++
		}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].start < cands[j].start })

	var spans []Span
	last := 0
	for _, c := range cands {
		if c.start < last {
			continue
		}
		if c.start > last {
			spans = append(spans, textSpan(text, offsets, last, c.start))
		}
		spans = append(spans, Span{
			Kind:       SpanKeyword,
			Content:    text[offsets[c.start]:offsets[c.end]],
			StartIndex: offsets[c.start],
			Term:       c.term.term.Term,
		})
		last = c.end
	}

	if len(spans) == 0 {
		return []Span{{Kind: SpanText, Content: text, StartIndex: 0}}
	}
	if last < len(runes) {
		spans = append(spans, textSpan(text, offsets, last, len(runes)))
	}
	return spans
}

// Keywords returns the distinct terms hit by spans, in first-occurrence order.
func Keywords(spans []Span) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range spans {
		if s.Kind != SpanKeyword || seen[s.Term] {
			continue
		}
		seen[s.Term] = true
		out = append(out, s.Term)
	}
	return out
}

func textSpan(text string, offsets []int, from, to int) Span {
	return Span{
		Kind:       SpanText,
		Content:    text[offsets[from]:offsets[to]],
		StartIndex: offsets[from],
	}
}

func matchAt(haystack []rune, pos int, needle []rune) bool {
	for j, r := range needle {
		if haystack[pos+j] != r {
			return false
		}
	}
	return true
}

// isBoundary reports whether [start, end) is not glued to a letter.
// Combining marks count as part of the word so decomposed accents
// ("a" + U+0303) do not open a boundary.
func isBoundary(runes []rune, start, end int) bool {
	if start > 0 && isWordRune(runes[start-1]) {
		return false
	}
	if end < len(runes) && isWordRune(runes[end]) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.Is(unicode.Mn, r)
}

func toLowerRunes(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, unicode.ToLower(r))
	}
	return out
}
