package anchor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/keyword"
)

func ann(id, text string) annotation.TextAnnotation {
	return annotation.TextAnnotation{ID: id, OriginalText: text, Kind: annotation.KindHighlight, Color: annotation.ColorYellow}
}

func TestFind(t *testing.T) {
	ix := NewIndex([]annotation.TextAnnotation{ann("1", "osso longo"), ann("2", "fêmur")})

	got, ok := ix.Find("fêmur")
	require.True(t, ok)
	require.Equal(t, "2", got.ID)

	_, ok = ix.Find("Fêmur")
	require.False(t, ok, "matching is exact")

	_, ok = ix.Find("osso")
	require.False(t, ok, "substring is not a match")
}

func TestFind_DuplicatePhraseFirstWins(t *testing.T) {
	ix := NewIndex([]annotation.TextAnnotation{ann("1", "fêmur"), ann("2", "fêmur")})

	got, ok := ix.Find("fêmur")
	require.True(t, ok)
	require.Equal(t, "1", got.ID)
	require.Equal(t, 1, ix.Len())
}

func TestFind_EmptyIndex(t *testing.T) {
	_, ok := NewIndex(nil).Find("")
	require.False(t, ok)
}

func TestSplit_MarksEveryOccurrence(t *testing.T) {
	text := "O osso longo e outro osso longo."
	spans := keyword.Tokenize(text, nil)
	ix := NewIndex([]annotation.TextAnnotation{ann("1", "osso longo")})

	segs := Split(spans, ix)

	var annotated []int
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Content)
		require.Equal(t, s.Content, text[s.StartIndex:s.End()])
		if s.Annotation != nil {
			annotated = append(annotated, s.StartIndex)
			require.Equal(t, "1", s.Annotation.ID)
		}
	}
	require.Equal(t, text, b.String())
	require.Equal(t, []int{2, 21}, annotated, "both occurrences render as annotated")
}

func TestSplit_KeywordSpansAreNotCut(t *testing.T) {
	text := "lesao do nervo ulnar"
	spans := keyword.Tokenize(text, keyword.TermsFromStrings("nervo ulnar"))
	ix := NewIndex([]annotation.TextAnnotation{ann("1", "nervo"), ann("2", "nervo ulnar")})

	segs := Split(spans, ix)
	require.Len(t, segs, 2)
	require.Equal(t, keyword.SpanKeyword, segs[1].Kind)
	require.NotNil(t, segs[1].Annotation)
	require.Equal(t, "2", segs[1].Annotation.ID)
}

func TestSplit_LongerPhraseWinsAtSameStart(t *testing.T) {
	spans := keyword.Tokenize("artéria radial profunda", nil)
	ix := NewIndex([]annotation.TextAnnotation{ann("short", "artéria"), ann("long", "artéria radial")})

	segs := Split(spans, ix)
	require.Len(t, segs, 2)
	require.Equal(t, "long", segs[0].Annotation.ID)
	require.Equal(t, " profunda", segs[1].Content)
	require.Nil(t, segs[1].Annotation)
}

func TestSplit_NoAnnotationsPassThrough(t *testing.T) {
	spans := keyword.Tokenize("O fêmur", keyword.TermsFromStrings("fêmur"))
	segs := Split(spans, NewIndex(nil))

	require.Len(t, segs, len(spans))
	for i := range spans {
		require.Equal(t, spans[i], segs[i].Span)
		require.Nil(t, segs[i].Annotation)
	}
}
