package study

import (
	"github.com/hpungsan/margin/internal/anchor"
	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/keyword"
)

// Render turns a markdown summary into display segments: glossary keywords are
// detected on the plain text, then active annotations are anchored on top.
func Render(markdown string, keywords *keyword.Index, active []annotation.TextAnnotation) []anchor.Segment {
	return anchor.Split(keywords.Tokenize(PlainText(markdown)), anchor.NewIndex(active))
}

// Render renders markdown with the session's current annotations.
func (s *Session) Render(markdown string, keywords *keyword.Index) []anchor.Segment {
	return Render(markdown, keywords, s.Annotations.Annotations())
}

// Anchors reports whether an annotation on text would render on at least one
// segment of the summary. A passage that reaches into or across a glossary
// keyword never does, because keyword spans anchor only on their whole content.
func Anchors(markdown string, keywords *keyword.Index, text string) bool {
	for _, seg := range Render(markdown, keywords, []annotation.TextAnnotation{{OriginalText: text}}) {
		if seg.Annotation != nil {
			return true
		}
	}
	return false
}
