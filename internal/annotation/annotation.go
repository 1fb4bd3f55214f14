// Package annotation holds the learner's highlights, notes and questions for the
// document currently being read.
package annotation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Color is the highlight color of an annotation.
type Color string

const (
	ColorYellow Color = "yellow"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorPink   Color = "pink"
)

// Colors lists every valid color in display order.
func Colors() []Color {
	return []Color{ColorYellow, ColorBlue, ColorGreen, ColorPink}
}

// Valid reports whether c is a known color.
func (c Color) Valid() bool {
	switch c {
	case ColorYellow, ColorBlue, ColorGreen, ColorPink:
		return true
	}
	return false
}

// ParseColor converts s to a Color.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown color %q (want one of yellow, blue, green, pink)", s)
	}
	return c, nil
}

// Kind is what the learner attached to the selected text.
type Kind string

const (
	KindHighlight Kind = "highlight"
	KindNote      Kind = "note"
	KindQuestion  Kind = "question"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindHighlight, KindNote, KindQuestion:
		return true
	}
	return false
}

// ParseKind converts s to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown annotation type %q (want one of highlight, note, question)", s)
	}
	return k, nil
}

// TextAnnotation is a highlight, note or question anchored to a substring of the
// rendered text by exact content equality.
type TextAnnotation struct {
	ID string `json:"id"`

	// OriginalText is the selected text exactly as rendered; it is the anchor.
	OriginalText string `json:"original_text"`

	// DisplayText is the whitespace-collapsed, possibly shortened form shown in lists.
	DisplayText string `json:"display_text"`

	Color Color  `json:"color"`
	Note  string `json:"note"`
	Kind  Kind   `json:"type"`

	// BotReply is the assistant's answer to a question; nil until it arrives.
	BotReply *string `json:"bot_reply,omitempty"`

	// CreatedAt is a Unix timestamp in milliseconds.
	CreatedAt int64 `json:"created_at"`
}

// Rect is the on-screen box of a text selection.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Pending is a selection waiting for the learner to create or cancel an annotation.
type Pending struct {
	Text   string `json:"text"`
	Anchor Rect   `json:"anchor"`
}

// maxDisplayRunes bounds DisplayText.
const maxDisplayRunes = 80

// DisplayText collapses whitespace in text and shortens it for list views.
func DisplayText(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(collapsed) <= maxDisplayRunes {
		return collapsed
	}
	runes := []rune(collapsed)
	return strings.TrimSpace(string(runes[:maxDisplayRunes-1])) + "…"
}
