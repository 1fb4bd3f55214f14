// Package study composes one learner's reading session of one summary: the
// annotations, keyword mastery, personal notes and time spent. It is the unit
// the autosave coordinator persists.
package study

import (
	"github.com/hpungsan/margin/internal/annotation"
)

// Document is the composite study state saved per (student, subject).
type Document struct {
	Annotations []annotation.TextAnnotation `json:"annotations"`

	// KeywordMastery maps a glossary term to a mastery score from 0 to 100.
	KeywordMastery map[string]int `json:"keyword_mastery"`

	// PersonalNotes maps a section key to free text.
	PersonalNotes map[string]string `json:"personal_notes"`

	ElapsedSeconds int `json:"elapsed_seconds"`
}

// MaxMastery is the highest keyword mastery score.
const MaxMastery = 100

// Normalize replaces nil collections with empty ones so the document always
// serializes with arrays and objects rather than null.
func (d *Document) Normalize() {
	if d.Annotations == nil {
		d.Annotations = []annotation.TextAnnotation{}
	}
	if d.KeywordMastery == nil {
		d.KeywordMastery = map[string]int{}
	}
	if d.PersonalNotes == nil {
		d.PersonalNotes = map[string]string{}
	}
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := Document{
		Annotations:    make([]annotation.TextAnnotation, len(d.Annotations)),
		KeywordMastery: make(map[string]int, len(d.KeywordMastery)),
		PersonalNotes:  make(map[string]string, len(d.PersonalNotes)),
		ElapsedSeconds: d.ElapsedSeconds,
	}
	copy(out.Annotations, d.Annotations)
	for i := range out.Annotations {
		if r := out.Annotations[i].BotReply; r != nil {
			reply := *r
			out.Annotations[i].BotReply = &reply
		}
	}
	for k, v := range d.KeywordMastery {
		out.KeywordMastery[k] = v
	}
	for k, v := range d.PersonalNotes {
		out.PersonalNotes[k] = v
	}
	return out
}
