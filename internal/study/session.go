package study

import (
	"strings"
	"sync"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/errors"
)

// Session is the live, mutable study state of one learner on one summary.
// It satisfies the autosave coordinator's source contract.
type Session struct {
	Annotations *annotation.Manager

	mu        sync.Mutex
	mastery   map[string]int
	notes     map[string]string
	elapsed   int
	listeners []func()
}

// NewSession wraps m. Every change to m's annotation list is reported as a
// session change.
func NewSession(m *annotation.Manager) *Session {
	s := &Session{
		Annotations: m,
		mastery:     map[string]int{},
		notes:       map[string]string{},
	}
	m.OnChange(s.changed)
	return s
}

// OnChange registers fn to be called after every change to the session.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetMastery records the mastery score of a glossary term.
func (s *Session) SetMastery(term string, score int) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return errors.NewValidation("term is required", map[string]string{"term": "required"})
	}
	if score < 0 || score > MaxMastery {
		return errors.NewValidation("mastery must be between 0 and 100", map[string]string{"score": "range"})
	}
	s.mu.Lock()
	s.mastery[term] = score
	s.mu.Unlock()
	s.changed()
	return nil
}

// SetNote stores text under section. Blank text removes the note.
func (s *Session) SetNote(section, text string) {
	s.mu.Lock()
	if strings.TrimSpace(text) == "" {
		if _, ok := s.notes[section]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.notes, section)
	} else {
		s.notes[section] = text
	}
	s.mu.Unlock()
	s.changed()
}

// AddElapsed adds reading time. Non-positive values are ignored.
func (s *Session) AddElapsed(seconds int) {
	if seconds <= 0 {
		return
	}
	s.mu.Lock()
	s.elapsed += seconds
	s.mu.Unlock()
	s.changed()
}

// Snapshot returns the full document as it stands now.
func (s *Session) Snapshot() Document {
	s.mu.Lock()
	doc := Document{
		KeywordMastery: make(map[string]int, len(s.mastery)),
		PersonalNotes:  make(map[string]string, len(s.notes)),
		ElapsedSeconds: s.elapsed,
	}
	for k, v := range s.mastery {
		doc.KeywordMastery[k] = v
	}
	for k, v := range s.notes {
		doc.PersonalNotes[k] = v
	}
	s.mu.Unlock()

	doc.Annotations = s.Annotations.Annotations()
	doc.Normalize()
	return doc
}

// Apply replaces the session state with doc, typically the document loaded
// from the server. Listeners are notified once.
func (s *Session) Apply(doc Document) {
	doc = doc.Clone()

	s.mu.Lock()
	s.mastery = doc.KeywordMastery
	s.notes = doc.PersonalNotes
	s.elapsed = doc.ElapsedSeconds
	s.mu.Unlock()

	// Replace notifies through the manager listener registered in NewSession.
	s.Annotations.Replace(doc.Annotations)
}

func (s *Session) changed() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
