package annotation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/margin/internal/clock"
)

// DefaultReplyDelay is the simulated latency of the assistant reply.
const DefaultReplyDelay = 1500 * time.Millisecond

// Responder produces the assistant reply to a question annotation.
type Responder interface {
	Reply(question TextAnnotation) string
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(TextAnnotation) string

func (f ResponderFunc) Reply(q TextAnnotation) string { return f(q) }

// CannedResponder answers every question with a fixed template that points the
// learner back at the passage.
var CannedResponder = ResponderFunc(func(q TextAnnotation) string {
	question := strings.TrimSpace(q.Note)
	if question == "" {
		question = "this passage"
	}
	return fmt.Sprintf("Good question about %q. Re-read the passage %q and relate it to the highlighted keywords around it; %s is covered there.",
		question, q.DisplayText, q.DisplayText)
})

// Options configures a Manager. Zero values are replaced by defaults.
type Options struct {
	Clock      clock.Clock
	ReplyDelay time.Duration
	Responder  Responder
	NewID      func() string
}

// Manager owns the ordered list of annotations for one viewing session, plus
// the transient UI state around creating them.
//
// All methods are safe for concurrent use; the reply timers fire on other
// goroutines. Change listeners run after the lock is released.
type Manager struct {
	clock      clock.Clock
	replyDelay time.Duration
	responder  Responder
	newID      func() string

	mu          sync.Mutex
	annotations []TextAnnotation
	pending     *Pending
	input       string
	color       Color
	tab         Kind
	replies     map[string]clock.Timer
	listeners   []func()
}

// NewManager creates an empty Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		clock:      opts.Clock,
		replyDelay: opts.ReplyDelay,
		responder:  opts.Responder,
		newID:      opts.NewID,
		color:      ColorYellow,
		tab:        KindHighlight,
		replies:    make(map[string]clock.Timer),
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.replyDelay <= 0 {
		m.replyDelay = DefaultReplyDelay
	}
	if m.responder == nil {
		m.responder = CannedResponder
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

// OnChange registers fn to be called after every change to the annotation list.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Open starts a pending annotation for the selected text and resets the tab to highlight.
func (m *Manager) Open(text string, anchor Rect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &Pending{Text: text, Anchor: anchor}
	m.tab = KindHighlight
}

// Close discards the pending annotation without creating anything.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

// Create appends a new annotation and clears the pending selection and input.
// Blank text creates nothing. An unknown kind falls back to highlight and an
// unknown color to the selected color. Questions get an assistant reply after
// the reply delay, unless they are deleted first.
func (m *Manager) Create(text string, kind Kind, note string, color Color) (TextAnnotation, bool) {
	if strings.TrimSpace(text) == "" {
		return TextAnnotation{}, false
	}

	m.mu.Lock()
	if !kind.Valid() {
		kind = KindHighlight
	}
	if !color.Valid() {
		color = m.color
	}
	a := TextAnnotation{
		ID:           m.newID(),
		OriginalText: text,
		DisplayText:  DisplayText(text),
		Color:        color,
		Note:         note,
		Kind:         kind,
		CreatedAt:    m.clock.Now().UnixMilli(),
	}
	m.annotations = append(m.annotations, a)
	m.pending = nil
	m.input = ""

	if kind == KindQuestion {
		id := a.ID
		m.replies[id] = m.clock.AfterFunc(m.replyDelay, func() { m.resolveReply(id) })
	}
	listeners := m.listenersLocked()
	m.mu.Unlock()

	notify(listeners)
	return a, true
}

// Delete removes the annotation with id. Unknown ids are a no-op.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	if t, ok := m.replies[id]; ok {
		t.Stop()
		delete(m.replies, id)
	}
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.annotations = append(m.annotations[:idx:idx], m.annotations[idx+1:]...)
	listeners := m.listenersLocked()
	m.mu.Unlock()

	notify(listeners)
}

// Replace swaps the whole list, e.g. with the annotations loaded from the server.
// Pending replies for ids that are no longer present are cancelled.
func (m *Manager) Replace(list []TextAnnotation) {
	m.mu.Lock()
	m.annotations = append([]TextAnnotation(nil), list...)
	for id, t := range m.replies {
		if m.indexLocked(id) < 0 {
			t.Stop()
			delete(m.replies, id)
		}
	}
	listeners := m.listenersLocked()
	m.mu.Unlock()

	notify(listeners)
}

// Annotations returns a copy of the active annotations in insertion order.
func (m *Manager) Annotations() []TextAnnotation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TextAnnotation, len(m.annotations))
	copy(out, m.annotations)
	return out
}

// Get returns the annotation with id.
func (m *Manager) Get(id string) (TextAnnotation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(id)
	if idx < 0 {
		return TextAnnotation{}, false
	}
	return m.annotations[idx], true
}

// Pending returns a copy of the pending selection, or nil.
func (m *Manager) Pending() *Pending {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	p := *m.pending
	return &p
}

// SetInput sets the note/question text being composed.
func (m *Manager) SetInput(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = s
}

// Input returns the note/question text being composed.
func (m *Manager) Input() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// SetColor selects the highlight color. Unknown colors are ignored.
func (m *Manager) SetColor(c Color) {
	if !c.Valid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.color = c
}

// Color returns the selected highlight color.
func (m *Manager) Color() Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.color
}

// SetTab selects the annotation kind being composed. Unknown kinds are ignored.
func (m *Manager) SetTab(k Kind) {
	if !k.Valid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tab = k
}

// Tab returns the annotation kind being composed.
func (m *Manager) Tab() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tab
}

// Replying reports whether any assistant reply is still outstanding.
func (m *Manager) Replying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies) > 0
}

// resolveReply fills in the reply for id. If id was deleted in the meantime
// nothing happens; a reply never brings an annotation back.
func (m *Manager) resolveReply(id string) {
	m.mu.Lock()
	delete(m.replies, id)
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	question := m.annotations[idx]
	m.mu.Unlock()

	reply := m.responder.Reply(question)

	m.mu.Lock()
	idx = m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.annotations[idx].BotReply = &reply
	listeners := m.listenersLocked()
	m.mu.Unlock()

	notify(listeners)
}

func (m *Manager) indexLocked(id string) int {
	for i := range m.annotations {
		if m.annotations[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) listenersLocked() []func() {
	return append([]func(){}, m.listeners...)
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}
