// Package autosave keeps a study session in sync with the server: one load on
// mount, a debounced full-document save after every change, and a final save
// on unmount.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/margin/internal/clock"
	"github.com/hpungsan/margin/internal/errors"
	"github.com/hpungsan/margin/internal/logger"
	"github.com/hpungsan/margin/internal/study"
)

// Defaults for Options.
const (
	DefaultDebounce     = 1500 * time.Millisecond
	DefaultSavedDisplay = 2 * time.Second
	DefaultErrorDisplay = 4 * time.Second
	DefaultSaveTimeout  = 10 * time.Second
)

// Status is the save indicator shown to the learner.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Key identifies the persisted document.
type Key struct {
	StudentID string
	SubjectID string
}

// Remote loads and saves whole documents.
type Remote interface {
	// Load returns the saved document. A NOT_FOUND error means nothing was saved yet.
	Load(ctx context.Context, key Key) (*study.Document, error)
	Save(ctx context.Context, key Key, doc study.Document) error
}

// Source is the live state being persisted.
type Source interface {
	Snapshot() study.Document
	Apply(doc study.Document)
	OnChange(fn func())
}

// Options tunes the coordinator. Zero values take the defaults above.
type Options struct {
	Debounce     time.Duration
	SavedDisplay time.Duration
	ErrorDisplay time.Duration
	SaveTimeout  time.Duration
	Clock        clock.Clock
	Logger       *logger.Logger
}

// Coordinator persists one Source to one Remote document.
//
// Every save carries a sequence number and only the result of the latest save
// may change the status, so a slow older save can never report "saved" for
// newer edits. Failed saves are not retried; the next change schedules a new
// save of the full document.
type Coordinator struct {
	key    Key
	remote Remote
	source Source
	opts   Options
	clock  clock.Clock
	log    *logger.Logger

	mu        sync.Mutex
	base      context.Context
	mounted   bool
	ready     bool
	unmounted bool

	debounce    clock.Timer
	debounceGen uint64
	revert      clock.Timer

	seq       uint64
	status    Status
	lastErr   error
	listeners []func(Status)

	inflight sync.WaitGroup
}

// New creates a coordinator for key and subscribes to source changes.
// Nothing is loaded until Mount.
func New(key Key, remote Remote, source Source, opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SavedDisplay <= 0 {
		opts.SavedDisplay = DefaultSavedDisplay
	}
	if opts.ErrorDisplay <= 0 {
		opts.ErrorDisplay = DefaultErrorDisplay
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	c := &Coordinator{
		key:    key,
		remote: remote,
		source: source,
		opts:   opts,
		clock:  opts.Clock,
		log:    logger.OrNop(opts.Logger).With("student_id", key.StudentID, "subject_id", key.SubjectID),
		base:   context.Background(),
		status: StatusIdle,
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	source.OnChange(c.changed)
	return c
}

// Mount loads the saved document exactly once and merges it into the source.
// Any load failure, including a missing document, starts from an empty
// document. Changes made before Mount returns are not saved.
func (c *Coordinator) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.base = context.WithoutCancel(ctx)
	c.mu.Unlock()

	doc, err := c.remote.Load(ctx, c.key)
	switch {
	case err == nil && doc != nil:
		c.source.Apply(*doc)
		c.log.Debug("study document loaded", "annotations", len(doc.Annotations))
	case errors.Is(err, errors.ErrNotFound) || (err == nil && doc == nil):
		c.log.Debug("no saved study document, starting empty")
	default:
		c.log.Warn("loading study document failed, starting empty", "error", err)
	}

	c.mu.Lock()
	if !c.unmounted {
		c.ready = true
	}
	c.mu.Unlock()
}

// Unmount cancels pending timers and, if the initial load finished, issues one
// last save of the current state. Its outcome is not reported. Later changes
// are ignored.
func (c *Coordinator) Unmount() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.unmounted = true
	c.stopTimersLocked()
	ready := c.ready
	base := c.base
	c.mu.Unlock()

	if !ready {
		return
	}

	doc := c.source.Snapshot()
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(base, c.opts.SaveTimeout)
		defer cancel()
		if err := c.remote.Save(ctx, c.key, doc); err != nil {
			c.log.Warn("final save failed", "error", err)
			return
		}
		c.log.Debug("final save done")
	}()
}

// Status returns the current save status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the error of the latest failed save while the status is error.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusError {
		return nil
	}
	return c.lastErr
}

// Ready reports whether the initial load has finished.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// OnStatus registers fn to be called on every status transition.
func (c *Coordinator) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Wait blocks until every save already started has returned.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

// Flush saves immediately instead of waiting for the debounce window.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	if !c.ready || c.unmounted {
		c.mu.Unlock()
		return
	}
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.debounceGen++
	c.mu.Unlock()

	c.save()
}

func (c *Coordinator) changed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready || c.unmounted {
		return
	}
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounceGen++
	gen := c.debounceGen
	c.debounce = c.clock.AfterFunc(c.opts.Debounce, func() { c.fire(gen) })
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	// A timer that was stopped too late still runs; only the newest one counts.
	if gen != c.debounceGen || c.unmounted {
		c.mu.Unlock()
		return
	}
	c.debounce = nil
	c.mu.Unlock()

	c.save()
}

func (c *Coordinator) save() {
	doc := c.source.Snapshot()

	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.seq++
	seq := c.seq
	base := c.base
	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
	listeners := c.setStatusLocked(StatusSaving, nil)
	c.inflight.Add(1)
	c.mu.Unlock()
	notify(listeners, StatusSaving)

	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(base, c.opts.SaveTimeout)
		err := c.remote.Save(ctx, c.key, doc)
		cancel()
		c.finish(seq, err)
	}()
}

func (c *Coordinator) finish(seq uint64, err error) {
	c.mu.Lock()
	if seq != c.seq || c.unmounted {
		c.mu.Unlock()
		c.log.Debug("discarding stale save result", "seq", seq, "error", err)
		return
	}

	next, hold := StatusSaved, c.opts.SavedDisplay
	if err != nil {
		next, hold = StatusError, c.opts.ErrorDisplay
		c.log.Warn("autosave failed", "seq", seq, "error", err)
	}
	listeners := c.setStatusLocked(next, err)
	c.revert = c.clock.AfterFunc(hold, func() { c.backToIdle(seq) })
	c.mu.Unlock()

	notify(listeners, next)
}

func (c *Coordinator) backToIdle(seq uint64) {
	c.mu.Lock()
	if seq != c.seq || c.unmounted || (c.status != StatusSaved && c.status != StatusError) {
		c.mu.Unlock()
		return
	}
	c.revert = nil
	listeners := c.setStatusLocked(StatusIdle, nil)
	c.mu.Unlock()

	notify(listeners, StatusIdle)
}

func (c *Coordinator) setStatusLocked(s Status, err error) []func(Status) {
	c.status = s
	c.lastErr = err
	return append([]func(Status){}, c.listeners...)
}

func (c *Coordinator) stopTimersLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.debounceGen++
	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
}

func notify(listeners []func(Status), s Status) {
	for _, fn := range listeners {
		fn(s)
	}
}
