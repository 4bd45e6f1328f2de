// Package flash tracks recently changed entities so they can be highlighted
// for a short window after each change.
//
// The tracker is a membership set plus at most one pending sweep. A sweep
// drops every member whose record was last updated at least Duration ago and
// reschedules itself while members remain. Touching a member again simply
// moves its record's LastUpdated forward, which restarts its window.
//
// A Tracker is not safe for concurrent use. Schedulers must run the sweep
// callback on the goroutine that owns the tracker.
package flash

import (
	"maps"
	"slices"
	"time"

	"github.com/specialistvlad/healthmesh/internal/clock"
)

// DefaultDuration is the highlight window.
const DefaultDuration = 300 * time.Millisecond

// Scheduler runs fn once after d.
type Scheduler interface {
	Schedule(d time.Duration, fn func())
}

// Source reports when an entity last changed. A missing entity has expired.
type Source interface {
	LastUpdated(id string) (time.Time, bool)
}

// Options configures a Tracker.
type Options struct {
	Duration  time.Duration
	Clock     clock.Clock
	Scheduler Scheduler
	Source    Source
	// OnExpire receives the ids cleared by a sweep, sorted.
	OnExpire func(ids []string)
}

// Tracker is the set of highlighted ids.
type Tracker struct {
	opts    Options
	ids     map[string]struct{}
	pending bool
	// gen invalidates sweeps scheduled before the last Clear.
	gen uint64
}

// New returns an empty tracker.
func New(opts Options) *Tracker {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Tracker{opts: opts, ids: map[string]struct{}{}}
}

// Observe records a batch of changes. Removed ids leave the set at once.
func (t *Tracker) Observe(changed, removed []string) {
	for _, id := range removed {
		delete(t.ids, id)
	}
	for _, id := range changed {
		t.ids[id] = struct{}{}
	}
	t.schedule()
}

// Contains reports whether id is highlighted.
func (t *Tracker) Contains(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// Active returns the highlighted ids, sorted.
func (t *Tracker) Active() []string {
	return slices.Sorted(maps.Keys(t.ids))
}

// Len is the number of highlighted ids.
func (t *Tracker) Len() int { return len(t.ids) }

// Clear empties the set and abandons any pending sweep. It is safe to call
// repeatedly.
func (t *Tracker) Clear() {
	clear(t.ids)
	t.pending = false
	t.gen++
}

// Sweep drops expired ids and returns them, sorted.
func (t *Tracker) Sweep() []string {
	oldest := t.opts.Clock.Now().Add(-t.opts.Duration)
	var expired []string
	for _, id := range t.Active() {
		at, ok := t.opts.Source.LastUpdated(id)
		if !ok || !at.After(oldest) {
			delete(t.ids, id)
			expired = append(expired, id)
		}
	}
	return expired
}

func (t *Tracker) schedule() {
	if t.pending || len(t.ids) == 0 || t.opts.Scheduler == nil {
		return
	}
	t.pending = true
	gen := t.gen
	t.opts.Scheduler.Schedule(t.opts.Duration, func() { t.fire(gen) })
}

func (t *Tracker) fire(gen uint64) {
	if gen != t.gen {
		return
	}
	t.pending = false
	expired := t.Sweep()
	if len(expired) > 0 && t.opts.OnExpire != nil {
		t.opts.OnExpire(expired)
	}
	t.schedule()
}
