// Package node defines the leaf entity of the health mesh: a single monitored
// instance reported by the upstream poller.
//
// A Record is the full, authoritative view of one instance. A Patch is the
// partial form carried by stream deltas: every field is optional and only the
// fields that are present overwrite the Record they are merged into. Keeping
// the two as distinct types makes the difference between "create" and
// "merge" visible at every call site.
//
// Records are values. Code holding a Record must treat its Depends slice and
// LastPollResult bytes as read-only; Merge always returns fresh copies.
package node

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrMissingService is returned when a Record would be created without the
// service it belongs to.
var ErrMissingService = errors.New("node: serviceName is required for a new record")

// Record is the current state of one monitored instance.
type Record struct {
	ID          string
	ServiceName string
	Host        string
	Health      Health
	// Depends is sorted and free of duplicates. Nil means the upstream never
	// reported dependencies for this instance.
	Depends []string
	// LastUpdated is the local time at which this record last changed.
	LastUpdated time.Time

	LastPollInstant  *time.Time
	LastPollDuration *time.Duration
	// LastPollResult is the opaque poll payload, stored as compact JSON.
	LastPollResult []byte
}

// Patch is a partial Record. Nil fields are absent and leave the target
// untouched when merged.
type Patch struct {
	ServiceName      *string
	Host             *string
	Health           *Health
	Depends          *[]string
	LastPollInstant  *time.Time
	LastPollDuration *time.Duration
	LastPollResult   []byte
}

// New creates a Record from a patch. The patch must name a service.
func New(id string, p Patch) (Record, error) {
	if p.ServiceName == nil || *p.ServiceName == "" {
		return Record{}, fmt.Errorf("%w: id %q", ErrMissingService, id)
	}
	r := Record{ID: id, Health: Unknown}
	return r.Merge(p)
}

// Merge returns a copy of r with every present field of p applied.
func (r Record) Merge(p Patch) (Record, error) {
	if err := p.Validate(); err != nil {
		return Record{}, fmt.Errorf("merging %q: %w", r.ID, err)
	}
	out := r
	if p.ServiceName != nil {
		out.ServiceName = *p.ServiceName
	}
	if p.Host != nil {
		out.Host = *p.Host
	}
	if p.Health != nil {
		out.Health = *p.Health
	}
	if p.Depends != nil {
		out.Depends = NormalizeDepends(*p.Depends)
	}
	if p.LastPollInstant != nil {
		t := *p.LastPollInstant
		out.LastPollInstant = &t
	}
	if p.LastPollDuration != nil {
		d := *p.LastPollDuration
		out.LastPollDuration = &d
	}
	if p.LastPollResult != nil {
		out.LastPollResult = bytes.Clone(p.LastPollResult)
	}
	return out, nil
}

// Validate reports whether the patch carries only legal values.
func (p Patch) Validate() error {
	if p.ServiceName != nil && *p.ServiceName == "" {
		return errors.New("serviceName must not be empty")
	}
	if p.Health != nil && !p.Health.Valid() {
		return fmt.Errorf("invalid health status %q", string(*p.Health))
	}
	if p.LastPollDuration != nil && *p.LastPollDuration < 0 {
		return errors.New("lastPollDurationMillis must not be negative")
	}
	return nil
}

// Equal compares two records by content. LastUpdated is bookkeeping and is
// ignored.
func (r Record) Equal(o Record) bool {
	if r.ID != o.ID || r.ServiceName != o.ServiceName || r.Host != o.Host || r.Health != o.Health {
		return false
	}
	if (r.Depends == nil) != (o.Depends == nil) || !slices.Equal(r.Depends, o.Depends) {
		return false
	}
	if !equalPtr(r.LastPollInstant, o.LastPollInstant, func(a, b time.Time) bool { return a.Equal(b) }) {
		return false
	}
	if !equalPtr(r.LastPollDuration, o.LastPollDuration, func(a, b time.Duration) bool { return a == b }) {
		return false
	}
	if (r.LastPollResult == nil) != (o.LastPollResult == nil) {
		return false
	}
	return bytes.Equal(r.LastPollResult, o.LastPollResult)
}

// Label is the display name of an instance.
func (r Record) Label() string {
	if r.Host == "" {
		return r.ServiceName
	}
	return r.ServiceName + "@" + r.Host
}

// NormalizeDepends returns a sorted copy of ids without duplicates or empty
// entries. The result is never nil.
func NormalizeDepends(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func equalPtr[T any](a, b *T, eq func(T, T) bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return eq(*a, *b)
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T { return &v }
