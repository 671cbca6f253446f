// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package failure records why a login was rejected so the host can show the
// reason when it disconnects the player.
//
// The pipeline answers before the host decides to disconnect, so the reason
// is parked here keyed by name and collected once with TakeAndClear.
package failure

import (
	"container/list"
	"sync"
	"time"
)

// Reason codes.
const (
	ReasonStrictAuthFailed   = "strict_auth_failed"
	ReasonAllProvidersFailed = "all_providers_failed"
	ReasonStorageFailed      = "storage_failed"
)

// Recorder defaults.
const (
	DefaultTTL        = time.Minute
	DefaultMaxEntries = 10_000
)

// Failure is a recorded rejection.
type Failure struct {
	Reason string `json:"reason"`
	// Authority is the label involved, empty when none applies.
	Authority  string    `json:"authority,omitempty"`
	RecordedAt time.Time `json:"-"`
}

type entry struct {
	name    string
	failure Failure
}

// Recorder is a bounded map of name to most recent Failure. Entries expire
// after the TTL and the oldest entry is evicted when full.
type Recorder struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	order      *list.List // front is oldest
	entries    map[string]*list.Element
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithTTL sets how long a failure stays collectable.
func WithTTL(ttl time.Duration) Option {
	return func(r *Recorder) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithMaxEntries caps the number of names held.
func WithMaxEntries(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxEntries = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a Recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores reason and label for name, replacing any earlier entry.
func (r *Recorder) Record(name, reason, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.expireLocked(now)

	if el, ok := r.entries[name]; ok {
		r.order.Remove(el)
		delete(r.entries, name)
	}
	for r.order.Len() >= r.maxEntries {
		r.removeLocked(r.order.Front())
	}

	r.entries[name] = r.order.PushBack(&entry{
		name:    name,
		failure: Failure{Reason: reason, Authority: label, RecordedAt: now},
	})
}

// TakeAndClear returns and removes the failure for name. ok is false when
// nothing was recorded or the entry expired.
func (r *Recorder) TakeAndClear(name string) (Failure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.entries[name]
	if !ok {
		return Failure{}, false
	}
	r.removeLocked(el)

	f := el.Value.(*entry).failure
	if r.now().Sub(f.RecordedAt) >= r.ttl {
		return Failure{}, false
	}
	return f, true
}

// Clear removes any failure recorded for name.
func (r *Recorder) Clear(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.entries[name]; ok {
		r.removeLocked(el)
	}
}

// Len returns the number of entries, expired ones included until swept.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// expireLocked drops expired entries from the front. Entries are ordered by
// record time so the sweep stops at the first live one.
func (r *Recorder) expireLocked(now time.Time) {
	for el := r.order.Front(); el != nil; el = r.order.Front() {
		if now.Sub(el.Value.(*entry).failure.RecordedAt) < r.ttl {
			return
		}
		r.removeLocked(el)
	}
}

func (r *Recorder) removeLocked(el *list.Element) {
	r.order.Remove(el)
	delete(r.entries, el.Value.(*entry).name)
}
