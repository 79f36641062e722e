// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is the recorded outcome of one task in one run.
type Entry struct {
	Name        string    `json:"name"`
	Result      Result    `json:"result"`
	CompletedAt time.Time `json:"completed_at"`
}

// slot holds at most one entry. The pointer is set exactly once.
type slot struct {
	entry atomic.Pointer[Entry]
}

// Store is the per-run, write-once result store shared by all tasks.
//
// Description:
//
//	Store maps task names to entries. Each name can be written exactly once.
//	Writes to different names only contend on the slot lookup, never on each
//	other's entries; an entry becomes visible atomically when its slot is set.
//
// Thread Safety:
//
//	Store is safe for concurrent use.
type Store struct {
	runID      string
	identifier string
	cancelled  atomic.Bool

	mu    sync.RWMutex
	slots map[string]*slot
	count atomic.Int64
}

// NewStore creates an empty store for one run.
//
// Inputs:
//
//	runID - Identifier of the run, used in logs.
//	names - Optional names to pre-allocate, so writes for them never take the write lock.
//
// Outputs:
//
//	*Store - The empty store.
func NewStore(runID string, names ...string) *Store {
	s := &Store{
		runID: runID,
		slots: make(map[string]*slot, len(names)),
	}
	for _, n := range names {
		s.slots[n] = &slot{}
	}
	return s
}

// RunID returns the identifier of the run that owns this store.
func (s *Store) RunID() string {
	return s.runID
}

// Identifier returns the security identifier of the run, if known.
func (s *Store) Identifier() string {
	return s.identifier
}

// Cancelled reports whether the run stopped early because of cancellation.
func (s *Store) Cancelled() bool {
	return s.cancelled.Load()
}

func (s *Store) lookup(name string, create bool) *slot {
	s.mu.RLock()
	sl, ok := s.slots[name]
	s.mu.RUnlock()
	if ok || !create {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[name]; !ok {
		sl = &slot{}
		s.slots[name] = sl
	}
	return sl
}

// Write records the result for name.
//
// Outputs:
//
//	error - *DuplicateWriteError if name already has an entry.
func (s *Store) Write(name string, result Result) error {
	return s.write(name, result, time.Now())
}

func (s *Store) write(name string, result Result, at time.Time) error {
	entry := &Entry{Name: name, Result: result, CompletedAt: at}
	if !s.lookup(name, true).entry.CompareAndSwap(nil, entry) {
		return &DuplicateWriteError{Name: name}
	}
	s.count.Add(1)
	return nil
}

// Read returns the entry for name.
//
// Outputs:
//
//	Entry - A copy of the stored entry.
//	error - *NotFoundError if name has no entry.
func (s *Store) Read(name string) (Entry, error) {
	sl := s.lookup(name, false)
	if sl == nil {
		return Entry{}, &NotFoundError{Name: name}
	}
	e := sl.entry.Load()
	if e == nil {
		return Entry{}, &NotFoundError{Name: name}
	}
	return *e, nil
}

// Has reports whether name has an entry.
func (s *Store) Has(name string) bool {
	_, err := s.Read(name)
	return err == nil
}

// ReadMany returns the entries present among names.
func (s *Store) ReadMany(names []string) map[string]Entry {
	out := make(map[string]Entry, len(names))
	for _, n := range names {
		if e, err := s.Read(n); err == nil {
			out[n] = e
		}
	}
	return out
}

// Len returns the number of written entries.
func (s *Store) Len() int {
	return int(s.count.Load())
}

// Snapshot returns all written entries sorted by name.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	names := make([]string, 0, len(s.slots))
	for n := range s.slots {
		names = append(names, n)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	out := make([]Entry, 0, len(names))
	for _, n := range names {
		if e, err := s.Read(n); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// View returns a read-only projection limited to names.
func (s *Store) View(names []string) View {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	return View{store: s, names: names, allowed: allowed}
}

// View is the read-only window a task gets onto the Store.
//
// Only the task's declared dependencies are visible; anything else reads
// as not found. The zero View sees nothing.
type View struct {
	store   *Store
	names   []string
	allowed map[string]struct{}
}

// Names returns the visible names in declaration order.
func (v View) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Entry returns the entry for a visible name.
func (v View) Entry(name string) (Entry, error) {
	if _, ok := v.allowed[name]; !ok || v.store == nil {
		return Entry{}, &NotFoundError{Name: name}
	}
	return v.store.Read(name)
}

// Payload returns the success payload of a visible name.
// It returns false when the entry is missing or failed.
func (v View) Payload(name string) (any, bool) {
	e, err := v.Entry(name)
	if err != nil || !e.Result.IsSuccess() {
		return nil, false
	}
	return e.Result.Payload(), true
}

// Failures returns the failures among visible entries, keyed by name.
// Missing entries are reported as Unknown.
func (v View) Failures() map[string]Failure {
	out := make(map[string]Failure)
	for _, n := range v.names {
		e, err := v.Entry(n)
		if err != nil {
			out[n] = Failure{Kind: FailureUnknown, Message: err.Error()}
			continue
		}
		if f, failed := e.Result.Failure(); failed {
			out[n] = f
		}
	}
	return out
}

// PayloadAs returns the payload of name asserted to T.
func PayloadAs[T any](v View, name string) (T, bool) {
	var zero T
	p, ok := v.Payload(name)
	if !ok {
		return zero, false
	}
	typed, ok := p.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
