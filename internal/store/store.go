// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store holds the canonical per-section document state. Every other
// engine component reads and writes section content through a Store; the
// store is the only shared mutable state between streaming goroutines.
package store

import (
	"sync"

	"github.com/pdiddy/proposal-engine/pkg/types"
)

// Store is the source of truth for a document's sections. Sections keep the
// order they were initialized with. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	order    []string
	sections map[string]types.Section

	// notifyMu serializes snapshot delivery. It is acquired while mu is
	// still held, so subscribers see snapshots in mutation order.
	notifyMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]func([]types.Section)
	nextSub int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sections: make(map[string]types.Section),
		subs:     make(map[int]func([]types.Section)),
	}
}

// ReplaceAll swaps the entire section list, used when the hosting document
// pushes an external update or at initialization.
func (s *Store) ReplaceAll(sections []types.Section) {
	s.mu.Lock()
	s.order = s.order[:0]
	s.sections = make(map[string]types.Section, len(sections))
	for _, sec := range sections {
		if _, dup := s.sections[sec.ID]; dup {
			continue
		}
		s.order = append(s.order, sec.ID)
		s.sections[sec.ID] = sec
	}
	s.publishLocked()
}

// Get returns a snapshot of the section with the given id.
func (s *Store) Get(id string) (types.Section, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[id]
	return sec, ok
}

// Set applies a pure updater to the latest snapshot of the section and
// notifies subscribers. The updater runs under the store lock, so the
// read-modify-write is atomic with respect to other writers. Setting an
// unknown id is a no-op: a section may be removed while a stream for it is
// still winding down.
func (s *Store) Set(id string, update func(types.Section) types.Section) {
	s.mu.Lock()
	sec, ok := s.sections[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	sec = update(sec)
	sec.ID = id // identity is not updatable
	s.sections[id] = sec
	s.publishLocked()
}

// List returns an ordered snapshot copy of all sections.
func (s *Store) List() []types.Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []types.Section {
	out := make([]types.Section, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sections[id])
	}
	return out
}

// Remove deletes a section from the list. Removing an unknown id is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	if _, ok := s.sections[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sections, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.publishLocked()
}

// Subscribe registers a callback invoked with an ordered snapshot after
// every store change. The returned function cancels the subscription.
// Callbacks run synchronously on the writer's goroutine and must not call
// back into the Store's write methods.
func (s *Store) Subscribe(fn func([]types.Section)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// publishLocked snapshots the store and delivers the snapshot to every
// subscriber. The caller holds mu; it is released here. Taking notifyMu
// before dropping mu keeps concurrent writers from delivering their
// snapshots out of mutation order.
func (s *Store) publishLocked() {
	snapshot := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.subMu.Lock()
	fns := make([]func([]types.Section), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}
