// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package shardedstore provides a concurrent map keyed by a comparable
// key, where every record carries its own reader/writer lock so that a
// write to one key never blocks a read or write on another.
package shardedstore

import "sync"

// Store is a concurrent map from K to a pointer-held V, with per-key
// locking performed by the caller via With/Read.
type Store[K comparable, V any] struct {
	mu      sync.RWMutex
	records map[K]*entry[V]
}

type entry[V any] struct {
	mu    sync.RWMutex
	value V
}

// New creates an empty Store.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{records: make(map[K]*entry[V])}
}

// getOrCreate returns the existing record for key, or creates one using
// zero and returns it.
func (s *Store[K, V]) getOrCreate(key K, zero func() V) *entry[V] {
	s.mu.RLock()
	e, ok := s.records[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.records[key]; ok {
		return e
	}
	e = &entry[V]{value: zero()}
	s.records[key] = e
	return e
}

// With runs fn under the record's exclusive writer lock, creating the
// record via zero() if it does not yet exist.
func (s *Store[K, V]) With(key K, zero func() V, fn func(v *V)) {
	e := s.getOrCreate(key, zero)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.value)
}

// Read runs fn under the record's shared reader lock. If the key does
// not exist, fn is not called and Read returns false.
func (s *Store[K, V]) Read(key K, fn func(v V)) bool {
	s.mu.RLock()
	e, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.value)
	return true
}

// Snapshot returns a copy of every record's current value, keyed the same
// as the store. Used by the outbound snapshot interface.
func (s *Store[K, V]) Snapshot() map[K]V {
	s.mu.RLock()
	keys := make([]K, 0, len(s.records))
	entries := make([]*entry[V], 0, len(s.records))
	for k, e := range s.records {
		keys = append(keys, k)
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make(map[K]V, len(keys))
	for i, k := range keys {
		entries[i].mu.RLock()
		out[k] = entries[i].value
		entries[i].mu.RUnlock()
	}
	return out
}

// Range visits every record's value, each under its own writer lock (fn
// receives a mutable pointer), in unspecified order. Stops early if fn
// returns false.
func (s *Store[K, V]) Range(fn func(key K, v *V) bool) {
	s.mu.RLock()
	keys := make([]K, 0, len(s.records))
	entries := make([]*entry[V], 0, len(s.records))
	for k, e := range s.records {
		keys = append(keys, k)
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for i, e := range entries {
		e.mu.Lock()
		cont := fn(keys[i], &e.value)
		e.mu.Unlock()
		if !cont {
			return
		}
	}
}

// Clear removes every record from the store.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[K]*entry[V])
}

// Len reports the number of records currently held.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
