// File: internal/usecase/registry.go
package usecase

import (
	"studio-sync-engine/internal/domain/model"
)

// registry is the aggregate of in-flight entries for one user. It is a
// plain data structure: the tracker serializes every access under its own
// lock, which is what makes remove-then-act an atomic step.
type registry struct {
	entries map[string]model.TrackedEntry
	order   []string // insertion order
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]model.TrackedEntry)}
}

// add inserts the entry if its key is not present. Returns false on a
// duplicate key, leaving the existing entry untouched.
func (r *registry) add(e model.TrackedEntry) bool {
	key := e.Key()
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.entries[key] = e
	r.order = append(r.order, key)
	return true
}

// remove deletes the entry and reports whether it existed. The returned
// bool is the completion gate: exactly one caller per key ever sees true.
func (r *registry) remove(key string) (model.TrackedEntry, bool) {
	e, ok := r.entries[key]
	if !ok {
		return model.TrackedEntry{}, false
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e, true
}

func (r *registry) get(key string) (model.TrackedEntry, bool) {
	e, ok := r.entries[key]
	return e, ok
}

// setStatus updates the display status of a live entry, reporting whether
// anything actually changed. Terminal statuses never go through here; they
// go through the completion gate.
func (r *registry) setStatus(key, status string) bool {
	e, ok := r.entries[key]
	if !ok || e.Status == status {
		return false
	}
	e.Status = status
	r.entries[key] = e
	return true
}

// snapshot lists current entries in insertion order.
func (r *registry) snapshot() []model.TrackedEntry {
	out := make([]model.TrackedEntry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.entries[k])
	}
	return out
}

func (r *registry) keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *registry) countKind(kind model.ContentKind) int {
	n := 0
	for _, e := range r.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *registry) len() int { return len(r.entries) }
