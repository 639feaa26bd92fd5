// Package syncctx carries the run scoped set of record ids being applied
// from the remote, so local change listeners don't echo them back.
package syncctx

import (
	"context"
	"sync"
)

type contextKey int

const applyingKey contextKey = iota

// Applying is the set of ids being applied by a run.
type Applying struct {
	ids map[string]map[string]struct{}
	mu  sync.RWMutex
}

// NewContext returns a context with a new empty applying set.
func NewContext(parent context.Context) (context.Context, *Applying) {
	a := &Applying{ids: map[string]map[string]struct{}{}}
	return context.WithValue(parent, applyingKey, a), a
}

// FromContext returns the applying set of the context, nil if the context has none.
func FromContext(ctx context.Context) *Applying {
	a, _ := ctx.Value(applyingKey).(*Applying)
	return a
}

// Add marks an id of a record kind as being applied.
func (a *Applying) Add(kind, id string) {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.ids[kind]; !ok {
		a.ids[kind] = map[string]struct{}{}
	}
	a.ids[kind][id] = struct{}{}
}

// Remove unmarks an id of a record kind.
func (a *Applying) Remove(kind, id string) {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.ids[kind], id)
}

// Has returns true if the id of the record kind is being applied.
func (a *Applying) Has(kind, id string) bool {
	if a == nil {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.ids[kind][id]
	return ok
}

// IsApplying is a helper to check the applying set of a context.
func IsApplying(ctx context.Context, kind, id string) bool {
	return FromContext(ctx).Has(kind, id)
}
