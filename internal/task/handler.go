package task

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/bosync/internal/model"
)

// Handler runs the work of a task. Handlers may augment t.MetaData, the
// dispatcher persists it.
type Handler interface {
	Run(ctx context.Context, t *model.Task) error
}

// HandlerFunc is a helper to create handlers from functions.
type HandlerFunc func(ctx context.Context, t *model.Task) error

func (f HandlerFunc) Run(ctx context.Context, t *model.Task) error { return f(ctx, t) }

// HandlerFactory creates a handler.
type HandlerFactory func() (Handler, error)

// Registry maps the closed set of task types to their handler constructors.
type Registry struct {
	factories map[model.TaskType]HandlerFactory
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[model.TaskType]HandlerFactory{}}
}

// Register sets the handler constructor of a task type.
func (r *Registry) Register(t model.TaskType, f HandlerFactory) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("nil factory for %q: %w", t, model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[t]; ok {
		return fmt.Errorf("handler for %q: %w", t, model.ErrAlreadyExists)
	}
	r.factories[t] = f

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(t model.TaskType, f HandlerFactory) {
	if err := r.Register(t, f); err != nil {
		panic(err)
	}
}

// Handler returns a new handler for the task type, model.ErrUnknownTaskType
// if there is none.
func (r *Registry) Handler(t model.TaskType) (Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task type %q: %w", t, model.ErrUnknownTaskType)
	}

	h, err := f()
	if err != nil {
		return nil, fmt.Errorf("could not create %q handler: %w", t, err)
	}

	return h, nil
}

// Types returns the registered task types sorted.
func (r *Registry) Types() []model.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]model.TaskType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}
