package widget

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/supportbot/internal/config"
)

var ErrWidgetNotFound = errors.New("widget not found")

// Registry owns every widget served by this process, keyed by id.
type Registry struct {
	mu      sync.RWMutex
	widgets map[string]*Widget
	base    config.Options
	deps    Deps
	ctx     context.Context
}

// NewRegistry bootstraps an empty registry. base is the option snapshot new
// widgets start from; deps are shared by every widget. ctx bounds all
// widgets' background work.
func NewRegistry(ctx context.Context, base config.Options, deps Deps) *Registry {
	return &Registry{
		widgets: make(map[string]*Widget),
		base:    base,
		deps:    deps,
		ctx:     ctx,
	}
}

// Create provisions a widget with overrides merged over the base options.
func (r *Registry) Create(_ context.Context, overrides map[string]any) *Widget {
	return r.CreateWithID(uuid.NewString(), overrides)
}

// CreateWithID is Create with a caller-chosen id. An existing widget with the
// same id is returned unchanged.
func (r *Registry) CreateWithID(id string, overrides map[string]any) *Widget {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.widgets[id]; ok {
		return w
	}

	deps := r.deps
	if deps.Lifecycle == nil || deps.Errors == nil {
		sink := NewLogSink(id)
		if deps.Lifecycle == nil {
			deps.Lifecycle = sink
		}
		if deps.Errors == nil {
			deps.Errors = sink
		}
	}

	w := New(r.ctx, id, r.base.Merge(overrides), deps)
	r.widgets[id] = w
	return w
}

// Get retrieves a widget by identifier.
func (r *Registry) Get(id string) (*Widget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.widgets[id]
	if !ok {
		return nil, ErrWidgetNotFound
	}
	return w, nil
}

// Delete shuts a widget down and forgets it, ending its event streams. Its
// persisted transcript stays.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	w, ok := r.widgets[id]
	delete(r.widgets, id)
	r.mu.Unlock()

	if !ok {
		return ErrWidgetNotFound
	}
	w.Shutdown()
	if r.deps.Renderer != nil {
		r.deps.Renderer.RenderRemoved(id)
	}
	return nil
}

// List returns the ids of all widgets, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.widgets))
	for id := range r.widgets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reconfigure rebuilds the base options from stock defaults plus overrides
// and merges overrides into every live widget.
func (r *Registry) Reconfigure(ctx context.Context, overrides map[string]any) {
	r.mu.Lock()
	r.base = config.Resolve(overrides)
	widgets := make([]*Widget, 0, len(r.widgets))
	for _, w := range r.widgets {
		widgets = append(widgets, w)
	}
	r.mu.Unlock()

	for _, w := range widgets {
		w.UpdateConfig(ctx, overrides)
	}
}

// Shutdown stops every widget.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	widgets := r.widgets
	r.widgets = make(map[string]*Widget)
	r.mu.Unlock()

	for _, w := range widgets {
		w.Shutdown()
	}
}
