// Package hooks provides named text filters: extension points that let
// integrators change the wording the guard substitutes without touching the
// evaluators.
//
// Filters registered under the same name run in ascending priority order
// (ties in registration order), each receiving the previous filter's output,
// starting from the built-in default.
package hooks

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
)

// DefaultPriority is the priority used when none is given
const DefaultPriority = 10

// OverridePriority is the priority of static overrides from configuration.
// Overrides run after every other filter so the configured text is final.
const OverridePriority = math.MaxInt

// ErrFrozen is returned when adding a filter to a frozen registry
var ErrFrozen = errors.New("hook registry is frozen")

// Filter transforms a text value
type Filter interface {
	Filter(value string) (string, error)
}

// FilterFunc adapts a function to the Filter interface
type FilterFunc func(value string) (string, error)

// Filter implements Filter
func (f FilterFunc) Filter(value string) (string, error) {
	return f(value)
}

// Replace returns a filter that always yields text
func Replace(text string) Filter {
	return FilterFunc(func(string) (string, error) {
		return text, nil
	})
}

type entry struct {
	priority int
	seq      int
	filter   Filter
}

// Registry holds filters by hook name
type Registry struct {
	mu      sync.RWMutex
	filters map[string][]entry
	seq     int
	frozen  bool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
// Filter errors are logged to logger; if nil, slog.Default() is used.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		filters: make(map[string][]entry),
		logger:  logger,
	}
}

// Add registers a filter under name
func (r *Registry) Add(name string, priority int, f Filter) error {
	if name == "" {
		return fmt.Errorf("hook name is required")
	}
	if f == nil {
		return fmt.Errorf("hook %s: filter is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}

	r.seq++
	// Copy on write: Apply iterates slices it read under the lock.
	list := append(slices.Clone(r.filters[name]), entry{priority: priority, seq: r.seq, filter: f})
	slices.SortFunc(list, func(a, b entry) int {
		if c := cmp.Compare(a.priority, b.priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	r.filters[name] = list
	return nil
}

// Freeze rejects further registrations
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Has reports whether any filter is registered under name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filters[name]) > 0
}

// Apply runs the filters registered under name over value.
// A failing filter is skipped and its input passed on unchanged.
func (r *Registry) Apply(name, value string) string {
	r.mu.RLock()
	list := r.filters[name]
	r.mu.RUnlock()

	for _, e := range list {
		out, err := e.filter.Filter(value)
		if err != nil {
			r.logger.Warn("hook filter failed",
				slog.String("hook", name),
				slog.Int("priority", e.priority),
				slog.String("error", err.Error()),
			)
			continue
		}
		value = out
	}
	return value
}
