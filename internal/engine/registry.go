package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/polyglot/internal/worker"
)

// ErrUnsupportedModel is returned when a model identifier has no registered engine.
var ErrUnsupportedModel = errors.New("unsupported model name")

// Entry describes one registered engine.
type Entry struct {
	Name        string      `json:"name"`
	CodeSet     string      `json:"code_set"`
	Description string      `json:"description"`
	Host        worker.Host `json:"-"`
}

// Registry is the table of engines keyed by model identifier. The parent uses
// it to validate configuration and the worker child uses it to boot the engine.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Register adds an engine under e.Name, replacing any previous entry.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Name] = e
}

// Resolve returns the entry for the given model identifier.
func (r *Registry) Resolve(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnsupportedModel, name)
	}
	return e, nil
}

// Lookup returns the engine host for name. It satisfies worker.Lookup.
func (r *Registry) Lookup(name string) (worker.Host, bool) {
	e, err := r.Resolve(name)
	if err != nil {
		return nil, false
	}
	return e.Host, true
}

// List returns all registered engines sorted by name for a stable API response.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}
