// Package source defines the event source abstraction and the registry
// the pipeline draws from. A source is anything that can fetch raw
// listings; there is no hierarchy, just a name and a fetch.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"eventsync/internal"
	"eventsync/internal/config"
)

// ErrUnavailable wraps fetch failures. The pipeline treats it as "zero
// events this run", never as fatal.
var ErrUnavailable = errors.New("source unavailable")

type Source interface {
	Name() internal.SourceName
	Fetch(ctx context.Context) ([]internal.RawEvent, error)
}

type Registry struct {
	mu      sync.Mutex
	sources map[internal.SourceName]Source
	order   []internal.SourceName
}

func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[internal.SourceName]Source),
	}
}

func (r *Registry) Register(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := src.Name()
	if _, ok := r.sources[name]; !ok {
		r.order = append(r.order, name)
	}
	r.sources[name] = src
}

func (r *Registry) Get(name internal.SourceName) (Source, error) {
	src, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("source %q is not implemented", name)
	}
	return src, nil
}

// Enabled returns the registered sources switched on in the
// configuration, in registration order.
func (r *Registry) Enabled(cfg *config.Config) []Source {
	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		if cfg.SourceEnabled(name) {
			out = append(out, r.sources[name])
		}
	}
	return out
}
