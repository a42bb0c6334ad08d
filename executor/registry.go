package executor

import (
	"context"
	"sort"
	"strings"
	"sync"

	"OffloadEngine/errs"
)

// Client is a connected remote service client.
type Client interface {
	Invoke(ctx context.Context, operation string, input map[string]any) (any, error)
	Close() error
}

// Constructor builds a client from connection options. Headers must be attached to every request
// the client sends.
type Constructor func(ctx context.Context, options map[string]any, headers map[string]string) (Client, error)

// Registry maps service names and aliases to client constructors. Lookups are case-insensitive.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	names        map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		names:        make(map[string]string),
	}
}

// Register installs constructor under name and aliases, replacing earlier registrations.
func (r *Registry) Register(name string, constructor Constructor, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.constructors[name] = constructor
	r.names[strings.ToLower(name)] = name
	for _, alias := range aliases {
		r.names[strings.ToLower(alias)] = name
	}
}

// Services lists the registered service names.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		services = append(services, name)
	}
	sort.Strings(services)
	return services
}

func (r *Registry) Lookup(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.names[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return r.constructors[canonical], true
}

// Resolve builds a client for the named service.
func (r *Registry) Resolve(ctx context.Context, name string, options map[string]any, headers map[string]string) (Client, error) {
	constructor, ok := r.Lookup(name)
	if !ok {
		return nil, errs.New(errs.ErrServiceNotFound, name)
	}
	return constructor(ctx, options, headers)
}
