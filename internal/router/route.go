package router

import (
	"errors"
	"strings"
	"sync"
)

// ErrRegistryFrozen is returned when routes are added after a Router has
// been built from the registry.
var ErrRegistryFrozen = errors.New("route registry is frozen")

// Route is an immutable registration record.
type Route struct {
	// Method is the HTTP verb, normalized to lowercase on registration.
	Method string

	// Path is the pattern, e.g. "/clusters/:id".
	Path string

	Handler HandlerFunc
}

// Producer contributes routes to a Registry.
type Producer interface {
	Routes() []Route
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func() []Route

// Routes calls f().
func (f ProducerFunc) Routes() []Route {
	return f()
}

// Registry aggregates routes from many producers in insertion order. It
// becomes read-only once a Router has been built from it.
type Registry struct {
	mu     sync.Mutex
	routes []Route
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends the routes of every producer, in order.
func (reg *Registry) Register(producers ...Producer) error {
	var routes []Route
	for _, p := range producers {
		routes = append(routes, p.Routes()...)
	}
	return reg.Add(routes...)
}

// Add appends routes.
func (reg *Registry) Add(routes ...Route) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.frozen {
		return ErrRegistryFrozen
	}

	for _, r := range routes {
		r.Method = strings.ToLower(r.Method)
		reg.routes = append(reg.routes, r)
	}
	return nil
}

// Routes returns a copy of the registered routes.
func (reg *Registry) Routes() []Route {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return append([]Route(nil), reg.routes...)
}

// Freeze makes the registry read-only and returns its routes.
func (reg *Registry) Freeze() []Route {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.frozen = true
	return append([]Route(nil), reg.routes...)
}

// Frozen reports whether the registry is read-only.
func (reg *Registry) Frozen() bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.frozen
}
