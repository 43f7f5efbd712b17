// Package connectivity routes named services either to an in-process
// handler or to a remote chatcast node, based on a routes table reloaded
// at runtime.
//
// Every open page registers its fill-and-send handler locally. When a
// page's browser lives on another machine, one row in the routes table
// sends that service over HTTP instead, and callers do not change:
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	router.RegisterLocal("chatcast_fill_and_send.chatgpt", coord.Handle)
//	go router.Watch(ctx, db, 500*time.Millisecond)
//
//	resp, err := router.Call(ctx, "chatcast_fill_and_send.chatgpt", payload)
package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory builds a Handler for a remote endpoint from the route's
// config JSON. close may be nil.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

type route struct {
	Service  string
	Strategy string
	Endpoint string
	Config   json.RawMessage
}

func (rt route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches service calls.
type Router struct {
	mu        sync.RWMutex
	local     map[string]Handler
	remote    map[string]remoteEntry
	routes    map[string]route
	factories map[string]TransportFactory
	mw        HandlerMiddleware
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every dispatched call, local or remote.
func WithMiddleware(mw HandlerMiddleware) Option {
	return func(r *Router) { r.mw = mw }
}

// New creates a Router with no routes.
func New(opts ...Option) *Router {
	r := &Router{
		local:     make(map[string]Handler),
		remote:    make(map[string]remoteEntry),
		routes:    make(map[string]route),
		factories: make(map[string]TransportFactory),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for service, replacing any
// previous one.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.local[service] = h
	r.mu.Unlock()
}

// UnregisterLocal removes the in-process handler for service.
func (r *Router) UnregisterLocal(service string) {
	r.mu.Lock()
	delete(r.local, service)
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a route strategy such as "http".
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// Services lists the services that are callable, sorted.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.local)+len(r.remote))
	for s := range r.local {
		seen[s] = true
	}
	for s := range r.remote {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Call dispatches a service call. Resolution order: a noop route succeeds
// with no response, a remote route wins over a local handler, a local
// handler is used otherwise.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remote[service]
	localH := r.local[service]
	rt, hasRoute := r.routes[service]
	mw := r.mw
	r.mu.RUnlock()

	var h Handler
	switch {
	case hasRoute && rt.Strategy == "noop":
		r.logger.DebugContext(ctx, "connectivity: routing noop", "service", service)
		return nil, nil
	case hasRemote:
		r.logger.DebugContext(ctx, "connectivity: routing remote",
			"service", service, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
		h = entry.handler
	case localH != nil:
		r.logger.DebugContext(ctx, "connectivity: routing local", "service", service)
		h = localH
	default:
		return nil, &ErrServiceNotFound{Service: service}
	}
	if mw != nil {
		h = mw(h)
	}
	return h(ctx, payload)
}

// Reload reads the routes table and rebuilds remote handlers whose
// strategy, endpoint or config changed. Unchanged routes keep their
// handler.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM routes`)
	if err != nil {
		return fmt.Errorf("connectivity: query routes: %w", err)
	}
	defer rows.Close()

	next := make(map[string]route)
	for rows.Next() {
		var rt route
		var cfg string
		if err := rows.Scan(&rt.Service, &rt.Strategy, &rt.Endpoint, &cfg); err != nil {
			return fmt.Errorf("connectivity: scan route: %w", err)
		}
		rt.Config = json.RawMessage(cfg)
		next[rt.Service] = rt
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connectivity: rows: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make(map[string]remoteEntry, len(next))
	for name, rt := range next {
		if rt.Strategy == "local" || rt.Strategy == "noop" {
			continue
		}
		if old, ok := r.routes[name]; ok && old.fingerprint() == rt.fingerprint() {
			if existing, ok := r.remote[name]; ok {
				entries[name] = existing
				continue
			}
		}
		factory, ok := r.factories[rt.Strategy]
		if !ok {
			r.logger.Warn("connectivity: route skipped",
				"error", &ErrNoFactory{Service: name, Strategy: rt.Strategy})
			continue
		}
		h, closeFn, err := factory(rt.Endpoint, rt.Config)
		if err != nil {
			r.logger.Error("connectivity: route skipped", "error",
				&ErrFactoryFailed{Service: name, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err})
			continue
		}
		entries[name] = remoteEntry{handler: h, close: closeFn}
		r.logger.Info("connectivity: route built",
			"service", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	}

	for name, old := range r.remote {
		if old.close == nil {
			continue
		}
		_, kept := entries[name]
		if !kept || r.routes[name].fingerprint() != next[name].fingerprint() {
			old.close()
		}
	}

	r.remote = entries
	r.routes = next
	r.logger.Info("connectivity: routes reloaded", "total", len(next), "remote", len(entries))
	return nil
}

// Close shuts down all remote handlers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.remote {
		if e.close != nil {
			e.close()
		}
	}
	r.remote = make(map[string]remoteEntry)
	r.routes = make(map[string]route)
	return nil
}
