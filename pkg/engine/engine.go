// Package engine implements the object-model engine: template resolution,
// instance creation with cascading layouts, lineage traversal, and action
// dispatch. All mutations run inside a single storage unit of work, so a
// failure mid-cascade rolls everything back.
//
// See docs/ARCHITECTURE.md § Engine for the component map.
package engine

import (
	"log/slog"
	"sync"

	"github.com/loomworks/tapestry/internal/sqlite"
)

// Engine is the public entry point. Construct with New; the zero value is
// not usable.
type Engine struct {
	store    *sqlite.Store
	resolver *Resolver
	logger   *slog.Logger

	handlerMu sync.RWMutex
	handlers  map[string]ActionFunc
}

// New wires an engine over an opened store. The resolver's cache
// invalidation is registered against the store's template-mutation hook.
func New(store *sqlite.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		resolver: NewResolver(store),
		logger:   logger,
		handlers: make(map[string]ActionFunc),
	}
}

// Resolver returns the engine's template resolver.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// Store returns the underlying store, for callers that need raw row access
// (listing, audit queries, backup).
func (e *Engine) Store() *sqlite.Store { return e.store }
