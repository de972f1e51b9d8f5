// File: pkg/engine/registry.go
package engine

import (
	"sync"

	"ratchet/utilities"
)

// Factory builds an engine for a user on first access.
type Factory func(userID string) (*Engine, error)

// Registry maps user ids to their engine instances. Each engine is fully
// isolated; the registry only owns construction and teardown.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
	factory Factory
	logger  *utilities.Logger
}

func NewRegistry(factory Factory, logger *utilities.Logger) *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
		factory: factory,
		logger:  logger,
	}
}

// Get returns the user's engine, constructing it on first use.
func (r *Registry) Get(userID string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[userID]; ok {
		return e, nil
	}
	e, err := r.factory(userID)
	if err != nil {
		return nil, err
	}
	r.engines[userID] = e
	r.logger.LogInfo("registry: engine created for user %s", userID)
	return e, nil
}

// Peek returns the engine only if it already exists.
func (r *Registry) Peek(userID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[userID]
	return e, ok
}

// Remove disconnects and drops a user's engine.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	e, ok := r.engines[userID]
	delete(r.engines, userID)
	r.mu.Unlock()

	if ok {
		e.Disconnect()
		r.logger.LogInfo("registry: engine removed for user %s", userID)
	}
}

// Shutdown tears every engine down without clearing persisted RUNNING flags,
// so sessions resume after a restart. Used on process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()

	for _, e := range engines {
		e.shutdown()
	}
}
