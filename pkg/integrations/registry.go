// Package integrations is the capability registry of integration operations.
//
// An action node names an operation by app and action key. Handlers are
// registered at startup and looked up by the workflow executor; the executor
// never knows concrete integration types.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

var ErrHandlerNotFound = errors.New("integration operation not registered")

// Key identifies an integration operation.
type Key struct {
	App       string
	ActionKey string
}

func (k Key) String() string {
	return k.App + "." + k.ActionKey
}

// Invocation is one call of an operation with rendered arguments.
type Invocation struct {
	IntegrationID string
	Arguments     map[string]any
}

// Output is the data an operation returns on success.
type Output map[string]any

// Handler executes one operation. Errors are retried by the caller unless
// wrapped with Permanent.
type Handler interface {
	Execute(ctx context.Context, inv Invocation) (Output, error)
}

type HandlerFunc func(ctx context.Context, inv Invocation) (Output, error)

func (f HandlerFunc) Execute(ctx context.Context, inv Invocation) (Output, error) {
	return f(ctx, inv)
}

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[Key]Handler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: make(map[Key]Handler),
	}
}

// Register adds or replaces the handler for app and actionKey.
func (r *Registry) Register(app, actionKey string, handler Handler) {
	key := Key{App: app, ActionKey: actionKey}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[key]; exists {
		r.logger.Warn("replacing integration handler", "operation", key.String())
	}

	r.handlers[key] = handler
}

// Lookup returns the handler for app and actionKey, or ErrHandlerNotFound.
func (r *Registry) Lookup(app, actionKey string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[Key{App: app, ActionKey: actionKey}]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrHandlerNotFound, app, actionKey)
	}

	return handler, nil
}

// Keys lists registered operations in a stable order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.handlers))
	for key := range r.handlers {
		keys = append(keys, key)
	}

	slices.SortFunc(keys, func(a, b Key) int {
		return strings.Compare(a.String(), b.String())
	})

	return keys
}
