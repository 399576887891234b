// Package strategy holds the brain variants the loop can run, the file that names the active
// one, and the slot that resolves and invokes it each generation.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

var (
	ErrKindExists  = errors.New("strategy kind already registered")
	ErrUnknownKind = errors.New("strategy kind not registered")
)

// Strategy is one brain: it runs a generation and reports how well it did.
type Strategy interface {
	Run(ctx context.Context) (models.Outcome, error)
}

// Factory builds a Strategy from its definition parameters.
type Factory func(def models.Definition) (Strategy, error)

// Registry is the dispatch table from strategy kind to factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[models.StrategyKind]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[models.StrategyKind]Factory)}
}

// Register adds a factory for kind.
func (r *Registry) Register(kind models.StrategyKind, factory Factory) error {
	if kind == "" {
		return errors.New("strategy kind is required")
	}
	if factory == nil {
		return errors.New("strategy factory is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("%w: %s", ErrKindExists, kind)
	}
	r.factories[kind] = factory
	return nil
}

// Resolve builds the strategy named by def.
func (r *Registry) Resolve(def models.Definition) (Strategy, error) {
	r.mu.RLock()
	factory, ok := r.factories[def.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, def.Kind)
	}
	return factory(def)
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []models.StrategyKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.StrategyKind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
