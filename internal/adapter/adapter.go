// Package adapter defines the per-protocol Adapter contract and the
// registry that maps a source's type tag to its implementation.
package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/arborcal/calagg/internal/model"
)

// Adapter is the closed capability set every source-type implementation
// exposes. Implementations must be safe to call concurrently across
// distinct sources — the Fetch Coordinator fans calls out under a shared
// semaphore, never serializing by source.
type Adapter interface {
	SupportedType() model.SourceType
	FetchEvents(ctx context.Context, source model.CalendarSource, dateRange model.DateRange) ([]model.RawEvent, error)
	NormalizeEvent(raw model.RawEvent, sourceID string) (*model.NormalizedEvent, error)
	ValidateSource(ctx context.Context, source model.CalendarSource) bool
	GetSourceStatus(ctx context.Context, source model.CalendarSource) (SourceStatus, error)
}

// SourceStatus is the richer health probe result.
type SourceStatus struct {
	IsHealthy    bool
	LastCheck    time.Time
	ErrorMessage string
}

// Registry keeps a mapping sourceType -> Adapter. Registering a second
// adapter for an existing type replaces the prior one; lookup for an
// unregistered type fails with model.ErrUnsupportedSourceType.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.SourceType]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.SourceType]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.SupportedType()] = a
}

func (r *Registry) Lookup(t model.SourceType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	if !ok {
		return nil, model.ErrUnsupportedSourceType
	}
	return a, nil
}
