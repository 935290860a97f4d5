// Package health implements the Health Monitor (C8): per-source and
// fleet-wide health probes layered over the Adapter Registry.
package health

import (
	"context"
	"time"

	"github.com/arborcal/calagg/internal/adapter"
	"github.com/arborcal/calagg/internal/fetch"
	"github.com/arborcal/calagg/internal/model"
)

// SourceLookup resolves a configured source by ID; GetSources lists every
// configured source, enabled or not (GetSourcesHealth does the filtering).
// Both are satisfied by
// *manager.Manager without this package importing it directly, avoiding
// a cyclic dependency between health and manager.
type SourceLookup interface {
	GetSource(sourceID string) (model.CalendarSource, bool)
	GetSources() []model.CalendarSource
}

// Monitor probes adapter health for configured sources.
type Monitor struct {
	sources  SourceLookup
	registry *adapter.Registry
	coord    *fetch.Coordinator
}

func New(sources SourceLookup, registry *adapter.Registry, coord *fetch.Coordinator) *Monitor {
	return &Monitor{sources: sources, registry: registry, coord: coord}
}

// GetSourceHealth returns nil for an unknown source; otherwise it calls
// the adapter's richer health probe and wraps it with measured wall-clock
// response time.
func (m *Monitor) GetSourceHealth(ctx context.Context, sourceID string) (*model.HealthStatus, error) {
	source, ok := m.sources.GetSource(sourceID)
	if !ok {
		return nil, nil
	}

	a, err := m.registry.Lookup(source.Type)
	if err != nil {
		return &model.HealthStatus{SourceID: sourceID, IsHealthy: false, LastCheck: time.Now(), ErrorMessage: err.Error()}, nil
	}

	start := time.Now()
	status, err := a.GetSourceStatus(ctx, source)
	elapsed := time.Since(start)
	if err != nil {
		return &model.HealthStatus{SourceID: sourceID, IsHealthy: false, LastCheck: time.Now(), ResponseTime: elapsed, ErrorMessage: err.Error()}, nil
	}
	return &model.HealthStatus{
		SourceID:     sourceID,
		IsHealthy:    status.IsHealthy,
		LastCheck:    status.LastCheck,
		ResponseTime: elapsed,
		ErrorMessage: status.ErrorMessage,
	}, nil
}

// GetSourcesHealth probes every enabled source concurrently.
func (m *Monitor) GetSourcesHealth(ctx context.Context) []*model.HealthStatus {
	sources := m.sources.GetSources()
	var enabled []model.CalendarSource
	for _, s := range sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}

	results := make([]*model.HealthStatus, len(enabled))
	done := make(chan int, len(enabled))
	for i, s := range enabled {
		go func(i int, s model.CalendarSource) {
			_ = m.coord.Run(ctx, func() {
				status, _ := m.GetSourceHealth(ctx, s.ID)
				results[i] = status
			})
			done <- i
		}(i, s)
	}
	for range enabled {
		<-done
	}
	return results
}
