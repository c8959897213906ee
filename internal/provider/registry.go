// Package provider contains the fetch and push adapters for the external
// calendar sources. Each adapter translates between a source's wire format
// and the engine's SourceEvent/CalendarEvent types; the sources' full APIs
// are deliberately not modelled.
package provider

import (
	"errors"
	"fmt"

	"github.com/sagebrook/practicesync/internal/db"
	"github.com/sagebrook/practicesync/internal/sync"
)

var ErrUnknownSource = errors.New("no adapter registered for source")

// Registry maps event sources to their fetch/push adapters.
type Registry struct {
	fetchers map[db.EventSource]sync.Fetcher
	pushers  map[db.EventSource]sync.Pusher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fetchers: make(map[db.EventSource]sync.Fetcher),
		pushers:  make(map[db.EventSource]sync.Pusher),
	}
}

// Register wires a source to its adapters. Either adapter may be nil for a
// source that only supports one direction.
func (r *Registry) Register(source db.EventSource, fetcher sync.Fetcher, pusher sync.Pusher) {
	if fetcher != nil {
		r.fetchers[source] = fetcher
	}
	if pusher != nil {
		r.pushers[source] = pusher
	}
}

// Fetcher returns the fetch adapter for a source.
func (r *Registry) Fetcher(source db.EventSource) (sync.Fetcher, error) {
	f, ok := r.fetchers[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	return f, nil
}

// Pusher returns the push adapter for a source.
func (r *Registry) Pusher(source db.EventSource) (sync.Pusher, error) {
	p, ok := r.pushers[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	return p, nil
}

// Sources lists the sources with a registered fetch adapter.
func (r *Registry) Sources() []db.EventSource {
	sources := make([]db.EventSource, 0, len(r.fetchers))
	for source := range r.fetchers {
		sources = append(sources, source)
	}
	return sources
}
