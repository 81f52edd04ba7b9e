// Package history keeps the bounded, ordered room message log that is
// replayed to newly joined sessions.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/storage"
)

const (
	// DefaultCapacity bounds the in-memory log
	DefaultCapacity = 100
	// PersistedCapacity bounds the log when a durable store backs it
	PersistedCapacity = 1000
)

// Service is an append-only, capacity-bounded message log. When the
// log is full the oldest entry is evicted. An optional store persists
// events and seeds the log at startup; without one, history lives only
// for the process lifetime.
type Service struct {
	mu       sync.RWMutex
	events   []*model.ChatEvent
	capacity int

	store  storage.Storage
	logger *slog.Logger
}

// New creates a message log. store may be nil.
func New(capacity int, store storage.Storage, logger *slog.Logger) *Service {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Service{
		events:   make([]*model.ChatEvent, 0, capacity),
		capacity: capacity,
		store:    store,
		logger:   logger.With(slog.String("component", "history")),
	}
}

// Seed loads the most recent persisted events into the log. A no-op
// without a store.
func (s *Service) Seed(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	events, err := s.store.RecentMessages(ctx, s.capacity)
	if err != nil {
		return fmt.Errorf("seeding history: %w", err)
	}

	s.mu.Lock()
	s.events = append(s.events[:0], events...)
	s.mu.Unlock()

	s.logger.Info("history seeded", slog.Int("events", len(events)))
	return nil
}

// Append persists the event (when a store is configured) and then adds
// it to the tail, evicting from the head past capacity. A persistence
// failure leaves the in-memory log untouched.
func (s *Service) Append(ctx context.Context, event *model.ChatEvent) error {
	if s.store != nil {
		if err := s.store.AppendMessage(ctx, event); err != nil {
			return fmt.Errorf("persisting message: %w", err)
		}
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	if len(s.events) > s.capacity {
		s.events = s.events[len(s.events)-s.capacity:]
	}
	s.mu.Unlock()

	return nil
}

// Recent returns the last min(k, len) events in chronological order.
// The returned slice is a snapshot; appends continue unblocked.
func (s *Service) Recent(k int) []*model.ChatEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k < 0 {
		k = 0
	}
	if k > len(s.events) {
		k = len(s.events)
	}
	result := make([]*model.ChatEvent, k)
	copy(result, s.events[len(s.events)-k:])
	return result
}

// Len returns the number of events currently held
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
