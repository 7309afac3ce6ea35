package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
)

// Service implements EventService with synchronous at-most-once fan-out.
// Subscriptions are keyed so handles can revoke exactly the handler they
// registered, avoiding leak-prone listener accumulation.
type Service struct {
	subscribers map[interfaces.EventType]map[uint64]interfaces.EventHandler
	nextID      uint64
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType]map[uint64]interfaces.EventHandler),
		logger:      logger,
	}
}

type subscription struct {
	svc       *Service
	eventType interfaces.EventType
	id        uint64
	once      sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.svc.mu.Lock()
		defer s.svc.mu.Unlock()

		if handlers, ok := s.svc.subscribers[s.eventType]; ok {
			delete(handlers, s.id)
		}

		s.svc.logger.Debug().
			Str("event_type", string(s.eventType)).
			Msg("Event handler unsubscribed")
	})
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (interfaces.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[eventType] == nil {
		s.subscribers[eventType] = make(map[uint64]interfaces.EventHandler)
	}
	s.nextID++
	id := s.nextID
	s.subscribers[eventType][id] = handler

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return &subscription{svc: s, eventType: eventType, id: id}, nil
}

// Publish delivers an event to all current subscribers before returning.
// Handler errors are logged and never stop the fan-out.
func (s *Service) Publish(ctx context.Context, event interfaces.Event) {
	s.mu.RLock()
	handlers := make([]interfaces.EventHandler, 0, len(s.subscribers[event.Type]))
	for _, h := range s.subscribers[event.Type] {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			s.logger.Error().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Event handler failed")
		}
	}
}

// Close drops all subscribers
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType]map[uint64]interfaces.EventHandler)
	s.logger.Info().Msg("Event service closed")

	return nil
}
