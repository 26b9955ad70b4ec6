// Package event provides in-process publish/subscribe so managers can react
// to each other's mutations without direct dependencies.
package event

import (
	"context"
	"sync"

	"quickreply/pkg/log"
)

// Type represents the type of event.
type Type int

const (
	GroupAdded Type = iota
	GroupUpdated
	GroupDeleted
	TemplateAdded
	TemplateUpdated
	TemplateDeleted
	TemplateMoved
	TemplateUsed
	AccountImported
)

// Event is an event with its type and associated data.
type Event struct {
	Type Type
	Data any
}

// GroupsDeletedData is the payload of a GroupDeleted event: every group id
// removed by the cascade, the deleted root first.
type GroupsDeletedData struct {
	AccountID string
	GroupIDs  []string
}

// Handler is a function invoked for published events.
type Handler func(Event)

// Manager manages event subscriptions and publications.
type Manager struct {
	subscribers map[Type][]Handler
	mu          sync.RWMutex
	logger      *log.Logger
}

// NewManager creates a new event Manager.
func NewManager(logger *log.Logger) *Manager {
	return &Manager{
		subscribers: make(map[Type][]Handler),
		logger:      logger,
	}
}

// Subscribe adds a handler for a specific event type.
func (m *Manager) Subscribe(eventType Type, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[eventType] = append(m.subscribers[eventType], handler)
}

// Publish delivers an event to all subscribed handlers. Handlers run on the
// publishing goroutine so that state derived from an event (such as config
// cleanup after a cascade delete) is visible as soon as Publish returns; a
// panicking handler is isolated and logged instead of taking the caller down.
func (m *Manager) Publish(event Event) {
	m.mu.RLock()
	handlers := make([]Handler, len(m.subscribers[event.Type]))
	copy(handlers, m.subscribers[event.Type])
	m.mu.RUnlock()

	for _, handler := range handlers {
		func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error(context.Background(), "Panic in event handler", log.Fields{
						"eventType": event.Type,
						"panic":     r,
					})
				}
			}()
			h(event)
		}(handler)
	}
}
