// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that processes events.
//
// Handlers must return quickly; a handler that needs to do slow work
// should hand the event off to its own goroutine or channel.
type Handler func(event *Event)

// Subscription pairs a handler with its type filter.
type Subscription struct {
	// ID uniquely identifies this subscription.
	ID string

	// Handler processes matching events.
	Handler Handler

	// Types limits which event types to handle (nil = all types).
	Types []Type
}

// Emitter broadcasts session lifecycle events to subscribers.
//
// Emit never returns an error and never propagates handler panics or
// handler latency back to the caller: each handler runs with panic
// recovery and a per-handler deadline. Recent events are buffered so a
// late consumer can reconstruct the timeline.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	buffer        []Event
	bufferSize    int
	sessionID     string
	iteration     int
	handlerBudget time.Duration
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the event buffer size.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		e.bufferSize = size
	}
}

// WithSessionID sets the session ID stamped on all events.
func WithSessionID(id string) EmitterOption {
	return func(e *Emitter) {
		e.sessionID = id
	}
}

// WithHandlerBudget sets the per-handler time budget.
//
// A handler that overruns the budget is abandoned (its goroutine keeps
// running but the emitter stops waiting) and the overrun is logged.
func WithHandlerBudget(budget time.Duration) EmitterOption {
	return func(e *Emitter) {
		e.handlerBudget = budget
	}
}

// NewEmitter creates a new event emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    1000,
		handlerBudget: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.buffer = make([]Event, 0, e.bufferSize)

	return e
}

// Subscribe registers a handler for events.
//
// Inputs:
//
//	handler - Function to call for each event.
//	types - Event types to subscribe to (none = all types).
//
// Outputs:
//
//	string - Subscription ID for unsubscribing.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.NewString(),
		Handler: handler,
		Types:   types,
	}

	e.subscriptions[sub.ID] = sub
	return sub.ID
}

// Unsubscribe removes a subscription.
//
// Outputs:
//
//	bool - True if the subscription was found and removed.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscriptions[id]; ok {
		delete(e.subscriptions, id)
		return true
	}
	return false
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions)
}

// Emit broadcasts an event to all matching subscribers.
//
// Description:
//
//	Creates the event, buffers it, and invokes every matching handler
//	with panic recovery and the per-handler time budget. Emit itself
//	never fails; handler errors are swallowed and logged.
//
// Inputs:
//
//	eventType - The type of event.
//	data - Event-specific data (one of the *Data structs in types.go).
//
// Thread Safety: This method is safe for concurrent use.
func (e *Emitter) Emit(eventType Type, data any) {
	e.mu.RLock()
	sessionID := e.sessionID
	iteration := e.iteration
	subs := make([]*Subscription, 0, len(e.subscriptions))
	for _, sub := range e.subscriptions {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		Iteration: iteration,
		Timestamp: time.Now(),
		Data:      data,
	}

	e.mu.Lock()
	if len(e.buffer) >= e.bufferSize {
		e.buffer = e.buffer[1:]
	}
	e.buffer = append(e.buffer, event)
	e.mu.Unlock()

	for _, sub := range subs {
		if e.shouldHandle(sub, &event) {
			e.invokeBounded(sub.Handler, &event)
		}
	}
}

// invokeBounded runs a handler with panic recovery and a deadline.
func (e *Emitter) invokeBounded(handler Handler, event *Event) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("event handler panicked",
					"event_type", event.Type,
					"event_id", event.ID,
					"panic", r,
				)
			}
		}()
		handler(event)
	}()

	select {
	case <-done:
	case <-time.After(e.handlerBudget):
		slog.Warn("event handler exceeded time budget",
			"event_type", event.Type,
			"event_id", event.ID,
			"budget", e.handlerBudget,
		)
	}
}

// shouldHandle determines if a subscription should handle an event.
func (e *Emitter) shouldHandle(sub *Subscription, event *Event) bool {
	if len(sub.Types) == 0 {
		return true
	}
	for _, t := range sub.Types {
		if t == event.Type {
			return true
		}
	}
	return false
}

// SetSessionID updates the session ID for future events.
func (e *Emitter) SetSessionID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = id
}

// SetIteration updates the iteration number stamped on future events.
func (e *Emitter) SetIteration(iteration int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.iteration = iteration
}

// Buffer returns a copy of the buffered events in emission order.
func (e *Emitter) Buffer() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Event, len(e.buffer))
	copy(out, e.buffer)
	return out
}
