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
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEmitter_DeliversToAllSubscribers(t *testing.T) {
	e := NewEmitter()

	var mu sync.Mutex
	var got []Type
	record := func(event *Event) {
		mu.Lock()
		got = append(got, event.Type)
		mu.Unlock()
	}
	e.Subscribe(record)
	e.Subscribe(record)

	e.Emit(TypeAgentThinking, &ThinkingData{Message: "working"})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
}

func TestEmitter_TypeFilter(t *testing.T) {
	e := NewEmitter()

	var toolEvents atomic.Int32
	e.Subscribe(func(event *Event) {
		toolEvents.Add(1)
	}, TypeToolStart, TypeToolSuccess)

	e.Emit(TypeToolStart, &ToolStartData{ToolName: "read_file"})
	e.Emit(TypeAgentThinking, &ThinkingData{Message: "ignored"})
	e.Emit(TypeToolSuccess, &ToolResultData{ToolName: "read_file"})

	if got := toolEvents.Load(); got != 2 {
		t.Errorf("expected 2 filtered deliveries, got %d", got)
	}
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter()

	var calls atomic.Int32
	id := e.Subscribe(func(event *Event) { calls.Add(1) })

	e.Emit(TypeAgentThinking, &ThinkingData{Message: "one"})
	if !e.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for a live subscription")
	}
	e.Emit(TypeAgentThinking, &ThinkingData{Message: "two"})

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 delivery after unsubscribe, got %d", got)
	}
	if e.Unsubscribe(id) {
		t.Error("Unsubscribe returned true for a removed subscription")
	}
	if e.SubscriptionCount() != 0 {
		t.Errorf("expected 0 subscriptions, got %d", e.SubscriptionCount())
	}
}

func TestEmitter_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	e := NewEmitter()

	e.Subscribe(func(event *Event) { panic("boom") })
	var delivered atomic.Int32
	e.Subscribe(func(event *Event) { delivered.Add(1) })

	e.Emit(TypeAgentThinking, &ThinkingData{Message: "survives"})

	if got := delivered.Load(); got != 1 {
		t.Errorf("second handler should still run, got %d deliveries", got)
	}
}

func TestEmitter_SlowHandlerIsAbandoned(t *testing.T) {
	e := NewEmitter(WithHandlerBudget(10 * time.Millisecond))

	release := make(chan struct{})
	e.Subscribe(func(event *Event) { <-release })

	start := time.Now()
	e.Emit(TypeAgentThinking, &ThinkingData{Message: "slow"})
	elapsed := time.Since(start)
	close(release)

	if elapsed > time.Second {
		t.Errorf("Emit blocked for %v; the handler budget should bound it", elapsed)
	}
}

func TestEmitter_BufferKeepsRecentEvents(t *testing.T) {
	e := NewEmitter(WithBufferSize(3))

	for _, msg := range []string{"a", "b", "c", "d"} {
		e.Emit(TypeAgentThinking, &ThinkingData{Message: msg})
	}

	buf := e.Buffer()
	if len(buf) != 3 {
		t.Fatalf("expected buffer of 3, got %d", len(buf))
	}
	first := buf[0].Data.(*ThinkingData)
	if first.Message != "b" {
		t.Errorf("oldest event should have been evicted, buffer starts with %q", first.Message)
	}
}

func TestEmitter_StampsSessionIDAndIteration(t *testing.T) {
	e := NewEmitter(WithSessionID("initial"))
	e.SetSessionID("session-42")
	e.SetIteration(3)

	var got Event
	e.Subscribe(func(event *Event) { got = *event })
	e.Emit(TypeToolStart, &ToolStartData{ToolName: "read_file"})

	if got.SessionID != "session-42" {
		t.Errorf("SessionID = %q, want session-42", got.SessionID)
	}
	if got.Iteration != 3 {
		t.Errorf("Iteration = %d, want 3", got.Iteration)
	}
	if got.ID == "" {
		t.Error("event ID should be populated")
	}
	if got.Timestamp.IsZero() {
		t.Error("event timestamp should be populated")
	}
}

func TestEmitter_ConcurrentEmit(t *testing.T) {
	e := NewEmitter()

	var delivered atomic.Int32
	e.Subscribe(func(event *Event) { delivered.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				e.Emit(TypeAgentThinking, &ThinkingData{Message: "concurrent"})
			}
		}()
	}
	wg.Wait()

	if got := delivered.Load(); got != 200 {
		t.Errorf("expected 200 deliveries, got %d", got)
	}
}
