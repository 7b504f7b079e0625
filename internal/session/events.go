// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"encoding/json"
	"sync"

	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Event reports that a state variable took a new value.
type Event struct {
	Address  string
	Variable string
	Value    cty.Value
}

// MarshalJSON renders the event with the value in cty JSON form and as
// display text.
func (e Event) MarshalJSON() ([]byte, error) {
	v := Variable{Name: e.Variable, Value: e.Value, Display: value.Format(e.Value)}
	raw, err := v.valueJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Address  string          `json:"address"`
		Variable string          `json:"variable"`
		Value    json.RawMessage `json:"value"`
		Display  string          `json:"display"`
	}{e.Address, e.Variable, raw, v.Display})
}

// EventQueue is a bounded queue of change events. When full, the oldest
// event is dropped. It is safe for concurrent use.
type EventQueue struct {
	mu      sync.Mutex
	limit   int
	events  []Event
	dropped int
	ready   chan struct{}
	onDrop  func()
}

// NewEventQueue returns a queue holding at most limit events.
func NewEventQueue(limit int) *EventQueue {
	if limit < 1 {
		limit = 1
	}
	return &EventQueue{limit: limit, ready: make(chan struct{}, 1)}
}

// Push appends an event.
func (q *EventQueue) Push(e Event) {
	q.mu.Lock()
	if len(q.events) == q.limit {
		q.events = q.events[1:]
		q.dropped++
		if q.onDrop != nil {
			q.onDrop()
		}
	}
	q.events = append(q.events, e)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued event in push order.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Ready is signalled after a push. A receive does not guarantee the queue is
// non-empty; callers Drain and check.
func (q *EventQueue) Ready() <-chan struct{} {
	return q.ready
}

// Dropped returns the number of events dropped so far.
func (q *EventQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
