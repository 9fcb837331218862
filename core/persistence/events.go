package persistence

import (
	"context"
	"time"

	"github.com/asaidimu/go-events"
)

// EventType identifies a model lifecycle event.
type EventType string

const (
	DocumentCreateStart    EventType = "document:create:start"
	DocumentCreateSuccess  EventType = "document:create:success"
	DocumentCreateFailed   EventType = "document:create:failed"
	DocumentReadStart      EventType = "document:read:start"
	DocumentReadSuccess    EventType = "document:read:success"
	DocumentReadFailed     EventType = "document:read:failed"
	DocumentSearchStart    EventType = "document:search:start"
	DocumentSearchSuccess  EventType = "document:search:success"
	DocumentSearchFailed   EventType = "document:search:failed"
	DocumentUpdateStart    EventType = "document:update:start"
	DocumentUpdateSuccess  EventType = "document:update:success"
	DocumentUpdateFailed   EventType = "document:update:failed"
	DocumentDeleteStart    EventType = "document:delete:start"
	DocumentDeleteSuccess  EventType = "document:delete:success"
	DocumentDeleteFailed   EventType = "document:delete:failed"
	DocumentRestoreStart   EventType = "document:restore:start"
	DocumentRestoreSuccess EventType = "document:restore:success"
	DocumentRestoreFailed  EventType = "document:restore:failed"
	DocumentDestroyStart   EventType = "document:destroy:start"
	DocumentDestroySuccess EventType = "document:destroy:success"
	DocumentDestroyFailed  EventType = "document:destroy:failed"
)

// Event is emitted around every model operation.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix milliseconds
	Operation string    `json:"operation"`
	Model     string    `json:"model"`
	Input     any       `json:"input,omitempty"`
	Output    any       `json:"output,omitempty"`
	Error     *string   `json:"error,omitempty"`
	Duration  *int64    `json:"duration,omitempty"` // milliseconds
}

// EventCallback receives emitted events. Returning an error is logged by the
// bus but never fails the originating operation.
type EventCallback func(ctx context.Context, event Event) error

func newEventBus() (*events.TypedEventBus[Event], error) {
	return events.NewTypedEventBus[Event](events.DefaultConfig())
}

func (m *Model) emit(event Event) {
	if m.bus != nil {
		m.bus.Emit(string(event.Type), event)
	}
}

// Subscribe registers a callback for one event type on this model and returns
// an unsubscribe function.
func (m *Model) Subscribe(event EventType, callback EventCallback) func() {
	if m.bus == nil {
		return func() {}
	}
	return m.bus.Subscribe(string(event), callback)
}

// withEvents wraps an operation with start, success and failure events.
func (m *Model) withEvents(
	operation string,
	start, success, failed EventType,
	input any,
	fn func() (any, error),
) (any, error) {
	startTime := time.Now()

	m.emit(Event{
		Type:      start,
		Timestamp: startTime.UnixMilli(),
		Operation: operation,
		Model:     m.Name(),
		Input:     input,
	})

	result, err := fn()
	duration := time.Since(startTime).Milliseconds()

	if err != nil {
		errStr := err.Error()
		m.emit(Event{
			Type:      failed,
			Timestamp: time.Now().UnixMilli(),
			Operation: operation,
			Model:     m.Name(),
			Input:     input,
			Error:     &errStr,
			Duration:  &duration,
		})
		return nil, err
	}

	m.emit(Event{
		Type:      success,
		Timestamp: time.Now().UnixMilli(),
		Operation: operation,
		Model:     m.Name(),
		Input:     input,
		Output:    result,
		Duration:  &duration,
	})
	return result, nil
}
