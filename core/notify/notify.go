// Package notify carries fire-and-forget events from the core to whatever
// front end is listening. The core never waits for acknowledgment.
package notify

import "sonexa/logger"

// Notifier receives named events with a JSON-serializable payload.
type Notifier interface {
	Emit(event string, payload interface{})
}

// LogNotifier writes events to the log. Used when no UI is attached.
type LogNotifier struct{}

// Emit logs the event at debug level.
func (LogNotifier) Emit(event string, payload interface{}) {
	logger.Debug("event", logger.String("name", event), logger.Any("payload", payload))
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

// Emit forwards the event to every registered notifier.
func (m Multi) Emit(event string, payload interface{}) {
	for _, n := range m {
		n.Emit(event, payload)
	}
}
