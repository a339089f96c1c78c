package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neyho/eywa-go/shared"
)

// Event is the severity of a task log entry.
type Event string

const (
	EventInfo      Event = "INFO"
	EventWarn      Event = "WARN"
	EventError     Event = "ERROR"
	EventDebug     Event = "DEBUG"
	EventTrace     Event = "TRACE"
	EventException Event = "EXCEPTION"
)

// LogEntry is one line of the task log kept by the orchestrator.
type LogEntry struct {
	Event       Event
	Message     string
	Data        interface{}
	Duration    time.Duration
	Coordinates interface{}
	// Time defaults to now.
	Time time.Time
}

func (e LogEntry) MarshalJSON() ([]byte, error) {
	var duration interface{}
	if e.Duration > 0 {
		duration = e.Duration.Milliseconds()
	}
	event := e.Event
	if event == "" {
		event = EventInfo
	}
	return json.Marshal(struct {
		Time        time.Time   `json:"time"`
		Event       Event       `json:"event"`
		Message     string      `json:"message"`
		Data        interface{} `json:"data"`
		Coordinates interface{} `json:"coordinates"`
		Duration    interface{} `json:"duration"`
	}{
		Time:        e.Time,
		Event:       event,
		Message:     e.Message,
		Data:        e.Data,
		Coordinates: e.Coordinates,
		Duration:    duration,
	})
}

// Log appends entry to the task log.
func (l *Lifecycle) Log(entry LogEntry) error {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	if err := l.session.SendNotification(shared.MethodTaskLog, entry); err != nil {
		return fmt.Errorf("task log: %w", err)
	}
	return nil
}

func (l *Lifecycle) Info(message string, data interface{}) error {
	return l.Log(LogEntry{Event: EventInfo, Message: message, Data: data})
}

func (l *Lifecycle) Warn(message string, data interface{}) error {
	return l.Log(LogEntry{Event: EventWarn, Message: message, Data: data})
}

func (l *Lifecycle) Error(message string, data interface{}) error {
	return l.Log(LogEntry{Event: EventError, Message: message, Data: data})
}

func (l *Lifecycle) Debug(message string, data interface{}) error {
	return l.Log(LogEntry{Event: EventDebug, Message: message, Data: data})
}

func (l *Lifecycle) Trace(message string, data interface{}) error {
	return l.Log(LogEntry{Event: EventTrace, Message: message, Data: data})
}

func (l *Lifecycle) Exception(message string, data interface{}) error {
	return l.Log(LogEntry{Event: EventException, Message: message, Data: data})
}
