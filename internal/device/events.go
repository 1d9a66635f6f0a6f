package device

import "time"

// EventKind names a controller lifecycle event.
type EventKind string

const (
	EventActivating    EventKind = "activating"
	EventReady         EventKind = "ready"
	EventFailed        EventKind = "activation_failed"
	EventCaptured      EventKind = "captured"
	EventCaptureFailed EventKind = "capture_failed"
	EventClosed        EventKind = "closed"
)

// Event is emitted after every state transition and capture completion.
type Event struct {
	Kind      EventKind `json:"kind"`
	Time      time.Time `json:"time"`
	Phase     Phase     `json:"state"`
	Message   string    `json:"message,omitempty"`
	CaptureID string    `json:"capture_id,omitempty"`
}

// Observer receives controller events. OnEvent is called sequentially, in
// transition order, from a dedicated goroutine; a slow observer delays the
// others but never the controller.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }
