package device

import (
	"encoding/json"
	"time"
)

// Phase is the position of the activation state machine.
type Phase int

const (
	Idle Phase = iota
	Activating
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Activating:
		return "activating"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the phase by name.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// State is a snapshot of the activation state machine.
// Reason is only set when Phase is Failed.
type State struct {
	Phase  Phase
	Reason error
}

func (s State) String() string {
	if s.Phase == Failed && s.Reason != nil {
		return s.Phase.String() + ": " + s.Reason.Error()
	}
	return s.Phase.String()
}

// CaptureResult is the outcome of one capture attempt. It is never mutated
// after the driver reports it.
type CaptureResult struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	ID       string        `json:"-"`
	Duration time.Duration `json:"-"`
}

// Stats counts controller activity since construction.
type Stats struct {
	ActivationAttempts int `json:"activation_attempts"`
	ActivationFailures int `json:"activation_failures"`
	Captures           int `json:"captures"`
	CaptureFailures    int `json:"capture_failures"`
}
