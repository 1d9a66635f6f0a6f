package device

import "errors"

var (
	// ErrActivationFailed matches every *ActivationError.
	ErrActivationFailed = errors.New("device activation failed")

	// ErrCaptureFailed matches driver-reported capture faults.
	ErrCaptureFailed = errors.New("device capture failed")

	// ErrClosed is returned once the controller or its loop has been shut down.
	ErrClosed = errors.New("device controller closed")

	// ErrDriverPanic wraps a panic raised by a driver method.
	ErrDriverPanic = errors.New("driver panicked")
)

// ActivationError reports a failed activation attempt. It is retryable:
// the next EnsureActive starts a new attempt.
type ActivationError struct {
	Reason error
}

func (e *ActivationError) Error() string {
	return "activation failed: " + e.Reason.Error()
}

func (e *ActivationError) Unwrap() []error {
	return []error{ErrActivationFailed, e.Reason}
}

// CaptureError reports a capture that did not succeed. Activation is true when
// the device could not be activated and no capture was attempted.
type CaptureError struct {
	Activation bool
	Err        error
}

func (e *CaptureError) Error() string {
	if e.Activation {
		return "capture aborted: " + e.Err.Error()
	}
	return "capture failed: " + e.Err.Error()
}

func (e *CaptureError) Unwrap() []error {
	if e.Activation {
		return []error{e.Err}
	}
	return []error{ErrCaptureFailed, e.Err}
}
