// Package device serializes access to a non-reentrant imaging device.
//
// Every call into a Driver happens on one executor goroutine (Loop), no matter
// how many request goroutines are waiting. Controller layers an activation
// state machine (Idle, Activating, Ready, Failed) with single-flight semantics
// and a capture gate admitting one capture at a time on top of it.
package device

// Driver is the callback-completed hardware primitive pair.
//
// Both methods are only ever invoked from the controller's executor goroutine
// and must not block indefinitely; long work should complete through the
// callback. Each done callback is expected to fire exactly once; extra calls
// are ignored by the controller. A panic raised synchronously by either method
// is treated as a failed completion.
type Driver interface {
	// Activate prepares the device. done(nil) means ready for capture.
	Activate(done func(err error))

	// Capture takes one frame and reports the outcome.
	Capture(done func(success bool, message string))
}
