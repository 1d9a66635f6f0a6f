package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cjeanneret/camsrv/internal/debug"
)

// Controller is the only component allowed to call the Driver.
//
// Activation is single-flight: concurrent EnsureActive calls share one driver
// Activate and all observe its outcome. Captures are serialized through a
// FIFO gate held until the driver reports completion. All methods are safe for
// concurrent use.
type Controller struct {
	driver Driver
	loop   *Loop // driver calls
	notify *Loop // observer delivery, in transition order
	gate   *semaphore.Weighted
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	waiters   []chan error
	attempt   uint64
	closed    bool
	stats     Stats
	observers []Observer
}

// NewController wraps driver and starts the executor goroutine.
// The controller starts Idle; nothing touches the hardware until the first
// EnsureActive or CaptureFrame.
func NewController(driver Driver) *Controller {
	return &Controller{
		driver: driver,
		loop:   NewLoop(),
		notify: NewLoop(),
		gate:   semaphore.NewWeighted(1),
		log:    debug.With("device"),
	}
}

// Observe registers an event sink.
func (c *Controller) Observe(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// State returns the current activation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns activity counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// EnsureActive returns once the device is Ready, or with an *ActivationError
// if the shared attempt failed. If ctx ends first only this caller gives up;
// the attempt keeps running for everyone else.
func (c *Controller) EnsureActive(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	switch c.state.Phase {
	case Ready:
		c.mu.Unlock()
		return nil
	case Activating:
		ch := c.joinLocked()
		n := len(c.waiters)
		c.mu.Unlock()
		c.log.Debug().Int("waiters", n).Msg("joining in-flight activation")
		return c.awaitActivation(ctx, ch)
	}

	// Idle or Failed: start a fresh attempt.
	c.attempt++
	id := c.attempt
	c.state = State{Phase: Activating}
	c.stats.ActivationAttempts++
	ch := c.joinLocked()
	c.emitLocked(Event{Kind: EventActivating, Phase: Activating})
	c.mu.Unlock()

	c.log.Info().Uint64("attempt", id).Msg("activating device")

	if err := c.loop.Post(func() { c.runActivate(id) }); err != nil {
		c.resolveActivation(id, err)
	}
	return c.awaitActivation(ctx, ch)
}

// joinLocked must be called with mu held.
func (c *Controller) joinLocked() chan error {
	ch := make(chan error, 1)
	c.waiters = append(c.waiters, ch)
	return ch
}

func (c *Controller) awaitActivation(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrClosed) {
			return ErrClosed
		}
		return &ActivationError{Reason: err}
	case <-ctx.Done():
		return fmt.Errorf("wait for activation: %w", ctx.Err())
	}
}

// runActivate executes on the loop goroutine.
func (c *Controller) runActivate(id uint64) {
	var once sync.Once
	done := func(err error) {
		once.Do(func() { c.resolveActivation(id, err) })
	}
	defer func() {
		if r := recover(); r != nil {
			done(fmt.Errorf("%w: %v", ErrDriverPanic, r))
		}
	}()
	c.log.Trace().Uint64("attempt", id).Msg("driver activate")
	c.driver.Activate(done)
}

// resolveActivation moves Activating to Ready or Failed and releases every
// waiter inside the same critical section. Completions for a stale attempt
// are dropped.
func (c *Controller) resolveActivation(id uint64, err error) {
	c.mu.Lock()
	if id != c.attempt || c.state.Phase != Activating {
		c.mu.Unlock()
		c.log.Warn().Uint64("attempt", id).Msg("ignoring stale activation completion")
		return
	}
	if err == nil {
		c.state = State{Phase: Ready}
		c.emitLocked(Event{Kind: EventReady, Phase: Ready})
	} else {
		c.state = State{Phase: Failed, Reason: err}
		c.stats.ActivationFailures++
		c.emitLocked(Event{Kind: EventFailed, Phase: Failed, Message: err.Error()})
	}
	waiters := c.waiters
	c.waiters = nil
	for _, w := range waiters {
		w <- err
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Error().Err(err).Uint64("attempt", id).Int("waiters", len(waiters)).Msg("activation failed")
	} else {
		c.log.Info().Uint64("attempt", id).Int("waiters", len(waiters)).Msg("device ready")
	}
}

// CaptureFrame activates the device if needed, waits for the capture gate and
// runs one driver capture. A driver-reported failure returns the result
// (Success false) together with a *CaptureError; the device stays Ready.
func (c *Controller) CaptureFrame(ctx context.Context) (CaptureResult, error) {
	if err := c.EnsureActive(ctx); err != nil {
		var actErr *ActivationError
		if errors.As(err, &actErr) || errors.Is(err, ErrClosed) {
			return CaptureResult{Success: false, Message: err.Error()}, &CaptureError{Activation: true, Err: err}
		}
		return CaptureResult{}, err
	}

	if err := c.gate.Acquire(ctx, 1); err != nil {
		return CaptureResult{}, fmt.Errorf("wait for capture gate: %w", err)
	}

	id := uuid.NewString()
	start := time.Now()
	resCh := make(chan CaptureResult, 1)
	var once sync.Once
	finish := func(success bool, message string) {
		once.Do(func() {
			res := CaptureResult{
				Success:  success,
				Message:  message,
				ID:       id,
				Duration: time.Since(start),
			}
			c.recordCapture(res)
			c.gate.Release(1)
			resCh <- res
		})
	}

	if err := c.loop.Post(func() { c.runCapture(id, finish) }); err != nil {
		finish(false, err.Error())
	}

	select {
	case res := <-resCh:
		if !res.Success {
			return res, &CaptureError{Err: errors.New(res.Message)}
		}
		return res, nil
	case <-ctx.Done():
		// The capture still runs to completion and releases the gate.
		return CaptureResult{}, fmt.Errorf("wait for capture: %w", ctx.Err())
	}
}

// runCapture executes on the loop goroutine.
func (c *Controller) runCapture(id string, finish func(bool, string)) {
	defer func() {
		if r := recover(); r != nil {
			finish(false, fmt.Sprintf("%v: %v", ErrDriverPanic, r))
		}
	}()
	c.log.Trace().Str("capture", id).Msg("driver capture")
	c.driver.Capture(finish)
}

func (c *Controller) recordCapture(res CaptureResult) {
	ev := Event{Kind: EventCaptured, Message: res.Message, CaptureID: res.ID}
	c.mu.Lock()
	c.stats.Captures++
	if !res.Success {
		c.stats.CaptureFailures++
		ev.Kind = EventCaptureFailed
	}
	ev.Phase = c.state.Phase
	c.emitLocked(ev)
	c.mu.Unlock()

	if res.Success {
		c.log.Info().Str("capture", res.ID).Dur("took", res.Duration).Msg(res.Message)
	} else {
		c.log.Warn().Str("capture", res.ID).Dur("took", res.Duration).Msg(res.Message)
	}
}

// Close stops the executor. Callers still waiting on an activation are
// released with ErrClosed; later operations fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var waiters []chan error
	if c.state.Phase == Activating {
		c.attempt++ // orphan the in-flight attempt
		c.state = State{Phase: Failed, Reason: ErrClosed}
		waiters = c.waiters
		c.waiters = nil
		for _, w := range waiters {
			w <- ErrClosed
		}
	}
	c.emitLocked(Event{Kind: EventClosed, Phase: c.state.Phase})
	c.mu.Unlock()

	c.loop.Close()
	c.notify.Close()
	c.log.Info().Int("released_waiters", len(waiters)).Msg("controller closed")
}

// emitLocked must be called with mu held so events are queued in the same
// order as the transitions they describe. Delivery happens on the notify loop.
func (c *Controller) emitLocked(ev Event) {
	if len(c.observers) == 0 {
		return
	}
	ev.Time = time.Now()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	_ = c.notify.Post(func() {
		for _, o := range observers {
			o.OnEvent(ev)
		}
	})
}
