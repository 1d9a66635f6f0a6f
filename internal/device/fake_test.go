package device

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type captureOutcome struct {
	success bool
	message string
}

// fakeDriver completes callbacks from its own goroutines, like real
// callback-driven hardware, and records how it was driven.
type fakeDriver struct {
	mu             sync.Mutex
	activateErrs   []error // consumed one per Activate; nil when exhausted
	captureResults []captureOutcome
	goroutines     map[uint64]struct{}
	calls          []string

	activateDelay time.Duration
	captureDelay  time.Duration
	activateHold  chan struct{} // when set, activation completes only after it is closed
	captureHold   chan struct{}
	panicActivate bool
	panicCapture  int32 // number of captures that should panic
	doubleDone    bool

	activateCalls atomic.Int32
	captureCalls  atomic.Int32
	inCapture     atomic.Int32
	maxInCapture  atomic.Int32
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{goroutines: make(map[uint64]struct{})}
}

func (f *fakeDriver) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.goroutines[goroutineID()] = struct{}{}
	f.mu.Unlock()
}

func (f *fakeDriver) Activate(done func(err error)) {
	f.record("activate")
	f.activateCalls.Add(1)
	if f.panicActivate {
		panic("activation exploded")
	}

	f.mu.Lock()
	var err error
	if len(f.activateErrs) > 0 {
		err = f.activateErrs[0]
		f.activateErrs = f.activateErrs[1:]
	}
	f.mu.Unlock()

	go func() {
		if f.activateHold != nil {
			<-f.activateHold
		}
		time.Sleep(f.activateDelay)
		done(err)
		if f.doubleDone {
			done(errTest)
		}
	}()
}

func (f *fakeDriver) Capture(done func(success bool, message string)) {
	f.record("capture")
	f.captureCalls.Add(1)
	n := f.inCapture.Add(1)
	for {
		cur := f.maxInCapture.Load()
		if n <= cur || f.maxInCapture.CompareAndSwap(cur, n) {
			break
		}
	}
	if atomic.AddInt32(&f.panicCapture, -1) >= 0 {
		f.inCapture.Add(-1)
		panic("shutter jammed")
	}

	f.mu.Lock()
	out := captureOutcome{success: true, message: "Photo saved successfully: IMG_test.jpg"}
	if len(f.captureResults) > 0 {
		out = f.captureResults[0]
		f.captureResults = f.captureResults[1:]
	}
	f.mu.Unlock()

	go func() {
		if f.captureHold != nil {
			<-f.captureHold
		}
		time.Sleep(f.captureDelay)
		f.inCapture.Add(-1)
		done(out.success, out.message)
	}()
}

func (f *fakeDriver) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDriver) distinctGoroutines() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.goroutines)
}

// goroutineID parses the current goroutine's id from its stack header.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}
