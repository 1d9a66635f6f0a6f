package camera

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/camsrv/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls    []gpioCall
	failPin  int // WritePin on this pin fails with LOW
	failOnce bool
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	if d.failPin == pin && level == gpio.Low && !d.failOnce {
		d.failOnce = true
		return errors.New("line stuck")
	}
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func newTestShutter(drv gpio.Driver, wake time.Duration) *GPIOShutter {
	s := NewGPIOShutter(drv, ShutterConfig{
		FocusPin:     24,
		ShutterPin:   25,
		Wake:         wake,
		FocusDelay:   500 * time.Millisecond,
		ShutterDelay: 200 * time.Millisecond,
	})
	s.sleep = func(time.Duration) {}
	s.now = func() time.Time { return time.Date(2025, 1, 31, 14, 25, 1, 0, time.UTC) }
	return s
}

func activate(t *testing.T, s *GPIOShutter) {
	t.Helper()
	var got error = errors.New("callback not called")
	s.Activate(func(err error) { got = err })
	if got != nil {
		t.Fatalf("Activate: %v", got)
	}
}

func TestGPIOShutter_NoLinesTouchedBeforeActivate(t *testing.T) {
	drv := &recordingDriver{}
	newTestShutter(drv, 0)
	if len(drv.calls) != 0 {
		t.Errorf("constructor touched GPIO: %v", drv.calls)
	}
}

func TestGPIOShutter_ActivateParksLinesHighAndWakes(t *testing.T) {
	drv := &recordingDriver{}
	s := newTestShutter(drv, 300*time.Millisecond)
	activate(t, s)

	expected := []gpioCall{
		{"setup", 24, gpio.Low},
		{"write", 24, gpio.High},
		{"setup", 25, gpio.Low},
		{"write", 25, gpio.High},
		{"write", 24, gpio.Low}, // wake pulse
		{"write", 24, gpio.High},
	}
	if len(drv.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(drv.calls), drv.calls)
	}
	for i, exp := range expected {
		if drv.calls[i] != exp {
			t.Errorf("call %d = %+v, want %+v", i, drv.calls[i], exp)
		}
	}
}

func TestGPIOShutter_ActivateWithoutWake(t *testing.T) {
	drv := &recordingDriver{}
	s := newTestShutter(drv, 0)
	activate(t, s)
	if n := len(drv.writeCalls()); n != 2 {
		t.Errorf("expected 2 writes without wake pulse, got %d", n)
	}
}

func TestGPIOShutter_ActivateFailsOnClosedDriver(t *testing.T) {
	drv := gpio.NewMockDriver()
	_ = drv.Close()
	s := newTestShutter(drv, 0)

	var got error
	s.Activate(func(err error) { got = err })
	if !errors.Is(got, gpio.ErrClosed) {
		t.Errorf("Activate error = %v, want gpio.ErrClosed", got)
	}
}

func TestGPIOShutter_CaptureSequence(t *testing.T) {
	drv := &recordingDriver{}
	s := newTestShutter(drv, 0)
	activate(t, s)
	drv.calls = nil // reset after activation

	var ok bool
	var msg string
	s.Capture(func(success bool, message string) { ok, msg = success, message })
	if !ok {
		t.Fatalf("Capture failed: %s", msg)
	}
	if msg != "Photo triggered: IMG_20250131_142501.jpg" {
		t.Errorf("message = %q", msg)
	}

	writes := drv.writeCalls()
	expected := []struct {
		pin   int
		level gpio.Level
		desc  string
	}{
		{24, gpio.Low, "focus LOW (activate AF)"},
		{25, gpio.Low, "shutter LOW (trigger)"},
		{25, gpio.High, "shutter HIGH (release)"},
		{24, gpio.High, "focus HIGH (release)"},
	}
	if len(writes) != len(expected) {
		t.Fatalf("expected %d writes, got %d: %v", len(expected), len(writes), writes)
	}
	for i, exp := range expected {
		if writes[i].pin != exp.pin || writes[i].level != exp.level {
			t.Errorf("step %d (%s): pin=%d level=%v, want pin=%d level=%v",
				i, exp.desc, writes[i].pin, writes[i].level, exp.pin, exp.level)
		}
	}
}

func TestGPIOShutter_CaptureBeforeActivate(t *testing.T) {
	drv := &recordingDriver{}
	s := newTestShutter(drv, 0)

	var ok bool
	var msg string
	s.Capture(func(success bool, message string) { ok, msg = success, message })
	if ok {
		t.Fatal("capture should fail before activation")
	}
	if !strings.Contains(msg, "not activated") {
		t.Errorf("message = %q", msg)
	}
	if len(drv.calls) != 0 {
		t.Errorf("GPIO touched: %v", drv.calls)
	}
}

func TestGPIOShutter_ShutterFailureReleasesFocus(t *testing.T) {
	drv := &recordingDriver{failPin: 25}
	s := newTestShutter(drv, 0)
	activate(t, s)
	drv.calls = nil

	var ok bool
	var msg string
	s.Capture(func(success bool, message string) { ok, msg = success, message })
	if ok {
		t.Fatal("capture should fail")
	}
	if !strings.HasPrefix(msg, "Failed to trigger photo: line stuck") {
		t.Errorf("message = %q", msg)
	}
	writes := drv.writeCalls()
	last := writes[len(writes)-1]
	if last.pin != 24 || last.level != gpio.High {
		t.Errorf("last write = %+v, want focus released HIGH", last)
	}
}

func TestSimulated_CaptureSuccess(t *testing.T) {
	s := NewSimulated(SimConfig{CaptureDelay: time.Millisecond})
	s.now = func() time.Time { return time.Date(2024, 12, 1, 9, 5, 7, 0, time.UTC) }

	type outcome struct {
		ok  bool
		msg string
	}
	ch := make(chan outcome, 1)
	s.Capture(func(ok bool, msg string) { ch <- outcome{ok, msg} })

	select {
	case o := <-ch:
		if !o.ok || o.msg != "Photo saved successfully: IMG_20241201_090507.jpg" {
			t.Errorf("outcome = %+v", o)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for capture callback")
	}
}

func TestSimulated_InjectedFailures(t *testing.T) {
	s := NewSimulated(SimConfig{FailActivate: "permission revoked", FailCapture: "sensor timeout"})

	errCh := make(chan error, 1)
	s.Activate(func(err error) { errCh <- err })
	select {
	case err := <-errCh:
		if err == nil || err.Error() != "permission revoked" {
			t.Errorf("Activate error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for activate callback")
	}

	msgCh := make(chan string, 1)
	s.Capture(func(ok bool, msg string) {
		if ok {
			t.Error("capture should fail")
		}
		msgCh <- msg
	})
	select {
	case msg := <-msgCh:
		if msg != "Failed to save photo: sensor timeout" {
			t.Errorf("message = %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for capture callback")
	}
}

func TestSimulated_ActivateIsAsynchronous(t *testing.T) {
	s := NewSimulated(SimConfig{ActivateDelay: 20 * time.Millisecond})
	called := make(chan struct{})
	s.Activate(func(error) { close(called) })

	select {
	case <-called:
		t.Fatal("callback fired synchronously")
	default:
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for activate callback")
	}
}
