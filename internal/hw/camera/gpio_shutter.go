package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/camsrv/internal/debug"
	"github.com/cjeanneret/camsrv/internal/hw/gpio"
)

// ShutterConfig describes a wired remote release.
type ShutterConfig struct {
	FocusPin     int
	ShutterPin   int
	Wake         time.Duration // focus pulse that wakes the body from standby
	FocusDelay   time.Duration // time for autofocus
	ShutterDelay time.Duration // shutter hold time
}

// GPIOShutter drives a DSLR through its wired remote connector
// (Nikon MC-DC2 style, three lines):
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// Activation configures both lines as outputs, parks them HIGH (inactive) and
// pulses FOCUS so a sleeping body wakes up.
//
// Capture sequence:
// 1. FOCUS to LOW (activates autofocus)
// 2. Wait for autofocus to complete
// 3. SHUTTER to LOW (triggers the shot)
// 4. Hold for a moment
// 5. Set SHUTTER and FOCUS back to HIGH
//
// The lines are blocking GPIO writes, so both callbacks complete before the
// method returns.
type GPIOShutter struct {
	gpio  gpio.Driver
	cfg   ShutterConfig
	ready bool

	now   func() time.Time
	sleep func(time.Duration)
}

// NewGPIOShutter creates a shutter release on the given pins. No line is
// touched until Activate.
func NewGPIOShutter(g gpio.Driver, cfg ShutterConfig) *GPIOShutter {
	return &GPIOShutter{
		gpio:  g,
		cfg:   cfg,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Activate configures the lines and wakes the camera.
func (s *GPIOShutter) Activate(done func(err error)) {
	debug.Printf("Camera: activating shutter release (focus=%d, shutter=%d)", s.cfg.FocusPin, s.cfg.ShutterPin)

	for _, pin := range []int{s.cfg.FocusPin, s.cfg.ShutterPin} {
		if err := s.gpio.SetupPin(pin, gpio.Output); err != nil {
			done(fmt.Errorf("configure pin %d: %w", pin, err))
			return
		}
		// By default, lines are HIGH (inactive)
		if err := s.gpio.WritePin(pin, gpio.High); err != nil {
			done(fmt.Errorf("park pin %d: %w", pin, err))
			return
		}
	}

	if s.cfg.Wake > 0 {
		debug.Verbose("Camera: wake pulse on FOCUS (%v)", s.cfg.Wake)
		if err := s.gpio.WritePin(s.cfg.FocusPin, gpio.Low); err != nil {
			done(fmt.Errorf("wake camera: %w", err))
			return
		}
		s.sleep(s.cfg.Wake)
		if err := s.gpio.WritePin(s.cfg.FocusPin, gpio.High); err != nil {
			done(fmt.Errorf("wake camera: %w", err))
			return
		}
	}

	s.ready = true
	debug.Live("Camera: shutter release ready")
	done(nil)
}

// Capture triggers one photo.
func (s *GPIOShutter) Capture(done func(success bool, message string)) {
	if !s.ready {
		done(false, "Failed to trigger photo: shutter release not activated")
		return
	}
	name := photoName(s.now())
	if err := s.trigger(); err != nil {
		done(false, "Failed to trigger photo: "+err.Error())
		return
	}
	debug.Live("Camera: shot triggered (%s)", name)
	done(true, "Photo triggered: "+name)
}

// trigger runs FOCUS -> wait for AF -> SHUTTER -> hold -> release.
func (s *GPIOShutter) trigger() error {
	// 1. Activate FOCUS (autofocus)
	debug.Verbose("Camera: activating FOCUS (pin %d -> LOW)", s.cfg.FocusPin)
	if err := s.gpio.WritePin(s.cfg.FocusPin, gpio.Low); err != nil {
		return err
	}

	// 2. Wait for autofocus to complete
	s.sleep(s.cfg.FocusDelay)

	// 3. Activate SHUTTER (trigger)
	debug.Verbose("Camera: activating SHUTTER (pin %d -> LOW)", s.cfg.ShutterPin)
	if err := s.gpio.WritePin(s.cfg.ShutterPin, gpio.Low); err != nil {
		// Release FOCUS on error
		return errors.Join(err, s.gpio.WritePin(s.cfg.FocusPin, gpio.High))
	}

	// 4. Hold shutter
	s.sleep(s.cfg.ShutterDelay)

	// 5. Release SHUTTER then FOCUS
	shutterErr := s.gpio.WritePin(s.cfg.ShutterPin, gpio.High)
	focusErr := s.gpio.WritePin(s.cfg.FocusPin, gpio.High)
	return errors.Join(shutterErr, focusErr)
}
