package camera

import (
	"errors"
	"time"

	"github.com/cjeanneret/camsrv/internal/debug"
)

// SimConfig tunes the simulated camera.
type SimConfig struct {
	ActivateDelay time.Duration
	CaptureDelay  time.Duration
	FailActivate  string // non-empty: every activation fails with this reason
	FailCapture   string // non-empty: every capture fails with this reason
}

// Simulated behaves like a phone camera API: calls return immediately and the
// outcome arrives later on a timer goroutine. Used when no hardware is attached.
type Simulated struct {
	cfg SimConfig
	now func() time.Time
}

// NewSimulated returns a simulated camera.
func NewSimulated(cfg SimConfig) *Simulated {
	return &Simulated{cfg: cfg, now: time.Now}
}

func (s *Simulated) Activate(done func(err error)) {
	debug.Trace("Camera (sim): activate in %v", s.cfg.ActivateDelay)
	time.AfterFunc(s.cfg.ActivateDelay, func() {
		if s.cfg.FailActivate != "" {
			done(errors.New(s.cfg.FailActivate))
			return
		}
		done(nil)
	})
}

func (s *Simulated) Capture(done func(success bool, message string)) {
	name := photoName(s.now())
	debug.Trace("Camera (sim): capture %s in %v", name, s.cfg.CaptureDelay)
	time.AfterFunc(s.cfg.CaptureDelay, func() {
		if s.cfg.FailCapture != "" {
			done(false, "Failed to save photo: "+s.cfg.FailCapture)
			return
		}
		done(true, "Photo saved successfully: "+name)
	})
}
