package camera

import (
	"time"

	"github.com/cjeanneret/camsrv/internal/device"
)

// Every camera here is a callback-completed device.Driver. The controller
// decides when they run; they only know how to talk to the hardware.
var (
	_ device.Driver = (*GPIOShutter)(nil)
	_ device.Driver = (*Simulated)(nil)
)

// photoName returns the file name reported for a frame taken at t,
// e.g. IMG_20250131_142501.jpg.
func photoName(t time.Time) string {
	return "IMG_" + t.Format("20060102_150405") + ".jpg"
}
