// Package command holds the dispatch table shared by every transport.
// Transports translate their wire requests into a command name, call
// Dispatch and render the Reply; they never talk to the device directly.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/camsrv/internal/debug"
	"github.com/cjeanneret/camsrv/internal/device"
)

// Command names.
const (
	ActivateDevice = "activate-device"
	CaptureFrame   = "capture-frame"
	ReadMetadata   = "read-metadata"
	Health         = "health"
)

// HealthMessage is the health reply text.
const HealthMessage = "camsrv is running"

// Kind classifies a reply so transports can map it to their own status codes.
type Kind int

const (
	OK Kind = iota
	Unavailable
	Timeout
	DeviceFault
	Internal
	NotFound
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Unavailable:
		return "unavailable"
	case Timeout:
		return "timeout"
	case DeviceFault:
		return "device_fault"
	case Internal:
		return "internal"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reply is the outcome of one command. Body is JSON-serialisable.
type Reply struct {
	Kind Kind
	Body interface{}
}

// Device is the part of device.Controller the dispatcher needs.
type Device interface {
	EnsureActive(ctx context.Context) error
	CaptureFrame(ctx context.Context) (device.CaptureResult, error)
}

// Metadata provides the host property snapshot.
type Metadata interface {
	Snapshot(ctx context.Context) (map[string]string, error)
}

// Dispatcher routes command names to the device or the metadata provider.
type Dispatcher struct {
	dev     Device
	meta    Metadata
	timeout time.Duration
}

// NewDispatcher creates a dispatcher. A timeout <= 0 means callers wait as
// long as their own context allows.
func NewDispatcher(dev Device, meta Metadata, timeout time.Duration) *Dispatcher {
	return &Dispatcher{dev: dev, meta: meta, timeout: timeout}
}

// Commands lists the known command names.
func Commands() []string {
	return []string{ActivateDevice, CaptureFrame, ReadMetadata, Health}
}

// Known reports whether name is a command.
func Known(name string) bool {
	for _, c := range Commands() {
		if c == name {
			return true
		}
	}
	return false
}

// Dispatch runs one command and always returns exactly one reply.
func (d *Dispatcher) Dispatch(ctx context.Context, name string) Reply {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	switch name {
	case ActivateDevice:
		return d.activate(ctx)
	case CaptureFrame:
		return d.capture(ctx)
	case ReadMetadata:
		return d.metadata(ctx)
	case Health:
		return Reply{Kind: OK, Body: map[string]string{"message": HealthMessage}}
	default:
		return errorReply(NotFound, "unknown command")
	}
}

func (d *Dispatcher) activate(ctx context.Context) Reply {
	err := d.dev.EnsureActive(ctx)
	if err == nil {
		return Reply{Kind: OK, Body: map[string]string{"status": "camera opened"}}
	}
	debug.Live("command: %s: %v", ActivateDevice, err)
	return errorReply(classify(err), err.Error())
}

func (d *Dispatcher) capture(ctx context.Context) Reply {
	res, err := d.dev.CaptureFrame(ctx)
	if err == nil {
		return Reply{Kind: OK, Body: res}
	}
	debug.Live("command: %s: %v", CaptureFrame, err)

	var capErr *device.CaptureError
	if errors.As(err, &capErr) {
		if capErr.Activation {
			return Reply{Kind: Unavailable, Body: res}
		}
		return Reply{Kind: DeviceFault, Body: res}
	}
	return Reply{Kind: classify(err), Body: device.CaptureResult{Success: false, Message: err.Error()}}
}

func (d *Dispatcher) metadata(ctx context.Context) Reply {
	props, err := d.meta.Snapshot(ctx)
	if err != nil {
		debug.Error(fmt.Errorf("command: %s: %w", ReadMetadata, err))
		return errorReply(Internal, err.Error())
	}
	return Reply{Kind: OK, Body: props}
}

func classify(err error) Kind {
	var actErr *device.ActivationError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Timeout
	case errors.As(err, &actErr), errors.Is(err, device.ErrClosed):
		return Unavailable
	default:
		return Internal
	}
}

func errorReply(kind Kind, msg string) Reply {
	return Reply{Kind: kind, Body: map[string]string{"error": msg}}
}
