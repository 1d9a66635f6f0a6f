// Package hostinfo reports static properties of the machine the server runs on.
package hostinfo

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/cjeanneret/camsrv/internal/debug"
)

// Property keys returned by Snapshot.
const (
	KeyHostname        = "Hostname"
	KeyOS              = "OS"
	KeyPlatform        = "Platform"
	KeyPlatformFamily  = "PlatformFamily"
	KeyPlatformVersion = "PlatformVersion"
	KeyKernelVersion   = "KernelVersion"
	KeyKernelArch      = "KernelArch"
	KeyVirtualization  = "Virtualization"
	KeyHostID          = "HostID"
	KeyBootTime        = "BootTime"
	KeyCPUModel        = "CPUModel"
	KeyCPUCores        = "CPUCores"
	KeyGoVersion       = "GoVersion"
)

// Provider reads host properties through gopsutil. The zero value is not
// usable; call New.
type Provider struct {
	hostInfo  func(context.Context) (*host.InfoStat, error)
	cpuInfo   func(context.Context) ([]cpu.InfoStat, error)
	cpuCounts func(context.Context, bool) (int, error)
	goVersion func() string
}

// Option overrides a data source.
type Option func(*Provider)

// WithHostInfo replaces host.InfoWithContext.
func WithHostInfo(fn func(context.Context) (*host.InfoStat, error)) Option {
	return func(p *Provider) { p.hostInfo = fn }
}

// WithCPUInfo replaces cpu.InfoWithContext.
func WithCPUInfo(fn func(context.Context) ([]cpu.InfoStat, error)) Option {
	return func(p *Provider) { p.cpuInfo = fn }
}

// WithCPUCounts replaces cpu.CountsWithContext.
func WithCPUCounts(fn func(context.Context, bool) (int, error)) Option {
	return func(p *Provider) { p.cpuCounts = fn }
}

// WithGoVersion replaces runtime.Version.
func WithGoVersion(fn func() string) Option {
	return func(p *Provider) { p.goVersion = fn }
}

// New returns a provider backed by the live system unless overridden.
func New(opts ...Option) *Provider {
	p := &Provider{
		hostInfo:  host.InfoWithContext,
		cpuInfo:   cpu.InfoWithContext,
		cpuCounts: cpu.CountsWithContext,
		goVersion: runtime.Version,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Snapshot collects the property map. Nothing is cached: every call queries
// the sources again. A host lookup failure is an error; CPU lookups that fail
// only drop their keys.
func (p *Provider) Snapshot(ctx context.Context) (map[string]string, error) {
	info, err := p.hostInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host info: %w", err)
	}

	props := map[string]string{
		KeyHostname:        info.Hostname,
		KeyOS:              info.OS,
		KeyPlatform:        info.Platform,
		KeyPlatformFamily:  info.PlatformFamily,
		KeyPlatformVersion: info.PlatformVersion,
		KeyKernelVersion:   info.KernelVersion,
		KeyKernelArch:      info.KernelArch,
		KeyVirtualization:  virtualization(info),
		KeyHostID:          info.HostID,
		KeyGoVersion:       p.goVersion(),
	}
	if info.BootTime > 0 {
		props[KeyBootTime] = time.Unix(int64(info.BootTime), 0).UTC().Format(time.RFC3339)
	}

	if stats, err := p.cpuInfo(ctx); err != nil {
		debug.Verbose("hostinfo: cpu info unavailable: %v", err)
	} else if len(stats) > 0 && stats[0].ModelName != "" {
		props[KeyCPUModel] = stats[0].ModelName
	}

	if n, err := p.cpuCounts(ctx, true); err != nil {
		debug.Verbose("hostinfo: cpu count unavailable: %v", err)
	} else if n > 0 {
		props[KeyCPUCores] = strconv.Itoa(n)
	}

	return props, nil
}

func virtualization(info *host.InfoStat) string {
	switch {
	case info.VirtualizationSystem == "":
		return "none"
	case info.VirtualizationRole == "":
		return info.VirtualizationSystem
	default:
		return info.VirtualizationSystem + "/" + info.VirtualizationRole
	}
}
