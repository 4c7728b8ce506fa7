// Package infra implements infrastructure concerns (platform strategies, native bridge).
package infra

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// PlatformInfo describes the platform the adapter set is selected for.
type PlatformInfo struct {
	Platform      domain.Platform
	Family        string // OS family reported by the host (e.g., "debian", "Standalone Workstation")
	Version       string // OS version (e.g., "14.4.1")
	KernelVersion string
	Arch          string
	Overridden    bool // Platform was forced by configuration rather than detected
}

// DetectPlatform identifies the running platform from GOOS and enriches it
// with host details where the host exposes them.
func DetectPlatform() *PlatformInfo {
	p, err := domain.ParsePlatform(runtime.GOOS)
	if err != nil {
		// Unknown Unix flavours behave like Linux: no native consent, no services.
		p = domain.PlatformLinux
	}

	info := &PlatformInfo{Platform: p, Arch: runtime.GOARCH}
	fillHostDetails(info)
	return info
}

// PlatformFor returns info for a forced platform (emulation, tests).
func PlatformFor(p domain.Platform) *PlatformInfo {
	return &PlatformInfo{
		Platform:   p,
		Arch:       runtime.GOARCH,
		Overridden: true,
	}
}

func fillHostDetails(info *PlatformInfo) {
	stat, err := host.Info()
	if err != nil || stat == nil {
		return
	}
	info.Family = stat.PlatformFamily
	info.Version = stat.PlatformVersion
	info.KernelVersion = stat.KernelVersion
	if stat.KernelArch != "" {
		info.Arch = stat.KernelArch
	}
}

// String returns a human-readable description of the platform.
func (i *PlatformInfo) String() string {
	s := fmt.Sprintf("%s (%s", i.Platform, i.Platform.Class())
	if i.Version != "" {
		s += ", " + i.Version
	}
	if i.Overridden {
		s += ", forced"
	}
	return s + ")"
}
