package infra

import (
	"context"
	"path/filepath"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

const defaultSoundDeviceDir = "/dev/snd"

// DeviceMicrophone probes for capture hardware without a native bridge.
// On Linux it looks for ALSA capture nodes; elsewhere a microphone is
// assumed present.
type DeviceMicrophone struct {
	platform  domain.Platform
	deviceDir string
}

// NewDeviceMicrophone creates a probe for platform.
func NewDeviceMicrophone(platform domain.Platform) *DeviceMicrophone {
	return &DeviceMicrophone{platform: platform, deviceDir: defaultSoundDeviceDir}
}

// NewDeviceMicrophoneWithDir creates a probe reading devices from dir (for testing).
func NewDeviceMicrophoneWithDir(platform domain.Platform, dir string) *DeviceMicrophone {
	return &DeviceMicrophone{platform: platform, deviceDir: dir}
}

// Available reports whether a capture device exists.
func (m *DeviceMicrophone) Available(ctx context.Context) (bool, error) {
	if m.platform != domain.PlatformLinux {
		return true, nil
	}

	// ALSA names capture PCM nodes pcmC<card>D<device>c.
	matches, err := filepath.Glob(filepath.Join(m.deviceDir, "pcmC*D*c"))
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// Ensure DeviceMicrophone implements domain.MicrophoneProbe.
var _ domain.MicrophoneProbe = (*DeviceMicrophone)(nil)
