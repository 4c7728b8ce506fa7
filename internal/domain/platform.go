package domain

import (
	"fmt"
	"strings"
)

// Platform identifies the operating system family the layer runs on.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// PlatformClass groups platforms by their permission and service model.
type PlatformClass string

const (
	ClassDesktop PlatformClass = "desktop"
	ClassMobile  PlatformClass = "mobile"
)

// Class returns the platform's class.
func (p Platform) Class() PlatformClass {
	switch p {
	case PlatformAndroid, PlatformIOS:
		return ClassMobile
	default:
		return ClassDesktop
	}
}

// ParsePlatform accepts a platform name, including Go's GOOS spellings.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "macos", "darwin", "osx":
		return PlatformMacOS, nil
	case "windows":
		return PlatformWindows, nil
	case "linux":
		return PlatformLinux, nil
	case "android":
		return PlatformAndroid, nil
	case "ios":
		return PlatformIOS, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// consentRequired records, per platform, which kinds need the user's consent
// through a native authorization facility. Kinds absent from a platform's row
// are auto-granted.
var consentRequired = map[Platform]map[PermissionKind]bool{
	PlatformMacOS:   {PermissionAudio: true},
	PlatformWindows: {},
	PlatformLinux:   {},
	PlatformAndroid: {PermissionAudio: true, PermissionNotification: true},
	PlatformIOS:     {PermissionAudio: true, PermissionNotification: true},
}

// foregroundServiceSupported records which platforms have a real
// foreground/background service with a visible notification.
var foregroundServiceSupported = map[Platform]bool{
	PlatformAndroid: true,
	PlatformIOS:     true,
}

// RequiresConsent reports whether kind must be resolved by native consent on p.
func RequiresConsent(p Platform, kind PermissionKind) bool {
	return consentRequired[p][kind]
}

// HasNativeConsent reports whether p requires consent for any kind at all.
func HasNativeConsent(p Platform) bool {
	for _, required := range consentRequired[p] {
		if required {
			return true
		}
	}
	return false
}

// SupportsForegroundService reports whether p has a real service lifecycle.
func SupportsForegroundService(p Platform) bool {
	return foregroundServiceSupported[p]
}
