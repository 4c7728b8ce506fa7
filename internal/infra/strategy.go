package infra

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// Natives holds the native collaborators available to the adapters.
// Nil members mean the facility is absent on this host.
type Natives struct {
	Consent    domain.ConsentAuthority
	Services   domain.ServiceManager
	Microphone domain.MicrophoneProbe
}

// BridgeNatives builds the native collaborators on top of bridge. With no
// native implementation installed, consent and service calls fail with
// domain.ErrPlatformUnavailable and the microphone falls back to device probing.
func BridgeNatives(bridge *Bridge, logger *zap.Logger) Natives {
	n := Natives{
		Consent:  NewBridgeConsent(bridge, logger),
		Services: NewBridgeServices(bridge),
	}
	if bridge.Installed() {
		n.Microphone = NewBridgeMicrophone(bridge)
	}
	return n
}

// NewAdapterSet selects the permission, service and microphone strategies
// for platform. Selection happens once; the set never changes afterwards.
func NewAdapterSet(platform domain.Platform, natives Natives, logger *zap.Logger) domain.AdapterSet {
	set := domain.AdapterSet{Platform: platform}

	if domain.HasNativeConsent(platform) {
		set.Permissions = NewNativePermissions(platform, natives.Consent, logger.Named("permissions"))
	} else {
		set.Permissions = NewAutoGrantPermissions(logger.Named("permissions"))
	}

	if domain.SupportsForegroundService(platform) {
		manager := natives.Services
		if manager == nil {
			manager = unavailableServices{}
		}
		set.Service = NewForegroundServices(manager, set.Permissions, logger.Named("service"))
	} else {
		set.Service = NewNoopServices(logger.Named("service"))
	}

	if natives.Microphone != nil {
		set.Microphone = natives.Microphone
	} else {
		set.Microphone = NewDeviceMicrophone(platform)
	}

	logger.Debug("adapter set selected",
		zap.String("platform", string(platform)),
		zap.Bool("native_consent", domain.HasNativeConsent(platform)),
		zap.Bool("foreground_service", domain.SupportsForegroundService(platform)))

	return set
}
