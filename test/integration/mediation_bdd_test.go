//go:build integration

package integration

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/dispatch"
	"github.com/eliteGoblin/audioperm/internal/domain"
	"github.com/eliteGoblin/audioperm/internal/emulator"
	"github.com/eliteGoblin/audioperm/internal/infra"
	"github.com/eliteGoblin/audioperm/internal/usecase"
	"github.com/eliteGoblin/audioperm/test/fixtures"
)

func dispatcherFor(platform domain.Platform, natives infra.Natives) *dispatch.Dispatcher {
	set := infra.NewAdapterSet(platform, natives, zap.NewNop())
	return dispatch.New(usecase.NewMediator(set, zap.NewNop()), zap.NewNop())
}

var _ = Describe("Mediation", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	call := func(d *dispatch.Dispatcher, command, payload string) string {
		out, err := d.Dispatch(ctx, command, []byte(payload))
		Expect(err).NotTo(HaveOccurred())
		return string(out)
	}

	Describe("platforms without native consent", func() {
		for _, platform := range []domain.Platform{domain.PlatformLinux, domain.PlatformWindows} {
			platform := platform

			It("grants every kind on "+string(platform), func() {
				d := dispatcherFor(platform, infra.Natives{})
				for _, kind := range []string{"audio", "notification"} {
					payload := `{"permissionType":"` + kind + `"}`
					Expect(call(d, "checkPermission", payload)).To(MatchJSON(`{"granted":true}`))
					Expect(call(d, "requestPermission", payload)).To(MatchJSON(`{"granted":true}`))
				}
			})

			It("keeps the service stopped on "+string(platform), func() {
				d := dispatcherFor(platform, infra.Natives{})
				Expect(call(d, "startForegroundService", `{}`)).To(MatchJSON(`{"started":true}`))
				Expect(call(d, "isServiceRunning", `{}`)).To(MatchJSON(`{"running":false}`))
				Expect(call(d, "updateNotification", `{"title":"t"}`)).To(MatchJSON(`{"updated":true}`))
				Expect(call(d, "stopForegroundService", `{}`)).To(MatchJSON(`{"stopped":true}`))
			})
		}
	})

	Describe("macOS", func() {
		It("grants notification without a dialog", func() {
			authority := fixtures.NewScriptedAuthority(domain.StatusDenied)
			d := dispatcherFor(domain.PlatformMacOS, infra.Natives{Consent: authority})

			Expect(call(d, "requestPermission", `{"permissionType":"notification"}`)).To(MatchJSON(`{"granted":true}`))
			Expect(authority.Dialogs(domain.PermissionNotification)).To(BeZero())
		})
	})

	Describe("checkPermission with stub authorities", func() {
		It("reports granted for an always-authorized adapter", func() {
			authority := fixtures.NewScriptedAuthority(domain.StatusAuthorized)
			authority.SetStatus(domain.PermissionAudio, domain.StatusAuthorized)
			d := dispatcherFor(domain.PlatformIOS, infra.Natives{Consent: authority})

			Expect(call(d, "checkPermission", `{"permissionType":"audio"}`)).To(MatchJSON(`{"granted":true}`))
		})

		It("reports not granted, without error, for an always-denied adapter", func() {
			authority := fixtures.NewScriptedAuthority(domain.StatusDenied)
			authority.SetStatus(domain.PermissionAudio, domain.StatusDenied)
			d := dispatcherFor(domain.PlatformIOS, infra.Natives{Consent: authority})

			Expect(call(d, "checkPermission", `{"permissionType":"audio"}`)).To(MatchJSON(`{"granted":false}`))
		})

		It("answers the same way on repeated checks", func() {
			authority := fixtures.NewScriptedAuthority(domain.StatusAuthorized)
			d := dispatcherFor(domain.PlatformAndroid, infra.Natives{Consent: authority})

			first := call(d, "checkPermission", `{}`)
			for i := 0; i < 5; i++ {
				Expect(call(d, "checkPermission", `{}`)).To(MatchJSON(first))
			}
			Expect(authority.Dialogs(domain.PermissionAudio)).To(BeZero())
		})
	})

	Describe("terminal status", func() {
		It("never shows a second dialog after a denial", func() {
			authority := fixtures.NewScriptedAuthority(domain.StatusDenied)
			d := dispatcherFor(domain.PlatformAndroid, infra.Natives{Consent: authority})

			Expect(call(d, "requestPermission", `{"permissionType":"audio"}`)).To(MatchJSON(`{"granted":false}`))
			Expect(call(d, "requestPermission", `{"permissionType":"audio"}`)).To(MatchJSON(`{"granted":false}`))
			Expect(authority.Dialogs(domain.PermissionAudio)).To(Equal(1))
		})

		It("re-queries when the dialog is torn down", func() {
			authority := fixtures.NewScriptedAuthority(domain.StatusUndetermined)
			d := dispatcherFor(domain.PlatformIOS, infra.Natives{Consent: authority})

			result := make(chan string, 1)
			go func() {
				defer GinkgoRecover()
				result <- call(d, "requestPermission", `{}`)
			}()

			Eventually(func() int { return authority.Dialogs(domain.PermissionAudio) }).Should(Equal(1))
			authority.SetStatus(domain.PermissionAudio, domain.StatusAuthorized)
			authority.Teardown()

			Eventually(result).Should(Receive(MatchJSON(`{"granted":true}`)))
		})
	})

	Describe("foreground service on a mobile platform", func() {
		var (
			authority *fixtures.ScriptedAuthority
			manager   *fixtures.RecordingServiceManager
			d         *dispatch.Dispatcher
		)

		BeforeEach(func() {
			authority = fixtures.NewScriptedAuthority(domain.StatusAuthorized)
			authority.SetStatus(domain.PermissionAudio, domain.StatusAuthorized)
			manager = &fixtures.RecordingServiceManager{}
			d = dispatcherFor(domain.PlatformAndroid, infra.Natives{Consent: authority, Services: manager})
		})

		It("runs between start and stop", func() {
			Expect(call(d, "startForegroundService", `{}`)).To(MatchJSON(`{"started":true}`))
			Expect(call(d, "isServiceRunning", `{}`)).To(MatchJSON(`{"running":true}`))
			Expect(call(d, "stopForegroundService", `{}`)).To(MatchJSON(`{"stopped":true}`))
			Expect(call(d, "isServiceRunning", `{}`)).To(MatchJSON(`{"running":false}`))
		})

		It("records the last applied notification", func() {
			Expect(call(d, "start_foreground_service", `{}`)).To(MatchJSON(`{"started":true}`))
			Expect(call(d, "updateNotification", `{"title":"Recording","message":"Active"}`)).To(MatchJSON(`{"updated":true}`))
			Expect(manager.Content()).To(Equal(domain.NotificationContent{Title: "Recording", Message: "Active"}))
		})

		It("refuses to start without audio permission", func() {
			authority.SetStatus(domain.PermissionAudio, domain.StatusDenied)

			_, err := d.Dispatch(ctx, "startForegroundService", nil)
			Expect(err).To(HaveOccurred())
			var merr *domain.MediationError
			Expect(err).To(BeAssignableToTypeOf(merr))
			Expect(err.(*domain.MediationError).Kind).To(Equal(domain.KindServiceOperationFailed))
			Expect(manager.Starts()).To(BeZero())
		})
	})

	Describe("emulated device through the native bridge", func() {
		var (
			device *emulator.Device
			d      *dispatch.Dispatcher
		)

		BeforeEach(func() {
			store, err := emulator.OpenSQLStore(GinkgoT().TempDir(), nil)
			Expect(err).NotTo(HaveOccurred())
			device = emulator.NewDevice(emulator.Options{
				Platform:   domain.PlatformAndroid,
				Policy:     emulator.ConsentGrant,
				APILevel:   34,
				Microphone: true,
				Store:      store,
			}, zap.NewNop())
			natives := infra.BridgeNatives(infra.NewBridge(device), zap.NewNop())
			d = dispatcherFor(domain.PlatformAndroid, natives)
		})

		AfterEach(func() {
			Expect(device.Close()).To(Succeed())
		})

		It("records a session end to end", func() {
			Expect(call(d, "is_microphone_available", `{}`)).To(MatchJSON(`{"available":true}`))
			Expect(call(d, "requestPermission", `{"permissionType":"audio"}`)).To(MatchJSON(`{"granted":true}`))
			Expect(call(d, "requestPermission", `{"permissionType":"notification"}`)).To(MatchJSON(`{"granted":true}`))
			Expect(call(d, "startForegroundService", `{}`)).To(MatchJSON(`{"started":true}`))
			Expect(device.Notification()).To(Equal(domain.DefaultNotificationContent()))

			Expect(call(d, "updateNotification", `{"message":"Paused"}`)).To(MatchJSON(`{"updated":true}`))
			Expect(device.Notification().Title).To(Equal(domain.DefaultNotificationTitle))
			Expect(device.Notification().Message).To(Equal("Paused"))

			Expect(call(d, "stopForegroundService", `{}`)).To(MatchJSON(`{"stopped":true}`))
			Expect(call(d, "isServiceRunning", `{}`)).To(MatchJSON(`{"running":false}`))
			Expect(device.DialogCount(domain.PermissionAudio)).To(Equal(1))
			Expect(device.DialogCount(domain.PermissionNotification)).To(Equal(1))
		})
	})
})
