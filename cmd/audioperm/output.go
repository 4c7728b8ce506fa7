package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/eliteGoblin/audioperm/internal/dispatch"
	"github.com/eliteGoblin/audioperm/internal/domain"
	"github.com/eliteGoblin/audioperm/internal/usecase"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(20)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func yesNo(v bool, yes, no string) string {
	if v {
		return okStyle.Render(yes)
	}
	return badStyle.Render(no)
}

func printResult(w io.Writer, op string, result []byte) {
	if jsonOutput {
		fmt.Fprintln(w, string(result))
		return
	}

	var fields struct {
		Granted   *bool `json:"granted"`
		Running   *bool `json:"running"`
		Available *bool `json:"available"`
	}
	_ = json.Unmarshal(result, &fields)

	switch {
	case fields.Granted != nil:
		fmt.Fprintln(w, labelStyle.Render("permission")+yesNo(*fields.Granted, "granted", "not granted"))
	case fields.Running != nil:
		fmt.Fprintln(w, labelStyle.Render("service")+yesNo(*fields.Running, "running", "not running"))
	case fields.Available != nil:
		fmt.Fprintln(w, labelStyle.Render("microphone")+yesNo(*fields.Available, "present", "absent"))
	default:
		fmt.Fprintln(w, labelStyle.Render(op)+okStyle.Render("ok"))
	}
}

func printError(w io.Writer, err error) {
	body := dispatch.NewErrorBody(err)
	if jsonOutput {
		data, _ := json.Marshal(dispatch.Response{Error: body})
		fmt.Fprintln(w, string(data))
		return
	}

	var merr *domain.MediationError
	op := ""
	if errors.As(err, &merr) {
		op = merr.Op
	}
	fmt.Fprintln(w, badStyle.Render(string(body.Kind))+" "+mutedStyle.Render(op))
	fmt.Fprintln(w, "  "+body.Message)
}

func printNote(w io.Writer, msg, detail string) {
	fmt.Fprintln(w, okStyle.Render(msg)+" "+mutedStyle.Render(detail))
}

func printPlatform(w io.Writer, rt *runtime) {
	p := rt.info.Platform
	if jsonOutput {
		data, _ := json.Marshal(map[string]any{
			"platform":          p,
			"class":             p.Class(),
			"version":           rt.info.Version,
			"family":            rt.info.Family,
			"arch":              rt.info.Arch,
			"forced":            rt.info.Overridden,
			"emulated":          rt.device != nil,
			"nativeConsent":     domain.HasNativeConsent(p),
			"foregroundService": domain.SupportsForegroundService(p),
			"commands":          rt.dispatcher.Commands(),
		})
		fmt.Fprintln(w, string(data))
		return
	}

	fmt.Fprintln(w, headerStyle.Render("audioperm platform"))
	row := func(label, value string) {
		fmt.Fprintln(w, labelStyle.Render(label)+value)
	}
	row("platform", rt.info.String())
	if rt.info.Family != "" {
		row("family", rt.info.Family)
	}
	if rt.info.KernelVersion != "" {
		row("kernel", rt.info.KernelVersion)
	}
	row("arch", rt.info.Arch)
	row("emulated", yesNo(rt.device != nil, "yes", "no"))
	for _, kind := range domain.PermissionKinds() {
		consent := mutedStyle.Render("auto-granted")
		if domain.RequiresConsent(p, kind) {
			consent = okStyle.Render("native consent")
		}
		row(string(kind), consent)
	}
	service := mutedStyle.Render("no-op")
	if domain.SupportsForegroundService(p) {
		service = okStyle.Render("foreground service")
	}
	row(usecase.OpStartService, service)
}
