// Package dispatch exposes the mediator to hosts as named commands with
// camelCase JSON payloads.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/domain"
	"github.com/eliteGoblin/audioperm/internal/usecase"
)

type handlerFunc func(ctx context.Context, payload []byte) (any, error)

// Dispatcher routes host commands to a domain.Mediator. It holds no
// per-call state and is safe for concurrent use; a pending
// requestPermission does not block other commands.
type Dispatcher struct {
	mediator domain.Mediator
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

// New creates a dispatcher over mediator.
func New(mediator domain.Mediator, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{mediator: mediator, logger: logger}
	d.handlers = map[string]handlerFunc{
		usecase.OpRequestPermission:   d.requestPermission,
		usecase.OpCheckPermission:     d.checkPermission,
		usecase.OpStartService:        d.startService,
		usecase.OpStopService:         d.stopService,
		usecase.OpUpdateNotification:  d.updateNotification,
		usecase.OpServiceStatus:       d.serviceStatus,
		usecase.OpMicrophoneAvailable: d.microphoneAvailable,
	}
	return d
}

// Commands lists the canonical command names.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch decodes payload, runs command and encodes the result. Commands
// are matched by their camelCase name or its snake_case alias. Errors are
// always *domain.MediationError.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, payload []byte) ([]byte, error) {
	op := Canonical(command)
	handler, ok := d.handlers[op]
	if !ok {
		return nil, domain.NewSerializationError(command, fmt.Errorf("unknown command %q", command))
	}

	result, err := handler(ctx, payload)
	if err != nil {
		return nil, domain.Normalize(op, classOf(op), err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, domain.NewSerializationError(op, err)
	}
	d.logger.Debug("command dispatched", zap.String("command", op))
	return out, nil
}

// Canonical maps a snake_case alias onto its camelCase command name.
// Names that are not aliases are returned unchanged.
func Canonical(command string) string {
	if !strings.Contains(command, "_") {
		return command
	}
	parts := strings.Split(strings.ToLower(command), "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func classOf(op string) domain.OperationClass {
	switch op {
	case usecase.OpStartService, usecase.OpStopService, usecase.OpUpdateNotification, usecase.OpServiceStatus:
		return domain.OpService
	default:
		return domain.OpPermission
	}
}

// permissionPayload is the wire form of domain.PermissionRequest. The kind
// stays a string so unknown values surface as serialization errors.
type permissionPayload struct {
	PermissionType *string `json:"permissionType"`
}

func decode(op string, payload []byte, v any) error {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(trimmed), v); err != nil {
		return domain.NewSerializationError(op, err)
	}
	return nil
}

func decodePermission(op string, payload []byte) (domain.PermissionRequest, error) {
	var p permissionPayload
	if err := decode(op, payload, &p); err != nil {
		return domain.PermissionRequest{}, err
	}
	if p.PermissionType == nil {
		return domain.PermissionRequest{}, nil
	}
	kind, err := domain.ParsePermissionKind(*p.PermissionType)
	if err != nil {
		return domain.PermissionRequest{}, domain.NewSerializationError(op, err)
	}
	return domain.PermissionRequest{Kind: kind}, nil
}

func (d *Dispatcher) requestPermission(ctx context.Context, payload []byte) (any, error) {
	req, err := decodePermission(usecase.OpRequestPermission, payload)
	if err != nil {
		return nil, err
	}
	return d.mediator.RequestPermission(ctx, req)
}

func (d *Dispatcher) checkPermission(ctx context.Context, payload []byte) (any, error) {
	req, err := decodePermission(usecase.OpCheckPermission, payload)
	if err != nil {
		return nil, err
	}
	return d.mediator.CheckPermission(ctx, req)
}

func (d *Dispatcher) startService(ctx context.Context, payload []byte) (any, error) {
	return d.mediator.StartService(ctx)
}

func (d *Dispatcher) stopService(ctx context.Context, payload []byte) (any, error) {
	return d.mediator.StopService(ctx)
}

func (d *Dispatcher) updateNotification(ctx context.Context, payload []byte) (any, error) {
	var update domain.NotificationUpdate
	if err := decode(usecase.OpUpdateNotification, payload, &update); err != nil {
		return nil, err
	}
	return d.mediator.UpdateNotification(ctx, update)
}

func (d *Dispatcher) serviceStatus(ctx context.Context, payload []byte) (any, error) {
	return d.mediator.ServiceStatus(ctx)
}

func (d *Dispatcher) microphoneAvailable(ctx context.Context, payload []byte) (any, error) {
	return d.mediator.MicrophoneAvailable(ctx)
}
