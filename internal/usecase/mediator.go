// Package usecase contains application business logic.
package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// Boundary operation names, as hosts invoke them.
const (
	OpRequestPermission   = "requestPermission"
	OpCheckPermission     = "checkPermission"
	OpStartService        = "startForegroundService"
	OpStopService         = "stopForegroundService"
	OpUpdateNotification  = "updateNotification"
	OpServiceStatus       = "isServiceRunning"
	OpMicrophoneAvailable = "isMicrophoneAvailable"
)

// MediatorImpl implements domain.Mediator on top of an adapter set selected
// once at construction. Every error it returns is a *domain.MediationError.
type MediatorImpl struct {
	adapters domain.AdapterSet
	logger   *zap.Logger
}

// NewMediator creates a mediator over adapters.
func NewMediator(adapters domain.AdapterSet, logger *zap.Logger) *MediatorImpl {
	return &MediatorImpl{adapters: adapters, logger: logger}
}

// Platform returns the platform the adapters were selected for.
func (m *MediatorImpl) Platform() domain.Platform {
	return m.adapters.Platform
}

// RequestPermission prompts for consent when the status is undetermined.
// An absent kind means audio.
func (m *MediatorImpl) RequestPermission(ctx context.Context, req domain.PermissionRequest) (domain.PermissionResponse, error) {
	kind := req.KindOrDefault()
	resp, err := m.adapters.Permissions.Request(ctx, kind)
	if err != nil {
		return domain.PermissionResponse{}, m.fail(OpRequestPermission, domain.OpPermission, err, zap.String("kind", string(kind)))
	}
	m.logger.Debug("permission requested",
		zap.String("kind", string(kind)),
		zap.Bool("granted", resp.Granted))
	return resp, nil
}

// CheckPermission reports the current status without prompting.
func (m *MediatorImpl) CheckPermission(ctx context.Context, req domain.PermissionRequest) (domain.PermissionResponse, error) {
	kind := req.KindOrDefault()
	resp, err := m.adapters.Permissions.Check(ctx, kind)
	if err != nil {
		return domain.PermissionResponse{}, m.fail(OpCheckPermission, domain.OpPermission, err, zap.String("kind", string(kind)))
	}
	return resp, nil
}

func (m *MediatorImpl) StartService(ctx context.Context) (domain.ServiceResponse, error) {
	resp, err := m.adapters.Service.Start(ctx)
	if err != nil {
		return domain.ServiceResponse{}, m.fail(OpStartService, domain.OpService, err)
	}
	return resp, nil
}

func (m *MediatorImpl) StopService(ctx context.Context) (domain.ServiceResponse, error) {
	resp, err := m.adapters.Service.Stop(ctx)
	if err != nil {
		return domain.ServiceResponse{}, m.fail(OpStopService, domain.OpService, err)
	}
	return resp, nil
}

func (m *MediatorImpl) UpdateNotification(ctx context.Context, update domain.NotificationUpdate) (domain.ServiceResponse, error) {
	resp, err := m.adapters.Service.Update(ctx, update)
	if err != nil {
		return domain.ServiceResponse{}, m.fail(OpUpdateNotification, domain.OpService, err)
	}
	return resp, nil
}

func (m *MediatorImpl) ServiceStatus(ctx context.Context) (domain.ServiceStatusResponse, error) {
	resp, err := m.adapters.Service.Status(ctx)
	if err != nil {
		return domain.ServiceStatusResponse{}, m.fail(OpServiceStatus, domain.OpService, err)
	}
	return resp, nil
}

// MicrophoneAvailable reports capture hardware presence, independent of permission.
func (m *MediatorImpl) MicrophoneAvailable(ctx context.Context) (domain.MicrophoneAvailability, error) {
	available, err := m.adapters.Microphone.Available(ctx)
	if err != nil {
		return domain.MicrophoneAvailability{}, m.fail(OpMicrophoneAvailable, domain.OpPermission, err)
	}
	return domain.MicrophoneAvailability{Available: available}, nil
}

func (m *MediatorImpl) fail(op string, class domain.OperationClass, err error, fields ...zap.Field) error {
	merr := domain.Normalize(op, class, err)
	fields = append(fields,
		zap.String("op", op),
		zap.String("error_kind", string(merr.Kind)),
		zap.Error(err))
	m.logger.Warn("operation failed", fields...)
	return merr
}

// Ensure MediatorImpl implements domain.Mediator.
var _ domain.Mediator = (*MediatorImpl)(nil)
