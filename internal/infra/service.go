package infra

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// NoopServices is the service strategy for platforms without a foreground
// service concept. Every transition succeeds and the service never runs.
type NoopServices struct {
	logger *zap.Logger
}

// NewNoopServices creates the no-op service strategy.
func NewNoopServices(logger *zap.Logger) *NoopServices {
	return &NoopServices{logger: logger}
}

func (s *NoopServices) Start(ctx context.Context) (domain.ServiceResponse, error) {
	s.logger.Debug("foreground service not supported, start is a no-op")
	return domain.ServiceStarted(), nil
}

func (s *NoopServices) Stop(ctx context.Context) (domain.ServiceResponse, error) {
	return domain.ServiceStopped(), nil
}

func (s *NoopServices) Update(ctx context.Context, update domain.NotificationUpdate) (domain.ServiceResponse, error) {
	return domain.ServiceUpdated(), nil
}

func (s *NoopServices) Status(ctx context.Context) (domain.ServiceStatusResponse, error) {
	return domain.ServiceStatusResponse{Running: false}, nil
}

// ForegroundServices drives a real foreground recording service through the
// native service manager (Android, iOS).
type ForegroundServices struct {
	manager     domain.ServiceManager
	permissions domain.PermissionAdapter
	logger      *zap.Logger
}

// NewForegroundServices creates the foreground service strategy. permissions
// is consulted for the start preconditions.
func NewForegroundServices(manager domain.ServiceManager, permissions domain.PermissionAdapter, logger *zap.Logger) *ForegroundServices {
	return &ForegroundServices{
		manager:     manager,
		permissions: permissions,
		logger:      logger,
	}
}

// Start requires audio permission. A missing notification permission is
// logged but does not block the start; the service runs without a visible
// notification in that case.
func (s *ForegroundServices) Start(ctx context.Context) (domain.ServiceResponse, error) {
	audio, err := s.permissions.Check(ctx, domain.PermissionAudio)
	if err != nil {
		return domain.ServiceResponse{}, err
	}
	if !audio.Granted {
		return domain.ServiceResponse{}, fmt.Errorf("%w: Audio permission not granted", domain.ErrServiceRejected)
	}

	notification, err := s.permissions.Check(ctx, domain.PermissionNotification)
	if err != nil {
		s.logger.Warn("could not check notification permission", zap.Error(err))
	} else if !notification.Granted {
		s.logger.Warn("notification permission not granted, service notification may not be visible")
	}

	if err := s.manager.StartForeground(ctx, domain.DefaultNotificationContent()); err != nil {
		return domain.ServiceResponse{}, fmt.Errorf("start foreground service: %w", err)
	}

	s.logger.Info("foreground service started")
	return domain.ServiceStarted(), nil
}

func (s *ForegroundServices) Stop(ctx context.Context) (domain.ServiceResponse, error) {
	if err := s.manager.StopForeground(ctx); err != nil {
		return domain.ServiceResponse{}, fmt.Errorf("stop foreground service: %w", err)
	}
	s.logger.Info("foreground service stopped")
	return domain.ServiceStopped(), nil
}

func (s *ForegroundServices) Update(ctx context.Context, update domain.NotificationUpdate) (domain.ServiceResponse, error) {
	if err := s.manager.UpdateNotification(ctx, update); err != nil {
		return domain.ServiceResponse{}, fmt.Errorf("update notification: %w", err)
	}
	return domain.ServiceUpdated(), nil
}

func (s *ForegroundServices) Status(ctx context.Context) (domain.ServiceStatusResponse, error) {
	running, err := s.manager.IsRunning(ctx)
	if err != nil {
		return domain.ServiceStatusResponse{}, fmt.Errorf("query service status: %w", err)
	}
	return domain.ServiceStatusResponse{Running: running}, nil
}

// unavailableServices stands in for a missing native service manager.
type unavailableServices struct{}

func (unavailableServices) StartForeground(context.Context, domain.NotificationContent) error {
	return fmt.Errorf("service manager: %w", domain.ErrPlatformUnavailable)
}

func (unavailableServices) StopForeground(context.Context) error {
	return fmt.Errorf("service manager: %w", domain.ErrPlatformUnavailable)
}

func (unavailableServices) UpdateNotification(context.Context, domain.NotificationUpdate) error {
	return fmt.Errorf("service manager: %w", domain.ErrPlatformUnavailable)
}

func (unavailableServices) IsRunning(context.Context) (bool, error) {
	return false, fmt.Errorf("service manager: %w", domain.ErrPlatformUnavailable)
}

// Ensure strategies implement domain.ServiceAdapter.
var _ domain.ServiceAdapter = (*NoopServices)(nil)
var _ domain.ServiceAdapter = (*ForegroundServices)(nil)
