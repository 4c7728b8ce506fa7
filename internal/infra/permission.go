package infra

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// AutoGrantPermissions is the strategy for platforms with no native consent
// concept (Linux, Windows). Every kind is granted.
type AutoGrantPermissions struct {
	logger *zap.Logger
}

// NewAutoGrantPermissions creates the auto-grant strategy.
func NewAutoGrantPermissions(logger *zap.Logger) *AutoGrantPermissions {
	return &AutoGrantPermissions{logger: logger}
}

func (p *AutoGrantPermissions) Check(ctx context.Context, kind domain.PermissionKind) (domain.PermissionResponse, error) {
	return domain.PermissionResponse{Granted: true}, nil
}

func (p *AutoGrantPermissions) Request(ctx context.Context, kind domain.PermissionKind) (domain.PermissionResponse, error) {
	p.logger.Debug("permission auto-granted", zap.String("kind", string(kind)))
	return domain.PermissionResponse{Granted: true}, nil
}

// NativePermissions is the strategy for platforms with a native consent
// facility (Android, iOS, macOS). Kinds the consent table marks as not
// requiring consent on the platform are granted without a native call.
type NativePermissions struct {
	platform  domain.Platform
	authority domain.ConsentAuthority
	logger    *zap.Logger

	// Concurrent requests for the same kind share one resolution.
	inflight singleflight.Group
}

// NewNativePermissions creates the native consent strategy. A nil authority
// makes every consent-requiring call fail with domain.ErrPlatformUnavailable.
func NewNativePermissions(platform domain.Platform, authority domain.ConsentAuthority, logger *zap.Logger) *NativePermissions {
	return &NativePermissions{
		platform:  platform,
		authority: authority,
		logger:    logger,
	}
}

// Check asks the platform for the current status. It never prompts.
func (p *NativePermissions) Check(ctx context.Context, kind domain.PermissionKind) (domain.PermissionResponse, error) {
	if !domain.RequiresConsent(p.platform, kind) {
		return domain.PermissionResponse{Granted: true}, nil
	}
	if p.authority == nil {
		return domain.PermissionResponse{}, p.unavailable(kind)
	}

	status, err := p.authority.Status(ctx, kind)
	if err != nil {
		return domain.PermissionResponse{}, fmt.Errorf("query %s status: %w", kind, err)
	}
	return domain.PermissionResponse{Granted: status.Granted()}, nil
}

// Request resolves the permission, showing the consent dialog only while
// the status is undetermined. It blocks until the user answers; there is
// no timeout and ctx cancellation does not abandon the wait.
func (p *NativePermissions) Request(ctx context.Context, kind domain.PermissionKind) (domain.PermissionResponse, error) {
	if !domain.RequiresConsent(p.platform, kind) {
		return domain.PermissionResponse{Granted: true}, nil
	}
	if p.authority == nil {
		return domain.PermissionResponse{}, p.unavailable(kind)
	}

	v, err, shared := p.inflight.Do(string(kind), func() (any, error) {
		return p.resolve(context.WithoutCancel(ctx), kind)
	})
	if err != nil {
		return domain.PermissionResponse{}, err
	}

	status := v.(domain.PermissionStatus)
	if shared {
		p.logger.Debug("joined in-flight permission request",
			zap.String("kind", string(kind)),
			zap.Stringer("status", status))
	}
	return domain.PermissionResponse{Granted: status.Granted()}, nil
}

func (p *NativePermissions) resolve(ctx context.Context, kind domain.PermissionKind) (domain.PermissionStatus, error) {
	status, err := p.authority.Status(ctx, kind)
	if err != nil {
		return domain.StatusUndetermined, fmt.Errorf("query %s status: %w", kind, err)
	}

	// The platform will not show the dialog again once the status is terminal.
	if status.IsTerminal() {
		p.logger.Debug("permission already resolved",
			zap.String("kind", string(kind)),
			zap.Stringer("status", status))
		return status, nil
	}

	signal := newConsentSignal()
	if err := p.authority.RequestConsent(ctx, kind, signal.handler()); err != nil {
		return domain.StatusUndetermined, fmt.Errorf("request %s consent: %w", kind, err)
	}
	p.logger.Info("consent dialog requested", zap.String("kind", string(kind)))

	outcome := signal.wait()
	if outcome.resolved {
		p.logger.Info("consent resolved",
			zap.String("kind", string(kind)),
			zap.Stringer("status", outcome.status))
		return outcome.status, nil
	}

	p.logger.Warn("consent channel closed without an answer, re-querying",
		zap.String("kind", string(kind)),
		zap.Error(outcome.err))

	status, err = p.authority.Status(ctx, kind)
	if err != nil {
		return domain.StatusUndetermined, fmt.Errorf("re-query %s status: %w", kind, err)
	}
	return status, nil
}

func (p *NativePermissions) unavailable(kind domain.PermissionKind) error {
	return fmt.Errorf("%s consent on %s: %w", kind, p.platform, domain.ErrPlatformUnavailable)
}

// consentOutcome is what a consent flow ended with.
type consentOutcome struct {
	status   domain.PermissionStatus
	resolved bool
	err      error
}

// consentSignal is a one-shot completion signal bridging the native
// callback into a blocking call. The first outcome wins.
type consentSignal struct {
	once sync.Once
	ch   chan consentOutcome
}

func newConsentSignal() *consentSignal {
	return &consentSignal{ch: make(chan consentOutcome, 1)}
}

func (s *consentSignal) fire(o consentOutcome) {
	s.once.Do(func() { s.ch <- o })
}

func (s *consentSignal) handler() domain.ConsentHandler {
	return domain.ConsentHandler{
		OnResult: func(status domain.PermissionStatus) {
			s.fire(consentOutcome{status: status, resolved: true})
		},
		OnTeardown: func(err error) {
			s.fire(consentOutcome{err: err})
		},
	}
}

func (s *consentSignal) wait() consentOutcome {
	return <-s.ch
}

// Ensure strategies implement domain.PermissionAdapter.
var _ domain.PermissionAdapter = (*AutoGrantPermissions)(nil)
var _ domain.PermissionAdapter = (*NativePermissions)(nil)
