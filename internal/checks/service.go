// Package checks owns the background check lifecycle: requesting checks from
// providers and reconciling their status from polls and webhooks.
package checks

import (
	"context"
	"strings"
	"time"

	"vetting/internal/metrics"
	"vetting/internal/notify"
	"vetting/internal/provider"
	"vetting/pkg/types"

	"github.com/sirupsen/logrus"
)

// CheckStore persists background checks and their audit events. Writes are
// conditional on the status the caller read.
type CheckStore interface {
	Check(ctx context.Context, checkID string) (*types.BackgroundCheck, error)
	ActiveCheck(ctx context.Context, volunteerID string, checkType types.CheckType) (*types.BackgroundCheck, error)
	CheckByExternalID(ctx context.Context, providerID, externalID string) (*types.BackgroundCheck, error)
	CreateCheck(ctx context.Context, check *types.BackgroundCheck, events ...*types.CheckEvent) error
	UpdateCheck(ctx context.Context, check *types.BackgroundCheck, expected types.CheckStatus, events ...*types.CheckEvent) error
	AppendEvents(ctx context.Context, checkID string, events ...*types.CheckEvent) error
	Events(ctx context.Context, checkID string) ([]*types.CheckEvent, error)
	ClaimEvent(ctx context.Context, checkID string, event *types.CheckEvent) (bool, error)
	ReleaseEvent(ctx context.Context, event *types.CheckEvent) error
}

type VolunteerStore interface {
	Volunteer(ctx context.Context, volunteerID string) (*types.Volunteer, error)
}

// Archiver keeps a copy of completed check results.
type Archiver interface {
	Archive(ctx context.Context, check *types.BackgroundCheck) (string, error)
}

type Options struct {
	FallbackMode    types.FallbackMode
	Validity        time.Duration
	ProviderTimeout time.Duration
	WebhookBaseURL  string

	Archive Archiver
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Service struct {
	logger     logrus.FieldLogger
	checks     CheckStore
	volunteers VolunteerStore
	registry   *provider.Registry
	notifier   notify.Dispatcher
	archive    Archiver
	metrics    *metrics.Metrics

	fallbackMode    types.FallbackMode
	validity        time.Duration
	providerTimeout time.Duration
	webhookBaseURL  string
	now             func() time.Time
}

func New(logger logrus.FieldLogger, checks CheckStore, volunteers VolunteerStore, registry *provider.Registry, notifier notify.Dispatcher, opts Options) *Service {
	s := &Service{
		logger:          logger,
		checks:          checks,
		volunteers:      volunteers,
		registry:        registry,
		notifier:        notifier,
		archive:         opts.Archive,
		metrics:         opts.Metrics,
		fallbackMode:    opts.FallbackMode,
		validity:        opts.Validity,
		providerTimeout: opts.ProviderTimeout,
		webhookBaseURL:  strings.TrimSuffix(opts.WebhookBaseURL, "/"),
		now:             opts.Now,
	}

	if s.fallbackMode == "" {
		s.fallbackMode = types.FallbackModeSimulate
	}
	if s.validity == 0 {
		s.validity = 730 * 24 * time.Hour
	}
	if s.providerTimeout == 0 {
		s.providerTimeout = 12 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Check returns a check together with its audit trail.
func (s *Service) Check(ctx context.Context, checkID string) (*types.BackgroundCheck, error) {
	check, err := s.checks.Check(ctx, checkID)
	if err != nil {
		return nil, err
	}

	check.Events, err = s.checks.Events(ctx, checkID)
	if err != nil {
		return nil, err
	}

	return check, nil
}

func (s *Service) callbackURL(p *types.Provider) string {
	if p.Settings.CallbackURL != "" {
		return p.Settings.CallbackURL
	}
	if s.webhookBaseURL == "" {
		return ""
	}
	return s.webhookBaseURL + "/webhooks/" + p.ID
}

func (s *Service) event(kind types.CheckEventKind, detail string) *types.CheckEvent {
	return &types.CheckEvent{
		Kind:      kind,
		Detail:    detail,
		CreatedAt: s.now(),
	}
}

func (s *Service) checkLogger(check *types.BackgroundCheck) logrus.FieldLogger {
	return s.logger.WithFields(logrus.Fields{
		"check_id":     check.ID,
		"volunteer_id": check.VolunteerID,
		"provider_id":  check.ProviderID,
		"check_type":   check.CheckType,
		"status":       check.Status,
	})
}

func providerResult(err error) string {
	if err == nil {
		return "ok"
	}
	return types.ProviderErrorReason(err)
}
