package checks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vetting/internal/provider"
	"vetting/internal/utils"
	"vetting/pkg/types"

	"github.com/sirupsen/logrus"
)

// RefreshStatus polls the provider for a check's current status and applies
// any change. Terminal checks are returned unchanged.
func (s *Service) RefreshStatus(ctx context.Context, checkID string) (*types.BackgroundCheck, error) {
	check, err := s.checks.Check(ctx, checkID)
	if err != nil {
		return nil, err
	}

	if check.Status.IsTerminal() || check.ExternalID == nil {
		return check, nil
	}

	p, ok := s.registry.Provider(check.ProviderID)
	if !ok {
		return nil, fmt.Errorf("check %s references unknown provider %s: %w", check.ID, check.ProviderID, types.ErrNoActiveProvider)
	}

	adapter, err := s.adapterFor(check)
	if err != nil {
		return nil, err
	}

	req := provider.StatusRequest{
		ExternalID:  *check.ExternalID,
		CheckType:   check.CheckType,
		RequestedAt: check.RequestedAt,
	}

	statusCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	result, statusErr := adapter.CheckStatus(statusCtx, req)
	s.metrics.ObserveProviderCall(check.ProviderID, "status", providerResult(statusErr), time.Since(start))

	if statusErr == nil {
		return s.reconcile(ctx, check, p, result, "refresh", false)
	}

	logger := s.checkLogger(check).WithError(statusErr)
	failed := s.event(types.CheckEventRefreshFailed, fmt.Sprintf("%s: %v", types.ProviderErrorReason(statusErr), statusErr))

	if !types.IsProviderCommunicationError(statusErr) || s.fallbackMode == types.FallbackModeReview {
		logger.Warn("provider status refresh failed")
		if err := s.checks.AppendEvents(ctx, check.ID, failed); err != nil {
			logger.WithError(err).Error("failed to record refresh failure")
		}
		if !types.IsProviderCommunicationError(statusErr) {
			return nil, statusErr
		}
		return check, nil
	}

	logger.Warn("provider status refresh failed, synthesizing status")
	s.metrics.IncFallback(check.ProviderID, types.ProviderErrorReason(statusErr))
	if err := s.checks.AppendEvents(ctx, check.ID, failed); err != nil {
		logger.WithError(err).Error("failed to record refresh failure")
	}

	result, err = s.registry.Simulation().CheckStatus(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("simulation fallback failed: %w", err)
	}

	return s.reconcile(ctx, check, p, result, "refresh", true)
}

// HandleWebhook applies a provider's status delivery. Re-delivering an update
// that was already applied changes nothing and sends nothing.
func (s *Service) HandleWebhook(ctx context.Context, providerID string, payload []byte) (*types.BackgroundCheck, error) {
	logger := s.logger.WithField("provider_id", providerID)

	p, ok := s.registry.Provider(providerID)
	if !ok {
		s.metrics.IncWebhook(providerID, "unknown_provider")
		logger.Warn("webhook for unknown provider")
		return nil, fmt.Errorf("%w: unknown provider %s", types.ErrInvalidWebhook, providerID)
	}

	adapter, err := s.registry.Adapter(providerID)
	if err != nil {
		return nil, err
	}

	update, err := adapter.ParseWebhook(payload)
	if err != nil {
		s.metrics.IncWebhook(providerID, "invalid")
		logger.WithError(err).Warn("rejected malformed webhook")
		return nil, err
	}

	logger = logger.WithField("external_id", update.ExternalID)

	check, err := s.checks.CheckByExternalID(ctx, providerID, update.ExternalID)
	if err != nil {
		if errors.Is(err, types.ErrCheckNotFound) {
			s.metrics.IncWebhook(providerID, "unknown_external_id")
			logger.Warn("rejected webhook for unknown external id")
			return nil, fmt.Errorf("%w: %s", types.ErrUnknownExternalID, update.ExternalID)
		}
		return nil, err
	}

	s.metrics.IncWebhook(providerID, "accepted")
	return s.reconcile(ctx, check, p, &update.StatusResult, "webhook", false)
}

// reconcile moves check to result's status if the state machine allows it.
// An update matching the stored status is a no-op apart from delivering a
// status notification that has not gone out yet.
func (s *Service) reconcile(ctx context.Context, check *types.BackgroundCheck, p *types.Provider, result *provider.StatusResult, origin string, synthesized bool) (*types.BackgroundCheck, error) {
	logger := s.checkLogger(check).WithField("origin", origin)

	if result.Status == check.Status {
		if check.Status.IsOutcome() {
			s.notifyStatus(ctx, check)
		}
		return check, nil
	}

	if !check.Status.CanTransitionTo(result.Status) {
		logger.WithField("reported_status", result.Status).Warn("ignoring status update not allowed from current status")
		return check, nil
	}

	previous := check.Status
	updated := *check
	s.applyStatus(&updated, p, result)

	kind := types.CheckEventStatusChanged
	if synthesized {
		kind = types.CheckEventStatusSynthesized
		updated.Simulated = true
		if updated.Results != nil {
			updated.Results.Simulated = true
		}
	}

	err := s.checks.UpdateCheck(ctx, &updated, previous, s.event(kind, transitionDetail(previous, updated.Status)))
	if err != nil {
		if errors.Is(err, types.ErrStaleCheck) {
			// Another process applied an update first; report what it stored.
			logger.Info("check changed concurrently, reloading")
			return s.checks.Check(ctx, check.ID)
		}
		return nil, err
	}

	s.metrics.IncTransition(string(previous), string(updated.Status), origin)
	s.checkLogger(&updated).WithFields(logrus.Fields{
		"origin":      origin,
		"from_status": previous,
		"synthesized": synthesized,
	}).Info("background check status changed")

	if updated.Status.IsOutcome() {
		s.afterOutcome(ctx, &updated)
	}

	return &updated, nil
}

// applyStatus copies result onto check and stamps completion and expiry for
// provider outcomes.
func (s *Service) applyStatus(check *types.BackgroundCheck, p *types.Provider, result *provider.StatusResult) {
	check.Status = result.Status
	if !result.Status.IsOutcome() {
		return
	}

	if result.Results != nil {
		check.Results = result.Results
	}

	completedAt := s.now()
	if result.CompletedAt != nil {
		completedAt = *result.CompletedAt
	} else if result.Results != nil && result.Results.CompletedAt != nil {
		completedAt = *result.Results.CompletedAt
	}
	check.CompletedAt = utils.TimePtr(completedAt)

	if result.Status == types.CheckStatusApproved {
		check.ExpiresAt = utils.TimePtr(completedAt.Add(p.Validity(s.validity)))
	}
}

func (s *Service) adapterFor(check *types.BackgroundCheck) (provider.Adapter, error) {
	if check.Simulated || provider.IsSimulatedID(utils.PtrString(check.ExternalID)) {
		return s.registry.Simulation(), nil
	}
	return s.registry.Adapter(check.ProviderID)
}

// afterOutcome runs the side effects of reaching a provider outcome. Failures
// are logged and never undo the transition.
func (s *Service) afterOutcome(ctx context.Context, check *types.BackgroundCheck) {
	s.notifyStatus(ctx, check)

	if s.archive == nil || check.Results == nil || !check.Status.IsTerminal() {
		return
	}

	logger := s.checkLogger(check)
	key, err := s.archive.Archive(ctx, check)
	if err != nil {
		logger.WithError(err).Warn("failed to archive check results")
		return
	}

	if err := s.checks.AppendEvents(ctx, check.ID, s.event(types.CheckEventArchived, key)); err != nil {
		logger.WithError(err).Error("failed to record archived results")
	}
}

// notifyStatus sends one status notification per check and status. The
// notified marker is claimed before dispatch so concurrent deliveries of the
// same update send at most once, and released again if dispatch fails.
func (s *Service) notifyStatus(ctx context.Context, check *types.BackgroundCheck) {
	logger := s.checkLogger(check)

	volunteer, err := s.volunteers.Volunteer(ctx, check.VolunteerID)
	if err != nil {
		logger.WithError(err).Error("failed to load volunteer for notification")
		return
	}

	marker := s.event(types.CheckEventNotified, "status:"+string(check.Status))
	marker.Status = check.Status
	claimed, err := s.checks.ClaimEvent(ctx, check.ID, marker)
	if err != nil {
		logger.WithError(err).Error("failed to claim status notification")
		return
	}
	if !claimed {
		return
	}

	err = s.notifier.Dispatch(ctx, types.Notification{
		Recipient: volunteer.Contact(),
		Kind:      types.NotificationStatus,
		CheckID:   check.ID,
		CheckType: check.CheckType,
		Status:    check.Status,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to dispatch status notification")
		if err := s.checks.ReleaseEvent(context.WithoutCancel(ctx), marker); err != nil {
			logger.WithError(err).Error("failed to release status notification claim")
		}
		return
	}
	s.metrics.IncNotification(string(types.NotificationStatus))
}
