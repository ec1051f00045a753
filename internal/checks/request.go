package checks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vetting/internal/provider"
	"vetting/internal/utils"
	"vetting/pkg/types"

	"github.com/shopspring/decimal"
)

type Request struct {
	VolunteerID string          `json:"volunteerId"`
	CheckType   types.CheckType `json:"checkType"`
	ProviderID  string          `json:"providerId,omitempty"`

	// RenewalReminder defaults to true.
	RenewalReminder *bool `json:"renewalReminder,omitempty"`
}

// RequestCheck starts a background check for a volunteer. When the volunteer
// already has a non-terminal check of the same type, that check is returned
// and created is false.
func (s *Service) RequestCheck(ctx context.Context, req Request) (check *types.BackgroundCheck, created bool, err error) {
	if !req.CheckType.Valid() {
		return nil, false, fmt.Errorf("%w: unknown check type %q", types.ErrUnsupportedCheckType, req.CheckType)
	}

	volunteer, err := s.volunteers.Volunteer(ctx, req.VolunteerID)
	if err != nil {
		return nil, false, err
	}

	p, err := s.registry.Resolve(req.ProviderID, req.CheckType)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.checks.ActiveCheck(ctx, volunteer.ID, req.CheckType)
	switch {
	case err == nil:
		s.checkLogger(existing).Info("reusing active background check")
		return existing, false, nil
	case !errors.Is(err, types.ErrCheckNotFound):
		return nil, false, err
	}

	candidate := volunteer.Candidate()
	if p.Kind.IsIntegration() {
		if err := candidate.Validate(); err != nil {
			return nil, false, err
		}
	}

	check = &types.BackgroundCheck{
		VolunteerID:     volunteer.ID,
		ProviderID:      p.ID,
		CheckType:       req.CheckType,
		Status:          types.CheckStatusPending,
		Cost:            decimal.Zero,
		RenewalReminder: req.RenewalReminder == nil || *req.RenewalReminder,
		RequestedAt:     s.now(),
	}

	err = s.checks.CreateCheck(ctx, check, s.event(types.CheckEventCreated, "provider="+p.ID))
	if err != nil {
		if errors.Is(err, types.ErrActiveCheckExists) {
			// Lost a race with a concurrent request for the same check.
			existing, lookupErr := s.checks.ActiveCheck(ctx, volunteer.ID, req.CheckType)
			if lookupErr != nil {
				return nil, false, types.ErrDuplicateRequest
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.metrics.IncChecksRequested(p.ID, string(req.CheckType))
	s.checkLogger(check).Info("background check created")

	check, err = s.submit(ctx, check, p, candidate)
	if err != nil {
		return nil, false, err
	}

	return check, true, nil
}

func (s *Service) submit(ctx context.Context, check *types.BackgroundCheck, p *types.Provider, candidate types.CandidateProfile) (*types.BackgroundCheck, error) {
	adapter, err := s.registry.Adapter(p.ID)
	if err != nil {
		return nil, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	result, submitErr := adapter.Submit(submitCtx, provider.SubmitRequest{
		Candidate:   candidate,
		CheckType:   check.CheckType,
		CallbackURL: s.callbackURL(p),
		RequestedAt: check.RequestedAt,
	})
	s.metrics.ObserveProviderCall(p.ID, "submit", providerResult(submitErr), time.Since(start))

	if submitErr == nil {
		return s.applySubmit(ctx, check, p, result)
	}

	logger := s.checkLogger(check).WithError(submitErr)
	failed := s.event(types.CheckEventSubmitFailed, fmt.Sprintf("%s: %v", types.ProviderErrorReason(submitErr), submitErr))

	if !types.IsProviderCommunicationError(submitErr) {
		logger.Warn("provider refused background check")
		check.Status = types.CheckStatusRequiresReview
		if err := s.checks.UpdateCheck(ctx, check, types.CheckStatusPending, failed); err != nil {
			logger.WithError(err).Error("failed to record refused submission")
		}
		return nil, submitErr
	}

	logger.Warn("provider submission failed, applying fallback")
	reason := types.ProviderErrorReason(submitErr)
	s.metrics.IncFallback(p.ID, reason)

	if s.fallbackMode == types.FallbackModeReview {
		check.Status = types.CheckStatusRequiresReview
		err := s.checks.UpdateCheck(ctx, check, types.CheckStatusPending,
			failed,
			s.event(types.CheckEventFallback, fmt.Sprintf("review: provider=%s reason=%s", p.ID, reason)),
		)
		if err != nil {
			return nil, err
		}
		s.metrics.IncTransition(string(types.CheckStatusPending), string(check.Status), "fallback")
		return check, nil
	}

	simulated, err := s.registry.Simulation().Submit(ctx, provider.SubmitRequest{
		Candidate:   candidate,
		CheckType:   check.CheckType,
		RequestedAt: check.RequestedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("simulation fallback failed: %w", err)
	}

	check.ExternalID = utils.StringPtr(simulated.ExternalID)
	check.Status = simulated.Status
	check.Simulated = true
	err = s.checks.UpdateCheck(ctx, check, types.CheckStatusPending,
		failed,
		s.event(types.CheckEventFallback, fmt.Sprintf("simulation: provider=%s reason=%s external_id=%s", p.ID, reason, simulated.ExternalID)),
	)
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(types.CheckStatusPending), string(check.Status), "fallback")

	return check, nil
}

func (s *Service) applySubmit(ctx context.Context, check *types.BackgroundCheck, p *types.Provider, result *provider.SubmitResult) (*types.BackgroundCheck, error) {
	check.ExternalID = utils.StringPtr(result.ExternalID)
	if result.CandidateURL != "" {
		check.CandidateURL = utils.StringPtr(result.CandidateURL)
	}
	check.Cost = p.CostPerCheck
	check.Simulated = p.Kind == types.ProviderKindSimulation

	events := []*types.CheckEvent{
		s.event(types.CheckEventSubmitted, "external_id="+result.ExternalID),
	}

	if result.Status != types.CheckStatusPending && check.Status.CanTransitionTo(result.Status) {
		s.applyStatus(check, p, &provider.StatusResult{
			Status:      result.Status,
			Results:     result.Results,
			CompletedAt: result.CompletedAt,
		})
		events = append(events, s.event(types.CheckEventStatusChanged, transitionDetail(types.CheckStatusPending, check.Status)))
	}

	if err := s.checks.UpdateCheck(ctx, check, types.CheckStatusPending, events...); err != nil {
		return nil, err
	}

	s.checkLogger(check).WithField("external_id", result.ExternalID).Info("background check submitted")
	if check.Status != types.CheckStatusPending {
		s.metrics.IncTransition(string(types.CheckStatusPending), string(check.Status), "submit")
	}
	if check.Status.IsOutcome() {
		s.afterOutcome(ctx, check)
	}

	return check, nil
}

func transitionDetail(from, to types.CheckStatus) string {
	return fmt.Sprintf("%s -> %s", from, to)
}
