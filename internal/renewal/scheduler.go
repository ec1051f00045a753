package renewal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"vetting/internal/metrics"
	"vetting/internal/notify"
	"vetting/internal/runlock"
	"vetting/pkg/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const leaseName = "renewal"

// ReminderThresholds are the days-until-expiration on which an "expiring"
// notification goes out.
var ReminderThresholds = []int{30, 14, 7, 1}

type CheckStore interface {
	ChecksByStatus(ctx context.Context, statuses ...types.CheckStatus) ([]*types.BackgroundCheck, error)
	RenewalCandidates(ctx context.Context) ([]*types.BackgroundCheck, error)
	StaleChecks(ctx context.Context, requestedBefore time.Time) ([]*types.BackgroundCheck, error)
	UpdateCheck(ctx context.Context, check *types.BackgroundCheck, expected types.CheckStatus, events ...*types.CheckEvent) error
	UnnoticedExpirations(ctx context.Context) ([]*types.BackgroundCheck, error)
	ClaimEvent(ctx context.Context, checkID string, event *types.CheckEvent) (bool, error)
	ReleaseEvent(ctx context.Context, event *types.CheckEvent) error
}

type VolunteerStore interface {
	Volunteer(ctx context.Context, volunteerID string) (*types.Volunteer, error)
}

// Reconciler refreshes a single in-flight check from its provider.
type Reconciler interface {
	RefreshStatus(ctx context.Context, checkID string) (*types.BackgroundCheck, error)
}

// Locker hands out a lease so one run happens at a time across processes.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

type Options struct {
	Workers    int
	StaleAfter time.Duration
	LockTTL    time.Duration

	Locker  Locker
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Report struct {
	Processed     int  `json:"processed"`
	Notifications int  `json:"notifications"`
	Expired       int  `json:"expired"`
	Refreshed     int  `json:"refreshed"`
	Stale         int  `json:"stale"`
	Skipped       bool `json:"skipped"`
}

type Scheduler struct {
	logger     logrus.FieldLogger
	checks     CheckStore
	volunteers VolunteerStore
	reconciler Reconciler
	notifier   notify.Dispatcher

	locker     Locker
	metrics    *metrics.Metrics
	workers    int
	staleAfter time.Duration
	lockTTL    time.Duration
	now        func() time.Time
}

func NewScheduler(logger logrus.FieldLogger, checks CheckStore, volunteers VolunteerStore, reconciler Reconciler, notifier notify.Dispatcher, opts Options) *Scheduler {
	s := &Scheduler{
		logger:     logger,
		checks:     checks,
		volunteers: volunteers,
		reconciler: reconciler,
		notifier:   notifier,
		locker:     opts.Locker,
		metrics:    opts.Metrics,
		workers:    opts.Workers,
		staleAfter: opts.StaleAfter,
		lockTTL:    opts.LockTTL,
		now:        opts.Now,
	}

	if s.workers <= 0 {
		s.workers = 4
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 30 * time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Start runs the scheduler every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Error("renewal run failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Run performs one pass: refresh in-flight checks, flag stale ones, retry
// undelivered expiration notices, then expire approved checks and send
// renewal reminders.
func (s *Scheduler) Run(ctx context.Context) (*Report, error) {
	report := new(Report)
	start := time.Now()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, leaseName, s.lockTTL)
		if err != nil {
			if errors.Is(err, runlock.ErrLeaseHeld) {
				s.logger.Info("renewal run already in progress elsewhere, skipping")
				report.Skipped = true
				return report, nil
			}
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WithError(err).Warn("failed to release renewal lease")
			}
		}()
	}

	refreshed, err := s.refreshInFlight(ctx)
	if err != nil {
		return nil, err
	}
	report.Refreshed = refreshed

	if s.staleAfter > 0 {
		stale, err := s.flagStale(ctx)
		if err != nil {
			return nil, err
		}
		report.Stale = stale
	}

	if err := s.processRenewals(ctx, report); err != nil {
		return nil, err
	}

	s.metrics.ObserveRenewalRun(time.Since(start))
	s.logger.WithFields(logrus.Fields{
		"processed":     report.Processed,
		"notifications": report.Notifications,
		"expired":       report.Expired,
		"refreshed":     report.Refreshed,
		"stale":         report.Stale,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("renewal run complete")

	return report, nil
}

// refreshInFlight polls providers for every pending or in-progress check with
// a bounded number of concurrent calls. Each check is refreshed by exactly
// one worker.
func (s *Scheduler) refreshInFlight(ctx context.Context) (int, error) {
	inFlight, err := s.checks.ChecksByStatus(ctx, types.CheckStatusPending, types.CheckStatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("failed to load in-flight checks: %w", err)
	}

	var changed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, check := range inFlight {
		g.Go(func() error {
			updated, err := s.reconciler.RefreshStatus(gctx, check.ID)
			if err != nil {
				s.logger.WithError(err).WithField("check_id", check.ID).Warn("failed to refresh check")
				return nil
			}
			if updated.Status != check.Status {
				changed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	return int(changed.Load()), ctx.Err()
}

func (s *Scheduler) flagStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.checks.StaleChecks(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to load stale checks: %w", err)
	}

	flagged := 0
	for _, check := range stale {
		previous := check.Status
		check.Status = types.CheckStatusRequiresReview

		err := s.checks.UpdateCheck(ctx, check, previous, s.event(types.CheckEventStale,
			fmt.Sprintf("no provider outcome since %s", check.RequestedAt.UTC().Format(time.DateOnly))))
		if err != nil {
			if errors.Is(err, types.ErrStaleCheck) {
				continue
			}
			return flagged, err
		}

		flagged++
		s.metrics.IncTransition(string(previous), string(check.Status), "stale_sweep")
		s.logger.WithFields(logrus.Fields{
			"check_id":     check.ID,
			"provider_id":  check.ProviderID,
			"from_status":  previous,
			"requested_at": check.RequestedAt,
		}).Warn("flagged stale background check for review")
	}

	return flagged, nil
}

func (s *Scheduler) processRenewals(ctx context.Context, report *Report) error {
	if err := s.retryExpirationNotices(ctx, report); err != nil {
		return err
	}

	candidates, err := s.checks.RenewalCandidates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load renewal candidates: %w", err)
	}

	now := s.now()
	for _, check := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Processed++

		logger := s.logger.WithFields(logrus.Fields{
			"check_id":     check.ID,
			"volunteer_id": check.VolunteerID,
			"check_type":   check.CheckType,
		})

		if !check.ExpiresAt.After(now) {
			sent, err := s.expire(ctx, check)
			if err != nil {
				if errors.Is(err, types.ErrStaleCheck) {
					continue
				}
				logger.WithError(err).Error("failed to expire check")
				continue
			}
			report.Expired++
			if sent {
				report.Notifications++
			}
			continue
		}

		days, _ := check.DaysUntilExpiration(now)
		if !isThreshold(days) {
			continue
		}

		sent, err := s.remind(ctx, check, days)
		if err != nil {
			logger.WithError(err).WithField("days", days).Error("failed to send renewal reminder")
			continue
		}
		if sent {
			report.Notifications++
		}
	}

	return nil
}

// retryExpirationNotices delivers expiration notices that failed on an
// earlier run. It runs before this run expires anything new.
func (s *Scheduler) retryExpirationNotices(ctx context.Context, report *Report) error {
	expired, err := s.checks.UnnoticedExpirations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unnoticed expirations: %w", err)
	}

	for _, check := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}

		sent, err := s.send(ctx, check, types.NotificationExpired, 0, string(types.NotificationExpired))
		if err != nil {
			s.logger.WithError(err).WithField("check_id", check.ID).Warn("failed to send expiration notice")
			continue
		}
		if sent {
			report.Notifications++
		}
	}

	return nil
}

func (s *Scheduler) expire(ctx context.Context, check *types.BackgroundCheck) (bool, error) {
	check.Status = types.CheckStatusExpired
	err := s.checks.UpdateCheck(ctx, check, types.CheckStatusApproved,
		s.event(types.CheckEventExpired, "expired at "+check.ExpiresAt.UTC().Format(time.RFC3339)))
	if err != nil {
		return false, err
	}
	s.metrics.IncTransition(string(types.CheckStatusApproved), string(types.CheckStatusExpired), "renewal")

	// A failed notice is picked up again by retryExpirationNotices.
	sent, err := s.send(ctx, check, types.NotificationExpired, 0, string(types.NotificationExpired))
	if err != nil {
		s.logger.WithError(err).WithField("check_id", check.ID).Warn("failed to send expiration notice")
		return false, nil
	}

	return sent, nil
}

func (s *Scheduler) remind(ctx context.Context, check *types.BackgroundCheck, days int) (bool, error) {
	return s.send(ctx, check, types.NotificationExpiring, days, strconv.Itoa(days))
}

// send dispatches a notification at most once per check and marker detail.
// The marker is claimed before dispatch and released if dispatch fails.
func (s *Scheduler) send(ctx context.Context, check *types.BackgroundCheck, kind types.NotificationKind, days int, detail string) (bool, error) {
	volunteer, err := s.volunteers.Volunteer(ctx, check.VolunteerID)
	if err != nil {
		return false, err
	}

	markerKind := types.CheckEventReminderSent
	if kind == types.NotificationExpired {
		markerKind = types.CheckEventNotified
	}
	marker := s.event(markerKind, detail)
	marker.Status = check.Status

	claimed, err := s.checks.ClaimEvent(ctx, check.ID, marker)
	if err != nil || !claimed {
		return false, err
	}

	err = s.notifier.Dispatch(ctx, types.Notification{
		Recipient:           volunteer.Contact(),
		Kind:                kind,
		CheckID:             check.ID,
		CheckType:           check.CheckType,
		Status:              check.Status,
		DaysUntilExpiration: days,
	})
	if err != nil {
		if releaseErr := s.checks.ReleaseEvent(context.WithoutCancel(ctx), marker); releaseErr != nil {
			s.logger.WithError(releaseErr).WithField("check_id", check.ID).Error("failed to release notification claim")
		}
		return false, err
	}
	s.metrics.IncNotification(string(kind))

	return true, nil
}

func (s *Scheduler) event(kind types.CheckEventKind, detail string) *types.CheckEvent {
	return &types.CheckEvent{Kind: kind, Detail: detail, CreatedAt: s.now()}
}

func isThreshold(days int) bool {
	for _, t := range ReminderThresholds {
		if t == days {
			return true
		}
	}
	return false
}
