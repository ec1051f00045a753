package renewal

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"vetting/internal/notify"
	"vetting/internal/runlock"
	"vetting/internal/store/memory"
	"vetting/internal/utils"
	"vetting/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	sent     []types.Notification
	attempts int
	failNext int
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n types.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.failNext > 0 {
		d.failNext--
		return errors.New("nats: connection closed")
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

// blockingDispatcher holds its first dispatch until release is closed.
type blockingDispatcher struct {
	recordingDispatcher
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDispatcher) Dispatch(ctx context.Context, n types.Notification) error {
	first := false
	d.once.Do(func() { first = true })
	if first {
		close(d.entered)
		<-d.release
	}
	return d.recordingDispatcher.Dispatch(ctx, n)
}

// stubReconciler reports every refreshed check as moved to next, without
// touching the store.
type stubReconciler struct {
	mu     sync.Mutex
	called []string
	next   types.CheckStatus
	err    error
}

func (r *stubReconciler) RefreshStatus(_ context.Context, checkID string) (*types.BackgroundCheck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.called = append(r.called, checkID)
	if r.err != nil {
		return nil, r.err
	}
	return &types.BackgroundCheck{ID: checkID, Status: r.next}, nil
}

type stubLocker struct {
	err      error
	acquired int
	released int
}

func (l *stubLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

type SchedulerSuite struct {
	suite.Suite

	ctx        context.Context
	now        time.Time
	store      *memory.Store
	dispatcher *recordingDispatcher
	reconciler *stubReconciler
	locker     *stubLocker
	staleAfter time.Duration
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.store = memory.New().WithClock(s.clock)
	s.dispatcher = &recordingDispatcher{}
	s.reconciler = &stubReconciler{next: types.CheckStatusInProgress}
	s.locker = &stubLocker{}
	s.staleAfter = 0

	s.Require().NoError(s.store.UpsertVolunteer(s.ctx, &types.Volunteer{
		ID:        "V1",
		Email:     "v1@example.org",
		FirstName: "Avery",
		LastName:  "Stone",
	}))
}

func (s *SchedulerSuite) clock() time.Time {
	return s.now
}

func (s *SchedulerSuite) scheduler() *Scheduler {
	return s.schedulerWith(s.dispatcher, s.locker)
}

func (s *SchedulerSuite) schedulerWith(dispatcher notify.Dispatcher, locker Locker) *Scheduler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewScheduler(logger, s.store, s.store, s.reconciler, dispatcher, Options{
		Workers:    2,
		StaleAfter: s.staleAfter,
		Locker:     locker,
		Now:        s.clock,
	})
}

func (s *SchedulerSuite) approved(checkType types.CheckType, expiresAt time.Time) *types.BackgroundCheck {
	check := &types.BackgroundCheck{
		VolunteerID:     "V1",
		ProviderID:      "checkr",
		CheckType:       checkType,
		Status:          types.CheckStatusApproved,
		RenewalReminder: true,
		RequestedAt:     expiresAt.Add(-731 * 24 * time.Hour),
		CompletedAt:     utils.TimePtr(expiresAt.Add(-730 * 24 * time.Hour)),
		ExpiresAt:       utils.TimePtr(expiresAt),
	}
	s.Require().NoError(s.store.CreateCheck(s.ctx, check))
	return check
}

func (s *SchedulerSuite) inFlight(checkType types.CheckType, requestedAt time.Time) *types.BackgroundCheck {
	check := &types.BackgroundCheck{
		VolunteerID: "V1",
		ProviderID:  "checkr",
		CheckType:   checkType,
		Status:      types.CheckStatusInProgress,
		ExternalID:  utils.StringPtr("rep_" + string(checkType)),
		RequestedAt: requestedAt,
	}
	s.Require().NoError(s.store.CreateCheck(s.ctx, check))
	return check
}

func (s *SchedulerSuite) TestReminderSentOncePerThreshold() {
	check := s.approved(types.CheckTypeBasic, s.now.Add(7*24*time.Hour))
	scheduler := s.scheduler()

	report, err := scheduler.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Processed)
	s.Equal(1, report.Notifications)

	report, err = scheduler.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Processed)
	s.Equal(0, report.Notifications)

	s.Require().Len(s.dispatcher.sent, 1)
	sent := s.dispatcher.sent[0]
	s.Equal(types.NotificationExpiring, sent.Kind)
	s.Equal(7, sent.DaysUntilExpiration)
	s.Equal(check.ID, sent.CheckID)
	s.Equal("v1@example.org", sent.Recipient.Email)

	events, err := s.store.Events(s.ctx, check.ID)
	s.Require().NoError(err)
	s.True(types.HasEvent(events, types.CheckEventReminderSent, "7"))
}

func (s *SchedulerSuite) TestRemindersFollowCalendarDays() {
	s.approved(types.CheckTypeBasic, s.now.Add(30*24*time.Hour))
	scheduler := s.scheduler()

	days := []int{}
	for i := 0; i < 30; i++ {
		_, err := scheduler.Run(s.ctx)
		s.Require().NoError(err)
		s.now = s.now.Add(24 * time.Hour)
	}
	for _, n := range s.dispatcher.sent {
		days = append(days, n.DaysUntilExpiration)
	}

	s.Equal([]int{30, 14, 7, 1}, days)
}

func (s *SchedulerSuite) TestOffThresholdDaysAreQuiet() {
	s.approved(types.CheckTypeBasic, s.now.Add(8*24*time.Hour))

	report, err := s.scheduler().Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Processed)
	s.Equal(0, report.Notifications)
	s.Empty(s.dispatcher.sent)
}

func (s *SchedulerSuite) TestExpiresApprovedChecks() {
	check := s.approved(types.CheckTypeChildProtection, s.now.Add(-time.Hour))
	scheduler := s.scheduler()

	report, err := scheduler.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Expired)
	s.Equal(1, report.Notifications)

	stored, err := s.store.Check(s.ctx, check.ID)
	s.Require().NoError(err)
	s.Equal(types.CheckStatusExpired, stored.Status)

	s.Require().Len(s.dispatcher.sent, 1)
	s.Equal(types.NotificationExpired, s.dispatcher.sent[0].Kind)
	s.Equal(types.CheckStatusExpired, s.dispatcher.sent[0].Status)

	report, err = scheduler.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Processed)
	s.Len(s.dispatcher.sent, 1)
}

func (s *SchedulerSuite) TestExpirationNoticeRetriedAfterFailedDispatch() {
	check := s.approved(types.CheckTypeChildProtection, s.now.Add(-time.Hour))
	s.dispatcher.failNext = 1
	scheduler := s.scheduler()

	report, err := scheduler.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Expired)
	s.Equal(0, report.Notifications)
	s.Equal(1, s.dispatcher.attempts)
	s.Empty(s.dispatcher.sent)

	events, err := s.store.Events(s.ctx, check.ID)
	s.Require().NoError(err)
	s.False(types.HasEvent(events, types.CheckEventNotified, string(types.NotificationExpired)))

	report, err = scheduler.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Expired)
	s.Equal(1, report.Notifications)
	s.Require().Len(s.dispatcher.sent, 1)
	s.Equal(types.NotificationExpired, s.dispatcher.sent[0].Kind)
	s.Equal(check.ID, s.dispatcher.sent[0].CheckID)

	report, err = scheduler.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Notifications)
	s.Len(s.dispatcher.sent, 1)
}

func (s *SchedulerSuite) TestFailedReminderIsRetriedOnNextRun() {
	check := s.approved(types.CheckTypeBasic, s.now.Add(7*24*time.Hour))
	s.dispatcher.failNext = 1
	scheduler := s.scheduler()

	report, err := scheduler.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Notifications)

	report, err = scheduler.Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Notifications)
	s.Equal(2, s.dispatcher.attempts)

	events, err := s.store.Events(s.ctx, check.ID)
	s.Require().NoError(err)
	markers := 0
	for _, e := range events {
		if e.Kind == types.CheckEventReminderSent {
			markers++
		}
	}
	s.Equal(1, markers)
}

func (s *SchedulerSuite) TestConcurrentRunsSendReminderOnce() {
	s.approved(types.CheckTypeBasic, s.now.Add(7*24*time.Hour))
	dispatcher := &blockingDispatcher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	first := make(chan *Report, 1)
	go func() {
		report, err := s.schedulerWith(dispatcher, nil).Run(s.ctx)
		s.NoError(err)
		first <- report
	}()
	<-dispatcher.entered

	second, err := s.schedulerWith(dispatcher, nil).Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, second.Notifications)

	close(dispatcher.release)
	s.Equal(1, (<-first).Notifications)
	s.Equal(1, dispatcher.count())
}

func (s *SchedulerSuite) TestExpiresExactlyAtExpiry() {
	check := s.approved(types.CheckTypeBasic, s.now)

	report, err := s.scheduler().Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Expired)

	stored, err := s.store.Check(s.ctx, check.ID)
	s.Require().NoError(err)
	s.Equal(types.CheckStatusExpired, stored.Status)
}

func (s *SchedulerSuite) TestSkipsChecksWithoutRenewalTracking() {
	check := &types.BackgroundCheck{
		VolunteerID: "V1",
		ProviderID:  "checkr",
		CheckType:   types.CheckTypeBasic,
		Status:      types.CheckStatusApproved,
		RequestedAt: s.now.Add(-800 * 24 * time.Hour),
		ExpiresAt:   utils.TimePtr(s.now.Add(-time.Hour)),
	}
	s.Require().NoError(s.store.CreateCheck(s.ctx, check))

	report, err := s.scheduler().Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Processed)

	stored, err := s.store.Check(s.ctx, check.ID)
	s.Require().NoError(err)
	s.Equal(types.CheckStatusApproved, stored.Status)
}

func (s *SchedulerSuite) TestRefreshesInFlightChecks() {
	basic := s.inFlight(types.CheckTypeBasic, s.now.Add(-time.Hour))
	financial := s.inFlight(types.CheckTypeFinancial, s.now.Add(-2*time.Hour))
	comprehensive := s.inFlight(types.CheckTypeComprehensive, s.now.Add(-3*time.Hour))
	s.reconciler.next = types.CheckStatusApproved

	report, err := s.scheduler().Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, report.Refreshed)
	s.ElementsMatch([]string{basic.ID, financial.ID, comprehensive.ID}, s.reconciler.called)
}

func (s *SchedulerSuite) TestRefreshErrorsDoNotStopRun() {
	s.inFlight(types.CheckTypeBasic, s.now.Add(-time.Hour))
	s.approved(types.CheckTypeFinancial, s.now.Add(-time.Hour))
	s.reconciler.err = errors.New("provider exploded")

	report, err := s.scheduler().Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Refreshed)
	s.Equal(1, report.Expired)
}

func (s *SchedulerSuite) TestFlagsStaleChecks() {
	s.staleAfter = 14 * 24 * time.Hour
	old := s.inFlight(types.CheckTypeBasic, s.now.Add(-20*24*time.Hour))
	recent := s.inFlight(types.CheckTypeFinancial, s.now.Add(-24*time.Hour))

	report, err := s.scheduler().Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Stale)

	stored, err := s.store.Check(s.ctx, old.ID)
	s.Require().NoError(err)
	s.Equal(types.CheckStatusRequiresReview, stored.Status)

	events, err := s.store.Events(s.ctx, old.ID)
	s.Require().NoError(err)
	s.True(types.HasEvent(events, types.CheckEventStale, "no provider outcome since 2026-05-12"))

	stored, err = s.store.Check(s.ctx, recent.ID)
	s.Require().NoError(err)
	s.Equal(types.CheckStatusInProgress, stored.Status)
}

func (s *SchedulerSuite) TestSkipsWhenLeaseHeld() {
	s.inFlight(types.CheckTypeBasic, s.now.Add(-time.Hour))
	s.approved(types.CheckTypeFinancial, s.now.Add(-time.Hour))
	s.locker.err = runlock.ErrLeaseHeld

	report, err := s.scheduler().Run(s.ctx)
	s.Require().NoError(err)
	s.True(report.Skipped)
	s.Equal(0, report.Processed)
	s.Empty(s.reconciler.called)
	s.Empty(s.dispatcher.sent)
}

func (s *SchedulerSuite) TestReleasesLease() {
	_, err := s.scheduler().Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, s.locker.acquired)
	s.Equal(1, s.locker.released)

	s.locker.err = errors.New("redis down")
	_, err = s.scheduler().Run(s.ctx)
	s.Error(err)
}
