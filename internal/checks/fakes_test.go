package checks

import (
	"context"
	"sync"
	"time"

	"vetting/internal/provider"
	"vetting/pkg/types"
)

type fakeAdapter struct {
	kind types.ProviderKind

	submitResult *provider.SubmitResult
	submitErr    error
	statusResult *provider.StatusResult
	statusErr    error
	webhook      func(payload []byte) (*provider.WebhookUpdate, error)

	submits  int
	statuses int
}

func (f *fakeAdapter) Kind() types.ProviderKind { return f.kind }

func (f *fakeAdapter) Submit(context.Context, provider.SubmitRequest) (*provider.SubmitResult, error) {
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResult, nil
}

func (f *fakeAdapter) CheckStatus(context.Context, provider.StatusRequest) (*provider.StatusResult, error) {
	f.statuses++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusResult, nil
}

func (f *fakeAdapter) ParseWebhook(payload []byte) (*provider.WebhookUpdate, error) {
	return f.webhook(payload)
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []types.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n types.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
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

func newBlockingDispatcher() *blockingDispatcher {
	return &blockingDispatcher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
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

type fakeArchive struct {
	keys []string
}

func (a *fakeArchive) Archive(_ context.Context, check *types.BackgroundCheck) (string, error) {
	key := "reports/" + check.ID + ".json"
	a.keys = append(a.keys, key)
	return key, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
