package notification_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"courier/internal/common"
	"courier/internal/domain/notification"

	"github.com/stretchr/testify/mock"
)

// fakeProvider is a scripted provider. results[i] decides the outcome of the
// i-th call; the last entry repeats.
type fakeProvider struct {
	name      string
	channel   notification.Channel
	reachable func(notification.Recipient) bool
	results   []bool
	panicMsg  string
	delay     time.Duration
	gauge     *gauge

	mu    sync.Mutex
	calls int
	seen  []notification.RenderedMessage
}

func newFake(name string, results ...bool) *fakeProvider {
	return &fakeProvider{
		name:      name,
		channel:   notification.ChannelEmail,
		reachable: func(notification.Recipient) bool { return true },
		results:   results,
	}
}

func (f *fakeProvider) Name() string                  { return f.name }
func (f *fakeProvider) Channel() notification.Channel { return f.channel }

func (f *fakeProvider) Reachable(r notification.Recipient) bool {
	return f.reachable(r)
}

func (f *fakeProvider) Send(ctx context.Context, r notification.Recipient, msg notification.RenderedMessage) notification.Outcome {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.seen = append(f.seen, msg)
	f.mu.Unlock()

	if f.gauge != nil {
		f.gauge.enter()
		defer f.gauge.exit()
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return notification.Failed(f.channel, "cancelled", ctx.Err().Error())
		}
	}

	ok := true
	if len(f.results) > 0 {
		ok = f.results[min(idx, len(f.results)-1)]
	}
	if ok {
		return notification.Succeeded(f.channel, "sent by "+f.name, nil)
	}
	return notification.Failed(f.channel, "failed", f.name+" unavailable")
}

func (f *fakeProvider) Validate(context.Context) error { return nil }

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// gauge tracks how many calls are in flight at once.
type gauge struct {
	cur  atomic.Int32
	peak atomic.Int32
}

func (g *gauge) enter() {
	n := g.cur.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *gauge) exit() { g.cur.Add(-1) }

// mockProvider is a testify mock of notification.Provider.
type mockProvider struct {
	mock.Mock
}

func newMockProvider(name string, ch notification.Channel) *mockProvider {
	m := &mockProvider{}
	m.On("Name").Return(name).Maybe()
	m.On("Channel").Return(ch).Maybe()
	return m
}

func (m *mockProvider) Name() string { return m.Called().String(0) }

func (m *mockProvider) Channel() notification.Channel {
	return m.Called().Get(0).(notification.Channel)
}

func (m *mockProvider) Reachable(r notification.Recipient) bool {
	return m.Called(r).Bool(0)
}

func (m *mockProvider) Send(ctx context.Context, r notification.Recipient, msg notification.RenderedMessage) notification.Outcome {
	return m.Called(ctx, r, msg).Get(0).(notification.Outcome)
}

func (m *mockProvider) Validate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// memDirectory is an in-memory RecipientDirectory.
type memDirectory map[string]notification.Recipient

func (d memDirectory) Lookup(_ context.Context, ids []string) ([]notification.Recipient, error) {
	out := make([]notification.Recipient, 0, len(ids))
	for _, id := range ids {
		r, ok := d[id]
		if !ok {
			return nil, common.NewNotFoundError("recipient", id)
		}
		out = append(out, r)
	}
	return out, nil
}

// memEnqueuer records enqueued deliveries. It fails while failNext > 0.
type memEnqueuer struct {
	mu       sync.Mutex
	tasks    map[string]*notification.BulkSendRequest
	failNext int
}

func newMemEnqueuer() *memEnqueuer {
	return &memEnqueuer{tasks: make(map[string]*notification.BulkSendRequest)}
}

func (e *memEnqueuer) EnqueueDelivery(taskID string, req *notification.BulkSendRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failNext > 0 {
		e.failNext--
		return errors.New("redis unavailable")
	}
	e.tasks[taskID] = req
	return nil
}

func (e *memEnqueuer) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// memGuard is an in-memory IdempotencyGuard.
type memGuard struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemGuard() *memGuard {
	return &memGuard{keys: make(map[string]string)}
}

func (g *memGuard) Reserve(_ context.Context, key, taskID string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.keys[key]; ok {
		return existing, false, nil
	}
	g.keys[key] = taskID
	return taskID, true, nil
}

func (g *memGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

func fastPolicy(strategy notification.Strategy, retries int) notification.Policy {
	return notification.Policy{
		Strategy:             strategy,
		MaxRetriesPerChannel: retries,
		RetryDelay:           time.Millisecond,
	}
}
