package newsletter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsletter/dep"
	"newsletter/entity"
	"newsletter/pkg/goutil"
	"newsletter/pkg/mq"
	"newsletter/repo"
	"newsletter/repo/repotest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so every transition gets a later stamp.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakeTransport struct {
	mu          sync.Mutex
	failures    map[string]int
	unavailable bool
	delivered   []*dep.Mail
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failures: make(map[string]int)}
}

// failTimes makes the next n sends to each address fail; n < 0 fails forever.
func (f *fakeTransport) failTimes(n int, addrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range addrs {
		f.failures[a] = n
	}
}

func (f *fakeTransport) setUnavailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = v
}

func (f *fakeTransport) Send(_ context.Context, mail *dep.Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unavailable {
		return fmt.Errorf("%w: connection refused", dep.ErrTransportUnavailable)
	}

	if n := f.failures[mail.To]; n != 0 {
		if n > 0 {
			f.failures[mail.To] = n - 1
		}
		return fmt.Errorf("%w: mailbox full", dep.ErrRecipientRejected)
	}

	m := *mail
	f.delivered = append(f.delivered, &m)

	return nil
}

func (f *fakeTransport) Close(_ context.Context) error {
	return nil
}

func (f *fakeTransport) deliveredTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	to := make([]string, 0, len(f.delivered))
	for _, m := range f.delivered {
		to = append(to, m.To)
	}
	return to
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*mq.NewsletterEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *mq.NewsletterEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close(_ context.Context) error {
	return nil
}

func (p *recordingPublisher) types() []mq.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]mq.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	ctx            context.Context
	baseRepo       repo.BaseRepo
	newsletterRepo repo.NewsletterRepo
	analyticsRepo  repo.AnalyticsRepo
	subscriberRepo repo.SubscriberRepo
	clock          *fakeClock
	transport      *fakeTransport
	publisher      *recordingPublisher
	sm             *StateMachine
	sender         *Sender
	retry          *RetryOrchestrator
	recovery       *RecoveryOperator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	var (
		ctx      = context.Background()
		baseRepo = repotest.NewBaseRepo(t)
		f        = &fixture{
			ctx:            ctx,
			baseRepo:       baseRepo,
			newsletterRepo: repo.NewNewsletterRepo(ctx, baseRepo),
			analyticsRepo:  repo.NewAnalyticsRepo(ctx, baseRepo, repo.NewBaseCache(ctx, time.Minute)),
			subscriberRepo: repo.NewSubscriberRepo(ctx, baseRepo),
			clock:          &fakeClock{now: time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)},
			transport:      newFakeTransport(),
			publisher:      new(recordingPublisher),
		}
	)

	cfg.SenderEmail = "chapter@example.org"
	cfg.SenderName = "Chapter"

	var (
		driver   = NewDriver(f.transport, 4)
		renderer = dep.NewStoredRenderer("")
	)
	f.sm = f.newStateMachine()
	f.sender = NewSender(cfg, f.sm, driver, renderer, f.analyticsRepo, f.subscriberRepo, f.clock)
	f.retry = NewRetryOrchestrator(cfg, f.sm, driver, renderer, f.analyticsRepo)
	f.recovery = NewRecoveryOperator(f.sm)

	return f
}

// newStateMachine returns a state machine over the fixture's store with its
// own in-process locks, standing in for a second server process.
func (f *fixture) newStateMachine() *StateMachine {
	sm := NewStateMachine(f.newsletterRepo, f.publisher, f.clock)
	sm.maxRetries = 100
	sm.retryInterval = time.Millisecond
	return sm
}

func (f *fixture) createDraft(t *testing.T) uint64 {
	id, err := f.newsletterRepo.Create(f.ctx, &entity.Newsletter{
		Subject: goutil.String("Branch meeting"),
		Content: goutil.String("<p>See you there</p>"),
		Status:  entity.NewsletterStatusDraft,
		Settings: &entity.SendSettings{
			Preferences: &entity.SenderPreferences{
				SenderName:     goutil.String("Branch Secretary"),
				ReplyTo:        goutil.String("secretary@example.org"),
				TestRecipients: []string{"tester@example.org"},
			},
		},
		CreateTime: goutil.Uint64(1),
		UpdateTime: goutil.Uint64(1),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) get(t *testing.T, id uint64) *entity.Newsletter {
	n, err := f.newsletterRepo.GetByID(f.ctx, id)
	require.NoError(t, err)
	return n
}

func addrs(prefix string, n int) []string {
	res := make([]string, 0, n)
	for i := 0; i < n; i++ {
		res = append(res, fmt.Sprintf("%s%d@example.org", prefix, i))
	}
	return res
}
