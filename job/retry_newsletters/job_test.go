package retry_newsletters

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter/dep"
	"newsletter/entity"
	"newsletter/newsletter"
	"newsletter/pkg/goutil"
	"newsletter/repo"
	"newsletter/repo/repotest"
)

// flakyTransport rejects each listed address once.
type flakyTransport struct {
	mu     sync.Mutex
	reject map[string]bool
}

func (f *flakyTransport) Send(_ context.Context, mail *dep.Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject[mail.To] {
		delete(f.reject, mail.To)
		return fmt.Errorf("%w: greylisted", dep.ErrRecipientRejected)
	}
	return nil
}

func (f *flakyTransport) Close(_ context.Context) error {
	return nil
}

func TestRetryNewsletters_Run(t *testing.T) {
	var (
		ctx            = context.Background()
		baseRepo       = repotest.NewBaseRepo(t)
		newsletterRepo = repo.NewNewsletterRepo(ctx, baseRepo)
		analyticsRepo  = repo.NewAnalyticsRepo(ctx, baseRepo, repo.NewBaseCache(ctx, time.Minute))
		clock          = goutil.NewSystemClock()
		transport      = &flakyTransport{reject: make(map[string]bool)}
		cfg            = newsletter.Config{ChunkSize: 10, RetryChunkSize: 10, SenderEmail: "news@example.org"}
		sm             = newsletter.NewStateMachine(newsletterRepo, dep.NewNoopPublisher(), clock)
		driver         = newsletter.NewDriver(transport, 2)
		renderer       = dep.NewStoredRenderer("")
		sender         = newsletter.NewSender(cfg, sm, driver, renderer, analyticsRepo, repo.NewSubscriberRepo(ctx, baseRepo), clock)
		retry          = newsletter.NewRetryOrchestrator(cfg, sm, driver, renderer, analyticsRepo)
	)

	send := func(rejected ...string) uint64 {
		id, err := newsletterRepo.Create(ctx, &entity.Newsletter{
			Subject:    goutil.String("Weekly digest"),
			Content:    goutil.String("<p>digest</p>"),
			Status:     entity.NewsletterStatusDraft,
			CreateTime: goutil.Uint64(1),
			UpdateTime: goutil.Uint64(1),
		})
		require.NoError(t, err)

		for _, r := range rejected {
			transport.reject[r] = true
		}
		n, err := sender.Send(ctx, id, []string{"a@example.org", "b@example.org", "c@example.org"})
		require.NoError(t, err)

		if len(rejected) > 0 {
			require.Equal(t, entity.NewsletterStatusPartiallyFailed, n.GetStatus())
		}
		return id
	}

	var (
		pending   = send("b@example.org")
		delivered = send()
	)

	require.NoError(t, New(newsletterRepo, retry, 3, 2).Run(ctx))

	n, err := newsletterRepo.GetByID(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, entity.NewsletterStatusSent, n.GetStatus())
	assert.Equal(t, 1, n.GetSettings().GetCurrentRetryStage())
	assert.Empty(t, n.GetSettings().GetFailedEmails())

	n, err = newsletterRepo.GetByID(ctx, delivered)
	require.NoError(t, err)
	assert.Equal(t, entity.NewsletterStatusSent, n.GetStatus())
	assert.Equal(t, 0, n.GetSettings().GetCurrentRetryStage())
}

func TestRetryNewsletters_StageLimit(t *testing.T) {
	var (
		ctx            = context.Background()
		baseRepo       = repotest.NewBaseRepo(t)
		newsletterRepo = repo.NewNewsletterRepo(ctx, baseRepo)
		analyticsRepo  = repo.NewAnalyticsRepo(ctx, baseRepo, repo.NewBaseCache(ctx, time.Minute))
		clock          = goutil.NewSystemClock()
		transport      = &flakyTransport{reject: make(map[string]bool)}
		cfg            = newsletter.Config{ChunkSize: 10, RetryChunkSize: 10}
		sm             = newsletter.NewStateMachine(newsletterRepo, dep.NewNoopPublisher(), clock)
		driver         = newsletter.NewDriver(transport, 1)
		renderer       = dep.NewStoredRenderer("")
		sender         = newsletter.NewSender(cfg, sm, driver, renderer, analyticsRepo, repo.NewSubscriberRepo(ctx, baseRepo), clock)
		retry          = newsletter.NewRetryOrchestrator(cfg, sm, driver, renderer, analyticsRepo)
	)

	id, err := newsletterRepo.Create(ctx, &entity.Newsletter{
		Subject:    goutil.String("Weekly digest"),
		Content:    goutil.String("<p>digest</p>"),
		Status:     entity.NewsletterStatusDraft,
		CreateTime: goutil.Uint64(1),
		UpdateTime: goutil.Uint64(1),
	})
	require.NoError(t, err)

	transport.reject["a@example.org"] = true
	_, err = sender.Send(ctx, id, []string{"a@example.org", "b@example.org"})
	require.NoError(t, err)

	require.NoError(t, New(newsletterRepo, retry, 0, 1).Run(ctx))

	n, err := newsletterRepo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.NewsletterStatusPartiallyFailed, n.GetStatus())
	assert.Equal(t, []string{"a@example.org"}, n.GetSettings().GetFailedEmails())
}
