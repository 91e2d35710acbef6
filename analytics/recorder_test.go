package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"newsletter/entity"
	"newsletter/pkg/goutil"
	"newsletter/repo"
	"newsletter/repo/repotest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var (
	alice = &Fingerprint{UserAgent: "Thunderbird", AcceptLanguage: "en", AcceptEncoding: "gzip", IP: "192.0.2.1"}
	bob   = &Fingerprint{UserAgent: "Outlook", AcceptLanguage: "de", AcceptEncoding: "gzip", IP: "192.0.2.2"}
)

func newRecorder(t *testing.T) (*Recorder, repo.AnalyticsRepo) {
	ctx := context.Background()

	analyticsRepo := repo.NewAnalyticsRepo(ctx, repotest.NewBaseRepo(t), repo.NewBaseCache(ctx, time.Minute))
	_, err := analyticsRepo.Create(ctx, &entity.Analytics{
		NewsletterID:    goutil.Uint64(42),
		PixelToken:      goutil.String("pixel"),
		TotalRecipients: goutil.Uint64(10),
		CreateTime:      goutil.Uint64(1),
		UpdateTime:      goutil.Uint64(1),
	})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)}

	return NewRecorder(analyticsRepo, "fingerprint-secret", clock), analyticsRepo
}

func TestRecorder_RecordClick(t *testing.T) {
	var (
		ctx         = context.Background()
		recorder, _ = newRecorder(t)
	)

	recorder.RecordClick(ctx, "pixel", "https://example.org/agenda", entity.LinkTypeButton, "cta", alice)
	recorder.RecordClick(ctx, "pixel", "https://EXAMPLE.org/agenda/#minutes", entity.LinkTypeButton, "cta", alice)
	recorder.RecordClick(ctx, "pixel", "https://example.org/agenda", entity.LinkTypeButton, "cta", bob)
	recorder.RecordClick(ctx, "pixel", "https://example.org/join", entity.LinkTypeContent, "", alice)

	s, err := recorder.Summary(ctx, 42)
	require.NoError(t, err)

	require.Len(t, s.Links, 2)
	agenda := s.Links[0]
	assert.Equal(t, "https://example.org/agenda", agenda.URL)
	assert.Equal(t, "button", agenda.LinkType)
	assert.Equal(t, "cta", agenda.LinkID)
	assert.Equal(t, uint64(3), agenda.TotalClicks)
	assert.Equal(t, uint64(2), agenda.UniqueClicks)
	assert.Less(t, agenda.FirstClick, agenda.LastClick)

	join := s.Links[1]
	assert.Equal(t, "https://example.org/join", join.URL)
	assert.Equal(t, uint64(1), join.TotalClicks)
	assert.Equal(t, uint64(1), join.UniqueClicks)

	assert.Equal(t, uint64(4), s.TotalClicks)
	assert.Equal(t, uint64(3), s.UniqueClicks)
	assert.InDelta(t, 0.3, s.ClickRate, 1e-9)
}

func TestRecorder_UnknownTokenIsIgnored(t *testing.T) {
	var (
		ctx         = context.Background()
		recorder, _ = newRecorder(t)
	)

	recorder.RecordClick(ctx, "nope", "https://example.org/a", entity.LinkTypeContent, "", alice)
	recorder.RecordClick(ctx, "", "https://example.org/a", entity.LinkTypeContent, "", alice)
	recorder.RecordClick(ctx, "pixel", "javascript:alert(1)", entity.LinkTypeContent, "", alice)
	recorder.RecordOpen(ctx, "nope", alice)

	s, err := recorder.Summary(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, s.Links)
	assert.Equal(t, uint64(0), s.TotalOpens)
}

func TestRecorder_EmptyFingerprintAlwaysUnique(t *testing.T) {
	var (
		ctx         = context.Background()
		recorder, _ = newRecorder(t)
	)

	for i := 0; i < 3; i++ {
		recorder.RecordClick(ctx, "pixel", "https://example.org/a", entity.LinkTypeContent, "", &Fingerprint{})
		recorder.RecordOpen(ctx, "pixel", nil)
	}

	s, err := recorder.Summary(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Links[0].UniqueClicks)
	assert.Equal(t, uint64(3), s.UniqueOpens)
}

func TestRecorder_RecordOpen(t *testing.T) {
	ctx := context.Background()
	recorder, analyticsRepo := newRecorder(t)

	recorder.RecordOpen(ctx, "pixel", alice)
	recorder.RecordOpen(ctx, "pixel", alice)
	recorder.RecordOpen(ctx, "pixel", bob)

	a, err := analyticsRepo.GetByNewsletterID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), a.GetTotalOpens())
	assert.Equal(t, uint64(2), a.GetUniqueOpens())
	require.NotNil(t, a.FirstOpen)
	require.NotNil(t, a.LastOpen)
	assert.Less(t, *a.FirstOpen, *a.LastOpen)

	s, err := recorder.Summary(ctx, 42)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, s.OpenRate, 1e-9)
	assert.Equal(t, *a.FirstOpen, s.FirstOpen)
}

func TestRecorder_ConcurrentClicksCountOnce(t *testing.T) {
	var (
		ctx         = context.Background()
		recorder, _ = newRecorder(t)
		g           = new(errgroup.Group)
	)

	for i := 0; i < 20; i++ {
		g.Go(func() error {
			recorder.RecordClick(ctx, "pixel", "https://example.org/a", entity.LinkTypeContent, "", alice)
			recorder.RecordOpen(ctx, "pixel", bob)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	s, err := recorder.Summary(ctx, 42)
	require.NoError(t, err)
	require.Len(t, s.Links, 1)
	assert.Equal(t, uint64(20), s.Links[0].TotalClicks)
	assert.Equal(t, uint64(1), s.Links[0].UniqueClicks)
	assert.Equal(t, uint64(20), s.TotalOpens)
	assert.Equal(t, uint64(1), s.UniqueOpens)
}

func TestRecorder_SummaryNotFound(t *testing.T) {
	recorder, _ := newRecorder(t)

	_, err := recorder.Summary(context.Background(), 7)
	assert.ErrorIs(t, err, repo.ErrAnalyticsNotFound)
}
