package handler

import (
	"bytes"
	"image/gif"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter/entity"
	"newsletter/pkg/goutil"
)

func TestTrackingHandler_Click(t *testing.T) {
	var (
		e  = newEnv(t)
		id = e.create(t)
		h  = NewTrackingHandler(e.recorder)
	)

	require.NoError(t, e.handler.SendNewsletter(e.ctx, &SendNewsletterRequest{
		NewsletterID: goutil.Uint64(id),
		Recipients:   []string{"a@example.org"},
	}, new(SendNewsletterResponse)))
	e.waitFor(t, id)

	a, err := e.analyticsRepo.GetByNewsletterID(e.ctx, id)
	require.NoError(t, err)

	click := func(token, target string) *httptest.ResponseRecorder {
		q := url.Values{}
		q.Set("token", token)
		q.Set("url", target)
		q.Set("link_type", "button")
		q.Set("link_id", "cta")

		r := httptest.NewRequest(http.MethodGet, "/t/click?"+q.Encode(), nil)
		r.Header.Set("User-Agent", "Mail/1.0")
		rec := httptest.NewRecorder()
		h.Click(rec, r)
		return rec
	}

	for i := 0; i < 2; i++ {
		rec := click(a.GetPixelToken(), "https://example.org/agenda#top")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://example.org/agenda#top", rec.Header().Get("Location"))
	}

	// unknown tokens still redirect
	rec := click("unknown", "https://example.org/agenda")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.org/agenda", rec.Header().Get("Location"))

	rec = click(a.GetPixelToken(), "javascript:alert(1)")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))

	res := new(GetNewsletterAnalyticsResponse)
	require.NoError(t, e.handler.GetNewsletterAnalytics(e.ctx, &GetNewsletterAnalyticsRequest{NewsletterID: goutil.Uint64(id)}, res))
	require.Len(t, res.Analytics.Links, 1)
	assert.Equal(t, "https://example.org/agenda", res.Analytics.Links[0].URL)
	assert.Equal(t, string(entity.LinkTypeButton), res.Analytics.Links[0].LinkType)
	assert.Equal(t, uint64(2), res.Analytics.Links[0].TotalClicks)
	assert.Equal(t, uint64(1), res.Analytics.Links[0].UniqueClicks)
}

func TestTrackingHandler_Open(t *testing.T) {
	var (
		e = newEnv(t)
		h = NewTrackingHandler(e.recorder)
	)

	for _, target := range []string{"/t/open?token=unknown", "/t/open"} {
		rec := httptest.NewRecorder()
		h.Open(rec, httptest.NewRequest(http.MethodGet, target, nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))

		img, err := gif.Decode(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 1, img.Bounds().Dx())
		assert.Equal(t, 1, img.Bounds().Dy())
	}
}

func TestTrackClickRequest_GetLinkType(t *testing.T) {
	assert.Equal(t, entity.LinkTypeUnsubscribe, (&TrackClickRequest{LinkType: "unsubscribe"}).GetLinkType())
	assert.Equal(t, entity.LinkTypeContent, (&TrackClickRequest{LinkType: "banner"}).GetLinkType())
	assert.Equal(t, entity.LinkTypeContent, (&TrackClickRequest{}).GetLinkType())
}
