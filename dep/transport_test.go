package dep

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	brevo "github.com/getbrevo/brevo-go/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter/config"
)

func newTestTransport(baseURL string) MailTransport {
	return NewBrevoTransport(context.Background(), config.Brevo{
		APIKey:          "key",
		BaseURL:         baseURL,
		TimeoutSeconds:  2,
		MaxRetries:      2,
		RetryIntervalMs: 1,
	})
}

func testMail() *Mail {
	return &Mail{
		NewsletterID: 9,
		From:         &Sender{Email: "chapter@example.org", Name: "Chapter"},
		ReplyTo:      "reply@example.org",
		To:           "ann@example.org",
		Subject:      "hello",
		HtmlContent:  "<p>hi</p>",
	}
}

func TestBrevoTransport_Send(t *testing.T) {
	var got brevo.SendSmtpEmail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/smtp/email", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<1@brevo>"}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestTransport(srv.URL).Send(context.Background(), testMail()))

	require.Len(t, got.To, 1)
	assert.Equal(t, "ann@example.org", got.To[0].Email)
	assert.Equal(t, "chapter@example.org", got.Sender.Email)
	assert.Equal(t, "reply@example.org", got.ReplyTo.Email)
	assert.Equal(t, []string{"9"}, got.Tags)
}

func TestBrevoTransport_Classification(t *testing.T) {
	tests := []struct {
		name            string
		statuses        []int
		wantCalls       int32
		wantUnavailable bool
		wantRejected    bool
	}{
		{
			name:         "bad request is a recipient failure",
			statuses:     []int{http.StatusBadRequest},
			wantCalls:    1,
			wantRejected: true,
		},
		{
			name:      "server error is retried",
			statuses:  []int{http.StatusBadGateway, http.StatusCreated},
			wantCalls: 2,
		},
		{
			name:      "rate limit is retried",
			statuses:  []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK},
			wantCalls: 3,
		},
		{
			name:            "persistent server error is unavailable",
			statuses:        []int{http.StatusServiceUnavailable},
			wantCalls:       3,
			wantUnavailable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				status := tt.statuses[len(tt.statuses)-1]
				if int(n) <= len(tt.statuses) {
					status = tt.statuses[n-1]
				}
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"code":"invalid_parameter","message":"bad"}`))
			}))
			defer srv.Close()

			err := newTestTransport(srv.URL).Send(context.Background(), testMail())

			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
			assert.Equal(t, tt.wantUnavailable, err != nil && errors.Is(err, ErrTransportUnavailable))
			assert.Equal(t, tt.wantRejected, err != nil && errors.Is(err, ErrRecipientRejected))
			if !tt.wantUnavailable && !tt.wantRejected {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBrevoTransport_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newTestTransport(url).Send(context.Background(), testMail())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransportUnavailable))
}
