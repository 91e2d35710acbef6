package dep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	brevo "github.com/getbrevo/brevo-go/lib"
	"github.com/rs/zerolog/log"

	"newsletter/config"
	"newsletter/pkg/errutil"
)

var (
	ErrTransportUnavailable = errutil.ServiceUnavailableError(errors.New("mail transport unavailable"))
	ErrRecipientRejected    = errors.New("recipient rejected")
)

const scheduleDelay = 10 * time.Second

type brevoResp struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type Sender struct {
	Email string
	Name  string
}

type Mail struct {
	NewsletterID uint64
	From         *Sender
	ReplyTo      string
	To           string
	Subject      string
	HtmlContent  string
}

// MailTransport delivers one mail to one recipient. Errors matching
// ErrTransportUnavailable mean the provider could not be reached at all;
// any other error is a failure of that recipient only.
type MailTransport interface {
	Send(ctx context.Context, mail *Mail) error
	Close(ctx context.Context) error
}

type brevoTransport struct {
	apiKey        string
	sendEmailUrl  string
	client        *http.Client
	maxRetries    uint64
	retryInterval time.Duration
}

func NewBrevoTransport(_ context.Context, cfg config.Brevo) MailTransport {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	retryInterval := time.Duration(cfg.RetryIntervalMs) * time.Millisecond
	if retryInterval <= 0 {
		retryInterval = 500 * time.Millisecond
	}

	return &brevoTransport{
		apiKey:        cfg.APIKey,
		sendEmailUrl:  strings.TrimSuffix(cfg.BaseURL, "/") + "/smtp/email",
		client:        &http.Client{Timeout: timeout},
		maxRetries:    cfg.MaxRetries,
		retryInterval: retryInterval,
	}
}

func (t *brevoTransport) Send(ctx context.Context, mail *Mail) error {
	body := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  mail.From.Name,
			Email: mail.From.Email,
		},
		To:          []brevo.SendSmtpEmailTo{{Email: mail.To}},
		Subject:     mail.Subject,
		HtmlContent: mail.HtmlContent,
		Tags:        []string{fmt.Sprint(mail.NewsletterID)},
		ScheduledAt: time.Now().Add(scheduleDelay).Format(time.RFC3339Nano),
	}
	if mail.ReplyTo != "" {
		body.ReplyTo = &brevo.SendSmtpEmailReplyTo{
			Email: mail.ReplyTo,
		}
	}

	js, err := json.Marshal(body)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retryInterval
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		return t.postHttpRequest(ctx, js)
	}, backoff.WithContext(backoff.WithMaxRetries(b, t.maxRetries), ctx))
}

func (t *brevoTransport) Close(_ context.Context) error {
	t.client.CloseIdleConnections()
	return nil
}

// postHttpRequest returns a retryable error for connection failures, 429
// and 5xx, and a permanent one for any other rejection.
func (t *brevoTransport) postHttpRequest(ctx context.Context, js []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.sendEmailUrl, bytes.NewReader(js))
	if err != nil {
		return backoff.Permanent(err)
	}

	req.Header.Add("accept", "application/json")
	req.Header.Add("content-type", "application/json")
	req.Header.Add("api-key", t.apiKey)

	res, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrTransportUnavailable, ctx.Err()))
		}
		log.Ctx(ctx).Warn().Msgf("brevo request failed, err: %v", err)
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	b, _ := io.ReadAll(res.Body)

	brevoResp := new(brevoResp)
	_ = json.Unmarshal(b, brevoResp)

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
		log.Ctx(ctx).Warn().Msgf("brevo unavailable, status: %d, message: %s", res.StatusCode, brevoResp.Message)
		return fmt.Errorf("%w: status %d", ErrTransportUnavailable, res.StatusCode)
	}

	return backoff.Permanent(fmt.Errorf("%w: %s, code: %s, status: %d",
		ErrRecipientRejected, brevoResp.Message, brevoResp.Code, res.StatusCode))
}
