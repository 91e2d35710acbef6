package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"newsletter/analytics"
	"newsletter/entity"
	"newsletter/newsletter"
	"newsletter/pkg/errutil"
	"newsletter/pkg/goutil"
	"newsletter/pkg/recipient"
	"newsletter/pkg/validator"
	"newsletter/repo"
)

var ErrEmptyRecipients = errors.New("no recipients given")

type NewsletterHandler interface {
	CreateNewsletter(ctx context.Context, req *CreateNewsletterRequest, res *CreateNewsletterResponse) error
	ValidateRecipients(ctx context.Context, req *ValidateRecipientsRequest, res *ValidateRecipientsResponse) error
	SendNewsletter(ctx context.Context, req *SendNewsletterRequest, res *SendNewsletterResponse) error
	RetryNewsletter(ctx context.Context, req *RetryNewsletterRequest, res *RetryNewsletterResponse) error
	RecoverNewsletter(ctx context.Context, req *RecoverNewsletterRequest, res *RecoverNewsletterResponse) error
	GetNewsletterStatus(ctx context.Context, req *GetNewsletterStatusRequest, res *GetNewsletterStatusResponse) error
	GetNewsletterAnalytics(ctx context.Context, req *GetNewsletterAnalyticsRequest, res *GetNewsletterAnalyticsResponse) error
}

type newsletterHandler struct {
	newsletterRepo repo.NewsletterRepo
	sender         *newsletter.Sender
	retry          *newsletter.RetryOrchestrator
	recovery       *newsletter.RecoveryOperator
	queue          *newsletter.Queue
	recorder       *analytics.Recorder
	clock          goutil.Clock
}

func NewNewsletterHandler(newsletterRepo repo.NewsletterRepo, sender *newsletter.Sender, retry *newsletter.RetryOrchestrator,
	recovery *newsletter.RecoveryOperator, queue *newsletter.Queue, recorder *analytics.Recorder, clock goutil.Clock) NewsletterHandler {
	return &newsletterHandler{
		newsletterRepo: newsletterRepo,
		sender:         sender,
		retry:          retry,
		recovery:       recovery,
		queue:          queue,
		recorder:       recorder,
		clock:          clock,
	}
}

var newsletterIDValidator = &validator.UInt64{
	Min: goutil.Uint64(1),
}

func emailValidator(optional bool) *validator.String {
	return &validator.String{
		Optional: optional,
		MaxLen:   254,
		Validators: []validator.StringFunc{
			func(s string) error {
				if !recipient.IsValid(s) {
					return validator.ErrBadFormat
				}
				return nil
			},
		},
	}
}

type CreateNewsletterRequest struct {
	Subject     *string                   `json:"subject,omitempty"`
	Content     *string                   `json:"content,omitempty"`
	Preferences *entity.SenderPreferences `json:"preferences,omitempty"`
}

type CreateNewsletterResponse struct {
	Newsletter *entity.Newsletter `json:"newsletter,omitempty"`
}

var CreateNewsletterValidator = validator.MustForm(map[string]validator.Validator{
	"subject": &validator.String{
		MinLen: 1,
		MaxLen: 255,
	},
	"content": &validator.String{
		MinLen: 1,
	},
	"preferences": validator.MustOptionalForm(map[string]validator.Validator{
		"sender_name": &validator.String{
			Optional: true,
			MaxLen:   100,
		},
		"sender_email": emailValidator(true),
		"reply_to":     emailValidator(true),
		"unsubscribe_link": &validator.String{
			Optional: true,
			MaxLen:   700,
		},
		"test_recipients": &validator.Slice{
			Optional:  true,
			MaxLen:    20,
			Validator: emailValidator(false),
		},
	}),
})

func (h *newsletterHandler) CreateNewsletter(ctx context.Context, req *CreateNewsletterRequest, res *CreateNewsletterResponse) error {
	if err := CreateNewsletterValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	now := goutil.Unix(h.clock.Now())
	n := &entity.Newsletter{
		Subject: req.Subject,
		Content: req.Content,
		Status:  entity.NewsletterStatusDraft,
		Settings: &entity.SendSettings{
			Preferences: req.Preferences,
		},
		CreateTime: goutil.Uint64(now),
		UpdateTime: goutil.Uint64(now),
	}

	if _, err := h.newsletterRepo.Create(ctx, n); err != nil {
		log.Ctx(ctx).Error().Msgf("create newsletter failed: %v", err)
		return err
	}

	res.Newsletter = n

	return nil
}

type ValidateRecipientsRequest struct {
	Recipients []string `json:"recipients,omitempty"`
}

type ValidateRecipientsResponse struct {
	*recipient.Result
}

var ValidateRecipientsValidator = validator.MustForm(map[string]validator.Validator{
	"recipients": &validator.Slice{
		MinLen: 1,
	},
})

func (h *newsletterHandler) ValidateRecipients(ctx context.Context, req *ValidateRecipientsRequest, res *ValidateRecipientsResponse) error {
	if err := ValidateRecipientsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	result, err := h.sender.ValidateRecipients(ctx, req.Recipients)
	if err != nil {
		return err
	}

	res.Result = result

	return nil
}

type SendNewsletterRequest struct {
	NewsletterID *uint64  `json:"newsletter_id,omitempty"`
	Recipients   []string `json:"recipients,omitempty"`
	// Test sends to the given or stored test recipients only.
	Test *bool `json:"test,omitempty"`
}

func (req *SendNewsletterRequest) GetNewsletterID() uint64 {
	if req != nil && req.NewsletterID != nil {
		return *req.NewsletterID
	}
	return 0
}

func (req *SendNewsletterRequest) IsTest() bool {
	return req != nil && req.Test != nil && *req.Test
}

type TestSendResult struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

type SendNewsletterResponse struct {
	Status *newsletter.Status `json:"status,omitempty"`
	Test   *TestSendResult    `json:"test,omitempty"`
	// Invalid lists the candidates dropped by validation.
	Invalid []string `json:"invalid,omitempty"`
}

var SendNewsletterValidator = validator.MustForm(map[string]validator.Validator{
	"newsletter_id": newsletterIDValidator,
	"recipients": &validator.Slice{
		Optional: true,
	},
	"test": &validator.Bool{
		Optional: true,
	},
})

// SendNewsletter begins the send and leaves the delivery to the dispatch
// queue. A full queue and state or recipient errors are returned before the
// newsletter leaves its current status.
func (h *newsletterHandler) SendNewsletter(ctx context.Context, req *SendNewsletterRequest, res *SendNewsletterResponse) error {
	if err := SendNewsletterValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	if req.IsTest() {
		outcome, err := h.sender.SendTest(ctx, req.GetNewsletterID(), req.Recipients)
		if err != nil {
			return err
		}
		res.Test = &TestSendResult{
			Succeeded: outcome.Succeeded,
			Failed:    outcome.Failed,
		}
		return nil
	}

	if len(req.Recipients) == 0 {
		return errutil.ValidationError(ErrEmptyRecipients)
	}

	slot, err := h.queue.Reserve()
	if err != nil {
		log.Ctx(ctx).Error().Msgf("queue send failed, newsletter_id: %d, err: %v", req.GetNewsletterID(), err)
		return err
	}

	job, err := h.sender.Start(ctx, req.GetNewsletterID(), req.Recipients)
	if err != nil {
		slot.Cancel()
		return err
	}
	res.Invalid = job.Recipients.InvalidEmails
	slot.Submit(job)

	status, err := h.recovery.Status(ctx, job.NewsletterID)
	if err != nil {
		return err
	}
	res.Status = status

	return nil
}

type RetryNewsletterRequest struct {
	NewsletterID *uint64 `json:"newsletter_id,omitempty"`
}

func (req *RetryNewsletterRequest) GetNewsletterID() uint64 {
	if req != nil && req.NewsletterID != nil {
		return *req.NewsletterID
	}
	return 0
}

type RetryNewsletterResponse struct {
	Status *newsletter.Status `json:"status,omitempty"`
}

var RetryNewsletterValidator = validator.MustForm(map[string]validator.Validator{
	"newsletter_id": newsletterIDValidator,
})

func (h *newsletterHandler) RetryNewsletter(ctx context.Context, req *RetryNewsletterRequest, res *RetryNewsletterResponse) error {
	if err := RetryNewsletterValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	slot, err := h.queue.Reserve()
	if err != nil {
		log.Ctx(ctx).Error().Msgf("queue retry failed, newsletter_id: %d, err: %v", req.GetNewsletterID(), err)
		return err
	}

	job, err := h.retry.Start(ctx, req.GetNewsletterID())
	if err != nil {
		slot.Cancel()
		return err
	}
	slot.Submit(job)

	status, err := h.recovery.Status(ctx, job.NewsletterID)
	if err != nil {
		return err
	}
	res.Status = status

	return nil
}

type RecoverNewsletterRequest struct {
	NewsletterID *uint64 `json:"newsletter_id,omitempty"`
	Action       *string `json:"action,omitempty"`
	Note         *string `json:"note,omitempty"`
}

func (req *RecoverNewsletterRequest) GetNewsletterID() uint64 {
	if req != nil && req.NewsletterID != nil {
		return *req.NewsletterID
	}
	return 0
}

func (req *RecoverNewsletterRequest) GetAction() entity.RecoveryAction {
	if req != nil && req.Action != nil {
		return entity.RecoveryAction(*req.Action)
	}
	return ""
}

func (req *RecoverNewsletterRequest) GetNote() string {
	if req != nil && req.Note != nil {
		return *req.Note
	}
	return ""
}

type RecoverNewsletterResponse struct {
	Status *newsletter.Status `json:"status,omitempty"`
}

var RecoverNewsletterValidator = validator.MustForm(map[string]validator.Validator{
	"newsletter_id": newsletterIDValidator,
	"action": &validator.String{
		MinLen: 1,
		MaxLen: 32,
	},
	"note": &validator.String{
		Optional: true,
		MaxLen:   500,
	},
})

func (h *newsletterHandler) RecoverNewsletter(ctx context.Context, req *RecoverNewsletterRequest, res *RecoverNewsletterResponse) error {
	if err := RecoverNewsletterValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	n, err := h.recovery.Recover(ctx, req.GetNewsletterID(), req.GetAction(), req.GetNote())
	if err != nil {
		return err
	}

	res.Status = newsletter.ToStatus(n)

	return nil
}

type GetNewsletterStatusRequest struct {
	NewsletterID *uint64 `json:"newsletter_id,omitempty" schema:"newsletter_id"`
}

func (req *GetNewsletterStatusRequest) GetNewsletterID() uint64 {
	if req != nil && req.NewsletterID != nil {
		return *req.NewsletterID
	}
	return 0
}

type GetNewsletterStatusResponse struct {
	Status *newsletter.Status `json:"status,omitempty"`
}

var GetNewsletterStatusValidator = validator.MustForm(map[string]validator.Validator{
	"newsletter_id": newsletterIDValidator,
})

func (h *newsletterHandler) GetNewsletterStatus(ctx context.Context, req *GetNewsletterStatusRequest, res *GetNewsletterStatusResponse) error {
	if err := GetNewsletterStatusValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	status, err := h.recovery.Status(ctx, req.GetNewsletterID())
	if err != nil {
		return err
	}

	res.Status = status

	return nil
}

type GetNewsletterAnalyticsRequest struct {
	NewsletterID *uint64 `json:"newsletter_id,omitempty" schema:"newsletter_id"`
}

func (req *GetNewsletterAnalyticsRequest) GetNewsletterID() uint64 {
	if req != nil && req.NewsletterID != nil {
		return *req.NewsletterID
	}
	return 0
}

type GetNewsletterAnalyticsResponse struct {
	Analytics *analytics.Summary `json:"analytics,omitempty"`
}

var GetNewsletterAnalyticsValidator = validator.MustForm(map[string]validator.Validator{
	"newsletter_id": newsletterIDValidator,
})

func (h *newsletterHandler) GetNewsletterAnalytics(ctx context.Context, req *GetNewsletterAnalyticsRequest, res *GetNewsletterAnalyticsResponse) error {
	if err := GetNewsletterAnalyticsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	summary, err := h.recorder.Summary(ctx, req.GetNewsletterID())
	if err != nil {
		return err
	}

	res.Analytics = summary

	return nil
}
