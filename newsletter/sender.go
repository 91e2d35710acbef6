package newsletter

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"newsletter/dep"
	"newsletter/entity"
	"newsletter/pkg/goutil"
	"newsletter/pkg/recipient"
	"newsletter/repo"
)

const testSubjectPrefix = "[TEST] "

type Config struct {
	ChunkSize      int
	RetryChunkSize int
	SenderName     string
	SenderEmail    string
}

// Sender runs sends: validate, plan, begin, deliver chunk by chunk, finalize.
type Sender struct {
	cfg            Config
	sm             *StateMachine
	driver         *Driver
	renderer       dep.Renderer
	analyticsRepo  repo.AnalyticsRepo
	subscriberRepo repo.SubscriberRepo
	clock          goutil.Clock
}

func NewSender(cfg Config, sm *StateMachine, driver *Driver, renderer dep.Renderer,
	analyticsRepo repo.AnalyticsRepo, subscriberRepo repo.SubscriberRepo, clock goutil.Clock) *Sender {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = recipient.DefaultChunkSize
	}
	return &Sender{
		cfg:            cfg,
		sm:             sm,
		driver:         driver,
		renderer:       renderer,
		analyticsRepo:  analyticsRepo,
		subscriberRepo: subscriberRepo,
		clock:          clock,
	}
}

// ValidateRecipients checks candidates and tags them against stored subscribers.
func (s *Sender) ValidateRecipients(ctx context.Context, candidates []string) (*recipient.Result, error) {
	tokens := make([]string, 0, len(candidates))
	for _, c := range candidates {
		tokens = append(tokens, recipient.Split(c)...)
	}

	known, err := s.subscriberRepo.GetKnown(ctx, tokens)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get known subscribers failed, err: %v", err)
		return nil, err
	}

	return recipient.Validate(candidates, known), nil
}

// Send begins a send and delivers every chunk before returning.
func (s *Sender) Send(ctx context.Context, id uint64, candidates []string) (*entity.Newsletter, error) {
	job, err := s.Start(ctx, id, candidates)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, job)
}

// Start moves the newsletter to sending and returns the job delivering it.
// Configuration and state errors surface here, before any mail is sent.
func (s *Sender) Start(ctx context.Context, id uint64, candidates []string) (_ *Job, err error) {
	release, err := s.sm.AcquireSendLease(id)
	if err != nil {
		return nil, err
	}

	job := newJob(id, release)
	defer func() {
		if err != nil {
			job.Release()
		}
	}()

	n, err := s.sm.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := n.CanBeginSend(); err != nil {
		return nil, err
	}

	res, err := s.ValidateRecipients(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if res.Valid == 0 {
		return nil, fmt.Errorf("%w: %d candidates, %d invalid", entity.ErrNoRecipients, res.Valid+res.Invalid, res.Invalid)
	}

	chunks, err := recipient.Plan(res.Emails(), s.cfg.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidConfiguration, err)
	}

	analytics, err := s.ensureAnalytics(ctx, id)
	if err != nil {
		return nil, err
	}

	mail, err := s.buildMail(ctx, n, analytics.GetPixelToken())
	if err != nil {
		return nil, err
	}

	if _, err = s.sm.BeginSend(ctx, id, &entity.SendPlan{
		RecipientCount: res.Valid,
		ChunkSize:      s.cfg.ChunkSize,
		TotalChunks:    len(chunks),
	}); err != nil {
		return nil, err
	}

	now := goutil.Unix(s.clock.Now())
	if err := s.analyticsRepo.UpdateTotalRecipients(ctx, analytics.GetID(), uint64(res.Valid), now); err != nil {
		log.Ctx(ctx).Error().Msgf("update analytics recipients failed, newsletter_id: %d, err: %v", id, err)
	}
	if err := s.subscriberRepo.CreateMany(ctx, res.NewEmails(), now); err != nil {
		log.Ctx(ctx).Error().Msgf("save new subscribers failed, newsletter_id: %d, err: %v", id, err)
	}

	log.Ctx(ctx).Info().Msgf("send started, newsletter_id: %d, recipients: %d, chunks: %d, invalid: %d",
		id, res.Valid, len(chunks), res.Invalid)

	job.Chunks = chunks
	job.Mail = mail
	job.Recipients = res

	return job, nil
}

// Run delivers the chunks of a started send in order and finalizes it. It
// stops before the next chunk when ctx is done or the transport is
// unreachable, leaving the newsletter sending with that chunk unrecorded.
func (s *Sender) Run(ctx context.Context, job *Job) (*entity.Newsletter, error) {
	defer job.Release()

	for i, chunk := range job.Chunks {
		if err := ctx.Err(); err != nil {
			log.Ctx(ctx).Warn().Msgf("send interrupted, newsletter_id: %d, next chunk: %d, err: %v", job.NewsletterID, i, err)
			return nil, err
		}

		outcome, err := s.driver.Dispatch(ctx, chunk, job.Mail)
		if err != nil {
			log.Ctx(ctx).Error().Msgf("dispatch chunk failed, newsletter_id: %d, chunk: %d, err: %v", job.NewsletterID, i, err)
			return nil, err
		}

		if _, err := s.sm.RecordChunkResult(ctx, job.NewsletterID, i, outcome.Succeeded, outcome.Failed); err != nil {
			log.Ctx(ctx).Error().Msgf("record chunk failed, newsletter_id: %d, chunk: %d, err: %v", job.NewsletterID, i, err)
			return nil, err
		}
	}

	n, err := s.sm.FinalizeSend(ctx, job.NewsletterID)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("finalize send failed, newsletter_id: %d, err: %v", job.NewsletterID, err)
		return nil, err
	}

	log.Ctx(ctx).Info().Msgf("send finished, newsletter_id: %d, status: %s, sent: %d, failed: %d",
		n.GetID(), n.GetStatus(), n.GetSettings().TotalSent, n.GetSettings().TotalFailed)

	return n, nil
}

// SendTest delivers the newsletter to test recipients only. The newsletter
// state and analytics are left untouched.
func (s *Sender) SendTest(ctx context.Context, id uint64, candidates []string) (*Outcome, error) {
	n, err := s.sm.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		candidates = n.GetSettings().GetPreferences().GetTestRecipients()
	}

	res := recipient.Validate(candidates, nil)
	if res.Valid == 0 {
		return nil, fmt.Errorf("%w: no valid test recipients", entity.ErrNoRecipients)
	}

	mail, err := s.buildMail(ctx, n, "")
	if err != nil {
		return nil, err
	}
	mail.Subject = testSubjectPrefix + mail.Subject

	chunks, err := recipient.Plan(res.Emails(), s.cfg.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidConfiguration, err)
	}

	outcome := &Outcome{
		Succeeded: make([]string, 0),
		Failed:    make([]string, 0),
	}
	for _, chunk := range chunks {
		o, err := s.driver.Dispatch(ctx, chunk, mail)
		if err != nil {
			return nil, err
		}
		outcome.Succeeded = append(outcome.Succeeded, o.Succeeded...)
		outcome.Failed = append(outcome.Failed, o.Failed...)
	}

	return outcome, nil
}

// ensureAnalytics returns the newsletter's analytics record, creating it on
// the first send. Resends reuse it.
func (s *Sender) ensureAnalytics(ctx context.Context, id uint64) (*entity.Analytics, error) {
	analytics, err := s.analyticsRepo.GetByNewsletterID(ctx, id)
	if err == nil {
		return analytics, nil
	}
	if !errors.Is(err, repo.ErrAnalyticsNotFound) {
		log.Ctx(ctx).Error().Msgf("get analytics failed, newsletter_id: %d, err: %v", id, err)
		return nil, err
	}

	now := goutil.Unix(s.clock.Now())
	analytics = &entity.Analytics{
		NewsletterID: goutil.Uint64(id),
		PixelToken:   goutil.String(uuid.NewString()),
		CreateTime:   goutil.Uint64(now),
		UpdateTime:   goutil.Uint64(now),
	}
	if _, err := s.analyticsRepo.Create(ctx, analytics); err != nil {
		log.Ctx(ctx).Error().Msgf("create analytics failed, newsletter_id: %d, err: %v", id, err)
		return nil, err
	}

	return analytics, nil
}

func (s *Sender) buildMail(ctx context.Context, n *entity.Newsletter, pixelToken string) (*dep.Mail, error) {
	msg, err := s.renderer.Render(ctx, n, pixelToken)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("render newsletter failed, newsletter_id: %d, err: %v", n.GetID(), err)
		return nil, err
	}

	return buildMail(s.cfg, n, msg), nil
}

func buildMail(cfg Config, n *entity.Newsletter, msg *dep.Message) *dep.Mail {
	var (
		prefs = n.GetSettings().GetPreferences()
		from  = &dep.Sender{
			Email: cfg.SenderEmail,
			Name:  cfg.SenderName,
		}
	)
	if prefs.GetSenderEmail() != "" {
		from.Email = prefs.GetSenderEmail()
	}
	if prefs.GetSenderName() != "" {
		from.Name = prefs.GetSenderName()
	}

	return &dep.Mail{
		NewsletterID: n.GetID(),
		From:         from,
		ReplyTo:      prefs.GetReplyTo(),
		Subject:      msg.Subject,
		HtmlContent:  msg.HtmlContent,
	}
}
