package newsletter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"newsletter/dep"
	"newsletter/entity"
	"newsletter/pkg/recipient"
	"newsletter/repo"
)

const defaultRetryChunkSize = 10

// RetryOrchestrator runs one retry wave over the latest failures per call.
// It never schedules further waves itself.
type RetryOrchestrator struct {
	cfg           Config
	sm            *StateMachine
	driver        *Driver
	renderer      dep.Renderer
	analyticsRepo repo.AnalyticsRepo
}

func NewRetryOrchestrator(cfg Config, sm *StateMachine, driver *Driver, renderer dep.Renderer, analyticsRepo repo.AnalyticsRepo) *RetryOrchestrator {
	if cfg.RetryChunkSize == 0 {
		cfg.RetryChunkSize = defaultRetryChunkSize
	}
	return &RetryOrchestrator{
		cfg:           cfg,
		sm:            sm,
		driver:        driver,
		renderer:      renderer,
		analyticsRepo: analyticsRepo,
	}
}

func (o *RetryOrchestrator) Retry(ctx context.Context, id uint64) (*entity.Newsletter, error) {
	job, err := o.Start(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, job)
}

// Start begins the next retry stage and returns the job delivering it.
func (o *RetryOrchestrator) Start(ctx context.Context, id uint64) (_ *Job, err error) {
	release, err := o.sm.AcquireSendLease(id)
	if err != nil {
		return nil, err
	}

	job := newJob(id, release)
	defer func() {
		if err != nil {
			job.Release()
		}
	}()

	n, err := o.sm.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		settings = n.GetSettings()
		stage    = settings.GetCurrentRetryStage() + 1
		failed   = append([]string(nil), settings.GetFailedEmails()...)
	)

	chunks, err := recipient.Plan(failed, o.cfg.RetryChunkSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidConfiguration, err)
	}

	var pixelToken string
	analytics, err := o.analyticsRepo.GetByNewsletterID(ctx, id)
	switch {
	case err == nil:
		pixelToken = analytics.GetPixelToken()
	case errors.Is(err, repo.ErrAnalyticsNotFound):
	default:
		log.Ctx(ctx).Error().Msgf("get analytics failed, newsletter_id: %d, err: %v", id, err)
		return nil, err
	}

	msg, err := o.renderer.Render(ctx, n, pixelToken)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("render newsletter failed, newsletter_id: %d, err: %v", id, err)
		return nil, err
	}

	if _, err = o.sm.BeginRetry(ctx, id, stage); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Msgf("retry started, newsletter_id: %d, stage: %d, recipients: %d, chunks: %d",
		id, stage, len(failed), len(chunks))

	job.Stage = stage
	job.Chunks = chunks
	job.Mail = buildMail(o.cfg, n, msg)

	return job, nil
}

// Run delivers the retry chunks sequentially and records the whole wave as
// one result. An interrupted wave leaves the newsletter retrying.
func (o *RetryOrchestrator) Run(ctx context.Context, job *Job) (*entity.Newsletter, error) {
	defer job.Release()

	var (
		succeeded   = make([]string, 0)
		stillFailed = make([]string, 0)
	)
	for i, chunk := range job.Chunks {
		if err := ctx.Err(); err != nil {
			log.Ctx(ctx).Warn().Msgf("retry interrupted, newsletter_id: %d, stage: %d, next chunk: %d, err: %v",
				job.NewsletterID, job.Stage, i, err)
			return nil, err
		}

		outcome, err := o.driver.Dispatch(ctx, chunk, job.Mail)
		if err != nil {
			log.Ctx(ctx).Error().Msgf("dispatch retry chunk failed, newsletter_id: %d, stage: %d, chunk: %d, err: %v",
				job.NewsletterID, job.Stage, i, err)
			return nil, err
		}

		succeeded = append(succeeded, outcome.Succeeded...)
		stillFailed = append(stillFailed, outcome.Failed...)
	}

	if _, err := o.sm.RecordRetryResult(ctx, job.NewsletterID, job.Stage, succeeded, stillFailed); err != nil {
		log.Ctx(ctx).Error().Msgf("record retry result failed, newsletter_id: %d, stage: %d, err: %v", job.NewsletterID, job.Stage, err)
		return nil, err
	}

	n, err := o.sm.FinalizeRetry(ctx, job.NewsletterID)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("finalize retry failed, newsletter_id: %d, stage: %d, err: %v", job.NewsletterID, job.Stage, err)
		return nil, err
	}

	log.Ctx(ctx).Info().Msgf("retry finished, newsletter_id: %d, stage: %d, status: %s, recovered: %d, still failed: %d",
		n.GetID(), job.Stage, n.GetStatus(), len(succeeded), len(stillFailed))

	return n, nil
}
