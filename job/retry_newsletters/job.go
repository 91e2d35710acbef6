package retry_newsletters

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"newsletter/entity"
	"newsletter/newsletter"
	"newsletter/pkg/goutil"
	"newsletter/pkg/service"
	"newsletter/repo"
)

const pageSize = 100

// RetryNewsletters runs the next retry stage of every partially failed
// newsletter that has not used up its automatic stages.
type RetryNewsletters struct {
	newsletterRepo repo.NewsletterRepo
	retry          *newsletter.RetryOrchestrator
	maxStage       int
	workers        int
}

func New(newsletterRepo repo.NewsletterRepo, retry *newsletter.RetryOrchestrator, maxStage, workers int) service.Job {
	if workers <= 0 {
		workers = 1
	}
	return &RetryNewsletters{
		newsletterRepo: newsletterRepo,
		retry:          retry,
		maxStage:       maxStage,
		workers:        workers,
	}
}

func (j *RetryNewsletters) Init(_ context.Context) error {
	return nil
}

func (j *RetryNewsletters) Run(ctx context.Context) error {
	newsletters, err := j.getPartiallyFailed(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get partially failed newsletters failed: %v", err)
		return err
	}

	var (
		g  = new(errgroup.Group)
		ch = make(chan struct{}, j.workers)
	)

	var done, failed int32

	log.Ctx(ctx).Info().Msgf("number of newsletters to be retried: %d", len(newsletters))

	for _, n := range newsletters {
		if stage := n.GetSettings().GetCurrentRetryStage(); stage >= j.maxStage {
			log.Ctx(ctx).Info().Msgf("[newsletter ID %d] skipped, retry stage %d reached limit", n.GetID(), stage)
			continue
		}

		ch <- struct{}{}

		id := n.GetID()
		g.Go(func() error {
			defer func() {
				<-ch
			}()

			res, err := j.retry.Retry(ctx, id)
			if err != nil {
				// another process may have picked it up
				if errors.Is(err, entity.ErrAlreadySending) || errors.Is(err, entity.ErrInvalidStateTransition) {
					log.Ctx(ctx).Warn().Msgf("[newsletter ID %d] skipped: %v", id, err)
					return nil
				}
				atomic.AddInt32(&failed, 1)
				log.Ctx(ctx).Error().Msgf("[newsletter ID %d] retry failed: %v", id, err)
				return nil
			}

			atomic.AddInt32(&done, 1)
			log.Ctx(ctx).Info().Msgf("[newsletter ID %d] retry stage %d done, status: %s",
				id, res.GetSettings().GetCurrentRetryStage(), res.GetStatus())

			return nil
		})
	}

	_ = g.Wait()

	log.Ctx(ctx).Info().Msgf("retry newsletters finished, retried: %d, failed: %d", done, failed)

	if failed > 0 {
		return errors.New("some newsletters could not be retried")
	}

	return nil
}

// getPartiallyFailed loads every page before any retry starts, since retries
// move newsletters out of the queried status.
func (j *RetryNewsletters) getPartiallyFailed(ctx context.Context) ([]*entity.Newsletter, error) {
	var (
		newsletters = make([]*entity.Newsletter, 0)
		pagination  = &repo.Pagination{
			Limit: goutil.Uint32(pageSize),
			Page:  goutil.Uint32(1),
		}
	)
	for {
		page, next, err := j.newsletterRepo.GetManyByStatus(ctx, entity.NewsletterStatusPartiallyFailed, pagination)
		if err != nil {
			return nil, err
		}
		newsletters = append(newsletters, page...)

		if !next.GetHasNext() {
			return newsletters, nil
		}
		pagination.Page = goutil.Uint32(next.GetPage() + 1)
	}
}

func (j *RetryNewsletters) CleanUp(_ context.Context) error {
	return nil
}
