package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"newsletter/config"
	"newsletter/dep"
	"newsletter/job/newsletter_events"
	"newsletter/job/retry_newsletters"
	"newsletter/newsletter"
	"newsletter/pkg/goutil"
	"newsletter/pkg/logutil"
	"newsletter/pkg/service"
	"newsletter/repo"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		opt = config.NewOptions().FromEnv()
		ctx = logutil.InitZeroLog(context.Background(), opt.LogLevel)
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run job/main.go <job_name>")
		return 1
	}

	cfg := config.NewConfig()
	if err := cfg.Load(ctx, opt.ConfigPath); err != nil {
		log.Ctx(ctx).Error().Msgf("load config failed: %v", err)
		return 1
	}

	// base repo
	baseRepo, err := repo.NewBaseRepo(ctx, cfg.MetadataDB)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init base repo failed, err: %v", err)
		return 1
	}
	defer func() {
		if err := baseRepo.Close(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("close base repo failed, err: %v", err)
		}
	}()

	// event publisher
	publisher, err := dep.NewEventPublisher(ctx, cfg.Producer)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init event publisher failed, err: %v", err)
		return 1
	}
	defer func() {
		if err := publisher.Close(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("close event publisher failed, err: %v", err)
		}
	}()

	// mail transport
	transport := dep.NewBrevoTransport(ctx, cfg.Brevo)
	defer func() {
		if err := transport.Close(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("close mail transport failed, err: %v", err)
		}
	}()

	var (
		clock          = goutil.NewSystemClock()
		newsletterRepo = repo.NewNewsletterRepo(ctx, baseRepo)
		analyticsRepo  = repo.NewAnalyticsRepo(ctx, baseRepo, repo.NewBaseCache(ctx, time.Duration(cfg.Tracking.TokenCacheTTLSeconds)*time.Second))
		retry          = newsletter.NewRetryOrchestrator(
			newsletter.Config{
				ChunkSize:      cfg.Newsletter.ChunkSize,
				RetryChunkSize: cfg.Newsletter.RetryChunkSize,
				SenderName:     cfg.Brevo.SenderName,
				SenderEmail:    cfg.Brevo.SenderEmail,
			},
			newsletter.NewStateMachine(newsletterRepo, publisher, clock),
			newsletter.NewDriver(transport, cfg.Newsletter.DispatchConcurrency),
			dep.NewStoredRenderer(cfg.Tracking.BaseURL),
			analyticsRepo,
		)
	)

	jobs := map[string]service.Job{
		"retry-newsletters": retry_newsletters.New(newsletterRepo, retry, cfg.Newsletter.AutoRetryMaxStage, cfg.Newsletter.AutoRetryWorkers),
		"newsletter-events": newsletter_events.New(cfg.Consumer),
	}

	jobName := os.Args[1]
	job, exists := jobs[jobName]
	if !exists {
		log.Ctx(ctx).Error().Msgf("job %s not found", jobName)
		return 1
	}

	if err := job.Init(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("init job err: %v", err)
		return 1
	}

	if err := job.Run(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("run job err: %v", err)
		return 1
	}

	if err := job.CleanUp(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("cleanup job err: %v", err)
		return 1
	}

	log.Ctx(ctx).Info().Msg("job executed successfully")
	return 0
}
