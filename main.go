package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"newsletter/analytics"
	"newsletter/config"
	"newsletter/dep"
	"newsletter/handler"
	"newsletter/middleware"
	"newsletter/newsletter"
	"newsletter/pkg/goutil"
	"newsletter/pkg/logutil"
	"newsletter/pkg/service"
	"newsletter/repo"
)

const shutdownTimeout = 30 * time.Second

type server struct {
	ctx context.Context
	opt *config.Option
	cfg *config.Config

	baseRepo  repo.BaseRepo
	baseCache repo.BaseCache
	publisher dep.EventPublisher
	transport dep.MailTransport
	queue     *newsletter.Queue

	httpServer *http.Server

	// api handlers
	newsletterHandler handler.NewsletterHandler
	trackingHandler   *handler.TrackingHandler
}

func main() {
	s := new(server)
	if err := service.Run(s); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

func (s *server) Init() error {
	s.opt = config.NewOptions().FromEnv()
	return nil
}

func (s *server) Start() error {
	var err error

	// ====== init logger ===== //

	s.ctx = logutil.InitZeroLog(context.Background(), s.opt.LogLevel)

	// ===== init config ===== //

	s.cfg = config.NewConfig()
	if err = s.cfg.Load(s.ctx, s.opt.ConfigPath); err != nil {
		log.Ctx(s.ctx).Error().Msgf("load config failed, err: %v", err)
		return err
	}

	// ===== init repos ===== //

	s.baseRepo, err = repo.NewBaseRepo(s.ctx, s.cfg.MetadataDB)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init base repo failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil {
			if err := s.baseRepo.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close base repo failed, err: %v", err)
			}
		}
	}()

	if s.cfg.AutoMigrate {
		if err = s.baseRepo.AutoMigrate(s.ctx, repo.Models()...); err != nil {
			log.Ctx(s.ctx).Error().Msgf("auto migrate failed, err: %v", err)
			return err
		}
	}

	s.baseCache = repo.NewBaseCache(s.ctx, time.Duration(s.cfg.Tracking.TokenCacheTTLSeconds)*time.Second)

	var (
		newsletterRepo = repo.NewNewsletterRepo(s.ctx, s.baseRepo)
		analyticsRepo  = repo.NewAnalyticsRepo(s.ctx, s.baseRepo, s.baseCache)
		subscriberRepo = repo.NewSubscriberRepo(s.ctx, s.baseRepo)
	)

	// ===== init deps ===== //

	s.publisher, err = dep.NewEventPublisher(s.ctx, s.cfg.Producer)
	if err != nil {
		log.Ctx(s.ctx).Error().Msgf("init event publisher failed, err: %v", err)
		return err
	}
	defer func() {
		if err != nil {
			if err := s.publisher.Close(s.ctx); err != nil {
				log.Ctx(s.ctx).Error().Msgf("close event publisher failed, err: %v", err)
			}
		}
	}()

	s.transport = dep.NewBrevoTransport(s.ctx, s.cfg.Brevo)

	// ===== init newsletter pipeline ===== //

	var (
		clock = goutil.NewSystemClock()
		nlCfg = newsletter.Config{
			ChunkSize:      s.cfg.Newsletter.ChunkSize,
			RetryChunkSize: s.cfg.Newsletter.RetryChunkSize,
			SenderName:     s.cfg.Brevo.SenderName,
			SenderEmail:    s.cfg.Brevo.SenderEmail,
		}
		sm       = newsletter.NewStateMachine(newsletterRepo, s.publisher, clock)
		driver   = newsletter.NewDriver(s.transport, s.cfg.Newsletter.DispatchConcurrency)
		renderer = dep.NewStoredRenderer(s.cfg.Tracking.BaseURL)
		sender   = newsletter.NewSender(nlCfg, sm, driver, renderer, analyticsRepo, subscriberRepo, clock)
		retry    = newsletter.NewRetryOrchestrator(nlCfg, sm, driver, renderer, analyticsRepo)
		recovery = newsletter.NewRecoveryOperator(sm)
		recorder = analytics.NewRecorder(analyticsRepo, s.cfg.Tracking.FingerprintSecret, clock)
	)

	s.queue = newsletter.NewQueue(sender, retry, s.cfg.Newsletter.QueueWorkers, s.cfg.Newsletter.QueueSize)
	s.queue.Start(s.ctx)

	// ===== init handlers ===== //

	s.newsletterHandler = handler.NewNewsletterHandler(newsletterRepo, sender, retry, recovery, s.queue, recorder, clock)
	s.trackingHandler = handler.NewTrackingHandler(recorder)

	// ===== start server ===== //

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.Cors.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})

	addr := fmt.Sprintf(":%d", s.opt.Port)
	s.httpServer = &http.Server{
		BaseContext: func(_ net.Listener) context.Context {
			return s.ctx
		},
		Addr:    addr,
		Handler: middleware.Log(c.Handler(s.registerRoutes())),
	}

	go func() {
		log.Ctx(s.ctx).Info().Msgf("starting HTTP server at %s", addr)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Ctx(s.ctx).Fatal().Msgf("fail to start HTTP server, err: %v", err)
		}
	}()

	return nil
}

func (s *server) Stop() error {
	ctx, cancel := context.WithTimeout(s.ctx, shutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("shutdown HTTP server failed, err: %v", err)
		}
	}

	// interrupted sends stay in sending or retrying until recovered
	if s.queue != nil {
		if err := s.queue.Stop(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("stop dispatch queue failed, err: %v", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("close event publisher failed, err: %v", err)
		}
	}

	if s.transport != nil {
		if err := s.transport.Close(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("close mail transport failed, err: %v", err)
		}
	}

	if s.baseCache != nil {
		if err := s.baseCache.Close(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("close base cache failed, err: %v", err)
		}
	}

	if s.baseRepo != nil {
		if err := s.baseRepo.Close(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("close base repo failed, err: %v", err)
			return err
		}
	}

	return nil
}
