package main

import (
	"context"
	"net/http"

	"newsletter/config"
	"newsletter/handler"
	"newsletter/pkg/router"
)

type HealthCheckRequest struct{}

type HealthCheckResponse struct{}

func (s *server) registerRoutes() http.Handler {
	r := router.NewHttpRouter()

	r.RegisterHttpRoute(&router.HttpRoute{
		Path:   config.PathHealthCheck,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(HealthCheckRequest),
			Res: new(HealthCheckResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return nil
			},
		},
	})

	// create_newsletter
	r.RegisterHttpRoute(&router.HttpRoute{
		Prefix: config.PrefixAdmin,
		Path:   config.PathCreateNewsletter,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.CreateNewsletterRequest),
			Res: new(handler.CreateNewsletterResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.newsletterHandler.CreateNewsletter(ctx, req.(*handler.CreateNewsletterRequest), res.(*handler.CreateNewsletterResponse))
			},
		},
	})

	// validate_recipients
	r.RegisterHttpRoute(&router.HttpRoute{
		Prefix: config.PrefixAdmin,
		Path:   config.PathValidateRecipients,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.ValidateRecipientsRequest),
			Res: new(handler.ValidateRecipientsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.newsletterHandler.ValidateRecipients(ctx, req.(*handler.ValidateRecipientsRequest), res.(*handler.ValidateRecipientsResponse))
			},
		},
	})

	// send_newsletter
	r.RegisterHttpRoute(&router.HttpRoute{
		Prefix: config.PrefixAdmin,
		Path:   config.PathSendNewsletter,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.SendNewsletterRequest),
			Res: new(handler.SendNewsletterResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.newsletterHandler.SendNewsletter(ctx, req.(*handler.SendNewsletterRequest), res.(*handler.SendNewsletterResponse))
			},
		},
	})

	// retry_newsletter
	r.RegisterHttpRoute(&router.HttpRoute{
		Prefix: config.PrefixAdmin,
		Path:   config.PathRetryNewsletter,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.RetryNewsletterRequest),
			Res: new(handler.RetryNewsletterResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.newsletterHandler.RetryNewsletter(ctx, req.(*handler.RetryNewsletterRequest), res.(*handler.RetryNewsletterResponse))
			},
		},
	})

	// recover_newsletter
	r.RegisterHttpRoute(&router.HttpRoute{
		Prefix: config.PrefixAdmin,
		Path:   config.PathRecoverNewsletter,
		Method: http.MethodPost,
		Handler: router.Handler{
			Req: new(handler.RecoverNewsletterRequest),
			Res: new(handler.RecoverNewsletterResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.newsletterHandler.RecoverNewsletter(ctx, req.(*handler.RecoverNewsletterRequest), res.(*handler.RecoverNewsletterResponse))
			},
		},
	})

	// get_newsletter_status
	r.RegisterHttpRoute(&router.HttpRoute{
		Prefix: config.PrefixAdmin,
		Path:   config.PathGetNewsletterStatus,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetNewsletterStatusRequest),
			Res: new(handler.GetNewsletterStatusResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.newsletterHandler.GetNewsletterStatus(ctx, req.(*handler.GetNewsletterStatusRequest), res.(*handler.GetNewsletterStatusResponse))
			},
		},
	})

	// get_newsletter_analytics
	r.RegisterHttpRoute(&router.HttpRoute{
		Prefix: config.PrefixAdmin,
		Path:   config.PathGetNewsletterAnalytics,
		Method: http.MethodGet,
		Handler: router.Handler{
			Req: new(handler.GetNewsletterAnalyticsRequest),
			Res: new(handler.GetNewsletterAnalyticsResponse),
			HandleFunc: func(ctx context.Context, req, res interface{}) error {
				return s.newsletterHandler.GetNewsletterAnalytics(ctx, req.(*handler.GetNewsletterAnalyticsRequest), res.(*handler.GetNewsletterAnalyticsResponse))
			},
		},
	})

	// public tracking links
	r.RegisterRawRoute(http.MethodGet, config.PrefixTracking+config.PathTrackClick, http.HandlerFunc(s.trackingHandler.Click))
	r.RegisterRawRoute(http.MethodGet, config.PrefixTracking+config.PathTrackOpen, http.HandlerFunc(s.trackingHandler.Open))

	return r
}
