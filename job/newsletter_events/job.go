package newsletter_events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"newsletter/pkg/mq"
	"newsletter/pkg/service"
)

// NewsletterEvents consumes lifecycle events and logs them until the
// context is cancelled.
type NewsletterEvents struct {
	cfg      mq.ConsumerConfig
	consumer *mq.Consumer
}

func New(cfg mq.ConsumerConfig) service.Job {
	return &NewsletterEvents{
		cfg: cfg,
	}
}

func (j *NewsletterEvents) Init(_ context.Context) error {
	mq.RegisterHandler(mq.PayloadNewsletterEvent, HandleNewsletterEvent)
	return nil
}

func (j *NewsletterEvents) Run(ctx context.Context) error {
	var err error

	j.consumer, err = mq.NewConsumer(ctx, j.cfg)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init consumer failed, err: %v", err)
		return err
	}

	<-ctx.Done()

	return nil
}

func (j *NewsletterEvents) CleanUp(ctx context.Context) error {
	if j.consumer == nil {
		return nil
	}
	if err := j.consumer.Close(); err != nil {
		log.Ctx(ctx).Error().Msgf("close consumer failed, err: %v", err)
		return err
	}
	return nil
}

func HandleNewsletterEvent(ctx context.Context, msg *mq.Message) error {
	event := new(mq.NewsletterEvent)
	if err := msg.ParseBody(event); err != nil {
		return fmt.Errorf("parse newsletter event: %w", err)
	}

	if event.GetNewsletterID() == 0 {
		return fmt.Errorf("newsletter event without newsletter id, type: %s", event.Type)
	}

	logger := log.Ctx(ctx).Info()
	if event.Type == mq.EventPartiallyFailed {
		logger = log.Ctx(ctx).Warn()
	}

	logger.
		Uint64("newsletter_id", event.GetNewsletterID()).
		Str("type", string(event.Type)).
		Str("status", event.Status).
		Int("total_sent", event.TotalSent).
		Int("total_failed", event.TotalFailed).
		Int("retry_stage", event.RetryStage).
		Str("action", event.Action).
		Uint64("time", event.Time).
		Msg("newsletter event")

	return nil
}
