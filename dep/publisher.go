package dep

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"newsletter/pkg/mq"
)

type EventPublisher interface {
	Publish(ctx context.Context, event *mq.NewsletterEvent) error
	Close(ctx context.Context) error
}

type mqPublisher struct {
	producer *mq.Producer
}

// NewEventPublisher publishes through Kafka when brokers are configured and
// discards events otherwise.
func NewEventPublisher(ctx context.Context, cfg mq.ProducerConfig) (EventPublisher, error) {
	if !cfg.Enabled() {
		log.Ctx(ctx).Warn().Msg("no producer brokers configured, newsletter events are discarded")
		return NewNoopPublisher(), nil
	}

	producer, err := mq.NewProducer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &mqPublisher{producer: producer}, nil
}

func (p *mqPublisher) Publish(ctx context.Context, event *mq.NewsletterEvent) error {
	return p.producer.SendMessage(ctx, &mq.Message{
		Payload: mq.PayloadNewsletterEvent,
		Key:     fmt.Sprint(event.GetNewsletterID()),
		Body:    event,
	})
}

func (p *mqPublisher) Close(_ context.Context) error {
	return p.producer.Close()
}

type noopPublisher struct{}

func NewNoopPublisher() EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(ctx context.Context, event *mq.NewsletterEvent) error {
	log.Ctx(ctx).Debug().Msgf("newsletter event dropped, newsletter_id: %d, type: %s", event.GetNewsletterID(), event.Type)
	return nil
}

func (noopPublisher) Close(_ context.Context) error {
	return nil
}
