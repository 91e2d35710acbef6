package newsletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"newsletter/dep"
	"newsletter/entity"
	"newsletter/pkg/goutil"
	"newsletter/pkg/lockutil"
	"newsletter/pkg/mq"
	"newsletter/repo"
)

const defaultConflictRetries = 5

// transition mutates n in place and reports whether anything changed.
type transition func(n *entity.Newsletter, now time.Time) (bool, error)

// StateMachine persists newsletter transitions. Transitions on one id are
// serialized in process and committed with a version check, so a write
// from another process forces a re-read and re-apply.
type StateMachine struct {
	newsletterRepo repo.NewsletterRepo
	publisher      dep.EventPublisher
	clock          goutil.Clock
	locks          *lockutil.KeyedMutex
	sendLeases     *lockutil.KeyedMutex
	maxRetries     uint64
	retryInterval  time.Duration
}

func NewStateMachine(newsletterRepo repo.NewsletterRepo, publisher dep.EventPublisher, clock goutil.Clock) *StateMachine {
	return &StateMachine{
		newsletterRepo: newsletterRepo,
		publisher:      publisher,
		clock:          clock,
		locks:          lockutil.NewKeyedMutex(),
		sendLeases:     lockutil.NewKeyedMutex(),
		maxRetries:     defaultConflictRetries,
		retryInterval:  20 * time.Millisecond,
	}
}

func (sm *StateMachine) Get(ctx context.Context, id uint64) (*entity.Newsletter, error) {
	return sm.newsletterRepo.GetByID(ctx, id)
}

// AcquireSendLease guarantees at most one active send or retry wave per
// newsletter in this process.
func (sm *StateMachine) AcquireSendLease(id uint64) (func(), error) {
	release, ok := sm.sendLeases.TryAcquire(id)
	if !ok {
		return nil, fmt.Errorf("%w: newsletter %d", entity.ErrAlreadySending, id)
	}
	return release, nil
}

func (sm *StateMachine) BeginSend(ctx context.Context, id uint64, plan *entity.SendPlan) (*entity.Newsletter, error) {
	n, err := sm.apply(ctx, id, func(n *entity.Newsletter, now time.Time) (bool, error) {
		return true, n.BeginSend(plan, now)
	})
	if err != nil {
		return nil, err
	}

	sm.publish(ctx, n, mq.EventSendStarted, nil)

	return n, nil
}

// RecordChunkResult is idempotent per chunk index.
func (sm *StateMachine) RecordChunkResult(ctx context.Context, id uint64, chunkIndex int, succeeded, failed []string) (*entity.Newsletter, error) {
	return sm.apply(ctx, id, func(n *entity.Newsletter, now time.Time) (bool, error) {
		return n.RecordChunkResult(chunkIndex, succeeded, failed, now)
	})
}

func (sm *StateMachine) FinalizeSend(ctx context.Context, id uint64) (*entity.Newsletter, error) {
	n, err := sm.apply(ctx, id, func(n *entity.Newsletter, now time.Time) (bool, error) {
		return true, n.FinalizeSend(now)
	})
	if err != nil {
		return nil, err
	}

	sm.publish(ctx, n, completionEvent(n), nil)

	return n, nil
}

func (sm *StateMachine) BeginRetry(ctx context.Context, id uint64, stage int) (*entity.Newsletter, error) {
	n, err := sm.apply(ctx, id, func(n *entity.Newsletter, now time.Time) (bool, error) {
		return true, n.BeginRetry(stage, now)
	})
	if err != nil {
		return nil, err
	}

	sm.publish(ctx, n, mq.EventRetryStarted, nil)

	return n, nil
}

func (sm *StateMachine) RecordRetryResult(ctx context.Context, id uint64, stage int, succeeded, stillFailed []string) (*entity.Newsletter, error) {
	return sm.apply(ctx, id, func(n *entity.Newsletter, now time.Time) (bool, error) {
		return true, n.RecordRetryResult(stage, succeeded, stillFailed, now)
	})
}

func (sm *StateMachine) FinalizeRetry(ctx context.Context, id uint64) (*entity.Newsletter, error) {
	n, err := sm.apply(ctx, id, func(n *entity.Newsletter, now time.Time) (bool, error) {
		return true, n.FinalizeRetry(now)
	})
	if err != nil {
		return nil, err
	}

	sm.publish(ctx, n, completionEvent(n), nil)

	return n, nil
}

func (sm *StateMachine) Recover(ctx context.Context, id uint64, action entity.RecoveryAction, note string) (*entity.Newsletter, error) {
	n, err := sm.apply(ctx, id, func(n *entity.Newsletter, now time.Time) (bool, error) {
		return true, n.Recover(action, note, now)
	})
	if err != nil {
		return nil, err
	}

	sm.publish(ctx, n, mq.EventRecovered, func(e *mq.NewsletterEvent) {
		e.Action = string(action)
		e.Note = note
	})

	return n, nil
}

func (sm *StateMachine) apply(ctx context.Context, id uint64, fn transition) (*entity.Newsletter, error) {
	unlock := sm.locks.Lock(id)
	defer unlock()

	var (
		n        *entity.Newsletter
		attempts int
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = sm.retryInterval
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		attempts++

		var err error
		n, err = sm.newsletterRepo.GetByID(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}

		now := sm.clock.Now()

		changed, err := fn(n, now)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !changed {
			return nil
		}

		n.UpdateTime = goutil.Uint64(goutil.Unix(now))

		err = sm.newsletterRepo.UpdateVersioned(ctx, n)
		if errors.Is(err, repo.ErrVersionConflict) {
			log.Ctx(ctx).Warn().Msgf("newsletter version conflict, id: %d, attempt: %d", id, attempts)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, sm.maxRetries), ctx))
	if err != nil {
		return nil, err
	}

	return n, nil
}

func (sm *StateMachine) publish(ctx context.Context, n *entity.Newsletter, eventType mq.EventType, opt func(e *mq.NewsletterEvent)) {
	s := n.GetSettings()

	event := &mq.NewsletterEvent{
		NewsletterID: goutil.Uint64(n.GetID()),
		Type:         eventType,
		Status:       n.GetStatus().String(),
		Time:         goutil.Unix(sm.clock.Now()),
	}
	if s != nil {
		event.TotalSent = s.TotalSent
		event.TotalFailed = s.TotalFailed
		event.RetryStage = s.CurrentRetryStage
	}
	if opt != nil {
		opt(event)
	}

	if err := sm.publisher.Publish(ctx, event); err != nil {
		log.Ctx(ctx).Error().Msgf("publish newsletter event failed, id: %d, type: %s, err: %v", n.GetID(), eventType, err)
	}
}

func completionEvent(n *entity.Newsletter) mq.EventType {
	if n.GetStatus() == entity.NewsletterStatusSent {
		return mq.EventSent
	}
	return mq.EventPartiallyFailed
}
