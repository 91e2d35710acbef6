package repo

import (
	"context"
	"strings"

	"newsletter/pkg/goutil"
)

// keeps IN lists well below driver placeholder limits
const subscriberBatchSize = 500

type Subscriber struct {
	ID         *uint64 `gorm:"primaryKey"`
	Email      *string `gorm:"size:254;uniqueIndex:uk_subscriber_email"`
	CreateTime *uint64
}

func (m *Subscriber) TableName() string {
	return "subscriber_tab"
}

func (m *Subscriber) GetEmail() string {
	if m != nil && m.Email != nil {
		return *m.Email
	}
	return ""
}

type SubscriberRepo interface {
	// GetKnown returns the lower-cased subset of emails already stored.
	GetKnown(ctx context.Context, emails []string) (map[string]struct{}, error)
	// CreateMany stores emails lower-cased, skipping those already known.
	CreateMany(ctx context.Context, emails []string, now uint64) error
}

type subscriberRepo struct {
	baseRepo BaseRepo
}

func NewSubscriberRepo(_ context.Context, baseRepo BaseRepo) SubscriberRepo {
	return &subscriberRepo{baseRepo: baseRepo}
}

func (r *subscriberRepo) GetKnown(ctx context.Context, emails []string) (map[string]struct{}, error) {
	var (
		lowered = lowerUnique(emails)
		known   = make(map[string]struct{})
	)

	for start := 0; start < len(lowered); start += subscriberBatchSize {
		end := start + subscriberBatchSize
		if end > len(lowered) {
			end = len(lowered)
		}

		res, _, err := r.baseRepo.GetMany(ctx, new(Subscriber), &Filter{
			Conditions: []*Condition{
				{
					Field: "email",
					Value: lowered[start:end],
					Op:    OpIn,
				},
			},
		})
		if err != nil {
			return nil, err
		}

		for _, r := range res {
			known[r.(*Subscriber).GetEmail()] = struct{}{}
		}
	}

	return known, nil
}

func (r *subscriberRepo) CreateMany(ctx context.Context, emails []string, now uint64) error {
	lowered := lowerUnique(emails)
	if len(lowered) == 0 {
		return nil
	}

	subscribers := make([]*Subscriber, 0, len(lowered))
	for _, email := range lowered {
		subscribers = append(subscribers, &Subscriber{
			Email:      goutil.String(email),
			CreateTime: goutil.Uint64(now),
		})
	}

	return r.baseRepo.CreateMany(ctx, new(Subscriber), subscribers)
}

func lowerUnique(emails []string) []string {
	var (
		seen = make(map[string]struct{}, len(emails))
		res  = make([]string, 0, len(emails))
	)
	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		res = append(res, email)
	}
	return res
}
