// Package analytics records link clicks and pixel opens of sent newsletters
// and summarizes them. Recording never fails the tracking request.
package analytics

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"newsletter/entity"
	"newsletter/pkg/goutil"
	"newsletter/repo"
)

type Recorder struct {
	analyticsRepo repo.AnalyticsRepo
	hasher        *hasher
	clock         goutil.Clock
}

func NewRecorder(analyticsRepo repo.AnalyticsRepo, fingerprintSecret string, clock goutil.Clock) *Recorder {
	return &Recorder{
		analyticsRepo: analyticsRepo,
		hasher:        newHasher(fingerprintSecret),
		clock:         clock,
	}
}

// RecordClick counts a click on url for the newsletter behind pixelToken.
// Unknown tokens and storage errors are logged and dropped.
func (r *Recorder) RecordClick(ctx context.Context, pixelToken, rawURL string, linkType entity.LinkType, linkID string, fp *Fingerprint) {
	if err := r.recordClick(ctx, pixelToken, rawURL, linkType, linkID, fp); err != nil {
		log.Ctx(ctx).Error().Msgf("record click failed, token: %s, url: %s, err: %v", pixelToken, rawURL, err)
	}
}

func (r *Recorder) recordClick(ctx context.Context, pixelToken, rawURL string, linkType entity.LinkType, linkID string, fp *Fingerprint) error {
	analyticsID, ok, err := r.resolve(ctx, pixelToken)
	if !ok || err != nil {
		return err
	}

	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return err
	}

	lc := &entity.LinkClick{
		AnalyticsID: goutil.Uint64(analyticsID),
		URL:         goutil.String(normalized),
	}
	if linkType != "" {
		lc.LinkType = &linkType
	}
	if linkID != "" {
		lc.LinkID = goutil.String(linkID)
	}

	var (
		now  = goutil.Unix(r.clock.Now())
		hash = r.hasher.hash(fp)
	)

	linkClickID, err := r.analyticsRepo.UpsertLinkClick(ctx, lc, now)
	if err != nil {
		return err
	}

	return r.analyticsRepo.RunTx(ctx, func(ctx context.Context) error {
		fresh, err := r.analyticsRepo.AddClickFingerprint(ctx, linkClickID, hash, now)
		if err != nil || !fresh {
			return err
		}
		return r.analyticsRepo.IncrUniqueClicks(ctx, linkClickID)
	})
}

// RecordOpen counts a pixel load for the newsletter behind pixelToken.
func (r *Recorder) RecordOpen(ctx context.Context, pixelToken string, fp *Fingerprint) {
	if err := r.recordOpen(ctx, pixelToken, fp); err != nil {
		log.Ctx(ctx).Error().Msgf("record open failed, token: %s, err: %v", pixelToken, err)
	}
}

func (r *Recorder) recordOpen(ctx context.Context, pixelToken string, fp *Fingerprint) error {
	analyticsID, ok, err := r.resolve(ctx, pixelToken)
	if !ok || err != nil {
		return err
	}

	var (
		now  = goutil.Unix(r.clock.Now())
		hash = r.hasher.hash(fp)
	)

	return r.analyticsRepo.RunTx(ctx, func(ctx context.Context) error {
		if err := r.analyticsRepo.IncrOpens(ctx, analyticsID, now); err != nil {
			return err
		}

		fresh, err := r.analyticsRepo.AddOpenFingerprint(ctx, analyticsID, hash, now)
		if err != nil || !fresh {
			return err
		}
		return r.analyticsRepo.IncrUniqueOpens(ctx, analyticsID)
	})
}

// resolve reports false for tokens that match no newsletter.
func (r *Recorder) resolve(ctx context.Context, pixelToken string) (uint64, bool, error) {
	if pixelToken == "" {
		return 0, false, nil
	}

	analyticsID, err := r.analyticsRepo.GetIDByPixelToken(ctx, pixelToken)
	if errors.Is(err, repo.ErrAnalyticsNotFound) {
		log.Ctx(ctx).Debug().Msgf("unknown tracking token: %s", pixelToken)
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return analyticsID, true, nil
}
