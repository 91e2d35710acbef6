package analytics

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
)

type Link struct {
	URL          string `json:"url"`
	LinkType     string `json:"link_type,omitempty"`
	LinkID       string `json:"link_id,omitempty"`
	TotalClicks  uint64 `json:"total_clicks"`
	UniqueClicks uint64 `json:"unique_clicks"`
	FirstClick   uint64 `json:"first_click,omitempty"`
	LastClick    uint64 `json:"last_click,omitempty"`
}

type Summary struct {
	NewsletterID    uint64  `json:"newsletter_id"`
	TotalRecipients uint64  `json:"total_recipients"`
	TotalOpens      uint64  `json:"total_opens"`
	UniqueOpens     uint64  `json:"unique_opens"`
	OpenRate        float64 `json:"open_rate"`
	FirstOpen       uint64  `json:"first_open,omitempty"`
	LastOpen        uint64  `json:"last_open,omitempty"`
	TotalClicks     uint64  `json:"total_clicks"`
	UniqueClicks    uint64  `json:"unique_clicks"`
	ClickRate       float64 `json:"click_rate"`
	Links           []*Link `json:"links"`
}

// Summary aggregates the engagement of one newsletter. Links are ordered by
// unique clicks, most clicked first.
func (r *Recorder) Summary(ctx context.Context, newsletterID uint64) (*Summary, error) {
	a, err := r.analyticsRepo.GetByNewsletterID(ctx, newsletterID)
	if err != nil {
		return nil, err
	}

	linkClicks, err := r.analyticsRepo.GetLinkClicks(ctx, a.GetID())
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get link clicks failed, newsletter_id: %d, err: %v", newsletterID, err)
		return nil, err
	}

	s := &Summary{
		NewsletterID:    newsletterID,
		TotalRecipients: deref(a.TotalRecipients),
		TotalOpens:      a.GetTotalOpens(),
		UniqueOpens:     a.GetUniqueOpens(),
		FirstOpen:       deref(a.FirstOpen),
		LastOpen:        deref(a.LastOpen),
		Links:           make([]*Link, 0, len(linkClicks)),
	}

	for _, lc := range linkClicks {
		link := &Link{
			URL:          lc.GetURL(),
			TotalClicks:  lc.GetTotalClicks(),
			UniqueClicks: lc.GetUniqueClicks(),
			FirstClick:   deref(lc.FirstClick),
			LastClick:    deref(lc.LastClick),
		}
		if lc.LinkType != nil {
			link.LinkType = string(*lc.LinkType)
		}
		if lc.LinkID != nil {
			link.LinkID = *lc.LinkID
		}

		s.TotalClicks += link.TotalClicks
		s.UniqueClicks += link.UniqueClicks
		s.Links = append(s.Links, link)
	}

	sort.SliceStable(s.Links, func(i, j int) bool {
		return s.Links[i].UniqueClicks > s.Links[j].UniqueClicks
	})

	s.OpenRate = rate(s.UniqueOpens, s.TotalRecipients)
	s.ClickRate = rate(s.UniqueClicks, s.TotalRecipients)

	return s, nil
}

func rate(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func deref(v *uint64) uint64 {
	if v != nil {
		return *v
	}
	return 0
}
