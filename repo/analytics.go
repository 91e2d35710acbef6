package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"newsletter/entity"
	"newsletter/pkg/errutil"
	"newsletter/pkg/goutil"
)

var (
	ErrAnalyticsNotFound = errutil.NotFoundError(errors.New("analytics not found"))
)

const cachePrefixPixelToken = "pixel_token"

type Analytics struct {
	ID              *uint64 `gorm:"primaryKey"`
	NewsletterID    *uint64 `gorm:"uniqueIndex:uk_analytics_newsletter_id"`
	PixelToken      *string `gorm:"size:64;uniqueIndex:uk_analytics_pixel_token"`
	TotalRecipients *uint64
	TotalOpens      *uint64
	UniqueOpens     *uint64
	FirstOpen       *uint64
	LastOpen        *uint64
	CreateTime      *uint64
	UpdateTime      *uint64
}

func (m *Analytics) TableName() string {
	return "newsletter_analytics_tab"
}

func (m *Analytics) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

type LinkClick struct {
	ID           *uint64 `gorm:"primaryKey"`
	AnalyticsID  *uint64 `gorm:"uniqueIndex:uk_link_click,priority:1"`
	URL          *string `gorm:"size:700;uniqueIndex:uk_link_click,priority:2"`
	LinkType     *string `gorm:"size:32"`
	LinkID       *string `gorm:"size:128"`
	TotalClicks  *uint64
	UniqueClicks *uint64
	FirstClick   *uint64
	LastClick    *uint64
}

func (m *LinkClick) TableName() string {
	return "newsletter_link_click_tab"
}

func (m *LinkClick) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

func (m *LinkClick) GetLinkType() string {
	if m != nil && m.LinkType != nil {
		return *m.LinkType
	}
	return ""
}

// ClickFingerprint rows only prove that a fingerprint was counted for a link.
type ClickFingerprint struct {
	ID              *uint64 `gorm:"primaryKey"`
	LinkClickID     *uint64 `gorm:"uniqueIndex:uk_click_fingerprint,priority:1"`
	FingerprintHash *string `gorm:"size:64;uniqueIndex:uk_click_fingerprint,priority:2"`
	CreateTime      *uint64
}

func (m *ClickFingerprint) TableName() string {
	return "newsletter_click_fingerprint_tab"
}

type OpenFingerprint struct {
	ID              *uint64 `gorm:"primaryKey"`
	AnalyticsID     *uint64 `gorm:"uniqueIndex:uk_open_fingerprint,priority:1"`
	FingerprintHash *string `gorm:"size:64;uniqueIndex:uk_open_fingerprint,priority:2"`
	CreateTime      *uint64
}

func (m *OpenFingerprint) TableName() string {
	return "newsletter_open_fingerprint_tab"
}

type AnalyticsRepo interface {
	TxService

	Create(ctx context.Context, a *entity.Analytics) (uint64, error)
	GetByNewsletterID(ctx context.Context, newsletterID uint64) (*entity.Analytics, error)
	// GetIDByPixelToken resolves a tracking token, consulting the cache first.
	GetIDByPixelToken(ctx context.Context, pixelToken string) (uint64, error)
	UpdateTotalRecipients(ctx context.Context, id, totalRecipients, now uint64) error
	GetLinkClicks(ctx context.Context, analyticsID uint64) ([]*entity.LinkClick, error)

	// UpsertLinkClick bumps total clicks of (analyticsID, url), creating the
	// row on first click, and returns its id.
	UpsertLinkClick(ctx context.Context, lc *entity.LinkClick, now uint64) (uint64, error)
	// AddClickFingerprint reports whether the fingerprint was new for the link.
	AddClickFingerprint(ctx context.Context, linkClickID uint64, fingerprintHash string, now uint64) (bool, error)
	IncrUniqueClicks(ctx context.Context, linkClickID uint64) error

	IncrOpens(ctx context.Context, analyticsID, now uint64) error
	AddOpenFingerprint(ctx context.Context, analyticsID uint64, fingerprintHash string, now uint64) (bool, error)
	IncrUniqueOpens(ctx context.Context, analyticsID uint64) error
}

type analyticsRepo struct {
	baseRepo  BaseRepo
	baseCache BaseCache
}

func NewAnalyticsRepo(_ context.Context, baseRepo BaseRepo, baseCache BaseCache) AnalyticsRepo {
	return &analyticsRepo{
		baseRepo:  baseRepo,
		baseCache: baseCache,
	}
}

func (r *analyticsRepo) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.baseRepo.RunTx(ctx, fn)
}

func (r *analyticsRepo) Create(ctx context.Context, a *entity.Analytics) (uint64, error) {
	analyticsModel := ToAnalyticsModel(a)
	for _, counter := range []**uint64{
		&analyticsModel.TotalRecipients,
		&analyticsModel.TotalOpens,
		&analyticsModel.UniqueOpens,
	} {
		if *counter == nil {
			*counter = goutil.Uint64(0)
		}
	}

	if err := r.baseRepo.Create(ctx, analyticsModel); err != nil {
		return 0, err
	}

	a.ID = analyticsModel.ID

	return analyticsModel.GetID(), nil
}

func (r *analyticsRepo) GetByNewsletterID(ctx context.Context, newsletterID uint64) (*entity.Analytics, error) {
	return r.get(ctx, &Condition{
		Field: "newsletter_id",
		Value: newsletterID,
		Op:    OpEq,
	})
}

func (r *analyticsRepo) GetIDByPixelToken(ctx context.Context, pixelToken string) (uint64, error) {
	if v, ok := r.baseCache.Get(ctx, cachePrefixPixelToken, pixelToken); ok {
		return v.(uint64), nil
	}

	a, err := r.get(ctx, &Condition{
		Field: "pixel_token",
		Value: pixelToken,
		Op:    OpEq,
	})
	if err != nil {
		return 0, err
	}

	r.baseCache.Set(ctx, cachePrefixPixelToken, pixelToken, a.GetID())

	return a.GetID(), nil
}

func (r *analyticsRepo) get(ctx context.Context, condition *Condition) (*entity.Analytics, error) {
	analytics := new(Analytics)

	if err := r.baseRepo.Get(ctx, analytics, &Filter{
		Conditions: []*Condition{condition},
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalyticsNotFound
		}
		return nil, err
	}

	return ToAnalytics(analytics), nil
}

func (r *analyticsRepo) UpdateTotalRecipients(ctx context.Context, id, totalRecipients, now uint64) error {
	_, err := r.baseRepo.UpdateWhere(ctx, new(Analytics), idFilter(id), map[string]interface{}{
		"total_recipients": totalRecipients,
		"update_time":      now,
	})
	return err
}

func (r *analyticsRepo) GetLinkClicks(ctx context.Context, analyticsID uint64) ([]*entity.LinkClick, error) {
	res, _, err := r.baseRepo.GetMany(ctx, new(LinkClick), &Filter{
		Conditions: []*Condition{
			{
				Field: "analytics_id",
				Value: analyticsID,
				Op:    OpEq,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	linkClicks := make([]*entity.LinkClick, 0, len(res))
	for _, r := range res {
		linkClicks = append(linkClicks, ToLinkClick(r.(*LinkClick)))
	}

	return linkClicks, nil
}

func (r *analyticsRepo) UpsertLinkClick(ctx context.Context, lc *entity.LinkClick, now uint64) (uint64, error) {
	linkClick := &LinkClick{
		AnalyticsID:  lc.AnalyticsID,
		URL:          lc.URL,
		LinkID:       lc.LinkID,
		TotalClicks:  goutil.Uint64(1),
		UniqueClicks: goutil.Uint64(0),
		FirstClick:   goutil.Uint64(now),
		LastClick:    goutil.Uint64(now),
	}
	if lc.LinkType != nil {
		linkClick.LinkType = goutil.String(string(*lc.LinkType))
	}

	if err := r.baseRepo.Upsert(ctx, linkClick, []string{"analytics_id", "url"}, map[string]interface{}{
		"total_clicks": gorm.Expr("total_clicks + ?", 1),
		"last_click":   now,
	}); err != nil {
		return 0, err
	}

	// the returned id is unreliable on the update path of an upsert
	existing := new(LinkClick)
	if err := r.baseRepo.Get(ctx, existing, &Filter{
		Conditions: []*Condition{
			{
				Field:         "analytics_id",
				Value:         lc.AnalyticsID,
				Op:            OpEq,
				NextLogicalOp: LogicalOpAnd,
			},
			{
				Field: "url",
				Value: lc.URL,
				Op:    OpEq,
			},
		},
	}); err != nil {
		return 0, err
	}

	return existing.GetID(), nil
}

func (r *analyticsRepo) AddClickFingerprint(ctx context.Context, linkClickID uint64, fingerprintHash string, now uint64) (bool, error) {
	return r.baseRepo.CreateIfAbsent(ctx, &ClickFingerprint{
		LinkClickID:     goutil.Uint64(linkClickID),
		FingerprintHash: goutil.String(fingerprintHash),
		CreateTime:      goutil.Uint64(now),
	})
}

func (r *analyticsRepo) IncrUniqueClicks(ctx context.Context, linkClickID uint64) error {
	_, err := r.baseRepo.UpdateWhere(ctx, new(LinkClick), idFilter(linkClickID), map[string]interface{}{
		"unique_clicks": gorm.Expr("unique_clicks + ?", 1),
	})
	return err
}

func (r *analyticsRepo) IncrOpens(ctx context.Context, analyticsID, now uint64) error {
	_, err := r.baseRepo.UpdateWhere(ctx, new(Analytics), idFilter(analyticsID), map[string]interface{}{
		"total_opens": gorm.Expr("total_opens + ?", 1),
		"first_open":  gorm.Expr("COALESCE(first_open, ?)", now),
		"last_open":   now,
		"update_time": now,
	})
	return err
}

func (r *analyticsRepo) AddOpenFingerprint(ctx context.Context, analyticsID uint64, fingerprintHash string, now uint64) (bool, error) {
	return r.baseRepo.CreateIfAbsent(ctx, &OpenFingerprint{
		AnalyticsID:     goutil.Uint64(analyticsID),
		FingerprintHash: goutil.String(fingerprintHash),
		CreateTime:      goutil.Uint64(now),
	})
}

func (r *analyticsRepo) IncrUniqueOpens(ctx context.Context, analyticsID uint64) error {
	_, err := r.baseRepo.UpdateWhere(ctx, new(Analytics), idFilter(analyticsID), map[string]interface{}{
		"unique_opens": gorm.Expr("unique_opens + ?", 1),
	})
	return err
}

func idFilter(id uint64) *Filter {
	return &Filter{
		Conditions: []*Condition{
			{
				Field: "id",
				Value: id,
				Op:    OpEq,
			},
		},
	}
}

func ToAnalyticsModel(a *entity.Analytics) *Analytics {
	return &Analytics{
		ID:              a.ID,
		NewsletterID:    a.NewsletterID,
		PixelToken:      a.PixelToken,
		TotalRecipients: a.TotalRecipients,
		TotalOpens:      a.TotalOpens,
		UniqueOpens:     a.UniqueOpens,
		FirstOpen:       a.FirstOpen,
		LastOpen:        a.LastOpen,
		CreateTime:      a.CreateTime,
		UpdateTime:      a.UpdateTime,
	}
}

func ToAnalytics(analytics *Analytics) *entity.Analytics {
	return &entity.Analytics{
		ID:              analytics.ID,
		NewsletterID:    analytics.NewsletterID,
		PixelToken:      analytics.PixelToken,
		TotalRecipients: analytics.TotalRecipients,
		TotalOpens:      analytics.TotalOpens,
		UniqueOpens:     analytics.UniqueOpens,
		FirstOpen:       analytics.FirstOpen,
		LastOpen:        analytics.LastOpen,
		CreateTime:      analytics.CreateTime,
		UpdateTime:      analytics.UpdateTime,
	}
}

func ToLinkClick(linkClick *LinkClick) *entity.LinkClick {
	var linkType *entity.LinkType
	if linkClick.LinkType != nil {
		lt := entity.LinkType(linkClick.GetLinkType())
		linkType = &lt
	}

	return &entity.LinkClick{
		ID:           linkClick.ID,
		AnalyticsID:  linkClick.AnalyticsID,
		URL:          linkClick.URL,
		LinkType:     linkType,
		LinkID:       linkClick.LinkID,
		TotalClicks:  linkClick.TotalClicks,
		UniqueClicks: linkClick.UniqueClicks,
		FirstClick:   linkClick.FirstClick,
		LastClick:    linkClick.LastClick,
	}
}
