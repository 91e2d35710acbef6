package repo

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"newsletter/entity"
	"newsletter/pkg/errutil"
	"newsletter/pkg/goutil"
)

var (
	ErrNewsletterNotFound = errutil.NotFoundError(errors.New("newsletter not found"))
	ErrVersionConflict    = errutil.ConflictError(errors.New("newsletter version conflict"))
)

type Newsletter struct {
	ID             *uint64 `gorm:"primaryKey"`
	Subject        *string `gorm:"size:255"`
	Content        *string `gorm:"type:mediumtext"`
	Status         *uint32 `gorm:"index"`
	RecipientCount *uint64
	Settings       *string `gorm:"type:mediumtext"`
	SentAt         *uint64
	Version        *uint64
	CreateTime     *uint64
	UpdateTime     *uint64
}

func (m *Newsletter) TableName() string {
	return "newsletter_tab"
}

func (m *Newsletter) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

func (m *Newsletter) GetStatus() uint32 {
	if m != nil && m.Status != nil {
		return *m.Status
	}
	return 0
}

func (m *Newsletter) GetSettings() string {
	if m != nil && m.Settings != nil {
		return *m.Settings
	}
	return ""
}

type NewsletterRepo interface {
	Create(ctx context.Context, n *entity.Newsletter) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*entity.Newsletter, error)
	GetManyByStatus(ctx context.Context, status entity.NewsletterStatus, p *Pagination) ([]*entity.Newsletter, *Pagination, error)
	// UpdateVersioned persists n only if the stored version still equals
	// n.Version. On success n.Version is bumped; otherwise ErrVersionConflict.
	UpdateVersioned(ctx context.Context, n *entity.Newsletter) error
}

type newsletterRepo struct {
	baseRepo BaseRepo
}

func NewNewsletterRepo(_ context.Context, baseRepo BaseRepo) NewsletterRepo {
	return &newsletterRepo{baseRepo: baseRepo}
}

func (r *newsletterRepo) Create(ctx context.Context, n *entity.Newsletter) (uint64, error) {
	if n.Version == nil {
		n.Version = goutil.Uint64(0)
	}

	newsletterModel, err := ToNewsletterModel(n)
	if err != nil {
		return 0, err
	}

	if err := r.baseRepo.Create(ctx, newsletterModel); err != nil {
		return 0, err
	}

	n.ID = newsletterModel.ID

	return newsletterModel.GetID(), nil
}

func (r *newsletterRepo) GetByID(ctx context.Context, id uint64) (*entity.Newsletter, error) {
	newsletter := new(Newsletter)

	if err := r.baseRepo.Get(ctx, newsletter, &Filter{
		Conditions: []*Condition{
			{
				Field: "id",
				Value: id,
				Op:    OpEq,
			},
		},
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNewsletterNotFound
		}
		return nil, err
	}

	return ToNewsletter(newsletter)
}

func (r *newsletterRepo) GetManyByStatus(ctx context.Context, status entity.NewsletterStatus, p *Pagination) ([]*entity.Newsletter, *Pagination, error) {
	res, pagination, err := r.baseRepo.GetMany(ctx, new(Newsletter), &Filter{
		Conditions: []*Condition{
			{
				Field: "status",
				Value: uint32(status),
				Op:    OpEq,
			},
		},
	})
	if err != nil {
		return nil, nil, err
	}

	newsletters := make([]*entity.Newsletter, 0, len(res))
	for _, r := range res {
		newsletter, err := ToNewsletter(r.(*Newsletter))
		if err != nil {
			return nil, nil, err
		}
		newsletters = append(newsletters, newsletter)
	}

	return newsletters, pagination, nil
}

func (r *newsletterRepo) UpdateVersioned(ctx context.Context, n *entity.Newsletter) error {
	newsletterModel, err := ToNewsletterModel(n)
	if err != nil {
		return err
	}

	var (
		version = n.GetVersion()
		next    = version + 1
	)

	// maps so that zero values are written
	affected, err := r.baseRepo.UpdateWhere(ctx, new(Newsletter), &Filter{
		Conditions: []*Condition{
			{
				Field:         "id",
				Value:         n.GetID(),
				Op:            OpEq,
				NextLogicalOp: LogicalOpAnd,
			},
			{
				Field: "version",
				Value: version,
				Op:    OpEq,
			},
		},
	}, map[string]interface{}{
		"subject":         newsletterModel.Subject,
		"content":         newsletterModel.Content,
		"status":          newsletterModel.Status,
		"recipient_count": newsletterModel.RecipientCount,
		"settings":        newsletterModel.Settings,
		"sent_at":         newsletterModel.SentAt,
		"version":         next,
		"update_time":     newsletterModel.UpdateTime,
	})
	if err != nil {
		return err
	}

	if affected == 0 {
		return ErrVersionConflict
	}

	n.Version = goutil.Uint64(next)

	return nil
}

func ToNewsletterModel(n *entity.Newsletter) (*Newsletter, error) {
	var settings *string
	if n.Settings != nil {
		b, err := json.Marshal(n.Settings)
		if err != nil {
			return nil, err
		}
		settings = goutil.String(string(b))
	}

	return &Newsletter{
		ID:             n.ID,
		Subject:        n.Subject,
		Content:        n.Content,
		Status:         goutil.Uint32(uint32(n.GetStatus())),
		RecipientCount: n.RecipientCount,
		Settings:       settings,
		SentAt:         n.SentAt,
		Version:        n.Version,
		CreateTime:     n.CreateTime,
		UpdateTime:     n.UpdateTime,
	}, nil
}

func ToNewsletter(newsletter *Newsletter) (*entity.Newsletter, error) {
	var settings *entity.SendSettings
	if newsletter.GetSettings() != "" {
		settings = new(entity.SendSettings)
		if err := json.Unmarshal([]byte(newsletter.GetSettings()), settings); err != nil {
			return nil, err
		}
	}

	return &entity.Newsletter{
		ID:             newsletter.ID,
		Subject:        newsletter.Subject,
		Content:        newsletter.Content,
		Status:         entity.NewsletterStatus(newsletter.GetStatus()),
		RecipientCount: newsletter.RecipientCount,
		Settings:       settings,
		SentAt:         newsletter.SentAt,
		Version:        newsletter.Version,
		CreateTime:     newsletter.CreateTime,
		UpdateTime:     newsletter.UpdateTime,
	}, nil
}
