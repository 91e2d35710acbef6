package entity

type LinkType string

const (
	LinkTypeContent     LinkType = "content"
	LinkTypeButton      LinkType = "button"
	LinkTypeImage       LinkType = "image"
	LinkTypeUnsubscribe LinkType = "unsubscribe"
)

var LinkTypes = []string{
	string(LinkTypeContent),
	string(LinkTypeButton),
	string(LinkTypeImage),
	string(LinkTypeUnsubscribe),
}

type Analytics struct {
	ID              *uint64 `json:"id,omitempty"`
	NewsletterID    *uint64 `json:"newsletter_id,omitempty"`
	PixelToken      *string `json:"pixel_token,omitempty"`
	TotalRecipients *uint64 `json:"total_recipients,omitempty"`
	TotalOpens      *uint64 `json:"total_opens,omitempty"`
	UniqueOpens     *uint64 `json:"unique_opens,omitempty"`
	FirstOpen       *uint64 `json:"first_open,omitempty"`
	LastOpen        *uint64 `json:"last_open,omitempty"`
	CreateTime      *uint64 `json:"create_time,omitempty"`
	UpdateTime      *uint64 `json:"update_time,omitempty"`
}

func (e *Analytics) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Analytics) GetPixelToken() string {
	if e != nil && e.PixelToken != nil {
		return *e.PixelToken
	}
	return ""
}

func (e *Analytics) GetTotalOpens() uint64 {
	if e != nil && e.TotalOpens != nil {
		return *e.TotalOpens
	}
	return 0
}

func (e *Analytics) GetUniqueOpens() uint64 {
	if e != nil && e.UniqueOpens != nil {
		return *e.UniqueOpens
	}
	return 0
}

type LinkClick struct {
	ID           *uint64   `json:"id,omitempty"`
	AnalyticsID  *uint64   `json:"analytics_id,omitempty"`
	URL          *string   `json:"url,omitempty"`
	LinkType     *LinkType `json:"link_type,omitempty"`
	LinkID       *string   `json:"link_id,omitempty"`
	TotalClicks  *uint64   `json:"total_clicks,omitempty"`
	UniqueClicks *uint64   `json:"unique_clicks,omitempty"`
	FirstClick   *uint64   `json:"first_click,omitempty"`
	LastClick    *uint64   `json:"last_click,omitempty"`
}

func (e *LinkClick) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *LinkClick) GetURL() string {
	if e != nil && e.URL != nil {
		return *e.URL
	}
	return ""
}

func (e *LinkClick) GetTotalClicks() uint64 {
	if e != nil && e.TotalClicks != nil {
		return *e.TotalClicks
	}
	return 0
}

func (e *LinkClick) GetUniqueClicks() uint64 {
	if e != nil && e.UniqueClicks != nil {
		return *e.UniqueClicks
	}
	return 0
}
