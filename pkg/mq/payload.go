package mq

type Payload uint32

const (
	PayloadUnknown Payload = iota
	PayloadNewsletterEvent
)

var Payloads = map[Payload]string{
	PayloadNewsletterEvent: "newsletter_event",
}

type EventType string

const (
	EventSendStarted     EventType = "send_started"
	EventSent            EventType = "sent"
	EventPartiallyFailed EventType = "partially_failed"
	EventRetryStarted    EventType = "retry_started"
	EventRecovered       EventType = "recovered"
)

// NewsletterEvent is published on every lifecycle milestone of a newsletter.
type NewsletterEvent struct {
	NewsletterID *uint64   `json:"newsletter_id"`
	Type         EventType `json:"type"`
	Status       string    `json:"status"`
	TotalSent    int       `json:"total_sent"`
	TotalFailed  int       `json:"total_failed"`
	RetryStage   int       `json:"retry_stage,omitempty"`
	Action       string    `json:"action,omitempty"`
	Note         string    `json:"note,omitempty"`
	Time         uint64    `json:"time"`
}

func (m *NewsletterEvent) GetNewsletterID() uint64 {
	if m != nil && m.NewsletterID != nil {
		return *m.NewsletterID
	}
	return 0
}
