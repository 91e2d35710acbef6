package entity

type Subscriber struct {
	ID         *uint64 `json:"id,omitempty"`
	Email      *string `json:"email,omitempty"`
	CreateTime *uint64 `json:"create_time,omitempty"`
}

func (e *Subscriber) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}
