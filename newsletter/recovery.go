package newsletter

import (
	"context"

	"github.com/rs/zerolog/log"

	"newsletter/entity"
)

type Status struct {
	ID                uint64                  `json:"id"`
	Status            string                  `json:"status"`
	HasSettings       bool                    `json:"has_settings"`
	RetryInProgress   bool                    `json:"retry_in_progress"`
	FailedEmailsCount int                     `json:"failed_emails_count"`
	CurrentRetryStage int                     `json:"current_retry_stage"`
	LastActivity      uint64                  `json:"last_activity"`
	AvailableActions  []entity.RecoveryAction `json:"available_actions"`
	RecipientCount    uint64                  `json:"recipient_count"`
	TotalChunks       int                     `json:"total_chunks"`
	CompletedChunks   int                     `json:"completed_chunks"`
	TotalSent         int                     `json:"total_sent"`
	TotalFailed       int                     `json:"total_failed"`
	SentAt            *uint64                 `json:"sent_at,omitempty"`
}

// RecoveryOperator applies audited manual overrides to stuck or failed sends.
type RecoveryOperator struct {
	sm *StateMachine
}

func NewRecoveryOperator(sm *StateMachine) *RecoveryOperator {
	return &RecoveryOperator{sm: sm}
}

func (o *RecoveryOperator) Recover(ctx context.Context, id uint64, action entity.RecoveryAction, note string) (*entity.Newsletter, error) {
	n, err := o.sm.Recover(ctx, id, action, note)
	if err != nil {
		log.Ctx(ctx).Warn().Msgf("recovery rejected, newsletter_id: %d, action: %s, err: %v", id, action, err)
		return nil, err
	}

	log.Ctx(ctx).Info().Msgf("newsletter recovered, newsletter_id: %d, action: %s, status: %s, note: %q",
		id, action, n.GetStatus(), note)

	return n, nil
}

func (o *RecoveryOperator) Status(ctx context.Context, id uint64) (*Status, error) {
	n, err := o.sm.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToStatus(n), nil
}

func ToStatus(n *entity.Newsletter) *Status {
	s := n.GetSettings()

	status := &Status{
		ID:                n.GetID(),
		Status:            n.GetStatus().String(),
		HasSettings:       s.HasProgress(),
		RetryInProgress:   s.IsRetryInProgress(),
		FailedEmailsCount: len(s.GetFailedEmails()),
		CurrentRetryStage: s.GetCurrentRetryStage(),
		LastActivity:      s.LastActivity(),
		AvailableActions:  entity.AvailableActions(n.GetStatus()),
		RecipientCount:    n.GetRecipientCount(),
		SentAt:            n.SentAt,
	}
	if s != nil {
		status.TotalChunks = s.TotalChunks
		status.CompletedChunks = len(s.CompletedChunks)
		status.TotalSent = s.TotalSent
		status.TotalFailed = s.TotalFailed
	}

	return status
}
