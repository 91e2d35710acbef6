package newsletter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter/entity"
	"newsletter/pkg/mq"
)

// partiallyFailed sends to 4 recipients of which the last two fail once.
func partiallyFailed(t *testing.T, f *fixture) (uint64, []string) {
	var (
		id         = f.createDraft(t)
		recipients = addrs("m", 4)
	)
	f.transport.failTimes(1, recipients[2], recipients[3])

	n, err := f.sender.Send(f.ctx, id, recipients)
	require.NoError(t, err)
	require.Equal(t, entity.NewsletterStatusPartiallyFailed, n.GetStatus())

	return id, recipients
}

func TestRecovery_ResetRetry(t *testing.T) {
	f := newFixture(t, Config{ChunkSize: 2})
	id, recipients := partiallyFailed(t, f)

	job, err := f.retry.Start(f.ctx, id)
	require.NoError(t, err)
	// the wave dies before delivering anything
	job.Release()

	status, err := f.recovery.Status(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "retrying", status.Status)
	assert.True(t, status.RetryInProgress)
	assert.Equal(t, 1, status.CurrentRetryStage)
	assert.Equal(t, []entity.RecoveryAction{
		entity.RecoveryActionResetRetry,
		entity.RecoveryActionMarkComplete,
		entity.RecoveryActionResetToDraft,
	}, status.AvailableActions)

	n, err := f.recovery.Recover(f.ctx, id, entity.RecoveryActionResetRetry, "worker died")
	require.NoError(t, err)

	s := n.GetSettings()
	assert.Equal(t, entity.NewsletterStatusPartiallyFailed, n.GetStatus())
	assert.False(t, s.RetryInProgress)
	assert.Equal(t, 0, s.CurrentRetryStage)
	assert.Empty(t, s.RetryResults)
	assert.Equal(t, []string{recipients[2], recipients[3]}, s.FailedEmails)
	assert.Equal(t, "worker died", *s.RecoveryNote)
	assert.Equal(t, entity.RecoveryActionResetRetry, *s.RecoveryAction)
	assert.NotNil(t, s.RecoveredAt)

	n, err = f.retry.Retry(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.NewsletterStatusSent, n.GetStatus())
	assert.Equal(t, 1, n.GetSettings().CurrentRetryStage)
	assert.Equal(t, 4, n.GetSettings().TotalSent)
}

func TestRecovery_MarkComplete(t *testing.T) {
	f := newFixture(t, Config{ChunkSize: 2})
	id, _ := partiallyFailed(t, f)

	n, err := f.recovery.Recover(f.ctx, id, entity.RecoveryActionMarkComplete, "")
	require.NoError(t, err)

	assert.Equal(t, entity.NewsletterStatusSent, n.GetStatus())
	assert.NotNil(t, n.SentAt)
	// counts are left as they were
	assert.Equal(t, 2, n.GetSettings().TotalSent)
	assert.Equal(t, 2, n.GetSettings().TotalFailed)

	status := ToStatus(n)
	assert.Empty(t, status.AvailableActions)
	assert.Equal(t, n.GetSettings().LastActivity(), status.LastActivity)
	assert.Equal(t, *n.GetSettings().RecoveredAt, status.LastActivity)

	_, err = f.recovery.Recover(f.ctx, id, entity.RecoveryActionMarkComplete, "")
	assert.ErrorIs(t, err, entity.ErrInvalidRecoveryAction)

	types := f.publisher.types()
	assert.Equal(t, mq.EventRecovered, types[len(types)-1])
}

func TestRecovery_ResetToDraftFromStuckSend(t *testing.T) {
	var (
		f  = newFixture(t, Config{ChunkSize: 2})
		id = f.createDraft(t)
	)
	f.transport.setUnavailable(true)

	_, err := f.sender.Send(f.ctx, id, addrs("m", 3))
	require.Error(t, err)

	n, err := f.recovery.Recover(f.ctx, id, entity.RecoveryActionResetToDraft, "provider outage")
	require.NoError(t, err)

	s := n.GetSettings()
	assert.Equal(t, entity.NewsletterStatusDraft, n.GetStatus())
	assert.Equal(t, uint64(0), n.GetRecipientCount())
	assert.Equal(t, 0, s.TotalChunks)
	assert.Empty(t, s.CompletedChunks)
	assert.Empty(t, s.FailedEmails)
	assert.Nil(t, s.StartedAt)
	assert.Equal(t, "Branch Secretary", s.GetPreferences().GetSenderName())
	assert.Equal(t, []string{"tester@example.org"}, s.GetPreferences().GetTestRecipients())

	status := ToStatus(n)
	assert.False(t, status.HasSettings)
	assert.Empty(t, status.AvailableActions)

	f.transport.setUnavailable(false)
	n, err = f.sender.Send(f.ctx, id, addrs("m", 3))
	require.NoError(t, err)
	assert.Equal(t, entity.NewsletterStatusSent, n.GetStatus())
}

func TestRecovery_RejectedActions(t *testing.T) {
	var (
		f  = newFixture(t, Config{})
		id = f.createDraft(t)
	)

	for _, action := range entity.RecoveryActions {
		_, err := f.recovery.Recover(f.ctx, id, action, "")
		assert.ErrorIs(t, err, entity.ErrInvalidRecoveryAction, action)
	}

	id, _ = partiallyFailed(t, f)
	_, err := f.recovery.Recover(f.ctx, id, entity.RecoveryActionResetRetry, "")
	assert.ErrorIs(t, err, entity.ErrInvalidRecoveryAction)

	_, err = f.recovery.Recover(f.ctx, id, entity.RecoveryAction("rewind"), "")
	assert.ErrorIs(t, err, entity.ErrInvalidRecoveryAction)

	assert.Equal(t, entity.NewsletterStatusPartiallyFailed, f.get(t, id).GetStatus())
}

func TestRecovery_StatusOfDraft(t *testing.T) {
	var (
		f  = newFixture(t, Config{})
		id = f.createDraft(t)
	)

	status, err := f.recovery.Status(f.ctx, id)
	require.NoError(t, err)

	assert.Equal(t, &Status{
		ID:               id,
		Status:           "draft",
		AvailableActions: []entity.RecoveryAction{},
	}, status)
}
