package newsletter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter/entity"
)

func TestRetry_RejectedStartReleasesLease(t *testing.T) {
	f := newFixture(t, Config{ChunkSize: 2})
	id, _ := partiallyFailed(t, f)

	job, err := f.retry.Start(f.ctx, id)
	require.NoError(t, err)
	job.Release()

	// already retrying
	for i := 0; i < 2; i++ {
		_, err = f.retry.Start(f.ctx, id)
		assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)
	}

	release, err := f.sm.AcquireSendLease(id)
	require.NoError(t, err)
	release()

	assert.Equal(t, entity.NewsletterStatusRetrying, f.get(t, id).GetStatus())
}

func TestRetry_DraftIsRejected(t *testing.T) {
	var (
		f  = newFixture(t, Config{})
		id = f.createDraft(t)
	)

	_, err := f.retry.Retry(f.ctx, id)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)
	assert.Equal(t, entity.NewsletterStatusDraft, f.get(t, id).GetStatus())
}
