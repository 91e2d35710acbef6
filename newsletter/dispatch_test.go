package newsletter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter/dep"
)

type unreachableFor struct {
	*fakeTransport
	addrs map[string]bool
}

func (u *unreachableFor) Send(ctx context.Context, mail *dep.Mail) error {
	if u.addrs[mail.To] {
		return fmt.Errorf("%w: timeout", dep.ErrTransportUnavailable)
	}
	return u.fakeTransport.Send(ctx, mail)
}

func TestDriver_Dispatch(t *testing.T) {
	var (
		ctx   = context.Background()
		chunk = addrs("d", 9)
		mail  = &dep.Mail{NewsletterID: 1, Subject: "hi", From: &dep.Sender{Email: "from@example.org"}}
	)

	t.Run("keeps chunk order", func(t *testing.T) {
		transport := newFakeTransport()
		transport.failTimes(1, chunk[0], chunk[4], chunk[8])

		outcome, err := NewDriver(transport, 3).Dispatch(ctx, chunk, mail)
		require.NoError(t, err)
		assert.Equal(t, []string{chunk[1], chunk[2], chunk[3], chunk[5], chunk[6], chunk[7]}, outcome.Succeeded)
		assert.Equal(t, []string{chunk[0], chunk[4], chunk[8]}, outcome.Failed)
		assert.Empty(t, mail.To)
	})

	t.Run("partial unavailability is a recipient failure", func(t *testing.T) {
		transport := &unreachableFor{
			fakeTransport: newFakeTransport(),
			addrs:         map[string]bool{chunk[2]: true},
		}

		outcome, err := NewDriver(transport, 0).Dispatch(ctx, chunk, mail)
		require.NoError(t, err)
		assert.Len(t, outcome.Succeeded, 8)
		assert.Equal(t, []string{chunk[2]}, outcome.Failed)
	})

	t.Run("all unavailable", func(t *testing.T) {
		transport := newFakeTransport()
		transport.setUnavailable(true)

		outcome, err := NewDriver(transport, 2).Dispatch(ctx, chunk, mail)
		assert.ErrorIs(t, err, dep.ErrTransportUnavailable)
		assert.Nil(t, outcome)
	})

	t.Run("empty chunk", func(t *testing.T) {
		outcome, err := NewDriver(newFakeTransport(), 2).Dispatch(ctx, nil, mail)
		require.NoError(t, err)
		assert.Empty(t, outcome.Succeeded)
		assert.Empty(t, outcome.Failed)
	})
}

type countingTransport struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (c *countingTransport) Send(_ context.Context, _ *dep.Mail) error {
	c.mu.Lock()
	c.active++
	if c.active > c.maxSeen {
		c.maxSeen = c.active
	}
	c.mu.Unlock()

	time.Sleep(time.Millisecond)

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return nil
}

func (c *countingTransport) Close(_ context.Context) error {
	return nil
}

func TestDriver_DispatchBoundsConcurrency(t *testing.T) {
	transport := new(countingTransport)

	outcome, err := NewDriver(transport, 2).Dispatch(context.Background(), addrs("c", 10), &dep.Mail{})
	require.NoError(t, err)
	assert.Len(t, outcome.Succeeded, 10)
	assert.LessOrEqual(t, transport.maxSeen, 2)
}
