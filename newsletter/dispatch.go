package newsletter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"newsletter/dep"
)

const defaultDispatchConcurrency = 5

type Outcome struct {
	Succeeded []string
	Failed    []string
}

// Driver delivers one chunk through the mail transport.
type Driver struct {
	transport   dep.MailTransport
	concurrency int
}

func NewDriver(transport dep.MailTransport, concurrency int) *Driver {
	if concurrency <= 0 {
		concurrency = defaultDispatchConcurrency
	}
	return &Driver{
		transport:   transport,
		concurrency: concurrency,
	}
}

// Dispatch sends mail to every recipient of chunk. Per-recipient failures
// are reported in the outcome, in chunk order. When the transport could not
// be reached for any recipient, ErrTransportUnavailable is returned and no
// outcome.
func (d *Driver) Dispatch(ctx context.Context, chunk []string, mail *dep.Mail) (*Outcome, error) {
	var (
		g    = new(errgroup.Group)
		ch   = make(chan struct{}, d.concurrency)
		errs = make([]error, len(chunk))
	)

	for i, to := range chunk {
		ch <- struct{}{}

		i, to := i, to
		g.Go(func() error {
			// release go routine
			defer func() {
				<-ch
			}()

			m := *mail
			m.To = to

			errs[i] = d.transport.Send(ctx, &m)

			return nil
		})
	}

	_ = g.Wait()

	var (
		outcome = &Outcome{
			Succeeded: make([]string, 0, len(chunk)),
			Failed:    make([]string, 0),
		}
		unavailable int
	)
	for i, to := range chunk {
		err := errs[i]
		if err == nil {
			outcome.Succeeded = append(outcome.Succeeded, to)
			continue
		}

		if errors.Is(err, dep.ErrTransportUnavailable) {
			unavailable++
		}
		log.Ctx(ctx).Warn().Msgf("deliver failed, newsletter_id: %d, recipient: %s, err: %v", mail.NewsletterID, to, err)
		outcome.Failed = append(outcome.Failed, to)
	}

	if len(chunk) > 0 && unavailable == len(chunk) {
		return nil, fmt.Errorf("%w: all %d recipients unreachable", dep.ErrTransportUnavailable, len(chunk))
	}

	return outcome, nil
}
