package newsletter

import (
	"sync"

	"newsletter/dep"
	"newsletter/pkg/recipient"
)

// Job is a begun send or retry wave whose chunks are not yet delivered. It
// holds the newsletter's send lease until Release.
type Job struct {
	NewsletterID uint64
	// Stage is the retry stage of a retry wave, zero for a send.
	Stage      int
	Chunks     [][]string
	Mail       *dep.Mail
	Recipients *recipient.Result

	once    sync.Once
	release func()
}

func newJob(id uint64, release func()) *Job {
	return &Job{
		NewsletterID: id,
		release:      release,
	}
}

func (j *Job) IsRetry() bool {
	return j.Stage > 0
}

// Release gives up the send lease. Safe to call more than once.
func (j *Job) Release() {
	if j == nil {
		return
	}
	j.once.Do(func() {
		if j.release != nil {
			j.release()
		}
	})
}
