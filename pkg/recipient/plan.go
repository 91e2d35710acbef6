package recipient

import (
	"errors"
	"fmt"
)

const DefaultChunkSize = 50

var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Plan splits recipients into ordered chunks of at most chunkSize. The
// chunks share the backing array of recipients.
func Plan(recipients []string, chunkSize int) ([][]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidChunkSize, chunkSize)
	}

	chunks := make([][]string, 0, (len(recipients)+chunkSize-1)/chunkSize)
	for start := 0; start < len(recipients); start += chunkSize {
		end := start + chunkSize
		if end > len(recipients) {
			end = len(recipients)
		}
		chunks = append(chunks, recipients[start:end:end])
	}

	return chunks, nil
}
