package recipient

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recipients(n int) []string {
	r := make([]string, n)
	for i := range r {
		r[i] = fmt.Sprintf("member%d@example.org", i)
	}
	return r
}

func TestPlanPreservesEveryRecipient(t *testing.T) {
	for _, n := range []int{0, 1, 7, 49, 50, 51, 120, 333} {
		for _, c := range []int{1, 3, 10, 50, 500} {
			in := recipients(n)

			chunks, err := Plan(in, c)
			require.NoError(t, err)
			assert.Len(t, chunks, (n+c-1)/c, "n=%d c=%d", n, c)

			flat := make([]string, 0, n)
			for _, chunk := range chunks {
				assert.LessOrEqual(t, len(chunk), c)
				assert.NotEmpty(t, chunk)
				flat = append(flat, chunk...)
			}
			assert.Equal(t, in, append([]string{}, flat...), "n=%d c=%d", n, c)
		}
	}
}

func TestPlanHappyPathSizes(t *testing.T) {
	chunks, err := Plan(recipients(120), 50)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 50)
	assert.Len(t, chunks[1], 50)
	assert.Len(t, chunks[2], 20)
}

func TestPlanRejectsNonPositiveChunkSize(t *testing.T) {
	for _, c := range []int{0, -1} {
		_, err := Plan(recipients(3), c)
		assert.ErrorIs(t, err, ErrInvalidChunkSize)
	}
}
