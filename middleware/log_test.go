package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	var (
		buf    = new(bytes.Buffer)
		logger = zerolog.New(buf)
		logIDs []string
	)

	h := Log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/t/open", nil)
		req = req.WithContext(logger.WithContext(req.Context()))
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)

	var messages []string
	for _, line := range lines {
		entry := make(map[string]string)
		require.NoError(t, json.Unmarshal(line, &entry))
		assert.NotEmpty(t, entry["log_id"])
		logIDs = append(logIDs, entry["log_id"])
		messages = append(messages, entry["message"])
	}

	// one id per request, shared by every line of it
	assert.Equal(t, logIDs[0], logIDs[1])
	assert.Equal(t, logIDs[2], logIDs[3])
	assert.NotEqual(t, logIDs[0], logIDs[2])
	assert.Equal(t, "inside", messages[0])
	assert.Contains(t, messages[1], "status: 418")
}
