package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"newsletter/pkg/logutil"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Log attaches a log_id to every request context and logs the outcome.
func Log(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			start = time.Now()
			ctx   = logutil.WithLogID(r.Context(), uuid.New().String())
			rec   = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		)

		next.ServeHTTP(rec, r.WithContext(ctx))

		log.Ctx(ctx).Info().Msgf("%s %s, status: %d, latency: %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
