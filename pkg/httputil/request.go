package httputil

import (
	"encoding/json"
	"io"
	"net/http"
)

const (
	MaxBodySize = 1 << 20 // 1MB
)

func ReadJsonBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	d := json.NewDecoder(io.LimitReader(r.Body, MaxBodySize))
	d.DisallowUnknownFields()

	return d.Decode(dst)
}
