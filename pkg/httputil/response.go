package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"newsletter/pkg/errutil"
)

type Response struct {
	Code  int         `json:"code"`
	Error string      `json:"error,omitempty"`
	Body  interface{} `json:"body,omitempty"`
}

func ReturnServerResponse(w http.ResponseWriter, res interface{}, resErr error) {
	code, errMsg := errutil.ParseHttpError(resErr)

	resp := &Response{
		Code:  code,
		Error: errMsg,
		Body:  res,
	}

	js, err := json.Marshal(resp)
	if err != nil {
		log.Error().Msgf("marshal server response failed, err: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if _, err := w.Write(js); err != nil {
		log.Error().Msgf("fail to return server response, err: %v", err)
	}
}
