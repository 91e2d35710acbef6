package handler

import (
	"net/http"

	"github.com/gorilla/schema"
	"github.com/rs/zerolog/log"

	"newsletter/analytics"
	"newsletter/entity"
	"newsletter/pkg/goutil"
)

// transparent 1x1 GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

var queryDecoder = schema.NewDecoder()

func init() {
	queryDecoder.IgnoreUnknownKeys(true)
}

type TrackClickRequest struct {
	Token    string `schema:"token"`
	URL      string `schema:"url"`
	LinkType string `schema:"link_type"`
	LinkID   string `schema:"link_id"`
}

func (req *TrackClickRequest) GetLinkType() entity.LinkType {
	if goutil.ContainsStr(entity.LinkTypes, req.LinkType) {
		return entity.LinkType(req.LinkType)
	}
	return entity.LinkTypeContent
}

type TrackOpenRequest struct {
	Token string `schema:"token"`
}

// TrackingHandler serves the public links embedded in sent mail. Recording
// failures never change the response.
type TrackingHandler struct {
	recorder *analytics.Recorder
}

func NewTrackingHandler(recorder *analytics.Recorder) *TrackingHandler {
	return &TrackingHandler{
		recorder: recorder,
	}
}

// Click records the click and redirects to the target url. Targets that
// are not absolute http(s) urls are refused.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := new(TrackClickRequest)
	if err := queryDecoder.Decode(req, r.URL.Query()); err != nil {
		log.Ctx(ctx).Warn().Msgf("decode click query failed, err: %v", err)
	}

	// non-http(s) targets get a 400 so the link is never an open redirect
	if _, err := analytics.NormalizeURL(req.URL); err != nil {
		log.Ctx(ctx).Warn().Msgf("refuse click redirect, url: %q, err: %v", req.URL, err)
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	h.recorder.RecordClick(ctx, req.Token, req.URL, req.GetLinkType(), req.LinkID, analytics.FingerprintFromRequest(r))

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, req.URL, http.StatusFound)
}

// Open records the open and always answers with the pixel.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := new(TrackOpenRequest)
	if err := queryDecoder.Decode(req, r.URL.Query()); err != nil {
		log.Ctx(ctx).Warn().Msgf("decode open query failed, err: %v", err)
	}

	h.recorder.RecordOpen(ctx, req.Token, analytics.FingerprintFromRequest(r))

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pixelGIF); err != nil {
		log.Ctx(ctx).Error().Msgf("write pixel failed, err: %v", err)
	}
}
