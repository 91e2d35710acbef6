package router

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/rs/zerolog/log"

	"newsletter/pkg/errutil"
	"newsletter/pkg/httputil"
)

// to decode url params
var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

var (
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrCannotDecodeUrlParams  = errors.New("cannot decode url params")
)

type Middleware interface {
	Handle(http.Handler) http.Handler
}

type Handler struct {
	Req        interface{}
	Res        interface{}
	HandleFunc func(ctx context.Context, req interface{}, res interface{}) error

	reqT  reflect.Type
	respT reflect.Type
}

type HttpRoute struct {
	Method      string
	Prefix      string
	Path        string
	Handler     Handler
	Middlewares []Middleware
}

type HttpRouter struct {
	*mux.Router
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{
		Router: mux.NewRouter(),
	}
}

func (r *HttpRouter) RegisterHttpRoute(hr *HttpRoute) {
	// save req and res type
	hr.Handler.reqT = reflect.TypeOf(hr.Handler.Req).Elem()
	hr.Handler.respT = reflect.TypeOf(hr.Handler.Res).Elem()

	r.register(hr.Method, hr.Prefix+hr.Path, hr.Handler, hr.Middlewares)
}

// RegisterRawRoute mounts a plain handler for endpoints that do not answer
// with the JSON envelope.
func (r *HttpRouter) RegisterRawRoute(method, path string, h http.Handler, middlewares ...Middleware) {
	r.register(method, path, h, middlewares)
}

func (r *HttpRouter) register(method, path string, h http.Handler, middlewares []Middleware) {
	// calling chain
	chain := h

	// wrap middlewares from right to left
	for i := len(middlewares) - 1; i >= 0; i-- {
		chain = middlewares[i].Handle(chain)
	}

	// path before method, otherwise mux reports a wrong method as 404
	r.Path(path).Methods(method).Handler(chain)
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := reflect.New(h.reqT).Interface()
	res := reflect.New(h.respT).Interface()

	if err := decoder.Decode(req, r.URL.Query()); err != nil {
		log.Ctx(ctx).Error().Msgf("decode url query params error: %v", err)
		httputil.ReturnServerResponse(w, nil, errutil.BadRequestError(ErrCannotDecodeUrlParams))
		return
	}

	if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
		if !hasContentType(r, "application/json") {
			httputil.ReturnServerResponse(w, nil, errutil.BadRequestError(ErrUnsupportedContentType))
			return
		}
		if err := httputil.ReadJsonBody(r, req); err != nil {
			log.Ctx(ctx).Error().Msgf("read json body error: %v", err)
			httputil.ReturnServerResponse(w, nil, errutil.BadRequestError(fmt.Errorf("invalid json body: %w", err)))
			return
		}
	}

	err := h.HandleFunc(ctx, req, res)
	if err != nil {
		httputil.ReturnServerResponse(w, nil, err)
		return
	}

	httputil.ReturnServerResponse(w, res, nil)
}

func hasContentType(r *http.Request, mimetype string) bool {
	contentType := r.Header.Get("Content-type")
	if contentType == "" {
		return mimetype == "application/octet-stream"
	}

	for _, v := range strings.Split(contentType, ",") {
		t, _, err := mime.ParseMediaType(v)
		if err != nil {
			break
		}
		if t == mimetype {
			return true
		}
	}
	return false
}
