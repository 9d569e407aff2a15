// Package web is a small application framework on top of chi. Handlers return
// an Encoder instead of writing the response themselves.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Encoder is implemented by every value a handler can respond with.
type Encoder interface {
	Encode() (data []byte, contentType string, err error)
}

// HandlerFunc handles a request and returns the value to respond with.
type HandlerFunc func(ctx context.Context, r *http.Request) Encoder

// MidFunc wraps a HandlerFunc.
type MidFunc func(handler HandlerFunc) HandlerFunc

// Logger is used to report failures writing responses.
type Logger func(ctx context.Context, msg string, args ...any)

// App is the entry point into the web application. It is an http.Handler.
type App struct {
	log Logger
	mux *chi.Mux
	mw  []MidFunc
}

// NewApp creates an App whose Encoder handlers are wrapped by mw, outermost
// first.
func NewApp(log Logger, mw ...MidFunc) *App {
	return &App{
		log: log,
		mux: chi.NewRouter(),
		mw:  mw,
	}
}

// Use adds net/http middleware that runs for every route, including raw ones.
// It must be called before any route is registered.
func (a *App) Use(mw ...func(http.Handler) http.Handler) {
	a.mux.Use(mw...)
}

// EnableCORS answers preflight requests and sets CORS headers for origins.
// No origins, or a lone "*", allows every origin without credentials.
// Must be called before any route is registered.
func (a *App) EnableCORS(origins []string) {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	// Credentials cannot be combined with a wildcard origin.
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowCredentials = false
	}

	a.mux.Use(cors.Handler(opts))
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// HandlerFunc binds handler to method and group/path. The app middleware is
// applied outside the route specific mw.
func (a *App) HandlerFunc(method, group, path string, handler HandlerFunc, mw ...MidFunc) {
	handler = wrap(mw, handler)
	handler = wrap(a.mw, handler)
	a.bind(method, group, path, handler)
}

// HandlerFuncNoMid binds handler without the app middleware.
func (a *App) HandlerFuncNoMid(method, group, path string, handler HandlerFunc) {
	a.bind(method, group, path, handler)
}

// RawHandler binds a plain http.Handler, for responses that must be written
// incrementally.
func (a *App) RawHandler(method, group, path string, handler http.Handler) {
	a.mux.Method(method, route(group, path), handler)
}

func (a *App) bind(method, group, path string, handler HandlerFunc) {
	h := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := handler(ctx, r)
		if err := Respond(ctx, w, resp); err != nil {
			a.log(ctx, "web-respond", "ERROR", err)
		}
	}
	a.mux.MethodFunc(method, route(group, path), h)
}

func route(group, path string) string {
	if group == "" {
		return path
	}
	return "/" + strings.Trim(group, "/") + path
}

func wrap(mw []MidFunc, handler HandlerFunc) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] != nil {
			handler = mw[i](handler)
		}
	}
	return handler
}

// Param returns the named path parameter.
func Param(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// Decode reads a JSON body into v.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

type httpStatus interface {
	HTTPStatus() int
}

// NoResponse tells Respond that the handler already wrote the response.
type NoResponse struct{}

// Encode implements Encoder.
func (NoResponse) Encode() ([]byte, string, error) { return nil, "", nil }

// Respond writes data to the client. A value implementing HTTPStatus chooses
// the status code; otherwise 200 is used, or 204 for a nil Encoder.
func Respond(ctx context.Context, w http.ResponseWriter, data Encoder) error {
	if _, ok := data.(NoResponse); ok {
		return nil
	}

	if err := ctx.Err(); err != nil && errors.Is(err, context.Canceled) {
		return errors.New("client disconnected, do not send response")
	}

	status := http.StatusOK
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	if v, ok := data.(httpStatus); ok {
		status = v.HTTPStatus()
	}

	body, contentType, err := data.Encode()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return fmt.Errorf("respond: encode: %w", err)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)

	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("respond: write: %w", err)
	}
	return nil
}
