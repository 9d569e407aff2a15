package mid

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/ahrav/webscan-armada/internal/api/errs"
	"github.com/ahrav/webscan-armada/pkg/web"
)

// Panics recovers from panics in handlers and converts them into an internal
// error response.
func Panics() web.MidFunc {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) (resp web.Encoder) {
			defer func() {
				if rec := recover(); rec != nil {
					resp = errs.Newf(errs.Internal, "PANIC [%v] TRACE[%s]", rec, string(debug.Stack()))
				}
			}()

			return next(ctx, r)
		}
	}
}
