package mid

import (
	"context"
	"net/http"

	"github.com/ahrav/webscan-armada/internal/api/errs"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
	"github.com/ahrav/webscan-armada/pkg/web"
)

// Errors logs every error response. Server side failures are logged at error
// level, client mistakes at info.
func Errors(log *logger.Logger) web.MidFunc {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)

			apiErr, ok := resp.(*errs.Error)
			if !ok {
				return resp
			}

			if apiErr.HTTPStatus() >= http.StatusInternalServerError {
				log.Error(ctx, "handled error during request",
					"code", apiErr.Code.Value(),
					"err", apiErr.Message,
					"path", r.URL.Path,
				)
			} else {
				log.Info(ctx, "request rejected",
					"code", apiErr.Code.Value(),
					"err", apiErr.Message,
					"path", r.URL.Path,
				)
			}

			return apiErr
		}
	}
}
