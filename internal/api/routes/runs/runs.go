// Package runs exposes the scan run history.
package runs

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/webscan-armada/internal/api/errs"
	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
	"github.com/ahrav/webscan-armada/pkg/web"
)

// Service reads recorded runs.
type Service interface {
	GetRun(ctx context.Context, id uuid.UUID) (*scanning.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*scanning.Run, error)
}

// Config contains the dependencies needed by the run handlers.
type Config struct {
	Log     *logger.Logger
	Service Service
}

const defaultLimit = 20

// Routes binds the run history endpoints.
func Routes(app *web.App, cfg Config) {
	app.HandlerFunc(http.MethodGet, "v1", "/runs", list(cfg))
	app.HandlerFunc(http.MethodGet, "v1", "/runs/{id}", get(cfg))
}

type listQuery struct {
	Limit  int `query:"limit" validate:"min=1,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// runResponse is the JSON view of a run.
type runResponse struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Target      string     `json:"target"`
	Status      string     `json:"status"`
	ResultCount int        `json:"result_count"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
}

func toResponse(run *scanning.Run) runResponse {
	resp := runResponse{
		ID:          run.ID.String(),
		Kind:        run.Kind.String(),
		Target:      run.Target,
		Status:      run.Status.String(),
		ResultCount: run.ResultCount,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		DurationMS:  run.Duration().Milliseconds(),
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		resp.FinishedAt = &finished
	}
	return resp
}

// Encode implements the web.Encoder interface.
func (rr runResponse) Encode() ([]byte, string, error) {
	return web.JSON{Value: rr}.Encode()
}

// listResponse is a page of runs.
type listResponse struct {
	Runs   []runResponse `json:"runs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// Encode implements the web.Encoder interface.
func (lr listResponse) Encode() ([]byte, string, error) {
	return web.JSON{Value: lr}.Encode()
}

func list(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		q := listQuery{Limit: defaultLimit}
		values := r.URL.Query()

		if v := values.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errs.Newf(errs.InvalidArgument, "limit: %q is not a number", v)
			}
			q.Limit = n
		}
		if v := values.Get("offset"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errs.Newf(errs.InvalidArgument, "offset: %q is not a number", v)
			}
			q.Offset = n
		}
		if err := errs.Check(q); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		runs, err := cfg.Service.ListRuns(ctx, q.Limit, q.Offset)
		if err != nil {
			return errs.FromDomain(fmt.Errorf("list runs: %w", err))
		}

		resp := listResponse{Runs: make([]runResponse, 0, len(runs)), Limit: q.Limit, Offset: q.Offset}
		for _, run := range runs {
			resp.Runs = append(resp.Runs, toResponse(run))
		}
		return resp
	}
}

func get(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id, err := uuid.Parse(web.Param(r, "id"))
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "id: %s", err)
		}

		run, err := cfg.Service.GetRun(ctx, id)
		if err != nil {
			return errs.FromDomain(err)
		}
		return toResponse(run)
	}
}
