package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/internal/infra/storage"
)

var _ scanning.RunRepository = (*runStore)(nil)

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// runStore implements scanning.RunRepository using PostgreSQL.
type runStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewRunStore creates a PostgreSQL-backed run repository with tracing.
func NewRunStore(pool *pgxpool.Pool, tracer trace.Tracer) *runStore {
	return &runStore{db: pool, tracer: tracer}
}

const (
	createRunSQL = `
INSERT INTO scan_runs (id, kind, target, status, result_count, error, started_at, finished_at)
VALUES ($1, $2, $3, $4::scan_run_status, $5, $6, $7, $8)`

	updateRunSQL = `
UPDATE scan_runs
SET status = $2::scan_run_status,
    result_count = $3,
    error = $4,
    finished_at = $5,
    updated_at = NOW()
WHERE id = $1`

	selectRunColumns = `id, kind, target, status::text, result_count, error, started_at, finished_at`

	getRunSQL = `SELECT ` + selectRunColumns + ` FROM scan_runs WHERE id = $1`

	listRunsSQL = `SELECT ` + selectRunColumns + `
FROM scan_runs
ORDER BY started_at DESC, id
LIMIT $1 OFFSET $2`
)

// CreateRun persists a new run.
func (r *runStore) CreateRun(ctx context.Context, run *scanning.Run) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", run.ID.String()),
		attribute.String("kind", run.Kind.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_run", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, createRunSQL,
			pgtype.UUID{Bytes: run.ID, Valid: true},
			run.Kind.String(),
			run.Target,
			run.Status.String(),
			int32(run.ResultCount),
			nullableText(run.Error),
			pgtype.Timestamptz{Time: run.StartedAt, Valid: true},
			nullableTime(run),
		)
		if err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		return nil
	})
}

// UpdateRun stores the current state of an existing run.
func (r *runStore) UpdateRun(ctx context.Context, run *scanning.Run) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", run.ID.String()),
		attribute.String("status", run.Status.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_run", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, updateRunSQL,
			pgtype.UUID{Bytes: run.ID, Valid: true},
			run.Status.String(),
			int32(run.ResultCount),
			nullableText(run.Error),
			nullableTime(run),
		)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return scanning.ErrRunNotFound
		}
		return nil
	})
}

// GetRun retrieves a run by id.
func (r *runStore) GetRun(ctx context.Context, id uuid.UUID) (*scanning.Run, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("run_id", id.String()))

	var run *scanning.Run
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_run", dbAttrs, func(ctx context.Context) error {
		var err error
		run, err = scanRun(r.db.QueryRow(ctx, getRunSQL, pgtype.UUID{Bytes: id, Valid: true}))
		if errors.Is(err, pgx.ErrNoRows) {
			return scanning.ErrRunNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}
		return nil
	})
	return run, err
}

// ListRuns returns runs newest first.
func (r *runStore) ListRuns(ctx context.Context, limit, offset int) ([]*scanning.Run, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	var runs []*scanning.Run
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_runs", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, listRunsSQL, int32(limit), int32(offset))
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		defer rows.Close()

		runs = make([]*scanning.Run, 0, limit)
		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return fmt.Errorf("failed to scan run: %w", err)
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	return runs, err
}

func scanRun(row pgx.Row) (*scanning.Run, error) {
	var (
		id          pgtype.UUID
		kind        string
		target      string
		status      string
		resultCount int32
		errText     pgtype.Text
		startedAt   pgtype.Timestamptz
		finishedAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &kind, &target, &status, &resultCount, &errText, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	run := &scanning.Run{
		ID:          uuid.UUID(id.Bytes),
		Kind:        scanning.RunKind(kind),
		Target:      target,
		Status:      scanning.RunStatus(status),
		ResultCount: int(resultCount),
		Error:       errText.String,
		StartedAt:   startedAt.Time,
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return run, nil
}

func nullableText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nullableTime(run *scanning.Run) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: run.FinishedAt, Valid: !run.FinishedAt.IsZero()}
}
