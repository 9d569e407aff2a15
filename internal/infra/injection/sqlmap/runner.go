// Package sqlmap runs the sqlmap command-line tool as a subprocess.
package sqlmap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
	"github.com/ahrav/webscan-armada/pkg/metrics"
)

// Config locates the tool. When Python is empty, Script is executed directly.
type Config struct {
	Python  string
	Script  string
	Timeout time.Duration
}

// Runner implements scanning.InjectionTool. Runs share nothing but the tool
// itself; sqlmap keeps per-target session state under its own output
// directory, so concurrent runs against one target may observe each other.
type Runner struct {
	cfg     Config
	metrics metrics.ProcessMetrics
	tracer  trace.Tracer
	logger  *logger.Logger
}

var _ scanning.InjectionTool = (*Runner)(nil)

// NewRunner creates a Runner for cfg. A nil pm disables process metrics.
func NewRunner(cfg Config, pm metrics.ProcessMetrics, tracer trace.Tracer, logger *logger.Logger) *Runner {
	if pm == nil {
		pm = untracked{}
	}
	return &Runner{
		cfg:     cfg,
		metrics: pm,
		tracer:  tracer,
		logger:  logger.With("component", "sqlmap_runner"),
	}
}

type untracked struct{}

func (untracked) TrackProcess(f func() error) error { return f() }

// toolArgs are passed on every invocation: fingerprint the DBMS and run
// non-interactively.
var toolArgs = []string{"--current-db", "--current-user", "--banner", "--batch"}

const waitDelay = 2 * time.Second

// Run executes the tool against target and returns its standard output.
// A non-zero exit, a timeout or empty output fail with ErrSubprocessFailure.
func (r *Runner) Run(ctx context.Context, target scanning.Target) (string, error) {
	ctx, span := r.tracer.Start(ctx, "sqlmap_runner.run",
		trace.WithAttributes(attribute.String("target", target.String())))
	defer span.End()

	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	name, args := r.command(target)
	cmd := exec.CommandContext(runCtx, name, args...)
	// Children of a killed tool may hold the pipes open.
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := r.metrics.TrackProcess(cmd.Run)
	span.SetAttributes(
		attribute.Int64("duration_ms", time.Since(start).Milliseconds()),
		attribute.Int("stdout_bytes", stdout.Len()),
	)

	if err != nil {
		err = r.runError(ctx, runCtx, err, &stderr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if strings.TrimSpace(stdout.String()) == "" {
		err := fmt.Errorf("%w: tool produced no output", scanning.ErrSubprocessFailure)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	r.logger.Debug(ctx, "sqlmap finished", "target", target.String(), "bytes", stdout.Len(), "duration", time.Since(start))
	return stdout.String(), nil
}

func (r *Runner) command(target scanning.Target) (string, []string) {
	args := make([]string, 0, len(toolArgs)+3)
	name := r.cfg.Script
	if r.cfg.Python != "" {
		name = r.cfg.Python
		args = append(args, r.cfg.Script)
	}
	args = append(args, "-u", target.String())
	args = append(args, toolArgs...)
	return name, args
}

// runError maps a failed run. ctx is the caller's context and runCtx the one
// carrying the configured tool timeout, if any.
func (r *Runner) runError(ctx, runCtx context.Context, err error, stderr *bytes.Buffer) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	} else if ctxErr != nil {
		return fmt.Errorf("%w: %w", scanning.ErrSubprocessFailure, ctxErr)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out after %s", scanning.ErrSubprocessFailure, r.cfg.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: exit code %d: %s",
			scanning.ErrSubprocessFailure, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	}
	return fmt.Errorf("%w: %w", scanning.ErrSubprocessFailure, err)
}
