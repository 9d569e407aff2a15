package scanning

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

// mockEngine implements scanning.Engine for testing.
type mockEngine struct{ mock.Mock }

func (m *mockEngine) LaunchCrawl(ctx context.Context, target scanning.Target) (scanning.ScanHandle, error) {
	args := m.Called(ctx, target)
	return args.Get(0).(scanning.ScanHandle), args.Error(1)
}

func (m *mockEngine) CrawlStatus(ctx context.Context, h scanning.ScanHandle) (int, error) {
	args := m.Called(ctx, h)
	return args.Int(0), args.Error(1)
}

func (m *mockEngine) CrawlResults(ctx context.Context, h scanning.ScanHandle) ([]string, error) {
	args := m.Called(ctx, h)
	if urls := args.Get(0); urls != nil {
		return urls.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEngine) LaunchAjaxCrawl(ctx context.Context, target scanning.Target) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

func (m *mockEngine) AjaxStatus(ctx context.Context) (scanning.AjaxStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(scanning.AjaxStatus), args.Error(1)
}

func (m *mockEngine) AjaxResults(ctx context.Context, offset, count int) ([]string, error) {
	args := m.Called(ctx, offset, count)
	if urls := args.Get(0); urls != nil {
		return urls.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEngine) LaunchActiveScan(ctx context.Context, target scanning.Target) (scanning.ScanHandle, error) {
	args := m.Called(ctx, target)
	return args.Get(0).(scanning.ScanHandle), args.Error(1)
}

func (m *mockEngine) ActiveScanStatus(ctx context.Context, h scanning.ScanHandle) (int, error) {
	args := m.Called(ctx, h)
	return args.Int(0), args.Error(1)
}

func (m *mockEngine) ListHosts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if hosts := args.Get(0); hosts != nil {
		return hosts.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEngine) ListAlerts(ctx context.Context, target scanning.Target) ([]scanning.Alert, error) {
	args := m.Called(ctx, target)
	if alerts := args.Get(0); alerts != nil {
		return alerts.([]scanning.Alert), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockInjectionTool implements scanning.InjectionTool for testing.
type mockInjectionTool struct{ mock.Mock }

func (m *mockInjectionTool) Run(ctx context.Context, target scanning.Target) (string, error) {
	args := m.Called(ctx, target)
	return args.String(0), args.Error(1)
}

// mockReportArchive implements scanning.ReportArchive for testing.
type mockReportArchive struct{ mock.Mock }

func (m *mockReportArchive) Store(ctx context.Context, key string, report string) error {
	args := m.Called(ctx, key, report)
	return args.Error(0)
}

// mockRunRepository implements scanning.RunRepository for testing.
type mockRunRepository struct{ mock.Mock }

func (m *mockRunRepository) CreateRun(ctx context.Context, run *scanning.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockRunRepository) UpdateRun(ctx context.Context, run *scanning.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockRunRepository) GetRun(ctx context.Context, id uuid.UUID) (*scanning.Run, error) {
	args := m.Called(ctx, id)
	if run := args.Get(0); run != nil {
		return run.(*scanning.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRunRepository) ListRuns(ctx context.Context, limit, offset int) ([]*scanning.Run, error) {
	args := m.Called(ctx, limit, offset)
	if runs := args.Get(0); runs != nil {
		return runs.([]*scanning.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingPublisher captures published run events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []scanning.RunEvent
	err    error
}

func (p *recordingPublisher) PublishRunEvent(_ context.Context, event scanning.RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []scanning.RunEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]scanning.RunEventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

// fakeClock is a manually advanced timeProvider.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeWaiter advances its clock instead of sleeping and records every wait.
type fakeWaiter struct {
	clock *fakeClock

	mu    sync.Mutex
	waits []time.Duration
}

func (w *fakeWaiter) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	w.clock.Advance(d)
	return nil
}

func (w *fakeWaiter) total() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	var sum time.Duration
	for _, d := range w.waits {
		sum += d
	}
	return sum
}

func (w *fakeWaiter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waits)
}

// noOpOrchestrationMetrics discards every measurement.
type noOpOrchestrationMetrics struct{}

func (noOpOrchestrationMetrics) ObservePhaseDuration(context.Context, string, time.Duration) {}
func (noOpOrchestrationMetrics) IncPollTicks(context.Context, string)                         {}
func (noOpOrchestrationMetrics) IncAjaxTimeouts(context.Context)                              {}
func (noOpOrchestrationMetrics) IncRunsStarted(context.Context, string)                       {}
func (noOpOrchestrationMetrics) IncRunsFailed(context.Context, string)                        {}
func (noOpOrchestrationMetrics) ObserveFindings(context.Context, string, int)                 {}
func (noOpOrchestrationMetrics) IncEngineCalls(context.Context, string)                       {}
func (noOpOrchestrationMetrics) IncEngineErrors(context.Context, string)                      {}

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

// newTestSequencer builds a sequencer whose waits advance a fake clock.
func newTestSequencer(engine scanning.Engine, policy PhasePolicy) (*PhaseSequencer, *fakeWaiter) {
	clock := newFakeClock()
	waiter := &fakeWaiter{clock: clock}

	seq := NewPhaseSequencer(engine, policy, noOpOrchestrationMetrics{}, noop.NewTracerProvider().Tracer("test"), testLogger())
	seq.waiter = waiter
	seq.timeProvider = clock

	return seq, waiter
}

func mustTarget(raw string) scanning.Target {
	t, err := scanning.NewTarget(raw)
	if err != nil {
		panic(err)
	}
	return t
}
