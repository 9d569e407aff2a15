package scanning

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "http_url", raw: "http://example.com", want: "http://example.com"},
		{name: "https_with_path", raw: "https://example.com/app?id=1", want: "https://example.com/app?id=1"},
		{name: "trims_whitespace", raw: "  http://example.com  ", want: "http://example.com"},
		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace_only", raw: "   ", wantErr: true},
		{name: "no_scheme", raw: "example.com", wantErr: true},
		{name: "ftp_scheme", raw: "ftp://example.com", wantErr: true},
		{name: "missing_host", raw: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := NewTarget(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTarget))
				assert.True(t, target.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, target.String())
		})
	}
}

func TestParseAjaxStatus(t *testing.T) {
	assert.Equal(t, AjaxStatusRunning, ParseAjaxStatus("running"))
	assert.Equal(t, AjaxStatusStopped, ParseAjaxStatus("stopped"))
	assert.Equal(t, AjaxStatusIdle, ParseAjaxStatus("NOT_STARTED"))
	assert.Equal(t, AjaxStatusIdle, ParseAjaxStatus(""))
}

func TestRunLifecycle(t *testing.T) {
	target, err := NewTarget("http://example.com")
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	run := NewRun(RunKindFullScan, target, start)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Zero(t, run.Duration())

	run.Complete(3, start.Add(time.Minute))
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.ResultCount)
	assert.Equal(t, time.Minute, run.Duration())

	failed := NewRun(RunKindInjection, target, start)
	failed.Fail(ErrSubprocessFailure, start.Add(time.Second))
	assert.Equal(t, RunStatusFailed, failed.Status)
	assert.Equal(t, ErrSubprocessFailure.Error(), failed.Error)

	evt := NewRunEvent(EventRunFailed, failed, start.Add(time.Second))
	assert.Equal(t, failed.ID.String(), evt.RunID)
	assert.Equal(t, RunKindInjection, evt.Kind)
	assert.Equal(t, "http://example.com", evt.Target)
}
