package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
)

func newRun(t *testing.T, startedAt time.Time) *scanning.Run {
	t.Helper()
	target, err := scanning.NewTarget("https://example.com")
	require.NoError(t, err)
	return scanning.NewRun(scanning.RunKindCrawl, target, startedAt)
}

func TestRunStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	now := time.Now()

	run := newRun(t, now)
	require.NoError(t, store.CreateRun(ctx, run))

	run.Complete(12, now.Add(time.Second))
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, scanning.RunStatusCompleted, got.Status)
	assert.Equal(t, 12, got.ResultCount)

	got.ResultCount = 99
	again, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, again.ResultCount, "returned runs must be copies")
}

func TestRunStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()

	_, err := store.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, scanning.ErrRunNotFound)

	assert.ErrorIs(t, store.UpdateRun(ctx, newRun(t, time.Now())), scanning.ErrRunNotFound)
}

func TestRunStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	base := time.Now()

	var ids []uuid.UUID
	for i := range 5 {
		run := newRun(t, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.CreateRun(ctx, run))
		ids = append(ids, run.ID)
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   []uuid.UUID
	}{
		{name: "first_page", limit: 2, offset: 0, want: []uuid.UUID{ids[4], ids[3]}},
		{name: "second_page", limit: 2, offset: 2, want: []uuid.UUID{ids[2], ids[1]}},
		{name: "partial_last_page", limit: 2, offset: 4, want: []uuid.UUID{ids[0]}},
		{name: "past_end", limit: 2, offset: 10, want: []uuid.UUID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(ctx, tt.limit, tt.offset)
			require.NoError(t, err)

			got := make([]uuid.UUID, 0, len(runs))
			for _, r := range runs {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
