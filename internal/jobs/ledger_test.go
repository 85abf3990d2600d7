package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-translator/internal/errorsx"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(context.Background(), filepath.Join(t.TempDir(), "data", "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_RecordAndGet(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := Job{
		ID:        "job-1",
		State:     StateStreaming,
		Language:  "es",
		Segments:  1,
		Bytes:     4,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, l.Record(ctx, job))

	job.State = StateComplete
	job.Segments = 2
	job.Bytes = 12
	job.Key = "models/uploads/job-1.wav"
	job.URL = "https://signed"
	job.UpdatedAt = created.Add(time.Second)
	require.NoError(t, l.Record(ctx, job))

	got, ok, err := l.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateComplete, got.State)
	assert.Equal(t, 2, got.Segments)
	assert.Equal(t, 12, got.Bytes)
	assert.Equal(t, "models/uploads/job-1.wav", got.Key)
	assert.Empty(t, got.URL, "signed URLs are not persisted")
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(created.Add(time.Second)))
}

func TestLedger_GetUnknown(t *testing.T) {
	_, ok, err := openTestLedger(t).Get(context.Background(), "nope")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_FailureReason(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, l.Record(ctx, Job{
		ID:        "job-2",
		State:     StateFailed,
		Warmup:    false,
		Error:     "generation deadline exceeded",
		Reason:    errorsx.ReasonTimeout,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	got, ok, err := l.Get(ctx, "job-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, errorsx.ReasonTimeout, got.Reason)
	assert.Equal(t, "generation deadline exceeded", got.Error)
}

func TestLedger_RecentAndPrune(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()
	l.clock = func() time.Time { return now }

	old := now.Add(-2 * time.Hour)
	require.NoError(t, l.Record(ctx, Job{ID: "old", State: StateComplete, CreatedAt: old, UpdatedAt: old}))
	require.NoError(t, l.Record(ctx, Job{ID: "new", State: StateComplete, Warmup: true, CreatedAt: now, UpdatedAt: now}))

	recent, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].ID)
	assert.True(t, recent[0].Warmup)

	n, err := l.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recent, err = l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].ID)
}

func TestLedger_AsRegistrySink(t *testing.T) {
	l := openTestLedger(t)
	r := NewRegistry(time.Minute, l)

	require.NoError(t, r.Start("job-3", "de", false))
	r.Complete("job-3", "k.wav", "https://signed", time.Minute)

	got, ok, err := l.Get(context.Background(), "job-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateComplete, got.State)
	assert.Equal(t, "de", got.Language)
}

func TestLedger_Ping(t *testing.T) {
	ok, err := openTestLedger(t).Ping(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenLedger_EmptyPath(t *testing.T) {
	_, err := OpenLedger(context.Background(), "")
	assert.Error(t, err)
}
