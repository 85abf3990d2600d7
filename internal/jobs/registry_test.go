package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/tts"
)

type memorySink struct {
	mu     sync.Mutex
	states []State
	err    error
}

func (m *memorySink) Record(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, job.State)
	return m.err
}

func TestRegistry_Lifecycle(t *testing.T) {
	sink := &memorySink{}
	r := NewRegistry(time.Minute, sink)

	require.NoError(t, r.Start("job-1", "es", false))
	assert.Equal(t, 1, r.Active())

	r.StateChanged("job-1", tts.StateSubmitting, nil)
	r.StateChanged("job-1", tts.StateStreaming, nil)
	r.SegmentResolved("job-1", tts.SegmentEvent{Index: 0, CallID: "a", Size: 4})
	r.SegmentResolved("job-1", tts.SegmentEvent{Index: 1, CallID: "b", Size: 8})
	r.StateChanged("job-1", tts.StateComplete, nil)
	r.Complete("job-1", "models/uploads/job-1.wav", "https://signed", time.Minute)

	job, ok := r.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, StateComplete, job.State)
	assert.Equal(t, 2, job.Segments)
	assert.Equal(t, 12, job.Bytes)
	assert.Equal(t, "https://signed", job.URL)
	assert.Equal(t, "models/uploads/job-1.wav", job.Key)
	assert.Zero(t, r.Active())

	assert.Equal(t, []State{StatePending, StateSubmitting, StateStreaming, StateStoring, StateComplete}, sink.states)
}

func TestRegistry_Fail(t *testing.T) {
	r := NewRegistry(time.Minute)
	require.NoError(t, r.Start("job-2", "fr", false))

	err := &errorsx.SegmentFetchError{CallID: "b", Status: 500}
	r.StateChanged("job-2", tts.StateFailed, err)

	job, ok := r.Get("job-2")
	require.True(t, ok)
	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, errorsx.ReasonSegmentFetch, job.Reason)
	assert.Equal(t, err.Error(), job.Error)
	assert.Empty(t, job.URL)
}

func TestRegistry_DuplicateRunningID(t *testing.T) {
	r := NewRegistry(time.Minute)
	require.NoError(t, r.Start("job-3", "es", false))
	assert.ErrorIs(t, r.Start("job-3", "es", false), ErrDuplicateJob)

	r.Fail("job-3", errors.New("boom"))
	assert.NoError(t, r.Start("job-3", "es", false), "finished ids can be reused")
}

func TestRegistry_Warmed(t *testing.T) {
	r := NewRegistry(time.Minute)
	require.NoError(t, r.Start("warm", "", true))
	r.Warmed("warm")

	job, _ := r.Get("warm")
	assert.Equal(t, StateWarming, job.State)
	assert.True(t, job.Warmup)
	assert.True(t, job.State.Terminal())
}

func TestRegistry_ExpiredURLHidden(t *testing.T) {
	now := time.Now()
	r := NewRegistry(time.Hour)
	r.clock = func() time.Time { return now }

	require.NoError(t, r.Start("job-4", "es", false))
	r.Complete("job-4", "k", "https://signed", time.Minute)

	job, _ := r.Get("job-4")
	assert.Equal(t, "https://signed", job.URL)

	now = now.Add(2 * time.Minute)
	job, _ = r.Get("job-4")
	assert.Empty(t, job.URL)
	assert.Equal(t, "k", job.Key)
}

func TestRegistry_Prune(t *testing.T) {
	now := time.Now()
	r := NewRegistry(time.Minute)
	r.clock = func() time.Time { return now }

	require.NoError(t, r.Start("done", "es", false))
	r.Fail("done", errors.New("x"))
	require.NoError(t, r.Start("running", "es", false))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, r.Prune())

	_, ok := r.Get("done")
	assert.False(t, ok)
	_, ok = r.Get("running")
	assert.True(t, ok, "running jobs are never pruned")
}

func TestRegistry_List(t *testing.T) {
	now := time.Now()
	r := NewRegistry(time.Minute)
	r.clock = func() time.Time { return now }

	require.NoError(t, r.Start("a", "es", false))
	now = now.Add(time.Second)
	require.NoError(t, r.Start("b", "es", false))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
}

func TestRegistry_SinkErrorsDoNotFail(t *testing.T) {
	r := NewRegistry(time.Minute, &memorySink{err: errors.New("disk full")})
	assert.NoError(t, r.Start("job-5", "es", false))
	r.Complete("job-5", "k", "u", time.Minute)

	job, _ := r.Get("job-5")
	assert.Equal(t, StateComplete, job.State)
}

func TestRegistry_ConcurrentJobs(t *testing.T) {
	r := NewRegistry(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "job-" + string(rune('A'+i))
			if err := r.Start(id, "es", false); err != nil {
				t.Error(err)
				return
			}
			r.StateChanged(id, tts.StateStreaming, nil)
			r.SegmentResolved(id, tts.SegmentEvent{Size: 1})
			r.Complete(id, id+".wav", "u", time.Minute)
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.List(), 50)
	assert.Zero(t, r.Active())
}
