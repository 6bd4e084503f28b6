package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type stubPurger struct {
	cutoff time.Time
	purged int64
	calls  int
}

func (s *stubPurger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	s.calls++
	return s.purged, nil
}

type stubTrimmer struct {
	cutoff  time.Time
	trimmed int64
}

func (s *stubTrimmer) TrimBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.trimmed, nil
}

type stubRebuilder struct {
	calls int
	err   error
}

func (s *stubRebuilder) Rebuild(ctx context.Context) error {
	s.calls++
	return s.err
}

type stubReloader struct {
	calls int
}

func (s *stubReloader) Reload(ctx context.Context) error {
	s.calls++
	return nil
}

func TestSessionReapUsesPayloadRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	purger := &stubPurger{purged: 7}
	job := NewSessionReaperJob(purger, nil, fixedClock{now: now})

	task, err := NewSessionReapTask(30 * 24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, now.Add(-30*24*time.Hour), purger.cutoff)
}

func TestSessionReapSkipsRetryOnBadPayload(t *testing.T) {
	purger := &stubPurger{}
	job := NewSessionReaperJob(purger, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSessionReap, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, purger.calls)

	task, err := NewSessionReapTask(0)
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, purger.calls)
}

func TestViolationTrimUsesPayloadRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trimmer := &stubTrimmer{trimmed: 3}
	job := NewViolationTrimJob(trimmer, nil, fixedClock{now: now})

	task, err := NewViolationTrimTask(90 * 24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, now.Add(-90*24*time.Hour), trimmer.cutoff)
}

func TestAuthzWarmupRebuildsBothSnapshots(t *testing.T) {
	graph := &stubRebuilder{}
	policies := &stubReloader{}
	job := NewAuthzWarmupJob(graph, policies, nil)

	require.NoError(t, job.Handle(context.Background(), NewAuthzWarmupTask()))
	require.Equal(t, 1, graph.calls)
	require.Equal(t, 1, policies.calls)
}

func TestAuthzWarmupStopsOnGraphFailure(t *testing.T) {
	graph := &stubRebuilder{err: context.DeadlineExceeded}
	policies := &stubReloader{}
	job := NewAuthzWarmupJob(graph, policies, nil)

	require.Error(t, job.Handle(context.Background(), NewAuthzWarmupTask()))
	require.Zero(t, policies.calls, "policy reload must not run after a failed graph rebuild")
}
