package resourcemgmt

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJobRunner_RunsPeriodically(t *testing.T) {
	jr := NewJobRunner(zap.NewNop())
	var runs atomic.Int32

	err := jr.Every(JobConfig{Name: "tick", Interval: 5 * time.Millisecond}, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, jr.Stop(context.Background()))

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestJobRunner_RunAtStart(t *testing.T) {
	jr := NewJobRunner(zap.NewNop())
	ran := make(chan struct{}, 1)

	err := jr.Every(JobConfig{Name: "sweep", Interval: time.Hour, RunAtStart: true}, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run at start")
	}
	require.NoError(t, jr.Stop(context.Background()))
}

func TestJobRunner_SkipsOverlappingRun(t *testing.T) {
	jr := NewJobRunner(zap.NewNop())
	cfg := JobConfig{Name: "slow", Interval: time.Hour}

	release := make(chan struct{})
	started := make(chan struct{})
	go jr.RunOnce(cfg, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ran := jr.RunOnce(cfg, func(ctx context.Context) error {
		t.Error("overlapping run must not start")
		return nil
	})
	assert.False(t, ran)
	assert.Contains(t, jr.Running(), "slow")

	close(release)
	require.Eventually(t, func() bool { return len(jr.Running()) == 0 }, time.Second, time.Millisecond)
}

func TestJobRunner_ErrorsAndPanicsAreContained(t *testing.T) {
	jr := NewJobRunner(zap.NewNop())

	assert.True(t, jr.RunOnce(JobConfig{Name: "fails", Interval: time.Minute}, func(ctx context.Context) error {
		return errors.New("database unavailable")
	}))
	assert.True(t, jr.RunOnce(JobConfig{Name: "panics", Interval: time.Minute}, func(ctx context.Context) error {
		panic("nil map")
	}))
	assert.Empty(t, jr.Running())
}

func TestJobRunner_TimeoutBoundsRun(t *testing.T) {
	jr := NewJobRunner(zap.NewNop())

	var deadline time.Time
	jr.RunOnce(JobConfig{Name: "bounded", Interval: time.Hour, Timeout: 50 * time.Millisecond}, func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	})
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
}

func TestJobRunner_StopWaitsAndRejectsNewJobs(t *testing.T) {
	jr := NewJobRunner(zap.NewNop())
	started := make(chan struct{})

	err := jr.Every(JobConfig{Name: "long", Interval: time.Millisecond, Timeout: time.Hour}, func(ctx context.Context) error {
		select {
		case <-started:
		default:
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, jr.Stop(context.Background()))
	assert.ErrorIs(t, jr.Every(JobConfig{Name: "late", Interval: time.Second}, func(context.Context) error { return nil }), ErrStopped)
}

func TestJobRunner_InvalidInterval(t *testing.T) {
	jr := NewJobRunner(zap.NewNop())
	assert.Error(t, jr.Every(JobConfig{Name: "zero"}, func(context.Context) error { return nil }))
}
