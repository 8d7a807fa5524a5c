package backup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"backup-expiry/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler(t *testing.T) {
	run := func(ctx context.Context) error { return nil }

	_, err := NewScheduler(ScheduleConfig{Cron: "not a cron"}, run, logging.NewDiscardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron schedule")

	scheduler, err := NewScheduler(ScheduleConfig{Cron: DefaultCronSpec}, run, nil)
	require.NoError(t, err)
	assert.False(t, scheduler.IsRunning())
	assert.True(t, scheduler.NextRun().IsZero())
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler, err := NewScheduler(ScheduleConfig{Cron: "30 3 * * *"}, func(ctx context.Context) error { return nil }, logging.NewDiscardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, scheduler.Start(ctx))
	assert.True(t, scheduler.IsRunning())
	assert.Error(t, scheduler.Start(ctx))

	next := scheduler.NextRun()
	require.False(t, next.IsZero())
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 30, next.Minute())

	scheduler.Stop()
	assert.False(t, scheduler.IsRunning())
	assert.True(t, scheduler.NextRun().IsZero())
}

func TestScheduler_StopsWithContext(t *testing.T) {
	scheduler, err := NewScheduler(ScheduleConfig{Cron: DefaultCronSpec}, func(ctx context.Context) error { return nil }, logging.NewDiscardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !scheduler.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestScheduler_RunNow(t *testing.T) {
	var calls int32
	var sawRunID, sawDeadline atomic.Bool

	run := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		sawRunID.Store(logging.GetRunIDFromContext(ctx) != "")
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		return errors.New("run failed")
	}

	scheduler, err := NewScheduler(ScheduleConfig{Cron: DefaultCronSpec, RunTimeout: time.Minute}, run, logging.NewDiscardLogger())
	require.NoError(t, err)

	scheduler.RunNow(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, sawRunID.Load())
	assert.True(t, sawDeadline.Load())
}
