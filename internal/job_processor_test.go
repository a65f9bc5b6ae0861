package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestProcessJobsParallelism ensures that the maximum number of running
// jobs does not exceed the number of workers and that results keep their
// order.
func TestProcessJobsParallelism(t *testing.T) {
	simulatedJobDuration := 5 * time.Millisecond
	jobsNumber := 10

	tests := []struct {
		Description string
		Workers     int
	}{{
		Description: "sequential jobs",
		Workers:     1,
	}, {
		Description: "parallel jobs",
		Workers:     3,
	}}

	for _, test := range tests {
		t.Run(test.Description, func(t *testing.T) {
			var lock sync.Mutex
			running := 0
			maxRunning := 0

			job := func(_ context.Context, i int) (int, error) {
				lock.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				lock.Unlock()

				// Later jobs finish first.
				time.Sleep(simulatedJobDuration * time.Duration(jobsNumber-i) / 5)

				lock.Lock()
				running--
				lock.Unlock()
				return i * i, nil
			}

			results, err := ProcessJobs(context.Background(), test.Workers, jobsNumber, job)
			require.NoError(t, err)
			require.Equal(t, []int{0, 1, 4, 9, 16, 25, 36, 49, 64, 81}, results)
			require.Equal(t, test.Workers, maxRunning)
		})
	}
}

// TestProcessJobsStopsOnError makes sure queued jobs are skipped once a job
// fails.
func TestProcessJobsStopsOnError(t *testing.T) {
	errStop := errors.New("stop")
	var processed atomic.Int32

	job := func(_ context.Context, i int) (struct{}, error) {
		processed.Add(1)
		if i == 4 {
			return struct{}{}, errStop
		}
		return struct{}{}, nil
	}

	results, err := ProcessJobs(context.Background(), 1, 10, job)
	require.ErrorIs(t, err, errStop)
	require.Nil(t, results)
	require.Equal(t, int32(5), processed.Load())
}

func TestProcessJobsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProcessJobs(ctx, 2, 3, func(context.Context, int) (int, error) {
		t.Error("job should not run")
		return 0, nil
	})
	require.ErrorContains(t, err, "processing canceled")
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessJobsNoJobs(t *testing.T) {
	results, err := ProcessJobs(context.Background(), 4, 0, func(context.Context, int) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	require.Empty(t, results)
}
