package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs  atomic.Int32
	block chan struct{}
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return nil
}

func TestCronScheduler_RejectsBadSpecAndDuplicates(t *testing.T) {
	s := NewCronScheduler(time.Minute)
	job := &countingJob{}
	require.Error(t, s.AddJob(job, "not a cron spec"))
	require.NoError(t, s.AddJob(job, "0 3 * * *"))
	require.Error(t, s.AddJob(job, "0 4 * * *"))
}

func TestCronScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler(0)
	job := &countingJob{block: make(chan struct{})}
	run := s.wrap(job, "* * * * *")

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	run()
	require.EqualValues(t, 1, job.runs.Load())
	close(job.block)
	<-done
	run()
	require.EqualValues(t, 2, job.runs.Load())
}
