package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/repo"
)

// IngestCleanupJob drops READY and FAILED ingest jobs older than maxAge.
// Jobs still in flight are never touched.
type IngestCleanupJob struct {
	jobs   repo.IngestJobRepository
	maxAge time.Duration
	now    func() time.Time
}

func NewIngestCleanupJob(jobs repo.IngestJobRepository, maxAge time.Duration) *IngestCleanupJob {
	return &IngestCleanupJob{jobs: jobs, maxAge: maxAge, now: time.Now}
}

func (j *IngestCleanupJob) Name() string {
	return "ingest_cleanup"
}

func (j *IngestCleanupJob) Run(ctx context.Context) error {
	if j.jobs == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := j.now().Add(-maxAge).Unix()
	n, err := j.jobs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Debug("ingest jobs cleaned", zap.Int64("removed", n))
	return nil
}
