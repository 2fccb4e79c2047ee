package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler runs maintenance jobs on five-field cron specs. A job that
// is still running when its next tick fires is skipped for that tick.
type CronScheduler struct {
	cron       *cron.Cron
	runTimeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewCronScheduler(runTimeout time.Duration) *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron:       cron.New(cron.WithParser(parser)),
		runTimeout: runTimeout,
		entries:    make(map[string]cron.EntryID),
		ctx:        context.Background(),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	entryID, err := c.cron.AddFunc(spec, c.wrap(job, spec))
	if err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}
	c.entries[name] = entryID
	logger.Info("job scheduled")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx != nil {
		c.mu.Lock()
		c.ctx = ctx
		c.mu.Unlock()
	}
	c.cron.Start()
}

// Stop waits for running jobs to return.
func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *CronScheduler) baseContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		logger := logutil.GetLogger(context.Background()).With(
			zap.String("job", job.Name()),
			zap.String("spec", spec),
		)
		if !running.CompareAndSwap(false, true) {
			logger.Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		ctx := c.baseContext()
		if c.runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.runTimeout)
			defer cancel()
		}
		start := time.Now()
		logger.Info("job started")
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		logger.Info("job finished", zap.Duration("duration", elapsed))
	}
}
