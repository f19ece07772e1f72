package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
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

type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger
}

var _ Scheduler = (*CronScheduler)(nil)

func NewCronScheduler(log *zap.Logger) *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		log:     log,
	}
}

// Every builds an interval spec such as "@every 1m0s".
func Every(d time.Duration) string {
	return "@every " + d.String()
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := c.log.With(zap.String("job", name), zap.String("spec", spec))
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
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (c *CronScheduler) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// RunNow runs the named job once, outside its schedule, with the same
// overlap guard.
func (c *CronScheduler) RunNow(name string) bool {
	id, ok := c.entries[name]
	if !ok {
		return false
	}
	c.cron.Entry(id).Job.Run()
	return true
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		logger := c.log.With(
			zap.String("job", job.Name()),
			zap.String("spec", spec),
		)
		if !running.CompareAndSwap(false, true) {
			logger.Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		start := time.Now()
		logger.Debug("job started")
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		logger.Debug("job finished", zap.Duration("duration", elapsed))
	}
}
