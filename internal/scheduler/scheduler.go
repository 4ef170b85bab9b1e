// Package scheduler runs the alert jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rxtech-lab/argo-signals/internal/logger"
	"go.uber.org/zap"
)

// Default schedules, with seconds. Intraday fires every 15 minutes through both
// sessions and the end of day job shortly after the close.
const (
	IntradaySpec = "0 */15 9-11,13-14 * * MON-FRI"
	EODSpec      = "0 2 15 * * MON-FRI"
)

// Job is one scheduled run. It receives a context bounded by the job timeout.
type Job func(ctx context.Context) error

type Runner struct {
	cron    *cron.Cron
	log     *logger.Logger
	loc     *time.Location
	timeout time.Duration
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a runner whose specs are read in loc. A timeout of zero leaves jobs unbounded.
func New(log *logger.Logger, loc *time.Location, timeout time.Duration) *Runner {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if loc == nil {
		loc = time.UTC
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(log.Logger))

	baseCtx, cancel := context.WithCancel(context.Background())

	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		log:     log,
		loc:     loc,
		timeout: timeout,
		baseCtx: baseCtx,
		cancel:  cancel,
	}
}

// Add registers job under name. An overlapping tick is skipped while the previous
// run of the same job is still going.
func (r *Runner) Add(name, spec string, job Job) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		r.run(name, job)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule %s with %q: %w", name, spec, err)
	}

	r.log.Info("Job scheduled", zap.String("job", name), zap.String("spec", spec), zap.String("timezone", r.loc.String()))

	return id, nil
}

func (r *Runner) run(name string, job Job) {
	ctx := r.baseCtx
	if r.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()

	r.log.Info("Job started", zap.String("job", name))

	if err := job(ctx); err != nil {
		r.log.Error("Job failed", zap.String("job", name), zap.Duration("elapsed", time.Since(started)), zap.Error(err))

		return
	}

	r.log.Info("Job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(started)))
}

// Next returns the next activation of an entry.
func (r *Runner) Next(id cron.EntryID) time.Time {
	return r.cron.Entry(id).Next
}

// Start runs the schedule until ctx is done, then cancels running jobs and waits
// for them to return.
func (r *Runner) Start(ctx context.Context) {
	r.log.Info("Scheduler started")
	r.cron.Start()

	<-ctx.Done()

	r.cancel()

	<-r.cron.Stop().Done()

	r.log.Info("Scheduler stopped")
}
