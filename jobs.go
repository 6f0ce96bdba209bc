package postkit

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// Job is a unit of background work run on a cron schedule.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// JobRunner schedules jobs and never runs two instances of the same job at
// once; a tick that finds its job still running is skipped.
type JobRunner struct {
	cron    *cron.Cron
	running mapset.Set[string]
	log     logrus.FieldLogger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewJobRunner returns a stopped runner.
func NewJobRunner(log logrus.FieldLogger) *JobRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		cron:    cron.New(),
		running: mapset.NewSet[string](),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add schedules job. An invalid schedule is returned as an error.
func (r *JobRunner) Add(job Job) error {
	return r.cron.AddFunc(job.Schedule(), func() { r.RunNow(job) })
}

// RunNow runs job synchronously unless it is already running. It reports
// whether the job ran.
func (r *JobRunner) RunNow(job Job) bool {
	log := r.log.WithField("job", job.Name())
	if !r.running.Add(job.Name()) {
		log.Warn("job is still running, skipping")
		return false
	}
	defer r.running.Remove(job.Name())

	start := time.Now()
	if err := job.Run(r.ctx); err != nil {
		log.WithError(err).Error("job failed")
		return true
	}
	log.WithField("took", time.Since(start)).Debug("job finished")
	return true
}

// Start begins running scheduled jobs in the background.
func (r *JobRunner) Start() {
	r.cron.Start()
}

// Stop halts scheduling and cancels the context of running jobs.
func (r *JobRunner) Stop() {
	r.cron.Stop()
	r.cancel()
}
