// Package runner executes simulations: one at a time, as a bounded batch,
// or as tracked background jobs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/metrics"
	"github.com/newthinker/portsim/internal/portfolio"
)

// DefaultWorkers bounds concurrent runs in a batch.
const DefaultWorkers = 4

const jobType = "simulation"

// Loader materialises the market data for a request.
type Loader interface {
	Load(ctx context.Context, req portfolio.Request) (portfolio.MarketData, error)
}

// Recorder receives run metrics.
type Recorder interface {
	RecordRun(run metrics.Run)
	SetJobsActive(jobType string, count int)
}

// Archiver persists finished results.
type Archiver interface {
	SaveResult(ctx context.Context, id string, res *portfolio.Result) error
}

type nopRecorder struct{}

func (nopRecorder) RecordRun(metrics.Run)     {}
func (nopRecorder) SetJobsActive(string, int) {}

// Runner loads data and runs the simulator.
type Runner struct {
	loader   Loader
	sim      *portfolio.Simulator
	store    *Store
	workers  int
	timeout  time.Duration
	recorder Recorder
	archive  Archiver
	logger   *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds concurrent runs in RunAll.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithTimeout bounds each background job.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithStore tracks jobs in s.
func WithStore(s *Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithRecorder reports runs to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithArchive saves every completed result to a.
func WithArchive(a Archiver) Option {
	return func(r *Runner) { r.archive = a }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a Runner.
func New(loader Loader, sim *portfolio.Simulator, opts ...Option) *Runner {
	r := &Runner{
		loader:   loader,
		sim:      sim,
		workers:  DefaultWorkers,
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = NewStore(100, time.Hour)
	}
	if r.workers <= 0 {
		r.workers = DefaultWorkers
	}
	return r
}

// Store returns the job store.
func (r *Runner) Store() *Store { return r.store }

// Run loads data for req and simulates it. A cancelled run returns the
// partial result together with the context error.
func (r *Runner) Run(ctx context.Context, req portfolio.Request) (*portfolio.Result, error) {
	start := time.Now()

	data, err := r.loader.Load(ctx, req)
	if err != nil {
		r.record(nil, err, start)
		return nil, err
	}
	res, err := r.sim.Run(ctx, req, data)
	r.record(res, err, start)
	return res, err
}

func (r *Runner) record(res *portfolio.Result, err error, start time.Time) {
	run := metrics.Run{Status: string(statusOf(err)), Duration: time.Since(start).Seconds()}
	if res != nil {
		run.Days = len(res.Snapshots)
		run.Rebalances = len(res.Rebalances)
		run.Delistings = len(res.Delisted)
		run.Purchases = len(res.Purchases)
	}
	r.recorder.RecordRun(run)
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusComplete
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// Task is one named request in a batch.
type Task struct {
	Name    string
	Request portfolio.Request
}

// Outcome is the result of one Task. Err is set when the run failed;
// failures never stop the rest of the batch.
type Outcome struct {
	Task   Task
	JobID  string
	Result *portfolio.Result
	Err    error
}

// RunAll runs tasks with at most the configured number in flight and
// returns one outcome per task in input order.
func (r *Runner) RunAll(ctx context.Context, tasks []Task) []Outcome {
	out := make([]Outcome, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, task := range tasks {
		job := r.store.Create(task.Name)
		out[i] = Outcome{Task: task, JobID: job.ID}
		g.Go(func() error {
			out[i].Result, out[i].Err = r.execute(gctx, job.ID, task.Request)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Submit starts req in the background and returns the tracked job.
func (r *Runner) Submit(name string, req portfolio.Request) Job {
	job := r.store.Create(name)
	go func() {
		ctx := context.Background()
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		r.execute(ctx, job.ID, req)
	}()
	return job
}

// execute runs req under job id, keeping the store and gauges current.
func (r *Runner) execute(ctx context.Context, id string, req portfolio.Request) (*portfolio.Result, error) {
	r.store.Update(id, func(j *Job) { j.Status = StatusRunning })
	r.recorder.SetJobsActive(jobType, r.store.Active())

	res, err := r.Run(ctx, req)
	if err == nil && r.archive != nil {
		if aerr := r.archive.SaveResult(ctx, id, res); aerr != nil {
			r.logger.Warn("archiving result failed", zap.String("job_id", id), zap.Error(aerr))
		}
	}

	r.store.Update(id, func(j *Job) {
		j.Status = statusOf(err)
		j.Result = res
		if err != nil {
			j.Error = core.AsError(err, core.ErrSimulationFailed)
		}
	})
	r.recorder.SetJobsActive(jobType, r.store.Active())

	if err != nil {
		r.logger.Warn("simulation failed", zap.String("job_id", id), zap.Error(err))
		return res, fmt.Errorf("job %s: %w", id, err)
	}
	r.logger.Info("simulation finished",
		zap.String("job_id", id),
		zap.Float64("final_value", res.Stats.FinalValue),
		zap.Float64("cumulative_return", res.Stats.CumulativeReturn),
	)
	return res, nil
}
