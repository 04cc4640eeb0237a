package services

import (
	"context"
	"sync"
	"time"

	"github.com/fleetwatch/backend/internal/utils"
	"go.uber.org/zap"
)

// Job is one periodic batch task of the monitoring engine
type Job struct {
	Name   string
	Period time.Duration
	Run    func(ctx context.Context) error
}

// Scheduler drives the batch jobs on fixed tickers, one goroutine per job.
// Job errors are logged and the ticker keeps going; a failed batch is
// retried naturally on the next tick because due entities stay due.
type Scheduler struct {
	logger *utils.Logger
	jobs   []Job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for the given jobs
func NewScheduler(jobs []Job, logger *utils.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.Named("scheduler"),
		jobs:   jobs,
	}
}

// Start launches every job loop
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
	}
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Job loop stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				s.logger.Error("Job run failed",
					zap.String("job", job.Name),
					zap.Error(err))
			}
		}
	}
}

// Stop cancels all job loops and waits for them to finish
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}
