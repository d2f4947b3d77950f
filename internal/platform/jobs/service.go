// Package jobs runs background maintenance work on a single worker.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RunFunc does one unit of work. details is logged with the outcome.
type RunFunc func(ctx context.Context) (details any, err error)

// Recorder receives the outcome of every run.
type Recorder interface {
	JobRun(jobType, status string, duration time.Duration)
}

type Service struct {
	logger   *slog.Logger
	recorder Recorder
	queue    chan job
	wg       sync.WaitGroup
}

type job struct {
	Type string
	Run  RunFunc
}

// New returns a Service with a queue of size. recorder may be nil.
func New(logger *slog.Logger, recorder Recorder, size int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 16
	}
	return &Service{
		logger:   logger,
		recorder: recorder,
		queue:    make(chan job, size),
	}
}

// Start launches the worker. It stops when ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
}

// Every enqueues run each interval until ctx is done. A non-positive
// interval schedules nothing.
func (s *Service) Every(ctx context.Context, jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Enqueue(jobType, run)
			}
		}
	}()
}

// Enqueue hands run to the worker, dropping it when the queue is full.
func (s *Service) Enqueue(jobType string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		s.logger.Warn("job queue full", "jobType", jobType)
		return false
	}
}

// RunNow runs synchronously on the caller's goroutine.
func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// Wait blocks until the worker and schedulers have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				s.logger.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	started := time.Now()
	details, err := j.Run(ctx)
	elapsed := time.Since(started)

	status := "completed"
	if err != nil {
		status = "failed"
	}
	if s.recorder != nil {
		s.recorder.JobRun(j.Type, status, elapsed)
	}
	s.logger.Info("job run", "jobType", j.Type, "status", status, "durationMs", elapsed.Milliseconds(), "details", details)
	return details, err
}
