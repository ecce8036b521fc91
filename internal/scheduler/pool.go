package scheduler

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (s *Scheduler) spawnWorkerPool(ctx context.Context) {
	s.logger.Info("Spawning worker pool",
		slog.Int("concurrency", s.concurrency),
		slog.String("instance_id", s.instanceID),
	)

	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (s *Scheduler) workerLoop(ctx context.Context, workerNum int) {
	defer s.wg.Done()

	workerName := fmt.Sprintf("%s-%d", s.instanceID, workerNum)
	s.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-s.stopChan:
			s.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			s.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case job := <-s.jobsChan:
			s.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.Int64("job_id", job.ID),
				slog.String("type_id", job.TypeID),
			)

			if err := s.processJob(ctx, job); err != nil {
				s.logger.Error("Job processing failed",
					slog.String("worker_name", workerName),
					slog.Int64("job_id", job.ID),
					slog.Any("error", err),
				)
			}
			s.finished(job)
		}
	}
}
