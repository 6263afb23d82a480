package jobs

import (
	"context"
	"log"
	"time"
)

// JobProcessor handles one batch of pending work per poll cycle.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker polls a JobProcessor on a fixed interval until stopped. It is used
// to backfill embeddings for items whose synchronous embedding failed.
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a worker that invokes processor every pollInterval.
func NewWorker(processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the polling loop. It processes one batch immediately so jobs
// left over from a previous run are not delayed by a full interval.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("embedding worker started, poll interval %v", w.pollInterval)

	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("embedding worker: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("embedding worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("embedding worker stopped")
			return
		case <-ticker.C:
			if err := w.processor.ProcessJobs(ctx); err != nil {
				log.Printf("embedding worker: %v", err)
			}
		}
	}
}

// Stop signals the loop to exit and blocks until it has drained.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
