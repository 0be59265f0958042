package downloader

import (
	"context"
	"fmt"
	"sync"

	"scrapix/pkg/logger"
	"scrapix/pkg/result"
)

// DownloadJob is one result queued for download. Index is its position in
// the caller's batch.
type DownloadJob struct {
	Index  int
	Result result.Result
}

// DownloadResult pairs a job with what happened to it.
type DownloadResult struct {
	Job     DownloadJob
	Outcome Outcome
}

// Handler performs a single job.
type Handler func(ctx context.Context, job DownloadJob) Outcome

// WorkerPool runs a fixed number of workers over a job queue.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan DownloadJob
	resultQueue chan DownloadResult
	wg          sync.WaitGroup
	ctx         context.Context
	handle      Handler
	logger      logger.Logger
}

// NewWorkerPool creates a pool. Jobs are handed to handle.
func NewWorkerPool(numWorkers int, handle Handler, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan DownloadJob, numWorkers*2),
		resultQueue: make(chan DownloadResult, numWorkers),
		handle:      handle,
		logger:      log,
	}
}

// Start launches the workers. ctx is passed to every job and stops
// Submit from blocking once it ends.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.ctx = ctx
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for queued jobs to finish and then closes
// the result channel.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.logger.Debug("Worker pool stopped")
}

// Submit queues a job.
func (wp *WorkerPool) Submit(job DownloadJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results yields one DownloadResult per submitted job. It must be drained.
func (wp *WorkerPool) Results() <-chan DownloadResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		wp.logger.DebugWithFields("Worker processing job", map[string]interface{}{
			"worker_id": id,
			"index":     job.Index,
			"url":       job.Result.URL(),
		})
		wp.resultQueue <- DownloadResult{Job: job, Outcome: wp.handle(wp.ctx, job)}
	}
}
