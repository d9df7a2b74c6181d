package runner

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// maxConcurrentRuns bounds simultaneous row-runs so batch execution respects
// the external store's concurrent-query limits.
const maxConcurrentRuns = 10

// taskPool runs enqueued tasks with bounded concurrency. Task failures are
// logged here; callers fold them into their own per-item reports.
type taskPool struct {
	semaphore chan struct{}
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func newTaskPool(poolSize int, logger *slog.Logger) *taskPool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &taskPool{
		semaphore: make(chan struct{}, poolSize),
		logger:    logger,
	}
}

func (tp *taskPool) enqueue(id string, task func() error) {
	tp.wg.Add(1)

	go func() {
		tp.semaphore <- struct{}{}

		defer func() {
			<-tp.semaphore
			tp.wg.Done()
		}()

		tp.logger.Debug("executing task", slog.String("task_id", id))
		start := time.Now()

		if err := task(); err != nil {
			tp.logger.Error("task failed", slog.String("task_id", id), slog.String("error", err.Error()))
		}

		tp.logger.Debug("completed task",
			slog.String("task_id", id),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
	}()
}

func (tp *taskPool) join() {
	tp.wg.Wait()
}
