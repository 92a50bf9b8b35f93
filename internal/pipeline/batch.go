package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"technotaggr/internal/logging"
	"technotaggr/internal/models"
	"technotaggr/internal/services"
)

// EngineFactory creates the engine owned by one worker. Engines that
// implement io.Closer are closed when the worker finishes.
type EngineFactory func(worker int) Engine

// Batch analyzes many files with a bounded pool of workers. Every worker
// owns its engine and runs one file at a time.
type Batch struct {
	Decoder   Decoder
	NewEngine EngineFactory
	Workers   int
	Logger    *slog.Logger
	// OnResult, when set, is called once per finished file. Calls are
	// serialized but arrive in completion order.
	OnResult func(index int, result Result)
}

// Run analyzes files and returns their results in input order. A file that
// fails does not stop the batch. Files never started because ctx was
// cancelled carry a single file-level failure.
func (b *Batch) Run(ctx context.Context, files []string, classifiers []*models.ClassifierConfig) []Result {
	results := make([]Result, len(files))
	if len(files) == 0 {
		return results
	}
	logger := logging.NewComponentLogger(b.Logger, "batch")
	workers := max(b.Workers, 1)
	workers = min(workers, len(files))

	jobs := make(chan int)
	started := make([]bool, len(files))
	var report sync.Mutex
	var wg sync.WaitGroup
	for w := range workers {
		wg.Go(func() {
			engine := b.NewEngine(w)
			defer closeEngine(engine, logger)
			p := New(b.Decoder, engine, b.Logger)
			workerCtx := services.WithWorker(ctx, w)
			for idx := range jobs {
				res := p.Run(workerCtx, files[idx], classifiers)
				results[idx] = res
				if b.OnResult != nil {
					report.Lock()
					b.OnResult(idx, res)
					report.Unlock()
				}
			}
		})
	}

dispatch:
	for idx := range files {
		select {
		case jobs <- idx:
			started[idx] = true
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for idx, ok := range started {
		if ok {
			continue
		}
		err := ctx.Err()
		results[idx] = Result{
			AudioFile: files[idx],
			Failures: []Failure{{
				AudioFile: files[idx],
				Kind:      services.KindOf(err),
				Message:   "not analyzed: " + err.Error(),
				Err:       err,
			}},
		}
	}
	return results
}

func closeEngine(engine Engine, logger *slog.Logger) {
	closer, ok := engine.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Debug("engine close failed", logging.Error(err))
	}
}
