package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/nholik/munin-update/internal/dump"
)

// Worker performs the remote collection for one host.
type Worker interface {
	ID() string
	Collect(ctx context.Context) (map[string]*dump.ServiceConfig, error)
}

// Result is the outcome of one worker's collection. Services is nil when
// Err is set.
type Result struct {
	ID       string
	Elapsed  time.Duration
	Services map[string]*dump.ServiceConfig
	Err      error
}

// Sink records one worker's result. Dispatchers invoke the sink exactly once
// per worker and always from the dispatching goroutine, so implementations
// need no internal locking.
type Sink interface {
	Record(Result)
}

// Dispatcher runs a set of workers to completion, reporting each outcome to
// the sink.
type Dispatcher interface {
	Dispatch(ctx context.Context, workers []Worker, sink Sink)
}

// New returns the dispatcher for the given mode.
func New(parallel bool) Dispatcher {
	if parallel {
		return Parallel{}
	}
	return Sequential{}
}

// Sequential executes workers strictly in submission order in the calling
// goroutine, recording each result before the next worker starts.
type Sequential struct{}

// Dispatch implements Dispatcher.
func (Sequential) Dispatch(ctx context.Context, workers []Worker, sink Sink) {
	for _, worker := range workers {
		sink.Record(run(ctx, worker))
	}
}

// Parallel executes each worker in its own goroutine. Results are funneled
// through a channel drained only by the calling goroutine, so the sink keeps
// a single writer even though completion order is unspecified.
type Parallel struct{}

// Dispatch implements Dispatcher.
func (Parallel) Dispatch(ctx context.Context, workers []Worker, sink Sink) {
	results := make(chan Result, len(workers))

	var wg sync.WaitGroup
	for _, worker := range workers {
		wg.Add(1)
		go func(worker Worker) {
			defer wg.Done()
			results <- run(ctx, worker)
		}(worker)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		sink.Record(result)
	}
}

func run(ctx context.Context, worker Worker) Result {
	start := time.Now()
	services, err := worker.Collect(ctx)
	return Result{
		ID:       worker.ID(),
		Elapsed:  time.Since(start),
		Services: services,
		Err:      err,
	}
}
