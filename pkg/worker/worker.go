package worker

import (
	"errors"
	"sync"

	"github.com/nimasrn/card-ledger/pkg/logger"
)

var ErrStopped = errors.New("worker manager stopped")

type WorkerHandler = func(workerIndex int, job interface{})

type WorkerManager struct {
	numberOfWorker int
	jobChannel     chan interface{}
	quit           chan struct{}
	stopOnce       sync.Once
	do             WorkerHandler
	waiter         *sync.WaitGroup
}

// NewWorkerManager
// is a fixed pool of goroutines reading from one buffered job channel.
// Publish jobs with Enqueue or TryEnqueue; Exit stops every worker once the
// job it is running returns. Jobs still buffered at that point are dropped.
func NewWorkerManager(bufferSize, numberOfWorkers int) *WorkerManager {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	return &WorkerManager{
		numberOfWorker: numberOfWorkers,
		jobChannel:     make(chan interface{}, bufferSize),
		quit:           make(chan struct{}),
		waiter:         &sync.WaitGroup{},
	}
}

// Pending reports how many jobs wait in the buffer.
func (w *WorkerManager) Pending() int {
	return len(w.jobChannel)
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue blocks until the job is buffered or the manager stops.
func (w *WorkerManager) Enqueue(val interface{}) error {
	select {
	case <-w.quit:
		return ErrStopped
	default:
	}
	select {
	case w.jobChannel <- val:
		return nil
	case <-w.quit:
		return ErrStopped
	}
}

// TryEnqueue buffers the job only when there is room.
func (w *WorkerManager) TryEnqueue(val interface{}) bool {
	select {
	case <-w.quit:
		return false
	default:
	}
	select {
	case w.jobChannel <- val:
		return true
	default:
		return false
	}
}

// Start
// runs the workers and blocks until Exit is called and every worker has
// returned.
func (w *WorkerManager) Start() error {
	if w.do == nil {
		return errors.New("worker handler is not set")
	}
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case <-w.quit:
					return
				default:
				}
				select {
				case job := <-w.jobChannel:
					w.do(index, job)
				case <-w.quit:
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()

	return ErrStopped
}

// Exit
// asks every worker to return. Safe to call more than once.
func (w *WorkerManager) Exit() {
	w.stopOnce.Do(func() {
		logger.Info("worker manager is shutting down", "workers", w.numberOfWorker, "dropped", len(w.jobChannel))
		close(w.quit)
	})
}
