package skyhttp

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize bounds how many tasks may sit in the queue awaiting a
// worker.
const DefaultQueueSize = 1024

// queueTask is one deferred unit of work: a closure over a Request and its
// completion callbacks.
type queueTask struct {
	run func()
}

// workerPool drains a bounded FIFO of queueTasks with a fixed set of worker
// goroutines. Shutdown semantics are best effort by design: workers check the
// stop signal before dequeuing, so tasks enqueued but not yet picked up are
// discarded, while tasks already running finish.
type workerPool struct {
	tasks   chan *queueTask
	stop    chan struct{}
	wg      sync.WaitGroup
	workers int
	active  int64
	stopped atomic.Bool
}

// newWorkerPool sizes the pool. workers <= 0 means one per CPU, queueSize <= 0
// means DefaultQueueSize.
func newWorkerPool(workers, queueSize int) *workerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &workerPool{
		tasks:   make(chan *queueTask, queueSize),
		stop:    make(chan struct{}),
		workers: workers,
	}
}

// start launches the worker goroutines.
func (w *workerPool) start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
}

func (w *workerPool) worker() {
	defer w.wg.Done()

	for {
		// Stop takes priority over pending work: a queued task must not be
		// dequeued once shutdown has begun.
		select {
		case <-w.stop:
			return
		default:
		}

		select {
		case <-w.stop:
			return
		case task := <-w.tasks:
			// The select above picks randomly when stop and tasks are both
			// ready, so re-check: a task dequeued in that window is dropped,
			// not run. A stop racing in after this point can still let one
			// task through; the drop guarantee is best effort.
			if w.stopped.Load() {
				return
			}
			atomic.AddInt64(&w.active, 1)
			task.run()
			atomic.AddInt64(&w.active, -1)
		}
	}
}

// submit enqueues a task, waking one waiting worker. It never blocks: a full
// queue or a stopped pool rejects the task with an error.
func (w *workerPool) submit(task *queueTask) error {
	if w.stopped.Load() {
		return ErrShuttingDown
	}
	select {
	case w.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// shutdown wakes all workers, lets running tasks finish, and joins every
// worker before returning. Queued-but-undequeued tasks are dropped.
func (w *workerPool) shutdown() {
	if w.stopped.Swap(true) {
		return
	}
	close(w.stop)
	w.wg.Wait()
}

// depth returns the number of tasks waiting for a worker.
func (w *workerPool) depth() int {
	return len(w.tasks)
}

// activeCount returns the number of tasks currently executing.
func (w *workerPool) activeCount() int {
	return int(atomic.LoadInt64(&w.active))
}
