package session

import (
	"sync"

	"masterd/internal/logger"
)

// workerPool executes chunk-production tasks with bounded parallelism.
// A full queue applies backpressure by blocking Submit, never by failing:
// resource exhaustion throttles production requests, it does not error them.
type workerPool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	logger logger.Logger

	// stateMutex is held shared for the duration of a send so Stop cannot
	// close the channel under an in-progress Submit.
	stateMutex sync.RWMutex
	stopped    bool
}

func newWorkerPool(workers, queueDepth int, log logger.Logger) *workerPool {
	p := &workerPool{
		tasks:  make(chan func(), queueDepth),
		logger: log,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit enqueues a task, blocking while the queue is full. Returns false
// if the pool has been stopped.
func (p *workerPool) Submit(task func()) bool {
	p.stateMutex.RLock()
	defer p.stateMutex.RUnlock()
	if p.stopped {
		return false
	}
	p.tasks <- task
	return true
}

// Stop drains the queue and waits for in-flight tasks to complete. Already
// queued work still runs: production is useful regardless of who asked.
func (p *workerPool) Stop() {
	p.stateMutex.Lock()
	if p.stopped {
		p.stateMutex.Unlock()
		return
	}
	p.stopped = true
	p.stateMutex.Unlock()

	close(p.tasks)
	p.wg.Wait()
}
