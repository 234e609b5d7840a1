// Package pools carries the ambient performance utilities the teacher
// (github.com/searchktools/fast-server) ships alongside its core engine:
// a work-stealing goroutine pool for offloading CPU-heavy handler work
// (§4.6's "thread pool ... provided as a utility ... not used by the core
// dispatch loop") and a tiered buffer pool for response construction.
package pools

import (
	"runtime"
	"sync/atomic"
)

// Task is a unit of work submitted to a WorkerPool.
type Task func()

// WorkerPool is a work-stealing goroutine pool, adapted directly from the
// teacher's core/pools/worker_pool.go. It is never used by the connection
// read/dispatch/write loop itself — only by handlers and by
// internal/ratelimit's cleanup ticker, which hands its per-algorithm sweep
// to the pool so a slow sweep cannot stall a caller's check_request call.
type WorkerPool struct {
	numWorkers int
	queues     []chan Task
	closed     atomic.Bool

	tasksSubmitted atomic.Uint64
	tasksCompleted atomic.Uint64
}

// NewWorkerPool creates a pool with numWorkers goroutines, defaulting to
// runtime.NumCPU() when numWorkers <= 0.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	p := &WorkerPool{
		numWorkers: numWorkers,
		queues:     make([]chan Task, numWorkers),
	}
	for i := 0; i < numWorkers; i++ {
		p.queues[i] = make(chan Task, 256)
	}
	for i := 0; i < numWorkers; i++ {
		go p.run(i)
	}
	return p
}

// Submit enqueues task with round-robin placement, falling back to the
// next worker's queue and finally to inline execution if both of those
// queues are full.
func (p *WorkerPool) Submit(task Task) bool {
	if p.closed.Load() {
		return false
	}
	p.tasksSubmitted.Add(1)
	idx := int(p.tasksSubmitted.Load()) % p.numWorkers

	select {
	case p.queues[idx] <- task:
		return true
	default:
		idx = (idx + 1) % p.numWorkers
		select {
		case p.queues[idx] <- task:
			return true
		default:
			task()
			p.tasksCompleted.Add(1)
			return true
		}
	}
}

func (p *WorkerPool) run(id int) {
	own := p.queues[id]
	for {
		select {
		case task, ok := <-own:
			if !ok {
				return
			}
			task()
			p.tasksCompleted.Add(1)
			continue
		default:
		}

		if p.trySteal(id) {
			continue
		}

		task, ok := <-own
		if !ok {
			return
		}
		task()
		p.tasksCompleted.Add(1)
	}
}

func (p *WorkerPool) trySteal(id int) bool {
	for i := 1; i < p.numWorkers; i++ {
		victim := (id + i) % p.numWorkers
		select {
		case task, ok := <-p.queues[victim]:
			if ok && task != nil {
				task()
				p.tasksCompleted.Add(1)
				return true
			}
		default:
		}
	}
	return false
}

// Close signals every worker goroutine to exit after draining its queue.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	for _, q := range p.queues {
		close(q)
	}
}

// Stats reports submitted/completed task counts.
func (p *WorkerPool) Stats() (submitted, completed uint64) {
	return p.tasksSubmitted.Load(), p.tasksCompleted.Load()
}
