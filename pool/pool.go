// Package pool implements a fixed-size work-stealing thread pool: each
// worker owns a wsdeque.Deque, runs local-then-steal, and Commit
// round-robins submissions across workers, returning a future that
// resolves with the submitted callable's return value. Each worker idles
// on a channel-driven select with a timer rather than a condition
// variable, so it can also notice a Deinit request while otherwise
// waiting for work.
package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dagkernel/dagkernel/wsdeque"
)

// idleTimeout bounds how long an idle worker waits for a wake-up before
// re-checking its own deque and its peers'. This guarantees a worker
// eventually notices new work even if a wake-up notification is lost.
const idleTimeout = 100 * time.Millisecond

// Future resolves with the return value of a callable submitted via
// Commit, once that callable has run.
type Future[T any] struct {
	done  chan struct{}
	value T
}

// Wait blocks until the submitted callable has returned, then returns its
// value. Calling Wait more than once is safe.
func (f *Future[T]) Wait() T {
	<-f.done
	return f.value
}

// Done returns a channel that closes once the future resolves, for callers
// that want to select on multiple futures/events.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// localThread is one worker goroutine: its own deque, a wake signal, and a
// view of the full worker slice so it can compute its steal rotation.
type localThread struct {
	index int
	pool  *ThreadPool
	deque *wsdeque.Deque
	wake  chan struct{}
}

func newLocalThread(index int, p *ThreadPool) *localThread {
	return &localThread{
		index: index,
		pool:  p,
		deque: wsdeque.New(),
		wake:  make(chan struct{}, 1),
	}
}

// notify wakes the worker if it is idle; it never blocks.
func (lt *localThread) notify() {
	select {
	case lt.wake <- struct{}{}:
	default:
	}
}

// peers returns the steal rotation for this worker: [(i+1)%N, ..., (i+N-1)%N].
func (lt *localThread) peers() []*localThread {
	n := len(lt.pool.workers)
	out := make([]*localThread, 0, n-1)
	for step := 1; step < n; step++ {
		out = append(out, lt.pool.workers[(lt.index+step)%n])
	}
	return out
}

func (lt *localThread) run() {
	defer lt.pool.wg.Done()
	for {
		if task, ok := lt.deque.TryPop(); ok {
			task()
			continue
		}
		stole := false
		for _, peer := range lt.peers() {
			if task, ok := peer.deque.TrySteal(); ok {
				task()
				stole = true
				break
			}
		}
		if stole {
			continue
		}
		select {
		case <-lt.wake:
		case <-time.After(idleTimeout):
		case <-lt.pool.closed:
			return
		}
	}
}

// ThreadPool is a fixed-size pool of work-stealing workers.
type ThreadPool struct {
	Logf func(format string, v ...any)

	size    int
	workers []*localThread
	cursor  atomic.Uint64

	wg       sync.WaitGroup
	closed   chan struct{}
	initOnce bool
}

// New returns a ThreadPool sized to size workers. Call Init before Commit.
func New(size int) *ThreadPool {
	if size <= 0 {
		size = 4 // matches the task engine's own default worker count
	}
	return &ThreadPool{size: size, closed: make(chan struct{})}
}

// Init starts all worker goroutines. Idempotent.
func (p *ThreadPool) Init() error {
	if p.initOnce {
		return nil
	}
	p.workers = make([]*localThread, p.size)
	for i := range p.workers {
		p.workers[i] = newLocalThread(i, p)
	}
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}
	p.initOnce = true
	return nil
}

// Size returns the number of workers in the pool.
func (p *ThreadPool) Size() int { return p.size }

// Commit submits a zero-argument callable for execution on the pool,
// picking the target worker by round-robin over a monotonically
// incremented counter. It returns a future that resolves with f's return
// value. Push retries (yielding between attempts) until the target
// worker's deque accepts it.
func Commit[T any](p *ThreadPool, f func() T) *Future[T] {
	future := &Future[T]{done: make(chan struct{})}
	task := func() {
		future.value = f()
		close(future.done)
	}

	idx := int(p.cursor.Add(1)-1) % len(p.workers)
	for !p.workers[idx].deque.TryPush(task) {
		runtime.Gosched()
	}
	p.workers[idx].notify()
	return future
}

// Deinit signals every worker to exit once it next goes idle, and joins
// them all. The pool is unusable afterward; Deinit is safe to call more
// than once.
func (p *ThreadPool) Deinit() error {
	select {
	case <-p.closed:
		// already closed
	default:
		close(p.closed)
	}
	p.wg.Wait()
	return nil
}
