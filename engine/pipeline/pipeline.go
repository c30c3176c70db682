// Package pipeline implements a software-pipeline engine: one persistent
// worker goroutine per node, wired together by Pipeline edges whose own
// backpressure (not_full_cv/not_empty_cv) paces the whole graph. run_size
// is a graph-level counter bumped once per call to Run; there is no
// per-frame join, only Synchronize's drain-to-run_size wait.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/dagkernel/dagkernel/edge"
	"github.com/dagkernel/dagkernel/engine"
	"github.com/dagkernel/dagkernel/errwrap"
	"github.com/dagkernel/dagkernel/mode"
	"github.com/dagkernel/dagkernel/pool"
)

// synchronizeWaiters bounds how many goroutines may be parked inside
// Synchronize at once. The kernel itself only calls Synchronize from
// graph.Graph.Synchronize and from Deinit, so this is a generous ceiling against a caller that
// fans Synchronize out across many goroutines by mistake — it is not on
// the hot path Pipeline edges use for ordinary backpressure, which stays
// on their own hand-rolled condition variables.
const synchronizeWaiters = 64

// Engine runs the graph as a software pipeline: each node's own goroutine
// loops update_input → run, forever, until told to terminate.
type Engine struct {
	Logf func(format string, v ...any)

	pool  *pool.ThreadPool
	order []*engine.Wrapper
	edges []edge.Edge

	runSize atomic.Uint64

	statusMu sync.Mutex
	status   error

	completeMu sync.Mutex
	completeCV *sync.Cond

	wg  sync.WaitGroup
	sem *semaphore.Weighted
}

// New returns a pipeline engine; its pool is sized to the node count once
// Init runs.
func New() *Engine {
	e := &Engine{sem: semaphore.NewWeighted(synchronizeWaiters)}
	e.completeCV = sync.NewCond(&e.completeMu)
	return e
}

// Init sizes the pool to one worker per node, records the edge set so
// Deinit can terminate it, initializes every node, then commits one
// persistent worker per node.
func (e *Engine) Init(order []*engine.Wrapper) error {
	e.order = order
	for _, w := range order {
		for _, in := range w.Inputs {
			e.edges = append(e.edges, in)
		}
	}
	e.pool = pool.New(len(order))
	if err := e.pool.Init(); err != nil {
		return errwrap.Wrapf(err, "pipeline engine: pool init")
	}
	for _, w := range order {
		if err := w.Node.Init(); err != nil {
			return errwrap.Wrapf(err, "pipeline engine: init node[%s]", w.Node.NodeName())
		}
	}
	for _, w := range order {
		w := w
		e.wg.Add(1)
		pool.Commit(e.pool, func() any {
			defer e.wg.Done()
			e.workerLoop(w)
			return nil
		})
	}
	return nil
}

// workerLoop is the persistent per-node loop: block on update_input, run
// once complete, record completion, repeat until the edge reports
// Terminate or a fatal Error.
func (e *Engine) workerLoop(w *engine.Wrapper) {
	for {
		flag := w.Node.UpdateInput()
		switch flag {
		case mode.Complete:
			w.Node.SetRunning(true)
			err := w.Node.Run()
			w.Node.SetRunning(false)
			if err != nil {
				e.setStatusOnce(errwrap.Wrapf(err, "pipeline engine: node[%s] run failed", w.Node.NodeName()))
				return
			}
			if w.Node.CompletedSize() == e.runSize.Load() {
				e.completeMu.Lock()
				e.completeCV.Broadcast()
				e.completeMu.Unlock()
			}
		case mode.Terminate:
			return
		default:
			e.setStatusOnce(fmt.Errorf("pipeline engine: node[%s] input update failed", w.Node.NodeName()))
			return
		}
	}
}

func (e *Engine) setStatusOnce(err error) {
	if err == nil {
		return
	}
	e.statusMu.Lock()
	if e.status == nil {
		e.status = err
	}
	e.statusMu.Unlock()

	// Wake any Synchronize waiter so it observes the recorded status.
	e.completeMu.Lock()
	e.completeCV.Broadcast()
	e.completeMu.Unlock()
}

// Run bumps the graph-level run_size counter. Actual execution happens on
// the persistent per-node workers started in Init; Run does not block.
func (e *Engine) Run() error {
	e.statusMu.Lock()
	status := e.status
	e.statusMu.Unlock()
	if status != nil {
		return status
	}
	e.runSize.Add(1)
	return nil
}

// Synchronize blocks until every node's completed_size has caught up with
// the current run_size, or a fatal status is recorded. It is bounded by a
// semaphore purely to cap concurrent waiters; it never substitutes for the
// edges' own condition variables.
func (e *Engine) Synchronize() error {
	if err := e.sem.Acquire(context.TODO(), 1); err != nil {
		return errwrap.Wrapf(err, "pipeline engine: synchronize acquire")
	}
	defer e.sem.Release(1)

	e.completeMu.Lock()
	for !e.allCaughtUp() && e.currentStatus() == nil {
		e.completeCV.Wait()
	}
	e.completeMu.Unlock()
	return e.currentStatus()
}

func (e *Engine) currentStatus() error {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

func (e *Engine) allCaughtUp() bool {
	target := e.runSize.Load()
	for _, w := range e.order {
		if w.Node.CompletedSize() < target {
			return false
		}
	}
	return true
}

// Deinit synchronizes, requests termination on every edge (waking any
// stalled worker), joins all workers, and deinits every node.
func (e *Engine) Deinit() error {
	_ = e.Synchronize()
	for _, ed := range e.edges {
		ed.RequestTerminate()
	}
	e.wg.Wait()
	if err := e.pool.Deinit(); err != nil {
		return errwrap.Wrapf(err, "pipeline engine: pool deinit")
	}
	var reterr error
	for _, w := range e.order {
		if err := w.Node.Deinit(); err != nil {
			reterr = errwrap.Append(reterr, err)
		}
	}
	return reterr
}

// Stats returns the per-node run_size/completed_size snapshot.
func (e *Engine) Stats() map[string]engine.NodeStats {
	return engine.Stats(e.order)
}
