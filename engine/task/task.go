// Package task implements a fork/join engine: one pass per call to Run,
// with every node in the topo-sorted set submitted to a shared thread pool
// as soon as all its predecessors have finished.
package task

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dagkernel/dagkernel/engine"
	"github.com/dagkernel/dagkernel/errwrap"
	"github.com/dagkernel/dagkernel/pool"
)

// defaultPoolSize is the worker count used when nothing else is specified.
const defaultPoolSize = 4

// Engine runs the graph via fork/join: every node with satisfied
// predecessors is committed to the pool as soon as possible, and Run
// blocks until every node has completed or one has failed.
type Engine struct {
	Logf func(format string, v ...any)

	pool  *pool.ThreadPool
	order []*engine.Wrapper
	start []*engine.Wrapper

	completedTaskCount atomic.Int64
	totalTasks         int64

	statusMu     sync.Mutex
	globalStatus error

	mainMu sync.Mutex
	mainCV *sync.Cond

	commitMu sync.Mutex
}

// New returns a task engine with a pool sized to size workers (0 picks the
// default).
func New(size int) *Engine {
	if size <= 0 {
		size = defaultPoolSize
	}
	e := &Engine{pool: pool.New(size)}
	e.mainCV = sync.NewCond(&e.mainMu)
	return e
}

// Init stores the topo-sorted order, computes the zero-predecessor start
// set, starts the thread pool, and initializes every node.
func (e *Engine) Init(order []*engine.Wrapper) error {
	e.order = order
	e.totalTasks = int64(len(order))
	for _, w := range order {
		if len(w.Predecessors) == 0 {
			e.start = append(e.start, w)
		}
	}
	if err := e.pool.Init(); err != nil {
		return errwrap.Wrapf(err, "task engine: pool init")
	}
	for _, w := range order {
		if err := w.Node.Init(); err != nil {
			return errwrap.Wrapf(err, "task engine: init node[%s]", w.Node.NodeName())
		}
	}
	return nil
}

// Run submits the start-node set, waits for every node to complete (or
// for a non-success status), verifies the run colored every node black,
// then resets colors for the next call.
func (e *Engine) Run() error {
	e.completedTaskCount.Store(0)
	e.statusMu.Lock()
	e.globalStatus = nil
	e.statusMu.Unlock()
	e.resetColors()

	for _, w := range e.start {
		e.process(w)
	}

	e.mainMu.Lock()
	for e.completedTaskCount.Load() < e.totalTasks && e.status() == nil {
		e.mainCV.Wait()
	}
	e.mainMu.Unlock()

	if err := e.status(); err != nil {
		e.resetColors()
		return err
	}

	for _, w := range e.order {
		if c := e.colorOf(w); c != engine.Black {
			e.resetColors()
			return fmt.Errorf("task engine: node[%s] left in state %s after run", w.Node.NodeName(), c)
		}
	}
	e.resetColors()
	return nil
}

// resetColors clears every node's sort/run color under commitMu, the same
// lock every other Color read and write in this engine goes through.
func (e *Engine) resetColors() {
	e.commitMu.Lock()
	for _, w := range e.order {
		w.Color = engine.White
	}
	e.commitMu.Unlock()
}

func (e *Engine) colorOf(w *engine.Wrapper) engine.Color {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	return w.Color
}

func (e *Engine) status() error {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.globalStatus
}

func (e *Engine) setStatusOnce(err error) {
	if err == nil {
		return
	}
	e.statusMu.Lock()
	if e.globalStatus == nil {
		e.globalStatus = err
	}
	e.statusMu.Unlock()
}

// process claims w (White -> Gray, under commitMu so two concurrent
// afterNodeRun calls racing to dispatch the same successor can't both
// commit it) and submits a task that runs the node, records any error
// (first error wins), then runs after-node-run bookkeeping. A w that has
// already been claimed by another caller is left alone.
func (e *Engine) process(w *engine.Wrapper) {
	if e.status() != nil {
		return
	}
	e.commitMu.Lock()
	if w.Color != engine.White {
		e.commitMu.Unlock()
		return
	}
	w.Color = engine.Gray
	e.commitMu.Unlock()

	pool.Commit(e.pool, func() any {
		w.Node.SetRunning(true)
		if err := w.Node.Run(); err != nil {
			e.setStatusOnce(errwrap.Wrapf(err, "task engine: node[%s] run failed", w.Node.NodeName()))
		}
		w.Node.SetRunning(false)
		e.afterNodeRun(w)
		return nil
	})
}

// afterNodeRun marks w done, colors it black, and dispatches any successor
// whose predecessors are now all black. process itself guards the
// White->Gray claim under commitMu, so concurrent afterNodeRun calls
// racing over a shared successor still only dispatch it once.
func (e *Engine) afterNodeRun(w *engine.Wrapper) {
	e.mainMu.Lock()
	e.completedTaskCount.Add(1)
	e.mainMu.Unlock()

	e.commitMu.Lock()
	w.Color = engine.Black
	e.commitMu.Unlock()

	for _, succ := range w.Successors {
		if e.allBlack(succ.Predecessors) {
			e.process(succ)
		}
	}

	if len(w.Successors) == 0 || e.completedTaskCount.Load() >= e.totalTasks || e.status() != nil {
		e.mainMu.Lock()
		e.mainCV.Broadcast()
		e.mainMu.Unlock()
	}
}

func (e *Engine) allBlack(preds []*engine.Wrapper) bool {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	for _, p := range preds {
		if p.Color != engine.Black {
			return false
		}
	}
	return true
}

// Synchronize is a documented no-op: the task engine has no persistent
// workers outside of Run's own fork/join, so there is nothing to
// synchronize between calls to Run.
func (e *Engine) Synchronize() error {
	return nil
}

// Deinit tears down the thread pool and deinits every node.
func (e *Engine) Deinit() error {
	if err := e.pool.Deinit(); err != nil {
		return errwrap.Wrapf(err, "task engine: pool deinit")
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
