// Package sequential implements an engine where the whole topologically-
// sorted node set runs on the caller's goroutine, one node at a time,
// aborting at the first failure.
package sequential

import (
	"fmt"

	"github.com/dagkernel/dagkernel/engine"
	"github.com/dagkernel/dagkernel/errwrap"
	"github.com/dagkernel/dagkernel/mode"
)

// Engine runs every node in topological order on whichever goroutine calls
// Run. It holds no goroutines of its own.
type Engine struct {
	Logf func(format string, v ...any)

	order []*engine.Wrapper
}

// New returns an unstarted sequential engine.
func New() *Engine {
	return &Engine{}
}

// Init stores the topo-sorted node set and initializes every node.
func (e *Engine) Init(order []*engine.Wrapper) error {
	e.order = order
	for _, w := range order {
		if err := w.Node.Init(); err != nil {
			return errwrap.Wrapf(err, "sequential engine: init node[%s]", w.Node.NodeName())
		}
	}
	return nil
}

// Run calls UpdateInput then Run on every node in topological order,
// returning (and abandoning the remainder) at the first node that fails.
func (e *Engine) Run() error {
	for _, w := range e.order {
		flag := w.Node.UpdateInput()
		if flag != mode.Complete {
			if flag == mode.Terminate {
				return nil
			}
			return fmt.Errorf("sequential engine: node[%s] input update failed", w.Node.NodeName())
		}
		w.Node.SetRunning(true)
		err := w.Node.Run()
		w.Node.SetRunning(false)
		if err != nil {
			return errwrap.Wrapf(err, "sequential engine: node[%s] run failed", w.Node.NodeName())
		}
	}
	return nil
}

// Synchronize is a no-op: the sequential engine has no in-flight
// asynchronous work to wait on, since Run only returns once every node has
// already finished.
func (e *Engine) Synchronize() error {
	return nil
}

// Deinit deinits every node in topological order, collecting every
// failure rather than stopping at the first.
func (e *Engine) Deinit() error {
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
