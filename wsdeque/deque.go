// Package wsdeque implements a work-stealing deque: a single lock guards a
// plain double-ended queue, and push, pop and steal use TryLock so contention
// never blocks a caller — it just fails and lets the caller retry or look
// elsewhere. Only the diagnostic Len takes the lock blockingly.
package wsdeque

import "sync"

// Task is the unit of work the deque carries. The pool package supplies
// the concrete closures.
type Task func()

// Deque is a single-writer, many-reader hybrid: pushes go to the back and
// the owner pops from the front (FIFO for the owner), while thieves pop from the back
// (LIFO for thieves), which keeps steals and the owner's own pops from
// fighting over the same end of the queue.
type Deque struct {
	mu    sync.Mutex
	tasks []Task
}

// New returns an empty deque.
func New() *Deque {
	return &Deque{}
}

// TryPush appends task to the back of the deque. It fails only if the lock
// is currently held by another goroutine; callers are expected to yield
// and retry.
func (d *Deque) TryPush(task Task) bool {
	if !d.mu.TryLock() {
		return false
	}
	d.tasks = append(d.tasks, task)
	d.mu.Unlock()
	return true
}

// TryPop removes and returns the task at the front of the deque (FIFO for
// the owner). It fails if the deque is empty or the lock is contended.
func (d *Deque) TryPop() (Task, bool) {
	if !d.mu.TryLock() {
		return nil, false
	}
	defer d.mu.Unlock()
	if len(d.tasks) == 0 {
		return nil, false
	}
	task := d.tasks[0]
	d.tasks = d.tasks[1:]
	return task, true
}

// TrySteal removes and returns the task at the back of the deque (LIFO for
// thieves). It fails if the deque is empty or the lock is contended.
func (d *Deque) TrySteal() (Task, bool) {
	if !d.mu.TryLock() {
		return nil, false
	}
	defer d.mu.Unlock()
	if len(d.tasks) == 0 {
		return nil, false
	}
	last := len(d.tasks) - 1
	task := d.tasks[last]
	d.tasks = d.tasks[:last]
	return task, true
}

// Len returns the current number of queued tasks. It is only a snapshot —
// useful for diagnostics, not for synchronization.
func (d *Deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}
