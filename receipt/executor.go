package receipt

import (
	"context"
	"errors"
	"sync"
)

var errExecutorClosed = errors.New("receipt store is closed")

// executor is the single serialized execution context that owns all access to
// the persistent store. Tasks run to completion one at a time in submission
// order, which is what makes store access linearizable. External collaborator
// calls (payment queue, validator) must never run on the executor; their
// results re-enter as new tasks.
type executor struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	closeOnce sync.Once
}

func newExecutor() *executor {
	e := &executor{
		tasks: make(chan func(), 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *executor) run() {
	defer close(e.done)
	for {
		select {
		case task := <-e.tasks:
			task()
		case <-e.quit:
			// Drain tasks that were already submitted.
			for {
				select {
				case task := <-e.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit enqueues a task without waiting for it. Tasks submitted after close
// are dropped.
func (e *executor) submit(task func()) {
	select {
	case e.tasks <- task:
	case <-e.done:
	}
}

// do runs fn on the executor and waits for its result. ctx bounds the wait
// only; once started, a task always runs to completion.
func (e *executor) do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)

	select {
	case e.tasks <- func() { errCh <- fn() }:
	case <-e.quit:
		return errExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		select {
		case err := <-errCh:
			return err
		default:
			return errExecutorClosed
		}
	}
}

func (e *executor) close() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.done
}
