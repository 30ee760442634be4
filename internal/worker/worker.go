// Package worker runs the relay's cancellable background tasks.
package worker

import (
	"sync"
	"time"
)

// Worker is a set of managed background goroutines sharing one halt signal.
type Worker struct {
	sync.WaitGroup
	initOnce sync.Once
	haltOnce sync.Once

	haltCh chan struct{}
}

// Go executes fn in a new goroutine. fn must watch HaltCh and return once
// it is closed.
func (w *Worker) Go(fn func()) {
	w.initOnce.Do(w.init)
	w.Add(1)
	go func() {
		defer w.Done()
		fn()
	}()
}

// Every runs fn each interval until Halt is called.
func (w *Worker) Every(interval time.Duration, fn func(now time.Time)) {
	w.Go(func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-w.HaltCh():
				return
			case now := <-t.C:
				fn(now)
			}
		}
	})
}

// Halt signals all goroutines to terminate and waits for them. It is safe
// to call more than once.
func (w *Worker) Halt() {
	w.initOnce.Do(w.init)
	w.haltOnce.Do(func() { close(w.haltCh) })
	w.Wait()
}

// HaltCh returns the channel closed by Halt.
func (w *Worker) HaltCh() <-chan struct{} {
	w.initOnce.Do(w.init)
	return w.haltCh
}

func (w *Worker) init() {
	w.haltCh = make(chan struct{})
}
