package provisioning

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// tracker counts background work so shutdown and tests can wait for it
type tracker struct {
	mu     sync.Mutex
	idle   *sync.Cond
	active int
}

func newTracker() *tracker {
	t := &tracker{}
	t.idle = sync.NewCond(&t.mu)
	return t
}

func (t *tracker) Go(fn func()) {
	t.mu.Lock()
	t.active++
	t.mu.Unlock()

	go func() {
		defer t.done()
		fn()
	}()
}

func (t *tracker) done() {
	t.mu.Lock()
	t.active--
	if t.active == 0 {
		t.idle.Broadcast()
	}
	t.mu.Unlock()
}

// wait blocks until no work is running or ctx is done
func (t *tracker) wait(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		t.mu.Lock()
		for t.active > 0 {
			t.idle.Wait()
		}
		t.mu.Unlock()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch records name as dispatched and runs fn in the background with its own
// timeout. fn must not touch execution state; settle folds the outcome into the run.
func (e *execution) dispatch(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) {
	done := make(chan StepResult, 1)
	e.dispatched = append(e.dispatched, done)
	e.run.record(StepResult{Name: name, Outcome: OutcomeDispatched})

	bg := context.WithoutCancel(ctx)
	w, log := e.w, e.log
	w.tasks.Go(func() {
		done <- w.runStep(bg, log, name, w.config.StepTimeout, fn)
	})
}

// settle waits for dispatched steps and stores their final outcomes
func (e *execution) settle(ctx context.Context) {
	for _, done := range e.dispatched {
		e.run.resolve(<-done)
	}
	if err := e.w.config.Runs.UpdateRun(ctx, e.run); err != nil {
		e.log.Warn("failed to store dispatched step outcomes", zap.Error(err))
	}
}
