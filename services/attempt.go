package services

import (
	"context"
	"sync"

	"github.com/deploykit/models"
)

// Attempt is the handle of one running deployment. It completes once the
// deployment reached READY or ERROR.
type Attempt struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu         sync.Mutex
	deployment models.Deployment
	err        error
}

func newAttempt(d models.Deployment, cancel context.CancelFunc) *Attempt {
	if cancel == nil {
		cancel = func() {}
	}
	return &Attempt{done: make(chan struct{}), cancel: cancel, deployment: d}
}

// Deployment returns the latest known state of the record.
func (a *Attempt) Deployment() models.Deployment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deployment
}

// Done is closed when the attempt has finished.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Err is nil for a READY attempt, or while it still runs.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Wait blocks until the attempt finishes or ctx ends.
func (a *Attempt) Wait(ctx context.Context) (models.Deployment, error) {
	select {
	case <-a.done:
		return a.Deployment(), a.Err()
	case <-ctx.Done():
		return a.Deployment(), ctx.Err()
	}
}

// Cancel aborts the remote session. The attempt ends in ERROR.
func (a *Attempt) Cancel() {
	a.cancel()
}

func (a *Attempt) update(d models.Deployment) {
	a.mu.Lock()
	a.deployment = d
	a.mu.Unlock()
}

func (a *Attempt) finish(d models.Deployment, err error) {
	a.mu.Lock()
	a.deployment = d
	a.err = err
	a.mu.Unlock()
	a.cancel()
	close(a.done)
}
