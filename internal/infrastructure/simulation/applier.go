package simulation

import (
	"context"
	"sync"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
)

// Applier stands in for a real media pipeline. It records what the engine
// asked for so the Source can report it back on the next poll.
type Applier struct {
	mu          sync.RWMutex
	constraints domain.VideoConstraints
	audioOnly   bool
	changes     int
	failNext    error
}

func NewApplier(initial domain.VideoConstraints) *Applier {
	return &Applier{constraints: initial}
}

func (a *Applier) ApplyConstraints(ctx context.Context, constraints domain.VideoConstraints) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return err
	}
	a.constraints = constraints
	a.changes++
	return nil
}

func (a *Applier) SetAudioOnly(ctx context.Context, enable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return err
	}
	a.audioOnly = enable
	a.changes++
	return nil
}

// FailNext makes the next apply call fail with err.
func (a *Applier) FailNext(err error) {
	a.mu.Lock()
	a.failNext = err
	a.mu.Unlock()
}

func (a *Applier) takeFailure() error {
	err := a.failNext
	a.failNext = nil
	return err
}

// Current returns the video constraints in effect and whether video is off.
func (a *Applier) Current() (domain.VideoConstraints, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.constraints, a.audioOnly
}

// Changes counts successful calls.
func (a *Applier) Changes() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.changes
}

var _ ports.ConstraintApplier = (*Applier)(nil)
