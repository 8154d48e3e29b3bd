package core

import (
	"context"
	"time"

	"github.com/3cpo-dev/gluerun/pkg/api"
)

// Recorder observes runs. Failures are logged and never fail the run.
type Recorder interface {
	RunStarted(ctx context.Context, rec api.RunRecord) error
	RunPolled(ctx context.Context, id, state string) error
	RunFinished(ctx context.Context, id string, outcome api.Outcome, message string) error
}

// Waiter blocks between polls.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(ctx context.Context, d time.Duration) error

func (f WaiterFunc) Wait(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerWaiter waits for d or until ctx is done, whichever comes first.
var TimerWaiter Waiter = WaiterFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})
