package adbpair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// NewSafeGroup creates a SafeGroup backed by errgroup.WithContext.
func NewSafeGroup(ctx context.Context) *SafeGroup {
	if ctx == nil {
		ctx = context.Background()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	return &SafeGroup{Group: group, ctx: groupCtx, parent: ctx}
}

// SafeGroup is an errgroup.Group for the CLI workers around an orchestrator:
// the event printer and the interactive prompt.
type SafeGroup struct {
	*errgroup.Group
	// ctx is canceled on parent cancellation or the first worker error.
	ctx context.Context
	// parent is the caller context, typically from signal.NotifyContext.
	parent context.Context
}

// Context returns the group context shared by the workers.
func (sg *SafeGroup) Context() context.Context { return sg.ctx }

// GoSafe runs fn in the group. A panic is printed with its stack and turned
// into an error, which cancels the sibling workers.
//
// Panics are printed to stderr rather than logged since the logger itself may
// be what panicked.
func (sg *SafeGroup) GoSafe(name string, fn func(context.Context) error) {
	if sg == nil || sg.Group == nil || fn == nil {
		return
	}
	sg.Group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				_, _ = fmt.Fprintf(os.Stderr, "WARN: %s panicked: %v\n%s\n", name, r, debug.Stack())
				err = fmt.Errorf("%s panicked: %v", name, r)
			}
		}()
		return fn(sg.ctx)
	})
}

// WaitOrInterrupt waits for the workers, but once the parent context is done it
// waits at most gracePeriod before returning parent.Err().
func (sg *SafeGroup) WaitOrInterrupt(gracePeriod time.Duration) error {
	if sg == nil || sg.Group == nil {
		return nil
	}
	ctx := sg.parent
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- sg.Group.Wait()
	}()

	select {
	case err := <-waitCh:
		return normalizeInterruptError(ctx, err)
	case <-ctx.Done():
		if gracePeriod <= 0 {
			return ctx.Err()
		}
		select {
		case err := <-waitCh:
			return normalizeInterruptError(ctx, err)
		case <-time.After(gracePeriod):
			return ctx.Err()
		}
	}
}

// normalizeInterruptError maps context cancellation errors to ctx.Err().
func normalizeInterruptError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return err
}
