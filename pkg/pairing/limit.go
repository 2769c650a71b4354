package pairing

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// limitedExecutor caps the number of bridge commands in flight. Device waits are
// long-lived and are not counted against the limit.
type limitedExecutor struct {
	Executor
	sem *semaphore.Weighted
}

func newLimitedExecutor(exec Executor, max int) Executor {
	if max <= 0 {
		return exec
	}
	return &limitedExecutor{Executor: exec, sem: semaphore.NewWeighted(int64(max))}
}

func (l *limitedExecutor) ExecuteCommand(ctx context.Context, args []string, stdin string) (*CommandResult, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.Executor.ExecuteCommand(ctx, args, stdin)
}
