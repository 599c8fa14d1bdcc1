package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// Partition splits a weighted sequence into ordered batches. A batch closes
// as soon as adding the next item reaches the threshold, keeping that item
// inside the batch. An item that alone reaches the threshold becomes its own
// batch. Returned batches hold indices into the input, in order.
func Partition(weights []int, threshold int) [][]int {
	var batches [][]int
	var cur []int
	curWeight := 0
	flush := func() {
		if len(cur) > 0 {
			batches = append(batches, cur)
			cur = nil
			curWeight = 0
		}
	}
	for i, w := range weights {
		if w >= threshold {
			flush()
			batches = append(batches, []int{i})
			continue
		}
		cur = append(cur, i)
		curWeight += w
		if curWeight >= threshold {
			flush()
		}
	}
	flush()
	return batches
}

// RunSubTasks fans n sub-tasks across a bounded pool with a fixed pacing
// delay between submissions. A failing sub-task never cancels its siblings:
// every task runs to completion and the errors are joined afterwards.
func RunSubTasks(ctx context.Context, workers int, pacing time.Duration, n int, run func(ctx context.Context, ordinal int) error) error {
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			break
		}
		i := i
		g.Go(func() error {
			errs[i] = run(ctx, i)
			return nil
		})
		if i < n-1 {
			if err := sleepCtx(ctx, pacing); err != nil {
				break
			}
		}
	}
	g.Wait()
	return errors.Join(errs...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
