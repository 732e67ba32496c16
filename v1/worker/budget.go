package worker

import "golang.org/x/sync/semaphore"

// Budget caps the number of workers that may be alive at once across every
// Launch sharing it. Launch fails with ErrAllocation instead of waiting when
// the budget is exhausted.
type Budget struct {
	sem *semaphore.Weighted
}

// NewBudget returns a Budget admitting at most n live workers.
func NewBudget(n int64) *Budget {
	return &Budget{sem: semaphore.NewWeighted(n)}
}

func (b *Budget) reserve() bool {
	if b == nil {
		return true
	}
	return b.sem.TryAcquire(1)
}

func (b *Budget) release() {
	if b == nil {
		return
	}
	b.sem.Release(1)
}
