package services

import "sync/atomic"

// LearningSchedule decides when the orchestrator triggers a weight learning
// pass after a batch. Implementations must be safe for concurrent use.
type LearningSchedule interface {
	ShouldLearn() bool
}

// LearningScheduleFunc adapts a function to the LearningSchedule interface.
type LearningScheduleFunc func() bool

func (f LearningScheduleFunc) ShouldLearn() bool { return f() }

// EveryNBatches fires after every nth completed batch. Values below one
// degrade to firing every batch.
type EveryNBatches struct {
	n       int64
	counter atomic.Int64
}

func NewEveryNBatches(n int) *EveryNBatches {
	if n < 1 {
		n = 1
	}
	return &EveryNBatches{n: int64(n)}
}

func (s *EveryNBatches) ShouldLearn() bool {
	return s.counter.Add(1)%s.n == 0
}
