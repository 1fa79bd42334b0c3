package host

import (
	"context"
	"sync"
)

// Recorder is a Host that only records submitted plans. Tests complete the plans
// themselves with chosen outcomes.
type Recorder struct {
	mutex  sync.Mutex
	height uint64
	plans  []*Plan
	// SubmitErr, when set, is returned by the next Submit call.
	SubmitErr error
}

func NewRecorder(height uint64) *Recorder {
	return &Recorder{height: height}
}

func (r *Recorder) Submit(_ context.Context, plans ...*Plan) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.SubmitErr; err != nil {
		r.SubmitErr = nil
		return err
	}
	r.plans = append(r.plans, plans...)
	return nil
}

func (r *Recorder) BlockHeight(context.Context) (uint64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.height, nil
}

func (r *Recorder) SetHeight(height uint64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.height = height
}

func (r *Recorder) Plans() []*Plan {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]*Plan(nil), r.plans...)
}

// Take returns the recorded plans and forgets them.
func (r *Recorder) Take() []*Plan {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	plans := r.plans
	r.plans = nil
	return plans
}

// Complete runs plan against handler. Steps take their outcomes from outcomes in step
// order; missing outcomes default to success.
func (r *Recorder) Complete(ctx context.Context, handler Handler, plan *Plan, outcomes ...Outcome) {
	next := 0
	exec := func(context.Context, *Call) Outcome {
		if next >= len(outcomes) {
			next++
			return Success(nil)
		}
		o := outcomes[next]
		next++
		return o
	}
	height := func() uint64 {
		h, _ := r.BlockHeight(ctx)
		return h
	}
	Run(ctx, plan, height, exec, handler)
}

// CompleteAll succeeds every recorded plan, including plans submitted while completing.
func (r *Recorder) CompleteAll(ctx context.Context, handler Handler) int {
	n := 0
	for {
		plans := r.Take()
		if len(plans) == 0 {
			return n
		}
		for _, plan := range plans {
			r.Complete(ctx, handler, plan)
			n++
		}
	}
}

// Fail is a shorthand for a failed outcome.
func Fail(reason string) Outcome {
	return Failure("%s", reason)
}
