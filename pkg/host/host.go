package host

import (
	"context"

	"github.com/rs/zerolog/log"
)

type Host interface {
	// Submit schedules plans for execution. It never executes steps synchronously.
	Submit(ctx context.Context, plans ...*Plan) error
	BlockHeight(ctx context.Context) (uint64, error)
}

type Handler interface {
	OnCompletion(ctx context.Context, completion Completion) error
}

// Executor runs a single step.
type Executor func(ctx context.Context, call *Call) Outcome

// Run executes plan in order. Once a step fails every later step is skipped, but all
// callbacks are still delivered in link order. A failed chain signature step does not
// skip the steps after it.
func Run(ctx context.Context, plan *Plan, height func() uint64, exec Executor, handler Handler) {
	results := make([]Outcome, 0, len(plan.Links))
	failed := false
	for i, link := range plan.Links {
		outcome := Success(nil)
		switch {
		case link.Step == nil:
		case failed:
			outcome = Outcome{Status: StatusSkipped, Error: "previous step failed"}
		default:
			outcome = exec(ctx, link.Step)
		}
		if outcome.Status != StatusSuccess && link.Step != nil && link.Callback.Kind != CallbackChainSignatureResult {
			failed = true
		}
		results = append(results, outcome)
		deliver(ctx, handler, Completion{
			Plan:     plan,
			Link:     i,
			Callback: link.Callback,
			Outcome:  outcome,
			Results:  append([]Outcome(nil), results...),
			Height:   height(),
		})
	}
}

func deliver(ctx context.Context, handler Handler, completion Completion) {
	if handler == nil {
		return
	}
	if err := handler.OnCompletion(ctx, completion); err != nil {
		log.Error().Err(err).
			Str("plan", completion.Plan.ID.String()).
			Str("callback", completion.Callback.Kind.String()).
			Int("link", completion.Link).
			Msg("[Host] [deliver] completion handler failed")
	}
}
