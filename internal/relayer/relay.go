package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (s *Service) startSpan(ctx context.Context, name string, requests []*types.SignedDelegateAction) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.Int("requests", len(requests))}
	if len(requests) == 1 && requests[0] != nil {
		attrs = append(attrs,
			attribute.String("sender", string(requests[0].Sender())),
			attribute.Int64("nonce", int64(requests[0].Nonce())),
		)
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RelayMetaTransaction admits a single request carrying exactly one operation and
// schedules its plan. It returns the plan id.
func (s *Service) RelayMetaTransaction(ctx context.Context, sda *types.SignedDelegateAction) (id uuid.UUID, err error) {
	ctx, span := s.startSpan(ctx, "RelayMetaTransaction", []*types.SignedDelegateAction{sda})
	defer func() { endSpan(span, err) }()

	ids, err := s.relay(ctx, "RelayMetaTransaction", []*types.SignedDelegateAction{sda}, true)
	if err != nil {
		return uuid.Nil, err
	}
	return ids[0], nil
}

// RelayMetaTransactions admits a batch all-or-nothing: one invalid request, or a pool
// that cannot cover the summed cost, rejects the whole batch.
func (s *Service) RelayMetaTransactions(ctx context.Context, requests []*types.SignedDelegateAction) (ids []uuid.UUID, err error) {
	ctx, span := s.startSpan(ctx, "RelayMetaTransactions", requests)
	defer func() { endSpan(span, err) }()
	return s.relay(ctx, "RelayMetaTransactions", requests, false)
}

func (s *Service) relay(ctx context.Context, name string, requests []*types.SignedDelegateAction, single bool) ([]uuid.UUID, error) {
	start := time.Now()
	height, err := s.blockHeight(ctx)
	if err != nil {
		return nil, err
	}
	batch := events.NewBatch()
	var plans []*host.Plan
	var cost *types.Balance
	err = s.Store.Update(ctx, func(st *state.RelayerState) error {
		batch.Reset()
		plans = plans[:0]
		total, err := admit(st, requests, height, single)
		if err != nil {
			return err
		}
		cost = total
		for _, sda := range requests {
			plan, err := buildPlan(st, sda, 0, 0, batch)
			if err != nil {
				return err
			}
			plans = append(plans, plan)
		}
		return nil
	})
	if err != nil {
		logRejected(name, requests, err)
		return nil, err
	}
	s.EventBus.Publish(ctx, batch)
	if err := s.submit(ctx, plans, 0); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(plans))
	for i, plan := range plans {
		ids[i] = plan.ID
	}
	log.Info().
		Int("requests", len(requests)).
		Str("cost", cost.Dec()).
		Uint64("height", height).
		Float64("elapsed_ms", since(start)).
		Msgf("[Relayer] [%s] admitted and scheduled", name)
	return ids, nil
}

type ChunkEntryResult struct {
	Index  int       `json:"index"`
	Chunk  int       `json:"chunk"`
	PlanID uuid.UUID `json:"plan_id"`
	Error  string    `json:"error,omitempty"`
}

// RelayChunkedMetaTransactions partitions requests into chunks of at most ChunkSize.
// A malformed entry becomes a no-op placeholder in its chunk rather than failing the
// call; the valid entries share one pool admission.
func (s *Service) RelayChunkedMetaTransactions(ctx context.Context, requests []*types.SignedDelegateAction) (results []ChunkEntryResult, err error) {
	ctx, span := s.startSpan(ctx, "RelayChunkedMetaTransactions", requests)
	defer func() { endSpan(span, err) }()

	height, err := s.blockHeight(ctx)
	if err != nil {
		return nil, err
	}
	batch := events.NewBatch()
	var plans []*host.Plan
	var chunkSize int
	err = s.Store.Update(ctx, func(st *state.RelayerState) error {
		batch.Reset()
		plans = make([]*host.Plan, len(requests))
		results = make([]ChunkEntryResult, len(requests))
		if len(requests) == 0 {
			return types.NewRelayError(types.ErrMalformedRequest, nil, "no requests")
		}
		if st.Paused {
			return types.NewRelayError(types.ErrContractPaused, nil, "relayer is paused")
		}
		chunkSize = st.ChunkSize
		var valid []*types.SignedDelegateAction
		var validIndex []int
		seen := map[nonceKey]struct{}{}
		for i, sda := range requests {
			results[i] = ChunkEntryResult{Index: i, Chunk: i / chunkSize}
			err := validate(st, sda, height, false)
			if err == nil {
				key := nonceKey{sda.Sender(), sda.Nonce()}
				if _, dup := seen[key]; dup {
					err = types.NewRelayError(types.ErrInvalidNonce, sda, "duplicate nonce in batch")
				}
				seen[key] = struct{}{}
			}
			if err != nil {
				results[i].Error = err.Error()
				plans[i] = placeholderPlan(i, err)
				continue
			}
			valid = append(valid, sda)
			validIndex = append(validIndex, i)
		}
		if len(valid) > 0 {
			total := new(types.Balance)
			for _, sda := range valid {
				total.Add(total, st.CostOf(sda))
			}
			if !st.CanReserve(total) {
				return types.NewRelayError(types.ErrInsufficientGasPool, nil, "pool %s, floor %s, cost %s", st.GasPool.Dec(), st.MinGasPool.Dec(), total.Dec())
			}
			if err := st.Reserve(total); err != nil {
				return err
			}
		}
		for j, sda := range valid {
			plan, err := buildPlan(st, sda, 0, 0, batch)
			if err != nil {
				return err
			}
			plans[validIndex[j]] = plan
		}
		return nil
	})
	if err != nil {
		logRejected("RelayChunkedMetaTransactions", requests, err)
		return nil, err
	}
	s.EventBus.Publish(ctx, batch)

	var errs []error
	for start := 0; start < len(plans); start += chunkSize {
		end := min(start+chunkSize, len(plans))
		if err := s.submit(ctx, plans[start:end], 0); err != nil {
			errs = append(errs, fmt.Errorf("chunk %d: %w", start/chunkSize, err))
			for i := start; i < end; i++ {
				results[i].Error = err.Error()
			}
			continue
		}
		for i := start; i < end; i++ {
			results[i].PlanID = plans[i].ID
		}
	}
	log.Info().
		Int("requests", len(requests)).
		Int("chunk_size", chunkSize).
		Msg("[Relayer] [RelayChunkedMetaTransactions] scheduled chunks")
	return results, errors.Join(errs...)
}

func logRejected(name string, requests []*types.SignedDelegateAction, err error) {
	event := log.Warn().Err(err).Int("requests", len(requests))
	var relayErr *types.RelayError
	if errors.As(err, &relayErr) {
		event = event.Str("sender", string(relayErr.Sender)).Uint64("nonce", relayErr.Nonce)
	}
	event.Msgf("[Relayer] [%s] request rejected", name)
}
