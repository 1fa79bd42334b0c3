package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	dropExpired   = "expired"
	dropEvicted   = "retry queue full"
)

// redispatch re-runs admission for a request that already consumed one attempt and
// builds its plan with the given gas budget. The request's cost is reserved again.
func redispatch(st *state.RelayerState, sda *types.SignedDelegateAction, gas types.Gas, attempt int, height uint64, batch *events.Batch) (*host.Plan, error) {
	if err := validate(st, sda, height, false); err != nil {
		return nil, err
	}
	cost := st.CostOf(sda)
	if !st.CanReserve(cost) {
		return nil, types.NewRelayError(types.ErrInsufficientGasPool, sda, "pool %s, floor %s, cost %s", st.GasPool.Dec(), st.MinGasPool.Dec(), cost.Dec())
	}
	if err := st.Reserve(cost); err != nil {
		return nil, err
	}
	plan, err := buildPlan(st, sda, gas, attempt, batch)
	if err != nil {
		st.Deposit(cost)
		return nil, err
	}
	return plan, nil
}

// handleFailure applies the retry policy to a request whose plan failed during
// execution. The reserved cost has already been returned to the pool. It returns the
// plan of an immediate retry, if one was built. Budgets stop growing at MaxRetryGas;
// entries at the cap keep retrying until they expire or are evicted.
func handleFailure(st *state.RelayerState, sda *types.SignedDelegateAction, gas types.Gas, attempt int, height uint64, reason string, batch *events.Batch) *host.Plan {
	escalated := st.Escalate(gas)
	purgeExpired(st, height, batch)

	if sda.DelegateAction.Expired(height) {
		drop(sda, gas, dropExpired, batch)
		return nil
	}
	if attempt == 0 && !st.Paused && st.CanReserve(st.CostOf(sda)) {
		plan, err := redispatch(st, sda, escalated, attempt+1, height, batch)
		if err == nil {
			log.Info().
				Str("sender", string(sda.Sender())).
				Uint64("nonce", sda.Nonce()).
				Uint64("gas", uint64(escalated)).
				Str("reason", reason).
				Msg("[Relayer] [handleFailure] retrying immediately with escalated gas")
			return plan
		}
		log.Warn().Err(err).
			Str("sender", string(sda.Sender())).
			Uint64("nonce", sda.Nonce()).
			Msg("[Relayer] [handleFailure] immediate retry could not be dispatched")
	}

	evicted := st.PushFailed(sda, escalated)
	batch.Add(events.EVENT_TRANSACTION_QUEUED, events.TransactionStatus{
		Sender: string(sda.Sender()),
		Nonce:  sda.Nonce(),
		Gas:    uint64(escalated),
		Reason: reason,
	})
	log.Info().
		Str("sender", string(sda.Sender())).
		Uint64("nonce", sda.Nonce()).
		Uint64("gas", uint64(escalated)).
		Int("queued", len(st.FailedTransactions)).
		Msg("[Relayer] [handleFailure] queued for retry")
	if evicted != nil {
		drop(evicted.Request, evicted.Gas, dropEvicted, batch)
	}
	return nil
}

func purgeExpired(st *state.RelayerState, height uint64, batch *events.Batch) {
	for _, ft := range st.PurgeExpired(height) {
		drop(ft.Request, ft.Gas, dropExpired, batch)
	}
}

func drop(sda *types.SignedDelegateAction, gas types.Gas, reason string, batch *events.Batch) {
	log.Warn().
		Str("sender", string(sda.Sender())).
		Uint64("nonce", sda.Nonce()).
		Uint64("gas", uint64(gas)).
		Uint64("max_block_height", sda.DelegateAction.MaxBlockHeight).
		Str("reason", reason).
		Msg("[Relayer] [drop] transaction dropped")
	batch.Add(events.EVENT_TRANSACTION_DROPPED, events.TransactionStatus{
		Sender: string(sda.Sender()),
		Nonce:  sda.Nonce(),
		Gas:    uint64(gas),
		Reason: reason,
	})
}

// RetryFailedTransactions re-dispatches up to limit queued requests in FIFO order after
// purging expired entries. It stops at the first entry the pool cannot cover and leaves
// the queue untouched while the relayer is paused. Entries that no longer pass
// admission are dropped.
func (s *Service) RetryFailedTransactions(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = state.MaxFailedTransactions
	}
	ctx, span := s.tracer.Start(ctx, "RetryFailedTransactions")
	height, err := s.blockHeight(ctx)
	if err != nil {
		endSpan(span, err)
		return 0, err
	}
	batch := events.NewBatch()
	var plans []*host.Plan
	err = s.Store.Update(ctx, func(st *state.RelayerState) error {
		batch.Reset()
		plans = plans[:0]
		purgeExpired(st, height, batch)
		if st.Paused {
			return nil
		}
		for len(plans) < limit {
			ft, ok := st.PeekFailed()
			if !ok {
				break
			}
			plan, err := redispatch(st, ft.Request, ft.Gas, 1, height, batch)
			if errors.Is(err, types.ErrInsufficientGasPool) {
				break
			}
			st.PopFailed()
			if err != nil {
				drop(ft.Request, ft.Gas, err.Error(), batch)
				continue
			}
			plans = append(plans, plan)
		}
		return nil
	})
	if err != nil {
		endSpan(span, err)
		return 0, err
	}
	s.EventBus.Publish(ctx, batch)
	if err := s.submit(ctx, plans, 1); err != nil {
		endSpan(span, err)
		return 0, err
	}
	if len(plans) > 0 {
		log.Info().Int("retried", len(plans)).Uint64("height", height).Msg("[Relayer] [RetryFailedTransactions] re-dispatched queued transactions")
	}
	endSpan(span, nil)
	return len(plans), nil
}

// RetryWorker drains the retry queue periodically and forgets finished in-flight plans.
type RetryWorker struct {
	service   *Service
	mutex     sync.Mutex
	isRunning bool
	period    time.Duration
	batchSize int
	retention time.Duration
}

func NewRetryWorker(service *Service, period time.Duration, batchSize int, retention time.Duration) *RetryWorker {
	return &RetryWorker{
		service:   service,
		period:    period,
		batchSize: batchSize,
		retention: retention,
	}
}

func (w *RetryWorker) Start(ctx context.Context) error {
	if w.period <= 0 {
		return fmt.Errorf("retry period must be positive")
	}
	w.mutex.Lock()
	if w.isRunning {
		w.mutex.Unlock()
		return nil
	}
	w.isRunning = true
	w.mutex.Unlock()
	go w.retryLoop(ctx)
	return nil
}

func (w *RetryWorker) Stop() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.isRunning = false
}

func (w *RetryWorker) running() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.isRunning
}

func (w *RetryWorker) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("[RetryWorker] [retryLoop] stopped due to context cancellation")
			return
		case <-ticker.C:
			if !w.running() {
				return
			}
			if _, err := w.service.RetryFailedTransactions(ctx, w.batchSize); err != nil {
				log.Error().Err(err).Msg("[RetryWorker] [retryLoop] retry cycle failed")
			}
			if w.retention > 0 {
				if n := w.service.InFlight.Prune(w.retention); n > 0 {
					log.Debug().Int("pruned", n).Msg("[RetryWorker] [retryLoop] pruned finished plans")
				}
			}
		}
	}
}
