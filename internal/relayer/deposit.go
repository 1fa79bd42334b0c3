package relayer

import (
	"context"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/rs/zerolog/log"
)

// credit adds amount to the pool. Anything above MaxGasPool is returned as a transfer
// plan to the overflow recipient, which the caller submits after committing.
func (s *Service) credit(st *state.RelayerState, depositor types.AccountID, amount *types.Balance, batch *events.Batch) *host.Plan {
	overflow := st.Deposit(amount)
	payload := events.GasPoolUpdated{
		Depositor: string(depositor),
		Amount:    amount.Dec(),
		Balance:   st.GasPool.Dec(),
	}
	if overflow.IsZero() {
		batch.Add(events.EVENT_GAS_POOL_UPDATED, payload)
		return nil
	}
	payload.Overflow = overflow.Dec()
	batch.Add(events.EVENT_GAS_POOL_UPDATED, payload)

	transfer := &types.Transfer{}
	transfer.Deposit.Set(overflow)
	callback := host.Callback{Kind: host.CallbackOverflowForwarded, Detail: string(st.OverflowRecipient)}
	callback.Cost.Set(overflow)
	return host.NewPlan(nil).Add(&host.Call{
		Predecessor: st.RelayerAccount,
		OnBehalfOf:  st.RelayerAccount,
		Receiver:    st.OverflowRecipient,
		Operation:   transfer,
	}, callback)
}

// Deposit credits the gas pool with amount on behalf of from. The pool never grows
// past MaxGasPool; the excess is forwarded to the overflow recipient.
func (s *Service) Deposit(ctx context.Context, from types.AccountID, amount *types.Balance) (*PoolStatus, error) {
	if amount == nil || amount.IsZero() {
		return nil, types.NewRelayError(types.ErrAmountTooLow, nil, "deposit must be positive")
	}
	if !types.FitsU128(amount) {
		return nil, types.NewRelayError(types.ErrMalformedRequest, nil, "deposit %s does not fit in 128 bits", amount.Dec())
	}
	batch := events.NewBatch()
	var overflowPlan *host.Plan
	err := s.Store.Update(ctx, func(st *state.RelayerState) error {
		batch.Reset()
		overflowPlan = s.credit(st, from, amount, batch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.EventBus.Publish(ctx, batch)
	if overflowPlan != nil {
		log.Info().
			Str("depositor", string(from)).
			Str("overflow", overflowPlan.Links[0].Callback.Cost.Dec()).
			Msg("[Relayer] [Deposit] pool capped, forwarding overflow")
		if err := s.submit(ctx, []*host.Plan{overflowPlan}, 0); err != nil {
			return nil, err
		}
	}
	return s.Pool(ctx)
}
