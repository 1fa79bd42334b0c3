package relayer_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/OnSocial-Labs/onsocial-relayer/internal/relayer"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayMetaTransactionCommitsOnSuccess(t *testing.T) {
	f := newFixture(t)
	committed := f.bus.Subscribe(events.EVENT_TRANSACTION_COMMITTED)

	id, err := f.service.RelayMetaTransaction(f.ctx, f.request(1, 100, call(300*types.TGas)))
	require.NoError(t, err)
	assert.Equal(t, "990", f.pool(), "cost is reserved on admission")

	plan := f.take()
	require.Equal(t, id, plan.ID)
	require.Len(t, plan.Links, 2)
	fc := plan.Links[0].Step.Operation.(*types.FunctionCall)
	assert.Equal(t, 250*types.TGas, fc.Gas, "gas is clamped to the maximum")
	assert.Equal(t, relayAcc, plan.Links[0].Step.Predecessor)
	assert.Equal(t, alice, plan.Links[0].Step.OnBehalfOf)
	assert.Equal(t, host.CallbackFinalize, plan.Links[1].Callback.Kind)
	assert.Equal(t, "10", plan.Links[1].Callback.Cost.Dec())
	assert.Equal(t, 300*types.TGas, plan.Request.DelegateAction.Operations[0].(*types.FunctionCall).Gas,
		"the plan keeps the request as signed")

	inFlight, ok := f.service.InFlight.Get(id)
	require.True(t, ok)
	assert.Equal(t, relayer.PlanPending, inFlight.Status)

	f.host.Complete(f.ctx, f.service, plan)
	assert.Equal(t, uint64(1), f.lastNonce())
	assert.Equal(t, "990", f.pool(), "the reserved cost is consumed")
	assert.Len(t, collect(committed), 1)
	inFlight, _ = f.service.InFlight.Get(id)
	assert.Equal(t, relayer.PlanCommitted, inFlight.Status)
}

func TestRelayRejectsReplayedNonce(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.RelayMetaTransaction(f.ctx, f.request(5, 100, call(10*types.TGas)))
	require.NoError(t, err)
	f.host.CompleteAll(f.ctx, f.service)
	require.Equal(t, uint64(5), f.lastNonce())

	for _, nonce := range []uint64{5, 4, 1} {
		_, err := f.service.RelayMetaTransaction(f.ctx, f.request(nonce, 100, call(10*types.TGas)))
		require.ErrorIs(t, err, types.ErrInvalidNonce, "nonce %d", nonce)
	}
	assert.Equal(t, "990", f.pool())
	assert.Empty(t, f.host.Plans())
}

func TestRelayRejectsWhenPoolBelowFloor(t *testing.T) {
	f := newFixture(t, func(c *config.RelayerConfig) {
		c.InitialGasPool = "0"
	})
	_, err := f.service.RelayMetaTransaction(f.ctx, f.request(1, 100, call(10*types.TGas)))
	require.ErrorIs(t, err, types.ErrInsufficientGasPool)
	assert.Equal(t, "0", f.pool())
	assert.Empty(t, f.host.Plans())
}

func TestRelayValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.RelayerConfig)
		request func(f *fixture) *types.SignedDelegateAction
		want    error
	}{
		{
			name:    "expired",
			request: func(f *fixture) *types.SignedDelegateAction { return f.request(1, 9, call(types.TGas)) },
			want:    types.ErrExpiredTransaction,
		},
		{
			name: "two operations on single relay",
			request: func(f *fixture) *types.SignedDelegateAction {
				return f.request(1, 100, call(types.TGas), transfer(1))
			},
			want: types.ErrMalformedRequest,
		},
		{
			name:    "no operations",
			request: func(f *fixture) *types.SignedDelegateAction { return f.request(1, 100) },
			want:    types.ErrMalformedRequest,
		},
		{
			name: "tampered after signing",
			request: func(f *fixture) *types.SignedDelegateAction {
				sda := f.request(1, 100, call(types.TGas))
				sda.DelegateAction.Nonce = 2
				return sda
			},
			want: types.ErrUnauthorized,
		},
		{
			name: "unregistered sender",
			request: func(f *fixture) *types.SignedDelegateAction {
				sda := f.request(1, 100, call(types.TGas))
				sda.DelegateAction.SenderID = "mallory.testnet"
				return sda
			},
			want: types.ErrUnauthorized,
		},
		{
			name: "receiver not whitelisted",
			mutate: func(c *config.RelayerConfig) {
				c.Whitelist = []string{"other.testnet"}
			},
			request: func(f *fixture) *types.SignedDelegateAction { return f.request(1, 100, call(types.TGas)) },
			want:    types.ErrNotWhitelisted,
		},
		{
			name: "unknown target chain",
			request: func(f *fixture) *types.SignedDelegateAction {
				return f.request(1, 100, &types.ChainSignatureRequest{TargetChain: "solana", Payload: make([]byte, 32)})
			},
			want: types.ErrInvalidAccountID,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var mutate []func(*config.RelayerConfig)
			if tc.mutate != nil {
				mutate = append(mutate, tc.mutate)
			}
			f := newFixture(t, mutate...)
			_, err := f.service.RelayMetaTransaction(f.ctx, tc.request(f))
			require.ErrorIs(t, err, tc.want)
			var relayErr *types.RelayError
			require.True(t, errors.As(err, &relayErr))
			assert.Equal(t, "1000", f.pool())
		})
	}
}

func TestRelayWhilePaused(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.SetPaused(f.ctx, manager, true))
	_, err := f.service.RelayMetaTransaction(f.ctx, f.request(1, 100, call(types.TGas)))
	require.ErrorIs(t, err, types.ErrContractPaused)
	_, err = f.service.RelayChunkedMetaTransactions(f.ctx, []*types.SignedDelegateAction{f.request(1, 100, call(types.TGas))})
	require.ErrorIs(t, err, types.ErrContractPaused)
}

func TestRelayMetaTransactionsIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	bad := f.request(2, 100, call(types.TGas))
	bad.DelegateAction.MaxBlockHeight = 101

	_, err := f.service.RelayMetaTransactions(f.ctx, []*types.SignedDelegateAction{
		f.request(1, 100, call(types.TGas), transfer(5)),
		bad,
	})
	require.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Equal(t, "1000", f.pool())
	assert.Empty(t, f.host.Plans())

	_, err = f.service.RelayMetaTransactions(f.ctx, []*types.SignedDelegateAction{
		f.request(1, 100, call(types.TGas)),
		f.request(1, 100, transfer(5)),
	})
	require.ErrorIs(t, err, types.ErrInvalidNonce)

	ids, err := f.service.RelayMetaTransactions(f.ctx, []*types.SignedDelegateAction{
		f.request(1, 100, call(types.TGas), transfer(5)),
		f.request(2, 100, transfer(7), call(types.TGas)),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "960", f.pool(), "costs are summed across the batch")

	sponsored := f.bus.Subscribe(events.EVENT_ACCOUNT_SPONSORED)
	assert.Equal(t, 2, f.host.CompleteAll(f.ctx, f.service))
	assert.Equal(t, uint64(2), f.lastNonce())
	assert.Len(t, collect(sponsored), 2)
}

func TestRelayMetaTransactionsAdmissionNeedsWholeBatchCost(t *testing.T) {
	f := newFixture(t, func(c *config.RelayerConfig) {
		c.InitialGasPool = "115"
	})
	_, err := f.service.RelayMetaTransactions(f.ctx, []*types.SignedDelegateAction{
		f.request(1, 100, call(types.TGas)),
		f.request(2, 100, call(types.TGas)),
	})
	require.ErrorIs(t, err, types.ErrInsufficientGasPool)
	assert.Equal(t, "115", f.pool())
}

func TestRelayChunkedIsolatesMalformedEntries(t *testing.T) {
	f := newFixture(t)
	bad := f.request(2, 100, call(types.TGas))
	bad.DelegateAction.Nonce = 50

	results, err := f.service.RelayChunkedMetaTransactions(f.ctx, []*types.SignedDelegateAction{
		f.request(1, 100, call(types.TGas)),
		bad,
		f.request(3, 100, call(types.TGas)),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Empty(t, results[0].Error)
	assert.Contains(t, results[1].Error, types.ErrUnauthorized.Error())
	assert.Empty(t, results[2].Error)
	assert.Equal(t, []int{0, 0, 1}, []int{results[0].Chunk, results[1].Chunk, results[2].Chunk})
	assert.Equal(t, "980", f.pool(), "only valid entries are charged")

	plans := f.host.Plans()
	require.Len(t, plans, 3)
	require.Len(t, plans[1].Links, 1)
	assert.Equal(t, host.CallbackNoop, plans[1].Links[0].Callback.Kind)

	f.host.CompleteAll(f.ctx, f.service)
	assert.Equal(t, uint64(3), f.lastNonce())
	placeholder, ok := f.service.InFlight.Get(results[1].PlanID)
	require.True(t, ok)
	assert.Equal(t, relayer.PlanFailed, placeholder.Status)

	_, err = f.service.RelayChunkedMetaTransactions(f.ctx, nil)
	require.ErrorIs(t, err, types.ErrMalformedRequest)
}

func TestRelayChainSignatureRequests(t *testing.T) {
	f := newFixture(t)
	results := f.bus.Subscribe(events.EVENT_CROSS_CHAIN_SIGNATURE_RESULT)
	sign := func() *types.ChainSignatureRequest {
		return &types.ChainSignatureRequest{TargetChain: "ethereum", DerivationPath: "ethereum-1", Payload: make([]byte, 32)}
	}

	_, err := f.service.RelayMetaTransactions(f.ctx, []*types.SignedDelegateAction{
		f.request(1, 100, sign(), sign()),
	})
	require.NoError(t, err)
	plan := f.take()
	require.Len(t, plan.Links, 3)
	for i, want := range []uint64{1, 2} {
		link := plan.Links[i]
		assert.Equal(t, mpc, link.Step.Receiver)
		fc := link.Step.Operation.(*types.FunctionCall)
		assert.Equal(t, "sign", fc.MethodName)
		var args host.SignArgs
		require.NoError(t, json.Unmarshal(fc.Args, &args))
		assert.Equal(t, want, args.RequestID)
		assert.Equal(t, string(alice), args.OnBehalfOf)
		assert.Equal(t, want, link.Callback.RequestID)
		assert.Equal(t, "ethereum", link.Callback.TargetChain)
	}

	// a failed signature is reported but does not fail the request
	f.host.Complete(f.ctx, f.service, plan, host.Fail("signer unavailable"))
	assert.Equal(t, uint64(1), f.lastNonce())
	assert.Empty(t, f.queue())
	got := collect(results)
	require.Len(t, got, 2)
	assert.False(t, got[0].Data.(events.CrossChainSignatureResult).Success)
}

func TestRelayChainSignatureFailureDoesNotBlockLaterOperations(t *testing.T) {
	f := newFixture(t)
	sponsored := f.bus.Subscribe(events.EVENT_ACCOUNT_SPONSORED)
	sign := &types.ChainSignatureRequest{TargetChain: "ethereum", DerivationPath: "ethereum-1", Payload: make([]byte, 32)}

	_, err := f.service.RelayMetaTransactions(f.ctx, []*types.SignedDelegateAction{
		f.request(1, 100, sign, transfer(5)),
	})
	require.NoError(t, err)
	plan := f.take()
	require.Len(t, plan.Links, 3)

	f.host.Complete(f.ctx, f.service, plan, host.Fail("signer unavailable"))
	assert.Equal(t, uint64(1), f.lastNonce())
	assert.Empty(t, f.queue())
	assert.Empty(t, f.host.Plans(), "no retry is dispatched")
	assert.Len(t, collect(sponsored), 1)
}

func TestRelayFeePayment(t *testing.T) {
	withToken := func(c *config.RelayerConfig) {
		c.PaymentFTContract = "usdc.testnet"
		c.MinFTDeposit = "1"
	}
	fee := func(receiver string, deposit uint64) types.Operation {
		args, _ := json.Marshal(host.FTTransferArgs{ReceiverID: receiver, Amount: "5"})
		fc := &types.FunctionCall{MethodName: "ft_transfer", Args: args, Gas: 5 * types.TGas}
		fc.Deposit.SetUint64(deposit)
		return fc
	}
	tests := []struct {
		name string
		fee  types.Operation
		want error
	}{
		{"missing", nil, types.ErrInvalidFTTransfer},
		{"wrong method", &types.FunctionCall{MethodName: "ft_transfer_call"}, types.ErrInvalidFTTransfer},
		{"wrong receiver", fee("bob.testnet", 1), types.ErrInvalidFTTransfer},
		{"no deposit", fee(string(relayAcc), 0), types.ErrInsufficientDeposit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, withToken)
			_, err := f.service.RelayMetaTransaction(f.ctx, f.requestWithFee(1, 100, tc.fee, call(types.TGas)))
			require.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("valid", func(t *testing.T) {
		f := newFixture(t, withToken)
		charged := f.bus.Subscribe(events.EVENT_FEE_CHARGED)
		_, err := f.service.RelayMetaTransaction(f.ctx, f.requestWithFee(1, 100, fee(string(relayAcc), 1), call(types.TGas)))
		require.NoError(t, err)
		assert.Equal(t, "980", f.pool(), "the fee action costs one more unit")

		plan := f.take()
		require.Len(t, plan.Links, 3)
		assert.Equal(t, host.CallbackFeePayment, plan.Links[0].Callback.Kind)
		assert.Equal(t, types.AccountID("usdc.testnet"), plan.Links[0].Step.Receiver)

		f.host.Complete(f.ctx, f.service, plan)
		got := collect(charged)
		require.Len(t, got, 1)
		assert.Equal(t, "5", got[0].Data.(events.FeeCharged).Amount)
	})
}

func TestRelayRefundsWhenHostRejectsPlans(t *testing.T) {
	f := newFixture(t)
	f.host.SubmitErr = errors.New("host unavailable")
	_, err := f.service.RelayMetaTransaction(f.ctx, f.request(1, 100, call(types.TGas)))
	require.Error(t, err)
	assert.Equal(t, "1000", f.pool())
	assert.Zero(t, f.service.InFlight.Active())
}
