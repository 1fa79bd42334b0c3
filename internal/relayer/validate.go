package relayer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/signer"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
)

const ftTransferMethod = "ft_transfer"

type nonceKey struct {
	sender types.AccountID
	nonce  uint64
}

// validate runs every per-request admission rule except the pool reservation. The
// order of the checks decides which error a request with several problems gets.
func validate(st *state.RelayerState, sda *types.SignedDelegateAction, height uint64, single bool) error {
	if sda == nil {
		return types.NewRelayError(types.ErrMalformedRequest, nil, "empty request")
	}
	if st.Paused {
		return types.NewRelayError(types.ErrContractPaused, sda, "relayer is paused")
	}
	d := &sda.DelegateAction
	if d.Expired(height) {
		return types.NewRelayError(types.ErrExpiredTransaction, sda, "height %d is past max block height %d", height, d.MaxBlockHeight)
	}
	if err := checkOperationCount(sda, single); err != nil {
		return err
	}
	registered, ok := st.AuthAccounts[d.SenderID]
	if !ok || !registered.Equal(sda.PublicKey) {
		return types.NewRelayError(types.ErrUnauthorized, sda, "signing key %s is not registered for sender", sda.PublicKey)
	}
	if err := signer.Verify(sda); err != nil {
		return types.NewRelayError(types.ErrUnauthorized, sda, "%s", strings.TrimPrefix(err.Error(), types.ErrUnauthorized.Error()+": "))
	}
	if err := st.AdmitNonce(d.SenderID, d.Nonce); err != nil {
		return types.NewRelayError(types.ErrInvalidNonce, sda, "nonce %d is not above %d", d.Nonce, st.LastNonce(d.SenderID))
	}
	if err := checkPayment(st, sda); err != nil {
		return err
	}
	for i, op := range d.Operations {
		switch o := op.(type) {
		case *types.FunctionCall:
			if !st.IsWhitelisted(d.ReceiverID) {
				return types.NewRelayError(types.ErrNotWhitelisted, sda, "receiver %s is not whitelisted", d.ReceiverID)
			}
		case *types.ChainSignatureRequest:
			if _, err := st.ResolveChain(o.TargetChain); err != nil {
				return types.NewRelayError(types.ErrInvalidAccountID, sda, "operation %d: %v", i, err)
			}
		case *types.Transfer, *types.AddKey:
		default:
			return types.NewRelayError(types.ErrMalformedRequest, sda, "operation %d has unknown kind %T", i, op)
		}
	}
	return nil
}

func checkOperationCount(sda *types.SignedDelegateAction, single bool) error {
	n := len(sda.DelegateAction.Operations)
	if single && n != 1 {
		return types.NewRelayError(types.ErrMalformedRequest, sda, "single relay takes exactly one operation, got %d", n)
	}
	if n == 0 || n > types.MaxOperations {
		return types.NewRelayError(types.ErrMalformedRequest, sda, "operation count %d outside [1, %d]", n, types.MaxOperations)
	}
	return nil
}

// checkPayment enforces the fee action when a payment token is configured: an
// ft_transfer to the relayer with at least the minimum attached deposit.
func checkPayment(st *state.RelayerState, sda *types.SignedDelegateAction) error {
	if st.PaymentFTContract == "" {
		if sda.FeeAction != nil {
			return types.NewRelayError(types.ErrInvalidFTTransfer, sda, "no payment token is configured")
		}
		return nil
	}
	if sda.FeeAction == nil {
		return types.NewRelayError(types.ErrInvalidFTTransfer, sda, "fee payment through %s is required", st.PaymentFTContract)
	}
	fee, ok := sda.FeeAction.(*types.FunctionCall)
	if !ok || fee.MethodName != ftTransferMethod {
		return types.NewRelayError(types.ErrInvalidFTTransfer, sda, "fee action must be a %s call", ftTransferMethod)
	}
	var args host.FTTransferArgs
	if err := json.Unmarshal(fee.Args, &args); err != nil {
		return types.NewRelayError(types.ErrInvalidFTTransfer, sda, "invalid %s args: %v", ftTransferMethod, err)
	}
	if types.AccountID(args.ReceiverID) != st.RelayerAccount {
		return types.NewRelayError(types.ErrInvalidFTTransfer, sda, "fee must be paid to %s, not %q", st.RelayerAccount, args.ReceiverID)
	}
	if _, err := types.ParseBalance(args.Amount); err != nil {
		return types.NewRelayError(types.ErrInvalidFTTransfer, sda, "%v", err)
	}
	if fee.Deposit.Lt(&st.MinFTDeposit) {
		return types.NewRelayError(types.ErrInsufficientDeposit, sda, "attached deposit %s below minimum %s", fee.Deposit.Dec(), st.MinFTDeposit.Dec())
	}
	return nil
}

// admit validates a group of requests and reserves their summed cost in one step. A
// duplicate (sender, nonce) inside the group is rejected as a replay.
func admit(st *state.RelayerState, requests []*types.SignedDelegateAction, height uint64, single bool) (*types.Balance, error) {
	if len(requests) == 0 {
		return nil, types.NewRelayError(types.ErrMalformedRequest, nil, "no requests")
	}
	seen := make(map[nonceKey]struct{}, len(requests))
	total := new(types.Balance)
	for i, sda := range requests {
		if err := validate(st, sda, height, single); err != nil {
			return nil, indexed(i, len(requests), err)
		}
		key := nonceKey{sda.Sender(), sda.Nonce()}
		if _, dup := seen[key]; dup {
			return nil, indexed(i, len(requests), types.NewRelayError(types.ErrInvalidNonce, sda, "duplicate nonce in batch"))
		}
		seen[key] = struct{}{}
		total.Add(total, st.CostOf(sda))
	}
	if !st.CanReserve(total) {
		return nil, types.NewRelayError(types.ErrInsufficientGasPool, nil, "pool %s, floor %s, cost %s", st.GasPool.Dec(), st.MinGasPool.Dec(), total.Dec())
	}
	if err := st.Reserve(total); err != nil {
		return nil, err
	}
	return total, nil
}

func indexed(i, n int, err error) error {
	if n == 1 {
		return err
	}
	return fmt.Errorf("request %d: %w", i, err)
}
