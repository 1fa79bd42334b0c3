package relayer

import (
	"encoding/json"
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
)

// budget is the gas budget a request is annotated with: the largest gas any of its
// function calls is actually sent with, or the default when it has none.
func budget(st *state.RelayerState, sda *types.SignedDelegateAction) types.Gas {
	var g types.Gas
	for _, op := range sda.DelegateAction.Operations {
		if fc, ok := op.(*types.FunctionCall); ok && fc.Gas > g {
			g = fc.Gas
		}
	}
	return attachedGas(st, g, 0)
}

// attachedGas is the gas a function call is sent with: the retry budget when one is
// set, the requested gas otherwise, never above MaxGas.
func attachedGas(st *state.RelayerState, requested, retryBudget types.Gas) types.Gas {
	g := requested
	if retryBudget > 0 {
		g = retryBudget
	}
	if g == 0 {
		g = st.DefaultGas
	}
	return min(g, st.MaxGas)
}

// buildPlan translates one admitted request into its ordered chain: optional fee
// payment, one step per operation, then the finalize callback carrying the reserved
// cost. retryBudget is zero on the first attempt. The plan keeps an unmodified copy of
// the request; steps work on their own copies of the operations.
func buildPlan(st *state.RelayerState, sda *types.SignedDelegateAction, retryBudget types.Gas, attempt int, batch *events.Batch) (*host.Plan, error) {
	request := sda.Clone()
	d := &request.DelegateAction
	plan := host.NewPlan(request)

	if request.FeeAction != nil {
		fee, ok := types.CloneOperation(request.FeeAction).(*types.FunctionCall)
		if !ok {
			return nil, types.NewRelayError(types.ErrInvalidFTTransfer, sda, "fee action must be a function call")
		}
		fee.Gas = attachedGas(st, fee.Gas, 0)
		plan.Add(&host.Call{
			Predecessor: st.RelayerAccount,
			OnBehalfOf:  d.SenderID,
			Receiver:    st.PaymentFTContract,
			Operation:   fee,
		}, host.Callback{Kind: host.CallbackFeePayment, Gas: fee.Gas})
	}

	for i, op := range d.Operations {
		call := &host.Call{Predecessor: st.RelayerAccount, OnBehalfOf: d.SenderID, Receiver: d.ReceiverID}
		callback := host.Callback{Kind: host.CallbackOperationResult, Index: i}
		switch o := types.CloneOperation(op).(type) {
		case *types.FunctionCall:
			o.Gas = attachedGas(st, o.Gas, retryBudget)
			call.Operation = o
			callback.Gas = o.Gas
			if isBridgeTransfer(st, d.ReceiverID, o) {
				callback.Detail = "bridge"
				batch.Add(events.EVENT_BRIDGE_TRANSFER_INITIATED, bridgeTransfer(request, o, ""))
			}
		case *types.Transfer, *types.AddKey:
			call.Operation = o
		case *types.ChainSignatureRequest:
			mpc, err := st.ResolveChain(o.TargetChain)
			if err != nil {
				return nil, types.NewRelayError(types.ErrInvalidAccountID, sda, "operation %d: %v", i, err)
			}
			requestID := st.AllocateRequestID()
			args, err := json.Marshal(host.SignArgs{
				Payload:     o.Payload,
				Path:        o.DerivationPath,
				KeyVersion:  st.MpcKeyVersion,
				RequestID:   requestID,
				OnBehalfOf:  string(d.SenderID),
				TargetChain: o.TargetChain,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to encode sign request: %w", err)
			}
			gas := attachedGas(st, 0, 0)
			call.Receiver = mpc
			call.Operation = &types.FunctionCall{MethodName: "sign", Args: args, Gas: gas}
			callback = host.Callback{
				Kind:        host.CallbackChainSignatureResult,
				Index:       i,
				RequestID:   requestID,
				TargetChain: o.TargetChain,
				Gas:         gas,
			}
		default:
			return nil, types.NewRelayError(types.ErrMalformedRequest, sda, "operation %d has unknown kind %T", i, op)
		}
		plan.Add(call, callback)
	}

	finalize := host.Callback{
		Kind:    host.CallbackFinalize,
		Gas:     budget(st, sda),
		Attempt: attempt,
	}
	if retryBudget > 0 {
		finalize.Gas = retryBudget
	}
	finalize.Cost.Set(st.CostOf(sda))
	plan.Add(nil, finalize)
	return plan, nil
}

// placeholderPlan stands in for a malformed entry of a chunk so the rest of the chunk
// still goes out.
func placeholderPlan(index int, err error) *host.Plan {
	return host.NewPlan(nil).Add(nil, host.Callback{
		Kind:   host.CallbackNoop,
		Index:  index,
		Detail: err.Error(),
	})
}

func isBridgeTransfer(st *state.RelayerState, receiver types.AccountID, fc *types.FunctionCall) bool {
	return st.PaymentFTContract != "" && receiver == st.PaymentFTContract &&
		(fc.MethodName == ftTransferMethod || fc.MethodName == "ft_transfer_call")
}

func bridgeTransfer(sda *types.SignedDelegateAction, fc *types.FunctionCall, reason string) events.BridgeTransfer {
	var args host.FTTransferArgs
	_ = json.Unmarshal(fc.Args, &args)
	return events.BridgeTransfer{
		Sender:   string(sda.Sender()),
		Contract: string(sda.DelegateAction.ReceiverID),
		Receiver: args.ReceiverID,
		Amount:   args.Amount,
		Nonce:    sda.Nonce(),
		Error:    reason,
	}
}
