package relayer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"
)

// OnCompletion is invoked by the host once per link of every submitted plan.
func (s *Service) OnCompletion(ctx context.Context, c host.Completion) error {
	plan := c.Plan
	s.InFlight.Executing(plan.ID)
	batch := events.NewBatch()
	last := c.Link == len(plan.Links)-1

	switch c.Callback.Kind {
	case host.CallbackFinalize:
		return s.finalize(ctx, c)
	case host.CallbackNoop:
		log.Warn().Int("index", c.Callback.Index).Str("reason", c.Callback.Detail).
			Msg("[Relayer] [OnCompletion] placeholder for rejected chunk entry")
		s.InFlight.Finish(plan.ID, PlanFailed, c.Callback.Detail)
		return nil
	case host.CallbackFeePayment:
		s.onFeePayment(c, batch)
	case host.CallbackOperationResult:
		s.onOperationResult(c, batch)
	case host.CallbackChainSignatureResult:
		s.onChainSignature(c, batch)
	case host.CallbackAuthResult:
		if err := s.onAuthResult(ctx, c, batch); err != nil {
			return err
		}
	case host.CallbackOverflowForwarded:
		if c.Outcome.OK() {
			log.Info().Str("recipient", c.Callback.Detail).Str("amount", c.Callback.Cost.Dec()).
				Msg("[Relayer] [OnCompletion] overflow forwarded")
		} else {
			log.Error().Str("recipient", c.Callback.Detail).Str("amount", c.Callback.Cost.Dec()).Str("error", c.Outcome.Error).
				Msg("[Relayer] [OnCompletion] overflow transfer failed, amount stays with the relayer account")
		}
	default:
		return fmt.Errorf("unknown callback kind %s", c.Callback.Kind)
	}
	s.EventBus.Publish(ctx, batch)
	if last {
		if c.Outcome.OK() {
			s.InFlight.Finish(plan.ID, PlanCommitted, "")
		} else {
			s.InFlight.Finish(plan.ID, PlanFailed, c.Outcome.Error)
		}
	}
	return nil
}

func (s *Service) onFeePayment(c host.Completion, batch *events.Batch) {
	sda := c.Plan.Request
	if !c.Outcome.OK() {
		log.Warn().Str("sender", string(sda.Sender())).Uint64("nonce", sda.Nonce()).Str("error", c.Outcome.Error).
			Msg("[Relayer] [onFeePayment] fee payment failed")
		return
	}
	step := c.Plan.Links[c.Link].Step
	var args host.FTTransferArgs
	if fc, ok := step.Operation.(*types.FunctionCall); ok {
		_ = json.Unmarshal(fc.Args, &args)
	}
	batch.Add(events.EVENT_FEE_CHARGED, events.FeeCharged{
		Sender:   string(sda.Sender()),
		Contract: string(step.Receiver),
		Amount:   args.Amount,
		Nonce:    sda.Nonce(),
	})
}

func (s *Service) onOperationResult(c host.Completion, batch *events.Batch) {
	sda := c.Plan.Request
	if !c.Outcome.OK() {
		log.Warn().Str("sender", string(sda.Sender())).Uint64("nonce", sda.Nonce()).
			Int("operation", c.Callback.Index).Uint64("gas", uint64(c.Callback.Gas)).
			Str("status", c.Outcome.Status.String()).Str("error", c.Outcome.Error).
			Msg("[Relayer] [onOperationResult] operation did not succeed")
	}
	if c.Callback.Detail != "bridge" {
		return
	}
	fc, ok := c.Plan.Links[c.Link].Step.Operation.(*types.FunctionCall)
	if !ok {
		return
	}
	if c.Outcome.OK() {
		batch.Add(events.EVENT_BRIDGE_TRANSFER_COMPLETED, bridgeTransfer(sda, fc, ""))
	} else {
		batch.Add(events.EVENT_BRIDGE_TRANSFER_FAILED, bridgeTransfer(sda, fc, c.Outcome.Error))
	}
}

// onChainSignature reports the signer's answer. A failed signature never triggers a
// retry on its own.
func (s *Service) onChainSignature(c host.Completion, batch *events.Batch) {
	sda := c.Plan.Request
	payload := events.CrossChainSignatureResult{
		Sender:      string(sda.Sender()),
		RequestID:   c.Callback.RequestID,
		TargetChain: c.Callback.TargetChain,
		Success:     c.Outcome.OK(),
	}
	if c.Outcome.OK() {
		var result host.SignResult
		if err := json.Unmarshal(c.Outcome.Value, &result); err == nil {
			payload.Signature = hexutil.Encode(result.Signature)
		}
		log.Info().Str("sender", payload.Sender).Uint64("request_id", payload.RequestID).Str("chain", payload.TargetChain).
			Msg("[Relayer] [onChainSignature] signature produced")
	} else {
		payload.Error = c.Outcome.Error
		log.Warn().Str("sender", payload.Sender).Uint64("request_id", payload.RequestID).Str("chain", payload.TargetChain).
			Str("error", c.Outcome.Error).Msg("[Relayer] [onChainSignature] signature request failed")
	}
	batch.Add(events.EVENT_CROSS_CHAIN_SIGNATURE_RESULT, payload)
}

// succeeded reports whether every step that decides the fate of a request succeeded.
// Chain signature steps are observational.
func succeeded(c host.Completion) (bool, string) {
	for i, link := range c.Plan.Links {
		if link.Step == nil || link.Callback.Kind == host.CallbackChainSignatureResult {
			continue
		}
		if i < len(c.Results) && !c.Results[i].OK() {
			return false, c.Results[i].Error
		}
	}
	return true, ""
}

// finalize is the last callback of every request plan. On success it commits the
// nonce; on failure it returns the reserved cost to the pool and hands the request to
// the retry policy.
func (s *Service) finalize(ctx context.Context, c host.Completion) error {
	plan := c.Plan
	sda := plan.Request
	if sda == nil {
		return fmt.Errorf("finalize callback on plan %s without request", plan.ID)
	}
	ok, reason := succeeded(c)
	batch := events.NewBatch()
	var followUps []*host.Plan
	var commitErr error
	err := s.Store.Update(ctx, func(st *state.RelayerState) error {
		batch.Reset()
		followUps = followUps[:0]
		commitErr = nil
		if ok {
			if commitErr = st.CommitNonce(sda.Sender(), sda.Nonce()); commitErr != nil {
				return nil
			}
			batch.Add(events.EVENT_TRANSACTION_COMMITTED, events.TransactionStatus{
				Sender: string(sda.Sender()),
				Nonce:  sda.Nonce(),
				Gas:    uint64(c.Callback.Gas),
			})
			for _, op := range sda.DelegateAction.Operations {
				if t, isTransfer := op.(*types.Transfer); isTransfer {
					batch.Add(events.EVENT_ACCOUNT_SPONSORED, events.AccountSponsored{
						Sender:   string(sda.Sender()),
						Receiver: string(sda.DelegateAction.ReceiverID),
						Amount:   t.Deposit.Dec(),
						Nonce:    sda.Nonce(),
					})
				}
			}
			return nil
		}
		if overflow := s.credit(st, "", &c.Callback.Cost, batch); overflow != nil {
			followUps = append(followUps, overflow)
		}
		if retry := handleFailure(st, sda, c.Callback.Gas, c.Callback.Attempt, c.Height, reason, batch); retry != nil {
			followUps = append(followUps, retry)
		}
		return nil
	})
	if err != nil {
		s.InFlight.Finish(plan.ID, PlanFailed, err.Error())
		return fmt.Errorf("failed to finalize plan %s: %w", plan.ID, err)
	}
	s.EventBus.Publish(ctx, batch)

	switch {
	case commitErr != nil:
		log.Warn().Err(commitErr).Str("sender", string(sda.Sender())).Uint64("nonce", sda.Nonce()).
			Msg("[Relayer] [finalize] executed request lost the nonce race")
		s.InFlight.Finish(plan.ID, PlanFailed, commitErr.Error())
	case ok:
		log.Info().Str("sender", string(sda.Sender())).Uint64("nonce", sda.Nonce()).
			Int("attempt", c.Callback.Attempt).Uint64("gas", uint64(c.Callback.Gas)).
			Msg("[Relayer] [finalize] meta transaction committed")
		s.InFlight.Finish(plan.ID, PlanCommitted, "")
	default:
		log.Warn().Str("sender", string(sda.Sender())).Uint64("nonce", sda.Nonce()).
			Int("attempt", c.Callback.Attempt).Uint64("gas", uint64(c.Callback.Gas)).Str("reason", reason).
			Msg("[Relayer] [finalize] meta transaction failed, reserved cost refunded")
		s.InFlight.Finish(plan.ID, PlanFailed, reason)
	}
	for _, followUp := range followUps {
		attempt := 0
		if followUp.Request != nil {
			attempt = c.Callback.Attempt + 1
		}
		s.submitQuietly(ctx, []*host.Plan{followUp}, attempt)
	}
	return nil
}
