package relayer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	registerKeyMethod = "register_key"
	removeKeyMethod   = "remove_key"
)

// admin runs a manager-only mutation. fn may return a plan that is submitted once the
// change is committed.
func (s *Service) admin(ctx context.Context, name string, caller types.AccountID, fn func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error)) error {
	batch := events.NewBatch()
	var plan *host.Plan
	err := s.Store.Update(ctx, func(st *state.RelayerState) error {
		batch.Reset()
		if caller == "" || caller != st.Manager {
			return types.NewRelayError(types.ErrUnauthorized, nil, "%s is not the manager", caller)
		}
		var err error
		plan, err = fn(st, batch)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("caller", string(caller)).Msgf("[Relayer] [%s] rejected", name)
		return err
	}
	s.EventBus.Publish(ctx, batch)
	log.Info().Str("caller", string(caller)).Msgf("[Relayer] [%s] applied", name)
	if plan != nil {
		return s.submit(ctx, []*host.Plan{plan}, 0)
	}
	return nil
}

func updated(batch *events.Batch, event, field, old, next string) {
	batch.Add(event, events.ConfigUpdated{Field: field, Old: old, New: next})
}

func (s *Service) Manager(ctx context.Context) (types.AccountID, error) {
	var manager types.AccountID
	err := s.Store.View(ctx, func(st *state.RelayerState) error {
		manager = st.Manager
		return nil
	})
	return manager, err
}

func (s *Service) SetManager(ctx context.Context, caller, manager types.AccountID) error {
	return s.admin(ctx, "SetManager", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if manager == "" {
			return nil, types.NewRelayError(types.ErrInvalidAccountID, nil, "manager must not be empty")
		}
		batch.Add(events.EVENT_MANAGER_CHANGED, events.ManagerChanged{OldManager: string(st.Manager), NewManager: string(manager)})
		st.Manager = manager
		return nil, nil
	})
}

func (s *Service) SetPaused(ctx context.Context, caller types.AccountID, paused bool) error {
	return s.admin(ctx, "SetPaused", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		updated(batch, events.EVENT_PAUSED_UPDATED, "paused", strconv.FormatBool(st.Paused), strconv.FormatBool(paused))
		st.Paused = paused
		return nil, nil
	})
}

// SetGasPoolLimits changes the pool floor and cap. A pool above the new cap is trimmed
// and the excess forwarded to the overflow recipient.
func (s *Service) SetGasPoolLimits(ctx context.Context, caller types.AccountID, minPool, maxPool *types.Balance) error {
	return s.admin(ctx, "SetGasPoolLimits", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if maxPool.IsZero() || minPool.Gt(maxPool) || !types.FitsU128(maxPool) {
			return nil, types.NewRelayError(types.ErrAmountTooLow, nil, "min gas pool %s must not exceed max %s", minPool.Dec(), maxPool.Dec())
		}
		updated(batch, events.EVENT_GAS_POOL_LIMITS_UPDATED, "min_gas_pool", st.MinGasPool.Dec(), minPool.Dec())
		updated(batch, events.EVENT_GAS_POOL_LIMITS_UPDATED, "max_gas_pool", st.MaxGasPool.Dec(), maxPool.Dec())
		st.MinGasPool.Set(minPool)
		st.MaxGasPool.Set(maxPool)
		if st.GasPool.Gt(maxPool) {
			return s.credit(st, "", new(types.Balance), batch), nil
		}
		return nil, nil
	})
}

func (s *Service) SetBaseFee(ctx context.Context, caller types.AccountID, fee *types.Balance) error {
	return s.admin(ctx, "SetBaseFee", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if fee.IsZero() {
			return nil, types.NewRelayError(types.ErrFeeTooLow, nil, "base fee must be positive")
		}
		updated(batch, events.EVENT_BASE_FEE_UPDATED, "base_fee", st.BaseFee.Dec(), fee.Dec())
		st.BaseFee.Set(fee)
		return nil, nil
	})
}

func (s *Service) SetMaxGas(ctx context.Context, caller types.AccountID, maxGas types.Gas) error {
	return s.admin(ctx, "SetMaxGas", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if maxGas == 0 || maxGas > types.MaxRetryGas {
			return nil, types.NewRelayError(types.ErrAmountTooLow, nil, "max gas %d outside (0, %d]", maxGas, types.MaxRetryGas)
		}
		updated(batch, events.EVENT_MAX_GAS_UPDATED, "max_gas", strconv.FormatUint(uint64(st.MaxGas), 10), strconv.FormatUint(uint64(maxGas), 10))
		st.MaxGas = maxGas
		return nil, nil
	})
}

func (s *Service) SetChunkSize(ctx context.Context, caller types.AccountID, size int) error {
	return s.admin(ctx, "SetChunkSize", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if size < state.MinChunkSize || size > state.MaxChunkSize {
			return nil, types.NewRelayError(types.ErrAmountTooLow, nil, "chunk size %d outside [%d, %d]", size, state.MinChunkSize, state.MaxChunkSize)
		}
		updated(batch, events.EVENT_CHUNK_SIZE_UPDATED, "chunk_size", strconv.Itoa(st.ChunkSize), strconv.Itoa(size))
		st.ChunkSize = size
		return nil, nil
	})
}

// SetChainMpcMapping routes a target chain to a signer. An empty signer removes the
// route.
func (s *Service) SetChainMpcMapping(ctx context.Context, caller types.AccountID, chain string, signer types.AccountID) error {
	return s.admin(ctx, "SetChainMpcMapping", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if chain == "" {
			return nil, types.NewRelayError(types.ErrInvalidAccountID, nil, "chain must not be empty")
		}
		updated(batch, events.EVENT_CHAIN_MPC_MAPPING_UPDATED, chain, string(st.ChainMpcMapping[chain]), string(signer))
		if signer == "" {
			delete(st.ChainMpcMapping, chain)
		} else {
			st.ChainMpcMapping[chain] = signer
		}
		return nil, nil
	})
}

func (s *Service) AddWhitelistedContract(ctx context.Context, caller, contract types.AccountID) error {
	return s.admin(ctx, "AddWhitelistedContract", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if contract == "" {
			return nil, types.NewRelayError(types.ErrInvalidAccountID, nil, "contract must not be empty")
		}
		st.Whitelist[contract] = struct{}{}
		updated(batch, events.EVENT_WHITELIST_UPDATED, "add", "", string(contract))
		return nil, nil
	})
}

func (s *Service) RemoveWhitelistedContract(ctx context.Context, caller, contract types.AccountID) error {
	return s.admin(ctx, "RemoveWhitelistedContract", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if _, ok := st.Whitelist[contract]; !ok {
			return nil, types.NewRelayError(types.ErrNotWhitelisted, nil, "%s is not whitelisted", contract)
		}
		delete(st.Whitelist, contract)
		updated(batch, events.EVENT_WHITELIST_UPDATED, "remove", string(contract), "")
		return nil, nil
	})
}

// SetPaymentFTContract configures the fee token. An empty contract disables fee
// payment.
func (s *Service) SetPaymentFTContract(ctx context.Context, caller, contract types.AccountID, minDeposit *types.Balance) error {
	return s.admin(ctx, "SetPaymentFTContract", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if contract != "" && minDeposit.IsZero() {
			return nil, types.NewRelayError(types.ErrInsufficientDeposit, nil, "minimum deposit must be positive")
		}
		updated(batch, events.EVENT_PAYMENT_FT_CONTRACT_UPDATED, "payment_ft_contract", string(st.PaymentFTContract), string(contract))
		st.PaymentFTContract = contract
		st.MinFTDeposit.Set(minDeposit)
		return nil, nil
	})
}

func (s *Service) SetAuthMultisig(ctx context.Context, caller types.AccountID, enabled bool, threshold, expiryDays uint32) error {
	return s.admin(ctx, "SetAuthMultisig", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if enabled && threshold == 0 {
			return nil, types.NewRelayError(types.ErrInsufficientSignatures, nil, "multisig threshold must be positive")
		}
		updated(batch, events.EVENT_AUTH_MULTISIG_UPDATED, "auth_multisig",
			fmt.Sprintf("%t/%d", st.AuthMultisig, st.AuthMultisigThreshold), fmt.Sprintf("%t/%d", enabled, threshold))
		st.AuthMultisig = enabled
		st.AuthMultisigThreshold = threshold
		st.AuthKeyExpiryDays = expiryDays
		return nil, nil
	})
}

// AddAuthAccount authorises key to sign for account. With an auth contract configured
// the key is also registered there; AuthAdded is emitted when that call completes.
func (s *Service) AddAuthAccount(ctx context.Context, caller, account types.AccountID, key types.PublicKey) error {
	return s.admin(ctx, "AddAuthAccount", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		if account == "" {
			return nil, types.NewRelayError(types.ErrInvalidAccountID, nil, "account must not be empty")
		}
		if n, ok := key.Type.PublicKeyLength(); !ok || len(key.Data) != n {
			return nil, types.NewRelayError(types.ErrUnauthorized, nil, "invalid public key")
		}
		st.AuthAccounts[account] = key
		if st.AuthContract == "" {
			batch.Add(events.EVENT_AUTH_ADDED, events.AuthChanged{AccountID: string(account), PublicKey: key.String(), Success: true})
			return nil, nil
		}
		return authPlan(st, registerKeyMethod, host.RegisterKeyArgs{
			AccountID:         string(account),
			PublicKey:         key.String(),
			ExpirationDays:    st.AuthKeyExpiryDays,
			IsMultiSig:        st.AuthMultisig,
			MultiSigThreshold: st.AuthMultisigThreshold,
		})
	})
}

func (s *Service) RemoveAuthAccount(ctx context.Context, caller, account types.AccountID) error {
	return s.admin(ctx, "RemoveAuthAccount", caller, func(st *state.RelayerState, batch *events.Batch) (*host.Plan, error) {
		key, ok := st.AuthAccounts[account]
		if !ok {
			return nil, types.NewRelayError(types.ErrInvalidAccountID, nil, "%s has no registered key", account)
		}
		delete(st.AuthAccounts, account)
		if st.AuthContract == "" {
			batch.Add(events.EVENT_AUTH_REMOVED, events.AuthChanged{AccountID: string(account), PublicKey: key.String(), Success: true})
			return nil, nil
		}
		return authPlan(st, removeKeyMethod, host.RemoveKeyArgs{AccountID: string(account), PublicKey: key.String()})
	})
}

func authPlan(st *state.RelayerState, method string, args any) (*host.Plan, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s args: %w", method, err)
	}
	return host.NewPlan(nil).Add(&host.Call{
		Predecessor: st.RelayerAccount,
		OnBehalfOf:  st.RelayerAccount,
		Receiver:    st.AuthContract,
		Operation:   &types.FunctionCall{MethodName: method, Args: encoded, Gas: st.DefaultGas},
	}, host.Callback{Kind: host.CallbackAuthResult, Detail: method}), nil
}

// onAuthResult reports a key registration or removal. A registration the auth
// contract refused is rolled back locally.
func (s *Service) onAuthResult(ctx context.Context, c host.Completion, batch *events.Batch) error {
	fc, ok := c.Plan.Links[c.Link].Step.Operation.(*types.FunctionCall)
	if !ok {
		return fmt.Errorf("auth callback on plan %s without function call", c.Plan.ID)
	}
	var args host.RemoveKeyArgs
	if err := json.Unmarshal(fc.Args, &args); err != nil {
		return fmt.Errorf("failed to decode %s args: %w", fc.MethodName, err)
	}
	payload := events.AuthChanged{AccountID: args.AccountID, PublicKey: args.PublicKey, Success: c.Outcome.OK(), Error: c.Outcome.Error}
	event := events.EVENT_AUTH_ADDED
	if c.Callback.Detail == removeKeyMethod {
		event = events.EVENT_AUTH_REMOVED
	}
	batch.Add(event, payload)
	if c.Outcome.OK() {
		return nil
	}
	log.Warn().Str("account", args.AccountID).Str("method", c.Callback.Detail).Str("error", c.Outcome.Error).
		Msg("[Relayer] [onAuthResult] auth contract refused key change")
	if c.Callback.Detail != registerKeyMethod {
		return nil
	}
	return s.Store.Update(ctx, func(st *state.RelayerState) error {
		account := types.AccountID(args.AccountID)
		if key, ok := st.AuthAccounts[account]; ok && key.String() == args.PublicKey {
			delete(st.AuthAccounts, account)
		}
		return nil
	})
}
