package db

import (
	"fmt"
	"strconv"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/codec"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/db/models"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
)

// stateRows is the relational form of a RelayerState.
type stateRows struct {
	root     models.RelayerState
	nonces   []models.ProcessedNonce
	failed   []models.FailedTransaction
	auth     []models.AuthAccount
	chains   []models.ChainMpcMapping
	contract []models.WhitelistedContract
}

func toRows(s *state.RelayerState) (*stateRows, error) {
	rows := &stateRows{
		root: models.RelayerState{
			ID:                    stateRowID,
			Version:               s.Version,
			Manager:               string(s.Manager),
			RelayerAccount:        string(s.RelayerAccount),
			Paused:                s.Paused,
			GasPool:               s.GasPool.Dec(),
			MinGasPool:            s.MinGasPool.Dec(),
			MaxGasPool:            s.MaxGasPool.Dec(),
			BaseFee:               s.BaseFee.Dec(),
			OverflowRecipient:     string(s.OverflowRecipient),
			MaxGas:                uint64(s.MaxGas),
			DefaultGas:            uint64(s.DefaultGas),
			RetryBuffer:           uint64(s.RetryBuffer),
			ChunkSize:             s.ChunkSize,
			PaymentFTContract:     string(s.PaymentFTContract),
			MinFTDeposit:          s.MinFTDeposit.Dec(),
			AuthContract:          string(s.AuthContract),
			AuthKeyExpiryDays:     s.AuthKeyExpiryDays,
			AuthMultisig:          s.AuthMultisig,
			AuthMultisigThreshold: s.AuthMultisigThreshold,
			NextRequestID:         strconv.FormatUint(s.NextRequestID, 10),
			MpcKeyVersion:         s.MpcKeyVersion,
		},
	}
	for sender, nonce := range s.ProcessedNonces {
		rows.nonces = append(rows.nonces, models.ProcessedNonce{Sender: string(sender), Nonce: strconv.FormatUint(nonce, 10)})
	}
	for i, ft := range s.FailedTransactions {
		payload, err := codec.EncodeSignedDelegateAction(ft.Request)
		if err != nil {
			return nil, fmt.Errorf("failed to encode queued transaction %d: %w", i, err)
		}
		rows.failed = append(rows.failed, models.FailedTransaction{
			Position:       i,
			Sender:         string(ft.Request.Sender()),
			Nonce:          strconv.FormatUint(ft.Request.Nonce(), 10),
			MaxBlockHeight: strconv.FormatUint(ft.Request.DelegateAction.MaxBlockHeight, 10),
			Gas:            uint64(ft.Gas),
			Payload:        payload,
		})
	}
	for account, key := range s.AuthAccounts {
		rows.auth = append(rows.auth, models.AuthAccount{AccountID: string(account), PublicKey: key.String()})
	}
	for chain, signer := range s.ChainMpcMapping {
		rows.chains = append(rows.chains, models.ChainMpcMapping{Chain: chain, Signer: string(signer)})
	}
	for contract := range s.Whitelist {
		rows.contract = append(rows.contract, models.WhitelistedContract{ContractID: string(contract)})
	}
	return rows, nil
}

func fromRows(rows *stateRows) (*state.RelayerState, error) {
	r := rows.root
	s := &state.RelayerState{
		Version:               r.Version,
		Manager:               types.AccountID(r.Manager),
		RelayerAccount:        types.AccountID(r.RelayerAccount),
		Paused:                r.Paused,
		OverflowRecipient:     types.AccountID(r.OverflowRecipient),
		MaxGas:                types.Gas(r.MaxGas),
		DefaultGas:            types.Gas(r.DefaultGas),
		RetryBuffer:           types.Gas(r.RetryBuffer),
		ChunkSize:             r.ChunkSize,
		PaymentFTContract:     types.AccountID(r.PaymentFTContract),
		AuthContract:          types.AccountID(r.AuthContract),
		AuthKeyExpiryDays:     r.AuthKeyExpiryDays,
		AuthMultisig:          r.AuthMultisig,
		AuthMultisigThreshold: r.AuthMultisigThreshold,
		MpcKeyVersion:         r.MpcKeyVersion,
	}
	s.EnsureMaps()
	for _, field := range []struct {
		dst *types.Balance
		src string
	}{
		{&s.GasPool, r.GasPool},
		{&s.MinGasPool, r.MinGasPool},
		{&s.MaxGasPool, r.MaxGasPool},
		{&s.BaseFee, r.BaseFee},
		{&s.MinFTDeposit, r.MinFTDeposit},
	} {
		b, err := parseBalance(field.src)
		if err != nil {
			return nil, err
		}
		field.dst.Set(b)
	}
	var err error
	if s.NextRequestID, err = parseUint(r.NextRequestID); err != nil {
		return nil, err
	}
	for _, n := range rows.nonces {
		nonce, err := parseUint(n.Nonce)
		if err != nil {
			return nil, err
		}
		s.ProcessedNonces[types.AccountID(n.Sender)] = nonce
	}
	for _, f := range rows.failed {
		sda, err := codec.DecodeSignedDelegateAction(f.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode queued transaction at position %d: %w", f.Position, err)
		}
		s.FailedTransactions = append(s.FailedTransactions, state.FailedTransaction{Request: sda, Gas: types.Gas(f.Gas)})
	}
	for _, a := range rows.auth {
		key, err := types.ParsePublicKey(a.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("invalid auth key for %s: %w", a.AccountID, err)
		}
		s.AuthAccounts[types.AccountID(a.AccountID)] = key
	}
	for _, c := range rows.chains {
		s.ChainMpcMapping[c.Chain] = types.AccountID(c.Signer)
	}
	for _, w := range rows.contract {
		s.Whitelist[types.AccountID(w.ContractID)] = struct{}{}
	}
	return s, nil
}

func parseBalance(s string) (*types.Balance, error) {
	if s == "" {
		return new(types.Balance), nil
	}
	return types.ParseBalance(s)
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stored integer %q: %w", s, err)
	}
	return v, nil
}
