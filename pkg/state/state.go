// Package state holds RelayerState, the single root the relay engine loads, mutates and
// persists around every entry point. The nonce guard, the gas pool accountant and the
// bounded retry queue are methods on it.
package state

import (
	"fmt"
	"maps"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
)

const (
	// Version of the persisted layout. Bumped whenever a stored field changes meaning.
	Version uint32 = 1
	// MaxFailedTransactions bounds the retry queue.
	MaxFailedTransactions = 100
	MinChunkSize          = 1
	MaxChunkSize          = 5
)

type FailedTransaction struct {
	Request *types.SignedDelegateAction
	Gas     types.Gas
}

type RelayerState struct {
	Version        uint32
	Manager        types.AccountID
	RelayerAccount types.AccountID
	Paused         bool

	GasPool           types.Balance
	MinGasPool        types.Balance
	MaxGasPool        types.Balance
	BaseFee           types.Balance
	OverflowRecipient types.AccountID

	MaxGas      types.Gas
	DefaultGas  types.Gas
	RetryBuffer types.Gas
	ChunkSize   int

	ProcessedNonces    map[types.AccountID]uint64
	FailedTransactions []FailedTransaction
	AuthAccounts       map[types.AccountID]types.PublicKey
	ChainMpcMapping    map[string]types.AccountID
	Whitelist          map[types.AccountID]struct{}

	PaymentFTContract types.AccountID
	MinFTDeposit      types.Balance

	AuthContract          types.AccountID
	AuthKeyExpiryDays     uint32
	AuthMultisig          bool
	AuthMultisigThreshold uint32

	NextRequestID uint64
	MpcKeyVersion uint32
}

// Params seeds a fresh state. Only used the first time a store is opened.
type Params struct {
	Manager           types.AccountID
	RelayerAccount    types.AccountID
	OverflowRecipient types.AccountID
	InitialGasPool    types.Balance
	MinGasPool        types.Balance
	MaxGasPool        types.Balance
	BaseFee           types.Balance
	MaxGas            types.Gas
	DefaultGas        types.Gas
	RetryBuffer       types.Gas
	ChunkSize         int
	AuthContract      types.AccountID
	PaymentFTContract types.AccountID
	MinFTDeposit      types.Balance
	ChainMpcMapping   map[string]types.AccountID
	Whitelist         []types.AccountID
}

func New(p Params) (*RelayerState, error) {
	if p.ChunkSize < MinChunkSize || p.ChunkSize > MaxChunkSize {
		return nil, fmt.Errorf("chunk size %d out of range [%d, %d]", p.ChunkSize, MinChunkSize, MaxChunkSize)
	}
	if p.MaxGasPool.IsZero() || p.MinGasPool.Gt(&p.MaxGasPool) {
		return nil, fmt.Errorf("%w: min gas pool %s exceeds max %s", types.ErrAmountTooLow, p.MinGasPool.Dec(), p.MaxGasPool.Dec())
	}
	if p.BaseFee.IsZero() {
		return nil, types.ErrFeeTooLow
	}
	s := &RelayerState{
		Version:           Version,
		Manager:           p.Manager,
		RelayerAccount:    p.RelayerAccount,
		OverflowRecipient: p.OverflowRecipient,
		MinGasPool:        p.MinGasPool,
		MaxGasPool:        p.MaxGasPool,
		BaseFee:           p.BaseFee,
		MaxGas:            p.MaxGas,
		DefaultGas:        p.DefaultGas,
		RetryBuffer:       p.RetryBuffer,
		ChunkSize:         p.ChunkSize,
		ProcessedNonces:   map[types.AccountID]uint64{},
		AuthAccounts:      map[types.AccountID]types.PublicKey{},
		ChainMpcMapping:   map[string]types.AccountID{},
		Whitelist:         map[types.AccountID]struct{}{},
		AuthContract:      p.AuthContract,
		PaymentFTContract: p.PaymentFTContract,
		MinFTDeposit:      p.MinFTDeposit,
	}
	maps.Copy(s.ChainMpcMapping, p.ChainMpcMapping)
	for _, contract := range p.Whitelist {
		s.Whitelist[contract] = struct{}{}
	}
	s.Deposit(&p.InitialGasPool)
	return s, nil
}

// Clone returns a deep copy. Stores hand out clones so a failed entry point leaves no
// partial mutation behind.
func (s *RelayerState) Clone() *RelayerState {
	out := *s
	out.ProcessedNonces = maps.Clone(s.ProcessedNonces)
	out.AuthAccounts = make(map[types.AccountID]types.PublicKey, len(s.AuthAccounts))
	for account, key := range s.AuthAccounts {
		out.AuthAccounts[account] = types.PublicKey{Type: key.Type, Data: append([]byte(nil), key.Data...)}
	}
	out.ChainMpcMapping = maps.Clone(s.ChainMpcMapping)
	out.Whitelist = maps.Clone(s.Whitelist)
	out.FailedTransactions = make([]FailedTransaction, len(s.FailedTransactions))
	for i, ft := range s.FailedTransactions {
		out.FailedTransactions[i] = FailedTransaction{Request: ft.Request.Clone(), Gas: ft.Gas}
	}
	return &out
}

// EnsureMaps initialises nil maps on a state rebuilt from storage.
func (s *RelayerState) EnsureMaps() {
	if s.ProcessedNonces == nil {
		s.ProcessedNonces = map[types.AccountID]uint64{}
	}
	if s.AuthAccounts == nil {
		s.AuthAccounts = map[types.AccountID]types.PublicKey{}
	}
	if s.ChainMpcMapping == nil {
		s.ChainMpcMapping = map[string]types.AccountID{}
	}
	if s.Whitelist == nil {
		s.Whitelist = map[types.AccountID]struct{}{}
	}
}

func (s *RelayerState) IsWhitelisted(receiver types.AccountID) bool {
	if len(s.Whitelist) == 0 {
		return true
	}
	_, ok := s.Whitelist[receiver]
	return ok
}

// ResolveChain returns the signer identity registered for a target chain.
func (s *RelayerState) ResolveChain(chain string) (types.AccountID, error) {
	signer, ok := s.ChainMpcMapping[chain]
	if !ok || signer == "" {
		return "", fmt.Errorf("%w: no signer registered for chain %q", types.ErrInvalidAccountID, chain)
	}
	return signer, nil
}

// AllocateRequestID hands out strictly increasing chain-signature request ids.
func (s *RelayerState) AllocateRequestID() uint64 {
	s.NextRequestID++
	return s.NextRequestID
}
