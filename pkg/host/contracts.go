package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Contract is code deployed on a LocalHost account.
type Contract interface {
	Call(ctx context.Context, call *Call, fc *types.FunctionCall) ([]byte, error)
}

type FTTransferArgs struct {
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo,omitempty"`
}

// FTContract is a minimal fungible token ledger supporting ft_transfer on behalf of
// the delegate action signer.
type FTContract struct {
	mutex    sync.Mutex
	balances map[types.AccountID]*types.Balance
}

func NewFTContract(balances map[types.AccountID]*types.Balance) *FTContract {
	ft := &FTContract{balances: make(map[types.AccountID]*types.Balance, len(balances))}
	for account, amount := range balances {
		ft.balances[account] = new(types.Balance).Set(amount)
	}
	return ft
}

func (c *FTContract) BalanceOf(account types.AccountID) *types.Balance {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if b, ok := c.balances[account]; ok {
		return new(types.Balance).Set(b)
	}
	return new(types.Balance)
}

func (c *FTContract) Call(_ context.Context, call *Call, fc *types.FunctionCall) ([]byte, error) {
	if fc.MethodName != "ft_transfer" {
		return nil, fmt.Errorf("method %s not found", fc.MethodName)
	}
	var args FTTransferArgs
	if err := json.Unmarshal(fc.Args, &args); err != nil {
		return nil, fmt.Errorf("invalid ft_transfer args: %w", err)
	}
	amount, err := types.ParseBalance(args.Amount)
	if err != nil {
		return nil, err
	}
	from := call.OnBehalfOf
	if from == "" {
		from = call.Predecessor
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	balance, ok := c.balances[from]
	if !ok || balance.Lt(amount) {
		return nil, fmt.Errorf("insufficient ft balance for %s", from)
	}
	balance.Sub(balance, amount)
	to := types.AccountID(args.ReceiverID)
	if _, ok := c.balances[to]; !ok {
		c.balances[to] = new(types.Balance)
	}
	c.balances[to].Add(c.balances[to], amount)
	return nil, nil
}

type RegisterKeyArgs struct {
	AccountID         string `json:"account_id"`
	PublicKey         string `json:"public_key"`
	ExpirationDays    uint32 `json:"expiration_days,omitempty"`
	IsMultiSig        bool   `json:"is_multi_sig"`
	MultiSigThreshold uint32 `json:"multi_sig_threshold,omitempty"`
}

type RemoveKeyArgs struct {
	AccountID string `json:"account_id"`
	PublicKey string `json:"public_key"`
}

// AuthContract tracks the keys registered by the relayer.
type AuthContract struct {
	mutex sync.Mutex
	owner types.AccountID
	keys  map[types.AccountID]map[string]RegisterKeyArgs
}

func NewAuthContract(owner types.AccountID) *AuthContract {
	return &AuthContract{owner: owner, keys: map[types.AccountID]map[string]RegisterKeyArgs{}}
}

func (c *AuthContract) Keys(account types.AccountID) []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var keys []string
	for key := range c.keys[account] {
		keys = append(keys, key)
	}
	return keys
}

func (c *AuthContract) Call(_ context.Context, call *Call, fc *types.FunctionCall) ([]byte, error) {
	if call.Predecessor != c.owner {
		return nil, fmt.Errorf("only %s may manage keys", c.owner)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	switch fc.MethodName {
	case "register_key":
		var args RegisterKeyArgs
		if err := json.Unmarshal(fc.Args, &args); err != nil {
			return nil, fmt.Errorf("invalid register_key args: %w", err)
		}
		if args.IsMultiSig && args.MultiSigThreshold == 0 {
			return nil, fmt.Errorf("multisig threshold must be positive")
		}
		account := types.AccountID(args.AccountID)
		if c.keys[account] == nil {
			c.keys[account] = map[string]RegisterKeyArgs{}
		}
		c.keys[account][args.PublicKey] = args
	case "remove_key":
		var args RemoveKeyArgs
		if err := json.Unmarshal(fc.Args, &args); err != nil {
			return nil, fmt.Errorf("invalid remove_key args: %w", err)
		}
		account := types.AccountID(args.AccountID)
		if _, ok := c.keys[account][args.PublicKey]; !ok {
			return nil, fmt.Errorf("key %s not registered for %s", args.PublicKey, account)
		}
		delete(c.keys[account], args.PublicKey)
	default:
		return nil, fmt.Errorf("method %s not found", fc.MethodName)
	}
	return nil, nil
}

type SignArgs struct {
	Payload     hexutil.Bytes `json:"payload"`
	Path        string        `json:"path"`
	KeyVersion  uint32        `json:"key_version"`
	RequestID   uint64        `json:"request_id"`
	OnBehalfOf  string        `json:"on_behalf_of"`
	TargetChain string        `json:"target_chain"`
}

type SignResult struct {
	RequestID uint64        `json:"request_id"`
	Signature hexutil.Bytes `json:"signature"`
	PublicKey hexutil.Bytes `json:"public_key"`
}

// MPCContract stands in for the threshold signer. Child keys are derived from a root
// secp256k1 key with keccak256(root || account || path).
type MPCContract struct {
	root       []byte
	keyVersion uint32
}

func NewMPCContract(root []byte, keyVersion uint32) *MPCContract {
	return &MPCContract{root: append([]byte(nil), root...), keyVersion: keyVersion}
}

func (c *MPCContract) DerivedPublicKey(account types.AccountID, path string) ([]byte, error) {
	key, err := crypto.ToECDSA(crypto.Keccak256(c.root, []byte(account), []byte(path)))
	if err != nil {
		return nil, err
	}
	return crypto.FromECDSAPub(&key.PublicKey), nil
}

func (c *MPCContract) Call(_ context.Context, _ *Call, fc *types.FunctionCall) ([]byte, error) {
	if fc.MethodName != "sign" {
		return nil, fmt.Errorf("method %s not found", fc.MethodName)
	}
	var args SignArgs
	if err := json.Unmarshal(fc.Args, &args); err != nil {
		return nil, fmt.Errorf("invalid sign args: %w", err)
	}
	if args.KeyVersion > c.keyVersion {
		return nil, fmt.Errorf("unknown key version %d", args.KeyVersion)
	}
	if len(args.Payload) != 32 {
		return nil, fmt.Errorf("payload must be a 32 byte hash, got %d bytes", len(args.Payload))
	}
	key, err := crypto.ToECDSA(crypto.Keccak256(c.root, []byte(args.OnBehalfOf), []byte(args.Path)))
	if err != nil {
		return nil, fmt.Errorf("cannot derive key: %w", err)
	}
	sig, err := crypto.Sign(args.Payload, key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(SignResult{
		RequestID: args.RequestID,
		Signature: sig,
		PublicKey: crypto.FromECDSAPub(&key.PublicKey),
	})
}

// AppContract is a generic application contract. Calls attached with less than
// RequiredGas fail the way an out-of-gas execution does.
type AppContract struct {
	mutex       sync.Mutex
	RequiredGas types.Gas
	calls       []types.FunctionCall
}

func (c *AppContract) Call(_ context.Context, _ *Call, fc *types.FunctionCall) ([]byte, error) {
	if fc.Gas < c.RequiredGas {
		return nil, fmt.Errorf("exceeded the prepaid gas: attached %d, required %d", fc.Gas, c.RequiredGas)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.calls = append(c.calls, *fc)
	return nil, nil
}

func (c *AppContract) Calls() []types.FunctionCall {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]types.FunctionCall(nil), c.calls...)
}
