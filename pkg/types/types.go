package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Gas is measured in raw gas units; 1 TGas = 10^12.
type Gas uint64

const (
	TGas Gas = 1_000_000_000_000
	// Hard ceiling for an escalated retry budget
	MaxRetryGas Gas = 300 * TGas
	// Maximum operations a single delegate action may carry
	MaxOperations = 10
)

type AccountID string

func (a AccountID) String() string {
	return string(a)
}

// Balance is an unsigned 128-bit amount held in a 256-bit integer; the codec rejects
// values that do not fit 128 bits.
type Balance = uint256.Int

var maxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// MaxU128 returns 2^128-1.
func MaxU128() *Balance {
	return new(uint256.Int).Set(maxU128)
}

func FitsU128(b *Balance) bool {
	return b.Cmp(maxU128) <= 0
}

func NewBalance(v uint64) *Balance {
	return uint256.NewInt(v)
}

// ParseBalance parses a decimal amount string.
func ParseBalance(s string) (*Balance, error) {
	b, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", s, err)
	}
	if !FitsU128(b) {
		return nil, fmt.Errorf("balance %q exceeds 128 bits", s)
	}
	return b, nil
}

// DelegateAction is the unsigned intent signed off-system by the sender.
type DelegateAction struct {
	SenderID       AccountID
	ReceiverID     AccountID
	Operations     []Operation
	Nonce          uint64
	MaxBlockHeight uint64
}

func (d *DelegateAction) Expired(height uint64) bool {
	return height > d.MaxBlockHeight
}

// SignedDelegateAction is a DelegateAction plus its detached signature. FeeAction and
// SessionNonce travel with the request but are not covered by the signature.
type SignedDelegateAction struct {
	DelegateAction DelegateAction
	Signature      Signature
	PublicKey      PublicKey
	FeeAction      Operation
	SessionNonce   uint64
}

func (s *SignedDelegateAction) Sender() AccountID {
	return s.DelegateAction.SenderID
}

func (s *SignedDelegateAction) Nonce() uint64 {
	return s.DelegateAction.Nonce
}

func (s *SignedDelegateAction) Scheme() KeyType {
	return s.PublicKey.Type
}

// Clone returns a deep copy so the retry queue never aliases caller memory.
func (s *SignedDelegateAction) Clone() *SignedDelegateAction {
	out := &SignedDelegateAction{
		DelegateAction: DelegateAction{
			SenderID:       s.DelegateAction.SenderID,
			ReceiverID:     s.DelegateAction.ReceiverID,
			Nonce:          s.DelegateAction.Nonce,
			MaxBlockHeight: s.DelegateAction.MaxBlockHeight,
		},
		Signature:    Signature{Type: s.Signature.Type, Data: cloneBytes(s.Signature.Data)},
		PublicKey:    PublicKey{Type: s.PublicKey.Type, Data: cloneBytes(s.PublicKey.Data)},
		SessionNonce: s.SessionNonce,
	}
	if s.DelegateAction.Operations != nil {
		out.DelegateAction.Operations = make([]Operation, len(s.DelegateAction.Operations))
		for i, op := range s.DelegateAction.Operations {
			out.DelegateAction.Operations[i] = CloneOperation(op)
		}
	}
	if s.FeeAction != nil {
		out.FeeAction = CloneOperation(s.FeeAction)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
