package codec

import (
	"fmt"
	"math/big"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/holiman/uint256"
	"github.com/near/borsh-go"
)

type signedDelegateAction struct {
	Version        uint8
	DelegateAction delegateAction
	Signature      signature
	PublicKey      publicKey
	FeeAction      *operation
	SessionNonce   uint64
}

type delegateAction struct {
	SenderID       string
	ReceiverID     string
	Operations     []operation
	Nonce          uint64
	MaxBlockHeight uint64
}

// operation variants are declared in OperationKind order.
type operation struct {
	Enum                  borsh.Enum `borsh_enum:"true"`
	FunctionCall          functionCall
	Transfer              transfer
	AddKey                addKey
	ChainSignatureRequest chainSignatureRequest
}

type functionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    big.Int
}

type transfer struct {
	Deposit big.Int
}

type addKey struct {
	PublicKey      publicKey
	Allowance      *big.Int
	ReceiverID     string
	AllowedMethods []string
}

type chainSignatureRequest struct {
	TargetChain    string
	DerivationPath string
	Payload        []byte
}

// publicKey variants are declared in KeyType order.
type publicKey struct {
	Enum      borsh.Enum `borsh_enum:"true"`
	ED25519   [types.ED25519PublicKeyLength]byte
	SECP256K1 [types.SECP256K1PublicKeyLength]byte
}

// Signatures are length-prefixed so a wrong-length signature still decodes and is
// rejected by the verifier as unauthorized rather than as a codec error.
type signature struct {
	Type uint8
	Data []byte
}

func EncodeDelegateAction(d *types.DelegateAction) ([]byte, error) {
	w, err := fromDelegateAction(d)
	if err != nil {
		return nil, err
	}
	return encode(w)
}

func DecodeDelegateAction(b []byte) (*types.DelegateAction, error) {
	var w delegateAction
	if err := decode(b, &w); err != nil {
		return nil, err
	}
	return toDelegateAction(&w)
}

func EncodeSignedDelegateAction(s *types.SignedDelegateAction) ([]byte, error) {
	w := signedDelegateAction{Version: SchemaVersion, SessionNonce: s.SessionNonce}
	d, err := fromDelegateAction(&s.DelegateAction)
	if err != nil {
		return nil, err
	}
	w.DelegateAction = *d
	if _, ok := s.Signature.Type.SignatureLength(); !ok {
		return nil, fmt.Errorf("%w: signature type %d", ErrUnknownTag, s.Signature.Type)
	}
	w.Signature = signature{Type: uint8(s.Signature.Type), Data: s.Signature.Data}
	if w.PublicKey, err = fromPublicKey(s.PublicKey); err != nil {
		return nil, err
	}
	if s.FeeAction != nil {
		if w.FeeAction, err = fromOperation(s.FeeAction); err != nil {
			return nil, fmt.Errorf("fee action: %w", err)
		}
	}
	return encode(&w)
}

func DecodeSignedDelegateAction(b []byte) (*types.SignedDelegateAction, error) {
	if len(b) == 0 {
		return nil, ErrUnexpectedEOF
	}
	if b[0] != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrSchemaVersion, b[0])
	}
	var w signedDelegateAction
	if err := decode(b, &w); err != nil {
		return nil, err
	}
	d, err := toDelegateAction(&w.DelegateAction)
	if err != nil {
		return nil, err
	}
	s := &types.SignedDelegateAction{DelegateAction: *d, SessionNonce: w.SessionNonce}
	sigType := types.KeyType(w.Signature.Type)
	if _, ok := sigType.SignatureLength(); !ok {
		return nil, fmt.Errorf("%w: signature type %d", ErrUnknownTag, w.Signature.Type)
	}
	s.Signature = types.Signature{Type: sigType, Data: nonNil(w.Signature.Data)}
	if s.PublicKey, err = toPublicKey(&w.PublicKey); err != nil {
		return nil, err
	}
	if w.FeeAction != nil {
		if s.FeeAction, err = toOperation(w.FeeAction); err != nil {
			return nil, fmt.Errorf("fee action: %w", err)
		}
	}
	return s, nil
}

func EncodeOperation(op types.Operation) ([]byte, error) {
	w, err := fromOperation(op)
	if err != nil {
		return nil, err
	}
	return encode(w)
}

func DecodeOperation(b []byte) (types.Operation, error) {
	if len(b) > 0 && types.OperationKind(b[0]) > types.OpChainSignatureRequest {
		return nil, fmt.Errorf("%w: operation %d", ErrUnknownTag, b[0])
	}
	var w operation
	if err := decode(b, &w); err != nil {
		return nil, err
	}
	return toOperation(&w)
}

func fromDelegateAction(d *types.DelegateAction) (*delegateAction, error) {
	w := &delegateAction{
		SenderID:       string(d.SenderID),
		ReceiverID:     string(d.ReceiverID),
		Operations:     make([]operation, 0, len(d.Operations)),
		Nonce:          d.Nonce,
		MaxBlockHeight: d.MaxBlockHeight,
	}
	for i, op := range d.Operations {
		o, err := fromOperation(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		w.Operations = append(w.Operations, *o)
	}
	return w, nil
}

func toDelegateAction(w *delegateAction) (*types.DelegateAction, error) {
	d := &types.DelegateAction{
		SenderID:       types.AccountID(w.SenderID),
		ReceiverID:     types.AccountID(w.ReceiverID),
		Nonce:          w.Nonce,
		MaxBlockHeight: w.MaxBlockHeight,
	}
	if len(w.Operations) > 0 {
		d.Operations = make([]types.Operation, 0, len(w.Operations))
	}
	for i := range w.Operations {
		op, err := toOperation(&w.Operations[i])
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		d.Operations = append(d.Operations, op)
	}
	return d, nil
}

func fromOperation(op types.Operation) (*operation, error) {
	w := &operation{}
	switch o := op.(type) {
	case *types.FunctionCall:
		deposit, err := toU128(&o.Deposit)
		if err != nil {
			return nil, err
		}
		w.FunctionCall = functionCall{MethodName: o.MethodName, Args: nonNil(o.Args), Gas: uint64(o.Gas), Deposit: *deposit}
	case *types.Transfer:
		deposit, err := toU128(&o.Deposit)
		if err != nil {
			return nil, err
		}
		w.Transfer = transfer{Deposit: *deposit}
	case *types.AddKey:
		key, err := fromPublicKey(o.PublicKey)
		if err != nil {
			return nil, err
		}
		w.AddKey = addKey{PublicKey: key, ReceiverID: string(o.ReceiverID), AllowedMethods: o.AllowedMethods}
		if w.AddKey.AllowedMethods == nil {
			w.AddKey.AllowedMethods = []string{}
		}
		if o.Allowance != nil {
			if w.AddKey.Allowance, err = toU128(o.Allowance); err != nil {
				return nil, err
			}
		}
	case *types.ChainSignatureRequest:
		w.ChainSignatureRequest = chainSignatureRequest{
			TargetChain:    o.TargetChain,
			DerivationPath: o.DerivationPath,
			Payload:        nonNil(o.Payload),
		}
	default:
		return nil, fmt.Errorf("%w: operation %T", ErrUnknownTag, op)
	}
	w.Enum = borsh.Enum(op.Kind())
	return w, nil
}

func toOperation(w *operation) (types.Operation, error) {
	switch types.OperationKind(w.Enum) {
	case types.OpFunctionCall:
		fc := &w.FunctionCall
		return &types.FunctionCall{
			MethodName: fc.MethodName,
			Args:       nonNil(fc.Args),
			Gas:        types.Gas(fc.Gas),
			Deposit:    *fromU128(&fc.Deposit),
		}, nil
	case types.OpTransfer:
		return &types.Transfer{Deposit: *fromU128(&w.Transfer.Deposit)}, nil
	case types.OpAddKey:
		key, err := toPublicKey(&w.AddKey.PublicKey)
		if err != nil {
			return nil, err
		}
		o := &types.AddKey{PublicKey: key, ReceiverID: types.AccountID(w.AddKey.ReceiverID)}
		if w.AddKey.Allowance != nil {
			o.Allowance = fromU128(w.AddKey.Allowance)
		}
		if len(w.AddKey.AllowedMethods) > 0 {
			o.AllowedMethods = w.AddKey.AllowedMethods
		}
		return o, nil
	case types.OpChainSignatureRequest:
		cs := &w.ChainSignatureRequest
		return &types.ChainSignatureRequest{
			TargetChain:    cs.TargetChain,
			DerivationPath: cs.DerivationPath,
			Payload:        nonNil(cs.Payload),
		}, nil
	}
	return nil, fmt.Errorf("%w: operation %d", ErrUnknownTag, w.Enum)
}

func fromPublicKey(k types.PublicKey) (publicKey, error) {
	var w publicKey
	length, ok := k.Type.PublicKeyLength()
	if !ok {
		return w, fmt.Errorf("%w: key type %d", ErrUnknownTag, k.Type)
	}
	if len(k.Data) != length {
		return w, fmt.Errorf("codec: %s public key must be %d bytes, got %d", k.Type, length, len(k.Data))
	}
	w.Enum = borsh.Enum(k.Type)
	switch k.Type {
	case types.KeyTypeED25519:
		copy(w.ED25519[:], k.Data)
	case types.KeyTypeSECP256K1:
		copy(w.SECP256K1[:], k.Data)
	}
	return w, nil
}

func toPublicKey(w *publicKey) (types.PublicKey, error) {
	switch keyType := types.KeyType(w.Enum); keyType {
	case types.KeyTypeED25519:
		return types.PublicKey{Type: keyType, Data: append([]byte(nil), w.ED25519[:]...)}, nil
	case types.KeyTypeSECP256K1:
		return types.PublicKey{Type: keyType, Data: append([]byte(nil), w.SECP256K1[:]...)}, nil
	}
	return types.PublicKey{}, fmt.Errorf("%w: key type %d", ErrUnknownTag, w.Enum)
}

// toU128 adapts a balance to the big.Int form borsh writes as u128.
func toU128(b *types.Balance) (*big.Int, error) {
	if !types.FitsU128(b) {
		return nil, ErrU128Overflow
	}
	return b.ToBig(), nil
}

func fromU128(v *big.Int) *types.Balance {
	b, _ := uint256.FromBig(v)
	return b
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
