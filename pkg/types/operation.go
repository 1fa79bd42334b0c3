package types

import "fmt"

type OperationKind uint8

const (
	OpFunctionCall OperationKind = iota
	OpTransfer
	OpAddKey
	OpChainSignatureRequest
)

func (k OperationKind) String() string {
	switch k {
	case OpFunctionCall:
		return "FunctionCall"
	case OpTransfer:
		return "Transfer"
	case OpAddKey:
		return "AddKey"
	case OpChainSignatureRequest:
		return "ChainSignatureRequest"
	default:
		return fmt.Sprintf("OperationKind(%d)", uint8(k))
	}
}

// Operation is a closed sum type. Only the four variants in this file implement it;
// every switch over an Operation must handle all of them.
type Operation interface {
	Kind() OperationKind
	isOperation()
}

type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        Gas
	Deposit    Balance
}

type Transfer struct {
	Deposit Balance
}

type AddKey struct {
	PublicKey      PublicKey
	Allowance      *Balance
	ReceiverID     AccountID
	AllowedMethods []string
}

type ChainSignatureRequest struct {
	TargetChain    string
	DerivationPath string
	Payload        []byte
}

func (*FunctionCall) Kind() OperationKind          { return OpFunctionCall }
func (*Transfer) Kind() OperationKind              { return OpTransfer }
func (*AddKey) Kind() OperationKind                { return OpAddKey }
func (*ChainSignatureRequest) Kind() OperationKind { return OpChainSignatureRequest }

func (*FunctionCall) isOperation()          {}
func (*Transfer) isOperation()              {}
func (*AddKey) isOperation()                {}
func (*ChainSignatureRequest) isOperation() {}

func CloneOperation(op Operation) Operation {
	switch o := op.(type) {
	case *FunctionCall:
		c := *o
		c.Args = cloneBytes(o.Args)
		return &c
	case *Transfer:
		c := *o
		return &c
	case *AddKey:
		c := *o
		c.PublicKey = PublicKey{Type: o.PublicKey.Type, Data: cloneBytes(o.PublicKey.Data)}
		if o.Allowance != nil {
			c.Allowance = new(Balance).Set(o.Allowance)
		}
		if o.AllowedMethods != nil {
			c.AllowedMethods = append([]string(nil), o.AllowedMethods...)
		}
		return &c
	case *ChainSignatureRequest:
		c := *o
		c.Payload = cloneBytes(o.Payload)
		return &c
	default:
		panic(fmt.Sprintf("unknown operation %T", op))
	}
}
