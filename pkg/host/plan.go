// Package host is the boundary to the execution substrate. The relay engine turns
// admitted requests into Plans; a Host executes the steps of a plan strictly in order
// and delivers every callback of the plan to a Handler.
package host

import (
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/google/uuid"
)

// Call is one substrate step. Predecessor is the account issuing the call, OnBehalfOf
// the signer of the delegate action the call was built from.
type Call struct {
	Predecessor types.AccountID
	OnBehalfOf  types.AccountID
	Receiver    types.AccountID
	Operation   types.Operation
}

type CallbackKind uint8

const (
	CallbackNoop CallbackKind = iota
	CallbackFeePayment
	CallbackOperationResult
	CallbackChainSignatureResult
	CallbackFinalize
	CallbackAuthResult
	CallbackOverflowForwarded
)

func (k CallbackKind) String() string {
	switch k {
	case CallbackNoop:
		return "Noop"
	case CallbackFeePayment:
		return "FeePayment"
	case CallbackOperationResult:
		return "OperationResult"
	case CallbackChainSignatureResult:
		return "ChainSignatureResult"
	case CallbackFinalize:
		return "Finalize"
	case CallbackAuthResult:
		return "AuthResult"
	case CallbackOverflowForwarded:
		return "OverflowForwarded"
	}
	return fmt.Sprintf("CallbackKind(%d)", uint8(k))
}

// Callback carries everything the relay engine needs to resume after a step, so a
// completion can be handled without any in-memory bookkeeping.
type Callback struct {
	Kind        CallbackKind
	Index       int
	Attempt     int
	RequestID   uint64
	TargetChain string
	Gas         types.Gas
	Cost        types.Balance
	Detail      string
}

// Link pairs an optional step with the callback that observes it.
type Link struct {
	Step     *Call
	Callback Callback
}

type Plan struct {
	ID uuid.UUID
	// Request is the delegate action the plan executes; nil for relayer owned plans
	Request *types.SignedDelegateAction
	Links   []Link
}

func NewPlan(request *types.SignedDelegateAction) *Plan {
	return &Plan{ID: uuid.New(), Request: request}
}

func (p *Plan) Add(step *Call, callback Callback) *Plan {
	p.Links = append(p.Links, Link{Step: step, Callback: callback})
	return p
}

// Steps counts the links that carry a substrate step.
func (p *Plan) Steps() int {
	n := 0
	for _, link := range p.Links {
		if link.Step != nil {
			n++
		}
	}
	return n
}

type Status uint8

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusSkipped:
		return "skipped"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

type Outcome struct {
	Status Status
	Value  []byte
	Error  string
}

func Success(value []byte) Outcome {
	return Outcome{Status: StatusSuccess, Value: value}
}

func Failure(format string, args ...any) Outcome {
	return Outcome{Status: StatusFailure, Error: fmt.Sprintf(format, args...)}
}

func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// Completion is delivered once per link. Outcome is the result of the link's own step
// (success when the link has none) and Results holds the outcomes of every link up to
// and including this one.
type Completion struct {
	Plan     *Plan
	Link     int
	Callback Callback
	Outcome  Outcome
	Results  []Outcome
	Height   uint64
}
