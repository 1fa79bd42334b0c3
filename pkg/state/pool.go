package state

import (
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
)

// Cost is BaseFee times the number of operations, plus one unit for a fee action.
func (s *RelayerState) Cost(operations int, hasFee bool) *types.Balance {
	units := uint64(operations)
	if hasFee {
		units++
	}
	return new(types.Balance).Mul(&s.BaseFee, types.NewBalance(units))
}

// CostOf is the cost of a single signed request.
func (s *RelayerState) CostOf(sda *types.SignedDelegateAction) *types.Balance {
	return s.Cost(len(sda.DelegateAction.Operations), sda.FeeAction != nil)
}

// CanReserve reports whether cost can be reserved while keeping the pool at or above
// its floor.
func (s *RelayerState) CanReserve(cost *types.Balance) bool {
	required := new(types.Balance).Add(&s.MinGasPool, cost)
	return !s.GasPool.Lt(required)
}

// Reserve deducts cost from the pool in full or not at all.
func (s *RelayerState) Reserve(cost *types.Balance) error {
	if !s.CanReserve(cost) {
		return fmt.Errorf("%w: pool %s, floor %s, cost %s", types.ErrInsufficientGasPool, s.GasPool.Dec(), s.MinGasPool.Dec(), cost.Dec())
	}
	s.GasPool.Sub(&s.GasPool, cost)
	return nil
}

// Deposit credits amount up to MaxGasPool and returns the overflow that must be
// forwarded to OverflowRecipient. It is also the refund path for reserved costs.
func (s *RelayerState) Deposit(amount *types.Balance) *types.Balance {
	overflow := new(types.Balance)
	total := new(types.Balance).Add(&s.GasPool, amount)
	if total.Gt(&s.MaxGasPool) {
		overflow.Sub(total, &s.MaxGasPool)
		total.Set(&s.MaxGasPool)
	}
	s.GasPool.Set(total)
	return overflow
}
