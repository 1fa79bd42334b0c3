package state

import "github.com/OnSocial-Labs/onsocial-relayer/pkg/types"

// Escalate grows a retry gas budget by 20% plus RetryBuffer, capped at MaxRetryGas.
func (s *RelayerState) Escalate(g types.Gas) types.Gas {
	if g >= types.MaxRetryGas {
		return types.MaxRetryGas
	}
	next := g + g/5 + s.RetryBuffer
	if next > types.MaxRetryGas || next < g {
		return types.MaxRetryGas
	}
	return next
}

// PushFailed appends a copy of sda to the retry queue. When the queue is full the
// oldest entry is evicted and returned.
func (s *RelayerState) PushFailed(sda *types.SignedDelegateAction, gas types.Gas) *FailedTransaction {
	var evicted *FailedTransaction
	if len(s.FailedTransactions) >= MaxFailedTransactions {
		oldest := s.FailedTransactions[0]
		evicted = &oldest
		s.FailedTransactions = append(s.FailedTransactions[:0:0], s.FailedTransactions[1:]...)
	}
	s.FailedTransactions = append(s.FailedTransactions, FailedTransaction{Request: sda.Clone(), Gas: gas})
	return evicted
}

// PurgeExpired drops every queued entry whose max block height is below height and
// returns the dropped entries.
func (s *RelayerState) PurgeExpired(height uint64) []FailedTransaction {
	var expired []FailedTransaction
	kept := s.FailedTransactions[:0]
	for _, ft := range s.FailedTransactions {
		if ft.Request.DelegateAction.Expired(height) {
			expired = append(expired, ft)
			continue
		}
		kept = append(kept, ft)
	}
	clear(s.FailedTransactions[len(kept):])
	s.FailedTransactions = kept
	return expired
}

func (s *RelayerState) PeekFailed() (FailedTransaction, bool) {
	if len(s.FailedTransactions) == 0 {
		return FailedTransaction{}, false
	}
	return s.FailedTransactions[0], true
}

func (s *RelayerState) PopFailed() (FailedTransaction, bool) {
	ft, ok := s.PeekFailed()
	if !ok {
		return ft, false
	}
	s.FailedTransactions[0] = FailedTransaction{}
	s.FailedTransactions = s.FailedTransactions[1:]
	return ft, true
}
