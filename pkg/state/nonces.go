package state

import (
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
)

func (s *RelayerState) LastNonce(sender types.AccountID) uint64 {
	return s.ProcessedNonces[sender]
}

// AdmitNonce accepts nonce iff it is above the committed watermark of sender.
func (s *RelayerState) AdmitNonce(sender types.AccountID, nonce uint64) error {
	if last := s.ProcessedNonces[sender]; nonce <= last {
		return fmt.Errorf("%w: nonce %d not above watermark %d for %s", types.ErrInvalidNonce, nonce, last, sender)
	}
	return nil
}

// CommitNonce moves the watermark of sender to nonce. The watermark never moves
// backwards; when a competing request already committed an equal or higher nonce the
// commit fails with ErrInvalidNonce.
func (s *RelayerState) CommitNonce(sender types.AccountID, nonce uint64) error {
	if err := s.AdmitNonce(sender, nonce); err != nil {
		return err
	}
	s.ProcessedNonces[sender] = nonce
	return nil
}
