// Package db persists RelayerState. Every relay entry point runs inside Store.Update,
// which loads the state, hands it to the caller and commits the result atomically, or
// discards it when the caller returns an error.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
)

var (
	ErrNotInitialized = errors.New("relayer state is not initialized")
	ErrNewerVersion   = errors.New("stored state version is newer than this binary")
)

const stateRowID = 1

type Store interface {
	// Bootstrap stores seed when no state exists yet. It returns the version found in
	// storage before any upgrade, 0 for a fresh store.
	Bootstrap(ctx context.Context, seed *state.RelayerState) (uint32, error)
	// Update runs fn on a private copy of the state and commits it when fn returns nil.
	Update(ctx context.Context, fn func(*state.RelayerState) error) error
	// View runs fn on a snapshot. Mutations are discarded.
	View(ctx context.Context, fn func(*state.RelayerState) error) error
	Close() error
}

// upgrade brings a loaded state to the current layout version.
func upgrade(s *state.RelayerState) (uint32, error) {
	from := s.Version
	if from > state.Version {
		return from, fmt.Errorf("%w: %d > %d", ErrNewerVersion, from, state.Version)
	}
	s.EnsureMaps()
	s.Version = state.Version
	return from, nil
}
