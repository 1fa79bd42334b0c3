package relayer

import (
	"testing"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/stretchr/testify/require"
)

func tgas(n uint64) types.Gas {
	return types.Gas(n) * types.TGas
}

func testState(t *testing.T) *state.RelayerState {
	t.Helper()
	p := state.Params{
		Manager:        "manager.testnet",
		RelayerAccount: "relayer.testnet",
		MaxGas:         tgas(250),
		DefaultGas:     tgas(100),
		RetryBuffer:    tgas(10),
		ChunkSize:      2,
	}
	p.MaxGasPool.SetUint64(10000)
	p.BaseFee.SetUint64(10)
	st, err := state.New(p)
	require.NoError(t, err)
	return st
}
