package relayer_test

import (
	"context"
	"testing"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/OnSocial-Labs/onsocial-relayer/internal/relayer"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/db"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/signer"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/stretchr/testify/require"
)

const (
	manager  types.AccountID = "manager.testnet"
	relayAcc types.AccountID = "relayer.testnet"
	treasury types.AccountID = "treasury.testnet"
	alice    types.AccountID = "alice.testnet"
	app      types.AccountID = "app.testnet"
	mpc      types.AccountID = "mpc.testnet"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	service *relayer.Service
	host    *host.Recorder
	bus     *events.EventBus
	key     signer.KeyPair
}

func testConfig() *config.RelayerConfig {
	return &config.RelayerConfig{
		Manager:           string(manager),
		RelayerAccount:    string(relayAcc),
		OverflowRecipient: string(treasury),
		InitialGasPool:    "1000",
		MinGasPool:        "100",
		MaxGasPool:        "10000",
		BaseFee:           "10",
		MaxGasTGas:        250,
		DefaultGasTGas:    100,
		RetryBufferTGas:   10,
		ChunkSize:         2,
		ChainMpcMapping:   map[string]string{"ethereum": string(mpc)},
	}
}

func newFixture(t *testing.T, mutate ...func(*config.RelayerConfig)) *fixture {
	return newFixtureWithHost(t, host.NewRecorder(10), mutate...)
}

func newFixtureWithHost(t *testing.T, substrate host.Host, mutate ...func(*config.RelayerConfig)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	ctx := context.Background()
	bus := events.NewEventBus(&config.EventBusConfig{BufferSize: 512})
	service, err := relayer.NewService(cfg, db.NewMemoryStore(), substrate, bus)
	require.NoError(t, err)
	require.NoError(t, service.Bootstrap(ctx))

	key, err := signer.GenerateED25519()
	require.NoError(t, err)
	require.NoError(t, service.AddAuthAccount(ctx, manager, alice, key.PublicKey()))

	f := &fixture{t: t, ctx: ctx, service: service, bus: bus, key: key}
	if recorder, ok := substrate.(*host.Recorder); ok {
		f.host = recorder
	}
	return f
}

func (f *fixture) request(nonce, maxHeight uint64, ops ...types.Operation) *types.SignedDelegateAction {
	return f.requestWithFee(nonce, maxHeight, nil, ops...)
}

func (f *fixture) requestWithFee(nonce, maxHeight uint64, fee types.Operation, ops ...types.Operation) *types.SignedDelegateAction {
	f.t.Helper()
	sda, err := signer.SignDelegateAction(f.key, types.DelegateAction{
		SenderID:       alice,
		ReceiverID:     app,
		Operations:     ops,
		Nonce:          nonce,
		MaxBlockHeight: maxHeight,
	}, fee, 0)
	require.NoError(f.t, err)
	return sda
}

func (f *fixture) pool() string {
	f.t.Helper()
	status, err := f.service.Pool(f.ctx)
	require.NoError(f.t, err)
	return status.GasPool
}

func (f *fixture) queue() []relayer.QueuedTransaction {
	f.t.Helper()
	queued, err := f.service.FailedTransactions(f.ctx)
	require.NoError(f.t, err)
	return queued
}

func (f *fixture) lastNonce() uint64 {
	f.t.Helper()
	nonce, err := f.service.LastNonce(f.ctx, alice)
	require.NoError(f.t, err)
	return nonce
}

// take returns the single plan submitted since the last call.
func (f *fixture) take() *host.Plan {
	f.t.Helper()
	plans := f.host.Take()
	require.Len(f.t, plans, 1)
	return plans[0]
}

func call(gas types.Gas) *types.FunctionCall {
	return &types.FunctionCall{MethodName: "post", Args: []byte(`{"text":"gm"}`), Gas: gas}
}

func transfer(amount uint64) *types.Transfer {
	t := &types.Transfer{}
	t.Deposit.SetUint64(amount)
	return t
}

// collect drains every event currently buffered on ch.
func collect(ch <-chan *events.Event) []*events.Event {
	var out []*events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}
