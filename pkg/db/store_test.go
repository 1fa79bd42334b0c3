package db_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/db"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/signer"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	postgresDriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func seedState(t *testing.T) *state.RelayerState {
	t.Helper()
	s, err := state.New(state.Params{
		Manager:           "manager.testnet",
		RelayerAccount:    "relayer.testnet",
		OverflowRecipient: "treasury.testnet",
		InitialGasPool:    *types.NewBalance(1_000),
		MinGasPool:        *types.NewBalance(100),
		MaxGasPool:        *types.NewBalance(10_000),
		BaseFee:           *types.NewBalance(10),
		MaxGas:            250 * types.TGas,
		DefaultGas:        100 * types.TGas,
		RetryBuffer:       10 * types.TGas,
		ChunkSize:         5,
		ChainMpcMapping:   map[string]types.AccountID{"ethereum": "mpc.testnet"},
		Whitelist:         []types.AccountID{"app.testnet"},
	})
	require.NoError(t, err)
	return s
}

func queued(t *testing.T, nonce uint64) *types.SignedDelegateAction {
	t.Helper()
	kp, err := signer.GenerateED25519()
	require.NoError(t, err)
	sda, err := signer.SignDelegateAction(kp, types.DelegateAction{
		SenderID:       "alice.testnet",
		ReceiverID:     "app.testnet",
		Operations:     []types.Operation{&types.FunctionCall{MethodName: "ping", Args: []byte(`{}`), Gas: types.TGas}},
		Nonce:          nonce,
		MaxBlockHeight: 500,
	}, nil, 0)
	require.NoError(t, err)
	return sda
}

// exerciseStore runs the same contract against every Store implementation.
func exerciseStore(t *testing.T, store db.Store) {
	ctx := context.Background()

	err := store.Update(ctx, func(*state.RelayerState) error { return nil })
	require.ErrorIs(t, err, db.ErrNotInitialized)

	from, err := store.Bootstrap(ctx, seedState(t))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), from)

	kp, err := signer.GenerateSECP256K1()
	require.NoError(t, err)
	err = store.Update(ctx, func(s *state.RelayerState) error {
		require.NoError(t, s.CommitNonce("alice.testnet", 7))
		require.NoError(t, s.Reserve(types.NewBalance(30)))
		s.PushFailed(queued(t, 8), 120*types.TGas)
		s.PushFailed(queued(t, 9), 130*types.TGas)
		s.AuthAccounts["alice.testnet"] = kp.PublicKey()
		s.AllocateRequestID()
		return nil
	})
	require.NoError(t, err)

	// a failing update leaves no trace
	boom := errors.New("boom")
	err = store.Update(ctx, func(s *state.RelayerState) error {
		require.NoError(t, s.CommitNonce("alice.testnet", 100))
		s.GasPool.Clear()
		s.PopFailed()
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.View(ctx, func(s *state.RelayerState) error {
		assert.Equal(t, uint64(7), s.LastNonce("alice.testnet"))
		assert.Equal(t, uint64(970), s.GasPool.Uint64())
		require.Len(t, s.FailedTransactions, 2)
		assert.Equal(t, uint64(8), s.FailedTransactions[0].Request.Nonce())
		assert.Equal(t, 120*types.TGas, s.FailedTransactions[0].Gas)
		assert.Equal(t, uint64(9), s.FailedTransactions[1].Request.Nonce())
		assert.True(t, kp.PublicKey().Equal(s.AuthAccounts["alice.testnet"]))
		assert.Equal(t, types.AccountID("mpc.testnet"), s.ChainMpcMapping["ethereum"])
		assert.True(t, s.IsWhitelisted("app.testnet"))
		assert.False(t, s.IsWhitelisted("other.testnet"))
		assert.Equal(t, uint64(1), s.NextRequestID)
		assert.NoError(t, signer.Verify(s.FailedTransactions[0].Request))
		return nil
	})
	require.NoError(t, err)

	// a second bootstrap keeps the stored state
	from, err = store.Bootstrap(ctx, seedState(t))
	require.NoError(t, err)
	assert.Equal(t, state.Version, from)
	err = store.View(ctx, func(s *state.RelayerState) error {
		assert.Equal(t, uint64(7), s.LastNonce("alice.testnet"))
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, db.NewMemoryStore())
}

func TestMemoryStoreViewDiscardsMutations(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	_, err := store.Bootstrap(ctx, seedState(t))
	require.NoError(t, err)

	require.NoError(t, store.View(ctx, func(s *state.RelayerState) error {
		return s.CommitNonce("bob", 3)
	}))
	require.NoError(t, store.View(ctx, func(s *state.RelayerState) error {
		assert.Equal(t, uint64(0), s.LastNonce("bob"))
		return nil
	}))
}

func TestMemoryStoreRejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seed := seedState(t)
	seed.Version = state.Version + 1
	_, err := store.Bootstrap(ctx, seed)
	require.NoError(t, err)
	_, err = store.Bootstrap(ctx, seedState(t))
	require.ErrorIs(t, err, db.ErrNewerVersion)
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	client, cleanup, err := SetupTestDB()
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	defer cleanup()
	exerciseStore(t, db.NewPostgresStore(client))
}

func SetupTestDB() (*gorm.DB, func(), error) {
	ctx := context.Background()

	dbName := "test_db"
	dbUser := "test_user"
	dbPassword := "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		postgresContainer.Terminate(ctx)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		host, dbUser, dbPassword, dbName, port.Int())

	client, err := gorm.Open(postgresDriver.Open(dsn), &gorm.Config{})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := db.RunMigrations(client); err != nil {
		cleanup()
		return nil, nil, err
	}
	return client, cleanup, nil
}
