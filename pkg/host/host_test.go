package host_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	completions []host.Completion
}

func (c *collector) OnCompletion(_ context.Context, completion host.Completion) error {
	c.completions = append(c.completions, completion)
	return nil
}

func call(receiver types.AccountID, op types.Operation) *host.Call {
	return &host.Call{Predecessor: "relayer.testnet", OnBehalfOf: "alice.testnet", Receiver: receiver, Operation: op}
}

func TestRunSkipsAfterFailureButDeliversEveryCallback(t *testing.T) {
	plan := host.NewPlan(nil).
		Add(call("a", &types.Transfer{}), host.Callback{Kind: host.CallbackFeePayment}).
		Add(call("b", &types.Transfer{}), host.Callback{Kind: host.CallbackOperationResult, Index: 0}).
		Add(call("c", &types.Transfer{}), host.Callback{Kind: host.CallbackOperationResult, Index: 1}).
		Add(nil, host.Callback{Kind: host.CallbackFinalize})

	rec := host.NewRecorder(7)
	c := &collector{}
	rec.Complete(context.Background(), c, plan, host.Success(nil), host.Fail("boom"))

	require.Len(t, c.completions, 4)
	assert.Equal(t, host.StatusSuccess, c.completions[0].Outcome.Status)
	assert.Equal(t, host.StatusFailure, c.completions[1].Outcome.Status)
	assert.Equal(t, host.StatusSkipped, c.completions[2].Outcome.Status)
	last := c.completions[3]
	assert.Equal(t, host.CallbackFinalize, last.Callback.Kind)
	assert.True(t, last.Outcome.OK())
	require.Len(t, last.Results, 4)
	assert.Equal(t, uint64(7), last.Height)
	assert.Equal(t, 3, plan.Steps())
}

func TestRunContinuesAfterFailedChainSignature(t *testing.T) {
	plan := host.NewPlan(nil).
		Add(call("mpc", &types.FunctionCall{MethodName: "sign"}), host.Callback{Kind: host.CallbackChainSignatureResult}).
		Add(call("b", &types.Transfer{}), host.Callback{Kind: host.CallbackOperationResult, Index: 1}).
		Add(nil, host.Callback{Kind: host.CallbackFinalize})

	rec := host.NewRecorder(7)
	c := &collector{}
	rec.Complete(context.Background(), c, plan, host.Fail("signer unavailable"))

	require.Len(t, c.completions, 3)
	assert.Equal(t, host.StatusFailure, c.completions[0].Outcome.Status)
	assert.Equal(t, host.StatusSuccess, c.completions[1].Outcome.Status, "the transfer still runs")
}

func TestLocalHostTransfersAndKeys(t *testing.T) {
	ctx := context.Background()
	h := host.NewLocalHost(1, 0)
	h.Credit("relayer.testnet", types.NewBalance(100))
	c := &collector{}
	h.SetHandler(c)

	key := types.PublicKey{Type: types.KeyTypeED25519, Data: make([]byte, 32)}
	plan := host.NewPlan(nil).
		Add(call("bob.testnet", &types.Transfer{Deposit: *types.NewBalance(40)}), host.Callback{Kind: host.CallbackOperationResult}).
		Add(call("bob.testnet", &types.AddKey{PublicKey: key}), host.Callback{Kind: host.CallbackOperationResult, Index: 1}).
		Add(call("bob.testnet", &types.Transfer{Deposit: *types.NewBalance(100)}), host.Callback{Kind: host.CallbackOperationResult, Index: 2})
	require.NoError(t, h.Submit(ctx, plan))
	assert.Equal(t, 1, h.Pending())
	assert.Equal(t, 1, h.Drain(ctx))

	require.Len(t, c.completions, 3)
	assert.True(t, c.completions[0].Outcome.OK())
	assert.True(t, c.completions[1].Outcome.OK())
	assert.Equal(t, host.StatusFailure, c.completions[2].Outcome.Status)
	assert.Equal(t, uint64(60), h.Balance("relayer.testnet").Uint64())
	assert.Equal(t, uint64(40), h.Balance("bob.testnet").Uint64())
	require.Len(t, h.AccessKeys("bob.testnet"), 1)
}

func TestFTContract(t *testing.T) {
	ctx := context.Background()
	h := host.NewLocalHost(1, 0)
	ft := host.NewFTContract(map[types.AccountID]*types.Balance{"alice.testnet": types.NewBalance(50)})
	h.Deploy("usdc.testnet", ft)
	c := &collector{}
	h.SetHandler(c)

	args, err := json.Marshal(host.FTTransferArgs{ReceiverID: "relayer.testnet", Amount: "30"})
	require.NoError(t, err)
	transfer := &types.FunctionCall{MethodName: "ft_transfer", Args: args, Gas: types.TGas}
	require.NoError(t, h.Submit(ctx,
		host.NewPlan(nil).Add(call("usdc.testnet", transfer), host.Callback{Kind: host.CallbackFeePayment}),
		host.NewPlan(nil).Add(call("usdc.testnet", transfer), host.Callback{Kind: host.CallbackFeePayment}),
	))
	assert.Equal(t, 2, h.Drain(ctx))

	require.Len(t, c.completions, 2)
	assert.True(t, c.completions[0].Outcome.OK())
	assert.False(t, c.completions[1].Outcome.OK())
	assert.Equal(t, uint64(20), ft.BalanceOf("alice.testnet").Uint64())
	assert.Equal(t, uint64(30), ft.BalanceOf("relayer.testnet").Uint64())
}

func TestAuthContract(t *testing.T) {
	ctx := context.Background()
	auth := host.NewAuthContract("relayer.testnet")
	register, err := json.Marshal(host.RegisterKeyArgs{AccountID: "alice.testnet", PublicKey: "ed25519:abc"})
	require.NoError(t, err)
	remove, err := json.Marshal(host.RemoveKeyArgs{AccountID: "alice.testnet", PublicKey: "ed25519:abc"})
	require.NoError(t, err)

	_, err = auth.Call(ctx, &host.Call{Predecessor: "mallory"}, &types.FunctionCall{MethodName: "register_key", Args: register})
	require.Error(t, err)
	owner := &host.Call{Predecessor: "relayer.testnet"}
	_, err = auth.Call(ctx, owner, &types.FunctionCall{MethodName: "register_key", Args: register})
	require.NoError(t, err)
	assert.Equal(t, []string{"ed25519:abc"}, auth.Keys("alice.testnet"))
	_, err = auth.Call(ctx, owner, &types.FunctionCall{MethodName: "remove_key", Args: remove})
	require.NoError(t, err)
	assert.Empty(t, auth.Keys("alice.testnet"))
	_, err = auth.Call(ctx, owner, &types.FunctionCall{MethodName: "remove_key", Args: remove})
	require.Error(t, err)
}

func TestMPCContractSignsWithDerivedKey(t *testing.T) {
	ctx := context.Background()
	mpc := host.NewMPCContract([]byte("root-secret"), 0)
	payload := crypto.Keccak256([]byte("foreign tx"))
	args, err := json.Marshal(host.SignArgs{Payload: payload, Path: "ethereum-1", RequestID: 9, OnBehalfOf: "alice.testnet"})
	require.NoError(t, err)

	out, err := mpc.Call(ctx, &host.Call{}, &types.FunctionCall{MethodName: "sign", Args: args})
	require.NoError(t, err)
	var result host.SignResult
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, uint64(9), result.RequestID)

	derived, err := mpc.DerivedPublicKey("alice.testnet", "ethereum-1")
	require.NoError(t, err)
	assert.Equal(t, derived, []byte(result.PublicKey))
	recovered, err := crypto.Ecrecover(payload, result.Signature)
	require.NoError(t, err)
	assert.Equal(t, derived, recovered)

	short, err := json.Marshal(host.SignArgs{Payload: []byte{1, 2, 3}})
	require.NoError(t, err)
	_, err = mpc.Call(ctx, &host.Call{}, &types.FunctionCall{MethodName: "sign", Args: short})
	require.Error(t, err)
}

func TestAppContractRequiresGas(t *testing.T) {
	app := &host.AppContract{RequiredGas: 50 * types.TGas}
	_, err := app.Call(context.Background(), &host.Call{}, &types.FunctionCall{MethodName: "ping", Gas: 10 * types.TGas})
	require.Error(t, err)
	_, err = app.Call(context.Background(), &host.Call{}, &types.FunctionCall{MethodName: "ping", Gas: 50 * types.TGas})
	require.NoError(t, err)
	assert.Len(t, app.Calls(), 1)
}
