package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/OnSocial-Labs/onsocial-relayer/internal/relayer"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/api"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/codec"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/db"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/signer"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "secret"

type testServer struct {
	t       *testing.T
	handler http.Handler
	service *relayer.Service
	host    *host.Recorder
	key     signer.KeyPair
}

func newTestServer(t *testing.T) *testServer {
	ctx := context.Background()
	recorder := host.NewRecorder(10)
	service, err := relayer.NewService(&config.RelayerConfig{
		Manager:           "manager.testnet",
		RelayerAccount:    "relayer.testnet",
		OverflowRecipient: "treasury.testnet",
		InitialGasPool:    "1000",
		MinGasPool:        "100",
		MaxGasPool:        "10000",
		BaseFee:           "10",
		MaxGasTGas:        250,
		DefaultGasTGas:    100,
		RetryBufferTGas:   10,
		ChunkSize:         2,
	}, db.NewMemoryStore(), recorder, nil)
	require.NoError(t, err)
	require.NoError(t, service.Bootstrap(ctx))

	key, err := signer.GenerateED25519()
	require.NoError(t, err)
	server := api.NewServer(&config.ServerConfig{Port: 8080, AdminToken: adminToken}, service)
	ts := &testServer{t: t, handler: server.Handler(), service: service, host: recorder, key: key}

	rec := ts.do(http.MethodPost, "/v1/admin/auth-accounts", adminToken, api.AuthAccountRequest{
		AccountID: "alice.testnet",
		PublicKey: key.PublicKey().String(),
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	return ts
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) encoded(nonce uint64) string {
	ts.t.Helper()
	sda, err := signer.SignDelegateAction(ts.key, types.DelegateAction{
		SenderID:       "alice.testnet",
		ReceiverID:     "app.testnet",
		Operations:     []types.Operation{&types.FunctionCall{MethodName: "post", Gas: 10 * types.TGas}},
		Nonce:          nonce,
		MaxBlockHeight: 100,
	}, nil, 0)
	require.NoError(ts.t, err)
	raw, err := codec.EncodeSignedDelegateAction(sda)
	require.NoError(ts.t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRelayEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/relay", "", api.RelayRequest{Request: ts.encoded(1)})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode[api.RelayResponse](t, rec)
	require.Len(t, resp.PlanIDs, 1)

	rec = ts.do(http.MethodGet, "/v1/plans/"+resp.PlanIDs[0], "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, relayer.PlanPending, decode[relayer.InFlight](t, rec).Status)

	ts.host.CompleteAll(context.Background(), ts.service)
	rec = ts.do(http.MethodGet, "/v1/nonces/alice.testnet", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), decode[api.NonceResponse](t, rec).Nonce)

	rec = ts.do(http.MethodPost, "/v1/relay", "", api.RelayRequest{Request: ts.encoded(1)})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.ErrInvalidNonce.Error(), decode[api.ErrorResponse](t, rec).Kind)

	rec = ts.do(http.MethodGet, "/v1/pool", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "990", decode[relayer.PoolStatus](t, rec).GasPool)
}

func TestRelayEndpointRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body any
	}{
		{"empty", api.RelayRequest{}},
		{"not base64", api.RelayRequest{Request: "%%%"}},
		{"not a request", api.RelayRequest{Request: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/v1/relay", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChunkedEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/v1/relay/chunked", "", api.BatchRequest{
		Requests: []string{ts.encoded(1), base64.StdEncoding.EncodeToString([]byte("junk")), ts.encoded(2)},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	results := decode[[]relayer.ChunkEntryResult](t, rec)
	require.Len(t, results, 3)
	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error)
	assert.Empty(t, results[2].Error)
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/admin/paused", "", map[string]bool{"paused": true})
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusUnauthorized}, rec.Code, "missing bearer token")
	rec = ts.do(http.MethodPost, "/v1/admin/paused", "wrong", map[string]bool{"paused": true})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/admin/paused", adminToken, map[string]bool{"paused": true})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPost, "/v1/relay", "", api.RelayRequest{Request: ts.encoded(1)})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/admin/chunk-size", adminToken, api.ChunkSizeRequest{ChunkSize: 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, types.ErrAmountTooLow.Error(), decode[api.ErrorResponse](t, rec).Kind)
}

func TestDepositEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/v1/deposit", "", api.DepositRequest{From: "donor.testnet", Amount: "500"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1500", decode[relayer.PoolStatus](t, rec).GasPool)

	rec = ts.do(http.MethodPost, "/v1/deposit", "", api.DepositRequest{From: "donor.testnet", Amount: "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/retry", "", api.RetryRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[api.RetryResponse](t, rec).Retried)
}
