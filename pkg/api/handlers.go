package api

import (
	"encoding/base64"
	"net/http"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/codec"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func decodeRequest(encoded string) (*types.SignedDelegateAction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, types.NewRelayError(types.ErrMalformedRequest, nil, "invalid base64: %v", err)
	}
	sda, err := codec.DecodeSignedDelegateAction(raw)
	if err != nil {
		return nil, types.NewRelayError(types.ErrMalformedRequest, nil, "%v", err)
	}
	return sda, nil
}

func decodeRequests(encoded []string) ([]*types.SignedDelegateAction, error) {
	out := make([]*types.SignedDelegateAction, len(encoded))
	for i, e := range encoded {
		sda, err := decodeRequest(e)
		if err != nil {
			return nil, types.NewRelayError(types.ErrMalformedRequest, nil, "request %d: %v", i, err)
		}
		out[i] = sda
	}
	return out, nil
}

func planIDs(ids []uuid.UUID) RelayResponse {
	out := RelayResponse{PlanIDs: make([]string, len(ids))}
	for i, id := range ids {
		out.PlanIDs[i] = id.String()
	}
	return out
}

func (s *Server) relay(c echo.Context) error {
	var req RelayRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	sda, err := decodeRequest(req.Request)
	if err != nil {
		return fail(c, err)
	}
	id, err := s.service.RelayMetaTransaction(c.Request().Context(), sda)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, planIDs([]uuid.UUID{id}))
}

func (s *Server) relayBatch(c echo.Context) error {
	var req BatchRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	requests, err := decodeRequests(req.Requests)
	if err != nil {
		return fail(c, err)
	}
	ids, err := s.service.RelayMetaTransactions(c.Request().Context(), requests)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, planIDs(ids))
}

// relayChunked decodes entries one by one so an undecodable entry degrades to a
// rejected slot like any other malformed entry.
func (s *Server) relayChunked(c echo.Context) error {
	var req BatchRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	requests := make([]*types.SignedDelegateAction, len(req.Requests))
	for i, e := range req.Requests {
		if sda, err := decodeRequest(e); err == nil {
			requests[i] = sda
		}
	}
	results, err := s.service.RelayChunkedMetaTransactions(c.Request().Context(), requests)
	if results == nil && err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, results)
}

func (s *Server) deposit(c echo.Context) error {
	var req DepositRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	amount, err := types.ParseBalance(req.Amount)
	if err != nil {
		return fail(c, types.NewRelayError(types.ErrMalformedRequest, nil, "%v", err))
	}
	status, err := s.service.Deposit(c.Request().Context(), types.AccountID(req.From), amount)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) retry(c echo.Context) error {
	var req RetryRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	n, err := s.service.RetryFailedTransactions(c.Request().Context(), req.Max)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, RetryResponse{Retried: n})
}

func (s *Server) nonce(c echo.Context) error {
	sender := c.Param("sender")
	nonce, err := s.service.LastNonce(c.Request().Context(), types.AccountID(sender))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, NonceResponse{Sender: sender, Nonce: nonce})
}

func (s *Server) pool(c echo.Context) error {
	status, err := s.service.Pool(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) failed(c echo.Context) error {
	queued, err := s.service.FailedTransactions(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, queued)
}

func (s *Server) plan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, types.NewRelayError(types.ErrMalformedRequest, nil, "invalid plan id"))
	}
	inFlight, ok := s.service.InFlight.Get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "plan not found"})
	}
	return c.JSON(http.StatusOK, inFlight)
}
