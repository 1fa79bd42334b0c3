package api

import (
	"context"
	"net/http"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/labstack/echo/v4"
)

// asManager runs an admin call with the stored manager as caller. The bearer token
// checked by the admin group is the credential of the manager.
func (s *Server) asManager(c echo.Context, dst any, fn func(ctx context.Context, manager types.AccountID) error) error {
	if dst != nil {
		if err := bind(c, dst); err != nil {
			return fail(c, err)
		}
	}
	ctx := c.Request().Context()
	manager, err := s.service.Manager(ctx)
	if err != nil {
		return fail(c, err)
	}
	if err := fn(ctx, manager); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseAmount(s string) (*types.Balance, error) {
	if s == "" {
		return new(types.Balance), nil
	}
	b, err := types.ParseBalance(s)
	if err != nil {
		return nil, types.NewRelayError(types.ErrMalformedRequest, nil, "%v", err)
	}
	return b, nil
}

func (s *Server) setManager(c echo.Context) error {
	var req ManagerRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		return s.service.SetManager(ctx, manager, types.AccountID(req.Manager))
	})
}

func (s *Server) setPaused(c echo.Context) error {
	var req PausedRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		return s.service.SetPaused(ctx, manager, *req.Paused)
	})
}

func (s *Server) setGasPoolLimits(c echo.Context) error {
	var req GasPoolLimitsRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		minPool, err := parseAmount(req.MinGasPool)
		if err != nil {
			return err
		}
		maxPool, err := parseAmount(req.MaxGasPool)
		if err != nil {
			return err
		}
		return s.service.SetGasPoolLimits(ctx, manager, minPool, maxPool)
	})
}

func (s *Server) setBaseFee(c echo.Context) error {
	var req BaseFeeRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		fee, err := parseAmount(req.BaseFee)
		if err != nil {
			return err
		}
		return s.service.SetBaseFee(ctx, manager, fee)
	})
}

func (s *Server) setMaxGas(c echo.Context) error {
	var req MaxGasRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		return s.service.SetMaxGas(ctx, manager, types.Gas(req.MaxGasTGas)*types.TGas)
	})
}

func (s *Server) setChunkSize(c echo.Context) error {
	var req ChunkSizeRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		return s.service.SetChunkSize(ctx, manager, req.ChunkSize)
	})
}

func (s *Server) setChainMpcMapping(c echo.Context) error {
	var req ChainMappingRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		return s.service.SetChainMpcMapping(ctx, manager, req.Chain, types.AccountID(req.Signer))
	})
}

func (s *Server) addWhitelisted(c echo.Context) error {
	var req WhitelistRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		return s.service.AddWhitelistedContract(ctx, manager, types.AccountID(req.Contract))
	})
}

func (s *Server) removeWhitelisted(c echo.Context) error {
	return s.asManager(c, nil, func(ctx context.Context, manager types.AccountID) error {
		return s.service.RemoveWhitelistedContract(ctx, manager, types.AccountID(c.Param("contract")))
	})
}

func (s *Server) setPaymentFTContract(c echo.Context) error {
	var req PaymentContractRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		minDeposit, err := parseAmount(req.MinDeposit)
		if err != nil {
			return err
		}
		return s.service.SetPaymentFTContract(ctx, manager, types.AccountID(req.Contract), minDeposit)
	})
}

func (s *Server) setAuthMultisig(c echo.Context) error {
	var req MultisigRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		return s.service.SetAuthMultisig(ctx, manager, req.Enabled, req.Threshold, req.ExpiryDays)
	})
}

func (s *Server) addAuthAccount(c echo.Context) error {
	var req AuthAccountRequest
	return s.asManager(c, &req, func(ctx context.Context, manager types.AccountID) error {
		key, err := types.ParsePublicKey(req.PublicKey)
		if err != nil {
			return types.NewRelayError(types.ErrUnauthorized, nil, "%v", err)
		}
		return s.service.AddAuthAccount(ctx, manager, types.AccountID(req.AccountID), key)
	})
}

func (s *Server) removeAuthAccount(c echo.Context) error {
	return s.asManager(c, nil, func(ctx context.Context, manager types.AccountID) error {
		return s.service.RemoveAuthAccount(ctx, manager, types.AccountID(c.Param("account")))
	})
}
