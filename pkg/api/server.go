// Package api exposes the relay engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/OnSocial-Labs/onsocial-relayer/internal/relayer"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/db"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

type Server struct {
	echo    *echo.Echo
	service *relayer.Service
	config  *config.ServerConfig
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func NewServer(cfg *config.ServerConfig, service *relayer.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("[Api] request")
			return nil
		},
	}))
	s := &Server{echo: e, service: service, config: cfg}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	v1 := s.echo.Group("/v1")
	v1.POST("/relay", s.relay)
	v1.POST("/relay/batch", s.relayBatch)
	v1.POST("/relay/chunked", s.relayChunked)
	v1.POST("/deposit", s.deposit)
	v1.POST("/retry", s.retry)
	v1.GET("/nonces/:sender", s.nonce)
	v1.GET("/pool", s.pool)
	v1.GET("/failed", s.failed)
	v1.GET("/plans/:id", s.plan)

	if s.config.AdminToken == "" {
		log.Warn().Msg("[Api] [routes] admin token is empty, admin routes are disabled")
		return
	}
	admin := v1.Group("/admin", middleware.KeyAuth(func(key string, _ echo.Context) (bool, error) {
		return key == s.config.AdminToken, nil
	}))
	admin.POST("/manager", s.setManager)
	admin.POST("/paused", s.setPaused)
	admin.POST("/gas-pool-limits", s.setGasPoolLimits)
	admin.POST("/base-fee", s.setBaseFee)
	admin.POST("/max-gas", s.setMaxGas)
	admin.POST("/chunk-size", s.setChunkSize)
	admin.POST("/chain-mpc-mapping", s.setChainMpcMapping)
	admin.POST("/whitelist", s.addWhitelisted)
	admin.DELETE("/whitelist/:contract", s.removeWhitelisted)
	admin.POST("/payment-ft-contract", s.setPaymentFTContract)
	admin.POST("/auth-multisig", s.setAuthMultisig)
	admin.POST("/auth-accounts", s.addAuthAccount)
	admin.DELETE("/auth-accounts/:account", s.removeAuthAccount)
}

// Handler is the underlying http.Handler, used in tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves in the background until Shutdown is called.
func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	go func() {
		log.Info().Str("addr", addr).Msg("[Api] [Start] listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("[Api] [Start] server stopped")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// bind decodes and validates the request body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return types.NewRelayError(types.ErrMalformedRequest, nil, "invalid body: %v", err)
	}
	if err := c.Validate(dst); err != nil {
		return types.NewRelayError(types.ErrMalformedRequest, nil, "%v", err)
	}
	return nil
}

func fail(c echo.Context, err error) error {
	status, kind := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("[Api] request failed")
	}
	return c.JSON(status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func errorStatus(err error) (int, string) {
	for _, m := range []struct {
		kind   error
		status int
	}{
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrInsufficientGasPool, http.StatusServiceUnavailable},
		{types.ErrContractPaused, http.StatusServiceUnavailable},
		{types.ErrInvalidNonce, http.StatusConflict},
		{types.ErrExpiredTransaction, http.StatusGone},
		{types.ErrNotWhitelisted, http.StatusForbidden},
		{types.ErrMalformedRequest, http.StatusBadRequest},
		{types.ErrInvalidFTTransfer, http.StatusBadRequest},
		{types.ErrInsufficientDeposit, http.StatusBadRequest},
		{types.ErrInvalidAccountID, http.StatusBadRequest},
		{types.ErrAmountTooLow, http.StatusBadRequest},
		{types.ErrFeeTooLow, http.StatusBadRequest},
		{types.ErrInsufficientSignatures, http.StatusBadRequest},
		{db.ErrNotInitialized, http.StatusServiceUnavailable},
	} {
		if errors.Is(err, m.kind) {
			return m.status, m.kind.Error()
		}
	}
	return http.StatusInternalServerError, ""
}
