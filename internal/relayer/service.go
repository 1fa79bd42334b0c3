package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/db"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/OnSocial-Labs/onsocial-relayer/internal/relayer"

type Service struct {
	Store    db.Store
	Host     host.Host
	EventBus *events.EventBus
	InFlight *InFlightTable

	config *config.RelayerConfig
	tracer trace.Tracer
	worker *RetryWorker
}

func NewService(config *config.RelayerConfig, store db.Store, substrate host.Host, eventBus *events.EventBus) (*Service, error) {
	if store == nil || substrate == nil {
		return nil, fmt.Errorf("relayer service requires a store and a host")
	}
	if eventBus == nil {
		eventBus = events.NewEventBus(nil)
	}
	s := &Service{
		Store:    store,
		Host:     substrate,
		EventBus: eventBus,
		InFlight: NewInFlightTable(),
		config:   config,
		tracer:   otel.Tracer(tracerName),
	}
	s.worker = NewRetryWorker(s, config.RetryInterval, config.RetryBatchSize, config.InFlightRetention)
	return s, nil
}

// Bootstrap seeds the store on first start and upgrades a stored state written by an
// older version, emitting StateMigrated in that case.
func (s *Service) Bootstrap(ctx context.Context) error {
	params, err := ParamsFromConfig(s.config)
	if err != nil {
		return err
	}
	seed, err := state.New(params)
	if err != nil {
		return fmt.Errorf("invalid relayer parameters: %w", err)
	}
	from, err := s.Store.Bootstrap(ctx, seed)
	if err != nil {
		return fmt.Errorf("failed to bootstrap relayer state: %w", err)
	}
	switch {
	case from == 0:
		log.Info().Uint32("version", state.Version).Msg("[Relayer] [Bootstrap] initialized relayer state")
	case from < state.Version:
		log.Info().Uint32("from", from).Uint32("to", state.Version).Msg("[Relayer] [Bootstrap] migrated relayer state")
		batch := events.NewBatch()
		batch.Add(events.EVENT_STATE_MIGRATED, events.StateMigrated{FromVersion: from, ToVersion: state.Version})
		s.EventBus.Publish(ctx, batch)
	}
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	if s.config.RetryInterval > 0 {
		return s.worker.Start(ctx)
	}
	log.Warn().Msg("[Relayer] [Start] retry interval is zero, background retry is disabled")
	return nil
}

func (s *Service) Stop() {
	s.worker.Stop()
}

func (s *Service) blockHeight(ctx context.Context) (uint64, error) {
	height, err := s.Host.BlockHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read block height: %w", err)
	}
	return height, nil
}

// submit hands committed plans to the host. When the host refuses them, the costs
// reserved for the plans are returned to the pool so nothing is spent on work that
// never ran.
func (s *Service) submit(ctx context.Context, plans []*host.Plan, attempt int) error {
	if len(plans) == 0 {
		return nil
	}
	for _, plan := range plans {
		if plan.Request != nil {
			s.InFlight.Track(plan.ID, plan.Request.Sender(), plan.Request.Nonce(), attempt)
		} else {
			s.InFlight.Track(plan.ID, "", 0, attempt)
		}
	}
	err := s.Host.Submit(ctx, plans...)
	if err == nil {
		return nil
	}
	log.Error().Err(err).Int("plans", len(plans)).Msg("[Relayer] [submit] host rejected plans, refunding reserved cost")
	refund := new(types.Balance)
	for _, plan := range plans {
		s.InFlight.Finish(plan.ID, PlanFailed, err.Error())
		for _, link := range plan.Links {
			if link.Callback.Kind == host.CallbackFinalize {
				refund.Add(refund, &link.Callback.Cost)
			}
		}
	}
	if !refund.IsZero() {
		batch := events.NewBatch()
		var overflowPlan *host.Plan
		uerr := s.Store.Update(ctx, func(st *state.RelayerState) error {
			batch.Reset()
			overflowPlan = s.credit(st, "", refund, batch)
			return nil
		})
		if uerr != nil {
			log.Error().Err(uerr).Str("amount", refund.Dec()).Msg("[Relayer] [submit] cannot refund reserved cost")
		} else {
			s.EventBus.Publish(ctx, batch)
			if overflowPlan != nil {
				s.submitQuietly(ctx, []*host.Plan{overflowPlan}, 0)
			}
		}
	}
	return fmt.Errorf("failed to submit plans: %w", err)
}

// submitQuietly is used from completion callbacks where there is no caller to report to.
func (s *Service) submitQuietly(ctx context.Context, plans []*host.Plan, attempt int) {
	if err := s.submit(ctx, plans, attempt); err != nil {
		log.Error().Err(err).Msg("[Relayer] [submitQuietly] cannot submit follow-up plans")
	}
}

// Snapshot returns a copy of the current state.
func (s *Service) Snapshot(ctx context.Context) (*state.RelayerState, error) {
	var snapshot *state.RelayerState
	err := s.Store.View(ctx, func(st *state.RelayerState) error {
		snapshot = st
		return nil
	})
	return snapshot, err
}

func (s *Service) LastNonce(ctx context.Context, sender types.AccountID) (uint64, error) {
	var nonce uint64
	err := s.Store.View(ctx, func(st *state.RelayerState) error {
		nonce = st.LastNonce(sender)
		return nil
	})
	return nonce, err
}

type PoolStatus struct {
	GasPool    string `json:"gas_pool"`
	MinGasPool string `json:"min_gas_pool"`
	MaxGasPool string `json:"max_gas_pool"`
	BaseFee    string `json:"base_fee"`
	Paused     bool   `json:"paused"`
	Queued     int    `json:"queued"`
	InFlight   int    `json:"in_flight"`
}

func (s *Service) Pool(ctx context.Context) (*PoolStatus, error) {
	var status *PoolStatus
	err := s.Store.View(ctx, func(st *state.RelayerState) error {
		status = &PoolStatus{
			GasPool:    st.GasPool.Dec(),
			MinGasPool: st.MinGasPool.Dec(),
			MaxGasPool: st.MaxGasPool.Dec(),
			BaseFee:    st.BaseFee.Dec(),
			Paused:     st.Paused,
			Queued:     len(st.FailedTransactions),
			InFlight:   s.InFlight.Active(),
		}
		return nil
	})
	return status, err
}

type QueuedTransaction struct {
	Sender         types.AccountID `json:"sender"`
	Nonce          uint64          `json:"nonce"`
	MaxBlockHeight uint64          `json:"max_block_height"`
	Gas            types.Gas       `json:"gas"`
}

func (s *Service) FailedTransactions(ctx context.Context) ([]QueuedTransaction, error) {
	var out []QueuedTransaction
	err := s.Store.View(ctx, func(st *state.RelayerState) error {
		out = make([]QueuedTransaction, 0, len(st.FailedTransactions))
		for _, ft := range st.FailedTransactions {
			out = append(out, QueuedTransaction{
				Sender:         ft.Request.Sender(),
				Nonce:          ft.Request.Nonce(),
				MaxBlockHeight: ft.Request.DelegateAction.MaxBlockHeight,
				Gas:            ft.Gas,
			})
		}
		return nil
	})
	return out, err
}

func since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
