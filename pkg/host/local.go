package host

import (
	"context"
	"sync"
	"time"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/rs/zerolog/log"
)

// LocalHost is an in-process substrate: a native balance ledger, an access key table
// and a set of deployed contracts. Plans run in submission order; each plan runs to
// completion before the next one starts.
type LocalHost struct {
	mutex     sync.Mutex
	height    uint64
	interval  time.Duration
	handler   Handler
	pending   []*Plan
	wake      chan struct{}
	contracts map[types.AccountID]Contract
	balances  map[types.AccountID]*types.Balance
	keys      map[types.AccountID][]types.PublicKey
	isRunning bool
}

func NewLocalHost(startHeight uint64, blockInterval time.Duration) *LocalHost {
	return &LocalHost{
		height:    startHeight,
		interval:  blockInterval,
		wake:      make(chan struct{}, 1),
		contracts: map[types.AccountID]Contract{},
		balances:  map[types.AccountID]*types.Balance{},
		keys:      map[types.AccountID][]types.PublicKey{},
	}
}

func (h *LocalHost) SetHandler(handler Handler) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.handler = handler
}

func (h *LocalHost) Deploy(account types.AccountID, contract Contract) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.contracts[account] = contract
}

func (h *LocalHost) Credit(account types.AccountID, amount *types.Balance) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.balanceLocked(account).Add(h.balanceLocked(account), amount)
}

func (h *LocalHost) Balance(account types.AccountID) *types.Balance {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return new(types.Balance).Set(h.balanceLocked(account))
}

func (h *LocalHost) AccessKeys(account types.AccountID) []types.PublicKey {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]types.PublicKey(nil), h.keys[account]...)
}

func (h *LocalHost) balanceLocked(account types.AccountID) *types.Balance {
	b, ok := h.balances[account]
	if !ok {
		b = new(types.Balance)
		h.balances[account] = b
	}
	return b
}

func (h *LocalHost) BlockHeight(context.Context) (uint64, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.height, nil
}

// Advance moves the block height forward by n blocks.
func (h *LocalHost) Advance(n uint64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.height += n
}

func (h *LocalHost) Submit(_ context.Context, plans ...*Plan) error {
	h.mutex.Lock()
	h.pending = append(h.pending, plans...)
	h.mutex.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

func (h *LocalHost) Pending() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.pending)
}

// Drain executes queued plans, including plans submitted by callbacks while draining,
// until the queue is empty. It returns the number of plans executed.
func (h *LocalHost) Drain(ctx context.Context) int {
	executed := 0
	for ctx.Err() == nil {
		h.mutex.Lock()
		if len(h.pending) == 0 {
			h.mutex.Unlock()
			return executed
		}
		plan := h.pending[0]
		h.pending[0] = nil
		h.pending = h.pending[1:]
		handler := h.handler
		h.mutex.Unlock()

		Run(ctx, plan, h.currentHeight, h.execute, handler)
		executed++
	}
	return executed
}

func (h *LocalHost) currentHeight() uint64 {
	height, _ := h.BlockHeight(context.Background())
	return height
}

// Start produces a block every interval and drains submitted plans as they arrive.
func (h *LocalHost) Start(ctx context.Context) error {
	h.mutex.Lock()
	if h.isRunning {
		h.mutex.Unlock()
		return nil
	}
	h.isRunning = true
	h.mutex.Unlock()
	go h.loop(ctx)
	return nil
}

func (h *LocalHost) Stop() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.isRunning = false
}

func (h *LocalHost) running() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.isRunning
}

func (h *LocalHost) loop(ctx context.Context) {
	interval := h.interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("[LocalHost] [loop] stopped due to context cancellation")
			return
		case <-ticker.C:
			if !h.running() {
				return
			}
			h.Advance(1)
			h.Drain(ctx)
		case <-h.wake:
			if !h.running() {
				return
			}
			h.Drain(ctx)
		}
	}
}

func (h *LocalHost) execute(ctx context.Context, call *Call) Outcome {
	switch op := call.Operation.(type) {
	case *types.Transfer:
		return h.transfer(call.Predecessor, call.Receiver, &op.Deposit)
	case *types.AddKey:
		h.mutex.Lock()
		defer h.mutex.Unlock()
		for _, key := range h.keys[call.Receiver] {
			if key.Equal(op.PublicKey) {
				return Failure("access key %s already exists on %s", op.PublicKey, call.Receiver)
			}
		}
		h.keys[call.Receiver] = append(h.keys[call.Receiver], op.PublicKey)
		return Success(nil)
	case *types.FunctionCall:
		if !op.Deposit.IsZero() {
			if outcome := h.transfer(call.Predecessor, call.Receiver, &op.Deposit); !outcome.OK() {
				return outcome
			}
		}
		h.mutex.Lock()
		contract, ok := h.contracts[call.Receiver]
		h.mutex.Unlock()
		if !ok {
			return Failure("account %s has no contract deployed", call.Receiver)
		}
		value, err := contract.Call(ctx, call, op)
		if err != nil {
			return Failure("%s.%s: %v", call.Receiver, op.MethodName, err)
		}
		return Success(value)
	case *types.ChainSignatureRequest:
		// chain signature requests are compiled to a sign call before they reach a host
		return Failure("chain signature request must be routed to a signer")
	default:
		return Failure("unsupported operation %T", call.Operation)
	}
}

func (h *LocalHost) transfer(from, to types.AccountID, amount *types.Balance) Outcome {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	balance := h.balanceLocked(from)
	if balance.Lt(amount) {
		return Failure("%s cannot cover transfer of %s", from, amount.Dec())
	}
	balance.Sub(balance, amount)
	h.balanceLocked(to).Add(h.balanceLocked(to), amount)
	return Success(nil)
}
