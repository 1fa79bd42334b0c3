package relayer

import (
	"sync"
	"time"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/google/uuid"
)

type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanExecuting PlanStatus = "executing"
	PlanCommitted PlanStatus = "committed"
	PlanFailed    PlanStatus = "failed"
)

type InFlight struct {
	PlanID    uuid.UUID       `json:"plan_id"`
	Sender    types.AccountID `json:"sender,omitempty"`
	Nonce     uint64          `json:"nonce,omitempty"`
	Attempt   int             `json:"attempt"`
	Status    PlanStatus      `json:"status"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (f *InFlight) terminal() bool {
	return f.Status == PlanCommitted || f.Status == PlanFailed
}

// InFlightTable tracks submitted plans: Pending -> Executing -> Committed | Failed.
type InFlightTable struct {
	lock  sync.RWMutex
	plans map[uuid.UUID]*InFlight
	now   func() time.Time
}

func NewInFlightTable() *InFlightTable {
	return &InFlightTable{plans: map[uuid.UUID]*InFlight{}, now: time.Now}
}

func (t *InFlightTable) Track(id uuid.UUID, sender types.AccountID, nonce uint64, attempt int) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.plans[id] = &InFlight{PlanID: id, Sender: sender, Nonce: nonce, Attempt: attempt, Status: PlanPending, UpdatedAt: t.now()}
}

// Executing marks a pending plan as started. Terminal plans are left untouched.
func (t *InFlightTable) Executing(id uuid.UUID) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if f, ok := t.plans[id]; ok && f.Status == PlanPending {
		f.Status = PlanExecuting
		f.UpdatedAt = t.now()
	}
}

func (t *InFlightTable) Finish(id uuid.UUID, status PlanStatus, reason string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if f, ok := t.plans[id]; ok && !f.terminal() {
		f.Status = status
		f.Error = reason
		f.UpdatedAt = t.now()
	}
}

func (t *InFlightTable) Get(id uuid.UUID) (InFlight, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	f, ok := t.plans[id]
	if !ok {
		return InFlight{}, false
	}
	return *f, true
}

// Active counts plans that have not reached a terminal status.
func (t *InFlightTable) Active() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	n := 0
	for _, f := range t.plans {
		if !f.terminal() {
			n++
		}
	}
	return n
}

// Prune forgets terminal plans older than retention.
func (t *InFlightTable) Prune(retention time.Duration) int {
	t.lock.Lock()
	defer t.lock.Unlock()
	cutoff := t.now().Add(-retention)
	n := 0
	for id, f := range t.plans {
		if f.terminal() && f.UpdatedAt.Before(cutoff) {
			delete(t.plans, id)
			n++
		}
	}
	return n
}
