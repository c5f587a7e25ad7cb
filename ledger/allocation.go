/*
allocation.go - Premium split computation and allocation creation

PURPOSE:
  Computes the risk/savings split for a premium payment and creates the
  immutable-once-posted Allocation record. No ledger entries are created
  here; posting is a separate, explicit step (see poster.go).

SPLIT RULES:
  savingsPercentage = 100 - riskPercentage (always derived, never supplied)
  riskPremium       = round2(totalPremium * riskPercentage / 100)
  savingsPremium    = round2(totalPremium * savingsPercentage / 100)
  investmentRatio   = round4(riskPremium / savingsPremium)  if savings > 0
                    = riskPremium                           otherwise

  The zero-denominator convention is deliberate: a 100% risk allocation
  reports its raw risk amount as the ratio, not infinity or null. Callers
  that render the ratio should be aware of it.

VALIDATION:
  riskPercentage must be in [0, 100]. The total premium is NOT validated for
  non-negativity: that remains the caller's responsibility, matching the
  billing contract. Adding a guard here would change observable behavior for
  existing callers.
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultRiskPercentage is the suggested split for callers that have no
// dynamic pricing signal yet. It is never applied implicitly: CreateAllocation
// always requires an explicit risk percentage.
const DefaultRiskPercentage = 75

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the premium allocation and ledger posting engine. It requires a
// TxStore because posting is a multi-write atomic operation.
type Engine struct {
	store TxStore
	clock Clock
}

type Option func(*Engine)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{store: store, clock: SystemClock()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// SPLIT COMPUTATION
// =============================================================================

// Split holds the derived quantities for one premium payment.
type Split struct {
	RiskPercentage    decimal.Decimal
	SavingsPercentage decimal.Decimal
	RiskPremium       decimal.Decimal
	SavingsPremium    decimal.Decimal
	InvestmentRatio   decimal.Decimal
}

// ComputeSplit derives the risk/savings amounts and the investment ratio for
// a premium. Pure function; safe to call without an Engine.
func ComputeSplit(totalPremium, riskPercentage decimal.Decimal) (Split, error) {
	if riskPercentage.IsNegative() || riskPercentage.GreaterThan(hundred) {
		return Split{}, &ValidationError{
			Field:   "risk_percentage",
			Message: "risk percentage must be between 0 and 100",
		}
	}

	savingsPercentage := hundred.Sub(riskPercentage)
	riskPremium := RoundMoney(totalPremium.Mul(riskPercentage).Div(hundred))
	savingsPremium := RoundMoney(totalPremium.Mul(savingsPercentage).Div(hundred))

	return Split{
		RiskPercentage:    riskPercentage,
		SavingsPercentage: savingsPercentage,
		RiskPremium:       riskPremium,
		SavingsPremium:    savingsPremium,
		InvestmentRatio:   investmentRatio(riskPremium, savingsPremium),
	}, nil
}

// investmentRatio applies the zero-denominator convention: when there is no
// savings component the ratio field holds the raw risk amount.
func investmentRatio(riskPremium, savingsPremium decimal.Decimal) decimal.Decimal {
	if savingsPremium.IsPositive() {
		return RoundRatio(riskPremium.Div(savingsPremium))
	}
	return riskPremium
}

// =============================================================================
// ALLOCATION CREATION
// =============================================================================

// AllocationInput carries the caller-supplied fields for a new allocation.
// BillID, PolicyID and CustomerID are opaque foreign identifiers; their
// validity is the caller's responsibility.
type AllocationInput struct {
	BillID         BillID
	PolicyID       PolicyID
	CustomerID     CustomerID
	TotalPremium   decimal.Decimal
	RiskPercentage decimal.Decimal
	CreatedBy      string
}

// CreateAllocation computes the split, assigns a new allocation ID from the
// store's sequence, and persists the allocation in Draft status. No ledger
// entries are created until PostAllocation.
func (e *Engine) CreateAllocation(ctx context.Context, in AllocationInput) (*Allocation, error) {
	split, err := ComputeSplit(in.TotalPremium, in.RiskPercentage)
	if err != nil {
		return nil, err
	}

	seq, err := e.store.NextAllocationSeq(ctx)
	if err != nil {
		return nil, &ConsistencyError{Op: "reserve allocation id", Err: err}
	}

	a := Allocation{
		ID:                AllocationID(fmt.Sprintf("ALLOC%d", seq)),
		BillID:            in.BillID,
		PolicyID:          in.PolicyID,
		CustomerID:        in.CustomerID,
		AllocationDate:    e.clock.Today(),
		TotalPremium:      in.TotalPremium,
		RiskPercentage:    split.RiskPercentage,
		SavingsPercentage: split.SavingsPercentage,
		RiskPremium:       split.RiskPremium,
		SavingsPremium:    split.SavingsPremium,
		InvestmentRatio:   split.InvestmentRatio,
		Status:            StatusDraft,
		CreatedBy:         in.CreatedBy,
	}

	if err := e.store.InsertAllocation(ctx, a); err != nil {
		return nil, &ConsistencyError{Op: "insert allocation " + string(a.ID), Err: err}
	}
	return &a, nil
}

// Allocation returns a single allocation by ID.
func (e *Engine) Allocation(ctx context.Context, id AllocationID) (*Allocation, error) {
	a, err := e.store.GetAllocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &NotFoundError{AllocationID: id}
	}
	return a, nil
}

// EntriesForAllocation returns the ledger entries an allocation produced,
// in EntryNo order. A posted allocation always has exactly two.
func (e *Engine) EntriesForAllocation(ctx context.Context, id AllocationID) ([]LedgerEntry, error) {
	return e.store.EntriesForAllocation(ctx, id)
}
