/*
poster.go - Ledger posting and running-balance computation

PURPOSE:
  Converts a Draft allocation into permanent ledger entries: one Risk Fund
  debit for the risk premium and one Savings Fund debit for the savings
  premium, plus the one-time status update to Posted. The three writes happen
  inside a single store transaction: either all are visible or none are.

RUNNING BALANCE:
  Each entry's Balance is the previous balance for its account (taken from
  the latest entry by EntryNo, 0 when the account is empty) plus Debit minus
  Credit. The read-then-write is safe because the store serializes WithTx;
  two concurrent posts cannot observe the same "latest balance".

CONCURRENT DOUBLE POST:
  The Draft check runs inside the transaction, and MarkAllocationPosted
  refuses to transition an allocation that is no longer Draft. Two racing
  posts of the same allocation resolve to one success and one
  AlreadyPostedError, never four entries.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POSTING
// =============================================================================

// PostAllocation converts a Draft allocation into two permanent ledger
// entries and marks it Posted. Posting an allocation in any other status
// fails with AlreadyPostedError; a missing allocation fails with
// NotFoundError. On any failure the ledger and the allocation are left
// exactly as they were.
func (e *Engine) PostAllocation(ctx context.Context, id AllocationID, postedBy string) error {
	today := e.clock.Today()

	err := e.store.WithTx(ctx, func(s Store) error {
		a, err := s.GetAllocation(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return &NotFoundError{AllocationID: id}
		}
		if a.Status != StatusDraft {
			return &AlreadyPostedError{AllocationID: id, Status: a.Status}
		}

		risk := EntryInput{
			AllocationID: a.ID,
			PolicyID:     a.PolicyID,
			CustomerID:   a.CustomerID,
			EntryDate:    today,
			Type:         EntryRiskPayment,
			Account:      AccountRiskFund,
			Debit:        a.RiskPremium,
			Description:  fmt.Sprintf("Risk premium for allocation %s", a.ID),
			PostedBy:     postedBy,
		}
		if _, err := postEntry(ctx, s, risk); err != nil {
			return err
		}

		savings := EntryInput{
			AllocationID: a.ID,
			PolicyID:     a.PolicyID,
			CustomerID:   a.CustomerID,
			EntryDate:    today,
			Type:         EntrySavingsDeposit,
			Account:      AccountSavingsFund,
			Debit:        a.SavingsPremium,
			Description:  fmt.Sprintf("Savings deposit for allocation %s", a.ID),
			PostedBy:     postedBy,
		}
		if _, err := postEntry(ctx, s, savings); err != nil {
			return err
		}

		return s.MarkAllocationPosted(ctx, a.ID, today, postedBy)
	})

	if err == nil {
		return nil
	}
	if IsNotFound(err) || errors.Is(err, ErrAlreadyPosted) {
		return err
	}
	return &ConsistencyError{Op: "post allocation " + string(id), Err: err}
}

// =============================================================================
// ENTRY CREATION
// =============================================================================

// EntryInput carries the fields for one ledger entry. Callers are expected
// to pass exactly one nonzero amount among Debit and Credit; the engine does
// not enforce this.
type EntryInput struct {
	AllocationID AllocationID
	PolicyID     PolicyID
	CustomerID   CustomerID
	EntryDate    Date
	Type         EntryType
	Account      AccountType
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	Description  string
	PostedBy     string
}

// CreateLedgerEntry appends a single entry with its running balance computed
// inside a transaction, and returns the assigned entry number. This is the
// shared write path for other ledger producers (claim payments, fees) that
// post outside the allocation flow.
func (e *Engine) CreateLedgerEntry(ctx context.Context, in EntryInput) (int64, error) {
	var entryNo int64
	err := e.store.WithTx(ctx, func(s Store) error {
		no, err := postEntry(ctx, s, in)
		if err != nil {
			return err
		}
		entryNo = no
		return nil
	})
	if err != nil {
		return 0, &ConsistencyError{Op: "create ledger entry", Err: err}
	}
	return entryNo, nil
}

// postEntry computes the running balance and appends one entry. Must be
// called with s inside a transaction: the balance read and the insert have
// to be atomic.
func postEntry(ctx context.Context, s Store, in EntryInput) (int64, error) {
	last, err := s.LastEntryForAccount(ctx, in.Account)
	if err != nil {
		return 0, err
	}

	prev := decimal.Zero
	if last != nil {
		prev = last.Balance
	}

	entry := LedgerEntry{
		AllocationID: in.AllocationID,
		PolicyID:     in.PolicyID,
		CustomerID:   in.CustomerID,
		EntryDate:    in.EntryDate,
		Type:         in.Type,
		Account:      in.Account,
		Debit:        in.Debit,
		Credit:       in.Credit,
		Balance:      prev.Add(in.Debit).Sub(in.Credit),
		Description:  in.Description,
		Posted:       true,
		PostedBy:     in.PostedBy,
	}
	return s.AppendEntry(ctx, entry)
}
