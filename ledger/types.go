/*
Package ledger provides the premium allocation and posting engine.

PURPOSE:
  This package contains the types and algorithms for splitting a premium
  payment into a risk portion and a customer-savings portion, posting the
  split as ledger entries against fund accounts, and answering aggregate
  queries over posted history (customer summaries, statements, accumulative
  premium reports, accounting books).

KEY CONCEPTS IN THIS FILE (types.go):
  - Allocation: One decision to split a premium payment (Draft until posted)
  - LedgerEntry: One single-sided movement against a fund account
  - AccountType/EntryType: Closed enumerations for the ledger dimensions
  - Identifier types: Type-safe IDs for bills, policies, customers

DESIGN PRINCIPLES:
  1. Immutability: Posted allocations and ledger entries are never mutated
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing bill/policy/customer IDs
  4. Auditability: Every entry carries the allocation that caused it and who
     posted it

SEE ALSO:
  - allocation.go: Split computation and allocation creation
  - poster.go: Ledger posting and running-balance computation
  - reports.go: Aggregate queries over posted history
  - store.go: Persistence interfaces
*/
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AllocationID string
type BillID string
type PolicyID string
type CustomerID string

// =============================================================================
// ALLOCATION STATUS - Draft --post--> Posted
// =============================================================================

type AllocationStatus string

const (
	StatusDraft  AllocationStatus = "draft"
	StatusPosted AllocationStatus = "posted"

	// Reversed and Cancelled are declared terminal states with no transition
	// logic. They exist so a future reversal workflow can adopt them without
	// a schema change; nothing in this engine moves an allocation into them.
	StatusReversed  AllocationStatus = "reversed"
	StatusCancelled AllocationStatus = "cancelled"
)

// =============================================================================
// LEDGER DIMENSIONS - Entry type and fund account
// =============================================================================

// EntryType classifies what caused a ledger entry. Only RiskPayment and
// SavingsDeposit are produced by posting an allocation; the remaining values
// are reserved for other ledger producers (claims payouts, fees, investment
// income) that share the same ledger.
type EntryType string

const (
	EntryPremiumPosted    EntryType = "premium_posted"
	EntryRiskPayment      EntryType = "risk_payment"
	EntrySavingsDeposit   EntryType = "savings_deposit"
	EntryInvestmentIncome EntryType = "investment_income"
	EntryClaimPayment     EntryType = "claim_payment"
	EntryFeeApplied       EntryType = "fee_applied"
)

// AccountType is a named fund bucket tracked by the ledger.
type AccountType string

const (
	AccountRiskFund    AccountType = "risk_fund"
	AccountSavingsFund AccountType = "savings_fund"
	AccountReinsurance AccountType = "reinsurance"
	AccountOperating   AccountType = "operating"
)

// FundAccounts returns every fund account, in reporting order.
func FundAccounts() []AccountType {
	return []AccountType{AccountRiskFund, AccountSavingsFund, AccountReinsurance, AccountOperating}
}

// ParseAccountType converts external text to an AccountType.
// Unknown text is rejected at this boundary so the poster never sees it.
func ParseAccountType(s string) (AccountType, error) {
	switch AccountType(s) {
	case AccountRiskFund, AccountSavingsFund, AccountReinsurance, AccountOperating:
		return AccountType(s), nil
	}
	return "", &ValidationError{Field: "account_type", Message: fmt.Sprintf("unknown account type %q", s)}
}

// ParseEntryType converts external text to an EntryType.
func ParseEntryType(s string) (EntryType, error) {
	switch EntryType(s) {
	case EntryPremiumPosted, EntryRiskPayment, EntrySavingsDeposit,
		EntryInvestmentIncome, EntryClaimPayment, EntryFeeApplied:
		return EntryType(s), nil
	}
	return "", &ValidationError{Field: "entry_type", Message: fmt.Sprintf("unknown entry type %q", s)}
}

// =============================================================================
// ALLOCATION - One decision to split a premium payment
// =============================================================================

// Allocation records how one premium payment is split between risk coverage
// and customer savings. Monetary fields are immutable once Posted.
type Allocation struct {
	ID         AllocationID
	BillID     BillID
	PolicyID   PolicyID
	CustomerID CustomerID

	// AllocationDate is the day the allocation was created, which is not
	// necessarily the day it was posted.
	AllocationDate Date

	TotalPremium   decimal.Decimal
	RiskPercentage decimal.Decimal

	// Derived quantities, fixed at creation time. SavingsPercentage is always
	// 100 - RiskPercentage; it is stored for query convenience, never set
	// independently.
	SavingsPercentage decimal.Decimal
	RiskPremium       decimal.Decimal
	SavingsPremium    decimal.Decimal

	// InvestmentRatio is RiskPremium / SavingsPremium when the savings
	// portion is positive. When there is no savings component the field
	// holds the raw risk premium, not infinity. See ComputeSplit.
	InvestmentRatio decimal.Decimal

	Status    AllocationStatus
	CreatedBy string

	// Set on the Draft -> Posted transition, immutable afterward.
	PostedDate Date
	PostedBy   string
}

// =============================================================================
// LEDGER ENTRY - One single-sided movement against a fund account
// =============================================================================

// LedgerEntry is an immutable ledger row. EntryNo is assigned at insert time
// and is the only reliable ordering key: EntryDate alone is not unique.
type LedgerEntry struct {
	EntryNo      int64
	AllocationID AllocationID
	PolicyID     PolicyID
	CustomerID   CustomerID
	EntryDate    Date
	Type         EntryType
	Account      AccountType

	// Posting always uses Debit; Credit exists for other ledger producers.
	// The engine does not enforce that exactly one side is nonzero.
	Debit  decimal.Decimal
	Credit decimal.Decimal

	// Balance is the running balance for the entry's account AFTER applying
	// this entry: previous balance + Debit - Credit. The balance is computed
	// fund-wide at insert time, across all customers. See Engine.AccountBalance
	// for the consequence on customer-scoped queries.
	Balance decimal.Decimal

	Description string
	Posted      bool
	PostedBy    string
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to the ledger's monetary precision (2 decimal places).
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// RoundRatio rounds to the precision used for investment ratios (4 places).
func RoundRatio(d decimal.Decimal) decimal.Decimal { return d.Round(4) }

// MustDecimal parses a decimal string, returning zero on malformed input.
// Intended for stored values that were written by this engine.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
