/*
reports.go - Aggregate queries over posted history

PURPOSE:
  The reporting surface of the engine: balances, customer summaries,
  statements, per-policy accumulative reports, and the accounting book.
  All reads are side-effect free and return structured decimal data;
  currency formatting and locale are caller concerns.

KNOWN QUIRK (fund-wide balance scoping):
  The stored Balance on each entry is computed fund-wide at insert time,
  across all customers. AccountBalance filters entries by customer but
  returns that fund-wide balance field from the last matching entry, so the
  value is NOT a true per-customer balance. This matches the behavior the
  finance team reconciles against today; a per-customer running sum would be
  a behavior change and needs product sign-off. The quirk is isolated behind
  AccountBalance so a corrected implementation can be swapped in without
  touching callers.
*/
package ledger

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCES
// =============================================================================

// AccountBalance returns the balance field of the customer's latest entry
// for the account, or 0 if the customer has none. See the fund-wide scoping
// quirk in the file header: the returned value reflects the whole fund, not
// the customer in isolation.
func (e *Engine) AccountBalance(ctx context.Context, customerID CustomerID, account AccountType) (decimal.Decimal, error) {
	entries, err := e.store.EntriesByCustomerAccount(ctx, customerID, account)
	if err != nil {
		return decimal.Zero, err
	}
	if len(entries) == 0 {
		return decimal.Zero, nil
	}
	return entries[len(entries)-1].Balance, nil
}

// FundBalance returns the current all-time balance of a fund account: the
// balance field of its latest entry, or 0 for an empty account.
func (e *Engine) FundBalance(ctx context.Context, account AccountType) (decimal.Decimal, error) {
	last, err := e.store.LastEntryForAccount(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	if last == nil {
		return decimal.Zero, nil
	}
	return last.Balance, nil
}

// =============================================================================
// CUSTOMER PREMIUM SUMMARY
// =============================================================================

// PremiumSummary aggregates a customer's posted allocations. The percentages
// are ratios of sums (premium-weighted), not averages of per-allocation
// percentages, and report 0 when the customer has no posted premium.
type PremiumSummary struct {
	CustomerID        CustomerID
	TotalPremium      decimal.Decimal
	TotalRisk         decimal.Decimal
	TotalSavings      decimal.Decimal
	RiskPercentage    decimal.Decimal
	SavingsPercentage decimal.Decimal
	AllocationCount   int
}

func (e *Engine) CustomerPremiumSummary(ctx context.Context, customerID CustomerID) (*PremiumSummary, error) {
	allocs, err := e.store.AllocationsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	s := &PremiumSummary{CustomerID: customerID}
	for _, a := range allocs {
		if a.Status != StatusPosted {
			continue
		}
		s.TotalPremium = s.TotalPremium.Add(a.TotalPremium)
		s.TotalRisk = s.TotalRisk.Add(a.RiskPremium)
		s.TotalSavings = s.TotalSavings.Add(a.SavingsPremium)
		s.AllocationCount++
	}

	s.RiskPercentage, s.SavingsPercentage = weightedPercentages(s.TotalPremium, s.TotalRisk, s.TotalSavings)
	return s, nil
}

// weightedPercentages computes (sum/total)*100 rounded to 2 places, guarding
// the zero-premium case.
func weightedPercentages(total, risk, savings decimal.Decimal) (riskPct, savingsPct decimal.Decimal) {
	if !total.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	riskPct = RoundMoney(risk.Div(total).Mul(hundred))
	savingsPct = RoundMoney(savings.Div(total).Mul(hundred))
	return riskPct, savingsPct
}

// =============================================================================
// CUSTOMER STATEMENT
// =============================================================================

// StatementLine is one posted allocation on a customer statement.
type StatementLine struct {
	AllocationID      AllocationID
	Date              Date
	TotalPremium      decimal.Decimal
	RiskPremium       decimal.Decimal
	RiskPercentage    decimal.Decimal
	SavingsPremium    decimal.Decimal
	SavingsPercentage decimal.Decimal
	InvestmentRatio   decimal.Decimal
}

// Statement is a customer's posted allocations for a date window, with a
// period summary. The average percentages are premium-weighted (ratio of
// sums), which differs from a simple average when premiums vary in size.
type Statement struct {
	ReportID    string
	CustomerID  CustomerID
	PeriodStart Date
	PeriodEnd   Date
	Lines       []StatementLine

	TotalPremium             decimal.Decimal
	TotalRisk                decimal.Decimal
	TotalSavings             decimal.Decimal
	AverageRiskPercentage    decimal.Decimal
	AverageSavingsPercentage decimal.Decimal
}

// CustomerStatement lists the customer's Posted allocations with allocation
// date in [from, to] inclusive, ordered by allocation date.
func (e *Engine) CustomerStatement(ctx context.Context, customerID CustomerID, from, to Date) (*Statement, error) {
	allocs, err := e.store.AllocationsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		ReportID:    uuid.NewString(),
		CustomerID:  customerID,
		PeriodStart: from,
		PeriodEnd:   to,
	}
	for _, a := range allocs {
		if a.Status != StatusPosted || !a.AllocationDate.InRange(from, to) {
			continue
		}
		st.Lines = append(st.Lines, StatementLine{
			AllocationID:      a.ID,
			Date:              a.AllocationDate,
			TotalPremium:      a.TotalPremium,
			RiskPremium:       a.RiskPremium,
			RiskPercentage:    a.RiskPercentage,
			SavingsPremium:    a.SavingsPremium,
			SavingsPercentage: a.SavingsPercentage,
			InvestmentRatio:   a.InvestmentRatio,
		})
		st.TotalPremium = st.TotalPremium.Add(a.TotalPremium)
		st.TotalRisk = st.TotalRisk.Add(a.RiskPremium)
		st.TotalSavings = st.TotalSavings.Add(a.SavingsPremium)
	}

	st.AverageRiskPercentage, st.AverageSavingsPercentage =
		weightedPercentages(st.TotalPremium, st.TotalRisk, st.TotalSavings)
	return st, nil
}

// =============================================================================
// ACCUMULATIVE PREMIUM REPORT
// =============================================================================

// AccumulativeReport is the lifetime premium total for a single policy.
type AccumulativeReport struct {
	PolicyID           PolicyID
	CumulativePremium  decimal.Decimal
	CumulativeRisk     decimal.Decimal
	CumulativeSavings  decimal.Decimal
	AllocationCount    int
}

// AccumulativePremiumReport sums all Posted allocations for the policy,
// iterating in allocation-date order.
func (e *Engine) AccumulativePremiumReport(ctx context.Context, policyID PolicyID) (*AccumulativeReport, error) {
	allocs, err := e.store.AllocationsByPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	r := &AccumulativeReport{PolicyID: policyID}
	for _, a := range allocs {
		if a.Status != StatusPosted {
			continue
		}
		r.CumulativePremium = r.CumulativePremium.Add(a.TotalPremium)
		r.CumulativeRisk = r.CumulativeRisk.Add(a.RiskPremium)
		r.CumulativeSavings = r.CumulativeSavings.Add(a.SavingsPremium)
		r.AllocationCount++
	}
	return r, nil
}

// =============================================================================
// RISK INVESTMENT RATIO
// =============================================================================

// RiskInvestmentRatio returns the customer's total risk divided by total
// savings across Posted allocations, with the same zero-denominator
// convention as the per-allocation ratio: when total savings is zero the
// raw total risk is returned.
func (e *Engine) RiskInvestmentRatio(ctx context.Context, customerID CustomerID) (decimal.Decimal, error) {
	allocs, err := e.store.AllocationsByCustomer(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}

	totalRisk, totalSavings := decimal.Zero, decimal.Zero
	for _, a := range allocs {
		if a.Status != StatusPosted {
			continue
		}
		totalRisk = totalRisk.Add(a.RiskPremium)
		totalSavings = totalSavings.Add(a.SavingsPremium)
	}
	return investmentRatio(totalRisk, totalSavings), nil
}

// =============================================================================
// ACCOUNTING BOOK
// =============================================================================

// AccountingBook is the period-end report for the finance collaborator: the
// ledger entries of a date window plus current fund balances.
//
// The fund balances are NOT scoped to the window; they are always the
// all-time balance of each fund. The windowed entry list paired with
// all-time balances is how period-end reporting has always been produced
// and is preserved as-built.
type AccountingBook struct {
	ReportID    string
	PeriodStart Date
	PeriodEnd   Date
	Entries     []LedgerEntry

	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal

	FundBalances map[AccountType]decimal.Decimal
}

// AccountingBook lists all ledger entries with EntryDate in [from, to]
// inclusive, ordered by (EntryDate, EntryType), accumulating total debits
// and credits across the window.
func (e *Engine) AccountingBook(ctx context.Context, from, to Date) (*AccountingBook, error) {
	entries, err := e.store.EntriesInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].EntryDate.Equal(entries[j].EntryDate) {
			return entries[i].EntryDate.Before(entries[j].EntryDate)
		}
		return entries[i].Type < entries[j].Type
	})

	book := &AccountingBook{
		ReportID:     uuid.NewString(),
		PeriodStart:  from,
		PeriodEnd:    to,
		Entries:      entries,
		FundBalances: make(map[AccountType]decimal.Decimal, 4),
	}
	for _, entry := range entries {
		book.TotalDebits = book.TotalDebits.Add(entry.Debit)
		book.TotalCredits = book.TotalCredits.Add(entry.Credit)
	}

	for _, account := range FundAccounts() {
		balance, err := e.FundBalance(ctx, account)
		if err != nil {
			return nil, err
		}
		book.FundBalances[account] = balance
	}
	return book, nil
}
