/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Allocation:
    AllocationDTO, CreateAllocationRequest, PostAllocationRequest

  Ledger:
    EntryDTO, CreateEntryRequest, BalanceDTO

  Reports:
    SummaryDTO, StatementDTO, StatementLineDTO, AccumulativeDTO,
    RatioDTO, BookDTO

MONEY IN JSON:
  Amounts cross the wire as float64. The engine stores decimals; values
  are already rounded to 2 (money) or 4 (ratio) places before conversion,
  so the float representation is exact for realistic magnitudes.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain model
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/covant/premium-ledger/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AllocationDTO represents an allocation in API responses.
type AllocationDTO struct {
	ID                string  `json:"id"`
	BillID            string  `json:"bill_id"`
	PolicyID          string  `json:"policy_id"`
	CustomerID        string  `json:"customer_id"`
	AllocationDate    string  `json:"allocation_date"`
	TotalPremium      float64 `json:"total_premium"`
	RiskPercentage    float64 `json:"risk_percentage"`
	SavingsPercentage float64 `json:"savings_percentage"`
	RiskPremium       float64 `json:"risk_premium"`
	SavingsPremium    float64 `json:"savings_premium"`
	InvestmentRatio   float64 `json:"investment_ratio"`
	Status            string  `json:"status"`
	CreatedBy         string  `json:"created_by,omitempty"`
	PostedDate        string  `json:"posted_date,omitempty"`
	PostedBy          string  `json:"posted_by,omitempty"`

	Entries []EntryDTO `json:"entries,omitempty"`
}

// CreateAllocationRequest is the request to create an allocation.
// RiskPercentage is a pointer so "absent" and "zero" are distinguishable;
// absent falls back to the product default.
type CreateAllocationRequest struct {
	BillID         string   `json:"bill_id"`
	PolicyID       string   `json:"policy_id"`
	CustomerID     string   `json:"customer_id"`
	TotalPremium   float64  `json:"total_premium"`
	RiskPercentage *float64 `json:"risk_percentage,omitempty"`
	CreatedBy      string   `json:"created_by,omitempty"`
}

// PostAllocationRequest carries the posting actor.
type PostAllocationRequest struct {
	PostedBy string `json:"posted_by"`
}

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	EntryNo      int64   `json:"entry_no"`
	AllocationID string  `json:"allocation_id"`
	PolicyID     string  `json:"policy_id"`
	CustomerID   string  `json:"customer_id"`
	EntryDate    string  `json:"entry_date"`
	EntryType    string  `json:"entry_type"`
	AccountType  string  `json:"account_type"`
	Debit        float64 `json:"debit_amount"`
	Credit       float64 `json:"credit_amount"`
	Balance      float64 `json:"balance"`
	Description  string  `json:"description,omitempty"`
	PostedBy     string  `json:"posted_by,omitempty"`
}

// CreateEntryRequest is the request to write a manual ledger entry
// (fee, investment income, claim payment).
type CreateEntryRequest struct {
	AllocationID string  `json:"allocation_id,omitempty"`
	PolicyID     string  `json:"policy_id"`
	CustomerID   string  `json:"customer_id"`
	EntryDate    string  `json:"entry_date,omitempty"`
	EntryType    string  `json:"entry_type"`
	AccountType  string  `json:"account_type"`
	Debit        float64 `json:"debit_amount,omitempty"`
	Credit       float64 `json:"credit_amount,omitempty"`
	Description  string  `json:"description,omitempty"`
	PostedBy     string  `json:"posted_by,omitempty"`
}

// BalanceDTO represents a single account balance.
type BalanceDTO struct {
	CustomerID  string  `json:"customer_id,omitempty"`
	AccountType string  `json:"account_type"`
	Balance     float64 `json:"balance"`
}

// SummaryDTO represents a customer premium summary.
type SummaryDTO struct {
	CustomerID        string  `json:"customer_id"`
	TotalPremium      float64 `json:"total_premium"`
	TotalRisk         float64 `json:"total_risk"`
	TotalSavings      float64 `json:"total_savings"`
	RiskPercentage    float64 `json:"risk_percentage"`
	SavingsPercentage float64 `json:"savings_percentage"`
	AllocationCount   int     `json:"allocation_count"`
}

// StatementLineDTO is one allocation line on a customer statement.
type StatementLineDTO struct {
	AllocationID      string  `json:"allocation_id"`
	Date              string  `json:"date"`
	TotalPremium      float64 `json:"total_premium"`
	RiskPremium       float64 `json:"risk_premium"`
	RiskPercentage    float64 `json:"risk_percentage"`
	SavingsPremium    float64 `json:"savings_premium"`
	SavingsPercentage float64 `json:"savings_percentage"`
	InvestmentRatio   float64 `json:"investment_ratio"`
}

// StatementDTO represents a customer statement over a period.
type StatementDTO struct {
	ReportID    string             `json:"report_id"`
	CustomerID  string             `json:"customer_id"`
	PeriodStart string             `json:"period_start"`
	PeriodEnd   string             `json:"period_end"`
	Lines       []StatementLineDTO `json:"lines"`

	TotalPremium             float64 `json:"total_premium"`
	TotalRisk                float64 `json:"total_risk"`
	TotalSavings             float64 `json:"total_savings"`
	AverageRiskPercentage    float64 `json:"average_risk_percentage"`
	AverageSavingsPercentage float64 `json:"average_savings_percentage"`
}

// AccumulativeDTO represents lifetime-to-date premium totals for a policy.
type AccumulativeDTO struct {
	PolicyID          string  `json:"policy_id"`
	CumulativePremium float64 `json:"cumulative_premium"`
	CumulativeRisk    float64 `json:"cumulative_risk"`
	CumulativeSavings float64 `json:"cumulative_savings"`
	AllocationCount   int     `json:"allocation_count"`
}

// RatioDTO represents a customer risk investment ratio.
type RatioDTO struct {
	CustomerID string  `json:"customer_id"`
	Ratio      float64 `json:"risk_investment_ratio"`
}

// BookDTO represents the accounting book over a date window.
type BookDTO struct {
	ReportID    string     `json:"report_id"`
	PeriodStart string     `json:"period_start"`
	PeriodEnd   string     `json:"period_end"`
	Entries     []EntryDTO `json:"entries"`

	TotalDebits  float64 `json:"total_debits"`
	TotalCredits float64 `json:"total_credits"`

	// Current balances per fund account, not windowed.
	FundBalances map[string]float64 `json:"fund_balances"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func f(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func dateString(d ledger.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func toAllocationDTO(a ledger.Allocation) AllocationDTO {
	return AllocationDTO{
		ID:                string(a.ID),
		BillID:            string(a.BillID),
		PolicyID:          string(a.PolicyID),
		CustomerID:        string(a.CustomerID),
		AllocationDate:    a.AllocationDate.String(),
		TotalPremium:      f(a.TotalPremium),
		RiskPercentage:    f(a.RiskPercentage),
		SavingsPercentage: f(a.SavingsPercentage),
		RiskPremium:       f(a.RiskPremium),
		SavingsPremium:    f(a.SavingsPremium),
		InvestmentRatio:   f(a.InvestmentRatio),
		Status:            string(a.Status),
		CreatedBy:         a.CreatedBy,
		PostedDate:        dateString(a.PostedDate),
		PostedBy:          a.PostedBy,
	}
}

func toEntryDTO(e ledger.LedgerEntry) EntryDTO {
	return EntryDTO{
		EntryNo:      e.EntryNo,
		AllocationID: string(e.AllocationID),
		PolicyID:     string(e.PolicyID),
		CustomerID:   string(e.CustomerID),
		EntryDate:    e.EntryDate.String(),
		EntryType:    string(e.Type),
		AccountType:  string(e.Account),
		Debit:        f(e.Debit),
		Credit:       f(e.Credit),
		Balance:      f(e.Balance),
		Description:  e.Description,
		PostedBy:     e.PostedBy,
	}
}

func toEntryDTOs(entries []ledger.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toStatementDTO(s ledger.Statement) StatementDTO {
	lines := make([]StatementLineDTO, len(s.Lines))
	for i, l := range s.Lines {
		lines[i] = StatementLineDTO{
			AllocationID:      string(l.AllocationID),
			Date:              l.Date.String(),
			TotalPremium:      f(l.TotalPremium),
			RiskPremium:       f(l.RiskPremium),
			RiskPercentage:    f(l.RiskPercentage),
			SavingsPremium:    f(l.SavingsPremium),
			SavingsPercentage: f(l.SavingsPercentage),
			InvestmentRatio:   f(l.InvestmentRatio),
		}
	}
	return StatementDTO{
		ReportID:                 s.ReportID,
		CustomerID:               string(s.CustomerID),
		PeriodStart:              s.PeriodStart.String(),
		PeriodEnd:                s.PeriodEnd.String(),
		Lines:                    lines,
		TotalPremium:             f(s.TotalPremium),
		TotalRisk:                f(s.TotalRisk),
		TotalSavings:             f(s.TotalSavings),
		AverageRiskPercentage:    f(s.AverageRiskPercentage),
		AverageSavingsPercentage: f(s.AverageSavingsPercentage),
	}
}

func toBookDTO(b ledger.AccountingBook) BookDTO {
	balances := make(map[string]float64, len(b.FundBalances))
	for account, balance := range b.FundBalances {
		balances[string(account)] = f(balance)
	}
	return BookDTO{
		ReportID:     b.ReportID,
		PeriodStart:  b.PeriodStart.String(),
		PeriodEnd:    b.PeriodEnd.String(),
		Entries:      toEntryDTOs(b.Entries),
		TotalDebits:  f(b.TotalDebits),
		TotalCredits: f(b.TotalCredits),
		FundBalances: balances,
	}
}
