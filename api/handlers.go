/*
handlers.go - HTTP API handlers for the premium ledger

PURPOSE:
  Exposes the premium allocation and posting engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Allocations:
    POST   /api/allocations              Create allocation (premium split)
    GET    /api/allocations/{id}         Get allocation with its entries
    POST   /api/allocations/{id}/post    Post allocation to the ledger

  Customer reports:
    GET    /api/customers/{id}/summary   Premium summary (posted only)
    GET    /api/customers/{id}/statement Statement over ?from=&to=
    GET    /api/customers/{id}/ratio     Risk investment ratio
    GET    /api/customers/{id}/balance   Account balance (?account=)

  Policy reports:
    GET    /api/policies/{id}/accumulative Lifetime premium totals

  Funds:
    GET    /api/funds/{account}/balance  Current fund balance

  Book:
    GET    /api/book                     Accounting book over ?from=&to=

  Entries:
    POST   /api/entries                  Manual ledger entry (fee, income)

ARCHITECTURE:
  Handler struct holds the engine; handlers never touch the store directly.

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input at the boundary (dates, enums)
  3. Call domain logic (engine)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Allocation not found
  - 409: Allocation already posted
  - 500: Internal/consistency errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/covant/premium-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
}

// NewHandler creates a handler backed by the given engine.
func NewHandler(engine *ledger.Engine) *Handler {
	return &Handler{Engine: engine}
}

// =============================================================================
// ALLOCATION ENDPOINTS
// =============================================================================

// CreateAllocation splits a premium and stores the allocation as Draft.
// POST /api/allocations
func (h *Handler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.BillID == "" || req.PolicyID == "" || req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "bill_id, policy_id and customer_id are required", nil)
		return
	}

	riskPct := decimal.NewFromInt(ledger.DefaultRiskPercentage)
	if req.RiskPercentage != nil {
		riskPct = decimal.NewFromFloat(*req.RiskPercentage)
	}

	alloc, err := h.Engine.CreateAllocation(ctx, ledger.AllocationInput{
		BillID:         ledger.BillID(req.BillID),
		PolicyID:       ledger.PolicyID(req.PolicyID),
		CustomerID:     ledger.CustomerID(req.CustomerID),
		TotalPremium:   decimal.NewFromFloat(req.TotalPremium),
		RiskPercentage: riskPct,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAllocationDTO(*alloc))
}

// GetAllocation returns an allocation together with its ledger entries.
// GET /api/allocations/{id}
func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.AllocationID(chi.URLParam(r, "id"))

	alloc, err := h.Engine.Allocation(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := h.Engine.EntriesForAllocation(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := toAllocationDTO(*alloc)
	dto.Entries = toEntryDTOs(entries)
	writeJSON(w, http.StatusOK, dto)
}

// PostAllocation posts a Draft allocation to the ledger.
// POST /api/allocations/{id}/post
func (h *Handler) PostAllocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.AllocationID(chi.URLParam(r, "id"))

	var req PostAllocationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	if err := h.Engine.PostAllocation(ctx, id, req.PostedBy); err != nil {
		writeDomainError(w, err)
		return
	}

	alloc, err := h.Engine.Allocation(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := h.Engine.EntriesForAllocation(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := toAllocationDTO(*alloc)
	dto.Entries = toEntryDTOs(entries)
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// CUSTOMER REPORT ENDPOINTS
// =============================================================================

// GetCustomerSummary returns posted premium totals and shares for a customer.
// GET /api/customers/{id}/summary
func (h *Handler) GetCustomerSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := ledger.CustomerID(chi.URLParam(r, "id"))

	summary, err := h.Engine.CustomerPremiumSummary(ctx, customerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SummaryDTO{
		CustomerID:        string(summary.CustomerID),
		TotalPremium:      f(summary.TotalPremium),
		TotalRisk:         f(summary.TotalRisk),
		TotalSavings:      f(summary.TotalSavings),
		RiskPercentage:    f(summary.RiskPercentage),
		SavingsPercentage: f(summary.SavingsPercentage),
		AllocationCount:   summary.AllocationCount,
	})
}

// GetCustomerStatement returns a statement over an inclusive date window.
// GET /api/customers/{id}/statement?from=2025-01-01&to=2025-12-31
func (h *Handler) GetCustomerStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := ledger.CustomerID(chi.URLParam(r, "id"))

	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	statement, err := h.Engine.CustomerStatement(ctx, customerID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatementDTO(*statement))
}

// GetRiskInvestmentRatio returns the customer's aggregate risk/savings ratio.
// GET /api/customers/{id}/ratio
func (h *Handler) GetRiskInvestmentRatio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := ledger.CustomerID(chi.URLParam(r, "id"))

	ratio, err := h.Engine.RiskInvestmentRatio(ctx, customerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RatioDTO{
		CustomerID: string(customerID),
		Ratio:      f(ratio),
	})
}

// GetCustomerBalance returns the balance shown on the customer's last entry
// for an account.
// GET /api/customers/{id}/balance?account=savings_fund
func (h *Handler) GetCustomerBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := ledger.CustomerID(chi.URLParam(r, "id"))

	account, err := ledger.ParseAccountType(r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account", err)
		return
	}

	balance, err := h.Engine.AccountBalance(ctx, customerID, account)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		CustomerID:  string(customerID),
		AccountType: string(account),
		Balance:     f(balance),
	})
}

// =============================================================================
// POLICY AND FUND ENDPOINTS
// =============================================================================

// GetAccumulativeReport returns lifetime-to-date premium totals for a policy.
// GET /api/policies/{id}/accumulative
func (h *Handler) GetAccumulativeReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := ledger.PolicyID(chi.URLParam(r, "id"))

	report, err := h.Engine.AccumulativePremiumReport(ctx, policyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AccumulativeDTO{
		PolicyID:          string(report.PolicyID),
		CumulativePremium: f(report.CumulativePremium),
		CumulativeRisk:    f(report.CumulativeRisk),
		CumulativeSavings: f(report.CumulativeSavings),
		AllocationCount:   report.AllocationCount,
	})
}

// GetFundBalance returns the current fund-wide balance for an account.
// GET /api/funds/{account}/balance
func (h *Handler) GetFundBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := ledger.ParseAccountType(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account", err)
		return
	}

	balance, err := h.Engine.FundBalance(ctx, account)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		AccountType: string(account),
		Balance:     f(balance),
	})
}

// =============================================================================
// ACCOUNTING BOOK AND MANUAL ENTRIES
// =============================================================================

// GetAccountingBook returns all entries in a date window plus fund balances.
// GET /api/book?from=2025-01-01&to=2025-12-31
func (h *Handler) GetAccountingBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	book, err := h.Engine.AccountingBook(ctx, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookDTO(*book))
}

// CreateEntry writes a manual ledger entry (fee, investment income, claim).
// POST /api/entries
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.PolicyID == "" || req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "policy_id and customer_id are required", nil)
		return
	}

	entryType, err := ledger.ParseEntryType(req.EntryType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry_type", err)
		return
	}
	account, err := ledger.ParseAccountType(req.AccountType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account_type", err)
		return
	}

	var entryDate ledger.Date
	if req.EntryDate != "" {
		entryDate, err = ledger.ParseDate(req.EntryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid entry_date", err)
			return
		}
	}

	entryNo, err := h.Engine.CreateLedgerEntry(ctx, ledger.EntryInput{
		AllocationID: ledger.AllocationID(req.AllocationID),
		PolicyID:     ledger.PolicyID(req.PolicyID),
		CustomerID:   ledger.CustomerID(req.CustomerID),
		EntryDate:    entryDate,
		Type:         entryType,
		Account:      account,
		Debit:        decimal.NewFromFloat(req.Debit),
		Credit:       decimal.NewFromFloat(req.Credit),
		Description:  req.Description,
		PostedBy:     req.PostedBy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"entry_no": entryNo})
}

// =============================================================================
// HELPERS
// =============================================================================

// parseWindow reads the required from/to query parameters. Writes a 400 and
// returns ok=false on missing or malformed dates.
func parseWindow(w http.ResponseWriter, r *http.Request) (from, to ledger.Date, ok bool) {
	from, err := ledger.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date (expected YYYY-MM-DD)", err)
		return from, to, false
	}
	to, err = ledger.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date (expected YYYY-MM-DD)", err)
		return from, to, false
	}
	return from, to, true
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "allocation not found", err)
	case errors.Is(err, ledger.ErrAlreadyPosted):
		writeError(w, http.StatusConflict, "allocation already posted", err)
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
