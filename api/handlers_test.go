package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covant/premium-ledger/api"
	"github.com/covant/premium-ledger/ledger"
	"github.com/covant/premium-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testDay = ledger.NewDate(2025, 3, 15)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine := ledger.NewEngine(store.NewTxMemory(), ledger.WithClock(ledger.FixedClock{Day: testDay}))
	server := httptest.NewServer(api.NewRouter(api.NewHandler(engine)))
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createAllocation(t *testing.T, server *httptest.Server, premium float64, riskPct float64) api.AllocationDTO {
	t.Helper()
	resp := postJSON(t, server.URL+"/api/allocations", api.CreateAllocationRequest{
		BillID:         "BILL-1",
		PolicyID:       "POL-1",
		CustomerID:     "CUST-1",
		TotalPremium:   premium,
		RiskPercentage: &riskPct,
		CreatedBy:      "tester",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var dto api.AllocationDTO
	decodeBody(t, resp, &dto)
	return dto
}

// =============================================================================
// ALLOCATION LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_CreatePostAndFetchAllocation(t *testing.T) {
	// GIVEN: A running server
	// WHEN: Creating, posting, and fetching an allocation
	// THEN: The full lifecycle works and the fetched allocation carries its
	//       two ledger entries

	server := newTestServer(t)

	created := createAllocation(t, server, 1000.00, 80)
	assert.Equal(t, "draft", created.Status)
	assert.InDelta(t, 800.00, created.RiskPremium, 0.001)
	assert.InDelta(t, 200.00, created.SavingsPremium, 0.001)
	assert.InDelta(t, 4.0, created.InvestmentRatio, 0.0001)
	assert.Equal(t, "2025-03-15", created.AllocationDate)

	resp := postJSON(t, fmt.Sprintf("%s/api/allocations/%s/post", server.URL, created.ID),
		api.PostAllocationRequest{PostedBy: "poster"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var posted api.AllocationDTO
	decodeBody(t, resp, &posted)
	assert.Equal(t, "posted", posted.Status)
	assert.Equal(t, "poster", posted.PostedBy)
	require.Len(t, posted.Entries, 2)
	assert.Equal(t, "risk_payment", posted.Entries[0].EntryType)
	assert.Equal(t, "savings_deposit", posted.Entries[1].EntryType)

	getResp, err := http.Get(fmt.Sprintf("%s/api/allocations/%s", server.URL, created.ID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var fetched api.AllocationDTO
	decodeBody(t, getResp, &fetched)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Len(t, fetched.Entries, 2)
}

func TestAPI_DefaultRiskPercentage(t *testing.T) {
	// GIVEN: A create request without risk_percentage
	// WHEN: Creating the allocation
	// THEN: The product default of 75% applies

	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/allocations", api.CreateAllocationRequest{
		BillID:       "BILL-1",
		PolicyID:     "POL-1",
		CustomerID:   "CUST-1",
		TotalPremium: 1000.00,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var dto api.AllocationDTO
	decodeBody(t, resp, &dto)
	assert.InDelta(t, 75.0, dto.RiskPercentage, 0.001)
	assert.InDelta(t, 750.00, dto.RiskPremium, 0.001)
}

// =============================================================================
// ERROR STATUS MAPPING
// =============================================================================

func TestAPI_ValidationErrorIs400(t *testing.T) {
	server := newTestServer(t)

	bad := 101.0
	resp := postJSON(t, server.URL+"/api/allocations", api.CreateAllocationRequest{
		BillID:         "BILL-1",
		PolicyID:       "POL-1",
		CustomerID:     "CUST-1",
		TotalPremium:   1000.00,
		RiskPercentage: &bad,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_MissingAllocationIs404(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/allocations/ALLOC999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DoublePostIs409(t *testing.T) {
	server := newTestServer(t)

	created := createAllocation(t, server, 1000.00, 80)
	url := fmt.Sprintf("%s/api/allocations/%s/post", server.URL, created.ID)

	resp := postJSON(t, url, api.PostAllocationRequest{PostedBy: "poster"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, url, api.PostAllocationRequest{PostedBy: "poster"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var errResp api.ErrorResponse
	decodeBody(t, resp, &errResp)
	assert.Equal(t, "allocation already posted", errResp.Error)
}

func TestAPI_BadWindowIs400(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/customers/CUST-1/statement?from=notadate&to=2025-12-31")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_UnknownAccountIs400(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/funds/slush_fund/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

func TestAPI_SummaryStatementAndBook(t *testing.T) {
	// GIVEN: Two posted allocations
	// WHEN: Reading summary, statement, ratio, fund balance, and book
	// THEN: Each endpoint reports consistent premium-weighted figures

	server := newTestServer(t)

	for _, tc := range []struct{ premium, riskPct float64 }{
		{1000.00, 80},
		{500.00, 60},
	} {
		created := createAllocation(t, server, tc.premium, tc.riskPct)
		resp := postJSON(t, fmt.Sprintf("%s/api/allocations/%s/post", server.URL, created.ID),
			api.PostAllocationRequest{PostedBy: "poster"})
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Summary
	resp, err := http.Get(server.URL + "/api/customers/CUST-1/summary")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary api.SummaryDTO
	decodeBody(t, resp, &summary)
	assert.Equal(t, 2, summary.AllocationCount)
	assert.InDelta(t, 1500.00, summary.TotalPremium, 0.001)
	assert.InDelta(t, 73.33, summary.RiskPercentage, 0.001)

	// Statement
	resp, err = http.Get(server.URL + "/api/customers/CUST-1/statement?from=2025-03-01&to=2025-03-31")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var statement api.StatementDTO
	decodeBody(t, resp, &statement)
	assert.NotEmpty(t, statement.ReportID)
	assert.Len(t, statement.Lines, 2)
	assert.InDelta(t, 73.33, statement.AverageRiskPercentage, 0.001)

	// Ratio
	resp, err = http.Get(server.URL + "/api/customers/CUST-1/ratio")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ratio api.RatioDTO
	decodeBody(t, resp, &ratio)
	assert.InDelta(t, 2.75, ratio.Ratio, 0.0001)

	// Fund balance
	resp, err = http.Get(server.URL + "/api/funds/risk_fund/balance")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance api.BalanceDTO
	decodeBody(t, resp, &balance)
	assert.InDelta(t, 1100.00, balance.Balance, 0.001)

	// Accumulative per policy
	resp, err = http.Get(server.URL + "/api/policies/POL-1/accumulative")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accum api.AccumulativeDTO
	decodeBody(t, resp, &accum)
	assert.Equal(t, 2, accum.AllocationCount)
	assert.InDelta(t, 1500.00, accum.CumulativePremium, 0.001)

	// Book
	resp, err = http.Get(server.URL + "/api/book?from=2025-03-01&to=2025-03-31")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var book api.BookDTO
	decodeBody(t, resp, &book)
	assert.Len(t, book.Entries, 4)
	assert.InDelta(t, 1500.00, book.TotalDebits, 0.001)
	assert.InDelta(t, 1100.00, book.FundBalances["risk_fund"], 0.001)
	assert.InDelta(t, 400.00, book.FundBalances["savings_fund"], 0.001)
}

// =============================================================================
// MANUAL ENTRIES
// =============================================================================

func TestAPI_CreateManualEntry(t *testing.T) {
	// GIVEN: A posted allocation funding the savings fund with 200.00
	// WHEN: Posting a 25.00 fee credit via /api/entries
	// THEN: The entry is created and the fund balance drops to 175.00

	server := newTestServer(t)

	created := createAllocation(t, server, 1000.00, 80)
	resp := postJSON(t, fmt.Sprintf("%s/api/allocations/%s/post", server.URL, created.ID),
		api.PostAllocationRequest{PostedBy: "poster"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, server.URL+"/api/entries", api.CreateEntryRequest{
		PolicyID:    "POL-1",
		CustomerID:  "CUST-1",
		EntryDate:   "2025-03-16",
		EntryType:   "fee_applied",
		AccountType: "savings_fund",
		Credit:      25.00,
		Description: "Annual administration fee",
		PostedBy:    "billing",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var entryResp map[string]any
	decodeBody(t, resp, &entryResp)
	assert.NotZero(t, entryResp["entry_no"])

	resp, err := http.Get(server.URL + "/api/funds/savings_fund/balance")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance api.BalanceDTO
	decodeBody(t, resp, &balance)
	assert.InDelta(t, 175.00, balance.Balance, 0.001)
}

func TestAPI_ManualEntryRejectsUnknownEnum(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/entries", api.CreateEntryRequest{
		PolicyID:    "POL-1",
		CustomerID:  "CUST-1",
		EntryType:   "bribe",
		AccountType: "savings_fund",
		Credit:      25.00,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
