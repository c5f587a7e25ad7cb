package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covant/premium-ledger/ledger"
	"github.com/covant/premium-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testDay = ledger.NewDate(2025, 3, 15)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testAllocation(id string) ledger.Allocation {
	return ledger.Allocation{
		ID:                ledger.AllocationID(id),
		BillID:            "BILL-1",
		PolicyID:          "POL-1",
		CustomerID:        "CUST-1",
		AllocationDate:    testDay,
		TotalPremium:      dec("1000.00"),
		RiskPercentage:    dec("80"),
		SavingsPercentage: dec("20"),
		RiskPremium:       dec("800.00"),
		SavingsPremium:    dec("200.00"),
		InvestmentRatio:   dec("4.0000"),
		Status:            ledger.StatusDraft,
		CreatedBy:         "tester",
	}
}

// =============================================================================
// ALLOCATION PERSISTENCE
// =============================================================================

func TestStore_AllocationRoundTrip(t *testing.T) {
	// GIVEN: An allocation with all monetary fields set
	// WHEN: Inserting and reading it back
	// THEN: Every field survives, decimals exactly

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAllocation(ctx, testAllocation("ALLOC1")))

	got, err := store.GetAllocation(ctx, "ALLOC1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, ledger.AllocationID("ALLOC1"), got.ID)
	assert.Equal(t, ledger.BillID("BILL-1"), got.BillID)
	assert.Equal(t, ledger.StatusDraft, got.Status)
	assert.Equal(t, testDay, got.AllocationDate)
	assert.True(t, got.TotalPremium.Equal(dec("1000.00")))
	assert.True(t, got.RiskPremium.Equal(dec("800.00")))
	assert.True(t, got.SavingsPremium.Equal(dec("200.00")))
	assert.True(t, got.InvestmentRatio.Equal(dec("4.0000")))
	assert.True(t, got.PostedDate.IsZero())
	assert.Empty(t, got.PostedBy)
}

func TestStore_GetAllocation_MissingReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetAllocation(context.Background(), "ALLOC999")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_MarkAllocationPosted_OnlyFromDraft(t *testing.T) {
	// GIVEN: A Draft allocation
	// WHEN: Marking it posted twice
	// THEN: The first transition succeeds, the second fails on the status
	//       guard, and posted fields are recorded once

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAllocation(ctx, testAllocation("ALLOC1")))

	require.NoError(t, store.MarkAllocationPosted(ctx, "ALLOC1", testDay, "poster"))

	got, err := store.GetAllocation(ctx, "ALLOC1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, got.Status)
	assert.Equal(t, testDay, got.PostedDate)
	assert.Equal(t, "poster", got.PostedBy)

	err = store.MarkAllocationPosted(ctx, "ALLOC1", testDay, "poster")
	assert.Error(t, err, "repeat transition must fail")
}

func TestStore_NextAllocationSeq_Monotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		seq, err := store.NextAllocationSeq(ctx)
		require.NoError(t, err)
		assert.Greater(t, seq, prev)
		prev = seq
	}
}

func TestStore_AllocationsByCustomer_OrderedByDate(t *testing.T) {
	// GIVEN: Three allocations with out-of-order insertion dates
	// WHEN: Listing by customer
	// THEN: Results come back in allocation-date order

	store := newTestStore(t)
	ctx := context.Background()

	late := testAllocation("ALLOC1")
	late.AllocationDate = testDay.AddDays(10)
	early := testAllocation("ALLOC2")
	early.AllocationDate = testDay.AddDays(-10)
	mid := testAllocation("ALLOC3")

	for _, a := range []ledger.Allocation{late, early, mid} {
		require.NoError(t, store.InsertAllocation(ctx, a))
	}

	allocs, err := store.AllocationsByCustomer(ctx, "CUST-1")
	require.NoError(t, err)
	require.Len(t, allocs, 3)
	assert.Equal(t, ledger.AllocationID("ALLOC2"), allocs[0].ID)
	assert.Equal(t, ledger.AllocationID("ALLOC3"), allocs[1].ID)
	assert.Equal(t, ledger.AllocationID("ALLOC1"), allocs[2].ID)
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func testEntry(allocID string, account ledger.AccountType, debit string) ledger.LedgerEntry {
	return ledger.LedgerEntry{
		AllocationID: ledger.AllocationID(allocID),
		PolicyID:     "POL-1",
		CustomerID:   "CUST-1",
		EntryDate:    testDay,
		Type:         ledger.EntryRiskPayment,
		Account:      account,
		Debit:        dec(debit),
		Credit:       decimal.Zero,
		Balance:      dec(debit),
		Description:  "test entry",
		Posted:       true,
		PostedBy:     "poster",
	}
}

func TestStore_AppendEntry_AssignsIncreasingEntryNos(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 4; i++ {
		no, err := store.AppendEntry(ctx, testEntry("ALLOC1", ledger.AccountRiskFund, "100.00"))
		require.NoError(t, err)
		assert.Greater(t, no, prev, "entry numbers strictly increase")
		prev = no
	}
}

func TestStore_LastEntryForAccount(t *testing.T) {
	// GIVEN: Entries across two accounts
	// WHEN: Reading the last entry per account
	// THEN: Each account sees only its own latest entry

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AppendEntry(ctx, testEntry("ALLOC1", ledger.AccountRiskFund, "100.00"))
	require.NoError(t, err)
	e2 := testEntry("ALLOC1", ledger.AccountRiskFund, "50.00")
	e2.Balance = dec("150.00")
	_, err = store.AppendEntry(ctx, e2)
	require.NoError(t, err)
	_, err = store.AppendEntry(ctx, testEntry("ALLOC1", ledger.AccountSavingsFund, "30.00"))
	require.NoError(t, err)

	last, err := store.LastEntryForAccount(ctx, ledger.AccountRiskFund)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Balance.Equal(dec("150.00")))

	last, err = store.LastEntryForAccount(ctx, ledger.AccountOperating)
	require.NoError(t, err)
	assert.Nil(t, last, "empty account has no last entry")
}

func TestStore_EntriesInRange_InclusiveAndOrdered(t *testing.T) {
	// GIVEN: Entries on three consecutive days
	// WHEN: Querying a two-day inclusive window
	// THEN: Both edge days are included, the day outside is not

	store := newTestStore(t)
	ctx := context.Background()

	for i, day := range []ledger.Date{testDay, testDay.AddDays(1), testDay.AddDays(2)} {
		e := testEntry(fmt.Sprintf("ALLOC%d", i+1), ledger.AccountRiskFund, "100.00")
		e.EntryDate = day
		_, err := store.AppendEntry(ctx, e)
		require.NoError(t, err)
	}

	entries, err := store.EntriesInRange(ctx, testDay, testDay.AddDays(1))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, testDay, entries[0].EntryDate)
	assert.Equal(t, testDay.AddDays(1), entries[1].EntryDate)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts an allocation and an entry
	// WHEN: The callback returns an error
	// THEN: Neither write is visible afterward

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.InsertAllocation(ctx, testAllocation("ALLOC1")); err != nil {
			return err
		}
		if _, err := s.AppendEntry(ctx, testEntry("ALLOC1", ledger.AccountRiskFund, "800.00")); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	got, err := store.GetAllocation(ctx, "ALLOC1")
	require.NoError(t, err)
	assert.Nil(t, got)

	last, err := store.LastEntryForAccount(ctx, ledger.AccountRiskFund)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s ledger.Store) error {
		return s.InsertAllocation(ctx, testAllocation("ALLOC1"))
	})
	require.NoError(t, err)

	got, err := store.GetAllocation(ctx, "ALLOC1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

// =============================================================================
// CONCURRENT POSTING
// =============================================================================

func TestEngine_ConcurrentPosts_SerializedBalances(t *testing.T) {
	// GIVEN: N draft allocations of 100.00 at 80% risk
	// WHEN: Posting all of them concurrently through the engine
	// THEN: Every post succeeds exactly once, entry numbers are distinct,
	//       and the final fund balances equal the sum of all premiums

	store := newTestStore(t)
	engine := ledger.NewEngine(store, ledger.WithClock(ledger.FixedClock{Day: testDay}))
	ctx := context.Background()

	const n = 10
	ids := make([]ledger.AllocationID, n)
	for i := range ids {
		alloc, err := engine.CreateAllocation(ctx, ledger.AllocationInput{
			BillID:         ledger.BillID(fmt.Sprintf("BILL-%d", i)),
			PolicyID:       "POL-1",
			CustomerID:     "CUST-1",
			TotalPremium:   dec("100.00"),
			RiskPercentage: dec("80"),
			CreatedBy:      "tester",
		})
		require.NoError(t, err)
		ids[i] = alloc.ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id ledger.AllocationID) {
			defer wg.Done()
			errs[i] = engine.PostAllocation(ctx, id, "poster")
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "post %d", i)
	}

	riskEntries, err := store.EntriesByAccount(ctx, ledger.AccountRiskFund)
	require.NoError(t, err)
	require.Len(t, riskEntries, n)

	seen := make(map[int64]bool)
	for _, e := range riskEntries {
		assert.False(t, seen[e.EntryNo], "duplicate entry_no %d", e.EntryNo)
		seen[e.EntryNo] = true
	}

	riskBalance, err := engine.FundBalance(ctx, ledger.AccountRiskFund)
	require.NoError(t, err)
	assert.True(t, riskBalance.Equal(dec("800.00")), "10 x 80.00, got %s", riskBalance)

	savingsBalance, err := engine.FundBalance(ctx, ledger.AccountSavingsFund)
	require.NoError(t, err)
	assert.True(t, savingsBalance.Equal(dec("200.00")), "10 x 20.00, got %s", savingsBalance)
}

func TestEngine_ConcurrentDoublePost_OneWinner(t *testing.T) {
	// GIVEN: One draft allocation
	// WHEN: Two goroutines race to post it
	// THEN: Exactly one succeeds; the loser gets AlreadyPostedError and the
	//       ledger holds exactly two entries

	store := newTestStore(t)
	engine := ledger.NewEngine(store, ledger.WithClock(ledger.FixedClock{Day: testDay}))
	ctx := context.Background()

	alloc, err := engine.CreateAllocation(ctx, ledger.AllocationInput{
		BillID:         "BILL-1",
		PolicyID:       "POL-1",
		CustomerID:     "CUST-1",
		TotalPremium:   dec("1000.00"),
		RiskPercentage: dec("80"),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = engine.PostAllocation(ctx, alloc.ID, "poster")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ledger.ErrAlreadyPosted)
		}
	}
	assert.Equal(t, 1, successes, "exactly one post must win")

	entries, err := engine.EntriesForAllocation(ctx, alloc.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
