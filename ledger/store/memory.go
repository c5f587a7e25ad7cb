// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/covant/premium-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	allocations map[ledger.AllocationID]ledger.Allocation
	allocOrder  []ledger.AllocationID
	entries     []ledger.LedgerEntry // ordered by EntryNo
	allocSeq    int64
	entrySeq    int64
}

func NewMemory() *Memory {
	return &Memory{
		allocations: make(map[ledger.AllocationID]ledger.Allocation),
	}
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func (m *Memory) NextAllocationSeq(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextAllocationSeqLocked()
}

func (m *Memory) nextAllocationSeqLocked() (int64, error) {
	m.allocSeq++
	return m.allocSeq, nil
}

func (m *Memory) InsertAllocation(_ context.Context, a ledger.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAllocationLocked(a)
}

func (m *Memory) insertAllocationLocked(a ledger.Allocation) error {
	m.allocations[a.ID] = a
	m.allocOrder = append(m.allocOrder, a.ID)
	return nil
}

func (m *Memory) GetAllocation(_ context.Context, id ledger.AllocationID) (*ledger.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAllocationLocked(id)
}

func (m *Memory) getAllocationLocked(id ledger.AllocationID) (*ledger.Allocation, error) {
	a, ok := m.allocations[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) MarkAllocationPosted(_ context.Context, id ledger.AllocationID, postedDate ledger.Date, postedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markAllocationPostedLocked(id, postedDate, postedBy)
}

func (m *Memory) markAllocationPostedLocked(id ledger.AllocationID, postedDate ledger.Date, postedBy string) error {
	a, ok := m.allocations[id]
	if !ok {
		return &ledger.NotFoundError{AllocationID: id}
	}
	if a.Status != ledger.StatusDraft {
		return &ledger.AlreadyPostedError{AllocationID: id, Status: a.Status}
	}
	a.Status = ledger.StatusPosted
	a.PostedDate = postedDate
	a.PostedBy = postedBy
	m.allocations[id] = a
	return nil
}

func (m *Memory) AllocationsByCustomer(_ context.Context, customerID ledger.CustomerID) ([]ledger.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocationsLocked(func(a ledger.Allocation) bool { return a.CustomerID == customerID }), nil
}

func (m *Memory) AllocationsByPolicy(_ context.Context, policyID ledger.PolicyID) ([]ledger.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocationsLocked(func(a ledger.Allocation) bool { return a.PolicyID == policyID }), nil
}

// allocationsLocked filters in insertion order, then orders by allocation
// date with insertion order as the tiebreaker.
func (m *Memory) allocationsLocked(match func(ledger.Allocation) bool) []ledger.Allocation {
	var result []ledger.Allocation
	for _, id := range m.allocOrder {
		if a := m.allocations[id]; match(a) {
			result = append(result, a)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AllocationDate.Before(result[j].AllocationDate)
	})
	return result
}

// =============================================================================
// LEDGER ENTRIES (append-only)
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, e ledger.LedgerEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntryLocked(e)
}

func (m *Memory) appendEntryLocked(e ledger.LedgerEntry) (int64, error) {
	m.entrySeq++
	e.EntryNo = m.entrySeq
	m.entries = append(m.entries, e)
	return e.EntryNo, nil
}

func (m *Memory) LastEntryForAccount(_ context.Context, account ledger.AccountType) (*ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastEntryForAccountLocked(account)
}

func (m *Memory) lastEntryForAccountLocked(account ledger.AccountType) (*ledger.LedgerEntry, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Account == account {
			e := m.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (m *Memory) EntriesByCustomerAccount(_ context.Context, customerID ledger.CustomerID, account ledger.AccountType) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(func(e ledger.LedgerEntry) bool {
		return e.CustomerID == customerID && e.Account == account
	}), nil
}

func (m *Memory) EntriesByAccount(_ context.Context, account ledger.AccountType) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(func(e ledger.LedgerEntry) bool { return e.Account == account }), nil
}

func (m *Memory) EntriesForAllocation(_ context.Context, id ledger.AllocationID) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(func(e ledger.LedgerEntry) bool { return e.AllocationID == id }), nil
}

func (m *Memory) EntriesInRange(_ context.Context, from, to ledger.Date) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.entriesLocked(func(e ledger.LedgerEntry) bool { return e.EntryDate.InRange(from, to) })
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].EntryDate.Equal(entries[j].EntryDate) {
			return entries[i].EntryDate.Before(entries[j].EntryDate)
		}
		return entries[i].Type < entries[j].Type
	})
	return entries, nil
}

// entriesLocked filters in EntryNo order.
func (m *Memory) entriesLocked(match func(ledger.LedgerEntry) bool) []ledger.LedgerEntry {
	var result []ledger.LedgerEntry
	for _, e := range m.entries {
		if match(e) {
			result = append(result, e)
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn while holding the write lock, simulating a transaction
// with a snapshot that is restored on error. Holding the lock for the whole
// callback also serializes balance-affecting read-then-write sequences.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	allocations map[ledger.AllocationID]ledger.Allocation
	allocOrder  []ledger.AllocationID
	entries     []ledger.LedgerEntry
	allocSeq    int64
	entrySeq    int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	allocs := make(map[ledger.AllocationID]ledger.Allocation, len(tm.allocations))
	for k, v := range tm.allocations {
		allocs[k] = v
	}
	return memorySnapshot{
		allocations: allocs,
		allocOrder:  append([]ledger.AllocationID{}, tm.allocOrder...),
		entries:     append([]ledger.LedgerEntry{}, tm.entries...),
		allocSeq:    tm.allocSeq,
		entrySeq:    tm.entrySeq,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.allocations = s.allocations
	tm.allocOrder = s.allocOrder
	tm.entries = s.entries
	tm.allocSeq = s.allocSeq
	tm.entrySeq = s.entrySeq
}

// txMemoryView operates on its parent's state without re-locking: the
// parent's lock is held for the lifetime of the transaction.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) NextAllocationSeq(_ context.Context) (int64, error) {
	return tv.parent.nextAllocationSeqLocked()
}

func (tv *txMemoryView) InsertAllocation(_ context.Context, a ledger.Allocation) error {
	return tv.parent.insertAllocationLocked(a)
}

func (tv *txMemoryView) GetAllocation(_ context.Context, id ledger.AllocationID) (*ledger.Allocation, error) {
	return tv.parent.getAllocationLocked(id)
}

func (tv *txMemoryView) MarkAllocationPosted(_ context.Context, id ledger.AllocationID, postedDate ledger.Date, postedBy string) error {
	return tv.parent.markAllocationPostedLocked(id, postedDate, postedBy)
}

func (tv *txMemoryView) AllocationsByCustomer(_ context.Context, customerID ledger.CustomerID) ([]ledger.Allocation, error) {
	return tv.parent.allocationsLocked(func(a ledger.Allocation) bool { return a.CustomerID == customerID }), nil
}

func (tv *txMemoryView) AllocationsByPolicy(_ context.Context, policyID ledger.PolicyID) ([]ledger.Allocation, error) {
	return tv.parent.allocationsLocked(func(a ledger.Allocation) bool { return a.PolicyID == policyID }), nil
}

func (tv *txMemoryView) AppendEntry(_ context.Context, e ledger.LedgerEntry) (int64, error) {
	return tv.parent.appendEntryLocked(e)
}

func (tv *txMemoryView) LastEntryForAccount(_ context.Context, account ledger.AccountType) (*ledger.LedgerEntry, error) {
	return tv.parent.lastEntryForAccountLocked(account)
}

func (tv *txMemoryView) EntriesByCustomerAccount(_ context.Context, customerID ledger.CustomerID, account ledger.AccountType) ([]ledger.LedgerEntry, error) {
	return tv.parent.entriesLocked(func(e ledger.LedgerEntry) bool {
		return e.CustomerID == customerID && e.Account == account
	}), nil
}

func (tv *txMemoryView) EntriesByAccount(_ context.Context, account ledger.AccountType) ([]ledger.LedgerEntry, error) {
	return tv.parent.entriesLocked(func(e ledger.LedgerEntry) bool { return e.Account == account }), nil
}

func (tv *txMemoryView) EntriesForAllocation(_ context.Context, id ledger.AllocationID) ([]ledger.LedgerEntry, error) {
	return tv.parent.entriesLocked(func(e ledger.LedgerEntry) bool { return e.AllocationID == id }), nil
}

func (tv *txMemoryView) EntriesInRange(_ context.Context, from, to ledger.Date) ([]ledger.LedgerEntry, error) {
	entries := tv.parent.entriesLocked(func(e ledger.LedgerEntry) bool { return e.EntryDate.InRange(from, to) })
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].EntryDate.Equal(entries[j].EntryDate) {
			return entries[i].EntryDate.Before(entries[j].EntryDate)
		}
		return entries[i].Type < entries[j].Type
	})
	return entries, nil
}
