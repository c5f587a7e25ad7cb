/*
store.go - Persistence interfaces for allocations and ledger entries

PURPOSE:
  Defines the interface between the engine and the database. Implementations
  must preserve two append-only guarantees:
  - Ledger entries are never updated or deleted once appended.
  - An allocation's monetary fields are never mutated; the only permitted
    update is the one-time Draft -> Posted status transition.

ORDERING AND NUMBERING:
  EntryNo values are assigned by the store at insert time and must be
  strictly increasing. NextAllocationSeq must hand out each value exactly
  once even under concurrent callers: implementations serialize the
  reservation (database sequence, counter row under a write lock).

ATOMICITY:
  TxStore.WithTx provides the all-or-nothing boundary the poster needs:
  two entry inserts plus one status update commit together or not at all.
  Implementations must also serialize balance-affecting writes so that two
  concurrent posts never read the same "last balance" (the store-level write
  lock or database row locking inside WithTx covers this).

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - ledger/store: in-memory store for tests and demos
*/
package ledger

import "context"

// Store handles persistence of allocations and ledger entries.
type Store interface {
	// NextAllocationSeq atomically reserves the next allocation sequence
	// number. Each value is handed out exactly once.
	NextAllocationSeq(ctx context.Context) (int64, error)

	// InsertAllocation persists a new allocation row.
	InsertAllocation(ctx context.Context, a Allocation) error

	// GetAllocation returns the allocation, or nil if it does not exist.
	GetAllocation(ctx context.Context, id AllocationID) (*Allocation, error)

	// MarkAllocationPosted performs the one-time Draft -> Posted transition.
	// It must fail if the allocation is no longer in Draft, so a concurrent
	// double post is detected inside the transaction rather than lost.
	MarkAllocationPosted(ctx context.Context, id AllocationID, postedDate Date, postedBy string) error

	// AllocationsByCustomer returns the customer's allocations ordered by
	// allocation date, then insertion order.
	AllocationsByCustomer(ctx context.Context, customerID CustomerID) ([]Allocation, error)

	// AllocationsByPolicy returns the policy's allocations ordered by
	// allocation date, then insertion order.
	AllocationsByPolicy(ctx context.Context, policyID PolicyID) ([]Allocation, error)

	// AppendEntry persists a ledger entry, assigns its EntryNo, and returns
	// it. This is the ONLY write operation on the ledger.
	AppendEntry(ctx context.Context, e LedgerEntry) (int64, error)

	// LastEntryForAccount returns the entry with the highest EntryNo for the
	// account, or nil if the account has no entries.
	LastEntryForAccount(ctx context.Context, account AccountType) (*LedgerEntry, error)

	// EntriesByCustomerAccount returns entries filtered by customer AND
	// account, ordered by EntryNo.
	EntriesByCustomerAccount(ctx context.Context, customerID CustomerID, account AccountType) ([]LedgerEntry, error)

	// EntriesByAccount returns all entries for the account, ordered by EntryNo.
	EntriesByAccount(ctx context.Context, account AccountType) ([]LedgerEntry, error)

	// EntriesForAllocation returns the entries created by one allocation,
	// ordered by EntryNo.
	EntriesForAllocation(ctx context.Context, id AllocationID) ([]LedgerEntry, error)

	// EntriesInRange returns all entries with EntryDate in [from, to]
	// inclusive, ordered by (EntryDate, EntryType, EntryNo).
	EntriesInRange(ctx context.Context, from, to Date) ([]LedgerEntry, error)
}

// TxStore wraps Store with transaction support. The engine requires it:
// posting an allocation is three writes that must commit together.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error, the
	// transaction is rolled back; otherwise it is committed. The store the
	// callback receives operates inside that transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
