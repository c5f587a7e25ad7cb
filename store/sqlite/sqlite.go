/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on ledger_entries
  - The only UPDATE on allocations is the guarded Draft -> Posted transition

KEY TABLES:
  allocations:    Premium split decisions (Draft/Posted lifecycle)
  ledger_entries: Immutable ledger; entry_no is an AUTOINCREMENT key, the
                  only reliable ordering column
  sequences:      Named counters; allocation IDs are reserved here atomically
                  instead of the max+1 read-then-write the legacy numbering
                  scheme used

NUMBERING:
  entry_no comes from SQLite's AUTOINCREMENT, so entry numbers are strictly
  increasing and never reused. Allocation sequence reservation runs under the
  store's write lock, so each value is handed out exactly once.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole callback, which serializes balance-affecting read-then-write
  sequences. In production with PostgreSQL, row locking on the "last entry"
  read inside the transaction handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/covant/premium-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The store serializes writes itself; a single connection avoids
	// SQLITE_BUSY between the pool's connections under WAL.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Allocations (premium split decisions)
	CREATE TABLE IF NOT EXISTS allocations (
		id TEXT PRIMARY KEY,
		bill_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		allocation_date TEXT NOT NULL,
		total_premium TEXT NOT NULL,
		risk_percentage TEXT NOT NULL,
		savings_percentage TEXT NOT NULL,
		risk_premium TEXT NOT NULL,
		savings_premium TEXT NOT NULL,
		investment_ratio TEXT NOT NULL,
		status TEXT NOT NULL,
		created_by TEXT,
		posted_date TEXT,
		posted_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_customer
		ON allocations(customer_id, allocation_date);
	CREATE INDEX IF NOT EXISTS idx_allocations_policy
		ON allocations(policy_id, allocation_date);
	CREATE INDEX IF NOT EXISTS idx_allocations_status
		ON allocations(status);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		entry_no INTEGER PRIMARY KEY AUTOINCREMENT,
		allocation_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		account_type TEXT NOT NULL,
		debit_amount TEXT NOT NULL,
		credit_amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		description TEXT,
		posted INTEGER NOT NULL DEFAULT 1,
		posted_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance lookup for an account (hot path: latest entry by entry_no)
	CREATE INDEX IF NOT EXISTS idx_entries_account
		ON ledger_entries(account_type, entry_no);
	CREATE INDEX IF NOT EXISTS idx_entries_customer_account
		ON ledger_entries(customer_id, account_type, entry_no);
	CREATE INDEX IF NOT EXISTS idx_entries_allocation
		ON ledger_entries(allocation_id);
	CREATE INDEX IF NOT EXISTS idx_entries_date
		ON ledger_entries(entry_date, entry_type);

	-- Named sequences (atomic allocation ID reservation)
	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every operation can run
// directly or inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SEQUENCES
// =============================================================================

// NextAllocationSeq atomically reserves the next allocation sequence value.
func (s *Store) NextAllocationSeq(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nextSeq(ctx, s.db, "allocation")
}

func nextSeq(ctx context.Context, db dbtx, name string) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
	`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}

	var value int64
	err = db.QueryRowContext(ctx, "SELECT value FROM sequences WHERE name = ?", name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}
	return value, nil
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func (s *Store) InsertAllocation(ctx context.Context, a ledger.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertAllocation(ctx, s.db, a)
}

func insertAllocation(ctx context.Context, db dbtx, a ledger.Allocation) error {
	query := `
		INSERT INTO allocations
		(id, bill_id, policy_id, customer_id, allocation_date, total_premium,
		 risk_percentage, savings_percentage, risk_premium, savings_premium,
		 investment_ratio, status, created_by, posted_date, posted_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		a.ID,
		a.BillID,
		a.PolicyID,
		a.CustomerID,
		a.AllocationDate.String(),
		a.TotalPremium.String(),
		a.RiskPercentage.String(),
		a.SavingsPercentage.String(),
		a.RiskPremium.String(),
		a.SavingsPremium.String(),
		a.InvestmentRatio.String(),
		a.Status,
		a.CreatedBy,
		nullDate(a.PostedDate),
		nullString(a.PostedBy),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	return nil
}

func (s *Store) GetAllocation(ctx context.Context, id ledger.AllocationID) (*ledger.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAllocation(ctx, s.db, id)
}

const allocationColumns = `id, bill_id, policy_id, customer_id, allocation_date, total_premium,
	risk_percentage, savings_percentage, risk_premium, savings_premium,
	investment_ratio, status, created_by, posted_date, posted_by`

func getAllocation(ctx context.Context, db dbtx, id ledger.AllocationID) (*ledger.Allocation, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+allocationColumns+" FROM allocations WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation: %w", err)
	}
	defer rows.Close()

	allocs, err := scanAllocations(rows)
	if err != nil {
		return nil, err
	}
	if len(allocs) == 0 {
		return nil, nil
	}
	return &allocs[0], nil
}

// MarkAllocationPosted performs the guarded Draft -> Posted transition.
// The status predicate makes a concurrent double post visible as an error
// inside the transaction instead of silently overwriting.
func (s *Store) MarkAllocationPosted(ctx context.Context, id ledger.AllocationID, postedDate ledger.Date, postedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markAllocationPosted(ctx, s.db, id, postedDate, postedBy)
}

func markAllocationPosted(ctx context.Context, db dbtx, id ledger.AllocationID, postedDate ledger.Date, postedBy string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE allocations
		SET status = ?, posted_date = ?, posted_by = ?
		WHERE id = ? AND status = ?
	`, ledger.StatusPosted, postedDate.String(), postedBy, id, ledger.StatusDraft)
	if err != nil {
		return fmt.Errorf("failed to mark allocation posted: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("allocation %s is not in draft status", id)
	}
	return nil
}

func (s *Store) AllocationsByCustomer(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryAllocations(ctx, s.db,
		"SELECT "+allocationColumns+` FROM allocations
		 WHERE customer_id = ? ORDER BY allocation_date ASC, rowid ASC`, customerID)
}

func (s *Store) AllocationsByPolicy(ctx context.Context, policyID ledger.PolicyID) ([]ledger.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryAllocations(ctx, s.db,
		"SELECT "+allocationColumns+` FROM allocations
		 WHERE policy_id = ? ORDER BY allocation_date ASC, rowid ASC`, policyID)
}

func queryAllocations(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Allocation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()
	return scanAllocations(rows)
}

func scanAllocations(rows *sql.Rows) ([]ledger.Allocation, error) {
	var allocations []ledger.Allocation
	for rows.Next() {
		var (
			a              ledger.Allocation
			allocationDate string
			totalPremium   string
			riskPct        string
			savingsPct     string
			riskPremium    string
			savingsPremium string
			ratio          string
			createdBy      sql.NullString
			postedDate     sql.NullString
			postedBy       sql.NullString
		)
		err := rows.Scan(
			&a.ID, &a.BillID, &a.PolicyID, &a.CustomerID, &allocationDate,
			&totalPremium, &riskPct, &savingsPct, &riskPremium, &savingsPremium,
			&ratio, &a.Status, &createdBy, &postedDate, &postedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}

		a.AllocationDate, _ = ledger.ParseDate(allocationDate)
		a.TotalPremium = ledger.MustDecimal(totalPremium)
		a.RiskPercentage = ledger.MustDecimal(riskPct)
		a.SavingsPercentage = ledger.MustDecimal(savingsPct)
		a.RiskPremium = ledger.MustDecimal(riskPremium)
		a.SavingsPremium = ledger.MustDecimal(savingsPremium)
		a.InvestmentRatio = ledger.MustDecimal(ratio)
		a.CreatedBy = createdBy.String
		a.PostedBy = postedBy.String
		if postedDate.Valid {
			a.PostedDate, _ = ledger.ParseDate(postedDate.String)
		}

		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// =============================================================================
// LEDGER ENTRIES (append-only)
// =============================================================================

// AppendEntry inserts an entry and returns the AUTOINCREMENT-assigned
// entry_no.
func (s *Store) AppendEntry(ctx context.Context, e ledger.LedgerEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, db dbtx, e ledger.LedgerEntry) (int64, error) {
	query := `
		INSERT INTO ledger_entries
		(allocation_id, policy_id, customer_id, entry_date, entry_type,
		 account_type, debit_amount, credit_amount, balance, description,
		 posted, posted_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := db.ExecContext(ctx, query,
		e.AllocationID,
		e.PolicyID,
		e.CustomerID,
		e.EntryDate.String(),
		e.Type,
		e.Account,
		e.Debit.String(),
		e.Credit.String(),
		e.Balance.String(),
		e.Description,
		e.Posted,
		e.PostedBy,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return res.LastInsertId()
}

const entryColumns = `entry_no, allocation_id, policy_id, customer_id, entry_date, entry_type,
	account_type, debit_amount, credit_amount, balance, description, posted, posted_by`

func (s *Store) LastEntryForAccount(ctx context.Context, account ledger.AccountType) (*ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastEntryForAccount(ctx, s.db, account)
}

func lastEntryForAccount(ctx context.Context, db dbtx, account ledger.AccountType) (*ledger.LedgerEntry, error) {
	entries, err := queryEntries(ctx, db,
		"SELECT "+entryColumns+` FROM ledger_entries
		 WHERE account_type = ? ORDER BY entry_no DESC LIMIT 1`, account)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (s *Store) EntriesByCustomerAccount(ctx context.Context, customerID ledger.CustomerID, account ledger.AccountType) ([]ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		"SELECT "+entryColumns+` FROM ledger_entries
		 WHERE customer_id = ? AND account_type = ? ORDER BY entry_no ASC`,
		customerID, account)
}

func (s *Store) EntriesByAccount(ctx context.Context, account ledger.AccountType) ([]ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		"SELECT "+entryColumns+` FROM ledger_entries
		 WHERE account_type = ? ORDER BY entry_no ASC`, account)
}

func (s *Store) EntriesForAllocation(ctx context.Context, id ledger.AllocationID) ([]ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		"SELECT "+entryColumns+` FROM ledger_entries
		 WHERE allocation_id = ? ORDER BY entry_no ASC`, id)
}

func (s *Store) EntriesInRange(ctx context.Context, from, to ledger.Date) ([]ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		"SELECT "+entryColumns+` FROM ledger_entries
		 WHERE entry_date >= ? AND entry_date <= ?
		 ORDER BY entry_date ASC, entry_type ASC, entry_no ASC`,
		from.String(), to.String())
}

func queryEntries(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.LedgerEntry
	for rows.Next() {
		var (
			e           ledger.LedgerEntry
			entryDate   string
			debit       string
			credit      string
			balance     string
			description sql.NullString
			postedBy    sql.NullString
		)
		err := rows.Scan(
			&e.EntryNo, &e.AllocationID, &e.PolicyID, &e.CustomerID, &entryDate,
			&e.Type, &e.Account, &debit, &credit, &balance, &description,
			&e.Posted, &postedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		e.EntryDate, _ = ledger.ParseDate(entryDate)
		e.Debit = ledger.MustDecimal(debit)
		e.Credit = ledger.MustDecimal(credit)
		e.Balance = ledger.MustDecimal(balance)
		e.Description = description.String
		e.PostedBy = postedBy.String

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction, holding the write lock
// for the whole callback so balance reads and entry inserts are serialized.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every operation against the open transaction. No re-locking:
// the parent's write lock is held by WithTx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) NextAllocationSeq(ctx context.Context) (int64, error) {
	return nextSeq(ctx, ts.tx, "allocation")
}

func (ts *txStore) InsertAllocation(ctx context.Context, a ledger.Allocation) error {
	return insertAllocation(ctx, ts.tx, a)
}

func (ts *txStore) GetAllocation(ctx context.Context, id ledger.AllocationID) (*ledger.Allocation, error) {
	return getAllocation(ctx, ts.tx, id)
}

func (ts *txStore) MarkAllocationPosted(ctx context.Context, id ledger.AllocationID, postedDate ledger.Date, postedBy string) error {
	return markAllocationPosted(ctx, ts.tx, id, postedDate, postedBy)
}

func (ts *txStore) AllocationsByCustomer(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Allocation, error) {
	return queryAllocations(ctx, ts.tx,
		"SELECT "+allocationColumns+` FROM allocations
		 WHERE customer_id = ? ORDER BY allocation_date ASC, rowid ASC`, customerID)
}

func (ts *txStore) AllocationsByPolicy(ctx context.Context, policyID ledger.PolicyID) ([]ledger.Allocation, error) {
	return queryAllocations(ctx, ts.tx,
		"SELECT "+allocationColumns+` FROM allocations
		 WHERE policy_id = ? ORDER BY allocation_date ASC, rowid ASC`, policyID)
}

func (ts *txStore) AppendEntry(ctx context.Context, e ledger.LedgerEntry) (int64, error) {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) LastEntryForAccount(ctx context.Context, account ledger.AccountType) (*ledger.LedgerEntry, error) {
	return lastEntryForAccount(ctx, ts.tx, account)
}

func (ts *txStore) EntriesByCustomerAccount(ctx context.Context, customerID ledger.CustomerID, account ledger.AccountType) ([]ledger.LedgerEntry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+entryColumns+` FROM ledger_entries
		 WHERE customer_id = ? AND account_type = ? ORDER BY entry_no ASC`,
		customerID, account)
}

func (ts *txStore) EntriesByAccount(ctx context.Context, account ledger.AccountType) ([]ledger.LedgerEntry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+entryColumns+` FROM ledger_entries
		 WHERE account_type = ? ORDER BY entry_no ASC`, account)
}

func (ts *txStore) EntriesForAllocation(ctx context.Context, id ledger.AllocationID) ([]ledger.LedgerEntry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+entryColumns+` FROM ledger_entries
		 WHERE allocation_id = ? ORDER BY entry_no ASC`, id)
}

func (ts *txStore) EntriesInRange(ctx context.Context, from, to ledger.Date) ([]ledger.LedgerEntry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+entryColumns+` FROM ledger_entries
		 WHERE entry_date >= ? AND entry_date <= ?
		 ORDER BY entry_date ASC, entry_type ASC, entry_no ASC`,
		from.String(), to.String())
}

// =============================================================================
// UTILITIES
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d ledger.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
