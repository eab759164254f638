/*
Package sqlite provides the SQLite-backed implementation of the
storage interfaces.

PURPOSE:
  Implements ledger.Store (accounts + journal) and catalog.PlanStore
  (purchasable plans) using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

ATOMIC SETTLE UNITS:
  Every Settle* method runs one database/sql transaction that combines
  the journal status transition with its balance mutation. Either both
  commit or neither does. The debit is conditional SQL
  ("... WHERE id = ? AND balance >= ?"), so sufficiency is re-validated
  at the moment of mutation, not at the earlier advisory read.

KEY TABLES:
  accounts:        balances and cumulative totals, balance >= 0 CHECK
  journal_entries: the journal, idempotency_key UNIQUE
  plans:           catalog records, provider_plan_id UNIQUE

CONCURRENCY:
  Uses sync.RWMutex for thread-safety around write units. In production
  with PostgreSQL, database-level row locks handle this instead. The
  mutex is never held across a provider call - settle units are short
  and local.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: readers don't block, single writer at a time, better
  crash recovery.

USAGE:
  store, err := sqlite.New("./data/wallet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ldg := ledger.New(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions and atomic-unit contract
  - catalog/catalog.go: PlanStore interface
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/geovend/wallet-engine/catalog"
	"github.com/geovend/wallet-engine/ledger"
)

// Store implements ledger.Store and catalog.PlanStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Compile-time interface checks.
var (
	_ ledger.Store      = (*Store)(nil)
	_ catalog.PlanStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The sqlite3 driver opens a fresh database per connection when
	// using :memory:; a single connection keeps tests and the
	// single-writer discipline honest.
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
	-- Accounts (wallets)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'user',
		referred_by TEXT,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		total_funded INTEGER NOT NULL DEFAULT 0,
		total_spent INTEGER NOT NULL DEFAULT 0,
		bonus_balance INTEGER NOT NULL DEFAULT 0,
		commission_earnings INTEGER NOT NULL DEFAULT 0,
		has_funded INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Journal (every money-moving event)
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		idempotency_key TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount >= 0),
		status TEXT NOT NULL DEFAULT 'pending',
		provider_ref TEXT,
		provider_response TEXT,
		ambiguous INTEGER NOT NULL DEFAULT 0,
		caused_by TEXT,
		description TEXT,
		metadata_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_account
		ON journal_entries(account_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_journal_account_kind
		ON journal_entries(account_id, kind);
	CREATE INDEX IF NOT EXISTS idx_journal_status
		ON journal_entries(status);
	CREATE INDEX IF NOT EXISTS idx_journal_caused_by
		ON journal_entries(caused_by) WHERE caused_by IS NOT NULL;

	-- Plans (catalog)
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		service_type TEXT NOT NULL,
		network TEXT NOT NULL,
		provider_network_id TEXT NOT NULL,
		provider_plan_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		plan_type TEXT,
		size_gb TEXT NOT NULL DEFAULT '0',
		provider_price INTEGER NOT NULL,
		selling_price INTEGER NOT NULL,
		reseller_price INTEGER NOT NULL,
		validity TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		synced_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_plans_service_type
		ON plans(service_type);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS (ledger.Store)
// =============================================================================

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, acc ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts
		(id, role, referred_by, balance, total_funded, total_spent,
		 bonus_balance, commission_earnings, has_funded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID,
		acc.Role,
		nullString(string(acc.ReferredBy)),
		acc.Balance,
		acc.TotalFunded,
		acc.TotalSpent,
		acc.BonusBalance,
		acc.CommissionEarnings,
		boolInt(acc.HasFunded),
		acc.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("account %s already exists", acc.ID)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Account loads one account.
func (s *Store) Account(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, role, referred_by, balance, total_funded, total_spent,
		       bonus_balance, commission_earnings, has_funded, created_at
		FROM accounts WHERE id = ?`, id))
}

// MarkFunded sets the one-way first-funding latch.
func (s *Store) MarkFunded(ctx context.Context, id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET has_funded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark funded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// =============================================================================
// JOURNAL (ledger.Store)
// =============================================================================

// Open inserts a pending journal entry.
func (s *Store) Open(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadataJSON, _ := json.Marshal(e.Metadata)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries
		(id, idempotency_key, account_id, kind, amount, status,
		 provider_ref, provider_response, ambiguous, caused_by,
		 description, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.IdempotencyKey,
		e.AccountID,
		e.Kind,
		e.Amount,
		e.Status,
		nullString(e.ProviderRef),
		nullString(string(e.ProviderResponse)),
		boolInt(e.Ambiguous),
		nullString(string(e.CausedBy)),
		nullString(e.Description),
		string(metadataJSON),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to open journal entry: %w", err)
	}
	return nil
}

// Entry loads one entry by id.
func (s *Store) Entry(ctx context.Context, id ledger.EntryID) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanEntry(s.db.QueryRowContext(ctx,
		selectEntry+` WHERE id = ?`, id))
}

// EntryByKey loads one entry by idempotency key.
func (s *Store) EntryByKey(ctx context.Context, key string) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanEntry(s.db.QueryRowContext(ctx,
		selectEntry+` WHERE idempotency_key = ?`, key))
}

// Entries lists an account's journal, newest first.
func (s *Store) Entries(ctx context.Context, id ledger.AccountID, f ledger.EntryFilter) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := entriesQuery(selectEntry, id, f)
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// CountEntries counts matching entries ignoring pagination.
func (s *Store) CountEntries(ctx context.Context, id ledger.AccountID, f ledger.EntryFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := entriesQuery(`SELECT COUNT(*) FROM journal_entries`, id, f)
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func entriesQuery(base string, id ledger.AccountID, f ledger.EntryFilter) (string, []any) {
	query := base + ` WHERE account_id = ?`
	args := []any{id}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.SuccessOnly {
		query += ` AND status = ?`
		args = append(args, ledger.StatusSuccess)
	}
	return query, args
}

// =============================================================================
// SETTLE UNITS (ledger.Store)
// =============================================================================

// SettleDebit finalizes pending->success and conditionally debits the
// owning account, as one transaction.
func (s *Store) SettleDebit(ctx context.Context, id ledger.EntryID, fin ledger.Finalize) (int64, error) {
	var newBalance int64
	err := s.settle(ctx, id, func(tx *sql.Tx, e *ledger.Entry) error {
		// Conditional decrement: sufficiency is decided here, at the
		// moment of mutation, not at the earlier advisory read.
		res, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET balance = balance - ?, total_spent = total_spent + ?
			WHERE id = ? AND balance >= ?`,
			e.Amount, e.Amount, e.AccountID, e.Amount)
		if err != nil {
			return fmt.Errorf("debit failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return s.debitShortfall(ctx, tx, e)
		}

		if err := s.finalizeEntry(ctx, tx, e, ledger.StatusSuccess, fin); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx,
			`SELECT balance FROM accounts WHERE id = ?`, e.AccountID,
		).Scan(&newBalance)
	})
	return newBalance, err
}

// debitShortfall classifies a zero-row conditional debit: either the
// account is gone or the balance no longer covers the amount.
func (s *Store) debitShortfall(ctx context.Context, tx *sql.Tx, e *ledger.Entry) error {
	var balance int64
	if err := tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = ?`, e.AccountID,
	).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrAccountNotFound
		}
		return err
	}
	if balance >= e.Amount {
		// The conditional UPDATE said no but the balance covers the
		// amount. The settle lock makes this unreachable.
		return fmt.Errorf("%w: debit of %d refused with balance %d on %s",
			ledger.ErrInternalInconsistency, e.Amount, balance, e.AccountID)
	}
	return &ledger.InsufficientFundsError{
		AccountID: e.AccountID,
		Available: balance,
		Required:  e.Amount,
	}
}

// upgradeShortfall classifies a zero-row upgrade UPDATE: account gone,
// role already flipped, or balance short of the fee.
func (s *Store) upgradeShortfall(ctx context.Context, tx *sql.Tx, e *ledger.Entry) error {
	var (
		balance int64
		role    ledger.Role
	)
	if err := tx.QueryRowContext(ctx,
		`SELECT balance, role FROM accounts WHERE id = ?`, e.AccountID,
	).Scan(&balance, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrAccountNotFound
		}
		return err
	}
	if role != ledger.RoleUser {
		return ledger.ErrAlreadyReseller
	}
	return &ledger.InsufficientFundsError{
		AccountID: e.AccountID,
		Available: balance,
		Required:  e.Amount,
	}
}

// creditColumns maps balance fields to their columns. Anything not in
// this table is rejected before it reaches SQL.
var creditColumns = map[ledger.BalanceField]string{
	ledger.FieldTotalFunded:        "total_funded",
	ledger.FieldBonusBalance:       "bonus_balance",
	ledger.FieldCommissionEarnings: "commission_earnings",
}

// SettleCredit finalizes pending->success and credits the owning
// account's balance plus the listed aux totals, as one transaction.
func (s *Store) SettleCredit(ctx context.Context, id ledger.EntryID, spec ledger.CreditSpec) (int64, error) {
	var newBalance int64
	err := s.settle(ctx, id, func(tx *sql.Tx, e *ledger.Entry) error {
		set := []string{"balance = balance + ?"}
		args := []any{e.Amount}
		for _, f := range spec.Fields {
			col, ok := creditColumns[f]
			if !ok {
				return fmt.Errorf("unknown balance field %q", f)
			}
			set = append(set, col+" = "+col+" + ?")
			args = append(args, e.Amount)
		}
		args = append(args, e.AccountID)

		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("credit failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ledger.ErrAccountNotFound
		}

		if err := s.finalizeEntry(ctx, tx, e, ledger.StatusSuccess, spec.Finalize); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx,
			`SELECT balance FROM accounts WHERE id = ?`, e.AccountID,
		).Scan(&newBalance)
	})
	return newBalance, err
}

// SettleFailed finalizes pending->failed with zero ledger effect.
func (s *Store) SettleFailed(ctx context.Context, id ledger.EntryID, fin ledger.Finalize) error {
	return s.settle(ctx, id, func(tx *sql.Tx, e *ledger.Entry) error {
		return s.finalizeEntry(ctx, tx, e, ledger.StatusFailed, fin)
	})
}

// PromoteReseller settles a reseller_upgrade entry: conditional fee
// debit and role flip in one transaction. The role predicate makes the
// flip single-shot: when two upgrade entries race, the second one's
// UPDATE matches zero rows and the fee is only ever debited once.
func (s *Store) PromoteReseller(ctx context.Context, id ledger.EntryID) (int64, error) {
	var newBalance int64
	err := s.settle(ctx, id, func(tx *sql.Tx, e *ledger.Entry) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET balance = balance - ?, total_spent = total_spent + ?, role = ?
			WHERE id = ? AND balance >= ? AND role = ?`,
			e.Amount, e.Amount, ledger.RoleReseller, e.AccountID, e.Amount, ledger.RoleUser)
		if err != nil {
			return fmt.Errorf("upgrade debit failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return s.upgradeShortfall(ctx, tx, e)
		}

		if err := s.finalizeEntry(ctx, tx, e, ledger.StatusSuccess, ledger.Finalize{}); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx,
			`SELECT balance FROM accounts WHERE id = ?`, e.AccountID,
		).Scan(&newBalance)
	})
	return newBalance, err
}

// settle runs fn inside one write transaction with the entry loaded
// and verified pending. Commit only if fn succeeds.
func (s *Store) settle(ctx context.Context, id ledger.EntryID, fn func(tx *sql.Tx, e *ledger.Entry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin settle: %w", err)
	}
	defer tx.Rollback()

	e, err := scanEntry(tx.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return ledger.ErrAlreadyFinalized
	}

	if err := fn(tx, e); err != nil {
		return err
	}

	return tx.Commit()
}

// finalizeEntry writes the terminal status. The WHERE status guard
// makes the transition race-proof even if two settles slip past the
// in-memory check.
func (s *Store) finalizeEntry(ctx context.Context, tx *sql.Tx, e *ledger.Entry, status ledger.Status, fin ledger.Finalize) error {
	metadata := e.Metadata
	if len(fin.Metadata) > 0 {
		if metadata == nil {
			metadata = make(map[string]string, len(fin.Metadata))
		}
		for k, v := range fin.Metadata {
			metadata[k] = v
		}
	}
	metadataJSON, _ := json.Marshal(metadata)

	res, err := tx.ExecContext(ctx, `
		UPDATE journal_entries
		SET status = ?,
		    provider_ref = COALESCE(?, provider_ref),
		    provider_response = COALESCE(?, provider_response),
		    ambiguous = ?,
		    metadata_json = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?`,
		status,
		nullString(fin.ProviderRef),
		nullString(string(fin.ProviderResponse)),
		boolInt(fin.Ambiguous),
		string(metadataJSON),
		time.Now().UTC().Format(time.RFC3339),
		e.ID,
		ledger.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAlreadyFinalized
	}
	return nil
}

// =============================================================================
// PLANS (catalog.PlanStore)
// =============================================================================

// UpsertSyncedPlan inserts a plan or refreshes its provider-side
// fields. Prices are only written on insert so admin pricing survives
// a re-sync.
func (s *Store) UpsertSyncedPlan(ctx context.Context, p catalog.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE plans
		SET service_type = ?, network = ?, provider_network_id = ?,
		    name = ?, plan_type = ?, size_gb = ?, provider_price = ?,
		    validity = ?, synced_at = ?
		WHERE provider_plan_id = ?`,
		p.ServiceType, p.Network, p.ProviderNetworkID,
		p.Name, nullString(p.PlanType), p.SizeGB.String(), p.ProviderPrice,
		nullString(p.Validity), p.SyncedAt.UTC().Format(time.RFC3339),
		p.ProviderPlanID,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans
		(id, service_type, network, provider_network_id, provider_plan_id,
		 name, plan_type, size_gb, provider_price, selling_price,
		 reseller_price, validity, active, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ServiceType, p.Network, p.ProviderNetworkID, p.ProviderPlanID,
		p.Name, nullString(p.PlanType), p.SizeGB.String(), p.ProviderPrice,
		p.SellingPrice, p.ResellerPrice, nullString(p.Validity),
		boolInt(p.Active),
		p.CreatedAt.UTC().Format(time.RFC3339),
		p.SyncedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	return nil
}

// Plan loads one plan by id.
func (s *Store) Plan(ctx context.Context, id string) (*catalog.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanPlan(s.db.QueryRowContext(ctx, selectPlan+` WHERE id = ?`, id))
}

// PlanByProviderID loads one plan by provider plan code.
func (s *Store) PlanByProviderID(ctx context.Context, providerPlanID string) (*catalog.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanPlan(s.db.QueryRowContext(ctx,
		selectPlan+` WHERE provider_plan_id = ?`, providerPlanID))
}

// Plans lists plans, optionally filtered by service type.
func (s *Store) Plans(ctx context.Context, st catalog.ServiceType) ([]catalog.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectPlan
	var args []any
	if st != "" {
		query += ` WHERE service_type = ?`
		args = append(args, st)
	}
	query += ` ORDER BY network, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []catalog.Plan
	for rows.Next() {
		p, err := scanPlanRows(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// SetPlanPrices overwrites the selling and reseller price.
func (s *Store) SetPlanPrices(ctx context.Context, id string, selling, reseller int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE plans SET selling_price = ?, reseller_price = ? WHERE id = ?`,
		selling, reseller, id)
	if err != nil {
		return fmt.Errorf("failed to set plan prices: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrPlanNotFound
	}
	return nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

const selectEntry = `
	SELECT id, idempotency_key, account_id, kind, amount, status,
	       provider_ref, provider_response, ambiguous, caused_by,
	       description, metadata_json, created_at, updated_at
	FROM journal_entries`

const selectPlan = `
	SELECT id, service_type, network, provider_network_id, provider_plan_id,
	       name, plan_type, size_gb, provider_price, selling_price,
	       reseller_price, validity, active, created_at, synced_at
	FROM plans`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var acc ledger.Account
	var referredBy sql.NullString
	var hasFunded int
	var createdAt string

	err := row.Scan(
		&acc.ID, &acc.Role, &referredBy, &acc.Balance,
		&acc.TotalFunded, &acc.TotalSpent, &acc.BonusBalance,
		&acc.CommissionEarnings, &hasFunded, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	acc.ReferredBy = ledger.AccountID(referredBy.String)
	acc.HasFunded = hasFunded != 0
	acc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &acc, nil
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	e, err := scanEntryRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func scanEntryRows(row rowScanner) (*ledger.Entry, error) {
	var e ledger.Entry
	var providerRef, providerResponse, causedBy, description, metadataJSON sql.NullString
	var ambiguous int
	var createdAt, updatedAt string

	err := row.Scan(
		&e.ID, &e.IdempotencyKey, &e.AccountID, &e.Kind, &e.Amount,
		&e.Status, &providerRef, &providerResponse, &ambiguous,
		&causedBy, &description, &metadataJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.ProviderRef = providerRef.String
	if providerResponse.Valid {
		e.ProviderResponse = json.RawMessage(providerResponse.String)
	}
	e.Ambiguous = ambiguous != 0
	e.CausedBy = ledger.EntryID(causedBy.String)
	e.Description = description.String
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &e, nil
}

func scanPlanRows(row rowScanner) (*catalog.Plan, error) {
	var p catalog.Plan
	var planType, sizeGB, validity sql.NullString
	var active int
	var createdAt, syncedAt string

	err := row.Scan(
		&p.ID, &p.ServiceType, &p.Network, &p.ProviderNetworkID,
		&p.ProviderPlanID, &p.Name, &planType, &sizeGB, &p.ProviderPrice,
		&p.SellingPrice, &p.ResellerPrice, &validity, &active,
		&createdAt, &syncedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}

	p.PlanType = planType.String
	p.SizeGB = parseDecimal(sizeGB.String)
	p.Validity = validity.String
	p.Active = active != 0
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.SyncedAt, _ = time.Parse(time.RFC3339, syncedAt)
	return &p, nil
}

func scanPlan(row rowScanner) (*catalog.Plan, error) {
	p, err := scanPlanRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrPlanNotFound
		}
		return nil, err
	}
	return p, nil
}

// =============================================================================
// SMALL HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
