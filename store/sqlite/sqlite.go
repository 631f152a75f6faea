/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  Production persistence for the ledger engine. The same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

AMOUNTS:
  Amounts are stored as decimal strings and summed in Go with
  shopspring/decimal. SQLite's SUM would coerce to float and lose cents;
  OffsetTotals therefore fetches the offset rows of all requested
  originals in ONE query and aggregates exactly on this side.

POSITION READS:
  Every line-item read joins the owning entry so EntryDate/EntryNo come
  back populated; the engine orders everything by (date, entry no, debit
  first, line no) and never needs a second lookup.

WAL MODE:
  Opened with WAL and foreign keys on, like any of our SQLite stores:
  multiple readers don't block, a single writer at a time.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/ledger-engine/ledger"
)

const dateLayout = "2006-01-02"

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite allows a single writer anyway, and a pooled
	// second connection to an in-memory database would see a fresh one.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		code TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		base TEXT NOT NULL,
		needs_offset BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		no INTEGER NOT NULL,
		kind TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_date_no
		ON entries(date, no);

	CREATE TABLE IF NOT EXISTS line_items (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
		account_code TEXT NOT NULL REFERENCES accounts(code),
		currency TEXT NOT NULL,
		is_debit BOOLEAN NOT NULL,
		no INTEGER NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		original_id TEXT REFERENCES line_items(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_entry
		ON line_items(entry_id);

	-- Matcher hot path: unlinked items of one account/currency
	CREATE INDEX IF NOT EXISTS idx_line_items_account_currency
		ON line_items(account_code, currency) WHERE original_id IS NULL;

	-- Net-balance aggregation
	CREATE INDEX IF NOT EXISTS idx_line_items_original
		ON line_items(original_id) WHERE original_id IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CHART OF ACCOUNTS
// =============================================================================

func (s *Store) Account(ctx context.Context, code string) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT code, title, base, needs_offset FROM accounts WHERE code = ?`, code)

	var a ledger.Account
	var base string
	if err := row.Scan(&a.Code, &a.Title, &base, &a.NeedsOffset); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	a.Base = ledger.AccountBase(base)
	return &a, nil
}

func (s *Store) Accounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT code, title, base, needs_offset FROM accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		var base string
		if err := rows.Scan(&a.Code, &a.Title, &base, &a.NeedsOffset); err != nil {
			return nil, err
		}
		a.Base = ledger.AccountBase(base)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (code, title, base, needs_offset)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			title = excluded.title,
			base = excluded.base,
			needs_offset = excluded.needs_offset`,
		a.Code, a.Title, string(a.Base), a.NeedsOffset)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (s *Store) Entry(ctx context.Context, id ledger.EntryID) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, date, no, kind, note, created_at, updated_at FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}

	items, err := s.queryLineItems(ctx, `WHERE li.entry_id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	e.LineItems = items
	return e, nil
}

func (s *Store) EntriesOn(ctx context.Context, date time.Time) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := ledger.Day(date).Format(dateLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, no, kind, note, created_at, updated_at FROM entries WHERE date = ? ORDER BY no`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	byID := make(map[ledger.EntryID]int)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		byID[e.ID] = len(entries)
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.queryLineItems(ctx, `WHERE e.date = ?`, day)
	if err != nil {
		return nil, err
	}
	for _, li := range items {
		if i, ok := byID[li.EntryID]; ok {
			entries[i].LineItems = append(entries[i].LineItems, li)
		}
	}
	return entries, nil
}

func (s *Store) SaveEntry(ctx context.Context, e *ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (id, date, no, kind, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			no = excluded.no,
			kind = excluded.kind,
			note = excluded.note,
			updated_at = excluded.updated_at`,
		e.ID, ledger.Day(e.Date).Format(dateLayout), e.No, string(e.Kind), e.Note,
		e.CreatedAt.UTC().Format(time.RFC3339), e.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}

	kept := make([]string, 0, len(e.LineItems))
	for _, li := range e.LineItems {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO line_items (id, entry_id, account_code, currency, is_debit, no, amount, description, original_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				entry_id = excluded.entry_id,
				account_code = excluded.account_code,
				currency = excluded.currency,
				is_debit = excluded.is_debit,
				no = excluded.no,
				amount = excluded.amount,
				description = excluded.description,
				original_id = excluded.original_id`,
			li.ID, e.ID, li.AccountCode, string(li.Currency), li.IsDebit, li.No,
			li.Amount.String(), li.Description, nullString(string(li.OriginalID)))
		if err != nil {
			return fmt.Errorf("failed to save line item: %w", err)
		}
		kept = append(kept, string(li.ID))
	}

	// Drop stored line items the edit removed.
	query := fmt.Sprintf(`DELETE FROM line_items WHERE entry_id = ? AND id NOT IN (%s)`,
		placeholders(len(kept)))
	args := make([]any, 0, len(kept)+1)
	args = append(args, e.ID)
	for _, id := range kept {
		args = append(args, id)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to prune line items: %w", err)
	}

	return tx.Commit()
}

func (s *Store) DeleteEntry(ctx context.Context, id ledger.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// ON DELETE CASCADE removes the line items with it.
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func (s *Store) LineItem(ctx context.Context, id ledger.LineItemID) (*ledger.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.queryLineItems(ctx, `WHERE li.id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *Store) FindLineItems(ctx context.Context, f ledger.Filter) ([]ledger.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conds []string
	var args []any

	if f.Account != "" {
		conds = append(conds, `li.account_code = ?`)
		args = append(args, f.Account)
	}
	if f.Currency != "" {
		conds = append(conds, `li.currency = ?`)
		args = append(args, string(f.Currency))
	}
	if f.IsDebit != nil {
		conds = append(conds, `li.is_debit = ?`)
		args = append(args, *f.IsDebit)
	}
	if f.Unoffset {
		conds = append(conds, `li.original_id IS NULL`)
	}
	if f.NeedsOffset {
		conds = append(conds, `li.account_code IN (SELECT code FROM accounts WHERE needs_offset = TRUE)`)
	}
	if len(f.OriginalIDs) > 0 {
		conds = append(conds, fmt.Sprintf(`li.original_id IN (%s)`, placeholders(len(f.OriginalIDs))))
		for _, id := range f.OriginalIDs {
			args = append(args, string(id))
		}
	}
	if f.From != nil {
		conds = append(conds, `e.date >= ?`)
		args = append(args, ledger.Day(*f.From).Format(dateLayout))
	}
	if f.To != nil {
		conds = append(conds, `e.date <= ?`)
		args = append(args, ledger.Day(*f.To).Format(dateLayout))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return s.queryLineItems(ctx, where, args...)
}

func (s *Store) OffsetsOf(ctx context.Context, id ledger.LineItemID) ([]ledger.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLineItems(ctx, `WHERE li.original_id = ?`, string(id))
}

// OffsetTotals fetches the offsets of all requested originals in one
// query and aggregates the signed applied totals exactly in Go.
func (s *Store) OffsetTotals(ctx context.Context, originalIDs []ledger.LineItemID, exclude []ledger.LineItemID) (map[ledger.LineItemID]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[ledger.LineItemID]decimal.Decimal)
	if len(originalIDs) == 0 {
		return totals, nil
	}

	query := fmt.Sprintf(`
		SELECT o.original_id, o.amount, o.is_debit, orig.is_debit
		FROM line_items o
		JOIN line_items orig ON orig.id = o.original_id
		WHERE o.original_id IN (%s)`, placeholders(len(originalIDs)))
	args := make([]any, 0, len(originalIDs)+len(exclude))
	for _, id := range originalIDs {
		args = append(args, string(id))
	}
	if len(exclude) > 0 {
		query += fmt.Sprintf(` AND o.id NOT IN (%s)`, placeholders(len(exclude)))
		for _, id := range exclude {
			args = append(args, string(id))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate offsets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var originalID, amountStr string
		var offsetDebit, originalDebit bool
		if err := rows.Scan(&originalID, &amountStr, &offsetDebit, &originalDebit); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amountStr, err)
		}
		if offsetDebit == originalDebit {
			amount = amount.Neg() // same-side reversal reopens the original
		}
		id := ledger.LineItemID(originalID)
		totals[id] = totals[id].Add(amount)
	}
	return totals, rows.Err()
}

func (s *Store) SetOffsetLink(ctx context.Context, offsetID, originalID ledger.LineItemID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Compare-and-set: only claim an offset nobody has linked yet.
	res, err := s.db.ExecContext(ctx,
		`UPDATE line_items SET original_id = ? WHERE id = ? AND original_id IS NULL`,
		string(originalID), string(offsetID))
	if err != nil {
		return false, fmt.Errorf("failed to set offset link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// ORDINALS
// =============================================================================

func (s *Store) SetEntryOrdinals(ctx context.Context, ordinals map[ledger.EntryID]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, no := range ordinals {
		if _, err := tx.ExecContext(ctx, `UPDATE entries SET no = ? WHERE id = ?`, no, string(id)); err != nil {
			return fmt.Errorf("failed to update entry ordinal: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) SetLineItemOrdinals(ctx context.Context, ordinals map[ledger.LineItemID]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, no := range ordinals {
		if _, err := tx.ExecContext(ctx, `UPDATE line_items SET no = ? WHERE id = ?`, no, string(id)); err != nil {
			return fmt.Errorf("failed to update line item ordinal: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// SCANNING
// =============================================================================

const lineItemSelect = `
	SELECT li.id, li.entry_id, li.account_code, li.currency, li.is_debit, li.no,
	       li.amount, li.description, COALESCE(li.original_id, ''), e.date, e.no
	FROM line_items li
	JOIN entries e ON e.id = li.entry_id
`

// queryLineItems runs the joined select with the given WHERE clause,
// always ordered by ledger position (date, entry no, debit first, no).
func (s *Store) queryLineItems(ctx context.Context, where string, args ...any) ([]ledger.LineItem, error) {
	query := lineItemSelect + where + `
		ORDER BY e.date, e.no, li.is_debit DESC, li.no`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var out []ledger.LineItem
	for rows.Next() {
		var li ledger.LineItem
		var amountStr, dateStr, currency, entryID, originalID string
		if err := rows.Scan(&li.ID, &entryID, &li.AccountCode, &currency, &li.IsDebit,
			&li.No, &amountStr, &li.Description, &originalID, &dateStr, &li.EntryNo); err != nil {
			return nil, err
		}
		li.EntryID = ledger.EntryID(entryID)
		li.Currency = ledger.Currency(currency)
		li.OriginalID = ledger.LineItemID(originalID)
		if li.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amountStr, err)
		}
		if li.EntryDate, err = time.ParseInLocation(dateLayout, dateStr, time.UTC); err != nil {
			return nil, fmt.Errorf("corrupt date %q: %w", dateStr, err)
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	var e ledger.Entry
	var dateStr, kind, createdStr, updatedStr string
	if err := row.Scan(&e.ID, &dateStr, &e.No, &kind, &e.Note, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	e.Kind = ledger.EntryKind(kind)
	var err error
	if e.Date, err = time.ParseInLocation(dateLayout, dateStr, time.UTC); err != nil {
		return nil, fmt.Errorf("corrupt date %q: %w", dateStr, err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return &e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func placeholders(n int) string {
	if n == 0 {
		return `''` // NOT IN ('') keeps the clause valid with no ids
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
