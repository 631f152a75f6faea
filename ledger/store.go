/*
store.go - Persistence interface for entries, line items and accounts

PURPOSE:
  Defines the contract between the engine and the database. The engine
  never specifies SQL; it only requires filtered line-item queries and a
  handful of transactional writes. Two implementations exist:
  - ledger/store (memory.go): in-memory, for tests and dev
  - store/sqlite: production SQLite

TRANSACTIONALITY:
  Each write method is atomic on its own: SaveEntry persists the entry and
  all of its line items together or not at all, and DeleteEntry removes
  both together. That is the full transaction boundary the engine needs -
  every user action maps to a single write call.

CONCURRENCY:
  SetOffsetLink is compare-and-set: it writes the link only while the
  offset's original reference is still empty, and reports whether it won.
  This is the only realistic race in a single-operator system: a match
  proposed by one run being claimed by another before Apply.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTER - Line-item query predicate
// =============================================================================

// Filter selects line items. Zero-valued fields are ignored. Results are
// always returned in ascending Position order with EntryDate and EntryNo
// populated.
type Filter struct {
	Account     string
	Currency    Currency
	IsDebit     *bool
	Unoffset    bool // only items whose OriginalID is empty
	NeedsOffset bool // only items in needs-offset accounts
	OriginalIDs []LineItemID
	From        *time.Time // entry date >= From (day granular)
	To          *time.Time // entry date <= To
}

// =============================================================================
// STORE - Interface consumed by the engine
// =============================================================================

// Store handles persistence of the ledger. Lookup methods return
// (nil, nil) when the record does not exist.
type Store interface {
	// --- chart of accounts ---

	Account(ctx context.Context, code string) (*Account, error)
	Accounts(ctx context.Context) ([]Account, error)
	SaveAccount(ctx context.Context, a Account) error

	// --- entries ---

	// Entry returns the entry with its line items in ordinal order.
	Entry(ctx context.Context, id EntryID) (*Entry, error)

	// EntriesOn returns all entries dated on the given day, ordered by
	// their ordinal, with line items loaded.
	EntriesOn(ctx context.Context, date time.Time) ([]Entry, error)

	// SaveEntry upserts the entry and its line items atomically. Stored
	// line items absent from e.LineItems are deleted.
	SaveEntry(ctx context.Context, e *Entry) error

	// DeleteEntry removes the entry and its line items atomically.
	DeleteEntry(ctx context.Context, id EntryID) error

	// --- line items ---

	LineItem(ctx context.Context, id LineItemID) (*LineItem, error)
	FindLineItems(ctx context.Context, f Filter) ([]LineItem, error)

	// OffsetsOf returns the line items that reference id as their
	// original, in ascending Position order.
	OffsetsOf(ctx context.Context, id LineItemID) ([]LineItem, error)

	// OffsetTotals aggregates, in one round-trip, the signed applied
	// total per original: each offset contributes +amount when its
	// polarity opposes the original's (normal settlement) and -amount
	// when it matches (reversal). Offsets whose id is in exclude are
	// skipped. The result contains a key (possibly zero-valued) for
	// every original that has at least one non-excluded offset; originals
	// with none are absent.
	OffsetTotals(ctx context.Context, originalIDs []LineItemID, exclude []LineItemID) (map[LineItemID]decimal.Decimal, error)

	// SetOffsetLink writes offset.OriginalID = originalID if and only if
	// the offset's original reference is still empty. Returns whether
	// the link was written.
	SetOffsetLink(ctx context.Context, offsetID, originalID LineItemID) (bool, error)

	// --- ordinals ---

	SetEntryOrdinals(ctx context.Context, ordinals map[EntryID]int) error
	SetLineItemOrdinals(ctx context.Context, ordinals map[LineItemID]int) error
}
