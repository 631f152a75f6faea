/*
Package ledger is the core double-entry bookkeeping engine.

PURPOSE:
  This package contains the data model and algorithms that keep a mutable
  ledger internally consistent: net-balance computation for receivable and
  payable line items, the automatic offset matcher that reconciles
  settlements against their originals, the edit-time invariant validator,
  and the ordinal sequence maintainer.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: a chart-of-accounts node; its base type decides debit/credit
    polarity and whether its line items carry open/settled semantics
  - Entry: a dated, numbered, balanced group of line items (a voucher)
  - LineItem: one debit or credit row; may reference an earlier line item
    as its "original", making it an offset (settlement) of that original
  - Position: the total chronological order used everywhere ties matter

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every amount, never float
  2. Purity: nothing in this package talks to the network or mutates
     global state; the Store interface is the only side-effect boundary
  3. Determinism: all ordering is total (date, entry no, side, line no)

SEE ALSO:
  - balance.go: net-balance calculation over offsets
  - matcher.go: automatic offset matching
  - validate.go: edit-time invariant rules
  - sequence.go: ordinal maintenance
  - service.go: entry create/update/delete orchestration
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT - Chart-of-accounts node
// =============================================================================

// AccountBase classifies an account's nature, which fixes its normal
// (original) polarity: assets and expenses increase on the debit side,
// liabilities, equity and income on the credit side.
type AccountBase string

const (
	BaseAsset     AccountBase = "asset"
	BaseLiability AccountBase = "liability"
	BaseEquity    AccountBase = "equity"
	BaseIncome    AccountBase = "income"
	BaseExpense   AccountBase = "expense"
)

// Account is identified by its code. NeedsOffset marks receivable-like
// asset accounts and payable-like liability accounts whose line items
// participate in open/settled tracking.
type Account struct {
	Code        string
	Title       string
	Base        AccountBase
	NeedsOffset bool
}

// OriginalDebit reports the polarity an original line item takes in this
// account: true (debit) for receivables, false (credit) for payables.
func (a Account) OriginalDebit() bool {
	return a.Base == BaseAsset || a.Base == BaseExpense
}

// SettlementDebit reports the polarity that settles an original in this
// account: the opposite of OriginalDebit.
func (a Account) SettlementDebit() bool {
	return !a.OriginalDebit()
}

// =============================================================================
// CURRENCY
// =============================================================================

// Currency is a 3-letter code. It scopes every amount comparison: offsets
// only ever match within the same currency.
type Currency string

// Valid reports whether the code is three ASCII uppercase letters.
func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID string
type LineItemID string

// =============================================================================
// ENTRY KIND - Closed tagged variant
// =============================================================================

// EntryKind selects how an entry's line items are shaped. Cash kinds
// (receipt, disbursement) state only one side; the cash counterpart on the
// other side is synthesized by the entry service.
type EntryKind string

const (
	KindTransfer     EntryKind = "transfer"
	KindReceipt      EntryKind = "receipt"
	KindDisbursement EntryKind = "disbursement"
)

// Valid reports whether k is one of the closed set of kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case KindTransfer, KindReceipt, KindDisbursement:
		return true
	}
	return false
}

// SynthesizedDebit returns the side of the synthesized cash counterpart
// and whether this kind synthesizes one at all. A receipt states credits
// and synthesizes the cash debit; a disbursement states debits and
// synthesizes the cash credit.
func (k EntryKind) SynthesizedDebit() (isDebit, ok bool) {
	switch k {
	case KindReceipt:
		return true, true
	case KindDisbursement:
		return false, true
	}
	return false, false
}

// =============================================================================
// ENTRY - Journal entry / voucher
// =============================================================================

// Entry is a dated, numbered container of line items. No is the dense,
// 1-based ordinal of the entry within its date.
type Entry struct {
	ID        EntryID
	Date      time.Time // normalized to midnight UTC
	No        int
	Kind      EntryKind
	Note      string
	LineItems []LineItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Currencies returns the distinct currencies present, in first-seen order.
func (e *Entry) Currencies() []Currency {
	seen := make(map[Currency]bool)
	var out []Currency
	for _, li := range e.LineItems {
		if !seen[li.Currency] {
			seen[li.Currency] = true
			out = append(out, li.Currency)
		}
	}
	return out
}

// DebitTotal sums the debit side for one currency.
func (e *Entry) DebitTotal(c Currency) decimal.Decimal {
	return e.sideTotal(c, true)
}

// CreditTotal sums the credit side for one currency.
func (e *Entry) CreditTotal(c Currency) decimal.Decimal {
	return e.sideTotal(c, false)
}

func (e *Entry) sideTotal(c Currency, isDebit bool) decimal.Decimal {
	total := decimal.Zero
	for _, li := range e.LineItems {
		if li.Currency == c && li.IsDebit == isDebit {
			total = total.Add(li.Amount)
		}
	}
	return total
}

// Balanced reports whether debits equal credits for every currency.
func (e *Entry) Balanced() bool {
	for _, c := range e.Currencies() {
		if !e.DebitTotal(c).Equal(e.CreditTotal(c)) {
			return false
		}
	}
	return true
}

// LineItem returns the entry's line item with the given id, or nil.
func (e *Entry) LineItem(id LineItemID) *LineItem {
	for i := range e.LineItems {
		if e.LineItems[i].ID == id {
			return &e.LineItems[i]
		}
	}
	return nil
}

// =============================================================================
// LINE ITEM - Atomic unit of the ledger
// =============================================================================

// LineItem is one debit or credit row of an entry. A line item with an
// empty OriginalID in a needs-offset account is a candidate original; one
// with OriginalID set is an offset (settlement) of that original.
//
// EntryDate and EntryNo are denormalized from the owning entry on reads so
// chronological comparison never needs a second lookup. Stores populate
// them; callers building line items by hand may leave them zero.
type LineItem struct {
	ID          LineItemID
	EntryID     EntryID
	AccountCode string
	Currency    Currency
	IsDebit     bool
	No          int // dense 1-based ordinal within entry+currency+side
	Amount      decimal.Decimal
	Description string
	OriginalID  LineItemID // empty = not an offset

	EntryDate time.Time
	EntryNo   int
}

// IsOffset reports whether the line item settles an earlier original.
func (li LineItem) IsOffset() bool { return li.OriginalID != "" }

// Position returns the line item's place in the total ledger order.
func (li LineItem) Position() Position {
	return Position{Date: li.EntryDate, EntryNo: li.EntryNo, IsDebit: li.IsDebit, No: li.No}
}

// =============================================================================
// POSITION - Total chronological order
// =============================================================================

// Position orders line items by (entry date, entry ordinal, debit before
// credit, line-item ordinal). The matcher and the validator both depend on
// this order being total and stable.
type Position struct {
	Date    time.Time
	EntryNo int
	IsDebit bool
	No      int
}

// Less reports whether p sorts strictly before q.
func (p Position) Less(q Position) bool {
	if !SameDay(p.Date, q.Date) {
		return p.Date.Before(q.Date)
	}
	if p.EntryNo != q.EntryNo {
		return p.EntryNo < q.EntryNo
	}
	if p.IsDebit != q.IsDebit {
		return p.IsDebit // debit sorts first
	}
	return p.No < q.No
}

// NotEarlierEntry reports whether p's entry is on a later date than q's,
// or on the same date with a later-or-equal entry ordinal. This is the
// "no retroactive settlement" causality check used by the matcher.
func (p Position) NotEarlierEntry(q Position) bool {
	if SameDay(p.Date, q.Date) {
		return p.EntryNo >= q.EntryNo
	}
	return p.Date.After(q.Date)
}

// =============================================================================
// DATE HELPERS
// =============================================================================

// Day normalizes t to midnight UTC. Entry dates are always day-granular.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDate builds a day-granular date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day (UTC).
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
