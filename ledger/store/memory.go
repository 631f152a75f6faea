// Package store provides an in-memory ledger.Store for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quillbooks/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory holds the whole ledger in maps behind a RWMutex. Every read
// hands out deep copies so callers can never alias internal state.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]ledger.Account
	entries  map[ledger.EntryID]*ledger.Entry
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]ledger.Account),
		entries:  make(map[ledger.EntryID]*ledger.Entry),
	}
}

var _ ledger.Store = (*Memory)(nil)

// --- chart of accounts ---

func (m *Memory) Account(_ context.Context, code string) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[code]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) Accounts(_ context.Context) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) SaveAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Code] = a
	return nil
}

// --- entries ---

func (m *Memory) Entry(_ context.Context, id ledger.EntryID) (*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	c := cloneEntry(e)
	return &c, nil
}

func (m *Memory) EntriesOn(_ context.Context, date time.Time) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range m.entries {
		if ledger.SameDay(e.Date, date) {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].No < out[j].No })
	return out, nil
}

func (m *Memory) SaveEntry(_ context.Context, e *ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cloneEntry(e)
	normalize(&c)
	m.entries[c.ID] = &c
	return nil
}

func (m *Memory) DeleteEntry(_ context.Context, id ledger.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// --- line items ---

func (m *Memory) LineItem(_ context.Context, id ledger.LineItemID) (*ledger.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		for _, li := range e.LineItems {
			if li.ID == id {
				c := li
				return &c, nil
			}
		}
	}
	return nil, nil
}

func (m *Memory) FindLineItems(_ context.Context, f ledger.Filter) ([]ledger.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.LineItem
	for _, e := range m.entries {
		for _, li := range e.LineItems {
			if m.matches(li, f) {
				out = append(out, li)
			}
		}
	}
	sortByPosition(out)
	return out, nil
}

func (m *Memory) matches(li ledger.LineItem, f ledger.Filter) bool {
	if f.Account != "" && li.AccountCode != f.Account {
		return false
	}
	if f.Currency != "" && li.Currency != f.Currency {
		return false
	}
	if f.IsDebit != nil && li.IsDebit != *f.IsDebit {
		return false
	}
	if f.Unoffset && li.IsOffset() {
		return false
	}
	if f.NeedsOffset {
		a, ok := m.accounts[li.AccountCode]
		if !ok || !a.NeedsOffset {
			return false
		}
	}
	if len(f.OriginalIDs) > 0 {
		found := false
		for _, id := range f.OriginalIDs {
			if li.OriginalID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && ledger.Day(li.EntryDate).Before(ledger.Day(*f.From)) {
		return false
	}
	if f.To != nil && ledger.Day(li.EntryDate).After(ledger.Day(*f.To)) {
		return false
	}
	return true
}

func (m *Memory) OffsetsOf(_ context.Context, id ledger.LineItemID) ([]ledger.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.LineItem
	for _, e := range m.entries {
		for _, li := range e.LineItems {
			if li.OriginalID == id {
				out = append(out, li)
			}
		}
	}
	sortByPosition(out)
	return out, nil
}

func (m *Memory) OffsetTotals(_ context.Context, originalIDs []ledger.LineItemID, exclude []ledger.LineItemID) (map[ledger.LineItemID]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[ledger.LineItemID]bool, len(originalIDs))
	for _, id := range originalIDs {
		wanted[id] = true
	}
	skip := make(map[ledger.LineItemID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	polarity := make(map[ledger.LineItemID]bool, len(originalIDs))
	for _, e := range m.entries {
		for _, li := range e.LineItems {
			if wanted[li.ID] {
				polarity[li.ID] = li.IsDebit
			}
		}
	}

	totals := make(map[ledger.LineItemID]decimal.Decimal)
	for _, e := range m.entries {
		for _, li := range e.LineItems {
			if !wanted[li.OriginalID] || skip[li.ID] {
				continue
			}
			signed := li.Amount
			if li.IsDebit == polarity[li.OriginalID] {
				signed = signed.Neg() // same-side reversal reopens the original
			}
			totals[li.OriginalID] = totals[li.OriginalID].Add(signed)
		}
	}
	return totals, nil
}

func (m *Memory) SetOffsetLink(_ context.Context, offsetID, originalID ledger.LineItemID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		for i := range e.LineItems {
			if e.LineItems[i].ID != offsetID {
				continue
			}
			if e.LineItems[i].OriginalID != "" {
				return false, nil // already claimed
			}
			e.LineItems[i].OriginalID = originalID
			return true, nil
		}
	}
	return false, nil
}

// --- ordinals ---

func (m *Memory) SetEntryOrdinals(_ context.Context, ordinals map[ledger.EntryID]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, no := range ordinals {
		if e, ok := m.entries[id]; ok {
			e.No = no
			for i := range e.LineItems {
				e.LineItems[i].EntryNo = no
			}
		}
	}
	return nil
}

func (m *Memory) SetLineItemOrdinals(_ context.Context, ordinals map[ledger.LineItemID]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		for i := range e.LineItems {
			if no, ok := ordinals[e.LineItems[i].ID]; ok {
				e.LineItems[i].No = no
			}
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func cloneEntry(e *ledger.Entry) ledger.Entry {
	c := *e
	c.LineItems = append([]ledger.LineItem(nil), e.LineItems...)
	return c
}

// normalize keeps the denormalized position fields on line items in step
// with the owning entry, the way the SQL store's read join would.
func normalize(e *ledger.Entry) {
	for i := range e.LineItems {
		e.LineItems[i].EntryID = e.ID
		e.LineItems[i].EntryDate = ledger.Day(e.Date)
		e.LineItems[i].EntryNo = e.No
	}
	e.Date = ledger.Day(e.Date)
}

func sortByPosition(items []ledger.LineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Position().Less(items[j].Position())
	})
}
