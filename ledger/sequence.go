/*
sequence.go - Ordinal ("no") maintenance

PURPOSE:
  Keeps the dense, 1-based ordinals that make ledger ordering
  deterministic: one sequence per date for entries, one per
  entry+currency+side for line items. The matcher and the validator both
  compare positions, so gaps or duplicates here would make their output
  nondeterministic.

RULES:
  - insert: new item gets max(existing)+1
  - delete: everything after the hole shifts down (no gaps)
  - date move: removed from the old date's sequence, appended to the new
    date's end - unless entries on the new date depend on the moved entry
    as an original, in which case it is inserted first so causality
    holds; the shifts are computed here but persisted by the caller,
    after validation
  - manual reorder: client-proposed ordinals win, items without a valid
    proposal keep their relative order after all proposed ones, and the
    result is renumbered densely from 1
*/
package ledger

import (
	"context"
	"sort"
	"time"
)

// Sequencer assigns and repairs ordinals.
type Sequencer struct {
	store Store
}

func NewSequencer(store Store) *Sequencer {
	return &Sequencer{store: store}
}

// NextEntryNo returns the ordinal a new entry takes on the given date.
func (s *Sequencer) NextEntryNo(ctx context.Context, date time.Time) (int, error) {
	entries, err := s.store.EntriesOn(ctx, date)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, e := range entries {
		if e.No > max {
			max = e.No
		}
	}
	return max + 1, nil
}

// PlaceOnDate assigns e.No for an insert or date move onto date. The
// entry normally goes to the end; if any entry already on the date
// offsets one of e's line items, e must sort before it, so e takes
// ordinal 1 and the existing sequence shifts up. Nothing is written:
// the returned map holds the ordinal shifts the caller persists once
// the whole edit has passed validation, so a rejected edit leaves the
// date's sequence untouched.
func (s *Sequencer) PlaceOnDate(ctx context.Context, e *Entry, date time.Time) (map[EntryID]int, error) {
	entries, err := s.store.EntriesOn(ctx, date)
	if err != nil {
		return nil, err
	}

	ids := make(map[LineItemID]bool, len(e.LineItems))
	for _, li := range e.LineItems {
		ids[li.ID] = true
	}

	dependent := false
	for _, other := range entries {
		if other.ID == e.ID {
			continue
		}
		for _, li := range other.LineItems {
			if li.IsOffset() && ids[li.OriginalID] {
				dependent = true
				break
			}
		}
	}

	if !dependent {
		max := 0
		for _, other := range entries {
			if other.ID != e.ID && other.No > max {
				max = other.No
			}
		}
		e.No = max + 1
		return nil, nil
	}

	e.No = 1
	shifted := make(map[EntryID]int)
	next := 2
	for _, other := range entries {
		if other.ID == e.ID {
			continue
		}
		if other.No != next {
			shifted[other.ID] = next
		}
		next++
	}
	if len(shifted) == 0 {
		return nil, nil
	}
	return shifted, nil
}

// CompactDate renumbers a date's entries densely from 1, repairing the
// hole a removal or move leaves behind.
func (s *Sequencer) CompactDate(ctx context.Context, date time.Time) error {
	entries, err := s.store.EntriesOn(ctx, date)
	if err != nil {
		return err
	}
	changed := make(map[EntryID]int)
	for i, e := range entries {
		if e.No != i+1 {
			changed[e.ID] = i + 1
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return s.store.SetEntryOrdinals(ctx, changed)
}

// ReorderEntries applies client-proposed ordinals to one date's entries.
// Entries missing from the proposal are appended after all proposed ones
// in their pre-existing relative order; the final sequence is renumbered
// densely from 1. Returns whether anything moved.
func (s *Sequencer) ReorderEntries(ctx context.Context, date time.Time, proposed map[EntryID]int) (bool, error) {
	entries, err := s.store.EntriesOn(ctx, date)
	if err != nil {
		return false, err
	}

	current := make([]string, len(entries))
	nos := make([]int, len(entries))
	for i, e := range entries {
		current[i] = string(e.ID)
		nos[i] = e.No
	}
	props := make(map[string]int, len(proposed))
	for id, no := range proposed {
		props[string(id)] = no
	}

	_, changedIdx := reorder(current, nos, props)
	if len(changedIdx) == 0 {
		return false, nil
	}
	changed := make(map[EntryID]int, len(changedIdx))
	for id, no := range changedIdx {
		changed[EntryID(id)] = no
	}
	return true, s.store.SetEntryOrdinals(ctx, changed)
}

// ReorderLineItems does the same within one entry+currency+side.
func (s *Sequencer) ReorderLineItems(ctx context.Context, entryID EntryID, currency Currency, isDebit bool, proposed map[LineItemID]int) (bool, error) {
	entry, err := s.store.Entry(ctx, entryID)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, ErrEntryNotFound
	}

	var items []LineItem
	for _, li := range entry.LineItems {
		if li.Currency == currency && li.IsDebit == isDebit {
			items = append(items, li)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].No < items[j].No })

	current := make([]string, len(items))
	nos := make([]int, len(items))
	for i, li := range items {
		current[i] = string(li.ID)
		nos[i] = li.No
	}
	props := make(map[string]int, len(proposed))
	for id, no := range proposed {
		props[string(id)] = no
	}

	_, changedIdx := reorder(current, nos, props)
	if len(changedIdx) == 0 {
		return false, nil
	}
	changed := make(map[LineItemID]int, len(changedIdx))
	for id, no := range changedIdx {
		changed[LineItemID(id)] = no
	}
	return true, s.store.SetLineItemOrdinals(ctx, changed)
}

// reorder computes the new dense ordering for a list of ids currently
// holding the given ordinals. Ids with a proposal sort by proposed value
// (stable on their current position); the rest follow in current order.
// Returns the final order and the map of ids whose ordinal changed.
func reorder(ids []string, nos []int, proposed map[string]int) ([]string, map[string]int) {
	type slot struct {
		id  string
		idx int
		no  int
	}
	var picked, rest []slot
	for i, id := range ids {
		if no, ok := proposed[id]; ok {
			picked = append(picked, slot{id: id, idx: i, no: no})
		} else {
			rest = append(rest, slot{id: id, idx: i})
		}
	}
	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].no != picked[j].no {
			return picked[i].no < picked[j].no
		}
		return picked[i].idx < picked[j].idx
	})

	final := make([]string, 0, len(ids))
	for _, s := range picked {
		final = append(final, s.id)
	}
	for _, s := range rest {
		final = append(final, s.id)
	}

	currentNo := make(map[string]int, len(ids))
	for i, id := range ids {
		currentNo[id] = nos[i]
	}
	changed := make(map[string]int)
	for i, id := range final {
		if currentNo[id] != i+1 {
			changed[id] = i + 1
		}
	}
	return final, changed
}

// NumberLineItems assigns dense 1-based ordinals to an entry's line items
// per currency+side, preserving their slice order. Called by the entry
// service before save.
func NumberLineItems(e *Entry) {
	type scope struct {
		c Currency
		d bool
	}
	next := make(map[scope]int)
	for i := range e.LineItems {
		k := scope{c: e.LineItems[i].Currency, d: e.LineItems[i].IsDebit}
		next[k]++
		e.LineItems[i].No = next[k]
	}
}
