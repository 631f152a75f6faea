package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/ledger-engine/ledger"
)

// =============================================================================
// ENTRY ORDINALS
// =============================================================================

func TestSequencer_NextEntryNo(t *testing.T) {
	// GIVEN: A date with two entries numbered 1 and 2
	// THEN: The next ordinal is 3; an empty date starts at 1

	st := newTestStore(t)
	ctx := context.Background()
	seq := ledger.NewSequencer(st)

	saveEntry(t, st, "e1", june(1), 1,
		li("a", accCash, true, "10", ""), li("b", accSales, false, "10", ""))
	saveEntry(t, st, "e2", june(1), 2,
		li("c", accCash, true, "10", ""), li("d", accSales, false, "10", ""))

	no, err := seq.NextEntryNo(ctx, june(1))
	require.NoError(t, err)
	assert.Equal(t, 3, no)

	no, err = seq.NextEntryNo(ctx, june(9))
	require.NoError(t, err)
	assert.Equal(t, 1, no)
}

func TestSequencer_CompactDate_ClosesHoles(t *testing.T) {
	// GIVEN: A date whose middle entry was deleted, leaving ordinals 1 and 3
	// WHEN: Compacting
	// THEN: Ordinals are dense again: 1 and 2

	st := newTestStore(t)
	ctx := context.Background()
	seq := ledger.NewSequencer(st)

	saveEntry(t, st, "e1", june(1), 1,
		li("a", accCash, true, "10", ""), li("b", accSales, false, "10", ""))
	saveEntry(t, st, "e3", june(1), 3,
		li("e", accCash, true, "10", ""), li("f", accSales, false, "10", ""))

	require.NoError(t, seq.CompactDate(ctx, june(1)))

	entries, err := st.EntriesOn(ctx, june(1))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].No)
	assert.Equal(t, 2, entries[1].No)
	assert.Equal(t, ledger.EntryID("e3"), entries[1].ID)
}

func TestSequencer_PlaceOnDate_AppendsWhenIndependent(t *testing.T) {
	// GIVEN: A date holding one unrelated entry
	// WHEN: Placing a moved entry onto it
	// THEN: The moved entry is appended at the end

	st := newTestStore(t)
	ctx := context.Background()
	seq := ledger.NewSequencer(st)

	saveEntry(t, st, "resident", june(2), 1,
		li("a", accCash, true, "10", ""), li("b", accSales, false, "10", ""))

	moved := &ledger.Entry{ID: "moved", Date: june(2), LineItems: []ledger.LineItem{
		li("m1", accCash, true, "5", ""), li("m2", accSales, false, "5", ""),
	}}
	shifts, err := seq.PlaceOnDate(ctx, moved, june(2))
	require.NoError(t, err)
	assert.Empty(t, shifts)
	assert.Equal(t, 2, moved.No)
}

func TestSequencer_PlaceOnDate_InsertsFirstWhenOffsetsDependOnIt(t *testing.T) {
	// GIVEN: The target date already holds an entry offsetting one of the
	//        moved entry's line items
	// WHEN: Placing the moved entry onto that date
	// THEN: It takes ordinal 1 and the dependent entry's shift to 2 is
	//       returned without being written; nothing moves until the
	//       caller persists it

	st := newTestStore(t)
	ctx := context.Background()
	seq := ledger.NewSequencer(st)

	saveEntry(t, st, "orig-entry", june(1), 1,
		li("orig", accReceivable, true, "100", "Invoice"),
		li("rev", accSales, false, "100", "Invoice"))
	saveEntry(t, st, "settling", june(2), 1,
		li("cash", accCash, true, "100", "Invoice"),
		offsetOf(li("off", accReceivable, false, "100", "Invoice"), "orig"))

	moved := &ledger.Entry{ID: "orig-entry", Date: june(2), LineItems: []ledger.LineItem{
		li("orig", accReceivable, true, "100", "Invoice"),
		li("rev", accSales, false, "100", "Invoice"),
	}}
	shifts, err := seq.PlaceOnDate(ctx, moved, june(2))
	require.NoError(t, err)
	assert.Equal(t, 1, moved.No)
	assert.Equal(t, map[ledger.EntryID]int{"settling": 2}, shifts)

	settling, err := st.Entry(ctx, "settling")
	require.NoError(t, err)
	assert.Equal(t, 1, settling.No)

	require.NoError(t, st.SetEntryOrdinals(ctx, shifts))
	settling, err = st.Entry(ctx, "settling")
	require.NoError(t, err)
	assert.Equal(t, 2, settling.No)
}

// =============================================================================
// MANUAL REORDER
// =============================================================================

func TestSequencer_ReorderEntries_ProposalsWinRestFollow(t *testing.T) {
	// GIVEN: Entries 1..3 on one date and a proposal covering only e3
	// WHEN: Reordering with e3 proposed first
	// THEN: e3 leads; e1 and e2 follow in their pre-existing order

	st := newTestStore(t)
	ctx := context.Background()
	seq := ledger.NewSequencer(st)

	for i, id := range []string{"e1", "e2", "e3"} {
		saveEntry(t, st, id, june(1), i+1,
			li(id+"-d", accCash, true, "10", ""), li(id+"-c", accSales, false, "10", ""))
	}

	changed, err := seq.ReorderEntries(ctx, june(1), map[ledger.EntryID]int{"e3": 1})
	require.NoError(t, err)
	assert.True(t, changed)

	entries, err := st.EntriesOn(ctx, june(1))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.EntryID("e3"), entries[0].ID)
	assert.Equal(t, ledger.EntryID("e1"), entries[1].ID)
	assert.Equal(t, ledger.EntryID("e2"), entries[2].ID)
}

func TestSequencer_ReorderEntries_UnknownIDsIgnored(t *testing.T) {
	// GIVEN: A proposal referencing an entry from another date
	// WHEN: Reordering
	// THEN: The foreign id is ignored and nothing moves

	st := newTestStore(t)
	ctx := context.Background()
	seq := ledger.NewSequencer(st)

	saveEntry(t, st, "e1", june(1), 1,
		li("a", accCash, true, "10", ""), li("b", accSales, false, "10", ""))
	saveEntry(t, st, "other", june(2), 1,
		li("c", accCash, true, "10", ""), li("d", accSales, false, "10", ""))

	changed, err := seq.ReorderEntries(ctx, june(1), map[ledger.EntryID]int{"other": 1})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSequencer_ReorderLineItems_ScopedToCurrencyAndSide(t *testing.T) {
	// GIVEN: An entry with two debits and one credit
	// WHEN: Reordering the debit side only
	// THEN: Debit ordinals swap; the credit side is untouched

	st := newTestStore(t)
	ctx := context.Background()
	seq := ledger.NewSequencer(st)

	saveEntry(t, st, "e1", june(1), 1,
		li("d1", accCash, true, "10", ""),
		li("d2", accExpense, true, "20", ""),
		li("c1", accSales, false, "30", ""))

	changed, err := seq.ReorderLineItems(ctx, "e1", "USD", true, map[ledger.LineItemID]int{"d2": 1, "d1": 2})
	require.NoError(t, err)
	assert.True(t, changed)

	e, err := st.Entry(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, e.LineItem("d2").No)
	assert.Equal(t, 2, e.LineItem("d1").No)
	assert.Equal(t, 1, e.LineItem("c1").No)
}

func TestSequencer_ReorderLineItems_MissingEntry(t *testing.T) {
	st := newTestStore(t)
	seq := ledger.NewSequencer(st)

	_, err := seq.ReorderLineItems(context.Background(), "ghost", "USD", true, nil)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

// =============================================================================
// LINE-ITEM NUMBERING
// =============================================================================

func TestNumberLineItems_DensePerCurrencyAndSide(t *testing.T) {
	// GIVEN: Line items mixing currencies and sides in one entry
	// WHEN: Numbering
	// THEN: Each currency+side scope counts from 1 independently

	eur := func(item ledger.LineItem) ledger.LineItem {
		item.Currency = "EUR"
		return item
	}
	e := &ledger.Entry{LineItems: []ledger.LineItem{
		li("ud1", accCash, true, "10", ""),
		li("uc1", accSales, false, "10", ""),
		li("ud2", accExpense, true, "5", ""),
		eur(li("ed1", accCash, true, "7", "")),
		li("uc2", accSales, false, "5", ""),
	}}
	ledger.NumberLineItems(e)

	nos := make(map[ledger.LineItemID]int)
	for _, item := range e.LineItems {
		nos[item.ID] = item.No
	}
	assert.Equal(t, 1, nos["ud1"])
	assert.Equal(t, 2, nos["ud2"])
	assert.Equal(t, 1, nos["uc1"])
	assert.Equal(t, 2, nos["uc2"])
	assert.Equal(t, 1, nos["ed1"])
}
