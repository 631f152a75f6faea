package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/ledger-engine/ledger"
)

// =============================================================================
// ENTRY-LEVEL RULES
// =============================================================================

func TestValidateEntry_ShapeRules(t *testing.T) {
	// GIVEN: An entry with no date, an unknown kind and no line items
	// WHEN: Validating
	// THEN: Each shape rule reports its own violation

	st := newTestStore(t)
	v := ledger.NewValidator(st)

	e := &ledger.Entry{Kind: "wire"}
	errs, err := v.ValidateEntry(context.Background(), e)
	require.NoError(t, err)

	assert.True(t, ledger.HasRule(errs, ledger.RuleExistence))
	assert.True(t, ledger.HasRule(errs, ledger.RuleKind))
}

func TestValidateEntry_UnbalancedCurrency_Rejected(t *testing.T) {
	// GIVEN: An entry whose USD debits exceed its credits
	// WHEN: Validating
	// THEN: The balance rule fires for that currency

	st := newTestStore(t)
	v := ledger.NewValidator(st)

	e := &ledger.Entry{
		Date: june(1),
		Kind: ledger.KindTransfer,
		LineItems: []ledger.LineItem{
			li("", accCash, true, "100", "Sale"),
			li("", accSales, false, "90", "Sale"),
		},
	}
	errs, err := v.ValidateEntry(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, ledger.HasRule(errs, ledger.RuleBalanced))
}

func TestValidateEntry_PrefixesLineItemFields(t *testing.T) {
	// GIVEN: An entry whose second line item has a non-positive amount
	// WHEN: Validating
	// THEN: The violation is addressed to line_items[1].amount

	st := newTestStore(t)
	v := ledger.NewValidator(st)

	e := &ledger.Entry{
		Date: june(1),
		Kind: ledger.KindTransfer,
		LineItems: []ledger.LineItem{
			li("", accCash, true, "0", "Zero"),
			li("", accSales, false, "0", "Zero"),
		},
	}
	errs, err := v.ValidateEntry(context.Background(), e)
	require.NoError(t, err)

	fields := make(map[string]bool)
	for _, ve := range errs {
		fields[ve.Field] = true
	}
	assert.True(t, fields["line_items[0].amount"])
	assert.True(t, fields["line_items[1].amount"])
}

// =============================================================================
// LINE-ITEM RULES
// =============================================================================

func TestValidateLineItem_BasicRules(t *testing.T) {
	st := newTestStore(t)
	v := ledger.NewValidator(st)
	ctx := context.Background()
	ec := ledger.EditContext{EntryDate: june(1)}

	t.Run("negative amount", func(t *testing.T) {
		item := li("", accCash, true, "-5", "")
		errs, err := v.ValidateLineItem(ctx, item, ec)
		require.NoError(t, err)
		assert.True(t, ledger.HasRule(errs, ledger.RulePositivity))
	})

	t.Run("bad currency", func(t *testing.T) {
		item := li("", accCash, true, "5", "")
		item.Currency = "usd"
		errs, err := v.ValidateLineItem(ctx, item, ec)
		require.NoError(t, err)
		assert.True(t, ledger.HasRule(errs, ledger.RuleCurrency))
	})

	t.Run("unknown account", func(t *testing.T) {
		item := li("", "9999", true, "5", "")
		errs, err := v.ValidateLineItem(ctx, item, ec)
		require.NoError(t, err)
		assert.True(t, ledger.HasRule(errs, ledger.RuleExistence))
	})
}

func TestValidateLineItem_SettlementSideWithoutOriginal_Rejected(t *testing.T) {
	// GIVEN: A credit on the receivable account with no original reference
	// WHEN: Validating
	// THEN: The polarity rule demands an original; the debit side passes

	st := newTestStore(t)
	v := ledger.NewValidator(st)
	ctx := context.Background()
	ec := ledger.EditContext{EntryDate: june(1)}

	unlinked := li("", accReceivable, false, "50", "Payment")
	errs, err := v.ValidateLineItem(ctx, unlinked, ec)
	require.NoError(t, err)
	assert.True(t, ledger.HasRule(errs, ledger.RulePolarity))

	original := li("", accReceivable, true, "50", "Invoice")
	errs, err = v.ValidateLineItem(ctx, original, ec)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

// =============================================================================
// OFFSET RULES
// =============================================================================

func TestValidateOffset_ReferenceRules(t *testing.T) {
	st := newTestStore(t)
	v := ledger.NewValidator(st)
	ctx := context.Background()

	saveEntry(t, st, "e1", june(5), 1,
		li("orig", accReceivable, true, "100", "Invoice"),
		li("rev", accSales, false, "100", "Invoice"))
	ec := ledger.EditContext{EntryDate: june(6)}

	t.Run("missing original", func(t *testing.T) {
		item := offsetOf(li("", accReceivable, false, "10", "x"), "ghost")
		errs, err := v.ValidateLineItem(ctx, item, ec)
		require.NoError(t, err)
		assert.True(t, ledger.HasRule(errs, ledger.RuleExistence))
	})

	t.Run("same side as original", func(t *testing.T) {
		item := offsetOf(li("", accReceivable, true, "10", "x"), "orig")
		errs, err := v.ValidateLineItem(ctx, item, ec)
		require.NoError(t, err)
		assert.True(t, ledger.HasRule(errs, ledger.RuleOppositeSide))
	})

	t.Run("different account", func(t *testing.T) {
		item := offsetOf(li("", accPayable, false, "10", "x"), "orig")
		errs, err := v.ValidateLineItem(ctx, item, ec)
		require.NoError(t, err)
		assert.True(t, ledger.HasRule(errs, ledger.RuleAccountContinuity))
	})

	t.Run("different currency", func(t *testing.T) {
		item := offsetOf(li("", accReceivable, false, "10", "x"), "orig")
		item.Currency = "EUR"
		errs, err := v.ValidateLineItem(ctx, item, ec)
		require.NoError(t, err)
		assert.True(t, ledger.HasRule(errs, ledger.RuleCurrency))
	})

	t.Run("entry dated before original", func(t *testing.T) {
		item := offsetOf(li("", accReceivable, false, "10", "x"), "orig")
		errs, err := v.ValidateLineItem(ctx, item, ledger.EditContext{EntryDate: june(4)})
		require.NoError(t, err)
		assert.True(t, ledger.HasRule(errs, ledger.RuleDateOrder))
	})
}

func TestValidateOffset_OriginalMustNotBeAnOffset(t *testing.T) {
	// GIVEN: A chain attempt: an offset referencing another offset
	// WHEN: Validating
	// THEN: Rejected; offsets reference only true originals

	st := newTestStore(t)
	v := ledger.NewValidator(st)
	ctx := context.Background()

	saveEntry(t, st, "e1", june(1), 1,
		li("orig", accReceivable, true, "100", "Invoice"),
		li("rev", accSales, false, "100", "Invoice"))
	saveEntry(t, st, "e2", june(2), 1,
		li("cash", accCash, true, "100", "Invoice"),
		offsetOf(li("settle", accReceivable, false, "100", "Invoice"), "orig"))

	item := offsetOf(li("", accReceivable, true, "100", "Invoice"), "settle")
	errs, err := v.ValidateLineItem(ctx, item, ledger.EditContext{EntryDate: june(3)})
	require.NoError(t, err)
	assert.True(t, ledger.HasRule(errs, ledger.RuleAlreadyOffset))
}

func TestValidateOffset_AmountCeiling(t *testing.T) {
	// GIVEN: An original of 100 already settled by 40
	// WHEN: Validating a new offset of 70, then one of 60
	// THEN: 70 exceeds the remaining balance and is rejected; 60 passes

	st := newTestStore(t)
	v := ledger.NewValidator(st)
	ctx := context.Background()

	saveEntry(t, st, "e1", june(1), 1,
		li("orig", accReceivable, true, "100", "Invoice"),
		li("rev", accSales, false, "100", "Invoice"))
	saveEntry(t, st, "e2", june(2), 1,
		li("cash", accCash, true, "40", "Invoice"),
		offsetOf(li("partial", accReceivable, false, "40", "Invoice"), "orig"))
	ec := ledger.EditContext{EntryDate: june(3)}

	tooMuch := offsetOf(li("", accReceivable, false, "70", "Invoice"), "orig")
	errs, err := v.ValidateLineItem(ctx, tooMuch, ec)
	require.NoError(t, err)
	assert.True(t, ledger.HasRule(errs, ledger.RuleAmountCeiling))

	exact := offsetOf(li("", accReceivable, false, "60", "Invoice"), "orig")
	errs, err = v.ValidateLineItem(ctx, exact, ec)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateOffset_CeilingExcludesOwnStoredValue(t *testing.T) {
	// GIVEN: A stored offset of 60 against an original of 100, being edited
	//        up to 100
	// WHEN: Validating with the offset itself in the exclude set
	// THEN: Its stored 60 does not count against the ceiling

	st := newTestStore(t)
	v := ledger.NewValidator(st)
	ctx := context.Background()

	saveEntry(t, st, "e1", june(1), 1,
		li("orig", accReceivable, true, "100", "Invoice"),
		li("rev", accSales, false, "100", "Invoice"))
	saveEntry(t, st, "e2", june(2), 1,
		li("cash", accCash, true, "60", "Invoice"),
		offsetOf(li("off", accReceivable, false, "60", "Invoice"), "orig"))

	edited := offsetOf(li("off", accReceivable, false, "100", "Invoice"), "orig")
	ec := ledger.EditContext{EntryDate: june(2), InProgress: []ledger.LineItemID{"off", "cash"}}
	errs, err := v.ValidateLineItem(ctx, edited, ec)
	require.NoError(t, err)
	assert.Empty(t, errs)

	// Without the exclusion the stored value double-counts and blocks.
	errs, err = v.ValidateLineItem(ctx, edited, ledger.EditContext{EntryDate: june(2)})
	require.NoError(t, err)
	assert.True(t, ledger.HasRule(errs, ledger.RuleAmountCeiling))
}

// =============================================================================
// ORIGINAL-PROTECTION RULES
// =============================================================================

func TestValidateOriginal_AmountFloor(t *testing.T) {
	// GIVEN: An original of 100 with 70 of offsets recorded against it
	// WHEN: Editing its amount to 50, then to 80
	// THEN: 50 violates the floor; 80 passes and leaves links untouched

	st := newTestStore(t)
	v := ledger.NewValidator(st)
	ctx := context.Background()

	saveEntry(t, st, "e1", june(1), 1,
		li("orig", accReceivable, true, "100", "Invoice"),
		li("rev", accSales, false, "100", "Invoice"))
	saveEntry(t, st, "e2", june(2), 1,
		li("cash", accCash, true, "70", "Invoice"),
		offsetOf(li("off", accReceivable, false, "70", "Invoice"), "orig"))
	ec := ledger.EditContext{EntryDate: june(1), InProgress: []ledger.LineItemID{"orig", "rev"}}

	shrunk := li("orig", accReceivable, true, "50", "Invoice")
	errs, err := v.ValidateLineItem(ctx, shrunk, ec)
	require.NoError(t, err)
	assert.True(t, ledger.HasRule(errs, ledger.RuleAmountFloor))

	grown := li("orig", accReceivable, true, "80", "Invoice")
	errs, err = v.ValidateLineItem(ctx, grown, ec)
	require.NoError(t, err)
	assert.Empty(t, errs)

	// The offset link survives either validation pass.
	off, err := st.LineItem(ctx, "off")
	require.NoError(t, err)
	assert.Equal(t, ledger.LineItemID("orig"), off.OriginalID)
}

func TestValidateOriginal_AccountFrozenWhileReferenced(t *testing.T) {
	// GIVEN: An original that existing offsets reference
	// WHEN: Editing it onto a different account
	// THEN: The account change is rejected

	st := newTestStore(t)
	v := ledger.NewValidator(st)
	ctx := context.Background()

	saveEntry(t, st, "e1", june(1), 1,
		li("orig", accReceivable, true, "100", "Invoice"),
		li("rev", accSales, false, "100", "Invoice"))
	saveEntry(t, st, "e2", june(2), 1,
		li("cash", accCash, true, "100", "Invoice"),
		offsetOf(li("off", accReceivable, false, "100", "Invoice"), "orig"))

	moved := li("orig", accExpense, true, "100", "Invoice")
	ec := ledger.EditContext{EntryDate: june(1), InProgress: []ledger.LineItemID{"orig", "rev"}}
	errs, err := v.ValidateLineItem(ctx, moved, ec)
	require.NoError(t, err)
	assert.True(t, ledger.HasRule(errs, ledger.RuleAccountContinuity))
}

func TestValidateOriginal_CannotMovePastItsOffsets(t *testing.T) {
	// GIVEN: An original dated June 1 with an offset dated June 3
	// WHEN: Moving the original's entry to June 5
	// THEN: Rejected; an original may never postdate its settlements

	st := newTestStore(t)
	v := ledger.NewValidator(st)
	ctx := context.Background()

	saveEntry(t, st, "e1", june(1), 1,
		li("orig", accReceivable, true, "100", "Invoice"),
		li("rev", accSales, false, "100", "Invoice"))
	saveEntry(t, st, "e2", june(3), 1,
		li("cash", accCash, true, "100", "Invoice"),
		offsetOf(li("off", accReceivable, false, "100", "Invoice"), "orig"))

	item := li("orig", accReceivable, true, "100", "Invoice")
	errs, err := v.ValidateLineItem(ctx, item, ledger.EditContext{
		EntryDate:  june(5),
		InProgress: []ledger.LineItemID{"orig", "rev"},
	})
	require.NoError(t, err)
	assert.True(t, ledger.HasRule(errs, ledger.RuleDateOrder))

	errs, err = v.ValidateLineItem(ctx, item, ledger.EditContext{
		EntryDate:  june(3),
		InProgress: []ledger.LineItemID{"orig", "rev"},
	})
	require.NoError(t, err)
	assert.Empty(t, errs)
}
