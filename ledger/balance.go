/*
balance.go - Net-balance calculation for originals

PURPOSE:
  Computes how much of a receivable/payable line item remains unsettled
  given the offsets recorded against it. This is the central calculation
  behind "which originals are still open" and behind every amount bound
  the validator enforces.

KEY INSIGHT:
  Net balance = original amount - applied total, where a normal
  (opposite-polarity) offset applies +amount and a rare same-polarity
  offset applies -amount. The same-polarity branch is a reversal: it
  reopens the original by its amount. See DESIGN.md for the product
  question around that branch.

EXCLUSION:
  The exclude set holds line items the caller is editing right now. Their
  stored values must not be counted, or the form would double-count the
  amounts the user is about to resubmit.

PURITY:
  Read-only. Safe to call any number of times within one validation pass.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Calculator computes net balances from the store.
type Calculator struct {
	store Store
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store}
}

// NetBalance returns the unsettled remainder of one original. A candidate
// with no offsets is fully open: its net balance equals its own amount.
func (c *Calculator) NetBalance(ctx context.Context, original LineItem, exclude []LineItemID) (decimal.Decimal, error) {
	balances, err := c.NetBalances(ctx, []LineItem{original}, exclude)
	if err != nil {
		return decimal.Zero, err
	}
	return balances[original.ID], nil
}

// NetBalances computes net balances for many originals in a single store
// round-trip. Listing pages showing dozens of candidates call this; one
// query per row is not acceptable.
func (c *Calculator) NetBalances(ctx context.Context, originals []LineItem, exclude []LineItemID) (map[LineItemID]decimal.Decimal, error) {
	ids := make([]LineItemID, len(originals))
	for i, o := range originals {
		ids[i] = o.ID
	}

	applied, err := c.store.OffsetTotals(ctx, ids, exclude)
	if err != nil {
		return nil, err
	}

	balances := make(map[LineItemID]decimal.Decimal, len(originals))
	for _, o := range originals {
		balances[o.ID] = o.Amount.Sub(applied[o.ID])
	}
	return balances, nil
}

// claimedTotal is the signed applied total against one original, i.e. the
// amount its offsets have already consumed.
func (c *Calculator) claimedTotal(ctx context.Context, id LineItemID, exclude []LineItemID) (decimal.Decimal, error) {
	totals, err := c.store.OffsetTotals(ctx, []LineItemID{id}, exclude)
	if err != nil {
		return decimal.Zero, err
	}
	return totals[id], nil
}

// OpenOriginal is a candidate original together with its net balance,
// ready for a listing page or the matcher.
type OpenOriginal struct {
	LineItem
	NetBalance decimal.Decimal
}

// OpenOriginals returns the still-open candidate originals of one
// account/currency pair: line items on the account's original polarity
// with no original reference of their own and a non-zero net balance.
// A candidate whose offsets leave exactly zero is closed and omitted.
func (c *Calculator) OpenOriginals(ctx context.Context, account Account, currency Currency, exclude []LineItemID) ([]OpenOriginal, error) {
	side := account.OriginalDebit()
	items, err := c.store.FindLineItems(ctx, Filter{
		Account:     account.Code,
		Currency:    currency,
		IsDebit:     &side,
		Unoffset:    true,
		NeedsOffset: true,
	})
	if err != nil {
		return nil, err
	}

	balances, err := c.NetBalances(ctx, items, exclude)
	if err != nil {
		return nil, err
	}

	var open []OpenOriginal
	for _, li := range items {
		if net := balances[li.ID]; !net.IsZero() {
			open = append(open, OpenOriginal{LineItem: li, NetBalance: net})
		}
	}
	return open, nil
}
