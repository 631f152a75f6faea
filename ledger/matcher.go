/*
matcher.go - Automatic offset matching

PURPOSE:
  Discovers which already-posted settlement line items most plausibly
  settle which still-open originals of one account/currency pair, without
  being told the pairing by a user.

MATCHING IS DELIBERATELY CONSERVATIVE:
  A candidate offset must sit at or after the original in the ledger
  order, share its currency, carry the exact same description, and equal
  the original's current net balance to the cent. An incorrect automatic
  match corrupts financial records; anything the matcher cannot pair with
  confidence is left for manual reconciliation.

TWO PHASES:
  Run is a read-only pass over a snapshot and only proposes pairs.
  Apply is the explicit commit; it re-checks that each proposed offset is
  still unclaimed and silently skips any that another operation linked in
  the meantime. Re-running after a commit is idempotent: linked offsets
  and settled originals drop out of both input pools.
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
)

// MatchPair is one proposed (original, offset) settlement link.
type MatchPair struct {
	Original LineItem
	Offset   LineItem
}

// MatchResult is the outcome of one matcher run over a snapshot.
type MatchResult struct {
	Account  string
	Currency Currency

	// Pairs are the proposed links, in the order they were found.
	Pairs []MatchPair

	// Unapplied are the open originals no offset could be paired with.
	Unapplied []OpenOriginal

	// Unmatched are the free settlement items left after pairing.
	Unmatched []LineItem

	// Summary is a human-readable count line for operators.
	Summary string
}

// Matcher proposes and commits offset links for one account at a time.
type Matcher struct {
	store Store
	calc  *Calculator
}

func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store, calc: NewCalculator(store)}
}

// Run scans one account/currency snapshot and proposes pairings. It never
// fails for "no matches found"; zero pairs is a normal, reportable
// outcome. Invoking it for an account that does not track offsets is a
// precondition violation and returns ErrNotOffsetAccount.
func (m *Matcher) Run(ctx context.Context, accountCode string, currency Currency) (*MatchResult, error) {
	account, err := m.store.Account(ctx, accountCode)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountCode)
	}
	if !account.NeedsOffset {
		return nil, fmt.Errorf("%w: %s", ErrNotOffsetAccount, accountCode)
	}

	originals, err := m.calc.OpenOriginals(ctx, *account, currency, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(originals, func(i, j int) bool {
		return originals[i].Position().Less(originals[j].Position())
	})

	settleSide := account.SettlementDebit()
	pool, err := m.store.FindLineItems(ctx, Filter{
		Account:  accountCode,
		Currency: currency,
		IsDebit:  &settleSide,
		Unoffset: true,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Position().Less(pool[j].Position())
	})

	result := &MatchResult{Account: accountCode, Currency: currency}
	consumed := make(map[LineItemID]bool)

	for _, original := range originals {
		offset, found := pickOffset(original, pool, consumed)
		if !found {
			result.Unapplied = append(result.Unapplied, original)
			continue
		}
		consumed[offset.ID] = true
		result.Pairs = append(result.Pairs, MatchPair{Original: original.LineItem, Offset: offset})
	}

	for _, li := range pool {
		if !consumed[li.ID] {
			result.Unmatched = append(result.Unmatched, li)
		}
	}

	result.Summary = fmt.Sprintf("%d matched, %d unmatched (%d open originals, %d free offsets)",
		len(result.Pairs), len(result.Unapplied)+len(result.Unmatched),
		len(result.Unapplied), len(result.Unmatched))
	return result, nil
}

// pickOffset scans the remaining pool, in ascending ledger order, for the
// first offset satisfying all four conditions: causality (not earlier
// than the original's entry), same currency, identical description, and
// amount equal to the original's current net balance.
func pickOffset(original OpenOriginal, pool []LineItem, consumed map[LineItemID]bool) (LineItem, bool) {
	for _, candidate := range pool {
		if consumed[candidate.ID] {
			continue
		}
		if !candidate.Position().NotEarlierEntry(original.Position()) {
			continue
		}
		if candidate.Currency != original.Currency {
			continue
		}
		if candidate.Description != original.Description {
			continue
		}
		if !candidate.Amount.Equal(original.NetBalance) {
			continue
		}
		return candidate, true
	}
	return LineItem{}, false
}

// CheckPair re-validates one (original, offset) pair by id. Pairs coming
// out of Run always satisfy these rules, but callers that reconstruct
// pairs from ids (the apply endpoint) must not be able to commit a link
// the matcher would never have proposed: both items must exist, the
// original must be an offsettable line item of a needs-offset account,
// and the offset must share its account and currency, oppose its
// polarity, sit at or after it in the ledger order, and fit inside its
// current net balance.
func (m *Matcher) CheckPair(ctx context.Context, originalID, offsetID LineItemID) ([]ValidationError, error) {
	original, err := m.store.LineItem(ctx, originalID)
	if err != nil {
		return nil, err
	}
	offset, err := m.store.LineItem(ctx, offsetID)
	if err != nil {
		return nil, err
	}

	var errs []ValidationError
	if original == nil {
		errs = append(errs, ValidationError{
			Field:   "original_id",
			Rule:    RuleExistence,
			Message: fmt.Sprintf("original line item %q does not exist", originalID),
		})
	}
	if offset == nil {
		errs = append(errs, ValidationError{
			Field:   "offset_id",
			Rule:    RuleExistence,
			Message: fmt.Sprintf("offset line item %q does not exist", offsetID),
		})
	}
	if len(errs) > 0 {
		return errs, nil
	}

	// An already-linked offset makes the pair stale, not invalid: Apply
	// drops it silently through the compare-and-set, so the remaining
	// rules have nothing left to protect.
	if offset.IsOffset() {
		return nil, nil
	}

	if original.IsOffset() {
		errs = append(errs, ValidationError{
			Field:   "original_id",
			Rule:    RuleAlreadyOffset,
			Message: "the chosen original is itself an offset of another line item",
		})
	}

	account, err := m.store.Account(ctx, original.AccountCode)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.NeedsOffset {
		errs = append(errs, ValidationError{
			Field:   "original_id",
			Rule:    RuleNeedsOffset,
			Message: fmt.Sprintf("account %s of the original does not track offsets", original.AccountCode),
		})
	}

	if offset.AccountCode != original.AccountCode {
		errs = append(errs, ValidationError{
			Field:   "offset_id",
			Rule:    RuleAccountContinuity,
			Message: fmt.Sprintf("offset account %s must equal original account %s", offset.AccountCode, original.AccountCode),
		})
	}
	if offset.Currency != original.Currency {
		errs = append(errs, ValidationError{
			Field:   "offset_id",
			Rule:    RuleCurrency,
			Message: fmt.Sprintf("offset currency %s must equal original currency %s", offset.Currency, original.Currency),
		})
	}
	if offset.IsDebit == original.IsDebit {
		errs = append(errs, ValidationError{
			Field:   "offset_id",
			Rule:    RuleOppositeSide,
			Message: "an offset must be on the opposite side of its original",
		})
	}
	if !offset.Position().NotEarlierEntry(original.Position()) {
		errs = append(errs, ValidationError{
			Field:   "offset_id",
			Rule:    RuleDateOrder,
			Message: "the offset sits before the original in the ledger order",
		})
	}

	net, err := m.calc.NetBalance(ctx, *original, nil)
	if err != nil {
		return nil, err
	}
	if offset.Amount.GreaterThan(net) {
		errs = append(errs, ValidationError{
			Field:   "offset_id",
			Rule:    RuleAmountCeiling,
			Message: fmt.Sprintf("amount %s exceeds the original's net balance %s", offset.Amount, net),
		})
	}

	return errs, nil
}

// Apply commits the proposed pairs. Each link is written compare-and-set;
// a pair whose offset was claimed by a concurrent operation since Run is
// dropped silently, per the engine's concurrency model. Returns the
// number of links actually written.
func (m *Matcher) Apply(ctx context.Context, result *MatchResult) (int, error) {
	applied := 0
	for _, pair := range result.Pairs {
		claimed, err := m.store.SetOffsetLink(ctx, pair.Offset.ID, pair.Original.ID)
		if err != nil {
			return applied, err
		}
		if claimed {
			applied++
		}
	}
	return applied, nil
}
