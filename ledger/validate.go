/*
validate.go - Edit-time invariant rules

PURPOSE:
  The composable checks invoked for every line item whenever an entry is
  created or updated, before anything is committed. A single violation
  fails the whole line item; all violations are collected so the caller
  can attach each message to its field.

THE EXCLUDE SET:
  Amount bounds are checked against net balances computed with the
  submission's own line items excluded. Their stored values are about to
  be replaced, so counting them would double-book the amounts the user is
  editing on the form.

ERROR CONTRACT:
  ([]ValidationError, nil) for rule violations - user-correctable, never
  a Go error. A non-nil error means the store failed, nothing else.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// EditContext describes the submission a line item belongs to.
type EditContext struct {
	// EntryDate is the date the owning entry will carry after the edit.
	EntryDate time.Time

	// InProgress lists every line-item id in the same submission. These
	// are excluded from net-balance aggregation during bound checks.
	InProgress []LineItemID
}

// Validator enforces the edit-time invariants.
type Validator struct {
	store Store
	calc  *Calculator
}

func NewValidator(store Store) *Validator {
	return &Validator{store: store, calc: NewCalculator(store)}
}

// ValidateEntry validates a whole entry: entry-level shape and balance
// plus every line-item rule, with each submitted line item excluded from
// net-balance aggregation. Violations on the i-th line item are reported
// under "line_items[i].<field>".
func (v *Validator) ValidateEntry(ctx context.Context, e *Entry) ([]ValidationError, error) {
	var errs []ValidationError

	if e.Date.IsZero() {
		errs = append(errs, ValidationError{
			Field:   "date",
			Rule:    RuleExistence,
			Message: "entry date is required",
		})
	}
	if !e.Kind.Valid() {
		errs = append(errs, ValidationError{
			Field:   "kind",
			Rule:    RuleKind,
			Message: fmt.Sprintf("unknown entry kind %q", e.Kind),
		})
	}
	if len(e.LineItems) == 0 {
		errs = append(errs, ValidationError{
			Field:   "line_items",
			Rule:    RuleExistence,
			Message: "an entry needs at least one line item",
		})
	}

	for _, c := range e.Currencies() {
		debit, credit := e.DebitTotal(c), e.CreditTotal(c)
		if !debit.Equal(credit) {
			errs = append(errs, ValidationError{
				Field:   "line_items",
				Rule:    RuleBalanced,
				Message: fmt.Sprintf("%s debits (%s) do not equal credits (%s)", c, debit, credit),
			})
		}
	}

	ec := EditContext{EntryDate: e.Date}
	for _, li := range e.LineItems {
		if li.ID != "" {
			ec.InProgress = append(ec.InProgress, li.ID)
		}
	}

	for i, li := range e.LineItems {
		itemErrs, err := v.ValidateLineItem(ctx, li, ec)
		if err != nil {
			return nil, err
		}
		for _, ve := range itemErrs {
			ve.Field = fmt.Sprintf("line_items[%d].%s", i, ve.Field)
			errs = append(errs, ve)
		}
	}

	return errs, nil
}

// ValidateLineItem runs every rule against one line item and returns the
// full list of violations.
func (v *Validator) ValidateLineItem(ctx context.Context, item LineItem, ec EditContext) ([]ValidationError, error) {
	var errs []ValidationError

	if !item.Amount.IsPositive() {
		errs = append(errs, ValidationError{
			Field:   "amount",
			Rule:    RulePositivity,
			Message: fmt.Sprintf("amount must be positive, got %s", item.Amount),
		})
	}

	if !item.Currency.Valid() {
		errs = append(errs, ValidationError{
			Field:   "currency",
			Rule:    RuleCurrency,
			Message: fmt.Sprintf("%q is not a 3-letter currency code", item.Currency),
		})
	}

	account, err := v.store.Account(ctx, item.AccountCode)
	if err != nil {
		return nil, err
	}
	if account == nil {
		errs = append(errs, ValidationError{
			Field:   "account_code",
			Rule:    RuleExistence,
			Message: fmt.Sprintf("unknown account %q", item.AccountCode),
		})
	}

	if item.IsOffset() {
		offsetErrs, err := v.validateOffset(ctx, item, ec)
		if err != nil {
			return nil, err
		}
		errs = append(errs, offsetErrs...)
	} else if account != nil && account.NeedsOffset && item.IsDebit == account.SettlementDebit() {
		// A receivable cannot be born on the credit side, nor a payable
		// on the debit side, without saying what it settles.
		errs = append(errs, ValidationError{
			Field:   "original_id",
			Rule:    RulePolarity,
			Message: fmt.Sprintf("a line item on the settlement side of account %s must reference an original", item.AccountCode),
		})
	}

	originalErrs, err := v.validateAsOriginal(ctx, item, ec)
	if err != nil {
		return nil, err
	}
	errs = append(errs, originalErrs...)

	return errs, nil
}

// validateOffset checks the rules tying an offset to its original.
func (v *Validator) validateOffset(ctx context.Context, item LineItem, ec EditContext) ([]ValidationError, error) {
	original, err := v.store.LineItem(ctx, item.OriginalID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return []ValidationError{{
			Field:   "original_id",
			Rule:    RuleExistence,
			Message: fmt.Sprintf("original line item %q does not exist", item.OriginalID),
		}}, nil
	}

	var errs []ValidationError

	if original.IsOffset() {
		errs = append(errs, ValidationError{
			Field:   "original_id",
			Rule:    RuleAlreadyOffset,
			Message: "the chosen original is itself an offset of another line item",
		})
	}

	originalAccount, err := v.store.Account(ctx, original.AccountCode)
	if err != nil {
		return nil, err
	}
	if originalAccount == nil || !originalAccount.NeedsOffset {
		errs = append(errs, ValidationError{
			Field:   "original_id",
			Rule:    RuleNeedsOffset,
			Message: fmt.Sprintf("account %s of the original does not track offsets", original.AccountCode),
		})
	}

	if item.IsDebit == original.IsDebit {
		errs = append(errs, ValidationError{
			Field:   "is_debit",
			Rule:    RuleOppositeSide,
			Message: "an offset must be on the opposite side of its original",
		})
	}

	if item.AccountCode != original.AccountCode {
		errs = append(errs, ValidationError{
			Field:   "account_code",
			Rule:    RuleAccountContinuity,
			Message: fmt.Sprintf("offset account %s must equal original account %s", item.AccountCode, original.AccountCode),
		})
	}

	if item.Currency != original.Currency {
		errs = append(errs, ValidationError{
			Field:   "currency",
			Rule:    RuleCurrency,
			Message: fmt.Sprintf("offset currency %s must equal original currency %s", item.Currency, original.Currency),
		})
	}

	// Ceiling: the offset may consume at most what remains unsettled once
	// the rest of this submission is taken out of the aggregation.
	net, err := v.calc.NetBalance(ctx, *original, ec.InProgress)
	if err != nil {
		return nil, err
	}
	if item.Amount.GreaterThan(net) {
		errs = append(errs, ValidationError{
			Field:   "amount",
			Rule:    RuleAmountCeiling,
			Message: fmt.Sprintf("amount %s exceeds the original's net balance %s", item.Amount, net),
		})
	}

	if Day(ec.EntryDate).Before(Day(original.EntryDate)) {
		errs = append(errs, ValidationError{
			Field:   "date",
			Rule:    RuleDateOrder,
			Message: fmt.Sprintf("entry date %s is earlier than the original's date %s",
				Day(ec.EntryDate).Format("2006-01-02"), Day(original.EntryDate).Format("2006-01-02")),
		})
	}

	return errs, nil
}

// validateAsOriginal checks the rules protecting a line item that other
// entries have already offset: its amount has a floor, its account is
// frozen, and its entry may not move past its earliest offset.
func (v *Validator) validateAsOriginal(ctx context.Context, item LineItem, ec EditContext) ([]ValidationError, error) {
	if item.ID == "" {
		return nil, nil // brand new, nothing can reference it yet
	}

	offsets, err := v.store.OffsetsOf(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if len(offsets) == 0 {
		return nil, nil
	}

	var errs []ValidationError

	claimed, err := v.calc.claimedTotal(ctx, item.ID, nil)
	if err != nil {
		return nil, err
	}
	if item.Amount.LessThan(claimed) {
		errs = append(errs, ValidationError{
			Field:   "amount",
			Rule:    RuleAmountFloor,
			Message: fmt.Sprintf("amount %s is below the %s already claimed by existing offsets", item.Amount, claimed),
		})
	}

	stored, err := v.store.LineItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.AccountCode != item.AccountCode {
		errs = append(errs, ValidationError{
			Field:   "account_code",
			Rule:    RuleAccountContinuity,
			Message: fmt.Sprintf("account cannot change from %s while offsets reference this line item", stored.AccountCode),
		})
	}

	for _, offset := range offsets {
		if Day(ec.EntryDate).After(Day(offset.EntryDate)) {
			errs = append(errs, ValidationError{
				Field:   "date",
				Rule:    RuleDateOrder,
				Message: fmt.Sprintf("entry date %s is later than offset dated %s",
					Day(ec.EntryDate).Format("2006-01-02"), Day(offset.EntryDate).Format("2006-01-02")),
			})
			break
		}
	}

	return errs, nil
}
