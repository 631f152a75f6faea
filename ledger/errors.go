/*
errors.go - Error taxonomy for the ledger engine

Three classes of failure, handled differently:
  1. Validation errors - user-correctable, collected into []ValidationError
     and returned to the caller; never a Go error
  2. Precondition violations - caller bugs (e.g. matching on an account
     that does not track offsets); sentinel errors checked with errors.Is
  3. Concurrency conflicts - an offset claimed between Run and Apply;
     silently skipped, reflected only in a reduced applied count
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when a referenced account code does
	// not exist in the chart of accounts.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEntryNotFound is returned when a referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrLineItemNotFound is returned when a referenced line item doesn't exist.
	ErrLineItemNotFound = errors.New("line item not found")

	// ErrNotOffsetAccount is returned when the matcher is invoked for an
	// account whose line items do not carry open/settled semantics.
	// This is a caller precondition violation, not a recoverable state.
	ErrNotOffsetAccount = errors.New("account does not track offsets")

	// ErrEntryReferenced is returned when deleting an entry that contains
	// a line item used as the original of another entry's offset.
	ErrEntryReferenced = errors.New("entry is referenced as an original by other entries")
)

// =============================================================================
// VALIDATION ERRORS - Structured, user-correctable
// =============================================================================

// Rule identifies which edit-time invariant a line item violated.
type Rule string

const (
	RuleExistence         Rule = "existence"          // referenced record must exist
	RuleOppositeSide      Rule = "opposite-side"      // offset polarity must oppose its original
	RuleNeedsOffset       Rule = "needs-offset"       // original must live in a needs-offset account
	RuleAlreadyOffset     Rule = "already-offset"     // no chained offsetting
	RuleAccountContinuity Rule = "account-continuity" // offset account == original account; frozen once offset
	RuleAmountCeiling     Rule = "amount-ceiling"     // offset amount <= original's net balance
	RuleAmountFloor       Rule = "amount-floor"       // original amount >= sum claimed by its offsets
	RulePositivity        Rule = "positivity"         // amount > 0
	RulePolarity          Rule = "polarity"           // cannot start on the settlement side without an original
	RuleDateOrder         Rule = "date-order"         // original date <= offset date, both directions
	RuleBalanced          Rule = "balanced"           // per-currency debits == credits
	RuleCurrency          Rule = "currency"           // 3-letter uppercase code
	RuleKind              Rule = "kind"               // entry kind in the closed set
	RuleReferenced        Rule = "referenced"         // removal blocked by existing offsets
)

// ValidationError describes a single invariant violation on one field.
// Presentation (field highlighting, localization) is a caller concern.
type ValidationError struct {
	Field   string
	Rule    Rule
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Field, e.Rule, e.Message)
}

// HasRule reports whether any error in errs violates the given rule.
// Test helper made public because API callers use it too.
func HasRule(errs []ValidationError, rule Rule) bool {
	for _, e := range errs {
		if e.Rule == rule {
			return true
		}
	}
	return false
}
