/*
service.go - Entry create/update/delete orchestration

PURPOSE:
  The write path of the ledger. Every mutation flows through here so the
  sequence maintainer and the invariant validator see it before the store
  does: ordinals are assigned, cash counterparts synthesized, and the full
  rule set evaluated. Nothing is saved while a single violation stands.

IDENTITY PRESERVATION:
  Edits mutate line items in place - the same id survives the edit - so
  offset links recorded by other entries stay valid. The synthesized cash
  counterpart of receipt/disbursement entries is likewise reused by
  identity rather than recreated.

ERROR CONTRACT:
  ([]ValidationError, nil): user-correctable, entry not saved.
  (nil, error): store failure or precondition violation (ErrEntryNotFound,
  ErrEntryReferenced).
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is the entry-mutation facade over the store.
type Service struct {
	store     Store
	validator *Validator
	seq       *Sequencer
	opts      Options
}

func NewService(store Store, opts Options) *Service {
	return &Service{
		store:     store,
		validator: NewValidator(store),
		seq:       NewSequencer(store),
		opts:      opts,
	}
}

// Validator exposes the edit-time rules for callers that validate
// without saving (form previews).
func (s *Service) Validator() *Validator { return s.validator }

// Sequencer exposes ordinal maintenance for reorder endpoints.
func (s *Service) Sequencer() *Sequencer { return s.seq }

// =============================================================================
// CREATE
// =============================================================================

// CreateEntry validates and persists a new entry. Returns the violation
// list (entry unsaved) or saves atomically.
func (s *Service) CreateEntry(ctx context.Context, e *Entry) ([]ValidationError, error) {
	e.Date = Day(e.Date)
	s.applyDefaults(e)
	s.synthesizeCounterpart(e, nil)

	if e.ID == "" {
		e.ID = EntryID(uuid.NewString())
	}
	for i := range e.LineItems {
		if e.LineItems[i].ID == "" {
			e.LineItems[i].ID = LineItemID(uuid.NewString())
		}
		e.LineItems[i].EntryID = e.ID
		e.LineItems[i].EntryDate = e.Date
	}
	NumberLineItems(e)

	no, err := s.seq.NextEntryNo(ctx, e.Date)
	if err != nil {
		return nil, err
	}
	e.No = no
	for i := range e.LineItems {
		e.LineItems[i].EntryNo = e.No
	}

	verrs, err := s.validator.ValidateEntry(ctx, e)
	if err != nil {
		return nil, err
	}
	if len(verrs) > 0 {
		return verrs, nil
	}

	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil, s.store.SaveEntry(ctx, e)
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateEntry validates and persists an edit of an existing entry. Line
// items keep their identity; removals of line items that other entries
// offset are rejected; a date change repairs both dates' sequences.
func (s *Service) UpdateEntry(ctx context.Context, e *Entry) ([]ValidationError, error) {
	stored, err := s.store.Entry(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, e.ID)
	}

	e.Date = Day(e.Date)
	s.applyDefaults(e)
	s.synthesizeCounterpart(e, stored)

	verrs, err := s.checkRemovals(ctx, e, stored)
	if err != nil {
		return nil, err
	}
	if len(verrs) > 0 {
		return verrs, nil
	}

	for i := range e.LineItems {
		if e.LineItems[i].ID == "" {
			e.LineItems[i].ID = LineItemID(uuid.NewString())
		}
		e.LineItems[i].EntryID = e.ID
		e.LineItems[i].EntryDate = e.Date
	}
	NumberLineItems(e)

	moved := !SameDay(stored.Date, e.Date)
	var shifts map[EntryID]int
	if moved {
		shifts, err = s.seq.PlaceOnDate(ctx, e, e.Date)
		if err != nil {
			return nil, err
		}
	} else {
		e.No = stored.No
	}
	for i := range e.LineItems {
		e.LineItems[i].EntryNo = e.No
	}

	verrs, err = s.validator.ValidateEntry(ctx, e)
	if err != nil {
		return nil, err
	}
	if len(verrs) > 0 {
		return verrs, nil
	}

	e.CreatedAt = stored.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveEntry(ctx, e); err != nil {
		return nil, err
	}
	if len(shifts) > 0 {
		if err := s.store.SetEntryOrdinals(ctx, shifts); err != nil {
			return nil, err
		}
	}
	if moved {
		if err := s.seq.CompactDate(ctx, stored.Date); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// checkRemovals blocks the edit when a line item being dropped is still
// referenced as the original of an offset that survives the edit.
func (s *Service) checkRemovals(ctx context.Context, e, stored *Entry) ([]ValidationError, error) {
	kept := make(map[LineItemID]bool, len(e.LineItems))
	for _, li := range e.LineItems {
		kept[li.ID] = true
	}

	removed := make(map[LineItemID]bool)
	for _, li := range stored.LineItems {
		if !kept[li.ID] {
			removed[li.ID] = true
		}
	}

	var errs []ValidationError
	for id := range removed {
		offsets, err := s.store.OffsetsOf(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, offset := range offsets {
			// An offset that is itself being removed in this edit does
			// not block; anything else does.
			if removed[offset.ID] {
				continue
			}
			errs = append(errs, ValidationError{
				Field:   "line_items",
				Rule:    RuleReferenced,
				Message: fmt.Sprintf("line item %s is the original of existing offsets and cannot be removed", id),
			})
			break
		}
	}
	return errs, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteEntry removes an entry. An entry containing a line item that
// another entry's offset references cannot be deleted; deleting an
// offsetting entry returns its originals to open status.
func (s *Service) DeleteEntry(ctx context.Context, id EntryID) error {
	stored, err := s.store.Entry(ctx, id)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	for _, li := range stored.LineItems {
		offsets, err := s.store.OffsetsOf(ctx, li.ID)
		if err != nil {
			return err
		}
		for _, offset := range offsets {
			if offset.EntryID != id {
				return fmt.Errorf("%w: line item %s", ErrEntryReferenced, li.ID)
			}
		}
	}

	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return err
	}
	return s.seq.CompactDate(ctx, stored.Date)
}

// =============================================================================
// LINE-ITEM SHAPING
// =============================================================================

func (s *Service) applyDefaults(e *Entry) {
	if e.Kind == "" {
		e.Kind = KindTransfer
	}
	for i := range e.LineItems {
		if e.LineItems[i].Currency == "" {
			e.LineItems[i].Currency = s.opts.DefaultCurrency
		}
	}
}

// synthesizeCounterpart shapes cash-kind entries: the stated side is kept
// and a single cash counter line item per currency is synthesized on the
// other side, amounting to the stated side's sum. When editing, the
// stored counterpart's identity is reused so offset links pointing at it
// remain valid.
func (s *Service) synthesizeCounterpart(e *Entry, stored *Entry) {
	side, ok := e.Kind.SynthesizedDebit()
	if !ok {
		return
	}

	// The synthesized side is server-owned; drop any submitted rows there.
	stated := e.LineItems[:0]
	for _, li := range e.LineItems {
		if li.IsDebit != side {
			stated = append(stated, li)
		}
	}
	e.LineItems = stated

	for _, c := range e.Currencies() {
		counter := LineItem{
			AccountCode: s.opts.CashAccount,
			Currency:    c,
			IsDebit:     side,
			Amount:      e.sideTotal(c, !side),
			Description: e.Note,
		}
		if stored != nil {
			if prev := findCounterpart(stored, c, side); prev != nil {
				counter.ID = prev.ID
			}
		}
		e.LineItems = append(e.LineItems, counter)
	}
}

func findCounterpart(stored *Entry, c Currency, isDebit bool) *LineItem {
	for i := range stored.LineItems {
		li := &stored.LineItems[i]
		if li.Currency == c && li.IsDebit == isDebit {
			return li
		}
	}
	return nil
}
