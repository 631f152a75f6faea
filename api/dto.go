/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures decoupling the domain model from the API contract.
  DTOs are pure data carriers; parsing and validation happen in handlers
  and in the ledger package.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients
*/
package api

import (
	"time"

	"github.com/quillbooks/ledger-engine/ledger"
)

const dateLayout = "2006-01-02"

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Base        string `json:"base"`
	NeedsOffset bool   `json:"needs_offset"`
}

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{Code: a.Code, Title: a.Title, Base: string(a.Base), NeedsOffset: a.NeedsOffset}
}

// =============================================================================
// ENTRIES AND LINE ITEMS
// =============================================================================

type LineItemDTO struct {
	ID          string `json:"id"`
	AccountCode string `json:"account_code"`
	Currency    string `json:"currency"`
	IsDebit     bool   `json:"is_debit"`
	No          int    `json:"no"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	OriginalID  string `json:"original_id,omitempty"`
	EntryID     string `json:"entry_id,omitempty"`
	EntryDate   string `json:"entry_date,omitempty"`
}

func toLineItemDTO(li ledger.LineItem) LineItemDTO {
	dto := LineItemDTO{
		ID:          string(li.ID),
		AccountCode: li.AccountCode,
		Currency:    string(li.Currency),
		IsDebit:     li.IsDebit,
		No:          li.No,
		Amount:      li.Amount.String(),
		Description: li.Description,
		OriginalID:  string(li.OriginalID),
		EntryID:     string(li.EntryID),
	}
	if !li.EntryDate.IsZero() {
		dto.EntryDate = li.EntryDate.Format(dateLayout)
	}
	return dto
}

type EntryDTO struct {
	ID        string        `json:"id"`
	Date      string        `json:"date"`
	No        int           `json:"no"`
	Kind      string        `json:"kind"`
	Note      string        `json:"note,omitempty"`
	LineItems []LineItemDTO `json:"line_items"`
	CreatedAt string        `json:"created_at,omitempty"`
	UpdatedAt string        `json:"updated_at,omitempty"`
}

func toEntryDTO(e *ledger.Entry) EntryDTO {
	items := make([]LineItemDTO, len(e.LineItems))
	for i, li := range e.LineItems {
		items[i] = toLineItemDTO(li)
	}
	dto := EntryDTO{
		ID:        string(e.ID),
		Date:      e.Date.Format(dateLayout),
		No:        e.No,
		Kind:      string(e.Kind),
		Note:      e.Note,
		LineItems: items,
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	if !e.UpdatedAt.IsZero() {
		dto.UpdatedAt = e.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// LineItemRequest is one submitted row. Amount is a decimal string; a
// present ID preserves the stored line item's identity across the edit.
type LineItemRequest struct {
	ID          string `json:"id,omitempty"`
	AccountCode string `json:"account_code"`
	Currency    string `json:"currency,omitempty"`
	IsDebit     bool   `json:"is_debit"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	OriginalID  string `json:"original_id,omitempty"`
}

// EntryRequest creates or replaces an entry.
type EntryRequest struct {
	Date      string            `json:"date"`
	Kind      string            `json:"kind,omitempty"`
	Note      string            `json:"note,omitempty"`
	LineItems []LineItemRequest `json:"line_items"`
}

// ValidationErrorDTO mirrors ledger.ValidationError.
type ValidationErrorDTO struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func toValidationDTOs(errs []ledger.ValidationError) []ValidationErrorDTO {
	out := make([]ValidationErrorDTO, len(errs))
	for i, e := range errs {
		out[i] = ValidationErrorDTO{Field: e.Field, Rule: string(e.Rule), Message: e.Message}
	}
	return out
}

// =============================================================================
// OPEN ORIGINALS AND MATCHING
// =============================================================================

type OpenOriginalDTO struct {
	LineItemDTO
	NetBalance string `json:"net_balance"`
}

type MatchPairDTO struct {
	Original LineItemDTO `json:"original"`
	Offset   LineItemDTO `json:"offset"`
}

type MatchResultDTO struct {
	Account   string            `json:"account"`
	Currency  string            `json:"currency"`
	Pairs     []MatchPairDTO    `json:"pairs"`
	Unapplied []OpenOriginalDTO `json:"unapplied"`
	Unmatched []LineItemDTO     `json:"unmatched"`
	Summary   string            `json:"summary"`
}

func toMatchResultDTO(r *ledger.MatchResult) MatchResultDTO {
	dto := MatchResultDTO{
		Account:  r.Account,
		Currency: string(r.Currency),
		Summary:  r.Summary,
	}
	for _, p := range r.Pairs {
		dto.Pairs = append(dto.Pairs, MatchPairDTO{
			Original: toLineItemDTO(p.Original),
			Offset:   toLineItemDTO(p.Offset),
		})
	}
	for _, o := range r.Unapplied {
		dto.Unapplied = append(dto.Unapplied, OpenOriginalDTO{
			LineItemDTO: toLineItemDTO(o.LineItem),
			NetBalance:  o.NetBalance.String(),
		})
	}
	for _, li := range r.Unmatched {
		dto.Unmatched = append(dto.Unmatched, toLineItemDTO(li))
	}
	return dto
}

// MatchRequest triggers a matcher run for one account/currency pair.
type MatchRequest struct {
	Account  string `json:"account"`
	Currency string `json:"currency"`
}

// ApplyRequest commits previously proposed pairs.
type ApplyRequest struct {
	Pairs []ApplyPair `json:"pairs"`
}

type ApplyPair struct {
	OriginalID string `json:"original_id"`
	OffsetID   string `json:"offset_id"`
}

// =============================================================================
// REORDER
// =============================================================================

// ReorderRequest carries client-proposed ordinals per entry id. Values
// are strings on purpose: items with a missing or non-numeric proposal
// are appended after all valid proposals in their existing order.
type ReorderRequest struct {
	Date     string            `json:"date"`
	Ordinals map[string]string `json:"ordinals"`
}
