/*
handlers.go - HTTP handlers for the ledger engine

PURPOSE:
  Thin HTTP layer over the ledger package. Each handler follows the same
  flow: parse request, call domain logic, serialize response.

ERROR HANDLING:
  - 400: malformed input (bad JSON, bad dates, bad decimals)
  - 404: entry/account not found
  - 409: precondition violations (delete blocked, non-offset account)
  - 422: validation errors, returned as a field/rule/message list
  - 500: store failures

SECURITY NOTE:
  No authentication or authorization; permission checking is an external
  collaborator of this engine.
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/ledger-engine/ledger"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   ledger.Store
	Service *ledger.Service
	Matcher *ledger.Matcher
	Calc    *ledger.Calculator
}

// NewHandler wires the engine components over one store.
func NewHandler(store ledger.Store, opts ledger.Options) *Handler {
	return &Handler{
		Store:   store,
		Service: ledger.NewService(store, opts),
		Matcher: ledger.NewMatcher(store),
		Calc:    ledger.NewCalculator(store),
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the chart of accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.Accounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccount returns one account by code.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	account, err := h.Store.Account(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// CreateAccount upserts a chart-of-accounts entry.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	account := ledger.Account{
		Code:        req.Code,
		Title:       req.Title,
		Base:        ledger.AccountBase(req.Base),
		NeedsOffset: req.NeedsOffset,
	}
	if err := h.Store.SaveAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// OpenOriginals lists the still-open originals of one account/currency
// with their net balances, computed in a single batched aggregation.
func (h *Handler) OpenOriginals(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	currency := ledger.Currency(r.URL.Query().Get("currency"))

	account, err := h.Store.Account(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}

	open, err := h.Calc.OpenOriginals(r.Context(), *account, currency, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balances", err)
		return
	}

	dtos := make([]OpenOriginalDTO, len(open))
	for i, o := range open {
		dtos[i] = OpenOriginalDTO{LineItemDTO: toLineItemDTO(o.LineItem), NetBalance: o.NetBalance.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// ListEntries returns the entries of one date, in ordinal order.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	entries, err := h.Store.EntriesOn(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toEntryDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEntry returns a single entry with its line items.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))
	entry, err := h.Store.Entry(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get entry", err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// CreateEntry validates and saves a new entry. Violations come back as a
// 422 with the full field/rule/message list; nothing is saved partially.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.decodeEntry(w, r, "")
	if !ok {
		return
	}
	verrs, err := h.Service.CreateEntry(r.Context(), entry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create entry", err)
		return
	}
	if len(verrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": toValidationDTOs(verrs)})
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// UpdateEntry validates and saves an edit of an existing entry.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))
	entry, ok := h.decodeEntry(w, r, id)
	if !ok {
		return
	}
	verrs, err := h.Service.UpdateEntry(r.Context(), entry)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "Entry not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update entry", err)
		return
	}
	if len(verrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": toValidationDTOs(verrs)})
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// DeleteEntry removes an entry unless it is referenced as an original.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))
	err := h.Service.DeleteEntry(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ledger.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "Entry not found", err)
	case errors.Is(err, ledger.ErrEntryReferenced):
		writeError(w, http.StatusConflict, "Entry is referenced as an original by other entries", err)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to delete entry", err)
	}
}

// ValidateEntry runs the full rule set without saving (form preview).
func (h *Handler) ValidateEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.decodeEntry(w, r, "")
	if !ok {
		return
	}
	verrs, err := h.Service.Validator().ValidateEntry(r.Context(), entry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to validate entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": toValidationDTOs(verrs)})
}

// ReorderEntries applies client-proposed ordinals to one date.
func (h *Handler) ReorderEntries(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	// Non-numeric proposals are dropped here; the sequencer appends the
	// unproposed items after all proposed ones.
	proposed := make(map[ledger.EntryID]int)
	for id, raw := range req.Ordinals {
		if no, err := strconv.Atoi(raw); err == nil {
			proposed[ledger.EntryID(id)] = no
		}
	}

	changed, err := h.Service.Sequencer().ReorderEntries(r.Context(), date, proposed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reorder entries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

// =============================================================================
// MATCHER HANDLERS
// =============================================================================

// RunMatch proposes offset pairings for one account/currency snapshot.
// Never fails for zero matches; that is a normal, reportable outcome.
func (h *Handler) RunMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Matcher.Run(r.Context(), req.Account, ledger.Currency(req.Currency))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toMatchResultDTO(result))
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found", err)
	case errors.Is(err, ledger.ErrNotOffsetAccount):
		writeError(w, http.StatusConflict, "Account does not track offsets", err)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to run matcher", err)
	}
}

// ApplyMatch commits proposed pairs. The client only sends ids, so each
// pair is re-validated against the matcher's rules before anything is
// written; a single bad pair rejects the whole request with 422. Pairs
// claimed by a concurrent operation since the run are skipped; the
// response carries the count actually written.
func (h *Handler) ApplyMatch(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var verrs []ledger.ValidationError
	result := &ledger.MatchResult{}
	for i, p := range req.Pairs {
		pairErrs, err := h.Matcher.CheckPair(r.Context(),
			ledger.LineItemID(p.OriginalID), ledger.LineItemID(p.OffsetID))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to check pair", err)
			return
		}
		for _, ve := range pairErrs {
			ve.Field = fmt.Sprintf("pairs[%d].%s", i, ve.Field)
			verrs = append(verrs, ve)
		}
		result.Pairs = append(result.Pairs, ledger.MatchPair{
			Original: ledger.LineItem{ID: ledger.LineItemID(p.OriginalID)},
			Offset:   ledger.LineItem{ID: ledger.LineItemID(p.OffsetID)},
		})
	}
	if len(verrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": toValidationDTOs(verrs)})
		return
	}

	applied, err := h.Matcher.Apply(r.Context(), result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to apply matches", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeEntry parses an EntryRequest into a domain entry. A non-empty id
// marks an update of an existing entry.
func (h *Handler) decodeEntry(w http.ResponseWriter, r *http.Request, id ledger.EntryID) (*ledger.Entry, bool) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, false
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return nil, false
	}

	entry := &ledger.Entry{
		ID:   id,
		Date: date,
		Kind: ledger.EntryKind(req.Kind),
		Note: req.Note,
	}
	for _, item := range req.LineItems {
		amount, err := decimal.NewFromString(item.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount "+item.Amount, err)
			return nil, false
		}
		entry.LineItems = append(entry.LineItems, ledger.LineItem{
			ID:          ledger.LineItemID(item.ID),
			AccountCode: item.AccountCode,
			Currency:    ledger.Currency(item.Currency),
			IsDebit:     item.IsDebit,
			Amount:      amount,
			Description: item.Description,
			OriginalID:  ledger.LineItemID(item.OriginalID),
		})
	}
	return entry, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
