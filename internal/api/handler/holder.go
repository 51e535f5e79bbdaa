package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/ledger"
)

// HolderHandler serves the ledger service's holder and adjustment endpoints.
type HolderHandler struct {
	svc *ledger.Service
}

func NewHolderHandler(svc *ledger.Service) *HolderHandler {
	return &HolderHandler{svc: svc}
}

func (h *HolderHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Name     string `json:"name"`
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	details, err := h.svc.Register(r.Context(), req.Login, req.Name, req.Currency)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, details)
}

func (h *HolderHandler) Details(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.AccountDetails(r.Context(), chi.URLParam(r, "login"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, details)
}

func (h *HolderHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount    decimal.Decimal `json:"amount"`
		Type      string          `json:"type"`
		AccountID *uuid.UUID      `json:"accountId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	details, err := h.svc.Adjust(r.Context(), chi.URLParam(r, "login"), ledger.AdjustCommand{
		Amount:    req.Amount,
		Type:      req.Type,
		AccountID: req.AccountID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, details)
}

func (h *HolderHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		RespondError(w, r, http.StatusNotFound, "account-not-found", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		RespondError(w, r, http.StatusUnprocessableEntity, "insufficient-funds", err.Error())
	case errors.Is(err, ledger.ErrLoginTaken):
		RespondError(w, r, http.StatusConflict, "login-taken", err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount):
		RespondError(w, r, http.StatusBadRequest, "invalid-amount", err.Error())
	case errors.Is(err, ledger.ErrInvalidOperationType):
		RespondError(w, r, http.StatusBadRequest, "invalid-operation-type", err.Error())
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}
