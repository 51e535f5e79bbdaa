package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/api/middleware"
	"github.com/velesbank/moneymove/internal/orchestrator"
)

// OperationsHandler serves the orchestrator's cash and transfer endpoints.
// Responses carry an errors list: empty on success, caller-facing rejection
// messages otherwise.
type OperationsHandler struct {
	svc    *orchestrator.Service
	logger *zap.Logger
}

func NewOperationsHandler(svc *orchestrator.Service, logger *zap.Logger) *OperationsHandler {
	return &OperationsHandler{svc: svc, logger: logger}
}

func (h *OperationsHandler) Cash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login  string          `json:"login"`
		Type   string          `json:"type"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondErrors(w, http.StatusBadRequest, []string{"invalid request body"})
		return
	}

	msgs, err := h.svc.Cash(r.Context(), orchestrator.CashCommand{
		Token:  operationToken(r),
		Login:  req.Login,
		Type:   req.Type,
		Amount: req.Amount,
	})
	h.respond(w, r, msgs, err)
}

func (h *OperationsHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromLogin string          `json:"fromLogin"`
		ToLogin   string          `json:"toLogin"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondErrors(w, http.StatusBadRequest, []string{"invalid request body"})
		return
	}

	msgs, err := h.svc.Transfer(r.Context(), orchestrator.TransferCommand{
		Token:     operationToken(r),
		FromLogin: req.FromLogin,
		ToLogin:   req.ToLogin,
		Amount:    req.Amount,
	})
	h.respond(w, r, msgs, err)
}

// operationToken is the caller's idempotency key, or a fresh one when the
// caller sent none; without a caller-chosen key there is nothing a retry
// could match against anyway.
func operationToken(r *http.Request) string {
	if key := r.Header.Get(middleware.HeaderIdempotencyKey); key != "" {
		return key
	}
	return uuid.NewString()
}

func (h *OperationsHandler) respond(w http.ResponseWriter, r *http.Request, msgs []string, err error) {
	if err != nil {
		h.logger.Error("operation failed",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
			zap.Error(err),
		)
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
		return
	}
	if len(msgs) > 0 {
		RespondErrors(w, http.StatusBadRequest, msgs)
		return
	}
	RespondErrors(w, http.StatusOK, nil)
}
