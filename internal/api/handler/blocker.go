package handler

import (
	"encoding/json"
	"net/http"

	"github.com/velesbank/moneymove/internal/risk"
)

// BlockerHandler serves the risk gate's check endpoint.
type BlockerHandler struct {
	decider risk.Decider
}

func NewBlockerHandler(decider risk.Decider) *BlockerHandler {
	return &BlockerHandler{decider: decider}
}

func (h *BlockerHandler) Check(w http.ResponseWriter, r *http.Request) {
	var check risk.Check
	if err := json.NewDecoder(r.Body).Decode(&check); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	RespondJSON(w, http.StatusOK, h.decider.Decide(r.Context(), check))
}
