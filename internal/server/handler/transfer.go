package handler

import (
	"encoding/json"
	"net/http"

	"github.com/outcomefi/marketd/internal/service"
)

// TransferHandler is the collateral-transfer boundary: payments arrive with
// a tagged instruction attached and the unspent part is reported back.
type TransferHandler struct {
	exchange *service.Exchange
}

func NewTransferHandler(exchange *service.Exchange) *TransferHandler {
	return &TransferHandler{exchange: exchange}
}

type transferRequest struct {
	From        string          `json:"from"`
	Amount      uint64          `json:"amount"`
	Instruction json.RawMessage `json:"instruction"`
}

type transferResponse struct {
	Refund uint64 `json:"refund"`
}

// HandleTransfer handles POST /api/transfers.
func (h *TransferHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.From == "" {
		writeBadRequest(w, "from is required")
		return
	}
	if len(req.Instruction) == 0 {
		writeBadRequest(w, "instruction is required")
		return
	}

	refund, err := h.exchange.HandleTransfer(r.Context(), req.From, req.Amount, req.Instruction)
	if err != nil {
		writeErrorWithRefund(w, err, refund)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{Refund: refund})
}
